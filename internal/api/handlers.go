package api

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/eleven-am/specter/internal/core"
	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/xjson"
)

const maxBodyBytes = 1 << 20

type WebhookRequest struct {
	Text    string                 `json:"text"`
	UserID  string                 `json:"user_id,omitempty"`
	AgentID string                 `json:"agent_id,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type RunResponse struct {
	ExecutionID string                `json:"execution_id"`
	Result      *domain.RunResult     `json:"result"`
	Events      []core.CollectedEvent `json:"events"`
}

type ReplayResponse struct {
	Replayed bool                  `json:"replayed"`
	Result   *domain.RunResult     `json:"result"`
	Events   []core.CollectedEvent `json:"events"`
}

type ForgeRequest struct {
	Description string                `json:"description"`
	Examples    []domain.ForgeExample `json:"examples,omitempty"`
	AgentID     string                `json:"agent_id,omitempty"`
}

type ToolInvokeRequest struct {
	ToolName string                 `json:"tool_name"`
	Params   map[string]interface{} `json:"params,omitempty"`
	AgentID  string                 `json:"agent_id,omitempty"`
}

type SkillInstallRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AgentID     string `json:"agent_id,omitempty"`
}

type SkillRunRequest struct {
	Name    string                 `json:"name"`
	Params  map[string]interface{} `json:"params,omitempty"`
	AgentID string                 `json:"agent_id,omitempty"`
}

type HealingOverrideRequest struct {
	ExecutionID string `json:"execution_id"`
	FixType     string `json:"fix_type"`
	AgentID     string `json:"agent_id,omitempty"`
}

type ErrorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
	ID    string           `json:"id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Agents:    s.manager.Agents(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.agent(w, r, "")
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": rt.AgentID(),
		"executor": rt.Metrics(),
		"breakers": rt.Registry().Breakers().Snapshot(),
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if !s.decode(w, r, &req) {
		return
	}
	rt, ok := s.agent(w, r, req.AgentID)
	if !ok {
		return
	}

	vars := make(map[string]interface{}, len(req.Context)+1)
	for k, v := range req.Context {
		vars[k] = v
	}
	vars["channel"] = r.PathValue("channel")

	collector := core.NewEventCollector()
	out, err := rt.Run(r.Context(), core.RunRequest{
		Text:    req.Text,
		UserID:  req.UserID,
		Context: vars,
	}, collector)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, RunResponse{
		ExecutionID: out.ExecutionID,
		Result:      out.Result,
		Events:      collector.Events(),
	})
}

func (s *Server) handleForge(w http.ResponseWriter, r *http.Request) {
	var req ForgeRequest
	if !s.decode(w, r, &req) {
		return
	}
	rt, ok := s.agent(w, r, req.AgentID)
	if !ok {
		return
	}

	result, err := rt.Forge(r.Context(), req.Description, req.Examples)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	var req ToolInvokeRequest
	if !s.decode(w, r, &req) {
		return
	}
	rt, ok := s.agent(w, r, req.AgentID)
	if !ok {
		return
	}

	out, err := rt.InvokeTool(r.Context(), req.ToolName, req.Params)
	if err != nil {
		s.writeError(w, err, req.ToolName)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.agent(w, r, "")
	if !ok {
		return
	}
	specs := rt.ListTools()
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools": names,
		"specs": specs,
	})
}

func (s *Server) handleInstallSkill(w http.ResponseWriter, r *http.Request) {
	var req SkillInstallRequest
	if !s.decode(w, r, &req) {
		return
	}
	rt, ok := s.agent(w, r, req.AgentID)
	if !ok {
		return
	}

	rec, err := rt.InstallSkill(r.Context(), req.Name, req.Description)
	if err != nil {
		s.writeError(w, err, req.Name)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"installed": true,
		"name":      rec.Name,
		"skill":     rec,
	})
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.agent(w, r, "")
	if !ok {
		return
	}
	records, err := rt.ListSkills(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	names := make([]string, 0, len(records))
	for _, rec := range records {
		names = append(names, rec.Name)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"skills":  names,
		"records": records,
	})
}

func (s *Server) handleRunSkill(w http.ResponseWriter, r *http.Request) {
	var req SkillRunRequest
	if !s.decode(w, r, &req) {
		return
	}
	rt, ok := s.agent(w, r, req.AgentID)
	if !ok {
		return
	}

	out, err := rt.RunSkill(r.Context(), req.Name, req.Params)
	if err != nil {
		s.writeError(w, err, req.Name)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.agent(w, r, "")
	if !ok {
		return
	}
	id := r.PathValue("id")
	rec, err := rt.GetExecution(r.Context(), id)
	if err != nil {
		s.writeError(w, err, id)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.agent(w, r, "")
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer", Kind: domain.KindInvalidInput})
			return
		}
		limit = n
	}

	list, err := rt.ListExecutions(r.Context(), limit)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"executions": list})
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.agent(w, r, "")
	if !ok {
		return
	}
	id := r.PathValue("id")
	if _, err := rt.GetExecution(r.Context(), id); err != nil {
		s.writeError(w, err, id)
		return
	}
	trail, err := rt.ListAudit(r.Context(), id)
	if err != nil {
		s.writeError(w, err, id)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"audit": trail})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.agent(w, r, "")
	if !ok {
		return
	}
	id := r.PathValue("id")

	collector := core.NewEventCollector()
	out, err := rt.Replay(r.Context(), id, collector)
	if err != nil {
		s.writeError(w, err, id)
		return
	}
	s.writeJSON(w, http.StatusOK, ReplayResponse{
		Replayed: true,
		Result:   out.Result,
		Events:   collector.Events(),
	})
}

func (s *Server) handleHealOverride(w http.ResponseWriter, r *http.Request) {
	var req HealingOverrideRequest
	if !s.decode(w, r, &req) {
		return
	}
	rt, ok := s.agent(w, r, req.AgentID)
	if !ok {
		return
	}

	if err := rt.HealOverride(r.Context(), req.ExecutionID, req.FixType); err != nil {
		s.writeError(w, err, req.ExecutionID)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": req.ExecutionID,
		"fix_type":     req.FixType,
		"status":       domain.ExecutionHealing,
	})
}

var uiTemplate = template.Must(template.New("ui").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Specter</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        table { border-collapse: collapse; }
        td, th { border: 1px solid #ccc; padding: 6px; text-align: left; }
        .failed { color: #b00020; }
    </style>
</head>
<body>
    <h2>Specter Executions</h2>
    <table>
        <tr><th>ID</th><th>Status</th><th>Intent</th><th>Started</th></tr>
        {{range .}}<tr><td><a href="/executions/{{.ID}}">{{.ID}}</a></td><td{{if eq .Status "failed"}} class="failed"{{end}}>{{.Status}}</td><td>{{.Intent}}</td><td>{{.StartedAt.Format "2006-01-02 15:04:05"}}</td></tr>
        {{end}}
    </table>
</body>
</html>`))

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.agent(w, r, "")
	if !ok {
		return
	}
	list, err := rt.ListExecutions(r.Context(), 100)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := uiTemplate.Execute(w, list); err != nil {
		s.logger.Error("failed to render ui", "error", err)
	}
}

// agent resolves the runtime named by id, falling back to the agent_id query
// parameter and then the default agent.
func (s *Server) agent(w http.ResponseWriter, r *http.Request, id string) (*core.Runtime, bool) {
	if id == "" {
		id = r.URL.Query().Get("agent_id")
	}
	rt, err := s.manager.Agent(r.Context(), id)
	if err != nil {
		s.writeError(w, err, id)
		return nil, false
	}
	return rt, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read body", Kind: domain.KindInvalidInput})
		return false
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := xjson.Unmarshal(body, dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid json: %v", err), Kind: domain.KindInvalidInput})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindPermission:
		return http.StatusForbidden
	case domain.KindCircuitOpen, domain.KindRateLimit:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error, id string) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Kind: domain.KindOf(err), ID: id}
	if status == http.StatusNotFound {
		resp.Error = "not_found"
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := xjson.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
