package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
	"github.com/eleven-am/specter/internal/xjson"
)

const systemPrompt = "You are an execution planner. Convert user requests into JSON DAGs."

// ToolCatalog lists the tools a plan may reference.
type ToolCatalog interface {
	ListSpecs() []domain.ToolSpec
}

type Compiler struct {
	generator   ports.GenerationPort
	catalog     ToolCatalog
	maxParallel int
	logger      *slog.Logger
	now         func() time.Time
}

func NewCompiler(generator ports.GenerationPort, catalog ToolCatalog, maxParallel int, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxParallel <= 0 {
		maxParallel = domain.DefaultMaxParallel
	}
	return &Compiler{
		generator:   generator,
		catalog:     catalog,
		maxParallel: maxParallel,
		logger:      logger.With("component", "intent-compiler"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Compile turns free text into a validated graph. It never fails: any backend
// error or rejected plan yields the single-node fallback.
func (c *Compiler) Compile(ctx context.Context, input string, vars map[string]interface{}) *domain.ExecutionGraph {
	graph, plan, err := c.plan(ctx, input, vars)
	if err != nil {
		c.logger.Info("using fallback plan", "reason", err)
		return Fallback(input)
	}

	c.logger.Debug("plan accepted",
		"intent_summary", plan.IntentSummary,
		"confidence", plan.Confidence,
		"nodes", len(graph.Nodes))
	return graph
}

func (c *Compiler) plan(ctx context.Context, input string, vars map[string]interface{}) (*domain.ExecutionGraph, *domain.ExecutionPlan, error) {
	if c.generator == nil {
		return nil, nil, fmt.Errorf("no generation backend")
	}

	prompt, err := c.buildPrompt(input, vars)
	if err != nil {
		return nil, nil, err
	}

	raw, err := c.generator.Generate(ctx, prompt, ports.WithJSONMode(), ports.WithTemperature(0))
	if err != nil {
		return nil, nil, fmt.Errorf("generate plan: %w", err)
	}

	plan, err := ParsePlan(raw)
	if err != nil {
		return nil, nil, err
	}

	graph := domain.NewExecutionGraph(plan.Nodes, c.maxParallel)
	if err := graph.Validate(); err != nil {
		return nil, nil, err
	}
	return graph, plan, nil
}

// ParsePlan extracts, schema-checks and decodes a plan from model output,
// assigning ids to nodes that lack one.
func ParsePlan(raw string) (*domain.ExecutionPlan, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: no json object in plan output", domain.ErrInvalidInput)
	}
	if err := validatePlanDocument([]byte(body)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var plan domain.ExecutionPlan
	if err := xjson.Unmarshal([]byte(body), &plan); err != nil {
		return nil, fmt.Errorf("%w: decode plan: %v", domain.ErrInvalidInput, err)
	}
	domain.AssignNodeIDs(plan.Nodes)
	return &plan, nil
}

func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func (c *Compiler) buildPrompt(input string, vars map[string]interface{}) (string, error) {
	payload := map[string]interface{}{
		"time": c.now().Format(time.RFC3339),
	}
	for k, v := range vars {
		payload[k] = v
	}
	ctxJSON, err := xjson.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nRespond with a single JSON object of the form ")
	b.WriteString(`{"intent_summary": string, "confidence": number, "nodes": [{"id": string, "type": "tool"|"llm"|"condition"|"human_confirm", "spec": {"tool_name": string, "params": object, "prompt": string, "condition": string}, "deps": [string], "error_strategy": "retry"|"heal"|"report", "timeout_seconds": integer, "stream_output": boolean}]}`)
	b.WriteString("\n\nAvailable tools:\n")
	for _, spec := range c.toolSpecs() {
		fmt.Fprintf(&b, "- %s: %s", spec.Name, spec.Description)
		if len(spec.Parameters) > 0 {
			names := make([]string, 0, len(spec.Parameters))
			for name := range spec.Parameters {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Fprintf(&b, " (params: %s)", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nContext: ")
	b.Write(ctxJSON)
	b.WriteString("\n\nRequest: ")
	b.WriteString(input)
	return b.String(), nil
}

func (c *Compiler) toolSpecs() []domain.ToolSpec {
	if c.catalog == nil {
		return nil
	}
	return c.catalog.ListSpecs()
}
