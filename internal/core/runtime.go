package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/eleven-am/specter/internal/adapters/circuit_breaker"
	"github.com/eleven-am/specter/internal/adapters/compiler"
	"github.com/eleven-am/specter/internal/adapters/engine"
	"github.com/eleven-am/specter/internal/adapters/events"
	"github.com/eleven-am/specter/internal/adapters/forge"
	"github.com/eleven-am/specter/internal/adapters/healing"
	"github.com/eleven-am/specter/internal/adapters/llm"
	"github.com/eleven-am/specter/internal/adapters/policy"
	"github.com/eleven-am/specter/internal/adapters/retry"
	"github.com/eleven-am/specter/internal/adapters/sandbox"
	"github.com/eleven-am/specter/internal/adapters/skills"
	"github.com/eleven-am/specter/internal/adapters/storage"
	"github.com/eleven-am/specter/internal/adapters/tools"
	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
)

// Runtime is one agent: its own store, tool policy and skill registry,
// sharing nothing with other agents.
type Runtime struct {
	agentID  string
	config   *domain.Config
	security domain.SecurityConfig
	logger   *slog.Logger

	store     ports.StorePort
	ownsStore bool
	bus       *events.Bus
	auditSub  string
	policy    *policy.ToolPolicy
	registry  *skills.Registry
	generator ports.GenerationPort
	compiler  *compiler.Compiler
	executor  *engine.Executor
	forge     *forge.Forge
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	store      ports.StorePort
	generator  ports.GenerationPort
	sandbox    ports.SandboxPort
	healer     ports.HealerPort
	httpClient *http.Client
	searchURL  string
	models     llm.ModelFactory
	backoff    time.Duration
}

// WithStore uses store instead of opening the agent's badger directory. The
// runtime does not close a store it did not open.
func WithStore(store ports.StorePort) RuntimeOption {
	return func(o *runtimeOptions) {
		o.store = store
	}
}

func WithGenerator(generator ports.GenerationPort) RuntimeOption {
	return func(o *runtimeOptions) {
		o.generator = generator
	}
}

func WithSandbox(sb ports.SandboxPort) RuntimeOption {
	return func(o *runtimeOptions) {
		o.sandbox = sb
	}
}

func WithHealer(healer ports.HealerPort) RuntimeOption {
	return func(o *runtimeOptions) {
		o.healer = healer
	}
}

func WithHTTPClient(client *http.Client, searchURL string) RuntimeOption {
	return func(o *runtimeOptions) {
		o.httpClient = client
		o.searchURL = searchURL
	}
}

// WithModelFactory builds the LLM route models with factory instead of the
// provider clients. Ignored when WithGenerator is set.
func WithModelFactory(factory llm.ModelFactory) RuntimeOption {
	return func(o *runtimeOptions) {
		o.models = factory
	}
}

// WithBackoffHealing makes the default healer wait delay and rerun a node that
// failed on a rate limit. Ignored when WithHealer is set.
func WithBackoffHealing(delay time.Duration) RuntimeOption {
	return func(o *runtimeOptions) {
		o.backoff = delay
	}
}

func NewRuntime(ctx context.Context, config *domain.Config, agentID string, opts ...RuntimeOption) (*Runtime, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	if agentID == "" {
		agentID = config.DefaultAgent
	}

	var o runtimeOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("agent_id", agentID)
	security := config.AgentSecurity(agentID)

	r := &Runtime{
		agentID:  agentID,
		config:   config,
		security: security,
		logger:   logger.With("component", "runtime"),
		store:    o.store,
	}

	if r.store == nil {
		store, err := storage.Open(domain.StorageConfig{
			Path:     config.AgentStorePath(agentID),
			InMemory: config.Storage.InMemory,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open store for agent %s: %w", agentID, err)
		}
		r.store = store
		r.ownsStore = true
	}

	r.bus = events.NewBus(logger)
	r.auditSub = events.ForwardAudit(r.bus, r.store, logger)
	r.policy = policy.FromConfig(security, logger)

	breakers := circuit_breaker.NewProvider(ports.CircuitBreakerConfig{
		Threshold: config.Execution.CircuitBreaker.Threshold,
		Recovery:  config.Execution.CircuitBreaker.Recovery,
	}, logger)
	retryPolicy := retry.NewPolicy(config.Execution.Retry).WithRetryable(transient)

	sb := o.sandbox
	if sb == nil {
		sb = sandbox.NewRunner(config.Sandbox, logger)
	}

	r.registry = skills.NewRegistry(logger,
		skills.WithPolicy(r.policy),
		skills.WithBreakers(breakers),
		skills.WithRetryPolicy(retryPolicy),
		skills.WithAuditSink(events.AuditSink(r.bus, "")),
		skills.WithSandbox(sb, config.Sandbox.Timeout),
	)

	if err := tools.RegisterBuiltins(r.registry, tools.Config{
		WorkspaceRoot: workspaceRoot(config, security),
		HTTPClient:    o.httpClient,
		SearchURL:     o.searchURL,
	}); err != nil {
		r.Close()
		return nil, fmt.Errorf("register builtins: %w", err)
	}

	if _, err := r.registry.LoadFromStore(ctx, r.store); err != nil {
		r.Close()
		return nil, err
	}

	r.generator = o.generator
	if r.generator == nil {
		routerOpts := []llm.RouterOption{llm.WithRetryPolicy(retry.NewPolicy(config.Execution.Retry))}
		if o.models != nil {
			routerOpts = append(routerOpts, llm.WithModelFactory(o.models))
		}
		router, err := llm.NewRouter(config.LLM, logger, routerOpts...)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.generator = router
	}

	healer := o.healer
	if healer == nil {
		var healOpts []healing.Option
		if o.backoff > 0 {
			healOpts = append(healOpts, healing.WithRepairer(domain.HealBackoffRetry, healing.BackoffRepairer{Delay: o.backoff}))
		}
		healer = healing.NewEngine(logger, healOpts...)
	}

	r.compiler = compiler.NewCompiler(r.generator, r.registry, config.Execution.MaxParallel, logger)
	r.executor = engine.NewExecutor(r.registry, logger,
		engine.WithPolicy(r.policy),
		engine.WithGenerator(r.generator),
		engine.WithHealer(healer),
		engine.WithNodeTimeout(config.Execution.NodeTimeout),
		engine.WithIdlePoll(config.Execution.IdlePoll),
	)
	r.forge = forge.NewForge(r.generator, sb, r.registry, r.store, config.Sandbox.Timeout, logger)

	r.logger.Info("agent runtime ready", "tools", len(r.registry.List()))
	return r, nil
}

// transient reports whether the registry should retry err.
func transient(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindPermission, domain.KindInvalidInput, domain.KindNotFound, domain.KindAuth:
		return false
	}
	return true
}

func workspaceRoot(config *domain.Config, security domain.SecurityConfig) string {
	if security.WorkspaceRoot != "" {
		return security.WorkspaceRoot
	}
	abs, err := filepath.Abs(config.DataDir)
	if err != nil {
		return "."
	}
	return filepath.Dir(abs)
}

func (r *Runtime) AgentID() string {
	return r.agentID
}

func (r *Runtime) Store() ports.StorePort {
	return r.store
}

func (r *Runtime) Registry() *skills.Registry {
	return r.registry
}

func (r *Runtime) Metrics() engine.Metrics {
	return r.executor.Metrics()
}

// Subscribe registers handler for bus topics matching pattern. See the
// events package for topic names.
func (r *Runtime) Subscribe(pattern string, handler ports.EventHandler) string {
	return r.bus.Subscribe(pattern, handler)
}

func (r *Runtime) Unsubscribe(id string) bool {
	return r.bus.Unsubscribe(id)
}

type RunRequest struct {
	Text    string
	UserID  string
	Context map[string]interface{}
}

type RunOutcome struct {
	ExecutionID string                 `json:"execution_id"`
	Graph       *domain.ExecutionGraph `json:"graph,omitempty"`
	Result      *domain.RunResult      `json:"result"`
}

// Run compiles req into a graph, records it as an execution and executes it.
// A run whose nodes failed still completes; only structural errors fail the
// execution record.
func (r *Runtime) Run(ctx context.Context, req RunRequest, callback ports.StreamCallback) (*RunOutcome, error) {
	userID := req.UserID
	if userID == "" {
		userID = r.config.DefaultUserID
	}

	vars := make(map[string]interface{}, len(req.Context)+1)
	for k, v := range req.Context {
		vars[k] = v
	}
	vars["user_id"] = userID

	graph := r.compiler.Compile(ctx, req.Text, vars)

	id, err := r.store.CreateExecution(ctx, userID, req.Text, graph)
	if err != nil {
		return nil, err
	}

	result, err := r.execute(ctx, id, graph, callback)
	if err != nil {
		return nil, err
	}
	return &RunOutcome{ExecutionID: id, Graph: graph, Result: result}, nil
}

// Replay re-executes the stored graph of an execution.
func (r *Runtime) Replay(ctx context.Context, executionID string, callback ports.StreamCallback) (*RunOutcome, error) {
	rec, err := r.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if rec.Graph == nil {
		return nil, domain.NewKindError(domain.KindInvalidInput, "replay",
			fmt.Errorf("%w: execution %s has no graph", domain.ErrInvalidGraph, executionID))
	}

	if err := r.store.SetStatus(ctx, executionID, domain.ExecutionReplaying); err != nil {
		return nil, err
	}

	result, err := r.execute(ctx, executionID, rec.Graph, callback)
	if err != nil {
		return nil, err
	}
	return &RunOutcome{ExecutionID: executionID, Graph: rec.Graph, Result: result}, nil
}

func (r *Runtime) execute(ctx context.Context, id string, graph *domain.ExecutionGraph, callback ports.StreamCallback) (*domain.RunResult, error) {
	audit := events.AuditSink(r.bus, id)
	runCtx := ports.ContextWithAudit(ctx, audit)
	if limit := r.security.MaxExecutionTime; limit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, limit)
		defer cancel()
	}

	logger := r.logger.With("execution_id", id)
	logger.Info("execution started", "nodes", len(graph.Nodes))
	audit(runCtx, domain.AuditExecutionStart, map[string]interface{}{"nodes": len(graph.Nodes)})
	r.bus.Publish(runCtx, events.TopicExecutionStarted, events.RunEvent{ExecutionID: id})

	start := time.Now()
	result, err := r.executor.Execute(runCtx, graph, events.NewRecorder(r.bus, id, callback))
	if err != nil {
		logger.Error("execution failed", "error", err)
		audit(runCtx, domain.AuditExecutionEnd, map[string]interface{}{"success": false, "error": err.Error()})
		if ferr := r.store.FailExecution(context.WithoutCancel(ctx), id, err.Error()); ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		return nil, err
	}

	failed := result.Failed()
	audit(runCtx, domain.AuditExecutionEnd, map[string]interface{}{
		"success":     len(failed) == 0,
		"failed":      failed,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	logger.Info("execution finished", "failed_nodes", len(failed), "duration", time.Since(start))

	if err := r.store.CompleteExecution(context.WithoutCancel(ctx), id, result); err != nil {
		return nil, err
	}
	return result, nil
}

// HealOverride marks an execution for manual healing and closes the
// breakers of the tools its graph uses.
func (r *Runtime) HealOverride(ctx context.Context, executionID, fixType string) error {
	if fixType == "" {
		return domain.NewKindError(domain.KindInvalidInput, "heal override",
			fmt.Errorf("%w: fix_type is required", domain.ErrInvalidInput))
	}
	if err := r.store.SetStatus(ctx, executionID, domain.ExecutionHealing); err != nil {
		return err
	}

	details := map[string]interface{}{"fix_type": fixType}
	rec, err := r.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if rec.Graph != nil {
		var tools []string
		for _, n := range rec.Graph.Nodes {
			if n.Type == domain.NodeTypeTool {
				tools = append(tools, n.Spec.ToolName)
			}
		}
		if reset := r.registry.Breakers().Reset(tools...); len(reset) > 0 {
			details["reset_breakers"] = reset
		}
	}

	r.logger.Info("manual heal requested", "execution_id", executionID, "fix_type", fixType)
	events.AuditSink(r.bus, executionID)(ctx, domain.AuditManualHeal, details)
	return nil
}

func (r *Runtime) Forge(ctx context.Context, description string, examples []domain.ForgeExample) (domain.ForgeResult, error) {
	if description == "" {
		return domain.ForgeResult{}, domain.NewKindError(domain.KindInvalidInput, "forge",
			fmt.Errorf("%w: description is required", domain.ErrInvalidInput))
	}
	return r.forge.Forge(ctx, description, examples)
}

func (r *Runtime) InvokeTool(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	return r.registry.Execute(ctx, name, params)
}

func (r *Runtime) ListTools() []domain.ToolSpec {
	return r.registry.ListSpecs()
}

func (r *Runtime) ListSkills(ctx context.Context) ([]domain.SkillRecord, error) {
	return r.store.LoadSkills(ctx)
}

// InstallSkill persists a description-only skill and registers it.
func (r *Runtime) InstallSkill(ctx context.Context, name, description string) (domain.SkillRecord, error) {
	if description == "" {
		description = "Installed skill"
	}
	return r.registry.PersistTemplateSkill(ctx, r.store, name, description)
}

func (r *Runtime) RunSkill(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	return r.registry.Execute(ctx, name, params)
}

func (r *Runtime) GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	return r.store.GetExecution(ctx, id)
}

func (r *Runtime) ListExecutions(ctx context.Context, limit int) ([]domain.ExecutionSummary, error) {
	return r.store.ListExecutions(ctx, limit)
}

func (r *Runtime) ListAudit(ctx context.Context, executionID string) ([]domain.AuditEvent, error) {
	return r.store.ListAudit(ctx, executionID)
}

func (r *Runtime) Close() error {
	if r.auditSub != "" {
		r.bus.Unsubscribe(r.auditSub)
		r.auditSub = ""
	}
	if r.ownsStore && r.store != nil {
		err := r.store.Close()
		r.store = nil
		return err
	}
	return nil
}
