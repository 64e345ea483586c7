package skills

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eleven-am/specter/internal/adapters/circuit_breaker"
	"github.com/eleven-am/specter/internal/adapters/retry"
	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

type registeredTool struct {
	fn     ports.ToolFunc
	spec   domain.ToolSpec
	schema *jsonschema.Schema
}

// Registry maps tool names to callables. Every invocation passes the tool
// policy, the tool's circuit breaker and the shared retry policy, and emits
// one audit event.
type Registry struct {
	tools  map[string]registeredTool
	mu     sync.RWMutex
	logger *slog.Logger

	policy         ports.PolicyPort
	breakers       ports.ToolBreakers
	retry          *retry.Policy
	audit          ports.AuditFunc
	sandbox        ports.SandboxPort
	sandboxTimeout time.Duration
}

type Option func(*Registry)

func WithPolicy(policy ports.PolicyPort) Option {
	return func(r *Registry) {
		r.policy = policy
	}
}

func WithBreakers(breakers ports.ToolBreakers) Option {
	return func(r *Registry) {
		r.breakers = breakers
	}
}

func WithRetryPolicy(p *retry.Policy) Option {
	return func(r *Registry) {
		r.retry = p
	}
}

// WithAuditSink sets the sink used when the context carries none.
func WithAuditSink(fn ports.AuditFunc) Option {
	return func(r *Registry) {
		r.audit = fn
	}
}

func WithSandbox(sandbox ports.SandboxPort, timeout time.Duration) Option {
	return func(r *Registry) {
		r.sandbox = sandbox
		r.sandboxTimeout = timeout
	}
}

func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		tools:  make(map[string]registeredTool),
		logger: logger.With("component", "skill-registry"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.breakers == nil {
		cfg := domain.DefaultCircuitBreakerConfig()
		r.breakers = circuit_breaker.NewProvider(ports.CircuitBreakerConfig{
			Threshold: cfg.Threshold,
			Recovery:  cfg.Recovery,
		}, logger)
	}
	if r.retry == nil {
		r.retry = retry.DefaultPolicy()
	}
	return r
}

func (r *Registry) Register(name string, fn ports.ToolFunc) error {
	return r.RegisterTool(name, fn, domain.ToolSpec{Name: name})
}

func (r *Registry) RegisterTool(name string, fn ports.ToolFunc, spec domain.ToolSpec) error {
	if name == "" {
		r.logger.Error("attempted to register tool with empty name")
		return &domain.ToolRegistrationError{
			ToolName: name,
			Reason:   "tool name cannot be empty",
		}
	}
	if fn == nil {
		r.logger.Error("attempted to register nil tool", "tool", name)
		return &domain.ToolRegistrationError{
			ToolName: name,
			Reason:   "tool function cannot be nil",
		}
	}

	spec.Name = name
	schema, err := compileSchema(spec)
	if err != nil {
		return &domain.ToolRegistrationError{
			ToolName: name,
			Reason:   "invalid parameter schema: " + err.Error(),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		r.logger.Debug("replacing registered tool", "tool", name)
	}
	r.tools[name] = registeredTool{fn: fn, spec: spec, schema: schema}
	r.logger.Debug("tool registered", "tool", name, "total_tools", len(r.tools))
	return nil
}

func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return domain.NewToolError(name, "unregister", domain.ErrUnknownTool)
	}
	delete(r.tools, name)
	r.logger.Debug("tool unregistered", "tool", name, "remaining_tools", len(r.tools))
	return nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListSpecs() []domain.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]domain.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

func (r *Registry) Spec(name string) (domain.ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t.spec, ok
}

func (r *Registry) Breakers() ports.ToolBreakers {
	return r.breakers
}

func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	tool, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		r.logger.Debug("tool not found", "tool", name)
		return nil, domain.NewToolError(name, "execute", domain.ErrUnknownTool)
	}

	if r.policy != nil {
		if err := r.policy.Check(name); err != nil {
			r.emit(ctx, domain.AuditPolicyBlock, map[string]interface{}{
				"tool":  name,
				"error": err.Error(),
			})
			return nil, err
		}
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	start := time.Now()
	attempts := 0
	out, err := r.call(ctx, name, tool, params, &attempts)

	details := map[string]interface{}{
		"tool":        name,
		"success":     err == nil,
		"attempts":    attempts,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		details["error"] = err.Error()
		details["kind"] = string(domain.KindOf(err))
	}
	r.emit(ctx, domain.AuditToolCall, details)

	return out, err
}

func (r *Registry) call(ctx context.Context, name string, tool registeredTool, params map[string]interface{}, attempts *int) (interface{}, error) {
	if err := validateParams(tool.schema, params); err != nil {
		return nil, domain.NewToolError(name, "validate", err)
	}

	breaker := r.breakers.Breaker(name)
	if !breaker.Allow() {
		r.logger.Warn("tool rejected by open circuit", "tool", name)
		return nil, domain.NewToolError(name, "execute", domain.ErrCircuitOpen)
	}

	policy := r.retry.WithOnRetry(func(attempt int, err error) {
		r.logger.Debug("retrying tool", "tool", name, "attempt", attempt, "error", err)
	})
	out, err := retry.Run(ctx, policy, func(ctx context.Context) (interface{}, error) {
		*attempts++
		return r.invoke(ctx, name, tool.fn, params)
	})
	if err != nil {
		breaker.RecordFailure()
		r.logger.Debug("tool failed", "tool", name, "attempts", *attempts, "error", err)
		return nil, domain.NewToolError(name, "execute", err)
	}

	breaker.RecordSuccess()
	return out, nil
}

func (r *Registry) invoke(ctx context.Context, name string, fn ports.ToolFunc, params map[string]interface{}) (out interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			panicErr := domain.NewPanicError(name, rec)
			r.logger.Error("tool panicked",
				"tool", name,
				"panic_value", rec,
				"stack_trace", panicErr.StackTrace)
			out, err = nil, panicErr
		}
	}()
	return fn(ctx, params)
}

func (r *Registry) emit(ctx context.Context, action string, details map[string]interface{}) {
	sink := ports.AuditFromContext(ctx)
	if sink == nil {
		sink = r.audit
	}
	if sink != nil {
		sink(ctx, action, details)
	}
}
