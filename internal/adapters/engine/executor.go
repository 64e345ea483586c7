package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
	"github.com/heimdalr/dag"
	"golang.org/x/sync/semaphore"
)

const defaultIdlePoll = 10 * time.Millisecond

// ToolRunner is the registry surface the executor needs.
type ToolRunner interface {
	Execute(ctx context.Context, name string, params map[string]interface{}) (interface{}, error)
}

type Executor struct {
	tools       ToolRunner
	policy      ports.PolicyPort
	generator   ports.GenerationPort
	healer      ports.HealerPort
	metrics     *MetricsTracker
	nodeTimeout time.Duration
	idlePoll    time.Duration
	logger      *slog.Logger
}

type Option func(*Executor)

func WithPolicy(policy ports.PolicyPort) Option {
	return func(e *Executor) {
		e.policy = policy
	}
}

func WithGenerator(generator ports.GenerationPort) Option {
	return func(e *Executor) {
		e.generator = generator
	}
}

func WithHealer(healer ports.HealerPort) Option {
	return func(e *Executor) {
		e.healer = healer
	}
}

func WithMetrics(metrics *MetricsTracker) Option {
	return func(e *Executor) {
		e.metrics = metrics
	}
}

// WithNodeTimeout sets the limit for nodes that declare no timeout of their own.
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.nodeTimeout = d
	}
}

func WithIdlePoll(d time.Duration) Option {
	return func(e *Executor) {
		e.idlePoll = d
	}
}

func NewExecutor(tools ToolRunner, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		tools:       tools,
		nodeTimeout: domain.DefaultNodeTimeoutSeconds * time.Second,
		idlePoll:    defaultIdlePoll,
		logger:      logger.With("component", "dag-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetricsTracker()
	}
	if e.idlePoll <= 0 {
		e.idlePoll = defaultIdlePoll
	}
	return e
}

func (e *Executor) Metrics() Metrics {
	return e.metrics.Snapshot()
}

// run is the mutable state of one execution. Every field is guarded by mu.
type run struct {
	mu       sync.Mutex
	graph    *domain.ExecutionGraph
	dag      *dag.DAG
	order    []domain.Node
	status   map[string]domain.NodeStatus
	queued   map[string]bool
	results  map[string]domain.NodeResult
	progress domain.Progress
	fatal    error
	wake     chan struct{}
}

func (r *run) snapshot() domain.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// start moves a queued node to running once it holds a parallelism slot.
func (r *run) start(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queued, id)
	r.status[id] = domain.NodeStatusRunning
}

func (r *run) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Execute runs graph to completion. Every node ends completed or failed; the
// returned error is reserved for structural problems that make the graph
// unrunnable. A failed node fails all of its descendants without running them.
func (e *Executor) Execute(ctx context.Context, graph *domain.ExecutionGraph, callback ports.StreamCallback) (*domain.RunResult, error) {
	if graph == nil {
		return nil, fmt.Errorf("%w: graph is nil", domain.ErrInvalidGraph)
	}
	if callback == nil {
		callback = ports.NoopCallback{}
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	d, err := buildDAG(graph)
	if err != nil {
		return nil, err
	}
	order, err := graph.TopologicalSort()
	if err != nil {
		return nil, err
	}

	state := &run{
		graph:    graph,
		dag:      d,
		order:    order,
		status:   make(map[string]domain.NodeStatus, len(graph.Nodes)),
		queued:   make(map[string]bool),
		results:  make(map[string]domain.NodeResult, len(graph.Nodes)),
		progress: domain.Progress{Total: len(graph.Nodes)},
		wake:     make(chan struct{}, 1),
	}
	for _, n := range graph.Nodes {
		state.status[n.ID] = domain.NodeStatusPending
	}

	e.metrics.RecordRun(false)
	e.logger.Debug("execution started", "nodes", len(graph.Nodes), "max_parallel", graph.Parallelism())

	sem := semaphore.NewWeighted(int64(graph.Parallelism()))
	var wg sync.WaitGroup

	for {
		ready, done := e.readyNodes(state)
		if done {
			break
		}
		if len(ready) == 0 {
			select {
			case <-state.wake:
			case <-time.After(e.idlePoll):
			}
			continue
		}

		for _, node := range ready {
			if err := sem.Acquire(ctx, 1); err != nil {
				e.finishFailed(ctx, state, node, err, 0, callback, reportError(ctx, callback, node, err))
				continue
			}
			state.start(node.ID)
			wg.Add(1)
			go func(node domain.Node) {
				defer wg.Done()
				defer sem.Release(1)
				defer state.notify()
				e.runNode(ctx, state, node, callback)
			}(node)
		}
	}
	wg.Wait()

	state.mu.Lock()
	result := &domain.RunResult{
		Results:  state.results,
		Progress: state.progress,
	}
	fatal := state.fatal
	state.mu.Unlock()

	e.metrics.RecordRun(true)
	e.logger.Debug("execution finished",
		"completed", result.Progress.Completed,
		"total", result.Progress.Total)

	callback.OnComplete(ctx, result)
	return result, fatal
}

// readyNodes queues and returns pending nodes whose dependencies have all
// completed. A queued node stays pending until it acquires a slot. done reports that no node is pending or running, or that a fatal
// error stopped dispatch and the in-flight nodes have drained.
func (e *Executor) readyNodes(state *run) (ready []domain.Node, done bool) {
	state.mu.Lock()
	defer state.mu.Unlock()

	active := 0
	for _, node := range state.order {
		switch state.status[node.ID] {
		case domain.NodeStatusRunning:
			active++
			continue
		case domain.NodeStatusPending:
			if state.queued[node.ID] {
				active++
				continue
			}
		default:
			continue
		}
		if state.fatal != nil {
			continue
		}

		satisfied := true
		for _, dep := range node.Deps {
			if state.status[dep] != domain.NodeStatusCompleted {
				satisfied = false
				break
			}
		}
		if satisfied {
			state.queued[node.ID] = true
			ready = append(ready, node)
		}
	}

	if len(ready) > 0 {
		return ready, false
	}
	if active > 0 {
		return nil, false
	}
	if state.fatal != nil {
		return nil, true
	}
	for _, node := range state.order {
		if !state.status[node.ID].Terminal() {
			return nil, false
		}
	}
	return nil, true
}

func (e *Executor) runNode(ctx context.Context, state *run, node domain.Node, callback ports.StreamCallback) {
	start := time.Now()
	e.metrics.RecordNodeStart()
	callback.OnNodeStart(ctx, node, state.snapshot())

	attempts := 1
	output, err := e.attempt(ctx, node, node.Spec.Params)
	if err == nil {
		e.finishCompleted(ctx, state, node, output, attempts, false, callback)
		e.metrics.RecordNodeExecution(time.Since(start), true)
		return
	}

	if errors.Is(err, domain.ErrUnknownNodeType) {
		state.mu.Lock()
		if state.fatal == nil {
			state.fatal = err
		}
		state.mu.Unlock()
		e.finishFailed(ctx, state, node, err, attempts, callback, reportError(ctx, callback, node, err))
		e.metrics.RecordNodeExecution(time.Since(start), false)
		return
	}

	e.recordFailure(state, node, err, attempts)
	e.logger.Debug("node failed",
		"node_id", node.ID,
		"strategy", node.Strategy(),
		"kind", domain.KindOf(err),
		"error", err)

	if domain.IsPermission(err) {
		e.finishFailed(ctx, state, node, err, attempts, callback, reportError(ctx, callback, node, err))
		e.metrics.RecordNodeExecution(time.Since(start), false)
		return
	}

	switch node.Strategy() {
	case domain.StrategyRetry:
		attempts++
		e.metrics.RecordRetry()
		output, retryErr := e.attempt(ctx, node, node.Spec.Params)
		if retryErr == nil {
			e.finishCompleted(ctx, state, node, output, attempts, false, callback)
			e.metrics.RecordNodeExecution(time.Since(start), true)
			return
		}
		e.finishFailed(ctx, state, node, retryErr, attempts, callback, reportError(ctx, callback, node, retryErr))

	case domain.StrategyHeal:
		fix := e.heal(ctx, node, err)
		if !fix.Success {
			e.metrics.RecordHeal(false)
			e.finishFailed(ctx, state, node, err, attempts, callback, func(progress domain.Progress) {
				callback.OnHealingFailed(ctx, node, fix, progress)
			})
			break
		}

		e.metrics.RecordHeal(true)
		params := fix.NewParams
		if params == nil {
			params = node.Spec.Params
		}
		attempts++
		output, healErr := e.attempt(ctx, node, params)
		if healErr == nil {
			e.logger.Info("node healed", "node_id", node.ID, "strategy", fix.Strategy)
			e.finishCompleted(ctx, state, node, output, attempts, true, callback)
			e.metrics.RecordNodeExecution(time.Since(start), true)
			return
		}
		e.finishFailed(ctx, state, node, healErr, attempts, callback, reportError(ctx, callback, node, healErr))

	default:
		e.finishFailed(ctx, state, node, err, attempts, callback, reportError(ctx, callback, node, err))
	}
	e.metrics.RecordNodeExecution(time.Since(start), false)
}

func (e *Executor) heal(ctx context.Context, node domain.Node, err error) domain.FixResult {
	if e.healer == nil {
		return domain.FixResult{Success: false, Strategy: domain.HealEscalate, Error: err.Error()}
	}
	return e.healer.AttemptFix(ctx, node, err)
}

func (e *Executor) timeoutFor(node domain.Node) time.Duration {
	if node.TimeoutSeconds > 0 {
		return node.Timeout()
	}
	if e.nodeTimeout > 0 {
		return e.nodeTimeout
	}
	return node.Timeout()
}

func (e *Executor) attempt(ctx context.Context, node domain.Node, params map[string]interface{}) (interface{}, error) {
	return e.runProtected(ctx, node, e.timeoutFor(node), func(ctx context.Context) (interface{}, error) {
		return e.dispatch(ctx, node, params)
	})
}

func (e *Executor) dispatch(ctx context.Context, node domain.Node, params map[string]interface{}) (interface{}, error) {
	switch node.Type {
	case domain.NodeTypeTool:
		name := node.Spec.ToolName
		if e.policy != nil {
			if err := e.policy.Check(name); err != nil {
				if audit := ports.AuditFromContext(ctx); audit != nil {
					audit(ctx, domain.AuditPolicyBlock, map[string]interface{}{
						"tool":    name,
						"node_id": node.ID,
						"error":   err.Error(),
					})
				}
				return nil, err
			}
		}
		if e.tools == nil {
			return nil, domain.NewToolError(name, "execute", domain.ErrUnknownTool)
		}
		return e.tools.Execute(ctx, name, params)

	case domain.NodeTypeLLM:
		prompt := node.Spec.Prompt
		if e.generator == nil {
			return map[string]interface{}{"text": prompt}, nil
		}
		text, err := e.generator.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"text": text}, nil

	case domain.NodeTypeHumanConfirm:
		return map[string]interface{}{"approved": false}, nil

	case domain.NodeTypeCondition:
		return map[string]interface{}{"value": false}, nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownNodeType, node.Type)
	}
}

func (e *Executor) recordFailure(state *run, node domain.Node, err error, attempts int) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.results[node.ID] = failedResult(err, attempts)
}

func failedResult(err error, attempts int) domain.NodeResult {
	return domain.NodeResult{
		Status:   domain.NodeStatusFailed,
		Error:    err.Error(),
		Kind:     domain.KindOf(err),
		Attempts: attempts,
		Err:      err,
	}
}

func (e *Executor) finishCompleted(ctx context.Context, state *run, node domain.Node, output interface{}, attempts int, healed bool, callback ports.StreamCallback) {
	state.mu.Lock()
	state.status[node.ID] = domain.NodeStatusCompleted
	state.results[node.ID] = domain.NodeResult{
		Status:   domain.NodeStatusCompleted,
		Output:   output,
		Attempts: attempts,
		Healed:   healed,
	}
	state.progress.Completed++
	progress := state.progress
	state.mu.Unlock()

	if node.StreamOutput {
		callback.OnNodeOutput(ctx, node, output, progress)
	}
}

func reportError(ctx context.Context, callback ports.StreamCallback, node domain.Node, err error) func(domain.Progress) {
	return func(progress domain.Progress) {
		callback.OnNodeError(ctx, node, err, progress)
	}
}

// finishFailed marks node failed and fails every still-pending descendant.
// report announces the node's own failure before the descendants are reported.
func (e *Executor) finishFailed(ctx context.Context, state *run, node domain.Node, err error, attempts int, callback ports.StreamCallback, report func(domain.Progress)) {
	byID := state.graph.NodeByID()

	state.mu.Lock()
	state.status[node.ID] = domain.NodeStatusFailed
	state.results[node.ID] = failedResult(err, attempts)

	var skipped []domain.Node
	var skipErrs []error
	if state.fatal == nil {
		for _, id := range descendants(state.dag, node.ID) {
			if state.status[id] != domain.NodeStatusPending {
				continue
			}
			depErr := &domain.DependencyFailedError{NodeID: id, Dependency: node.ID}
			state.status[id] = domain.NodeStatusFailed
			state.results[id] = failedResult(depErr, 0)
			skipped = append(skipped, byID[id])
			skipErrs = append(skipErrs, depErr)
		}
	}
	progress := state.progress
	state.mu.Unlock()

	if report != nil {
		report(progress)
	}
	for i, dependent := range skipped {
		e.metrics.RecordSkip()
		e.logger.Debug("node skipped", "node_id", dependent.ID, "failed_dependency", node.ID)
		callback.OnNodeError(ctx, dependent, skipErrs[i], progress)
	}
	state.notify()
}
