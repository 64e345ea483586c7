package events

import (
	"context"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
)

type NodeEvent struct {
	ExecutionID string           `json:"execution_id"`
	NodeID      string           `json:"node_id"`
	NodeType    domain.NodeType  `json:"node_type"`
	Output      interface{}      `json:"output,omitempty"`
	Error       string           `json:"error,omitempty"`
	Kind        domain.ErrorKind `json:"kind,omitempty"`
	Strategy    string           `json:"strategy,omitempty"`
	Progress    domain.Progress  `json:"progress"`
}

type RunEvent struct {
	ExecutionID string            `json:"execution_id"`
	Result      *domain.RunResult `json:"result,omitempty"`
}

// Recorder publishes executor callbacks on the bus and forwards them to an
// optional inner callback.
type Recorder struct {
	bus         ports.EventBus
	executionID string
	next        ports.StreamCallback
}

func NewRecorder(bus ports.EventBus, executionID string, next ports.StreamCallback) *Recorder {
	if next == nil {
		next = ports.NoopCallback{}
	}
	return &Recorder{bus: bus, executionID: executionID, next: next}
}

func (r *Recorder) nodeEvent(node domain.Node, progress domain.Progress) NodeEvent {
	return NodeEvent{
		ExecutionID: r.executionID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Progress:    progress,
	}
}

func (r *Recorder) OnNodeStart(ctx context.Context, node domain.Node, progress domain.Progress) {
	r.bus.Publish(ctx, TopicNodeStarted, r.nodeEvent(node, progress))
	r.next.OnNodeStart(ctx, node, progress)
}

func (r *Recorder) OnNodeOutput(ctx context.Context, node domain.Node, output interface{}, progress domain.Progress) {
	ev := r.nodeEvent(node, progress)
	ev.Output = output
	r.bus.Publish(ctx, TopicNodeOutput, ev)
	r.next.OnNodeOutput(ctx, node, output, progress)
}

func (r *Recorder) OnNodeError(ctx context.Context, node domain.Node, err error, progress domain.Progress) {
	ev := r.nodeEvent(node, progress)
	if err != nil {
		ev.Error = err.Error()
		ev.Kind = domain.KindOf(err)
	}
	r.bus.Publish(ctx, TopicNodeError, ev)
	r.next.OnNodeError(ctx, node, err, progress)
}

func (r *Recorder) OnHealingFailed(ctx context.Context, node domain.Node, fix domain.FixResult, progress domain.Progress) {
	ev := r.nodeEvent(node, progress)
	ev.Error = fix.Error
	ev.Strategy = string(fix.Strategy)
	r.bus.Publish(ctx, TopicHealingFailed, ev)
	AuditSink(r.bus, r.executionID)(ctx, domain.AuditHealingFailed, map[string]interface{}{
		"node_id":  node.ID,
		"strategy": string(fix.Strategy),
		"error":    fix.Error,
	})
	r.next.OnHealingFailed(ctx, node, fix, progress)
}

func (r *Recorder) OnComplete(ctx context.Context, result *domain.RunResult) {
	r.bus.Publish(ctx, TopicExecutionFinished, RunEvent{ExecutionID: r.executionID, Result: result})
	r.next.OnComplete(ctx, result)
}
