package core

import (
	"context"
	"sync"

	"github.com/eleven-am/specter/internal/domain"
)

type CollectedEvent struct {
	Event    string            `json:"event"`
	Node     string            `json:"node,omitempty"`
	Output   interface{}       `json:"output,omitempty"`
	Error    string            `json:"error,omitempty"`
	Kind     domain.ErrorKind  `json:"kind,omitempty"`
	Fix      *domain.FixResult `json:"fix,omitempty"`
	Progress *domain.Progress  `json:"progress,omitempty"`
	Result   *domain.RunResult `json:"result,omitempty"`
}

// EventCollector is a StreamCallback that keeps every lifecycle event in
// arrival order, for returning alongside a run result.
type EventCollector struct {
	mu     sync.Mutex
	events []CollectedEvent
}

func NewEventCollector() *EventCollector {
	return &EventCollector{events: []CollectedEvent{}}
}

func (c *EventCollector) add(ev CollectedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *EventCollector) Events() []CollectedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CollectedEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *EventCollector) OnNodeStart(_ context.Context, node domain.Node, progress domain.Progress) {
	c.add(CollectedEvent{Event: "start", Node: node.ID, Progress: &progress})
}

func (c *EventCollector) OnNodeOutput(_ context.Context, node domain.Node, output interface{}, _ domain.Progress) {
	c.add(CollectedEvent{Event: "output", Node: node.ID, Output: output})
}

func (c *EventCollector) OnNodeError(_ context.Context, node domain.Node, err error, _ domain.Progress) {
	ev := CollectedEvent{Event: "error", Node: node.ID}
	if err != nil {
		ev.Error = err.Error()
		ev.Kind = domain.KindOf(err)
	}
	c.add(ev)
}

func (c *EventCollector) OnHealingFailed(_ context.Context, node domain.Node, fix domain.FixResult, _ domain.Progress) {
	c.add(CollectedEvent{Event: "healing_failed", Node: node.ID, Fix: &fix})
}

func (c *EventCollector) OnComplete(_ context.Context, result *domain.RunResult) {
	c.add(CollectedEvent{Event: "complete", Result: result})
}
