package events

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eleven-am/specter/internal/ports"
	"github.com/google/uuid"
)

const (
	TopicExecutionStarted  = "execution.started"
	TopicExecutionFinished = "execution.finished"
	TopicNodeStarted       = "node.started"
	TopicNodeOutput        = "node.output"
	TopicNodeError         = "node.error"
	TopicHealingFailed     = "node.healing_failed"
	TopicAuditPrefix       = "audit."
)

type subscription struct {
	id      string
	pattern string
	handler ports.EventHandler
}

// Bus is an in-process publish/subscribe hub. Patterns are either an exact
// topic, "*", or a prefix ending in "*". Handlers run synchronously in
// subscription order so audit writes keep their ordering.
type Bus struct {
	logger *slog.Logger

	mu            sync.RWMutex
	subscriptions []subscription
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger.With("component", "event-bus"),
	}
}

func (b *Bus) Subscribe(pattern string, handler ports.EventHandler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subscriptions = append(b.subscriptions, subscription{
		id:      id,
		pattern: pattern,
		handler: handler,
	})
	return id
}

func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscriptions {
		if sub.id == id {
			b.subscriptions = append(b.subscriptions[:i], b.subscriptions[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) {
	b.mu.RLock()
	var matching []ports.EventHandler
	for _, sub := range b.subscriptions {
		if patternMatches(sub.pattern, topic) {
			matching = append(matching, sub.handler)
		}
	}
	b.mu.RUnlock()

	if len(matching) == 0 {
		return
	}

	event := ports.Event{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	for _, handler := range matching {
		b.safeCall(func() { handler(ctx, event) }, topic)
	}
}

func patternMatches(pattern, topic string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == topic
}

func (b *Bus) safeCall(fn func(), topic string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "topic", topic, "panic", r)
		}
	}()
	fn()
}
