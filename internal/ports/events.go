package ports

import (
	"context"
	"time"
)

type Event struct {
	Topic     string      `json:"topic"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type EventHandler func(ctx context.Context, event Event)

type EventBus interface {
	Subscribe(topic string, handler EventHandler) string
	Unsubscribe(id string) bool
	Publish(ctx context.Context, topic string, payload interface{})
}
