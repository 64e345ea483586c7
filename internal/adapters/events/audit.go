package events

import (
	"context"
	"log/slog"
	"strings"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
)

// AuditSink returns an AuditFunc bound to one execution that publishes each
// entry on the bus as "audit.<action>".
func AuditSink(bus ports.EventBus, executionID string) ports.AuditFunc {
	return func(ctx context.Context, action string, details map[string]interface{}) {
		bus.Publish(ctx, TopicAuditPrefix+action, domain.AuditEvent{
			ExecutionID: executionID,
			Action:      action,
			Details:     details,
		})
	}
}

// ForwardAudit subscribes store to every audit topic on bus and returns the
// subscription id.
func ForwardAudit(bus ports.EventBus, store ports.ExecutionStorePort, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit-forwarder")

	return bus.Subscribe(TopicAuditPrefix+"*", func(ctx context.Context, event ports.Event) {
		entry, ok := event.Payload.(domain.AuditEvent)
		if !ok {
			logger.Warn("unexpected audit payload", "topic", event.Topic)
			return
		}
		if entry.Action == "" {
			entry.Action = strings.TrimPrefix(event.Topic, TopicAuditPrefix)
		}
		if entry.ExecutionID == "" {
			return
		}
		if err := store.AddAudit(context.WithoutCancel(ctx), entry.ExecutionID, entry.Action, entry.Details); err != nil {
			logger.Error("failed to persist audit event",
				"execution_id", entry.ExecutionID,
				"action", entry.Action,
				"error", err)
		}
	})
}
