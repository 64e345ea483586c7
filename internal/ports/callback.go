package ports

import (
	"context"

	"github.com/eleven-am/specter/internal/domain"
)

// StreamCallback observes node lifecycle events during a run. Calls may
// arrive concurrently from different nodes.
type StreamCallback interface {
	OnNodeStart(ctx context.Context, node domain.Node, progress domain.Progress)
	OnNodeOutput(ctx context.Context, node domain.Node, output interface{}, progress domain.Progress)
	OnNodeError(ctx context.Context, node domain.Node, err error, progress domain.Progress)
	OnHealingFailed(ctx context.Context, node domain.Node, fix domain.FixResult, progress domain.Progress)
	OnComplete(ctx context.Context, result *domain.RunResult)
}

type NoopCallback struct{}

func (NoopCallback) OnNodeStart(context.Context, domain.Node, domain.Progress)               {}
func (NoopCallback) OnNodeOutput(context.Context, domain.Node, interface{}, domain.Progress) {}
func (NoopCallback) OnNodeError(context.Context, domain.Node, error, domain.Progress)        {}
func (NoopCallback) OnHealingFailed(context.Context, domain.Node, domain.FixResult, domain.Progress) {
}
func (NoopCallback) OnComplete(context.Context, *domain.RunResult) {}
