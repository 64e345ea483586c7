package healing

import (
	"context"
	"time"

	"github.com/eleven-am/specter/internal/domain"
)

// BackoffRepairer waits out a rate limit and keeps the original parameters.
type BackoffRepairer struct {
	Delay time.Duration
}

func (b BackoffRepairer) Repair(ctx context.Context, node domain.Node, _ error) (map[string]interface{}, error) {
	timer := time.NewTimer(b.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return node.Spec.Params, nil
	}
}
