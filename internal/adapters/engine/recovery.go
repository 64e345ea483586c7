package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/eleven-am/specter/internal/domain"
)

type actionResult struct {
	output interface{}
	err    error
}

// runProtected runs fn under timeout in its own goroutine so a node that
// ignores cancellation still frees its slot when the deadline passes. A panic
// in fn becomes a PanicError.
func (e *Executor) runProtected(ctx context.Context, node domain.Node, timeout time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan actionResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr := domain.NewPanicError(node.ID, r)
				e.metrics.RecordPanic()
				e.logger.Error("node execution panicked",
					"node_id", node.ID,
					"node_type", node.Type,
					"panic_value", r,
					"stack_trace", panicErr.StackTrace)
				done <- actionResult{err: panicErr}
			}
		}()
		out, err := fn(ctx)
		done <- actionResult{output: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == context.DeadlineExceeded {
			return nil, e.timeoutError(node, timeout)
		}
		return res.output, res.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, e.timeoutError(node, timeout)
		}
		return nil, ctx.Err()
	}
}

func (e *Executor) timeoutError(node domain.Node, timeout time.Duration) error {
	e.metrics.RecordTimeout()
	return domain.NewKindError(domain.KindTimeout, "node "+node.ID,
		fmt.Errorf("%w after %s", domain.ErrTimeout, timeout))
}
