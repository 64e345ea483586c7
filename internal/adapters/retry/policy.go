package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/eleven-am/specter/internal/domain"
)

// Policy retries a failing operation with capped exponential backoff plus
// uniform jitter. Attempts counts the first call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration

	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)

	// Retryable, when set, stops the loop early for errors it rejects.
	Retryable func(err error) bool

	sleep func(ctx context.Context, d time.Duration) error
}

func NewPolicy(config domain.RetryConfig) *Policy {
	return &Policy{
		MaxAttempts: config.MaxAttempts,
		BaseDelay:   config.BaseDelay,
		MaxDelay:    config.MaxDelay,
		Jitter:      config.Jitter,
	}
}

func DefaultPolicy() *Policy {
	return NewPolicy(domain.DefaultRetryConfig())
}

// WithOnRetry returns a copy of p that reports retries to fn.
func (p *Policy) WithOnRetry(fn func(attempt int, err error)) *Policy {
	cp := *p
	cp.OnRetry = fn
	return &cp
}

// WithRetryable returns a copy of p that only retries errors accepted by fn.
func (p *Policy) WithRetryable(fn func(err error) bool) *Policy {
	cp := *p
	cp.Retryable = fn
	return &cp
}

// Delay is the backoff before the attempt that follows attempt, without jitter.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p *Policy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(p.Jitter) + 1))
}

func (p *Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Run calls fn until it succeeds or the policy is exhausted, returning the
// last error. A cancelled context stops the backoff wait.
func Run[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if attempt >= maxAttempts {
			return value, err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return value, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := sleep(ctx, p.Delay(attempt)+p.jitter()); serr != nil {
			return value, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
