package circuit_breaker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
)

type circuitBreaker struct {
	name   string
	config ports.CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool

	totalRequests    int64
	requestsRejected int64
}

func NewCircuitBreaker(name string, config ports.CircuitBreakerConfig, logger *slog.Logger) ports.CircuitBreaker {
	return newCircuitBreaker(name, config, logger, time.Now)
}

func newCircuitBreaker(name string, config ports.CircuitBreakerConfig, logger *slog.Logger, now func() time.Time) *circuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}

	if config.Threshold <= 0 {
		config.Threshold = 3
	}
	if config.Recovery <= 0 {
		config.Recovery = 30 * time.Second
	}

	return &circuitBreaker{
		name:   name,
		config: config,
		logger: logger.With("component", "circuit-breaker", "name", name),
		now:    now,
	}
}

func (cb *circuitBreaker) Allow() bool {
	atomic.AddInt64(&cb.totalRequests, 1)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return true
	}

	if cb.now().Sub(cb.openedAt) >= cb.config.Recovery {
		cb.failures = 0
		cb.setOpen(false)
		return true
	}

	atomic.AddInt64(&cb.requestsRejected, 1)
	cb.logger.Debug("request rejected", "failures", cb.failures)
	return false
}

func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.setOpen(false)
}

func (cb *circuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.failures >= cb.config.Threshold {
		cb.openedAt = cb.now()
		cb.setOpen(true)
	}
}

func (cb *circuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return domain.NewToolError(cb.name, "execute", domain.ErrCircuitOpen)
	}

	if err := fn(ctx); err != nil {
		cb.RecordFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}

// setOpen must be called with mu held.
func (cb *circuitBreaker) setOpen(open bool) {
	if cb.open == open {
		return
	}

	from, to := cb.stateLocked(), ports.StateClosed
	if open {
		to = ports.StateOpen
	}
	cb.open = open
	if !open {
		cb.openedAt = time.Time{}
	}

	cb.logger.Info("circuit breaker state change",
		"from", from.String(),
		"to", to.String(),
		"failures", cb.failures)

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, from, to)
	}
}

func (cb *circuitBreaker) stateLocked() ports.CircuitBreakerState {
	if cb.open {
		return ports.StateOpen
	}
	return ports.StateClosed
}

func (cb *circuitBreaker) State() ports.CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *circuitBreaker) Metrics() ports.CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return ports.CircuitBreakerMetrics{
		State:            cb.stateLocked(),
		Failures:         cb.failures,
		OpenedAt:         cb.openedAt,
		TotalRequests:    atomic.LoadInt64(&cb.totalRequests),
		RequestsRejected: atomic.LoadInt64(&cb.requestsRejected),
	}
}

func (cb *circuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.logger.Info("circuit breaker reset")
	cb.failures = 0
	atomic.StoreInt64(&cb.totalRequests, 0)
	atomic.StoreInt64(&cb.requestsRejected, 0)
	cb.setOpen(false)
}
