package ports

import (
	"context"
	"time"
)

type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type CircuitBreakerConfig struct {
	Threshold     int           `json:"threshold" yaml:"threshold"`
	Recovery      time.Duration `json:"recovery" yaml:"recovery"`
	OnStateChange func(name string, from, to CircuitBreakerState)
}

type CircuitBreakerMetrics struct {
	State            CircuitBreakerState `json:"state"`
	Failures         int                 `json:"failures"`
	OpenedAt         time.Time           `json:"opened_at,omitempty"`
	TotalRequests    int64               `json:"total_requests"`
	RequestsRejected int64               `json:"requests_rejected"`
}

// CircuitBreaker guards a single tool. Allow closes an open breaker once the
// recovery window has elapsed.
type CircuitBreaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
	Execute(ctx context.Context, fn func(context.Context) error) error
	State() CircuitBreakerState
	Metrics() CircuitBreakerMetrics
	Reset()
}

// ToolBreakers owns the breaker of every tool in a registry.
type ToolBreakers interface {
	Breaker(tool string) CircuitBreaker
	Reset(tools ...string) []string
	Snapshot() map[string]CircuitBreakerMetrics
}
