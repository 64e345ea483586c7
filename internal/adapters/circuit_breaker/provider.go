package circuit_breaker

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/specter/internal/ports"
)

// Provider keeps one breaker per tool, created on first use with the
// provider's default configuration.
type Provider struct {
	mu       sync.RWMutex
	breakers map[string]ports.CircuitBreaker
	defaults ports.CircuitBreakerConfig
	logger   *slog.Logger
}

func NewProvider(defaults ports.CircuitBreakerConfig, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		breakers: make(map[string]ports.CircuitBreaker),
		defaults: defaults,
		logger:   logger.With("component", "tool-breakers"),
	}
	if p.defaults.OnStateChange == nil {
		p.defaults.OnStateChange = p.logTransition
	}
	return p
}

func (p *Provider) logTransition(tool string, from, to ports.CircuitBreakerState) {
	if to == ports.StateOpen {
		p.logger.Warn("tool circuit opened", "tool", tool, "threshold", p.defaults.Threshold)
		return
	}
	p.logger.Info("tool circuit closed", "tool", tool, "previous", from.String())
}

func (p *Provider) Breaker(tool string) ports.CircuitBreaker {
	p.mu.RLock()
	breaker, ok := p.breakers[tool]
	p.mu.RUnlock()
	if ok {
		return breaker
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if breaker, ok := p.breakers[tool]; ok {
		return breaker
	}
	breaker = NewCircuitBreaker(tool, p.defaults, p.logger)
	p.breakers[tool] = breaker
	return breaker
}

// Reset closes the breakers of the named tools and returns the ones that
// existed, sorted.
func (p *Provider) Reset(tools ...string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var reset []string
	for _, tool := range tools {
		if breaker, ok := p.breakers[tool]; ok {
			breaker.Reset()
			reset = append(reset, tool)
		}
	}
	sort.Strings(reset)
	return reset
}

func (p *Provider) Snapshot() map[string]ports.CircuitBreakerMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	metrics := make(map[string]ports.CircuitBreakerMetrics, len(p.breakers))
	for tool, breaker := range p.breakers {
		metrics[tool] = breaker.Metrics()
	}
	return metrics
}
