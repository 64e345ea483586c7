package healing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"dario.cat/mergo"
	"github.com/eleven-am/specter/internal/domain"
)

var strategyByKind = map[domain.ErrorKind]domain.HealingStrategy{
	domain.KindSyntax:    domain.HealSyntaxRepair,
	domain.KindAPIStatus: domain.HealAPIDiagnosis,
	domain.KindRateLimit: domain.HealBackoffRetry,
	domain.KindAuth:      domain.HealCredentialRefresh,
}

// Repairer proposes replacement parameters for a failed node.
type Repairer interface {
	Repair(ctx context.Context, node domain.Node, err error) (map[string]interface{}, error)
}

type RepairerFunc func(ctx context.Context, node domain.Node, err error) (map[string]interface{}, error)

func (f RepairerFunc) Repair(ctx context.Context, node domain.Node, err error) (map[string]interface{}, error) {
	return f(ctx, node, err)
}

// Engine maps a failure to a strategy and runs the repairer registered for
// it. Without a repairer the fix is reported as unsuccessful.
type Engine struct {
	mu        sync.RWMutex
	repairers map[domain.HealingStrategy]Repairer
	logger    *slog.Logger
}

type Option func(*Engine)

func WithRepairer(strategy domain.HealingStrategy, r Repairer) Option {
	return func(e *Engine) {
		e.repairers[strategy] = r
	}
}

func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		repairers: make(map[domain.HealingStrategy]Repairer),
		logger:    logger.With("component", "healing-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) SetRepairer(strategy domain.HealingStrategy, r Repairer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repairers[strategy] = r
}

func Classify(err error) domain.HealingStrategy {
	if strategy, ok := strategyByKind[domain.KindOf(err)]; ok {
		return strategy
	}
	return domain.HealEscalate
}

func (e *Engine) AttemptFix(ctx context.Context, node domain.Node, err error) domain.FixResult {
	strategy := Classify(err)
	result := domain.FixResult{
		Success:  false,
		Strategy: strategy,
	}
	if err != nil {
		result.Error = err.Error()
	}

	e.mu.RLock()
	repairer, ok := e.repairers[strategy]
	e.mu.RUnlock()

	if !ok {
		e.logger.Debug("no repairer for strategy",
			"node_id", node.ID,
			"strategy", strategy,
			"kind", domain.KindOf(err))
		return result
	}

	overrides, rerr := repairer.Repair(ctx, node, err)
	if rerr != nil {
		e.logger.Warn("repair failed",
			"node_id", node.ID,
			"strategy", strategy,
			"error", rerr)
		result.Error = rerr.Error()
		return result
	}

	params, merr := MergeParams(node.Spec.Params, overrides)
	if merr != nil {
		result.Error = merr.Error()
		return result
	}

	e.logger.Info("node repaired", "node_id", node.ID, "strategy", strategy)
	result.Success = true
	result.Error = ""
	result.NewParams = params
	return result
}

// MergeParams returns a copy of base with overrides applied on top.
func MergeParams(base, overrides map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	if len(overrides) == 0 {
		return merged, nil
	}
	if err := mergo.Merge(&merged, overrides, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge healed params: %w", err)
	}
	return merged, nil
}
