package policy

import (
	"log/slog"

	"github.com/eleven-am/specter/internal/domain"
)

// ToolPolicy is an immutable allow/block list. A blocked tool is always
// denied; when the allow list is non-empty only listed tools pass.
type ToolPolicy struct {
	allowed map[string]struct{}
	blocked map[string]struct{}
	logger  *slog.Logger
}

func New(allowed, blocked []string, logger *slog.Logger) *ToolPolicy {
	if logger == nil {
		logger = slog.Default()
	}

	p := &ToolPolicy{
		allowed: make(map[string]struct{}, len(allowed)),
		blocked: make(map[string]struct{}, len(blocked)),
		logger:  logger.With("component", "tool-policy"),
	}
	for _, name := range allowed {
		p.allowed[name] = struct{}{}
	}
	for _, name := range blocked {
		p.blocked[name] = struct{}{}
	}
	return p
}

func FromConfig(cfg domain.SecurityConfig, logger *slog.Logger) *ToolPolicy {
	return New(cfg.AllowedTools, cfg.BlockedTools, logger)
}

func (p *ToolPolicy) Check(toolName string) error {
	if _, blocked := p.blocked[toolName]; blocked {
		p.logger.Warn("tool denied", "tool", toolName, "reason", "blocked")
		return domain.NewPermissionError(toolName, "tool blocked")
	}
	if len(p.allowed) > 0 {
		if _, ok := p.allowed[toolName]; !ok {
			p.logger.Warn("tool denied", "tool", toolName, "reason", "not allowed")
			return domain.NewPermissionError(toolName, "tool not in allowlist")
		}
	}
	return nil
}
