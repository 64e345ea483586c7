package ports

import (
	"context"
	"time"

	"github.com/eleven-am/specter/internal/domain"
)

type ToolFunc func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// AuditFunc receives one event per tool invocation.
type AuditFunc func(ctx context.Context, action string, details map[string]interface{})

type PolicyPort interface {
	Check(toolName string) error
}

type ToolRegistry interface {
	Register(name string, fn ToolFunc) error
	RegisterTool(name string, fn ToolFunc, spec domain.ToolSpec) error
	Execute(ctx context.Context, name string, params map[string]interface{}) (interface{}, error)
	Has(name string) bool
	List() []string
	ListSpecs() []domain.ToolSpec
}

type SandboxPort interface {
	Run(ctx context.Context, code, tests string, timeout time.Duration) (domain.SandboxResult, error)
	Invoke(ctx context.Context, code string, params map[string]interface{}, timeout time.Duration) (interface{}, error)
}

type HealerPort interface {
	AttemptFix(ctx context.Context, node domain.Node, err error) domain.FixResult
}

type auditKey struct{}

// ContextWithAudit attaches the audit sink for the current execution.
func ContextWithAudit(ctx context.Context, fn AuditFunc) context.Context {
	return context.WithValue(ctx, auditKey{}, fn)
}

func AuditFromContext(ctx context.Context) AuditFunc {
	if fn, ok := ctx.Value(auditKey{}).(AuditFunc); ok {
		return fn
	}
	return nil
}
