package ports

import (
	"context"

	"github.com/eleven-am/specter/internal/domain"
)

type ExecutionStorePort interface {
	CreateExecution(ctx context.Context, userID, intent string, graph *domain.ExecutionGraph) (string, error)
	CompleteExecution(ctx context.Context, id string, result *domain.RunResult) error
	FailExecution(ctx context.Context, id string, reason string) error
	SetStatus(ctx context.Context, id string, status domain.ExecutionStatus) error
	GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	ListExecutions(ctx context.Context, limit int) ([]domain.ExecutionSummary, error)

	AddAudit(ctx context.Context, executionID, action string, details map[string]interface{}) error
	ListAudit(ctx context.Context, executionID string) ([]domain.AuditEvent, error)
}

type SkillStorePort interface {
	SaveSkill(ctx context.Context, record domain.SkillRecord) error
	LoadSkills(ctx context.Context) ([]domain.SkillRecord, error)
}

type StorePort interface {
	ExecutionStorePort
	SkillStorePort
	Close() error
}
