package domain

import "time"

type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionReplaying ExecutionStatus = "replaying"
	ExecutionHealing   ExecutionStatus = "healing"
)

type ExecutionRecord struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id,omitempty"`
	UserID      string          `json:"user_id"`
	Intent      string          `json:"intent"`
	Graph       *ExecutionGraph `json:"graph"`
	Status      ExecutionStatus `json:"status"`
	Result      *RunResult      `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (r *ExecutionRecord) Summary() ExecutionSummary {
	return ExecutionSummary{
		ID:          r.ID,
		Intent:      r.Intent,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

type ExecutionSummary struct {
	ID          string          `json:"id"`
	Intent      string          `json:"intent"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

const (
	AuditToolCall       = "tool_call"
	AuditPolicyBlock    = "policy_block"
	AuditHealingFailed  = "healing_failed"
	AuditManualHeal     = "manual_heal"
	AuditExecutionStart = "execution_started"
	AuditExecutionEnd   = "execution_finished"
)

type AuditEvent struct {
	ID          string                 `json:"id"`
	ExecutionID string                 `json:"execution_id"`
	Action      string                 `json:"action"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}
