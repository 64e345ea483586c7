package domain

import "time"

// ToolSpec describes a registered tool. It is immutable once registered.
type ToolSpec struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	Parameters  map[string]string      `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Required    []string               `json:"required,omitempty" yaml:"required,omitempty"`
	Category    string                 `json:"category,omitempty" yaml:"category,omitempty"`
	Example     map[string]interface{} `json:"example,omitempty" yaml:"example,omitempty"`
}

// ToolResult is the record shape every builtin and generated skill returns.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   *string     `json:"error"`
}

func ToolOK(data interface{}) ToolResult {
	return ToolResult{Success: true, Data: data}
}

func ToolFail(msg string) ToolResult {
	return ToolResult{Success: false, Error: &msg}
}

type SkillKind string

const (
	SkillKindTemplate  SkillKind = "template"
	SkillKindGenerated SkillKind = "generated"
)

// SkillRecord is the persisted form of a forged or installed skill.
type SkillRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Version     int               `json:"version"`
	Kind        SkillKind         `json:"kind"`
	Params      []string          `json:"params,omitempty"`
	ParamTypes  map[string]string `json:"param_types,omitempty"`
	Code        string            `json:"code,omitempty"`
	CodeHash    string            `json:"code_hash,omitempty"`
	Examples    []ForgeExample    `json:"examples,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type SkillInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     int    `json:"version"`
}

type ForgeExample struct {
	Input  map[string]interface{} `json:"input"`
	Output interface{}            `json:"output,omitempty"`
}

type SandboxResult struct {
	Success  bool          `json:"success"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

type ForgeResult struct {
	Created      bool          `json:"created"`
	Skill        SkillInfo     `json:"skill"`
	Sandbox      SandboxResult `json:"sandbox"`
	UsedFallback bool          `json:"used_fallback"`
}

type HealingStrategy string

const (
	HealSyntaxRepair      HealingStrategy = "syntax_repair"
	HealAPIDiagnosis      HealingStrategy = "api_diagnosis"
	HealBackoffRetry      HealingStrategy = "backoff_retry"
	HealCredentialRefresh HealingStrategy = "credential_refresh"
	HealEscalate          HealingStrategy = "escalate"
)

type FixResult struct {
	Success   bool                   `json:"success"`
	Strategy  HealingStrategy        `json:"strategy"`
	Error     string                 `json:"error,omitempty"`
	NewParams map[string]interface{} `json:"new_params,omitempty"`
}
