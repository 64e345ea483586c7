package domain

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

type Config struct {
	Name          string                 `json:"name" yaml:"name"`
	DataDir       string                 `json:"data_dir" yaml:"data_dir"`
	DefaultAgent  string                 `json:"default_agent" yaml:"default_agent"`
	DefaultUserID string                 `json:"default_user_id" yaml:"default_user_id"`
	Logging       LoggingConfig          `json:"logging" yaml:"logging"`
	Execution     ExecutionConfig        `json:"execution" yaml:"execution"`
	Security      SecurityConfig         `json:"security" yaml:"security"`
	Sandbox       SandboxConfig          `json:"sandbox" yaml:"sandbox"`
	LLM           LLMConfig              `json:"llm" yaml:"llm"`
	Storage       StorageConfig          `json:"storage" yaml:"storage"`
	HTTP          HTTPConfig             `json:"http" yaml:"http"`
	Agents        map[string]AgentConfig `json:"agents,omitempty" yaml:"agents,omitempty"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type ExecutionConfig struct {
	MaxParallel    int                  `json:"max_parallel" yaml:"max_parallel"`
	NodeTimeout    time.Duration        `json:"node_timeout" yaml:"node_timeout"`
	IdlePoll       time.Duration        `json:"idle_poll" yaml:"idle_poll"`
	Retry          RetryConfig          `json:"retry" yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay" yaml:"max_delay"`
	Jitter      time.Duration `json:"jitter" yaml:"jitter"`
}

type CircuitBreakerConfig struct {
	Threshold int           `json:"threshold" yaml:"threshold"`
	Recovery  time.Duration `json:"recovery" yaml:"recovery"`
}

type SecurityConfig struct {
	AllowedTools     []string      `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"`
	BlockedTools     []string      `json:"blocked_tools,omitempty" yaml:"blocked_tools,omitempty"`
	MaxExecutionTime time.Duration `json:"max_execution_time" yaml:"max_execution_time"`
	WorkspaceRoot    string        `json:"workspace_root,omitempty" yaml:"workspace_root,omitempty"`
}

type SandboxConfig struct {
	Interpreter string        `json:"interpreter" yaml:"interpreter"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	TempDir     string        `json:"temp_dir,omitempty" yaml:"temp_dir,omitempty"`
	MaxOutput   int           `json:"max_output" yaml:"max_output"`
}

type LLMConfig struct {
	Routes      []LLMRoute `json:"routes,omitempty" yaml:"routes,omitempty"`
	Temperature float64    `json:"temperature" yaml:"temperature"`
}

type LLMRoute struct {
	Provider          string        `json:"provider" yaml:"provider"`
	Model             string        `json:"model" yaml:"model"`
	Priority          int           `json:"priority" yaml:"priority"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	BaseURL           string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKeyEnv         string        `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	RequestsPerSecond float64       `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
}

type StorageConfig struct {
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	InMemory bool   `json:"in_memory" yaml:"in_memory"`
}

type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

type AgentConfig struct {
	DBPath   string          `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Role     string          `json:"role,omitempty" yaml:"role,omitempty"`
	Security *SecurityConfig `json:"security,omitempty" yaml:"security,omitempty"`
}

func (c *Config) Validate() error {
	if c.Execution.MaxParallel <= 0 {
		return fmt.Errorf("%w: execution.max_parallel must be positive", ErrInvalidConfig)
	}
	if c.Execution.NodeTimeout <= 0 {
		return fmt.Errorf("%w: execution.node_timeout must be positive", ErrInvalidConfig)
	}
	if c.Execution.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: execution.retry.max_attempts must be positive", ErrInvalidConfig)
	}
	if c.Execution.Retry.BaseDelay < 0 || c.Execution.Retry.MaxDelay < 0 || c.Execution.Retry.Jitter < 0 {
		return fmt.Errorf("%w: retry delays cannot be negative", ErrInvalidConfig)
	}
	if c.Execution.CircuitBreaker.Threshold <= 0 {
		return fmt.Errorf("%w: execution.circuit_breaker.threshold must be positive", ErrInvalidConfig)
	}
	if c.Sandbox.Interpreter == "" {
		return fmt.Errorf("%w: sandbox.interpreter is required", ErrInvalidConfig)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("%w: sandbox.timeout must be positive", ErrInvalidConfig)
	}
	for i, route := range c.LLM.Routes {
		if route.Provider == "" || route.Model == "" {
			return fmt.Errorf("%w: llm.routes[%d] needs provider and model", ErrInvalidConfig, i)
		}
	}
	if !c.Storage.InMemory && c.DataDir == "" && c.Storage.Path == "" {
		return fmt.Errorf("%w: data_dir or storage.path is required", ErrInvalidConfig)
	}
	return nil
}

// AgentSecurity returns the security section that applies to agentID.
func (c *Config) AgentSecurity(agentID string) SecurityConfig {
	if agent, ok := c.Agents[agentID]; ok && agent.Security != nil {
		return *agent.Security
	}
	return c.Security
}

// AgentStorePath resolves the badger directory for agentID.
func (c *Config) AgentStorePath(agentID string) string {
	if agent, ok := c.Agents[agentID]; ok && agent.DBPath != "" {
		return agent.DBPath
	}
	if c.Storage.Path != "" && agentID == c.DefaultAgent {
		return c.Storage.Path
	}
	return filepath.Join(c.DataDir, "specter_"+agentID)
}

// AgentByRole returns the first agent configured with role.
func (c *Config) AgentByRole(role string) (string, bool) {
	for id, agent := range c.Agents {
		if agent.Role == role {
			return id, true
		}
	}
	return "", false
}
