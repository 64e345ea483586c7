package specter

import (
	"log/slog"
	"time"

	"github.com/eleven-am/specter/internal/domain"
)

type Config = domain.Config

type LoggingConfig = domain.LoggingConfig

type ExecutionConfig = domain.ExecutionConfig

type RetryConfig = domain.RetryConfig

type CircuitBreakerConfig = domain.CircuitBreakerConfig

type SecurityConfig = domain.SecurityConfig

type SandboxConfig = domain.SandboxConfig

type LLMConfig = domain.LLMConfig

type LLMRoute = domain.LLMRoute

type StorageConfig = domain.StorageConfig

type HTTPConfig = domain.HTTPConfig

type AgentConfig = domain.AgentConfig

func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

func DefaultExecutionConfig() ExecutionConfig {
	return domain.DefaultExecutionConfig()
}

func DefaultRetryConfig() RetryConfig {
	return domain.DefaultRetryConfig()
}

func DefaultSecurityConfig() SecurityConfig {
	return domain.DefaultSecurityConfig()
}

func DefaultSandboxConfig() SandboxConfig {
	return domain.DefaultSandboxConfig()
}

// LoadConfig reads a YAML or JSON file over the defaults.
func LoadConfig(path string) (*Config, error) {
	return domain.LoadConfig(path)
}

// LoadConfigFromEnv loads the file named by SPECTER_CONFIG, if set.
func LoadConfigFromEnv() (*Config, error) {
	return domain.LoadConfigFromEnv()
}

type ConfigBuilder struct {
	config *Config
}

func NewConfigBuilder(name, dataDir string, logger *slog.Logger) *ConfigBuilder {
	return &ConfigBuilder{config: domain.NewConfigFromSimple(name, dataDir, logger)}
}

func (cb *ConfigBuilder) WithInMemoryStorage() *ConfigBuilder {
	cb.config.WithInMemoryStorage()
	return cb
}

func (cb *ConfigBuilder) WithToolPolicy(allowed, blocked []string) *ConfigBuilder {
	cb.config.WithToolPolicy(allowed, blocked)
	return cb
}

func (cb *ConfigBuilder) WithExecution(maxParallel int, nodeTimeout time.Duration) *ConfigBuilder {
	cb.config.WithExecution(maxParallel, nodeTimeout)
	return cb
}

func (cb *ConfigBuilder) WithRetry(maxAttempts int, base, max, jitter time.Duration) *ConfigBuilder {
	cb.config.WithRetry(maxAttempts, base, max, jitter)
	return cb
}

func (cb *ConfigBuilder) WithCircuitBreaker(threshold int, recovery time.Duration) *ConfigBuilder {
	cb.config.WithCircuitBreaker(threshold, recovery)
	return cb
}

func (cb *ConfigBuilder) WithLLMRoutes(routes ...LLMRoute) *ConfigBuilder {
	cb.config.WithLLMRoutes(routes...)
	return cb
}

func (cb *ConfigBuilder) WithSandbox(interpreter string, timeout time.Duration) *ConfigBuilder {
	cb.config.WithSandbox(interpreter, timeout)
	return cb
}

func (cb *ConfigBuilder) WithWorkspaceRoot(root string) *ConfigBuilder {
	cb.config.Security.WorkspaceRoot = root
	return cb
}

func (cb *ConfigBuilder) WithMaxExecutionTime(d time.Duration) *ConfigBuilder {
	cb.config.Security.MaxExecutionTime = d
	return cb
}

func (cb *ConfigBuilder) WithHTTPAddr(addr string) *ConfigBuilder {
	cb.config.HTTP.Addr = addr
	return cb
}

// WithAgent adds or replaces an agent entry. A nil security section makes
// the agent inherit the top-level one.
func (cb *ConfigBuilder) WithAgent(id, role string, security *SecurityConfig) *ConfigBuilder {
	if cb.config.Agents == nil {
		cb.config.Agents = map[string]AgentConfig{}
	}
	agent := cb.config.Agents[id]
	agent.Role = role
	agent.Security = security
	cb.config.Agents[id] = agent
	return cb
}

func (cb *ConfigBuilder) Build() (*Config, error) {
	if err := cb.config.Validate(); err != nil {
		return nil, err
	}
	return cb.config, nil
}
