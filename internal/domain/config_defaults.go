package domain

import (
	"io"
	"log/slog"
	"time"
)

func DefaultConfig() *Config {
	return &Config{
		Name:          "Specter",
		DataDir:       "./data",
		DefaultAgent:  "default",
		DefaultUserID: "local",
		Logging:       DefaultLoggingConfig(),
		Execution:     DefaultExecutionConfig(),
		Security:      DefaultSecurityConfig(),
		Sandbox:       DefaultSandboxConfig(),
		LLM:           DefaultLLMConfig(),
		HTTP:          DefaultHTTPConfig(),
		Agents:        map[string]AgentConfig{},
	}
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
	}
}

func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		MaxParallel:    DefaultMaxParallel,
		NodeTimeout:    DefaultNodeTimeoutSeconds * time.Second,
		IdlePoll:       10 * time.Millisecond,
		Retry:          DefaultRetryConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   400 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		Jitter:      200 * time.Millisecond,
	}
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold: 3,
		Recovery:  30 * time.Second,
	}
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxExecutionTime: 30 * time.Second,
	}
}

func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Interpreter: "python3",
		Timeout:     10 * time.Second,
		MaxOutput:   64 * 1024,
	}
}

func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Temperature: 0.2,
	}
}

func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
}

func NewConfigFromSimple(name, dataDir string, logger *slog.Logger) *Config {
	config := DefaultConfig()
	config.Name = name
	config.DataDir = dataDir
	config.Logger = logger

	if logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return config
}

func (c *Config) WithInMemoryStorage() *Config {
	c.Storage.InMemory = true
	return c
}

func (c *Config) WithToolPolicy(allowed, blocked []string) *Config {
	c.Security.AllowedTools = allowed
	c.Security.BlockedTools = blocked
	return c
}

func (c *Config) WithExecution(maxParallel int, nodeTimeout time.Duration) *Config {
	c.Execution.MaxParallel = maxParallel
	c.Execution.NodeTimeout = nodeTimeout
	return c
}

func (c *Config) WithRetry(maxAttempts int, base, max, jitter time.Duration) *Config {
	c.Execution.Retry = RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		MaxDelay:    max,
		Jitter:      jitter,
	}
	return c
}

func (c *Config) WithCircuitBreaker(threshold int, recovery time.Duration) *Config {
	c.Execution.CircuitBreaker = CircuitBreakerConfig{
		Threshold: threshold,
		Recovery:  recovery,
	}
	return c
}

func (c *Config) WithLLMRoutes(routes ...LLMRoute) *Config {
	c.LLM.Routes = append(c.LLM.Routes, routes...)
	return c
}

func (c *Config) WithSandbox(interpreter string, timeout time.Duration) *Config {
	c.Sandbox.Interpreter = interpreter
	c.Sandbox.Timeout = timeout
	return c
}
