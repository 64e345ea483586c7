package domain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "default", cfg.DefaultAgent)
	assert.Equal(t, DefaultMaxParallel, cfg.Execution.MaxParallel)
	assert.Equal(t, 3, cfg.Execution.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Security.MaxExecutionTime)
	assert.Equal(t, "python3", cfg.Sandbox.Interpreter)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero parallelism", func(c *Config) { c.Execution.MaxParallel = 0 }},
		{"zero node timeout", func(c *Config) { c.Execution.NodeTimeout = 0 }},
		{"zero attempts", func(c *Config) { c.WithRetry(0, 0, 0, 0) }},
		{"negative delay", func(c *Config) { c.WithRetry(1, -time.Second, 0, 0) }},
		{"zero threshold", func(c *Config) { c.WithCircuitBreaker(0, time.Second) }},
		{"no interpreter", func(c *Config) { c.WithSandbox("", time.Second) }},
		{"no sandbox timeout", func(c *Config) { c.WithSandbox("python3", 0) }},
		{"route without model", func(c *Config) { c.WithLLMRoutes(LLMRoute{Provider: "openai"}) }},
		{"no storage location", func(c *Config) { c.DataDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsInvalidConfig(err))
		})
	}

	cfg := DefaultConfig().WithInMemoryStorage()
	cfg.DataDir = ""
	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromSimple(t *testing.T) {
	cfg := NewConfigFromSimple("agent", "/tmp/specter", nil)
	assert.Equal(t, "agent", cfg.Name)
	assert.Equal(t, "/tmp/specter", cfg.DataDir)
	require.NotNil(t, cfg.Logger)

	cfg.WithExecution(4, time.Second).WithToolPolicy([]string{"calculator"}, []string{"file_write"})
	assert.Equal(t, 4, cfg.Execution.MaxParallel)
	assert.Equal(t, time.Second, cfg.Execution.NodeTimeout)
	assert.Equal(t, []string{"calculator"}, cfg.Security.AllowedTools)
	assert.Equal(t, []string{"file_write"}, cfg.Security.BlockedTools)
}

func TestConfig_AgentResolution(t *testing.T) {
	cfg := NewConfigFromSimple("x", "/data", nil)
	strict := SecurityConfig{BlockedTools: []string{"web_fetch"}}
	cfg.Agents = map[string]AgentConfig{
		"research": {Role: "researcher", Security: &strict},
		"ops":      {DBPath: "/var/ops.db"},
	}

	assert.Equal(t, strict, cfg.AgentSecurity("research"))
	assert.Equal(t, cfg.Security, cfg.AgentSecurity("ops"))
	assert.Equal(t, cfg.Security, cfg.AgentSecurity("missing"))

	assert.Equal(t, "/var/ops.db", cfg.AgentStorePath("ops"))
	assert.Equal(t, filepath.Join("/data", "specter_research"), cfg.AgentStorePath("research"))

	cfg.Storage.Path = "/custom"
	assert.Equal(t, "/custom", cfg.AgentStorePath("default"))
	assert.Equal(t, filepath.Join("/data", "specter_research"), cfg.AgentStorePath("research"))

	id, ok := cfg.AgentByRole("researcher")
	assert.True(t, ok)
	assert.Equal(t, "research", id)
	_, ok = cfg.AgentByRole("nobody")
	assert.False(t, ok)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: ops
execution:
  max_parallel: 4
  node_timeout: 5s
security:
  blocked_tools: [file_write]
llm:
  routes:
    - provider: ollama
      model: llama3
      priority: 1
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.Name)
	assert.Equal(t, 4, cfg.Execution.MaxParallel)
	assert.Equal(t, 5*time.Second, cfg.Execution.NodeTimeout)
	assert.Equal(t, []string{"file_write"}, cfg.Security.BlockedTools)
	require.Len(t, cfg.LLM.Routes, 1)
	assert.Equal(t, "llama3", cfg.LLM.Routes[0].Model)

	// untouched sections keep their defaults
	assert.Equal(t, DefaultRetryConfig(), cfg.Execution.Retry)
	assert.Equal(t, "python3", cfg.Sandbox.Interpreter)
}

func TestLoadConfig_Rejects(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("nmae: typo\n"), 0o600))
	_, err := LoadConfig(unknown)
	assert.True(t, IsInvalidConfig(err))

	multi := filepath.Join(dir, "multi.yaml")
	require.NoError(t, os.WriteFile(multi, []byte("name: a\n---\nname: b\n"), 0o600))
	_, err = LoadConfig(multi)
	assert.True(t, IsInvalidConfig(err))

	jsonUnknown := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(jsonUnknown, []byte(`{"bogus": true}`), 0o600))
	_, err = LoadConfig(jsonUnknown)
	assert.True(t, IsInvalidConfig(err))

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"sandbox": {"interpreter": "sh", "timeout": -1}}`), 0o600))
	_, err = LoadConfig(invalid)
	assert.True(t, IsInvalidConfig(err))

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
	assert.False(t, IsInvalidConfig(err))
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "Specter", cfg.Name)

	path := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "from-env"}`), 0o600))
	t.Setenv(ConfigPathEnv, path)
	cfg, err = LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Name)
}
