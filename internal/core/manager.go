package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/specter/internal/domain"
)

// Manager owns one Runtime per agent, created on first use.
type Manager struct {
	config *domain.Config
	logger *slog.Logger
	opts   []RuntimeOption

	mu       sync.Mutex
	runtimes map[string]*Runtime
}

func NewManager(config *domain.Config, opts ...RuntimeOption) *Manager {
	if config == nil {
		config = domain.DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		config:   config,
		logger:   logger.With("component", "agent-manager"),
		opts:     opts,
		runtimes: make(map[string]*Runtime),
	}
}

func (m *Manager) Config() *domain.Config {
	return m.config
}

// Start creates the runtime of every configured agent, or of the default
// agent when none are configured.
func (m *Manager) Start(ctx context.Context) error {
	ids := m.configuredAgents()
	for _, id := range ids {
		if _, err := m.Agent(ctx, id); err != nil {
			return err
		}
	}
	m.logger.Info("agents started", "agents", ids)
	return nil
}

func (m *Manager) configuredAgents() []string {
	if len(m.config.Agents) == 0 {
		return []string{m.config.DefaultAgent}
	}
	ids := make([]string, 0, len(m.config.Agents))
	for id := range m.config.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Agent returns the runtime for agentID, building it on first use. An empty
// id selects the default agent.
func (m *Manager) Agent(ctx context.Context, agentID string) (*Runtime, error) {
	if agentID == "" {
		agentID = m.config.DefaultAgent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rt, ok := m.runtimes[agentID]; ok {
		return rt, nil
	}

	rt, err := NewRuntime(ctx, m.config, agentID, m.opts...)
	if err != nil {
		m.logger.Error("failed to build agent runtime", "agent_id", agentID, "error", err)
		return nil, err
	}
	m.runtimes[agentID] = rt
	return rt, nil
}

// AgentForRole returns the runtime of the first agent configured with role.
func (m *Manager) AgentForRole(ctx context.Context, role string) (*Runtime, error) {
	id, ok := m.config.AgentByRole(role)
	if !ok {
		return nil, fmt.Errorf("%w: no agent with role %q", domain.ErrNotFound, role)
	}
	return m.Agent(ctx, id)
}

func (m *Manager) Agents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, rt := range m.runtimes {
		if err := rt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close agent %s: %w", id, err))
		}
		delete(m.runtimes, id)
	}
	return errors.Join(errs...)
}
