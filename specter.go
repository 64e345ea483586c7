// Package specter provides an execution runtime for autonomous agents.
//
// A request in natural language is compiled into an execution graph of tool,
// LLM, condition and confirmation nodes, which is then run with bounded
// parallelism. Tool calls go through a policy-checked registry with retries
// and per-tool circuit breakers, failures can be healed, and every run is
// persisted together with its audit trail. New tools can be forged from a
// description and validated in a sandbox before they are registered.
//
// Basic usage:
//
//	manager := specter.New("assistant", "./data", logger)
//	if err := manager.Start(ctx); err != nil {
//	    return err
//	}
//	defer manager.Close()
//
//	agent, err := manager.Agent(ctx, "")
//	if err != nil {
//	    return err
//	}
//	outcome, err := agent.Run(ctx, specter.RunRequest{Text: "what is 2 + 2 * 3"}, nil)
package specter

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/specter/internal/adapters/events"
	"github.com/eleven-am/specter/internal/api"
	"github.com/eleven-am/specter/internal/core"
	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
)

// Manager owns one runtime per configured agent.
type Manager = core.Manager

// Runtime is a single agent: its store, tool registry, compiler and executor.
type Runtime = core.Runtime

// RuntimeOption customises how each agent runtime is built.
type RuntimeOption = core.RuntimeOption

// RunRequest is a natural language request submitted to an agent.
type RunRequest = core.RunRequest

// RunOutcome carries the execution id, the compiled graph and its result.
type RunOutcome = core.RunOutcome

// EventCollector is a StreamCallback that buffers every event it receives.
type EventCollector = core.EventCollector

// CollectedEvent is one event buffered by an EventCollector.
type CollectedEvent = core.CollectedEvent

// Server exposes a Manager over HTTP.
type Server = api.Server

// StreamCallback receives node progress while a graph executes.
type StreamCallback = ports.StreamCallback

// GenerationPort is the text generation backend used for planning, LLM
// nodes and skill forging.
type GenerationPort = ports.GenerationPort

// SandboxPort validates forged code before it is registered.
type SandboxPort = ports.SandboxPort

// HealerPort attempts to repair a failed node.
type HealerPort = ports.HealerPort

// StorePort persists executions, audit events and skills.
type StorePort = ports.StorePort

// Event is a message published on an agent's event bus.
type Event = ports.Event

// EventHandler receives events from Subscribe.
type EventHandler = ports.EventHandler

// ToolFunc is the signature every registered tool implements.
type ToolFunc = ports.ToolFunc

// Graph model

type Node = domain.Node
type NodeSpec = domain.NodeSpec
type NodeType = domain.NodeType
type ErrorStrategy = domain.ErrorStrategy
type ExecutionGraph = domain.ExecutionGraph
type ExecutionPlan = domain.ExecutionPlan

const (
	NodeTypeTool         = domain.NodeTypeTool
	NodeTypeLLM          = domain.NodeTypeLLM
	NodeTypeCondition    = domain.NodeTypeCondition
	NodeTypeHumanConfirm = domain.NodeTypeHumanConfirm

	StrategyRetry  = domain.StrategyRetry
	StrategyHeal   = domain.StrategyHeal
	StrategyReport = domain.StrategyReport
)

// Results and records

type NodeStatus = domain.NodeStatus
type NodeResult = domain.NodeResult
type RunResult = domain.RunResult
type Progress = domain.Progress
type ExecutionRecord = domain.ExecutionRecord
type ExecutionSummary = domain.ExecutionSummary
type ExecutionStatus = domain.ExecutionStatus
type AuditEvent = domain.AuditEvent
type ToolSpec = domain.ToolSpec
type ToolResult = domain.ToolResult
type SkillRecord = domain.SkillRecord
type ForgeExample = domain.ForgeExample
type ForgeResult = domain.ForgeResult
type FixResult = domain.FixResult

const (
	ExecutionRunning   = domain.ExecutionRunning
	ExecutionCompleted = domain.ExecutionCompleted
	ExecutionFailed    = domain.ExecutionFailed
	ExecutionReplaying = domain.ExecutionReplaying
	ExecutionHealing   = domain.ExecutionHealing
)

// Event topics published on each agent's bus.
const (
	TopicExecutionStarted  = events.TopicExecutionStarted
	TopicExecutionFinished = events.TopicExecutionFinished
	TopicNodeStarted       = events.TopicNodeStarted
	TopicNodeOutput        = events.TopicNodeOutput
	TopicNodeError         = events.TopicNodeError
	TopicHealingFailed     = events.TopicHealingFailed
	TopicAuditPrefix       = events.TopicAuditPrefix
)

// New creates a manager with default settings, keeping its data under dataDir.
func New(name, dataDir string, logger *slog.Logger, opts ...RuntimeOption) *Manager {
	return core.NewManager(domain.NewConfigFromSimple(name, dataDir, logger), opts...)
}

// NewWithConfig creates a manager from a complete configuration. Use
// NewConfigBuilder or LoadConfig to produce one.
func NewWithConfig(config *Config, opts ...RuntimeOption) *Manager {
	return core.NewManager(config, opts...)
}

// NewServer wraps manager in the HTTP API described by config.HTTP.
func NewServer(manager *Manager, config *Config) *Server {
	return api.NewServer(manager, config.HTTP, config.Logger)
}

func WithStore(store StorePort) RuntimeOption {
	return core.WithStore(store)
}

func WithGenerator(generator GenerationPort) RuntimeOption {
	return core.WithGenerator(generator)
}

func WithSandbox(sandbox SandboxPort) RuntimeOption {
	return core.WithSandbox(sandbox)
}

func WithHealer(healer HealerPort) RuntimeOption {
	return core.WithHealer(healer)
}

// WithBackoffHealing lets the built-in healer rerun a node that hit a rate
// limit after waiting delay.
func WithBackoffHealing(delay time.Duration) RuntimeOption {
	return core.WithBackoffHealing(delay)
}

// WithHTTPClient sets the client used by the web tools and, when searchURL
// is not empty, the search endpoint.
func WithHTTPClient(client *http.Client, searchURL string) RuntimeOption {
	return core.WithHTTPClient(client, searchURL)
}

func NewEventCollector() *EventCollector {
	return core.NewEventCollector()
}

// KindOf reports the failure category of err, such as "timeout" or "permission".
func KindOf(err error) domain.ErrorKind {
	return domain.KindOf(err)
}

var (
	ErrNotFound         = domain.ErrNotFound
	ErrInvalidConfig    = domain.ErrInvalidConfig
	ErrInvalidInput     = domain.ErrInvalidInput
	ErrUnknownTool      = domain.ErrUnknownTool
	ErrCircuitOpen      = domain.ErrCircuitOpen
	ErrPermissionDenied = domain.ErrPermissionDenied
	ErrInvalidGraph     = domain.ErrInvalidGraph
	ErrDependencyFailed = domain.ErrDependencyFailed
)
