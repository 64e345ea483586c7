package domain

import (
	"fmt"
	"time"
)

type NodeType string

const (
	NodeTypeTool         NodeType = "tool"
	NodeTypeLLM          NodeType = "llm"
	NodeTypeCondition    NodeType = "condition"
	NodeTypeHumanConfirm NodeType = "human_confirm"
)

func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeTool, NodeTypeLLM, NodeTypeCondition, NodeTypeHumanConfirm:
		return true
	default:
		return false
	}
}

type ErrorStrategy string

const (
	StrategyRetry  ErrorStrategy = "retry"
	StrategyHeal   ErrorStrategy = "heal"
	StrategyReport ErrorStrategy = "report"
)

const (
	DefaultNodeTimeoutSeconds = 30
	DefaultMaxParallel        = 10
)

type NodeSpec struct {
	ToolName  string                 `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Prompt    string                 `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Condition string                 `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Node is one unit of work in an execution graph.
type Node struct {
	ID             string        `json:"id" yaml:"id"`
	Type           NodeType      `json:"type" yaml:"type"`
	Spec           NodeSpec      `json:"spec" yaml:"spec"`
	Deps           []string      `json:"deps,omitempty" yaml:"deps,omitempty"`
	ErrorStrategy  ErrorStrategy `json:"error_strategy,omitempty" yaml:"error_strategy,omitempty"`
	TimeoutSeconds int           `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	StreamOutput   bool          `json:"stream_output,omitempty" yaml:"stream_output,omitempty"`
}

func (n Node) Strategy() ErrorStrategy {
	if n.ErrorStrategy == "" {
		return StrategyRetry
	}
	return n.ErrorStrategy
}

func (n Node) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return DefaultNodeTimeoutSeconds * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

type ExecutionPlan struct {
	IntentSummary string  `json:"intent_summary"`
	Confidence    float64 `json:"confidence"`
	Nodes         []Node  `json:"nodes"`
}

// ExecutionGraph is read-only once handed to the executor.
type ExecutionGraph struct {
	Nodes       []Node `json:"nodes"`
	MaxParallel int    `json:"max_parallel"`
}

func NewExecutionGraph(nodes []Node, maxParallel int) *ExecutionGraph {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &ExecutionGraph{
		Nodes:       nodes,
		MaxParallel: maxParallel,
	}
}

func (g *ExecutionGraph) Parallelism() int {
	if g.MaxParallel <= 0 {
		return DefaultMaxParallel
	}
	return g.MaxParallel
}

func (g *ExecutionGraph) NodeByID() map[string]Node {
	byID := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	return byID
}

// AssignNodeIDs fills empty ids with node_<position>, counting from 1.
func AssignNodeIDs(nodes []Node) {
	for i := range nodes {
		if nodes[i].ID == "" {
			nodes[i].ID = fmt.Sprintf("node_%d", i+1)
		}
	}
}

// Validate checks id uniqueness, node types, dependency references, tool
// names and acyclicity, in that order.
func (g *ExecutionGraph) Validate() error {
	seen := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return &GraphValidationError{Reason: "node id cannot be empty"}
		}
		if _, dup := seen[n.ID]; dup {
			return &GraphValidationError{NodeID: n.ID, Reason: "duplicate node id"}
		}
		seen[n.ID] = struct{}{}
	}

	for _, n := range g.Nodes {
		if !n.Type.Valid() {
			return &GraphValidationError{NodeID: n.ID, Reason: fmt.Sprintf("invalid node type %q", n.Type)}
		}
	}

	for _, n := range g.Nodes {
		for _, dep := range n.Deps {
			if _, ok := seen[dep]; !ok {
				return &GraphValidationError{NodeID: n.ID, Reason: fmt.Sprintf("unknown dependency %q", dep)}
			}
		}
	}

	for _, n := range g.Nodes {
		if n.Type == NodeTypeTool && n.Spec.ToolName == "" {
			return &GraphValidationError{NodeID: n.ID, Reason: "tool node requires a tool name"}
		}
	}

	if id, cyclic := g.findCycle(); cyclic {
		return &GraphValidationError{NodeID: id, Reason: "dependency cycle detected"}
	}
	return nil
}

func (g *ExecutionGraph) findCycle() (string, bool) {
	byID := g.NodeByID()
	visited := make(map[string]bool, len(g.Nodes))
	onStack := make(map[string]bool, len(g.Nodes))

	var visit func(id string) (string, bool)
	visit = func(id string) (string, bool) {
		visited[id] = true
		onStack[id] = true
		for _, dep := range byID[id].Deps {
			if onStack[dep] {
				return dep, true
			}
			if !visited[dep] {
				if at, cyclic := visit(dep); cyclic {
					return at, true
				}
			}
		}
		onStack[id] = false
		return "", false
	}

	for _, n := range g.Nodes {
		if visited[n.ID] {
			continue
		}
		if at, cyclic := visit(n.ID); cyclic {
			return at, true
		}
	}
	return "", false
}

// TopologicalSort returns nodes so that every node follows its dependencies.
// Ties keep declaration order.
func (g *ExecutionGraph) TopologicalSort() ([]Node, error) {
	indegree := make(map[string]int, len(g.Nodes))
	dependents := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n.ID] += 0
		for _, dep := range n.Deps {
			indegree[n.ID]++
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	byID := g.NodeByID()
	queue := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	ordered := make([]Node, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byID[id])
		for _, child := range dependents[id] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(ordered) != len(g.Nodes) {
		return nil, &GraphValidationError{Reason: "dependency cycle detected"}
	}
	return ordered, nil
}
