package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/specter/internal/adapters/policy"
	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
	"github.com/eleven-am/specter/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type toolFunc func(ctx context.Context, name string, params map[string]interface{}) (interface{}, error)

func (f toolFunc) Execute(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	return f(ctx, name, params)
}

type recordingCallback struct {
	mu            sync.Mutex
	started       []string
	outputs       map[string]interface{}
	errors        map[string]error
	healingFailed map[string]domain.FixResult
	completed     []*domain.RunResult
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{
		outputs:       map[string]interface{}{},
		errors:        map[string]error{},
		healingFailed: map[string]domain.FixResult{},
	}
}

func (c *recordingCallback) OnNodeStart(_ context.Context, node domain.Node, _ domain.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, node.ID)
}

func (c *recordingCallback) OnNodeOutput(_ context.Context, node domain.Node, output interface{}, _ domain.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[node.ID] = output
}

func (c *recordingCallback) OnNodeError(_ context.Context, node domain.Node, err error, _ domain.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[node.ID] = err
}

func (c *recordingCallback) OnHealingFailed(_ context.Context, node domain.Node, fix domain.FixResult, _ domain.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healingFailed[node.ID] = fix
}

func (c *recordingCallback) OnComplete(_ context.Context, result *domain.RunResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, result)
}

func toolNode(id, tool string, deps ...string) domain.Node {
	return domain.Node{
		ID:            id,
		Type:          domain.NodeTypeTool,
		Spec:          domain.NodeSpec{ToolName: tool},
		Deps:          deps,
		ErrorStrategy: domain.StrategyReport,
	}
}

func TestExecutor_RespectsDependencies(t *testing.T) {
	var mu sync.Mutex
	var order []string
	tools := toolFunc(func(_ context.Context, name string, _ map[string]interface{}) (interface{}, error) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return name, nil
	})

	graph := domain.NewExecutionGraph([]domain.Node{
		toolNode("d", "d", "b", "c"),
		toolNode("b", "b", "a"),
		toolNode("c", "c", "a"),
		toolNode("a", "a"),
	}, 4)

	cb := newRecordingCallback()
	result, err := NewExecutor(tools, nil).Execute(context.Background(), graph, cb)
	require.NoError(t, err)

	require.Len(t, order, 4)
	assert.Equal(t, "a", order[0])
	assert.Equal(t, "d", order[3])
	assert.Equal(t, domain.Progress{Total: 4, Completed: 4}, result.Progress)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "d", result.Results["d"].Output)
	require.Len(t, cb.completed, 1)
	assert.Same(t, result, cb.completed[0])
}

func TestExecutor_BoundsParallelism(t *testing.T) {
	var running, peak int32
	tools := toolFunc(func(context.Context, string, map[string]interface{}) (interface{}, error) {
		now := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	})

	var nodes []domain.Node
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5", "n6"} {
		nodes = append(nodes, toolNode(id, "sleep"))
	}

	result, err := NewExecutor(tools, nil).Execute(context.Background(), domain.NewExecutionGraph(nodes, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Progress.Completed)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

func TestReadyNodes_QueuesUntilSlotAcquired(t *testing.T) {
	graph := domain.NewExecutionGraph([]domain.Node{
		toolNode("a", "t"),
		toolNode("b", "t"),
		toolNode("c", "t"),
		toolNode("d", "t", "a"),
	}, 1)
	state := &run{
		graph:  graph,
		order:  graph.Nodes,
		status: map[string]domain.NodeStatus{},
		queued: map[string]bool{},
	}
	for _, n := range graph.Nodes {
		state.status[n.ID] = domain.NodeStatusPending
	}

	e := NewExecutor(toolFunc(nil), nil)
	ready, done := e.readyNodes(state)
	require.False(t, done)
	require.Len(t, ready, 3)

	running := func() int {
		n := 0
		for _, st := range state.status {
			if st == domain.NodeStatusRunning {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 0, running())

	again, done := e.readyNodes(state)
	assert.Empty(t, again)
	assert.False(t, done)

	state.start("a")
	assert.Equal(t, 1, running())
	assert.Equal(t, domain.NodeStatusPending, state.status["b"])
	assert.False(t, state.queued["a"])
	assert.True(t, state.queued["b"])
}

func TestExecutor_RetryStrategy(t *testing.T) {
	t.Run("second attempt succeeds", func(t *testing.T) {
		var calls int32
		tools := toolFunc(func(context.Context, string, map[string]interface{}) (interface{}, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, errors.New("flaky")
			}
			return "ok", nil
		})
		node := toolNode("a", "flaky")
		node.ErrorStrategy = domain.StrategyRetry

		cb := newRecordingCallback()
		result, err := NewExecutor(tools, nil).Execute(context.Background(), domain.NewExecutionGraph([]domain.Node{node}, 1), cb)
		require.NoError(t, err)

		res := result.Results["a"]
		assert.Equal(t, domain.NodeStatusCompleted, res.Status)
		assert.Equal(t, "ok", res.Output)
		assert.Equal(t, 2, res.Attempts)
		assert.Empty(t, cb.errors)
	})

	t.Run("exactly one extra attempt", func(t *testing.T) {
		var calls int32
		tools := toolFunc(func(context.Context, string, map[string]interface{}) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("down")
		})
		node := toolNode("a", "down")
		node.ErrorStrategy = ""

		cb := newRecordingCallback()
		result, err := NewExecutor(tools, nil).Execute(context.Background(), domain.NewExecutionGraph([]domain.Node{node}, 1), cb)
		require.NoError(t, err)

		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		assert.Equal(t, domain.NodeStatusFailed, result.Results["a"].Status)
		assert.Equal(t, 0, result.Progress.Completed)
		assert.Contains(t, cb.errors, "a")
	})
}

func TestExecutor_ReportStrategyFailsOnce(t *testing.T) {
	var calls int32
	tools := toolFunc(func(context.Context, string, map[string]interface{}) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("nope")
	})

	cb := newRecordingCallback()
	result, err := NewExecutor(tools, nil).Execute(context.Background(),
		domain.NewExecutionGraph([]domain.Node{toolNode("a", "x")}, 1), cb)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "nope", result.Results["a"].Error)
	assert.EqualError(t, cb.errors["a"], "nope")
}

func TestExecutor_HealStrategy(t *testing.T) {
	t.Run("healed params rerun", func(t *testing.T) {
		healer := mocks.NewMockHealerPort(t)
		tools := toolFunc(func(_ context.Context, _ string, params map[string]interface{}) (interface{}, error) {
			if params["q"] == "fixed" {
				return "healed output", nil
			}
			return nil, domain.NewKindError(domain.KindSyntax, "parse", errors.New("bad query"))
		})
		node := toolNode("a", "search")
		node.ErrorStrategy = domain.StrategyHeal
		node.Spec.Params = map[string]interface{}{"q": "broken"}

		healer.On("AttemptFix", mock.Anything, node, mock.Anything).Return(domain.FixResult{
			Success:   true,
			Strategy:  domain.HealSyntaxRepair,
			NewParams: map[string]interface{}{"q": "fixed"},
		}).Once()

		cb := newRecordingCallback()
		result, err := NewExecutor(tools, nil, WithHealer(healer)).Execute(context.Background(), domain.NewExecutionGraph([]domain.Node{node}, 1), cb)
		require.NoError(t, err)

		res := result.Results["a"]
		assert.Equal(t, domain.NodeStatusCompleted, res.Status)
		assert.True(t, res.Healed)
		assert.Equal(t, "healed output", res.Output)
		assert.Equal(t, 1, result.Progress.Completed)
		assert.Empty(t, cb.healingFailed)
	})

	t.Run("healing failure is reported", func(t *testing.T) {
		healer := mocks.NewMockHealerPort(t)
		tools := toolFunc(func(context.Context, string, map[string]interface{}) (interface{}, error) {
			return nil, errors.New("mystery")
		})
		node := toolNode("a", "x")
		node.ErrorStrategy = domain.StrategyHeal

		fix := domain.FixResult{Success: false, Strategy: domain.HealEscalate, Error: "mystery"}
		healer.On("AttemptFix", mock.Anything, node, mock.Anything).Return(fix).Once()

		cb := newRecordingCallback()
		result, err := NewExecutor(tools, nil, WithHealer(healer)).Execute(context.Background(), domain.NewExecutionGraph([]domain.Node{node}, 1), cb)
		require.NoError(t, err)

		assert.Equal(t, domain.NodeStatusFailed, result.Results["a"].Status)
		assert.Equal(t, fix, cb.healingFailed["a"])
		assert.NotContains(t, cb.errors, "a")
	})
}

func TestExecutor_FailedDependencySkipsDescendants(t *testing.T) {
	var mu sync.Mutex
	called := map[string]bool{}
	tools := toolFunc(func(_ context.Context, name string, _ map[string]interface{}) (interface{}, error) {
		mu.Lock()
		called[name] = true
		mu.Unlock()
		if name == "a" {
			return nil, errors.New("a broke")
		}
		return name, nil
	})

	graph := domain.NewExecutionGraph([]domain.Node{
		toolNode("a", "a"),
		toolNode("b", "b", "a"),
		toolNode("c", "c", "b"),
		toolNode("d", "d"),
	}, 1)

	cb := newRecordingCallback()
	result, err := NewExecutor(tools, nil).Execute(context.Background(), graph, cb)
	require.NoError(t, err)

	assert.False(t, called["b"])
	assert.False(t, called["c"])
	assert.True(t, called["d"])

	for _, id := range []string{"b", "c"} {
		res := result.Results[id]
		assert.Equal(t, domain.NodeStatusFailed, res.Status, id)
		assert.ErrorIs(t, res.Err, domain.ErrDependencyFailed, id)
		assert.Equal(t, domain.KindDependency, res.Kind, id)
		assert.Contains(t, cb.errors, id)
	}
	assert.Equal(t, domain.NodeStatusCompleted, result.Results["d"].Status)
	assert.Equal(t, domain.Progress{Total: 4, Completed: 1}, result.Progress)
	assert.ElementsMatch(t, []string{"a", "d"}, cb.started)
}

func TestExecutor_PolicyBlockAuditsOnce(t *testing.T) {
	var toolCalls int32
	tools := toolFunc(func(context.Context, string, map[string]interface{}) (interface{}, error) {
		atomic.AddInt32(&toolCalls, 1)
		return nil, nil
	})

	var audits []string
	ctx := ports.ContextWithAudit(context.Background(), func(_ context.Context, action string, details map[string]interface{}) {
		audits = append(audits, action+":"+details["tool"].(string))
	})

	node := toolNode("w", "file_write")
	node.ErrorStrategy = domain.StrategyRetry

	cb := newRecordingCallback()
	exec := NewExecutor(tools, nil, WithPolicy(policy.New(nil, []string{"file_write"}, nil)))
	result, err := exec.Execute(ctx, domain.NewExecutionGraph([]domain.Node{node}, 1), cb)
	require.NoError(t, err)

	assert.Equal(t, int32(0), atomic.LoadInt32(&toolCalls))
	assert.Equal(t, []string{"policy_block:file_write"}, audits)
	assert.Equal(t, domain.KindPermission, result.Results["w"].Kind)
	assert.Equal(t, 1, result.Results["w"].Attempts)
	assert.True(t, domain.IsPermission(cb.errors["w"]))
}

func TestExecutor_NodeTimeout(t *testing.T) {
	tools := toolFunc(func(ctx context.Context, _ string, _ map[string]interface{}) (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return "late", nil
		}
	})

	exec := NewExecutor(tools, nil, WithNodeTimeout(30*time.Millisecond))
	result, err := exec.Execute(context.Background(), domain.NewExecutionGraph([]domain.Node{toolNode("slow", "slow")}, 1), nil)
	require.NoError(t, err)

	res := result.Results["slow"]
	assert.Equal(t, domain.NodeStatusFailed, res.Status)
	assert.Equal(t, domain.KindTimeout, res.Kind)
	assert.True(t, domain.IsTimeout(res.Err))
	assert.Equal(t, int64(1), exec.Metrics().Timeouts)
}

func TestExecutor_TimeoutFreesSlotForUncooperativeTool(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	tools := toolFunc(func(_ context.Context, name string, _ map[string]interface{}) (interface{}, error) {
		if name == "stuck" {
			<-release
			return "late", nil
		}
		return name, nil
	})

	graph := domain.NewExecutionGraph([]domain.Node{toolNode("stuck", "stuck"), toolNode("next", "next")}, 1)
	result, err := NewExecutor(tools, nil, WithNodeTimeout(30*time.Millisecond)).Execute(context.Background(), graph, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.KindTimeout, result.Results["stuck"].Kind)
	assert.Equal(t, domain.NodeStatusCompleted, result.Results["next"].Status)
}

func TestExecutor_ToolPanicBecomesFailure(t *testing.T) {
	tools := toolFunc(func(context.Context, string, map[string]interface{}) (interface{}, error) {
		panic("kaboom")
	})

	exec := NewExecutor(tools, nil)
	result, err := exec.Execute(context.Background(), domain.NewExecutionGraph([]domain.Node{toolNode("p", "p")}, 1), nil)
	require.NoError(t, err)

	res := result.Results["p"]
	assert.Equal(t, domain.NodeStatusFailed, res.Status)
	assert.Equal(t, domain.KindInternal, res.Kind)
	var panicErr *domain.PanicError
	assert.ErrorAs(t, res.Err, &panicErr)
	assert.Equal(t, int64(1), exec.Metrics().Panics)
}

func TestExecutor_BuiltinNodeTypes(t *testing.T) {
	gen := mocks.NewMockGenerationPort(t)
	gen.On("Generate", mock.Anything, "say hi").Return("hi!", nil).Once()

	graph := domain.NewExecutionGraph([]domain.Node{
		{ID: "llm", Type: domain.NodeTypeLLM, Spec: domain.NodeSpec{Prompt: "say hi"}, StreamOutput: true},
		{ID: "confirm", Type: domain.NodeTypeHumanConfirm, StreamOutput: true},
		{ID: "cond", Type: domain.NodeTypeCondition, Spec: domain.NodeSpec{Condition: "x > 1"}},
	}, 3)

	cb := newRecordingCallback()
	result, err := NewExecutor(nil, nil, WithGenerator(gen)).Execute(context.Background(), graph, cb)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"text": "hi!"}, result.Results["llm"].Output)
	assert.Equal(t, map[string]interface{}{"approved": false}, result.Results["confirm"].Output)
	assert.Equal(t, map[string]interface{}{"value": false}, result.Results["cond"].Output)

	assert.Contains(t, cb.outputs, "llm")
	assert.Contains(t, cb.outputs, "confirm")
	assert.NotContains(t, cb.outputs, "cond")
}

func TestExecutor_RejectsStructurallyInvalidGraphs(t *testing.T) {
	exec := NewExecutor(nil, nil)

	cyclic := domain.NewExecutionGraph([]domain.Node{
		toolNode("a", "x", "b"),
		toolNode("b", "x", "a"),
	}, 1)
	_, err := exec.Execute(context.Background(), cyclic, nil)
	assert.True(t, domain.IsInvalidGraph(err))

	unknown := domain.NewExecutionGraph([]domain.Node{{ID: "a", Type: "teleport"}}, 1)
	_, err = exec.Execute(context.Background(), unknown, nil)
	assert.True(t, domain.IsInvalidGraph(err))

	_, err = exec.Execute(context.Background(), nil, nil)
	assert.True(t, domain.IsInvalidGraph(err))
}

func TestExecutor_DispatchUnknownTypeIsFatal(t *testing.T) {
	exec := NewExecutor(nil, nil)
	_, err := exec.dispatch(context.Background(), domain.Node{ID: "x", Type: "teleport"}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownNodeType)
}

func TestBuildDAG(t *testing.T) {
	graph := domain.NewExecutionGraph([]domain.Node{
		toolNode("a", "x"),
		toolNode("b", "x", "a"),
		toolNode("c", "x", "b"),
	}, 1)
	d, err := buildDAG(graph)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, descendants(d, "a"))
	assert.Empty(t, descendants(d, "c"))
}
