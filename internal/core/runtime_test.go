package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/specter/internal/adapters/events"
	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
	"github.com/eleven-am/specter/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedGenerator answers planning prompts with plan and every other prompt
// with answer.
type scriptedGenerator struct {
	plan    string
	planErr error
	answer  string

	mu      sync.Mutex
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, _ ...ports.GenerateOption) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if strings.Contains(prompt, "Request: ") {
		if g.planErr != nil {
			return "", g.planErr
		}
		return g.plan, nil
	}
	return g.answer, nil
}

func testConfig(t *testing.T) *domain.Config {
	t.Helper()
	cfg := domain.NewConfigFromSimple("test", t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	cfg.WithInMemoryStorage()
	cfg.Security.WorkspaceRoot = t.TempDir()
	cfg.WithRetry(1, 0, 0, 0)
	cfg.Execution.NodeTimeout = 5 * time.Second
	return cfg
}

func newTestRuntime(t *testing.T, cfg *domain.Config, opts ...RuntimeOption) *Runtime {
	t.Helper()
	rt, err := NewRuntime(context.Background(), cfg, "", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func auditActions(t *testing.T, rt *Runtime, id string) []string {
	t.Helper()
	trail, err := rt.ListAudit(context.Background(), id)
	require.NoError(t, err)
	actions := make([]string, 0, len(trail))
	for _, ev := range trail {
		actions = append(actions, ev.Action)
	}
	return actions
}

const calculatorPlan = `{
	"intent_summary": "arithmetic",
	"confidence": 1,
	"nodes": [
		{"id": "calc", "type": "tool", "spec": {"tool_name": "calculator", "params": {"expression": "6 * 7"}}, "error_strategy": "report"},
		{"id": "explain", "type": "llm", "spec": {"prompt": "explain the result"}, "deps": ["calc"], "stream_output": true}
	]
}`

func TestRuntime_RunCompletesAndAudits(t *testing.T) {
	gen := &scriptedGenerator{plan: calculatorPlan, answer: "it is 42"}
	rt := newTestRuntime(t, testConfig(t), WithGenerator(gen))
	ctx := context.Background()

	collector := NewEventCollector()
	out, err := rt.Run(ctx, RunRequest{Text: "what is 6 * 7", Context: map[string]interface{}{"channel": "cli"}}, collector)
	require.NoError(t, err)

	require.Len(t, out.Result.Results, 2)
	calc := out.Result.Results["calc"]
	assert.Equal(t, domain.NodeStatusCompleted, calc.Status)
	assert.Equal(t, domain.ToolOK(42.0), calc.Output)
	assert.Equal(t, map[string]interface{}{"text": "it is 42"}, out.Result.Results["explain"].Output)

	rec, err := rt.GetExecution(ctx, out.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, rec.Status)
	assert.Equal(t, "what is 6 * 7", rec.Intent)
	assert.Equal(t, "local", rec.UserID)
	require.NotNil(t, rec.CompletedAt)

	assert.Equal(t, []string{
		domain.AuditExecutionStart,
		domain.AuditToolCall,
		domain.AuditExecutionEnd,
	}, auditActions(t, rt, out.ExecutionID))

	evs := collector.Events()
	require.NotEmpty(t, evs)
	assert.Equal(t, "complete", evs[len(evs)-1].Event)

	var sawOutput bool
	for _, ev := range evs {
		if ev.Event == "output" && ev.Node == "explain" {
			sawOutput = true
		}
	}
	assert.True(t, sawOutput, "stream_output node should report its output")

	require.NotEmpty(t, gen.prompts)
	assert.Contains(t, gen.prompts[0], `"channel":"cli"`)
}

func TestRuntime_RunFallsBackWhenPlanningFails(t *testing.T) {
	gen := &scriptedGenerator{planErr: errors.New("backend down")}
	rt := newTestRuntime(t, testConfig(t), WithGenerator(gen))

	out, err := rt.Run(context.Background(), RunRequest{Text: "2 + 2 * 3"}, nil)
	require.NoError(t, err)

	require.Len(t, out.Graph.Nodes, 1)
	node := out.Graph.Nodes[0]
	assert.Equal(t, "calculator", node.Spec.ToolName)
	assert.Equal(t, "2 + 2 * 3", node.Spec.Params["expression"])
	assert.Equal(t, domain.ToolOK(8.0), out.Result.Results[node.ID].Output)
}

func TestRuntime_BlockedToolIsAuditedOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.WithToolPolicy(nil, []string{"calculator"})
	gen := &scriptedGenerator{plan: `{"nodes": [{"id": "calc", "type": "tool", "spec": {"tool_name": "calculator", "params": {"expression": "1 + 1"}}, "error_strategy": "report"}]}`}
	rt := newTestRuntime(t, cfg, WithGenerator(gen))

	out, err := rt.Run(context.Background(), RunRequest{Text: "add"}, nil)
	require.NoError(t, err)

	res := out.Result.Results["calc"]
	assert.Equal(t, domain.NodeStatusFailed, res.Status)
	assert.Equal(t, domain.KindPermission, res.Kind)

	actions := auditActions(t, rt, out.ExecutionID)
	assert.Equal(t, []string{
		domain.AuditExecutionStart,
		domain.AuditPolicyBlock,
		domain.AuditExecutionEnd,
	}, actions)
}

func TestRuntime_PublishesLifecycleEvents(t *testing.T) {
	gen := &scriptedGenerator{plan: calculatorPlan, answer: "ok"}
	rt := newTestRuntime(t, testConfig(t), WithGenerator(gen))

	var mu sync.Mutex
	var topics []string
	id := rt.Subscribe("execution.*", func(_ context.Context, ev ports.Event) {
		mu.Lock()
		defer mu.Unlock()
		topics = append(topics, ev.Topic)
	})
	defer rt.Unsubscribe(id)

	_, err := rt.Run(context.Background(), RunRequest{Text: "go"}, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{events.TopicExecutionStarted, events.TopicExecutionFinished}, topics)
}

func TestRuntime_Replay(t *testing.T) {
	gen := &scriptedGenerator{plan: calculatorPlan, answer: "ok"}
	rt := newTestRuntime(t, testConfig(t), WithGenerator(gen))
	ctx := context.Background()

	first, err := rt.Run(ctx, RunRequest{Text: "what is 6 * 7"}, nil)
	require.NoError(t, err)

	replayed, err := rt.Replay(ctx, first.ExecutionID, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ExecutionID, replayed.ExecutionID)
	assert.Equal(t, domain.ToolOK(42.0), replayed.Result.Results["calc"].Output)

	rec, err := rt.GetExecution(ctx, first.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, rec.Status)

	starts := 0
	for _, action := range auditActions(t, rt, first.ExecutionID) {
		if action == domain.AuditExecutionStart {
			starts++
		}
	}
	assert.Equal(t, 2, starts)

	_, err = rt.Replay(ctx, "exec_missing", nil)
	assert.True(t, domain.IsNotFound(err))
}

func TestRuntime_HealOverride(t *testing.T) {
	gen := &scriptedGenerator{plan: calculatorPlan, answer: "ok"}
	rt := newTestRuntime(t, testConfig(t), WithGenerator(gen))
	ctx := context.Background()

	out, err := rt.Run(ctx, RunRequest{Text: "x"}, nil)
	require.NoError(t, err)

	require.NoError(t, rt.HealOverride(ctx, out.ExecutionID, "syntax_repair"))

	rec, err := rt.GetExecution(ctx, out.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionHealing, rec.Status)

	trail, err := rt.ListAudit(ctx, out.ExecutionID)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	assert.Equal(t, domain.AuditManualHeal, last.Action)
	assert.Equal(t, "syntax_repair", last.Details["fix_type"])
	assert.Equal(t, []interface{}{"calculator"}, last.Details["reset_breakers"])

	assert.True(t, domain.IsNotFound(rt.HealOverride(ctx, "exec_missing", "x")))
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(rt.HealOverride(ctx, out.ExecutionID, "")))
}

func TestRuntime_InstallAndRunSkill(t *testing.T) {
	cfg := testConfig(t)
	rt := newTestRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
	ctx := context.Background()

	rec, err := rt.InstallSkill(ctx, "greeter", "Say hello")
	require.NoError(t, err)
	assert.Equal(t, "greeter_v1", rec.ID)

	out, err := rt.RunSkill(ctx, "greeter", map[string]interface{}{"name": "ada"})
	require.NoError(t, err)
	res := out.(domain.ToolResult)
	assert.True(t, res.Success)
	assert.Equal(t, "Say hello", res.Data.(map[string]interface{})["description"])

	skills, err := rt.ListSkills(ctx)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, "greeter", skills[0].Name)

	again := newTestRuntime(t, cfg, WithStore(rt.Store()), WithGenerator(&scriptedGenerator{}))
	assert.True(t, again.Registry().Has("greeter"), "persisted skills load into a fresh runtime")

	_, err = rt.InstallSkill(ctx, "", "nameless")
	assert.Error(t, err)

	_, err = rt.RunSkill(ctx, "nope", nil)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestRuntime_ForgeRegistersSkill(t *testing.T) {
	gen := &scriptedGenerator{answer: "```python\ndef run(params):\n    return {\"success\": True, \"data\": params[\"x\"] * 2, \"error\": None}\n```"}
	sb := mocks.NewMockSandboxPort(t)
	sb.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.SandboxResult{Success: true, Stdout: "ok"}, nil).Once()
	sb.On("Invoke", mock.Anything, mock.Anything, map[string]interface{}{"x": 2.0}, mock.Anything).
		Return(domain.ToolOK(4.0), nil).Once()

	rt := newTestRuntime(t, testConfig(t), WithGenerator(gen), WithSandbox(sb))
	ctx := context.Background()

	result, err := rt.Forge(ctx, "Double a number", []domain.ForgeExample{
		{Input: map[string]interface{}{"x": 2.0}, Output: 4.0},
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.False(t, result.UsedFallback)
	assert.Equal(t, "double_a_number_v1", result.Skill.ID)

	out, err := rt.InvokeTool(ctx, "double_a_number", map[string]interface{}{"x": 2.0})
	require.NoError(t, err)
	assert.Equal(t, domain.ToolOK(4.0), out)

	_, err = rt.Forge(ctx, "", nil)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestRuntime_ListTools(t *testing.T) {
	rt := newTestRuntime(t, testConfig(t), WithGenerator(&scriptedGenerator{}))

	names := make([]string, 0)
	for _, spec := range rt.ListTools() {
		names = append(names, spec.Name)
	}
	assert.Contains(t, names, "calculator")
	assert.Contains(t, names, "file_read")
	assert.Contains(t, names, "web_fetch")
}

func TestRuntime_ListExecutionsNewestFirst(t *testing.T) {
	gen := &scriptedGenerator{plan: calculatorPlan, answer: "ok"}
	rt := newTestRuntime(t, testConfig(t), WithGenerator(gen))
	ctx := context.Background()

	a, err := rt.Run(ctx, RunRequest{Text: "first"}, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := rt.Run(ctx, RunRequest{Text: "second"}, nil)
	require.NoError(t, err)

	list, err := rt.ListExecutions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ExecutionID, list[0].ID)
	assert.Equal(t, a.ExecutionID, list[1].ID)
}

// flakyModel fails its first call with a transient error and answers every
// later call with reply.
type flakyModel struct {
	reply string
	calls atomic.Int32
}

func (m *flakyModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.calls.Add(1) == 1 {
		return nil, errors.New("503 service unavailable")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *flakyModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

const sumPlan = `{"nodes": [{"id": "calc", "type": "tool", "spec": {"tool_name": "calculator", "params": {"expression": "1 + 1"}}, "error_strategy": "report"}]}`

func TestRuntime_RouterRetriesTransientFailures(t *testing.T) {
	model := &flakyModel{reply: sumPlan}
	cfg := testConfig(t)
	cfg.WithRetry(2, 0, 0, 0)
	cfg.WithLLMRoutes(domain.LLMRoute{Provider: "openai", Model: "flaky", Priority: 1})

	rt := newTestRuntime(t, cfg, WithModelFactory(func(domain.LLMRoute) (llms.Model, error) {
		return model, nil
	}))

	out, err := rt.Run(context.Background(), RunRequest{Text: "6 * 7"}, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(2), model.calls.Load())
	require.Len(t, out.Graph.Nodes, 1)
	assert.Equal(t, "1 + 1", out.Graph.Nodes[0].Spec.Params["expression"])
	assert.Equal(t, domain.ToolOK(2.0), out.Result.Results["calc"].Output)
}

func TestRuntime_RouterSingleAttemptFallsBack(t *testing.T) {
	model := &flakyModel{reply: sumPlan}
	cfg := testConfig(t)
	cfg.WithLLMRoutes(domain.LLMRoute{Provider: "openai", Model: "flaky", Priority: 1})

	rt := newTestRuntime(t, cfg, WithModelFactory(func(domain.LLMRoute) (llms.Model, error) {
		return model, nil
	}))

	out, err := rt.Run(context.Background(), RunRequest{Text: "6 * 7"}, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), model.calls.Load())
	require.Len(t, out.Graph.Nodes, 1)
	assert.Equal(t, "6 * 7", out.Graph.Nodes[0].Spec.Params["expression"])
}

const quotaPlan = `{"nodes": [{"id": "fetch", "type": "tool", "spec": {"tool_name": "quota_api", "params": {"q": "x"}}, "error_strategy": "heal"}]}`

func registerQuotaTool(t *testing.T, rt *Runtime) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	require.NoError(t, rt.registry.Register("quota_api", func(_ context.Context, params map[string]interface{}) (interface{}, error) {
		if calls.Add(1) == 1 {
			return nil, domain.NewKindError(domain.KindRateLimit, "quota_api", errors.New("429 too many requests"))
		}
		return domain.ToolOK(params["q"]), nil
	}))
	return &calls
}

func TestRuntime_BackoffHealingRerunsRateLimitedNode(t *testing.T) {
	gen := &scriptedGenerator{plan: quotaPlan}
	rt := newTestRuntime(t, testConfig(t), WithGenerator(gen), WithBackoffHealing(time.Millisecond))
	calls := registerQuotaTool(t, rt)

	out, err := rt.Run(context.Background(), RunRequest{Text: "fetch"}, nil)
	require.NoError(t, err)

	res := out.Result.Results["fetch"]
	assert.Equal(t, domain.NodeStatusCompleted, res.Status)
	assert.True(t, res.Healed)
	assert.Equal(t, domain.ToolOK("x"), res.Output)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRuntime_DefaultHealerLeavesRateLimitFailed(t *testing.T) {
	gen := &scriptedGenerator{plan: quotaPlan}
	rt := newTestRuntime(t, testConfig(t), WithGenerator(gen))
	calls := registerQuotaTool(t, rt)

	out, err := rt.Run(context.Background(), RunRequest{Text: "fetch"}, nil)
	require.NoError(t, err)

	res := out.Result.Results["fetch"]
	assert.Equal(t, domain.NodeStatusFailed, res.Status)
	assert.Equal(t, int32(1), calls.Load())
}
