package storage

import (
	"context"
	"testing"
	"time"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(domain.StorageConfig{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleGraph() *domain.ExecutionGraph {
	return domain.NewExecutionGraph([]domain.Node{
		{ID: "a", Type: domain.NodeTypeTool, Spec: domain.NodeSpec{ToolName: "calculator"}},
	}, 1)
}

func TestStore_ExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateExecution(ctx, "u1", "add numbers", sampleGraph())
	require.NoError(t, err)
	assert.Contains(t, id, "exec_")

	rec, err := store.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionRunning, rec.Status)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "add numbers", rec.Intent)
	require.NotNil(t, rec.Graph)
	assert.Len(t, rec.Graph.Nodes, 1)
	assert.Nil(t, rec.CompletedAt)

	result := &domain.RunResult{
		Results: map[string]domain.NodeResult{
			"a": {Status: domain.NodeStatusCompleted, Output: map[string]interface{}{"value": 4.0}},
		},
		Progress: domain.Progress{Total: 1, Completed: 1},
	}
	require.NoError(t, store.CompleteExecution(ctx, id, result))

	rec, err = store.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, domain.NodeStatusCompleted, rec.Result.Results["a"].Status)
	assert.NotNil(t, rec.CompletedAt)
}

func TestStore_FailAndSetStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateExecution(ctx, "u1", "x", sampleGraph())
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(ctx, id, domain.ExecutionHealing))
	rec, err := store.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionHealing, rec.Status)

	require.NoError(t, store.FailExecution(ctx, id, "boom"))
	rec, err = store.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, rec.Status)
	assert.Equal(t, "boom", rec.Error)
}

func TestStore_MissingExecution(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetExecution(ctx, "exec_missing")
	assert.True(t, domain.IsNotFound(err))

	err = store.SetStatus(ctx, "exec_missing", domain.ExecutionFailed)
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_ListExecutionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return at }
		id, err := store.CreateExecution(ctx, "u1", "intent", sampleGraph())
		require.NoError(t, err)
		ids = append(ids, id)
	}

	list, err := store.ListExecutions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[4], list[0].ID)
	assert.Equal(t, ids[3], list[1].ID)
	assert.Equal(t, ids[2], list[2].ID)

	all, err := store.ListExecutions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_AuditTrail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateExecution(ctx, "u1", "x", sampleGraph())
	require.NoError(t, err)

	require.NoError(t, store.AddAudit(ctx, id, domain.AuditToolCall, map[string]interface{}{"tool": "calculator"}))
	require.NoError(t, store.AddAudit(ctx, id, domain.AuditPolicyBlock, map[string]interface{}{"tool": "file_write"}))
	require.NoError(t, store.AddAudit(ctx, "exec_other", domain.AuditToolCall, nil))

	events, err := store.ListAudit(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.AuditToolCall, events[0].Action)
	assert.Equal(t, domain.AuditPolicyBlock, events[1].Action)
	assert.Equal(t, "file_write", events[1].Details["tool"])
	assert.NotEmpty(t, events[0].ID)
}

func TestStore_SkillsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveSkill(ctx, domain.SkillRecord{
		ID:      "greet_v1",
		Name:    "greet",
		Version: 1,
		Kind:    domain.SkillKindTemplate,
		Params:  []string{"name"},
	}))
	require.NoError(t, store.SaveSkill(ctx, domain.SkillRecord{
		ID:      "greet_v2",
		Name:    "greet",
		Version: 2,
		Kind:    domain.SkillKindTemplate,
	}))

	records, err := store.LoadSkills(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Version)
	assert.False(t, records[0].CreatedAt.IsZero())

	err = store.SaveSkill(ctx, domain.SkillRecord{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
