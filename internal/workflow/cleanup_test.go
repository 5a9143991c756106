package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

func TestCleanupFeature_DefaultPolicy(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedFeature(t, eng, "F-1", "", "Checkout", "completed")
	seedTask(t, eng, "T-1", "F-1", "Shipped work", "completed")
	seedTask(t, eng, "T-2", "F-1", "Abandoned spike", "cancelled")
	seedTask(t, eng, "T-3", "F-1", "Deferred extra", "deferred")

	// remnants hanging off the cancelled task
	seedSection(t, eng, "S-1", model.EntityTask, "T-2", "Notes", `{"kept": false}`, 0)
	seedSection(t, eng, "S-2", model.EntityTask, "T-2", "Scratch", `{}`, 1)
	seedBlocks(t, eng, "D-1", "T-2", "T-3")

	res := eng.CleanupFeature(ctx, "F-1")
	require.NotNil(t, res)

	assert.True(t, res.Performed)
	assert.Equal(t, 1, res.TasksDeleted)
	assert.Equal(t, 2, res.TasksRetained)
	assert.ElementsMatch(t, []string{"T-1", "T-3"}, res.RetainedTaskIDs)
	assert.Equal(t, 2, res.SectionsDeleted)
	assert.Equal(t, 1, res.DependenciesDeleted)

	gone, err := eng.store.GetTask(ctx, "T-2")
	require.NoError(t, err)
	assert.Nil(t, gone)

	sections, err := eng.store.SectionsForEntity(ctx, model.EntityTask, "T-2")
	require.NoError(t, err)
	assert.Empty(t, sections)

	deps, err := eng.store.DependenciesForTask(ctx, "T-2")
	require.NoError(t, err)
	assert.Empty(t, deps)

	kept, err := eng.store.GetTask(ctx, "T-1")
	require.NoError(t, err)
	require.NotNil(t, kept)
}

func TestCleanupFeature_Disabled(t *testing.T) {
	eng := newTestEngineWithConfig(t, `
completion_cleanup:
  enabled: false
`)
	ctx := context.Background()
	seedFeature(t, eng, "F-1", "", "Checkout", "completed")
	seedTask(t, eng, "T-1", "F-1", "Abandoned spike", "cancelled")

	res := eng.CleanupFeature(ctx, "F-1")
	require.NotNil(t, res)
	assert.False(t, res.Performed)
	assert.Equal(t, "cleanup disabled", res.Reason)

	task, err := eng.store.GetTask(ctx, "T-1")
	require.NoError(t, err)
	assert.NotNil(t, task, "disabled cleanup touches nothing")
}

func TestCleanupFeature_DeleteCompleted(t *testing.T) {
	eng := newTestEngineWithConfig(t, `
completion_cleanup:
  retain_completed: false
`)
	ctx := context.Background()
	seedFeature(t, eng, "F-1", "", "Checkout", "completed")
	seedTask(t, eng, "T-1", "F-1", "Shipped work", "completed")

	res := eng.CleanupFeature(ctx, "F-1")
	require.NotNil(t, res)
	assert.Equal(t, 1, res.TasksDeleted)
	assert.Equal(t, 0, res.TasksRetained)
}

func TestCleanupFeature_KeepCancelled(t *testing.T) {
	eng := newTestEngineWithConfig(t, `
completion_cleanup:
  delete_cancelled: false
`)
	ctx := context.Background()
	seedFeature(t, eng, "F-1", "", "Checkout", "completed")
	seedTask(t, eng, "T-1", "F-1", "Abandoned spike", "cancelled")

	res := eng.CleanupFeature(ctx, "F-1")
	require.NotNil(t, res)
	assert.Equal(t, 0, res.TasksDeleted)
	assert.Equal(t, 1, res.TasksRetained)
	assert.Equal(t, []string{"T-1"}, res.RetainedTaskIDs)
}

func TestCleanupFeature_NoTasks(t *testing.T) {
	eng := newTestEngine(t)
	seedFeature(t, eng, "F-1", "", "Checkout", "completed")

	res := eng.CleanupFeature(context.Background(), "F-1")
	require.NotNil(t, res)
	assert.True(t, res.Performed)
	assert.Equal(t, 0, res.TasksDeleted)
	assert.Equal(t, 0, res.TasksRetained)
}
