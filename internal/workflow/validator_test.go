package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

func TestValidateStatus_AllowedSet(t *testing.T) {
	eng := newTestEngine(t)

	assert.True(t, eng.ValidateStatus("pending", model.EntityTask, nil).OK())
	assert.True(t, eng.ValidateStatus("IN_PROGRESS", model.EntityTask, nil).OK(), "input should be normalised")

	res := eng.ValidateStatus("galactic", model.EntityTask, nil)
	assert.Equal(t, StateInvalid, res.State)
	assert.Contains(t, res.Reason, "'galactic' is not allowed")
	assert.NotEmpty(t, res.Suggestions, "rejection should list allowed statuses")
}

func TestValidateStatus_DeployedAdvisory(t *testing.T) {
	eng := newTestEngine(t)

	res := eng.ValidateStatus("deployed", model.EntityTask, []string{"backend"})
	assert.Equal(t, StateAdvisory, res.State)
	assert.Contains(t, res.Advisory, "environment tag")

	res = eng.ValidateStatus("deployed", model.EntityTask, []string{"Production"})
	assert.Equal(t, StateValid, res.State, "environment tag satisfies the advisory")
}

func TestValidateTransition_TerminalGuard(t *testing.T) {
	eng := newTestEngine(t)

	res := eng.ValidateTransition(context.Background(), "completed", "in-progress", model.EntityTask, "", nil)
	assert.Equal(t, StateInvalid, res.State)
	assert.Contains(t, res.Reason, "terminal status 'completed'")
}

func TestValidateTransition_EmergencyBypass(t *testing.T) {
	eng := newTestEngine(t)

	// blocked is not part of the flow, yet reachable from anywhere
	res := eng.ValidateTransition(context.Background(), "pending", "blocked", model.EntityTask, "", nil)
	assert.True(t, res.OK())

	// disabled by config the same move fails flow positioning
	eng = newTestEngineWithConfig(t, `
status_validation:
  allow_emergency: false
`)
	res = eng.ValidateTransition(context.Background(), "pending", "blocked", model.EntityTask, "", nil)
	assert.True(t, res.OK(), "blocked is outside the flow, positioning cannot reject it")
}

func TestValidateTransition_SequentialSkip(t *testing.T) {
	eng := newTestEngine(t)

	res := eng.ValidateTransition(context.Background(), "pending", "completed", model.EntityTask, "", nil)
	require.Equal(t, StateInvalid, res.State)
	assert.Contains(t, res.Reason, "Cannot skip")
	assert.Equal(t, []string{"in-progress"}, res.Suggestions)
}

func TestValidateTransition_SequentialSkipLongerFlow(t *testing.T) {
	eng := newTestEngine(t)

	// qa-tagged tasks run the four-step flow
	res := eng.ValidateTransition(context.Background(), "pending", "completed", model.EntityTask, "", []string{"qa"})
	require.Equal(t, StateInvalid, res.State)
	assert.Equal(t, []string{"in-progress", "testing"}, res.Suggestions)
}

func TestValidateTransition_Backward(t *testing.T) {
	eng := newTestEngine(t)
	res := eng.ValidateTransition(context.Background(), "in-progress", "pending", model.EntityTask, "", nil)
	assert.True(t, res.OK(), "backward moves are allowed by default")

	eng = newTestEngineWithConfig(t, `
status_validation:
  allow_backward: false
`)
	res = eng.ValidateTransition(context.Background(), "in-progress", "pending", model.EntityTask, "", nil)
	require.Equal(t, StateInvalid, res.State)
	assert.Contains(t, res.Reason, "Backward transition")
}

func TestValidateTransition_OutOfFlowStatusAccepted(t *testing.T) {
	eng := newTestEngine(t)

	// blocked -> in-progress: current is outside the flow, so flow
	// positioning cannot be judged and the move is allowed.
	res := eng.ValidateTransition(context.Background(), "blocked", "in-progress", model.EntityTask, "", nil)
	assert.True(t, res.OK())
}

func TestPrerequisite_FeatureNeedsTasks(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedFeature(t, eng, "F-1", "", "Checkout", "planning")

	res := eng.ValidateTransition(ctx, "planning", "in-development", model.EntityFeature, "F-1", nil)
	require.Equal(t, StateInvalid, res.State)
	assert.Contains(t, res.Reason, "at least one task")

	seedTask(t, eng, "T-1", "F-1", "Cart API", "pending")
	res = eng.ValidateTransition(ctx, "planning", "in-development", model.EntityFeature, "F-1", nil)
	assert.True(t, res.OK())
}

func TestPrerequisite_FeatureTasksDone(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedFeature(t, eng, "F-1", "", "Checkout", "in-development")
	seedTask(t, eng, "T-1", "F-1", "Cart API", "completed")
	seedTask(t, eng, "T-2", "F-1", "Cart UI", "in-progress")

	res := eng.ValidatePrerequisites(ctx, "F-1", "completed", model.EntityFeature)
	require.Equal(t, StateInvalid, res.State)
	assert.Contains(t, res.Reason, "1 task(s) are not completed")
	assert.Equal(t, []string{"Cart UI (in-progress)"}, res.Suggestions)

	// cancelled counts as done
	require.NoError(t, eng.store.UpdateContainerStatus(ctx, model.EntityTask, "T-2", "cancelled", testNow))
	res = eng.ValidatePrerequisites(ctx, "F-1", "completed", model.EntityFeature)
	assert.True(t, res.OK())
}

func TestPrerequisite_SuggestionTruncation(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedFeature(t, eng, "F-1", "", "Checkout", "in-development")
	for _, id := range []string{"T-1", "T-2", "T-3", "T-4", "T-5"} {
		seedTask(t, eng, id, "F-1", "Task "+id, "pending")
	}

	res := eng.ValidatePrerequisites(ctx, "F-1", "completed", model.EntityFeature)
	require.Equal(t, StateInvalid, res.State)
	require.Len(t, res.Suggestions, 4)
	assert.Equal(t, "and 2 more", res.Suggestions[3])
}

func TestPrerequisite_TaskBlockers(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	blocker := seedTask(t, eng, "T-A", "", "Schema migration", "in-progress")
	seedTask(t, eng, "T-B", "", "Data backfill", "pending")
	seedBlocks(t, eng, "D-1", blocker.ID, "T-B")

	res := eng.ValidatePrerequisites(ctx, "T-B", "in-progress", model.EntityTask)
	require.Equal(t, StateInvalid, res.State)
	assert.Contains(t, res.Reason, "blocked by incomplete dependencies")
	assert.Equal(t, []string{"Schema migration needs terminal role (currently work)"}, res.Suggestions)

	require.NoError(t, eng.store.UpdateContainerStatus(ctx, model.EntityTask, "T-A", "completed", testNow))
	res = eng.ValidatePrerequisites(ctx, "T-B", "in-progress", model.EntityTask)
	assert.True(t, res.OK())
}

func TestPrerequisite_UnblockAtRole(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedTask(t, eng, "T-A", "", "API endpoint", "in-progress")
	seedTask(t, eng, "T-B", "", "Integration test", "pending")
	dep := &model.Dependency{
		ID: "D-1", FromTaskID: "T-A", ToTaskID: "T-B",
		Type: model.DependencyBlocks, UnblockAt: "review", CreatedAt: testNow,
	}
	require.NoError(t, eng.store.CreateDependency(ctx, dep))

	res := eng.ValidatePrerequisites(ctx, "T-B", "in-progress", model.EntityTask)
	require.Equal(t, StateInvalid, res.State)
	assert.Equal(t, []string{"API endpoint needs review role (currently work)"}, res.Suggestions)

	// testing resolves to the review role, satisfying the threshold
	require.NoError(t, eng.store.UpdateContainerStatus(ctx, model.EntityTask, "T-A", "testing", testNow))
	res = eng.ValidatePrerequisites(ctx, "T-B", "in-progress", model.EntityTask)
	assert.True(t, res.OK())
}

func TestPrerequisite_MissingBlockerResolved(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedTask(t, eng, "T-A", "", "Ghost", "pending")
	seedTask(t, eng, "T-B", "", "Data backfill", "pending")
	seedBlocks(t, eng, "D-1", "T-A", "T-B")
	dropTaskRow(t, eng, "T-A")

	res := eng.ValidatePrerequisites(ctx, "T-B", "in-progress", model.EntityTask)
	assert.True(t, res.OK(), "an edge whose blocker vanished is treated as resolved")
}

func TestPrerequisite_CompletionSummary(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	task := seedTask(t, eng, "T-1", "", "Login form", "in-progress")

	res := eng.ValidatePrerequisites(ctx, task.ID, "completed", model.EntityTask)
	require.Equal(t, StateInvalid, res.State)
	assert.Contains(t, res.Reason, "300-500 characters (current: 11)")

	task.Summary = validSummary()
	require.NoError(t, eng.store.UpdateTask(ctx, task))
	res = eng.ValidatePrerequisites(ctx, task.ID, "completed", model.EntityTask)
	assert.True(t, res.OK())
}

func TestValidateTransitionFor_InMemorySummary(t *testing.T) {
	eng := newTestEngine(t)
	task := seedTask(t, eng, "T-1", "", "Login form", "in-progress")

	c := task.AsContainer()
	c.Summary = validSummary()
	res := eng.ValidateTransitionFor(context.Background(), c, "completed")
	assert.True(t, res.OK(), "the unsaved summary should satisfy the prerequisite")

	// the stored summary is still short, so the id-based path rejects
	res = eng.ValidateTransition(context.Background(), "in-progress", "completed", model.EntityTask, task.ID, nil)
	assert.Equal(t, StateInvalid, res.State)
}

func TestPrerequisite_ProjectFeaturesDone(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedProject(t, eng, "P-1", "Shop", "in-development")
	seedFeature(t, eng, "F-1", "P-1", "Checkout", "completed")
	seedFeature(t, eng, "F-2", "P-1", "Search", "in-development")

	res := eng.ValidatePrerequisites(ctx, "P-1", "completed", model.EntityProject)
	require.Equal(t, StateInvalid, res.State)
	assert.Equal(t, []string{"Search (in-development)"}, res.Suggestions)

	require.NoError(t, eng.store.UpdateContainerStatus(ctx, model.EntityFeature, "F-2", "cancelled", testNow))
	res = eng.ValidatePrerequisites(ctx, "P-1", "completed", model.EntityProject)
	assert.True(t, res.OK())
}

func TestAllowedStatuses_Sorted(t *testing.T) {
	eng := newTestEngine(t)
	allowed := eng.AllowedStatuses(model.EntityTask)
	require.NotEmpty(t, allowed)
	for i := 1; i < len(allowed); i++ {
		assert.Less(t, allowed[i-1], allowed[i], "allowed statuses should be sorted")
	}
}
