package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskerrors "github.com/taskorchestrator/taskorchestrator/internal/errors"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

func TestGetNextStatus_Ready(t *testing.T) {
	eng := newTestEngine(t)
	seedTask(t, eng, "T-1", "", "Implement login form", "pending")

	next, err := eng.GetNextStatus(context.Background(), "T-1", model.EntityTask, "", nil)
	require.NoError(t, err)

	assert.Equal(t, NextReady, next.State)
	assert.Equal(t, "pending", next.CurrentStatus)
	assert.Equal(t, "in-progress", next.RecommendedStatus)
	assert.Equal(t, "default_flow", next.ActiveFlow)
	assert.Equal(t, []string{"pending", "in-progress", "completed"}, next.FlowSequence)
	assert.Equal(t, 0, next.CurrentPosition)
	assert.Equal(t, model.RoleQueue, next.CurrentRole)
	assert.Equal(t, model.RoleWork, next.NextRole)
	assert.Contains(t, next.Reason, "Ready to advance")
}

func TestGetNextStatus_TagSelectsFlow(t *testing.T) {
	eng := newTestEngine(t)
	seedTask(t, eng, "T-1", "", "Release pipeline", "in-progress", "deployment")

	next, err := eng.GetNextStatus(context.Background(), "T-1", model.EntityTask, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "deployment_flow", next.ActiveFlow)
	assert.Equal(t, []string{"deployment"}, next.MatchedTags)
	assert.Equal(t, "testing", next.RecommendedStatus)
}

func TestGetNextStatus_Blocked(t *testing.T) {
	eng := newTestEngine(t)
	seedTask(t, eng, "T-A", "", "Schema migration", "in-progress")
	seedTask(t, eng, "T-B", "", "Data backfill", "pending")
	seedBlocks(t, eng, "D-1", "T-A", "T-B")

	next, err := eng.GetNextStatus(context.Background(), "T-B", model.EntityTask, "", nil)
	require.NoError(t, err)

	assert.Equal(t, NextBlocked, next.State)
	assert.Empty(t, next.RecommendedStatus)
	assert.Equal(t, []string{"Schema migration needs terminal role (currently work)"}, next.Blockers)
	assert.Contains(t, next.Reason, "blocked by incomplete dependencies")
}

func TestGetNextStatus_Terminal(t *testing.T) {
	eng := newTestEngine(t)
	seedTask(t, eng, "T-1", "", "Implement login form", "cancelled")

	next, err := eng.GetNextStatus(context.Background(), "T-1", model.EntityTask, "", nil)
	require.NoError(t, err)

	assert.Equal(t, NextTerminal, next.State)
	assert.Equal(t, "cancelled", next.TerminalStatus)
	assert.Contains(t, next.Reason, "terminal status")
}

func TestGetNextStatus_EndOfFlowWithoutTerminal(t *testing.T) {
	eng := newTestEngineWithConfig(t, `
status_progression:
  tasks:
    default_flow: [pending, in-progress, review-ready]
    terminal_statuses: [closed]
    emergency_transitions: [blocked]
`)
	seedTask(t, eng, "T-1", "", "Implement login form", "review-ready")

	next, err := eng.GetNextStatus(context.Background(), "T-1", model.EntityTask, "", nil)
	require.NoError(t, err)

	assert.Equal(t, NextTerminal, next.State)
	assert.Contains(t, next.Reason, "end of the default_flow flow")
}

func TestGetNextStatus_OutOfFlowReentry(t *testing.T) {
	eng := newTestEngine(t)
	seedTask(t, eng, "T-1", "", "Implement login form", "blocked")

	next, err := eng.GetNextStatus(context.Background(), "T-1", model.EntityTask, "", nil)
	require.NoError(t, err)

	assert.Equal(t, NextReady, next.State)
	assert.Equal(t, -1, next.CurrentPosition)
	assert.Equal(t, "pending", next.RecommendedStatus)
	assert.Contains(t, next.Reason, "re-enter at 'pending'")
}

func TestGetNextStatus_HypotheticalOverrides(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	task := seedTask(t, eng, "T-1", "", "Implement login form", "pending")
	task.Summary = validSummary()
	require.NoError(t, eng.store.UpdateTask(ctx, task))

	// ask what would follow in-progress without being there
	next, err := eng.GetNextStatus(ctx, "T-1", model.EntityTask, "in-progress", nil)
	require.NoError(t, err)
	assert.Equal(t, NextReady, next.State)
	assert.Equal(t, "completed", next.RecommendedStatus)

	// ask under hypothetical tags
	next, err = eng.GetNextStatus(ctx, "T-1", model.EntityTask, "in-progress", []string{"qa"})
	require.NoError(t, err)
	assert.Equal(t, "qa_flow", next.ActiveFlow)
	assert.Equal(t, "testing", next.RecommendedStatus)
}

func TestGetNextStatus_NotFound(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.GetNextStatus(context.Background(), "missing", model.EntityTask, "", nil)
	appErr := requireAppError(t, err, taskerrors.CodeNotFound)
	assert.Contains(t, appErr.What, "task missing not found")
}
