package nexttask

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
	"github.com/taskorchestrator/taskorchestrator/internal/db"
	"github.com/taskorchestrator/taskorchestrator/internal/lock"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) (*Pick, *workflow.Engine) {
	t.Helper()

	store, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loader := config.NewLoader(testLogger())
	loader.SetWorkDir(t.TempDir())

	eng := workflow.New(store, loader, lock.New(), testLogger())
	return NewPick(eng, testLogger()), eng
}

func execute(t *testing.T, tool *Pick, args string) gjson.Result {
	t.Helper()
	res, err := tool.Execute(context.Background(), json.RawMessage(args))
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	return gjson.Parse(res.Content[0].Text)
}

func seedTask(t *testing.T, eng *workflow.Engine, task model.Task) {
	t.Helper()
	if task.Status == "" {
		task.Status = "pending"
	}
	if task.Priority == "" {
		task.Priority = model.PriorityMedium
	}
	if task.Complexity == 0 {
		task.Complexity = 5
	}
	require.NoError(t, eng.Store().CreateTask(context.Background(), &task))
}

func blocks(t *testing.T, eng *workflow.Engine, id, blocker, blocked string) {
	t.Helper()
	require.NoError(t, eng.Store().CreateDependency(context.Background(), &model.Dependency{
		ID: id, FromTaskID: blocker, ToTaskID: blocked, Type: model.DependencyBlocks,
	}))
}

func TestEasiestOfHighestPriorityFirst(t *testing.T) {
	tool, eng := newFixture(t)
	seedTask(t, eng, model.Task{ID: "T-1", Title: "Hard", Priority: model.PriorityHigh, Complexity: 8})
	seedTask(t, eng, model.Task{ID: "T-2", Title: "Easy", Priority: model.PriorityHigh, Complexity: 3})
	seedTask(t, eng, model.Task{ID: "T-3", Title: "Trivial", Priority: model.PriorityLow, Complexity: 1})

	env := execute(t, tool, `{"limit":3}`)

	assert.True(t, env.Get("success").Bool())
	assert.Equal(t, "3 task(s) ready, next up 'Easy'", env.Get("message").String())
	assert.Equal(t, int64(3), env.Get("data.count").Int())
	assert.Equal(t, "T-2", env.Get("data.tasks.0.id").String())
	assert.Equal(t, "T-1", env.Get("data.tasks.1.id").String())
	assert.Equal(t, "T-3", env.Get("data.tasks.2.id").String())
}

func TestBlockedAndStartedTasksExcluded(t *testing.T) {
	tool, eng := newFixture(t)
	seedTask(t, eng, model.Task{ID: "T-1", Title: "Blocked", Priority: model.PriorityHigh})
	seedTask(t, eng, model.Task{ID: "T-2", Title: "Blocker", Status: "in-progress"})
	seedTask(t, eng, model.Task{ID: "T-3", Title: "Free", Priority: model.PriorityLow})
	blocks(t, eng, "D-1", "T-2", "T-1")

	env := execute(t, tool, `{}`)

	assert.True(t, env.Get("success").Bool())
	assert.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, "T-3", env.Get("data.tasks.0.id").String())
}

func TestFinishedBlockerReleasesTask(t *testing.T) {
	tool, eng := newFixture(t)
	seedTask(t, eng, model.Task{ID: "T-1", Title: "Waiting", Priority: model.PriorityHigh})
	seedTask(t, eng, model.Task{ID: "T-2", Title: "Done", Status: "completed"})
	blocks(t, eng, "D-1", "T-2", "T-1")

	env := execute(t, tool, `{}`)

	assert.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, "T-1", env.Get("data.tasks.0.id").String())
}

func TestScopedToFeature(t *testing.T) {
	tool, eng := newFixture(t)
	require.NoError(t, eng.Store().CreateFeature(context.Background(), &model.Feature{
		ID: "F-1", Name: "Checkout", Status: "planning", Priority: model.PriorityMedium,
	}))
	seedTask(t, eng, model.Task{ID: "T-1", Title: "In scope", FeatureID: "F-1"})
	seedTask(t, eng, model.Task{ID: "T-2", Title: "Out of scope", Priority: model.PriorityHigh})

	env := execute(t, tool, `{"featureId":"F-1","limit":5}`)

	assert.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, "T-1", env.Get("data.tasks.0.id").String())
}

func TestIncludeDetails(t *testing.T) {
	tool, eng := newFixture(t)
	seedTask(t, eng, model.Task{ID: "T-1", Title: "Cart UI", Priority: model.PriorityHigh})
	seedTask(t, eng, model.Task{ID: "T-2", Title: "Done", Status: "completed"})
	seedTask(t, eng, model.Task{ID: "T-3", Title: "Later"})
	blocks(t, eng, "D-1", "T-2", "T-1")
	blocks(t, eng, "D-2", "T-1", "T-3")
	require.NoError(t, eng.Store().CreateSection(context.Background(), &model.Section{
		ID: "S-1", EntityType: model.EntityTask, EntityID: "T-1",
		Title: "Acceptance Criteria", Content: "- renders items",
		ContentFormat: model.FormatMarkdown, Ordinal: 0,
	}))

	env := execute(t, tool, `{"limit":1,"includeDetails":true}`)

	task := env.Get("data.tasks.0")
	assert.Equal(t, "T-1", task.Get("id").String())
	require.Equal(t, int64(1), task.Get("sections.#").Int())
	assert.Equal(t, "Acceptance Criteria", task.Get("sections.0.title").String())
	assert.Equal(t, "T-2", task.Get("dependencies.blockedBy.0").String())
	assert.Equal(t, "T-3", task.Get("dependencies.blocks.0").String())
}

func TestEmptyQueue(t *testing.T) {
	tool, eng := newFixture(t)
	seedTask(t, eng, model.Task{ID: "T-1", Title: "Busy", Status: "in-progress"})

	env := execute(t, tool, `{}`)

	assert.True(t, env.Get("success").Bool())
	assert.Equal(t, "No tasks are ready to start", env.Get("message").String())
	assert.Equal(t, int64(0), env.Get("data.count").Int())
	assert.True(t, env.Get("data.tasks").IsArray())
}

func TestLimitValidation(t *testing.T) {
	tool, _ := newFixture(t)

	env := execute(t, tool, `{"limit":21}`)

	assert.False(t, env.Get("success").Bool())
	assert.Equal(t, "VALIDATION_ERROR", env.Get("error.code").String())
	assert.Contains(t, env.Get("message").String(), "between 1 and 20")
}

func TestDefaultLimitIsOne(t *testing.T) {
	tool, eng := newFixture(t)
	seedTask(t, eng, model.Task{ID: "T-1", Title: "First", Priority: model.PriorityHigh, Complexity: 2})
	seedTask(t, eng, model.Task{ID: "T-2", Title: "Second", Priority: model.PriorityHigh, Complexity: 9})

	env := execute(t, tool, `{}`)

	assert.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, "1 task(s) ready, next up 'First'", env.Get("message").String())
}
