// Package nexttask implements the get_next_task tool: recommend queued
// tasks that are ready to start, easiest-first within the highest
// priority, skipping anything still blocked.
package nexttask

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	taskerrors "github.com/taskorchestrator/taskorchestrator/internal/errors"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/respond"
	"github.com/taskorchestrator/taskorchestrator/internal/workflow"
)

const (
	defaultLimit = 1
	maxLimit     = 20
)

type params struct {
	ProjectID      string `json:"projectId,omitempty"`
	FeatureID      string `json:"featureId,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	IncludeDetails bool   `json:"includeDetails,omitempty"`
}

// taskDetail decorates a recommended task with its sections and
// dependency edges when includeDetails is set.
type taskDetail struct {
	model.Task
	Sections     []model.Section     `json:"sections,omitempty"`
	Dependencies map[string][]string `json:"dependencies,omitempty"`
}

// Pick is the get_next_task tool.
type Pick struct {
	engine *workflow.Engine
	logger *slog.Logger
}

// NewPick builds the tool around a workflow engine.
func NewPick(engine *workflow.Engine, logger *slog.Logger) *Pick {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pick{engine: engine, logger: logger}
}

func (t *Pick) Name() string { return "get_next_task" }

func (t *Pick) Description() string {
	return "Recommend the next task(s) to work on: queued tasks with every blocker resolved, ordered by priority (high first) then ascending complexity. Scope with projectId or featureId; includeDetails adds sections and dependency edges."
}

func (t *Pick) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "projectId": {"type": "string", "description": "Only consider tasks in this project"},
    "featureId": {"type": "string", "description": "Only consider tasks in this feature"},
    "limit": {"type": "integer", "minimum": 1, "maximum": 20, "description": "How many recommendations to return (default 1)"},
    "includeDetails": {"type": "boolean", "description": "Attach each task's sections and dependency edges"}
  }
}`)
}

func (t *Pick) Execute(ctx context.Context, args json.RawMessage) (res *mcp.ToolsCallResult, err error) {
	defer respond.Recovered(t.logger, &res, &err)

	var p params
	if err := json.Unmarshal(args, &p); err != nil {
		return respond.BadParams(err), nil
	}

	limit := p.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 1 || limit > maxLimit {
		return respond.Invalid(
			fmt.Sprintf("Limit must be between 1 and %d (got %d)", maxLimit, p.Limit),
			"Omit limit for a single recommendation"), nil
	}

	tasks, err := t.engine.NextTasks(ctx, strings.TrimSpace(p.ProjectID), strings.TrimSpace(p.FeatureID), limit)
	if err != nil {
		return respond.Failure(err), nil
	}

	if len(tasks) == 0 {
		return respond.Success("No tasks are ready to start",
			map[string]any{"tasks": []model.Task{}, "count": 0}), nil
	}

	var payload any = tasks
	if p.IncludeDetails {
		details := make([]taskDetail, 0, len(tasks))
		for i := range tasks {
			d, ae := t.detail(ctx, tasks[i])
			if ae != nil {
				return respond.Failure(ae), nil
			}
			details = append(details, d)
		}
		payload = details
	}

	data := map[string]any{"tasks": payload, "count": len(tasks)}
	msg := fmt.Sprintf("%d task(s) ready, next up '%s'", len(tasks), tasks[0].Title)
	return respond.Success(msg, data), nil
}

func (t *Pick) detail(ctx context.Context, task model.Task) (taskDetail, *taskerrors.AppError) {
	d := taskDetail{Task: task}

	sections, err := t.engine.Store().SectionsForEntity(ctx, model.EntityTask, task.ID)
	if err != nil {
		return d, taskerrors.ErrDatabase("list sections", err)
	}
	d.Sections = sections

	deps, err := t.engine.Store().DependenciesForTask(ctx, task.ID)
	if err != nil {
		return d, taskerrors.ErrDatabase("list dependencies", err)
	}
	if len(deps) > 0 {
		d.Dependencies = groupEdges(task.ID, deps)
	}
	return d, nil
}

// groupEdges splits a task's dependency edges by what they mean for it.
func groupEdges(taskID string, deps []model.Dependency) map[string][]string {
	out := make(map[string][]string)
	for _, d := range deps {
		switch {
		case d.Type == model.DependencyRelatesTo:
			other := d.FromTaskID
			if other == taskID {
				other = d.ToTaskID
			}
			out["relatesTo"] = append(out["relatesTo"], other)
		case d.BlockingTaskID() == taskID:
			out["blocks"] = append(out["blocks"], d.BlockedTaskID())
		default:
			out["blockedBy"] = append(out["blockedBy"], d.BlockingTaskID())
		}
	}
	return out
}
