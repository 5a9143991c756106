package workflow

import (
	"context"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// CleanupResult reports what the completion cleanup pass did for one
// feature.
type CleanupResult struct {
	Performed           bool     `json:"performed"`
	TasksDeleted        int      `json:"tasksDeleted"`
	TasksRetained       int      `json:"tasksRetained"`
	RetainedTaskIDs     []string `json:"retainedTaskIds,omitempty"`
	SectionsDeleted     int      `json:"sectionsDeleted"`
	DependenciesDeleted int      `json:"dependenciesDeleted"`
	Reason              string   `json:"reason,omitempty"`
}

// CleanupFeature applies the cleanup policy after a feature reached its
// flow terminal: cancelled tasks are deleted together with their
// sections and dependency rows, completed tasks are retained. Both
// halves of the policy are configurable. Failures are logged and
// reflected in the result; they never unwind the cascade that
// triggered the cleanup.
func (e *Engine) CleanupFeature(ctx context.Context, featureID string) *CleanupResult {
	cfg := e.Config()
	res := &CleanupResult{}

	if !cfg.Cleanup.Enabled {
		res.Reason = "cleanup disabled"
		return res
	}

	tasks, err := e.store.TasksByFeature(ctx, featureID)
	if err != nil {
		e.logger.Warn("cleanup task scan failed", "feature", featureID, "error", err)
		res.Reason = "task scan failed"
		return res
	}

	for i := range tasks {
		task := &tasks[i]
		var doomed bool
		switch model.NormalizeStatus(task.Status) {
		case "cancelled":
			doomed = cfg.Cleanup.DeleteCancelled
		case "completed":
			doomed = !cfg.Cleanup.RetainCompleted
		}

		if !doomed {
			res.TasksRetained++
			res.RetainedTaskIDs = append(res.RetainedTaskIDs, task.ID)
			continue
		}
		e.deleteTaskRemnants(ctx, task, res)
	}

	res.Performed = true
	return res
}

// deleteTaskRemnants removes one task together with its sections and
// dependency rows, keeping the counts in the result current. Dependency
// rows go first so the task delete does not trip the foreign keys.
func (e *Engine) deleteTaskRemnants(ctx context.Context, task *model.Task, res *CleanupResult) {
	deps, err := e.store.DependenciesForTask(ctx, task.ID)
	if err != nil {
		e.logger.Warn("cleanup dependency scan failed", "task", task.ID, "error", err)
		res.Reason = "partial: dependency scan failed"
		res.TasksRetained++
		res.RetainedTaskIDs = append(res.RetainedTaskIDs, task.ID)
		return
	}
	if err := e.store.DeleteDependenciesForTask(ctx, task.ID); err != nil {
		e.logger.Warn("cleanup dependency delete failed", "task", task.ID, "error", err)
		res.Reason = "partial: dependency delete failed"
		res.TasksRetained++
		res.RetainedTaskIDs = append(res.RetainedTaskIDs, task.ID)
		return
	}
	res.DependenciesDeleted += len(deps)

	sections, err := e.store.SectionsForEntity(ctx, model.EntityTask, task.ID)
	if err != nil {
		e.logger.Warn("cleanup section scan failed", "task", task.ID, "error", err)
	}
	if err := e.store.DeleteSectionsForEntity(ctx, model.EntityTask, task.ID); err != nil {
		e.logger.Warn("cleanup section delete failed", "task", task.ID, "error", err)
		res.Reason = "partial: section delete failed"
	} else {
		res.SectionsDeleted += len(sections)
	}

	if err := e.store.DeleteTask(ctx, task.ID); err != nil {
		e.logger.Warn("cleanup task delete failed", "task", task.ID, "error", err)
		res.Reason = "partial: task delete failed"
		res.TasksRetained++
		res.RetainedTaskIDs = append(res.RetainedTaskIDs, task.ID)
		return
	}
	res.TasksDeleted++
}
