package workflow

import (
	"context"
	"sort"

	"github.com/taskorchestrator/taskorchestrator/internal/db"
	taskerrors "github.com/taskorchestrator/taskorchestrator/internal/errors"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// UnblockedTask identifies a task whose last blocking dependency just
// resolved.
type UnblockedTask struct {
	TaskID string `json:"taskId"`
	Title  string `json:"title"`
}

// NewlyUnblocked computes the tasks freed by taskID reaching a terminal
// status: every non-terminal task blocked by it whose inbound blocking
// edges now all source from terminal tasks. Lookup failures keep the
// edge blocking; missing endpoints count as resolved. Errors are
// logged, never returned: an unblock scan must not fail the transition
// that triggered it.
func (e *Engine) NewlyUnblocked(ctx context.Context, taskID string) []UnblockedTask {
	edges, err := e.store.OutboundBlocking(ctx, taskID)
	if err != nil {
		e.logger.Warn("unblock scan failed", "task", taskID, "error", err)
		return nil
	}

	cfg := e.Config()
	seen := make(map[string]bool)
	var out []UnblockedTask
	for _, edge := range edges {
		blockedID := edge.BlockedTaskID()
		if blockedID == taskID || seen[blockedID] {
			continue
		}
		seen[blockedID] = true

		blocked, err := e.store.GetTask(ctx, blockedID)
		if err != nil {
			e.logger.Warn("unblock scan: blocked task lookup failed", "task", blockedID, "error", err)
			continue
		}
		if blocked == nil {
			e.logger.Warn("unblock scan: dependency references missing task", "task", blockedID)
			continue
		}
		if cfg.IsTerminal(model.EntityTask, blocked.Status) {
			continue
		}
		if e.allBlockersTerminal(ctx, blocked.ID) {
			out = append(out, UnblockedTask{TaskID: blocked.ID, Title: blocked.Title})
		}
	}
	return out
}

// NextTasks returns up to limit queued tasks that are ready to start,
// ordered by priority (high first) then ascending complexity. Tasks
// with an unresolved inbound blocker are excluded even though they sit
// in the queue.
func (e *Engine) NextTasks(ctx context.Context, projectID, featureID string, limit int) ([]model.Task, error) {
	tasks, err := e.store.ListTasks(ctx, db.TaskFilters{ProjectID: projectID, FeatureID: featureID})
	if err != nil {
		return nil, taskerrors.ErrDatabase("list tasks", err)
	}

	cfg := e.Config()
	var ready []model.Task
	for i := range tasks {
		task := &tasks[i]
		if !e.taskAtFlowStart(cfg, task) {
			continue
		}
		if !e.allBlockersTerminal(ctx, task.ID) {
			continue
		}
		ready = append(ready, *task)
	}

	// The repository orders by complexity high-first for listing; the
	// recommendation wants the easiest task of the highest priority.
	sort.SliceStable(ready, func(i, j int) bool {
		pi, pj := model.PriorityOrder(ready[i].Priority), model.PriorityOrder(ready[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return ready[i].Complexity < ready[j].Complexity
	})

	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	return ready, nil
}

// BlockedTaskInfo describes one blocked task and what blocks it.
type BlockedTaskInfo struct {
	TaskID    string         `json:"taskId"`
	Title     string         `json:"title"`
	Status    string         `json:"status"`
	Priority  model.Priority `json:"priority"`
	ProjectID string         `json:"projectId,omitempty"`
	FeatureID string         `json:"featureId,omitempty"`
	BlockedBy []string       `json:"blockedBy"`
}

// BlockedTasks returns every non-terminal task that still has an
// unsatisfied inbound blocking edge, with the blockers rendered the
// same way the validator reports them.
func (e *Engine) BlockedTasks(ctx context.Context) ([]BlockedTaskInfo, error) {
	edges, err := e.store.AllBlockingDependencies(ctx)
	if err != nil {
		return nil, taskerrors.ErrDatabase("scan dependencies", err)
	}

	byBlocked := make(map[string][]model.Dependency)
	var order []string
	for _, edge := range edges {
		id := edge.BlockedTaskID()
		if _, ok := byBlocked[id]; !ok {
			order = append(order, id)
		}
		byBlocked[id] = append(byBlocked[id], edge)
	}

	cfg := e.Config()
	var out []BlockedTaskInfo
	for _, id := range order {
		task, err := e.store.GetTask(ctx, id)
		if err != nil {
			e.logger.Warn("blocked scan: task lookup failed", "task", id, "error", err)
			continue
		}
		if task == nil || cfg.IsTerminal(model.EntityTask, task.Status) {
			continue
		}
		blockers := e.unsatisfiedBlockers(ctx, id, byBlocked[id])
		if len(blockers) == 0 {
			continue
		}
		out = append(out, BlockedTaskInfo{
			TaskID:    task.ID,
			Title:     task.Title,
			Status:    model.NormalizeStatus(task.Status),
			Priority:  task.Priority,
			ProjectID: task.ProjectID,
			FeatureID: task.FeatureID,
			BlockedBy: blockers,
		})
	}
	return out, nil
}

// allBlockersTerminal reports whether every inbound blocking edge into
// a task sources from a terminal task. Unknown sources are treated as
// still blocking.
func (e *Engine) allBlockersTerminal(ctx context.Context, taskID string) bool {
	inbound, err := e.store.InboundBlocking(ctx, taskID)
	if err != nil {
		e.logger.Warn("unblock scan: inbound lookup failed", "task", taskID, "error", err)
		return false
	}

	cfg := e.Config()
	for _, edge := range inbound {
		sourceID := edge.BlockingTaskID()
		source, err := e.store.GetTask(ctx, sourceID)
		if err != nil {
			e.logger.Warn("unblock scan: blocker lookup failed", "task", taskID, "blocker", sourceID, "error", err)
			return false
		}
		if source == nil {
			e.logger.Warn("unblock scan: blocker missing; treating edge as resolved", "task", taskID, "blocker", sourceID)
			continue
		}
		if !cfg.IsTerminal(model.EntityTask, source.Status) {
			return false
		}
	}
	return true
}
