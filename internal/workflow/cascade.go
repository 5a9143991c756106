package workflow

import (
	"context"
	"fmt"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// Cascade event names.
const (
	EventFirstTaskStarted    = "first_task_started"
	EventAllTasksComplete    = "all_tasks_complete"
	EventAllFeaturesComplete = "all_features_complete"
)

// CascadeEvent is a detected parent-status suggestion. Detection never
// mutates anything; applying is a separate step.
type CascadeEvent struct {
	Event           string           `json:"event"`
	TargetType      model.EntityType `json:"targetType"`
	TargetID        string           `json:"targetId"`
	TargetName      string           `json:"targetName"`
	CurrentStatus   string           `json:"currentStatus"`
	SuggestedStatus string           `json:"suggestedStatus"`
	ActiveFlow      string           `json:"activeFlow"`
	Reason          string           `json:"reason"`
}

// AppliedCascade records the outcome of acting on one cascade event.
// Automatic is false when auto-cascade is disabled and the record is
// only a suggestion surfaced to the caller.
type AppliedCascade struct {
	Event          string            `json:"event"`
	TargetType     model.EntityType  `json:"targetType"`
	TargetID       string            `json:"targetId"`
	TargetName     string            `json:"targetName"`
	PreviousStatus string            `json:"previousStatus,omitempty"`
	NewStatus      string            `json:"newStatus,omitempty"`
	Applied        bool              `json:"applied"`
	Automatic      bool              `json:"automatic"`
	Reason         string            `json:"reason,omitempty"`
	Error          string            `json:"error,omitempty"`
	Cleanup        *CleanupResult    `json:"cleanup,omitempty"`
	ChildCascades  []*AppliedCascade `json:"childCascades,omitempty"`
}

// DetectCascadeEvents computes the parent-status suggestions triggered
// by a status change on the given entity. Projects have no parent and
// never produce events.
func (e *Engine) DetectCascadeEvents(ctx context.Context, id string, t model.EntityType) ([]CascadeEvent, error) {
	switch t {
	case model.EntityTask:
		return e.detectTaskEvents(ctx, id)
	case model.EntityFeature:
		return e.detectFeatureEvents(ctx, id)
	default:
		return nil, nil
	}
}

func (e *Engine) detectTaskEvents(ctx context.Context, taskID string) ([]CascadeEvent, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("cascade detection: %w", err)
	}
	if task == nil || task.FeatureID == "" {
		return nil, nil
	}

	feature, err := e.store.GetFeature(ctx, task.FeatureID)
	if err != nil {
		return nil, fmt.Errorf("cascade detection: %w", err)
	}
	if feature == nil {
		return nil, nil
	}

	siblings, err := e.store.TasksByFeature(ctx, feature.ID)
	if err != nil {
		return nil, fmt.Errorf("cascade detection: %w", err)
	}

	cfg := e.Config()
	flowKey, flow, _ := cfg.ActiveFlow(model.EntityFeature, feature.Tags)
	var events []CascadeEvent

	if ev, ok := e.firstTaskStarted(cfg, task, feature, siblings, flowKey, flow); ok {
		events = append(events, ev)
	}
	if ev, ok := e.allTasksComplete(cfg, feature, siblings, flowKey, flow); ok {
		events = append(events, ev)
	}
	return events, nil
}

// firstTaskStarted fires when this task left the queue for a
// non-terminal status while every sibling is still queued and the
// feature sits at the start of its flow.
func (e *Engine) firstTaskStarted(cfg *config.Config, task *model.Task, feature *model.Feature, siblings []model.Task, flowKey string, flow []string) (CascadeEvent, bool) {
	if e.taskAtFlowStart(cfg, task) || cfg.IsTerminal(model.EntityTask, task.Status) {
		return CascadeEvent{}, false
	}
	for _, s := range siblings {
		if s.ID == task.ID {
			continue
		}
		if !e.taskAtFlowStart(cfg, &s) {
			return CascadeEvent{}, false
		}
	}
	if config.IndexInFlow(flow, feature.Status) != 0 || len(flow) < 2 {
		return CascadeEvent{}, false
	}

	suggested := flow[1]
	return CascadeEvent{
		Event:           EventFirstTaskStarted,
		TargetType:      model.EntityFeature,
		TargetID:        feature.ID,
		TargetName:      feature.Name,
		CurrentStatus:   model.NormalizeStatus(feature.Status),
		SuggestedStatus: suggested,
		ActiveFlow:      flowKey,
		Reason:          fmt.Sprintf("First task '%s' started; feature '%s' can move to '%s'", task.Title, feature.Name, suggested),
	}, true
}

// allTasksComplete fires when every child task is terminal and the
// feature has not yet reached its flow's terminal status.
func (e *Engine) allTasksComplete(cfg *config.Config, feature *model.Feature, siblings []model.Task, flowKey string, flow []string) (CascadeEvent, bool) {
	if len(siblings) == 0 || len(flow) == 0 {
		return CascadeEvent{}, false
	}
	for _, s := range siblings {
		if !cfg.IsTerminal(model.EntityTask, s.Status) {
			return CascadeEvent{}, false
		}
	}

	suggested := flow[len(flow)-1]
	current := model.NormalizeStatus(feature.Status)
	if current == suggested || cfg.IsTerminal(model.EntityFeature, current) {
		return CascadeEvent{}, false
	}

	return CascadeEvent{
		Event:           EventAllTasksComplete,
		TargetType:      model.EntityFeature,
		TargetID:        feature.ID,
		TargetName:      feature.Name,
		CurrentStatus:   current,
		SuggestedStatus: suggested,
		ActiveFlow:      flowKey,
		Reason:          fmt.Sprintf("All %d tasks under feature '%s' are done", len(siblings), feature.Name),
	}, true
}

func (e *Engine) detectFeatureEvents(ctx context.Context, featureID string) ([]CascadeEvent, error) {
	feature, err := e.store.GetFeature(ctx, featureID)
	if err != nil {
		return nil, fmt.Errorf("cascade detection: %w", err)
	}
	if feature == nil || feature.ProjectID == "" {
		return nil, nil
	}

	project, err := e.store.GetProject(ctx, feature.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("cascade detection: %w", err)
	}
	if project == nil {
		return nil, nil
	}

	features, err := e.store.FeaturesByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("cascade detection: %w", err)
	}
	if len(features) == 0 {
		return nil, nil
	}

	cfg := e.Config()
	for _, f := range features {
		if !cfg.IsTerminal(model.EntityFeature, f.Status) {
			return nil, nil
		}
	}

	flowKey, flow, _ := cfg.ActiveFlow(model.EntityProject, project.Tags)
	if len(flow) == 0 {
		return nil, nil
	}
	suggested := flow[len(flow)-1]
	current := model.NormalizeStatus(project.Status)
	if current == suggested || cfg.IsTerminal(model.EntityProject, current) {
		return nil, nil
	}

	return []CascadeEvent{{
		Event:           EventAllFeaturesComplete,
		TargetType:      model.EntityProject,
		TargetID:        project.ID,
		TargetName:      project.Name,
		CurrentStatus:   current,
		SuggestedStatus: suggested,
		ActiveFlow:      flowKey,
		Reason:          fmt.Sprintf("All %d features under project '%s' are done", len(features), project.Name),
	}}, nil
}

// taskAtFlowStart reports whether a task is still queued: its role is
// queue, or, when no role is configured, its status is the first step
// of its active flow.
func (e *Engine) taskAtFlowStart(cfg *config.Config, t *model.Task) bool {
	if role := cfg.RoleFor(model.EntityTask, t.Status); role != "" {
		return role == model.RoleQueue
	}
	_, flow, _ := cfg.ActiveFlow(model.EntityTask, t.Tags)
	return len(flow) > 0 && model.NormalizeStatus(t.Status) == flow[0]
}

// cascadeWork is one pending detection pass in the cascade work list.
type cascadeWork struct {
	id     string
	t      model.EntityType
	depth  int
	parent *AppliedCascade
}

// ApplyCascades detects and applies cascade events starting from the
// entity that just changed, following applied changes upward until
// maxDepth bounds the chain. Failures are folded into the returned
// records; they never propagate to the transition that started the
// chain.
func (e *Engine) ApplyCascades(ctx context.Context, id string, t model.EntityType, depth, maxDepth int) []*AppliedCascade {
	var roots []*AppliedCascade

	work := []cascadeWork{{id: id, t: t, depth: depth}}
	for len(work) > 0 {
		w := work[0]
		work = work[1:]

		events, err := e.DetectCascadeEvents(ctx, w.id, w.t)
		if err != nil {
			e.logger.Warn("cascade detection failed", "entity", w.id, "type", w.t, "error", err)
			continue
		}

		for _, ev := range events {
			rec := e.applyCascadeEvent(ctx, ev)
			if rec == nil {
				continue
			}
			if w.parent == nil {
				roots = append(roots, rec)
			} else {
				w.parent.ChildCascades = append(w.parent.ChildCascades, rec)
			}
			if rec.Applied && w.depth+1 < maxDepth {
				work = append(work, cascadeWork{id: ev.TargetID, t: ev.TargetType, depth: w.depth + 1, parent: rec})
			}
		}
	}
	return roots
}

// applyCascadeEvent acts on one event: fetch, validate, persist, and
// clean up a feature that reached its flow terminal. Returns nil when
// the target already sits at the suggested status.
func (e *Engine) applyCascadeEvent(ctx context.Context, ev CascadeEvent) *AppliedCascade {
	rec := &AppliedCascade{
		Event:          ev.Event,
		TargetType:     ev.TargetType,
		TargetID:       ev.TargetID,
		TargetName:     ev.TargetName,
		PreviousStatus: ev.CurrentStatus,
		Automatic:      true,
		Reason:         ev.Reason,
	}

	unlock := e.locks.LockEntity(string(ev.TargetType), ev.TargetID)
	defer unlock()

	c, err := e.store.GetContainer(ctx, ev.TargetType, ev.TargetID)
	if err != nil {
		rec.Error = fmt.Sprintf("fetch failed: %v", err)
		return rec
	}
	if c == nil {
		rec.Error = "target no longer exists"
		return rec
	}
	rec.PreviousStatus = model.NormalizeStatus(c.Status)
	if rec.PreviousStatus == ev.SuggestedStatus {
		return nil
	}

	if result := e.ValidateTransitionFor(ctx, c, ev.SuggestedStatus); !result.OK() {
		rec.Error = result.Reason
		return rec
	}

	if err := e.store.UpdateContainerStatus(ctx, c.Type, c.ID, ev.SuggestedStatus, e.now()); err != nil {
		rec.Error = fmt.Sprintf("persist failed: %v", err)
		return rec
	}
	e.recordRoleTransition(ctx, c, ev.SuggestedStatus, "cascade:"+ev.Event, "", e.now())

	rec.NewStatus = ev.SuggestedStatus
	rec.Applied = true

	if c.Type == model.EntityFeature && e.Config().IsTerminal(model.EntityFeature, ev.SuggestedStatus) {
		rec.Cleanup = e.CleanupFeature(ctx, c.ID)
	}
	return rec
}

// suggestOnly converts detected events into advisory records for
// responses when auto-cascade is disabled.
func suggestOnly(events []CascadeEvent) []*AppliedCascade {
	if len(events) == 0 {
		return nil
	}
	out := make([]*AppliedCascade, 0, len(events))
	for _, ev := range events {
		out = append(out, &AppliedCascade{
			Event:          ev.Event,
			TargetType:     ev.TargetType,
			TargetID:       ev.TargetID,
			TargetName:     ev.TargetName,
			PreviousStatus: ev.CurrentStatus,
			NewStatus:      ev.SuggestedStatus,
			Applied:        false,
			Automatic:      false,
			Reason:         ev.Reason,
		})
	}
	return out
}
