package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	taskerrors "github.com/taskorchestrator/taskorchestrator/internal/errors"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// TransitionRequest asks for one status transition, expressed as a
// trigger rather than a raw target status. A summary supplied here is
// applied to the entity before validation so it can satisfy the
// completion prerequisite in the same call.
type TransitionRequest struct {
	ContainerID   string           `json:"containerId"`
	ContainerType model.EntityType `json:"containerType"`
	Trigger       string           `json:"trigger"`
	Summary       string           `json:"summary,omitempty"`
}

// TransitionResult is the outcome of a single executed transition.
type TransitionResult struct {
	ContainerID    string            `json:"containerId"`
	ContainerType  model.EntityType  `json:"containerType"`
	ContainerName  string            `json:"containerName,omitempty"`
	Trigger        string            `json:"trigger"`
	Applied        bool              `json:"applied"`
	Message        string            `json:"message,omitempty"`
	PreviousStatus string            `json:"previousStatus,omitempty"`
	NewStatus      string            `json:"newStatus,omitempty"`
	PreviousRole   model.Role        `json:"previousRole,omitempty"`
	NewRole        model.Role        `json:"newRole,omitempty"`
	Advisory       string            `json:"advisory,omitempty"`
	CascadeEvents  []*AppliedCascade `json:"cascadeEvents,omitempty"`
	UnblockedTasks []UnblockedTask   `json:"unblockedTasks,omitempty"`
}

// emergencyTriggers maps trigger verbs to the emergency status they
// request. The status must still be configured for the entity type.
var emergencyTriggers = map[string]string{
	"cancel":  "cancelled",
	"block":   "blocked",
	"hold":    "on-hold",
	"archive": "archived",
}

// ExecuteTransition runs one transition end to end: resolve the
// trigger, validate, gate on verification, persist, log the role
// change, cascade, and report newly unblocked tasks. The entity is
// locked for the duration.
func (e *Engine) ExecuteTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if !model.IsValidEntityType(req.ContainerType) {
		return nil, taskerrors.ErrValidation(
			fmt.Sprintf("Unknown container type '%s'", req.ContainerType),
			"containerType must be one of project, feature, task")
	}
	if req.ContainerID == "" {
		return nil, taskerrors.ErrValidation("Container id is required", "")
	}

	unlock := e.locks.LockEntity(string(req.ContainerType), req.ContainerID)
	defer unlock()

	c, err := e.store.GetContainer(ctx, req.ContainerType, req.ContainerID)
	if err != nil {
		return nil, taskerrors.ErrDatabase("fetch container", err)
	}
	if c == nil {
		return nil, taskerrors.ErrContainerNotFound(string(req.ContainerType), req.ContainerID)
	}

	summary := strings.TrimSpace(req.Summary)
	if summary != "" {
		c.Summary = summary
	}

	target, resolveErr := e.resolveTrigger(ctx, c, req.Trigger)
	if resolveErr != nil {
		return nil, resolveErr
	}

	current := model.NormalizeStatus(c.Status)
	result := &TransitionResult{
		ContainerID:    c.ID,
		ContainerType:  c.Type,
		ContainerName:  c.Name,
		Trigger:        req.Trigger,
		PreviousStatus: current,
	}
	if current == target {
		result.NewStatus = current
		result.Message = "No transition needed"
		return result, nil
	}

	validation := e.ValidateTransitionFor(ctx, c, target)
	if !validation.OK() {
		return nil, taskerrors.ErrInvalidTransition(current, target, validation.Reason, validation.Suggestions)
	}

	cfg := e.Config()
	if cfg.IsTerminal(c.Type, target) && c.RequiresVerification {
		if gateErr := e.verificationGate(ctx, c); gateErr != nil {
			return nil, gateErr
		}
	}

	now := e.now()
	if err := e.store.UpdateContainerStatus(ctx, c.Type, c.ID, target, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, taskerrors.ErrContainerNotFound(string(c.Type), c.ID)
		}
		return nil, taskerrors.ErrDatabase("persist status", err)
	}
	if summary != "" {
		if err := e.store.UpdateContainerSummary(ctx, c.Type, c.ID, summary, now); err != nil {
			e.logger.Warn("summary persist failed", "entity", c.ID, "error", err)
		}
	}

	result.PreviousRole, result.NewRole = e.recordRoleTransition(ctx, c, target, req.Trigger, summary, now)
	result.NewStatus = target
	result.Applied = true
	result.Message = fmt.Sprintf("%s moved from '%s' to '%s'", c.Type, current, target)
	result.Advisory = validation.Advisory

	if cfg.Cascade.Enabled {
		result.CascadeEvents = e.ApplyCascades(ctx, c.ID, c.Type, 0, cfg.Cascade.MaxDepth)
	} else {
		events, err := e.DetectCascadeEvents(ctx, c.ID, c.Type)
		if err != nil {
			e.logger.Warn("cascade detection failed", "entity", c.ID, "type", c.Type, "error", err)
		}
		result.CascadeEvents = suggestOnly(events)
	}

	if c.Type == model.EntityTask && cfg.IsTerminal(model.EntityTask, target) {
		result.UnblockedTasks = e.NewlyUnblocked(ctx, c.ID)
	}

	e.logger.Info("transition applied",
		"entity", c.ID, "type", c.Type, "from", current, "to", target, "trigger", req.Trigger)
	return result, nil
}

// resolveTrigger turns a trigger into a concrete target status:
// emergency verbs map to the configured emergency statuses, a trigger
// naming a status directly requests that status, and any other verb
// asks GetNextStatus for the flow's recommendation.
func (e *Engine) resolveTrigger(ctx context.Context, c *model.Container, trigger string) (string, error) {
	verb := strings.ToLower(strings.TrimSpace(trigger))
	if verb == "" {
		return "", taskerrors.ErrValidation("Trigger is required",
			"Supply a trigger such as 'start', 'complete', 'cancel', or a status name")
	}

	cfg := e.Config()
	if status, ok := emergencyTriggers[verb]; ok {
		if cfg.IsEmergency(c.Type, status) {
			return status, nil
		}
		return "", taskerrors.ErrValidation(
			fmt.Sprintf("No '%s' emergency status is configured for %ss", status, c.Type),
			fmt.Sprintf("Add '%s' to emergency_transitions to enable this trigger", status))
	}

	if name := model.NormalizeStatus(verb); cfg.AllowedStatuses(c.Type)[name] {
		return name, nil
	}

	rec := e.nextStatusFor(ctx, c, "", nil)
	switch rec.State {
	case NextReady:
		return rec.RecommendedStatus, nil
	case NextBlocked:
		return "", taskerrors.ErrValidation(rec.Reason, strings.Join(rec.Blockers, "; ")).
			WithData("blockers", rec.Blockers).
			WithData("currentStatus", rec.CurrentStatus)
	default:
		return "", taskerrors.ErrValidation(rec.Reason, "").
			WithData("currentStatus", rec.CurrentStatus)
	}
}

// verificationGate checks the Verification section of an entity that
// requires verification before going terminal. The section holds a
// JSON array of {criteria, pass} objects; every entry must pass.
func (e *Engine) verificationGate(ctx context.Context, c *model.Container) error {
	section, err := e.store.SectionByTitle(ctx, c.Type, c.ID, "Verification")
	if err != nil {
		return taskerrors.ErrDatabase("load verification section", err)
	}
	if section == nil {
		return taskerrors.ErrValidation(
			"Verification is required before completion",
			fmt.Sprintf("%s '%s' requires verification but has no Verification section", c.Type, c.Name)).
			WithData("gate", "verification")
	}

	parsed := gjson.Parse(section.Content)
	if !parsed.IsArray() {
		return taskerrors.ErrValidation(
			"Verification section is not a JSON array of criteria",
			`Expected content like [{"criteria": "...", "pass": true}]`).
			WithData("gate", "verification")
	}

	var failing []string
	parsed.ForEach(func(_, item gjson.Result) bool {
		if !item.Get("pass").Bool() {
			name := item.Get("criteria").String()
			if name == "" {
				name = "unnamed criterion"
			}
			failing = append(failing, name)
		}
		return true
	})
	if len(failing) > 0 {
		return taskerrors.ErrVerificationFailed(failing)
	}
	return nil
}

// BatchItemResult pairs one batch element with its outcome.
type BatchItemResult struct {
	ContainerID   string               `json:"containerId"`
	ContainerType model.EntityType     `json:"containerType"`
	Success       bool                 `json:"success"`
	Result        *TransitionResult    `json:"result,omitempty"`
	Error         *taskerrors.AppError `json:"error,omitempty"`
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Total           int `json:"total"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	CascadesApplied int `json:"cascadesApplied"`
}

// BatchResult is the outcome of ExecuteBatch.
type BatchResult struct {
	Results []BatchItemResult `json:"results"`
	Summary BatchSummary      `json:"summary"`
}

// ExecuteBatch runs each transition independently: one element failing
// never stops the rest, and a later element finding its work already
// done by an earlier cascade counts as success.
func (e *Engine) ExecuteBatch(ctx context.Context, reqs []TransitionRequest) *BatchResult {
	out := &BatchResult{Results: make([]BatchItemResult, 0, len(reqs))}
	for _, req := range reqs {
		item := BatchItemResult{ContainerID: req.ContainerID, ContainerType: req.ContainerType}

		res, err := e.ExecuteTransition(ctx, req)
		if err != nil {
			item.Error = asAppError(err)
			out.Summary.Failed++
		} else {
			item.Success = true
			item.Result = res
			out.Summary.Succeeded++
			out.Summary.CascadesApplied += countApplied(res.CascadeEvents)
		}
		out.Summary.Total++
		out.Results = append(out.Results, item)
	}
	return out
}

// countApplied counts the applied records in a cascade tree.
func countApplied(records []*AppliedCascade) int {
	n := 0
	for _, rec := range records {
		if rec.Applied {
			n++
		}
		n += countApplied(rec.ChildCascades)
	}
	return n
}

func asAppError(err error) *taskerrors.AppError {
	if appErr := taskerrors.AsAppError(err); appErr != nil {
		return appErr
	}
	return taskerrors.Wrap(err, "transition failed")
}
