package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// ValidationState classifies a validation outcome.
type ValidationState string

const (
	StateValid    ValidationState = "valid"
	StateAdvisory ValidationState = "valid_with_advisory"
	StateInvalid  ValidationState = "invalid"
)

// ValidationResult is the outcome of a status or transition check.
type ValidationResult struct {
	State       ValidationState `json:"state"`
	Reason      string          `json:"reason,omitempty"`
	Advisory    string          `json:"advisory,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
}

// OK reports whether the transition may proceed.
func (r ValidationResult) OK() bool {
	return r.State != StateInvalid
}

func valid() ValidationResult {
	return ValidationResult{State: StateValid}
}

func advisory(msg string) ValidationResult {
	return ValidationResult{State: StateAdvisory, Advisory: msg}
}

func invalid(reason string, suggestions ...string) ValidationResult {
	return ValidationResult{State: StateInvalid, Reason: reason, Suggestions: truncateSuggestions(suggestions)}
}

// maxSuggestions bounds suggestion lists; overflow collapses into an
// "and N more" tail entry.
const maxSuggestions = 3

func truncateSuggestions(items []string) []string {
	if len(items) <= maxSuggestions {
		return items
	}
	out := make([]string, maxSuggestions, maxSuggestions+1)
	copy(out, items[:maxSuggestions])
	return append(out, fmt.Sprintf("and %d more", len(items)-maxSuggestions))
}

// environmentTags are the tags that satisfy the deployed-status advisory.
var environmentTags = map[string]bool{
	"staging":     true,
	"production":  true,
	"canary":      true,
	"dev":         true,
	"development": true,
	"prod":        true,
}

func hasEnvironmentTag(tags []string) bool {
	for _, tag := range tags {
		if environmentTags[strings.ToLower(tag)] {
			return true
		}
	}
	return false
}

// AllowedStatuses returns the derived allowed status set for a type,
// sorted for stable output.
func (e *Engine) AllowedStatuses(t model.EntityType) []string {
	allowed := e.Config().AllowedStatuses(t)
	out := make([]string, 0, len(allowed))
	for s := range allowed {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ValidateStatus checks that a status belongs to the derived allowed set
// for the entity type. A deployed target without an environment tag is
// accepted with an advisory rather than rejected.
func (e *Engine) ValidateStatus(status string, t model.EntityType, tags []string) ValidationResult {
	status = model.NormalizeStatus(status)
	cfg := e.Config()

	if !cfg.AllowedStatuses(t)[status] {
		return invalid(
			fmt.Sprintf("Status '%s' is not allowed for %ss", status, t),
			e.AllowedStatuses(t)...,
		)
	}
	if status == "deployed" && !hasEnvironmentTag(tags) {
		return advisory("Consider adding an environment tag (staging, production, canary, dev, development, prod) when using 'deployed'")
	}
	return valid()
}

// ValidateTransition checks a status change end to end: allowed set,
// terminal guard, emergency bypass, flow positioning, and (when an
// entity id is supplied) cross-entity prerequisites.
func (e *Engine) ValidateTransition(ctx context.Context, current, target string, t model.EntityType, id string, tags []string) ValidationResult {
	current = model.NormalizeStatus(current)
	target = model.NormalizeStatus(target)
	cfg := e.Config()

	statusResult := e.ValidateStatus(target, t, tags)
	if statusResult.State == StateInvalid {
		return statusResult
	}

	if cfg.IsTerminal(t, current) {
		return invalid(fmt.Sprintf("Cannot transition from terminal status '%s'", current))
	}

	if cfg.IsEmergency(t, target) && cfg.Validation.AllowEmergency {
		return statusResult
	}

	if flowResult := e.validateFlowPosition(cfg, current, target, t, tags); flowResult.State == StateInvalid {
		return flowResult
	}

	if cfg.Validation.ValidatePrerequisites && id != "" {
		if prereq := e.ValidatePrerequisites(ctx, id, target, t); prereq.State == StateInvalid {
			return prereq
		}
	}

	return statusResult
}

// ValidateTransitionFor runs the same checks against an already-loaded
// container. Prerequisites read the container's in-memory fields, so a
// summary supplied with the transition request counts even though it
// has not been persisted yet.
func (e *Engine) ValidateTransitionFor(ctx context.Context, c *model.Container, target string) ValidationResult {
	current := model.NormalizeStatus(c.Status)
	target = model.NormalizeStatus(target)
	cfg := e.Config()

	statusResult := e.ValidateStatus(target, c.Type, c.Tags)
	if statusResult.State == StateInvalid {
		return statusResult
	}

	if cfg.IsTerminal(c.Type, current) {
		return invalid(fmt.Sprintf("Cannot transition from terminal status '%s'", current))
	}

	if cfg.IsEmergency(c.Type, target) && cfg.Validation.AllowEmergency {
		return statusResult
	}

	if flowResult := e.validateFlowPosition(cfg, current, target, c.Type, c.Tags); flowResult.State == StateInvalid {
		return flowResult
	}

	if cfg.Validation.ValidatePrerequisites {
		if prereq := e.prerequisitesFor(ctx, c, target); prereq.State == StateInvalid {
			return prereq
		}
	}

	return statusResult
}

// validateFlowPosition enforces flow ordering between current and target.
func (e *Engine) validateFlowPosition(cfg *config.Config, current, target string, t model.EntityType, tags []string) ValidationResult {
	_, flow, _ := cfg.ActiveFlow(t, tags)
	i := config.IndexInFlow(flow, current)
	j := config.IndexInFlow(flow, target)

	// A status outside the active flow may belong to another flow;
	// positioning cannot be judged.
	if i < 0 || j < 0 {
		return valid()
	}

	if j < i {
		if cfg.Validation.AllowBackward {
			return valid()
		}
		return invalid(
			fmt.Sprintf("Backward transition from '%s' to '%s' is not allowed", current, target),
			config.NextInFlow(flow, current),
		)
	}

	if j > i+1 && cfg.Validation.EnforceSequential {
		skipped := flow[i+1 : j]
		return invalid(
			fmt.Sprintf("Cannot skip from '%s' to '%s'; intermediate statuses required", current, target),
			skipped...,
		)
	}

	return valid()
}

// ValidatePrerequisites runs the cross-entity checks for a target status.
func (e *Engine) ValidatePrerequisites(ctx context.Context, id, target string, t model.EntityType) ValidationResult {
	target = model.NormalizeStatus(target)
	cfg := e.Config()

	switch t {
	case model.EntityFeature:
		switch target {
		case "in-development":
			return e.requireFeatureHasTasks(ctx, id)
		case "testing", "completed":
			return e.requireFeatureTasksDone(ctx, id, target)
		}
	case model.EntityTask:
		switch {
		case target == "in-progress":
			return e.requireBlockersSatisfied(ctx, id)
		case cfg.IsTerminal(model.EntityTask, target) && target == "completed":
			return e.requireCompletionSummary(ctx, id)
		}
	case model.EntityProject:
		if target == "completed" {
			return e.requireProjectFeaturesDone(ctx, id)
		}
	}

	return valid()
}

// prerequisitesFor mirrors ValidatePrerequisites for a loaded container,
// checking the completion summary against the in-memory value.
func (e *Engine) prerequisitesFor(ctx context.Context, c *model.Container, target string) ValidationResult {
	target = model.NormalizeStatus(target)
	cfg := e.Config()

	switch c.Type {
	case model.EntityFeature:
		switch target {
		case "in-development":
			return e.requireFeatureHasTasks(ctx, c.ID)
		case "testing", "completed":
			return e.requireFeatureTasksDone(ctx, c.ID, target)
		}
	case model.EntityTask:
		switch {
		case target == "in-progress":
			return e.requireBlockersSatisfied(ctx, c.ID)
		case cfg.IsTerminal(model.EntityTask, target) && target == "completed":
			return checkSummaryLength(c.Summary)
		}
	case model.EntityProject:
		if target == "completed" {
			return e.requireProjectFeaturesDone(ctx, c.ID)
		}
	}

	return valid()
}

func (e *Engine) requireFeatureHasTasks(ctx context.Context, featureID string) ValidationResult {
	n, err := e.store.CountTasksByFeature(ctx, featureID)
	if err != nil {
		e.logger.Warn("prerequisite task count failed", "feature", featureID, "error", err)
		return valid()
	}
	if n == 0 {
		return invalid(
			"Feature must have at least one task before development starts",
			"Create a task under this feature first",
		)
	}
	return valid()
}

// requireFeatureTasksDone demands every child task be in a terminal
// status. Cancelled tasks count as done; the completion cleanup pass
// removes them afterwards.
func (e *Engine) requireFeatureTasksDone(ctx context.Context, featureID, target string) ValidationResult {
	tasks, err := e.store.TasksByFeature(ctx, featureID)
	if err != nil {
		e.logger.Warn("prerequisite task scan failed", "feature", featureID, "error", err)
		return valid()
	}

	cfg := e.Config()
	var unfinished []string
	for _, task := range tasks {
		if !cfg.IsTerminal(model.EntityTask, task.Status) {
			unfinished = append(unfinished, fmt.Sprintf("%s (%s)", task.Title, task.Status))
		}
	}
	if len(unfinished) > 0 {
		return invalid(
			fmt.Sprintf("Cannot move feature to '%s': %d task(s) are not completed", target, len(unfinished)),
			unfinished...,
		)
	}
	return valid()
}

// requireBlockersSatisfied checks every inbound blocking edge: the
// blocking task's role, resolved through the role map only, must satisfy
// the edge's unblockAt role (default terminal).
func (e *Engine) requireBlockersSatisfied(ctx context.Context, taskID string) ValidationResult {
	edges, err := e.store.InboundBlocking(ctx, taskID)
	if err != nil {
		e.logger.Warn("prerequisite blocker scan failed", "task", taskID, "error", err)
		return valid()
	}

	blockers := e.unsatisfiedBlockers(ctx, taskID, edges)
	if len(blockers) > 0 {
		return invalid(
			"Task is blocked by incomplete dependencies",
			blockers...,
		)
	}
	return valid()
}

// unsatisfiedBlockers renders the inbound blocking edges whose source
// task has not yet reached the required role. Missing source tasks are
// treated as resolved and logged.
func (e *Engine) unsatisfiedBlockers(ctx context.Context, taskID string, edges []model.Dependency) []string {
	cfg := e.Config()

	var blockers []string
	for _, edge := range edges {
		blockerID := edge.BlockingTaskID()
		blocker, err := e.store.GetTask(ctx, blockerID)
		if err != nil {
			e.logger.Warn("blocker lookup failed", "task", taskID, "blocker", blockerID, "error", err)
			blockers = append(blockers, fmt.Sprintf("%s needs %s role (currently unknown)", blockerID, requiredRole(edge)))
			continue
		}
		if blocker == nil {
			e.logger.Warn("blocker task missing; treating edge as resolved", "task", taskID, "blocker", blockerID)
			continue
		}

		required := requiredRole(edge)
		role := cfg.RoleFor(model.EntityTask, blocker.Status)
		if !model.RoleSatisfies(role, required) {
			roleName := string(role)
			if roleName == "" {
				roleName = "unknown"
			}
			blockers = append(blockers, fmt.Sprintf("%s needs %s role (currently %s)", blocker.Title, required, roleName))
		}
	}
	return blockers
}

// requiredRole resolves an edge's unblockAt role, defaulting to terminal.
func requiredRole(edge model.Dependency) model.Role {
	if edge.UnblockAt == "" {
		return model.RoleTerminal
	}
	role := model.Role(strings.ToLower(strings.TrimSpace(edge.UnblockAt)))
	if !model.IsValidRole(role) {
		return model.RoleTerminal
	}
	return role
}

// summaryMinLen and summaryMaxLen bound the completion summary.
const (
	summaryMinLen = 300
	summaryMaxLen = 500
)

func (e *Engine) requireCompletionSummary(ctx context.Context, taskID string) ValidationResult {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil || task == nil {
		if err != nil {
			e.logger.Warn("prerequisite summary lookup failed", "task", taskID, "error", err)
		}
		return valid()
	}
	return checkSummaryLength(task.Summary)
}

func checkSummaryLength(summary string) ValidationResult {
	length := len(strings.TrimSpace(summary))
	if length < summaryMinLen || length > summaryMaxLen {
		return invalid(
			fmt.Sprintf("Completion summary must be 300-500 characters (current: %d)", length),
			"Update the task summary before completing",
		)
	}
	return valid()
}

func (e *Engine) requireProjectFeaturesDone(ctx context.Context, projectID string) ValidationResult {
	features, err := e.store.FeaturesByProject(ctx, projectID)
	if err != nil {
		e.logger.Warn("prerequisite feature scan failed", "project", projectID, "error", err)
		return valid()
	}

	cfg := e.Config()
	var unfinished []string
	for _, f := range features {
		if !cfg.IsTerminal(model.EntityFeature, f.Status) {
			unfinished = append(unfinished, fmt.Sprintf("%s (%s)", f.Name, f.Status))
		}
	}
	if len(unfinished) > 0 {
		return invalid(
			fmt.Sprintf("Cannot complete project: %d feature(s) are not completed", len(unfinished)),
			unfinished...,
		)
	}
	return valid()
}
