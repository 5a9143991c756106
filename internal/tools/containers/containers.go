// Package containers implements the manage_container tool: create,
// update, delete, setStatus, and bulkUpdate over projects, features,
// and tasks. setStatus delegates to the transition executor so the
// full workflow semantics (validation, cascades, unblocking) apply.
package containers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	taskerrors "github.com/taskorchestrator/taskorchestrator/internal/errors"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/respond"
	"github.com/taskorchestrator/taskorchestrator/internal/workflow"
)

// maxBulkItems bounds a single bulkUpdate call.
const maxBulkItems = 100

// maxSummaryLength caps the summary field on any container.
const maxSummaryLength = 500

// fieldSet carries the writable fields shared by create, update, and
// bulkUpdate items. Pointer fields distinguish absent from an explicit
// zero value, so an update can clear a field by sending "".
type fieldSet struct {
	Name                 string   `json:"name,omitempty"`
	Title                string   `json:"title,omitempty"`
	Summary              *string  `json:"summary,omitempty"`
	Description          *string  `json:"description,omitempty"`
	Status               string   `json:"status,omitempty"`
	Priority             string   `json:"priority,omitempty"`
	Complexity           *int     `json:"complexity,omitempty"`
	ProjectID            *string  `json:"projectId,omitempty"`
	FeatureID            *string  `json:"featureId,omitempty"`
	Tags                 *string  `json:"tags,omitempty"`
	TemplateIDs          []string `json:"templateIds,omitempty"`
	RequiresVerification *bool    `json:"requiresVerification,omitempty"`
}

type bulkItem struct {
	ID string `json:"id"`
	fieldSet
}

type params struct {
	Operation     string     `json:"operation"`
	ContainerType string     `json:"containerType"`
	ID            string     `json:"id,omitempty"`
	IDs           []string   `json:"ids,omitempty"`
	Containers    []bulkItem `json:"containers,omitempty"`

	fieldSet

	DeleteSections *bool `json:"deleteSections,omitempty"`
	Force          bool  `json:"force,omitempty"`
}

// Manage is the manage_container tool.
type Manage struct {
	engine *workflow.Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewManage builds the tool around a workflow engine.
func NewManage(engine *workflow.Engine, logger *slog.Logger) *Manage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manage{engine: engine, logger: logger, now: time.Now}
}

func (t *Manage) Name() string { return "manage_container" }

func (t *Manage) Description() string {
	return "Create, update, or delete projects, features, and tasks. setStatus runs the full workflow transition (validation, cascades, unblocking); bulkUpdate applies field changes to up to 100 containers in one call."
}

func (t *Manage) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "operation": {"type": "string", "enum": ["create", "update", "delete", "setStatus", "bulkUpdate"], "description": "What to do"},
    "containerType": {"type": "string", "enum": ["project", "feature", "task"], "description": "Which level of the hierarchy"},
    "id": {"type": "string", "description": "Container id (required for update, delete, setStatus)"},
    "ids": {"type": "array", "items": {"type": "string"}, "description": "Ids for bulkUpdate; the shared fields are applied to each"},
    "containers": {"type": "array", "items": {"type": "object"}, "description": "Per-item updates for bulkUpdate: each element is {id, ...fields}"},
    "name": {"type": "string", "description": "Name (projects and features)"},
    "title": {"type": "string", "description": "Title (tasks)"},
    "summary": {"type": "string", "description": "Short summary, at most 500 characters"},
    "description": {"type": "string", "description": "Longer free-form description"},
    "status": {"type": "string", "description": "Initial status on create (defaults to the first status of the active flow); target status for setStatus"},
    "priority": {"type": "string", "enum": ["high", "medium", "low"], "description": "Priority (features and tasks, default medium)"},
    "complexity": {"type": "integer", "minimum": 1, "maximum": 10, "description": "Complexity estimate (tasks only, default 5)"},
    "projectId": {"type": "string", "description": "Parent project id (features and tasks)"},
    "featureId": {"type": "string", "description": "Parent feature id (tasks only)"},
    "tags": {"type": "string", "description": "Comma-separated tags; tags select the container's workflow flow"},
    "templateIds": {"type": "array", "items": {"type": "string"}, "description": "Template ids or names whose sections are materialised onto the container"},
    "requiresVerification": {"type": "boolean", "description": "Gate terminal transitions on the Verification section's criteria (features and tasks)"},
    "deleteSections": {"type": "boolean", "description": "On delete, also remove the container's sections (default true)"},
    "force": {"type": "boolean", "description": "On delete, detach child containers or remove a task's dependency rows instead of refusing (default false)"}
  },
  "required": ["operation", "containerType"]
}`)
}

func (t *Manage) Execute(ctx context.Context, args json.RawMessage) (res *mcp.ToolsCallResult, err error) {
	defer respond.Recovered(t.logger, &res, &err)

	var p params
	if err := json.Unmarshal(args, &p); err != nil {
		return respond.BadParams(err), nil
	}

	et := model.EntityType(strings.ToLower(strings.TrimSpace(p.ContainerType)))
	if !model.IsValidEntityType(et) {
		return respond.Invalid(
			fmt.Sprintf("Unknown container type '%s'", p.ContainerType),
			"containerType must be one of project, feature, task"), nil
	}

	switch p.Operation {
	case "create":
		return t.create(ctx, et, p.fieldSet)
	case "update":
		return t.update(ctx, et, p.ID, p.fieldSet)
	case "delete":
		return t.delete(ctx, et, p)
	case "setStatus":
		return t.setStatus(ctx, et, p)
	case "bulkUpdate":
		return t.bulkUpdate(ctx, et, p)
	default:
		return respond.Invalid(
			fmt.Sprintf("Unknown operation '%s'", p.Operation),
			"operation must be one of create, update, delete, setStatus, bulkUpdate"), nil
	}
}

// --- create ---

func (t *Manage) create(ctx context.Context, et model.EntityType, f fieldSet) (*mcp.ToolsCallResult, error) {
	if ae := checkFields(et, f); ae != nil {
		return respond.Failure(ae), nil
	}

	name := displayName(et, f)
	if name == "" {
		field := "name"
		if et == model.EntityTask {
			field = "title"
		}
		return respond.Invalid(
			fmt.Sprintf("A %s %s is required", et, field),
			fmt.Sprintf("Pass a non-empty %s when creating a %s", field, et)), nil
	}

	var tags []string
	if f.Tags != nil {
		tags = model.ParseTags(*f.Tags)
	}

	status := model.NormalizeStatus(f.Status)
	advisoryNote := ""
	if status == "" {
		_, flow, _ := t.engine.Config().ActiveFlow(et, tags)
		if len(flow) == 0 {
			return respond.Invalid(
				fmt.Sprintf("No flow is configured for %ss", et),
				"Pass an explicit status, or fix the workflow config's default_flow"), nil
		}
		status = flow[0]
	} else {
		vr := t.engine.ValidateStatus(status, et, tags)
		if !vr.OK() {
			return respond.Failure(taskerrors.ErrValidation(vr.Reason, "").
				WithData("allowedStatuses", vr.Suggestions)), nil
		}
		advisoryNote = vr.Advisory
	}

	templates, ae := t.resolveTemplates(ctx, et, f.TemplateIDs)
	if ae != nil {
		return respond.Failure(ae), nil
	}

	store := t.engine.Store()
	now := t.now().UTC()
	id := uuid.NewString()

	var container any
	switch et {
	case model.EntityProject:
		p := &model.Project{
			ID: id, Name: name, Status: status, Tags: tags,
			CreatedAt: now, ModifiedAt: now,
		}
		if f.Summary != nil {
			p.Summary = *f.Summary
		}
		if f.Description != nil {
			p.Description = *f.Description
		}
		if err := store.CreateProject(ctx, p); err != nil {
			return respond.Failure(taskerrors.ErrDatabase("create project", err)), nil
		}
		container = p

	case model.EntityFeature:
		fe := &model.Feature{
			ID: id, Name: name, Status: status, Tags: tags,
			Priority:  model.PriorityMedium,
			CreatedAt: now, ModifiedAt: now,
		}
		if f.Summary != nil {
			fe.Summary = *f.Summary
		}
		if f.Description != nil {
			fe.Description = *f.Description
		}
		if f.Priority != "" {
			fe.Priority = model.Priority(strings.ToLower(f.Priority))
		}
		if f.RequiresVerification != nil {
			fe.RequiresVerification = *f.RequiresVerification
		}
		if f.ProjectID != nil && *f.ProjectID != "" {
			if ae := t.requireProject(ctx, *f.ProjectID); ae != nil {
				return respond.Failure(ae), nil
			}
			fe.ProjectID = *f.ProjectID
		}
		if err := store.CreateFeature(ctx, fe); err != nil {
			return respond.Failure(taskerrors.ErrDatabase("create feature", err)), nil
		}
		container = fe

	case model.EntityTask:
		task := &model.Task{
			ID: id, Title: name, Status: status, Tags: tags,
			Priority: model.PriorityMedium, Complexity: 5,
			CreatedAt: now, ModifiedAt: now,
		}
		if f.Summary != nil {
			task.Summary = *f.Summary
		}
		if f.Description != nil {
			task.Description = *f.Description
		}
		if f.Priority != "" {
			task.Priority = model.Priority(strings.ToLower(f.Priority))
		}
		if f.Complexity != nil {
			task.Complexity = *f.Complexity
		}
		if f.RequiresVerification != nil {
			task.RequiresVerification = *f.RequiresVerification
		}
		if f.FeatureID != nil && *f.FeatureID != "" {
			feat, ae := t.requireFeature(ctx, *f.FeatureID)
			if ae != nil {
				return respond.Failure(ae), nil
			}
			task.FeatureID = feat.ID
			// a task under a feature inherits the feature's project
			if feat.ProjectID != "" {
				task.ProjectID = feat.ProjectID
			}
		}
		if f.ProjectID != nil && *f.ProjectID != "" {
			if ae := t.requireProject(ctx, *f.ProjectID); ae != nil {
				return respond.Failure(ae), nil
			}
			task.ProjectID = *f.ProjectID
		}
		if err := store.CreateTask(ctx, task); err != nil {
			return respond.Failure(taskerrors.ErrDatabase("create task", err)), nil
		}
		container = task
	}

	created, ae := t.materialiseTemplates(ctx, et, id, templates, now)
	if ae != nil {
		return respond.Failure(ae), nil
	}

	data := map[string]any{"containerType": et, "container": container}
	if created > 0 {
		data["sectionsCreated"] = created
	}
	if advisoryNote != "" {
		data["advisory"] = advisoryNote
	}
	return respond.Success(fmt.Sprintf("%s '%s' created", et, name), data), nil
}

// --- update ---

func (t *Manage) update(ctx context.Context, et model.EntityType, id string, f fieldSet) (*mcp.ToolsCallResult, error) {
	container, created, ae := t.updateOne(ctx, et, id, f)
	if ae != nil {
		return respond.Failure(ae), nil
	}

	data := map[string]any{"containerType": et, "container": container}
	if created > 0 {
		data["sectionsCreated"] = created
	}
	return respond.Success(fmt.Sprintf("%s '%s' updated", et, containerName(container)), data), nil
}

// updateOne applies one field set to one container under its entity
// lock. Shared by update and bulkUpdate.
func (t *Manage) updateOne(ctx context.Context, et model.EntityType, id string, f fieldSet) (any, int, *taskerrors.AppError) {
	if id == "" {
		return nil, 0, taskerrors.ErrValidation("Container id is required", "Pass the id of the container to update")
	}
	if ae := checkFields(et, f); ae != nil {
		return nil, 0, ae
	}
	if f.Status != "" {
		return nil, 0, taskerrors.ErrValidation(
			"Status cannot be changed by update",
			"Use operation 'setStatus' or the request_transition tool so workflow validation and cascades run")
	}

	templates, ae := t.resolveTemplates(ctx, et, f.TemplateIDs)
	if ae != nil {
		return nil, 0, ae
	}

	unlock := t.engine.Locks().LockEntity(string(et), id)
	defer unlock()

	store := t.engine.Store()
	now := t.now().UTC()

	var container any
	switch et {
	case model.EntityProject:
		p, err := store.GetProject(ctx, id)
		if err != nil {
			return nil, 0, taskerrors.ErrDatabase("get project", err)
		}
		if p == nil {
			return nil, 0, taskerrors.ErrContainerNotFound("project", id)
		}
		if f.Name != "" || f.Title != "" {
			p.Name = displayName(et, f)
		}
		if f.Summary != nil {
			p.Summary = *f.Summary
		}
		if f.Description != nil {
			p.Description = *f.Description
		}
		if f.Tags != nil {
			p.Tags = model.ParseTags(*f.Tags)
		}
		p.ModifiedAt = now
		if err := store.UpdateProject(ctx, p); err != nil {
			return nil, 0, taskerrors.ErrDatabase("update project", err)
		}
		container = p

	case model.EntityFeature:
		fe, err := store.GetFeature(ctx, id)
		if err != nil {
			return nil, 0, taskerrors.ErrDatabase("get feature", err)
		}
		if fe == nil {
			return nil, 0, taskerrors.ErrContainerNotFound("feature", id)
		}
		if f.Name != "" || f.Title != "" {
			fe.Name = displayName(et, f)
		}
		if f.Summary != nil {
			fe.Summary = *f.Summary
		}
		if f.Description != nil {
			fe.Description = *f.Description
		}
		if f.Priority != "" {
			fe.Priority = model.Priority(strings.ToLower(f.Priority))
		}
		if f.RequiresVerification != nil {
			fe.RequiresVerification = *f.RequiresVerification
		}
		if f.Tags != nil {
			fe.Tags = model.ParseTags(*f.Tags)
		}
		if f.ProjectID != nil {
			if *f.ProjectID != "" {
				if ae := t.requireProject(ctx, *f.ProjectID); ae != nil {
					return nil, 0, ae
				}
			}
			fe.ProjectID = *f.ProjectID
		}
		fe.ModifiedAt = now
		if err := store.UpdateFeature(ctx, fe); err != nil {
			return nil, 0, taskerrors.ErrDatabase("update feature", err)
		}
		container = fe

	case model.EntityTask:
		task, err := store.GetTask(ctx, id)
		if err != nil {
			return nil, 0, taskerrors.ErrDatabase("get task", err)
		}
		if task == nil {
			return nil, 0, taskerrors.ErrContainerNotFound("task", id)
		}
		if f.Name != "" || f.Title != "" {
			task.Title = displayName(et, f)
		}
		if f.Summary != nil {
			task.Summary = *f.Summary
		}
		if f.Description != nil {
			task.Description = *f.Description
		}
		if f.Priority != "" {
			task.Priority = model.Priority(strings.ToLower(f.Priority))
		}
		if f.Complexity != nil {
			task.Complexity = *f.Complexity
		}
		if f.RequiresVerification != nil {
			task.RequiresVerification = *f.RequiresVerification
		}
		if f.Tags != nil {
			task.Tags = model.ParseTags(*f.Tags)
		}
		if f.FeatureID != nil {
			if *f.FeatureID != "" {
				if _, ae := t.requireFeature(ctx, *f.FeatureID); ae != nil {
					return nil, 0, ae
				}
			}
			task.FeatureID = *f.FeatureID
		}
		if f.ProjectID != nil {
			if *f.ProjectID != "" {
				if ae := t.requireProject(ctx, *f.ProjectID); ae != nil {
					return nil, 0, ae
				}
			}
			task.ProjectID = *f.ProjectID
		}
		task.ModifiedAt = now
		if err := store.UpdateTask(ctx, task); err != nil {
			return nil, 0, taskerrors.ErrDatabase("update task", err)
		}
		container = task
	}

	created, ae := t.materialiseTemplates(ctx, et, id, templates, now)
	if ae != nil {
		return nil, 0, ae
	}
	return container, created, nil
}

// --- delete ---

func (t *Manage) delete(ctx context.Context, et model.EntityType, p params) (*mcp.ToolsCallResult, error) {
	if p.ID == "" {
		return respond.Invalid("Container id is required", "Pass the id of the container to delete"), nil
	}

	unlock := t.engine.Locks().LockEntity(string(et), p.ID)
	defer unlock()

	store := t.engine.Store()
	deleteSections := p.DeleteSections == nil || *p.DeleteSections

	data := map[string]any{"id": p.ID, "containerType": et}
	var name string

	switch et {
	case model.EntityProject:
		proj, err := store.GetProject(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get project", err)), nil
		}
		if proj == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("project", p.ID)), nil
		}
		name = proj.Name

		features, err := store.FeaturesByProject(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("list features", err)), nil
		}
		tasks, err := store.TasksByProject(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("list tasks", err)), nil
		}
		if len(features)+len(tasks) > 0 {
			if !p.Force {
				ae := taskerrors.ErrConflict(
					fmt.Sprintf("project '%s' still has %d feature(s) and %d task(s)", proj.Name, len(features), len(tasks)),
					"Deleting a project does not delete its children")
				ae.Fix = "Pass force: true to detach the children and delete anyway"
				return respond.Failure(ae), nil
			}
			detached := 0
			now := t.now().UTC()
			for i := range features {
				features[i].ProjectID = ""
				features[i].ModifiedAt = now
				if err := store.UpdateFeature(ctx, &features[i]); err != nil {
					return respond.Failure(taskerrors.ErrDatabase("detach feature", err)), nil
				}
				detached++
			}
			for i := range tasks {
				tasks[i].ProjectID = ""
				tasks[i].ModifiedAt = now
				if err := store.UpdateTask(ctx, &tasks[i]); err != nil {
					return respond.Failure(taskerrors.ErrDatabase("detach task", err)), nil
				}
				detached++
			}
			data["childrenDetached"] = detached
		}

	case model.EntityFeature:
		feat, err := store.GetFeature(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get feature", err)), nil
		}
		if feat == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("feature", p.ID)), nil
		}
		name = feat.Name

		tasks, err := store.TasksByFeature(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("list tasks", err)), nil
		}
		if len(tasks) > 0 {
			if !p.Force {
				ae := taskerrors.ErrConflict(
					fmt.Sprintf("feature '%s' still has %d task(s)", feat.Name, len(tasks)),
					"Deleting a feature does not delete its tasks")
				ae.Fix = "Pass force: true to detach the tasks and delete anyway"
				return respond.Failure(ae), nil
			}
			now := t.now().UTC()
			for i := range tasks {
				tasks[i].FeatureID = ""
				tasks[i].ModifiedAt = now
				if err := store.UpdateTask(ctx, &tasks[i]); err != nil {
					return respond.Failure(taskerrors.ErrDatabase("detach task", err)), nil
				}
			}
			data["childrenDetached"] = len(tasks)
		}

	case model.EntityTask:
		task, err := store.GetTask(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get task", err)), nil
		}
		if task == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("task", p.ID)), nil
		}
		name = task.Title

		deps, err := store.DependenciesForTask(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("list dependencies", err)), nil
		}
		if len(deps) > 0 {
			if !p.Force {
				ae := taskerrors.ErrConflict(
					fmt.Sprintf("task '%s' still has %d dependency edge(s)", task.Title, len(deps)),
					"Deleting a task does not delete its dependency rows")
				ae.Fix = "Pass force: true to delete the dependency rows along with the task"
				return respond.Failure(ae), nil
			}
			if err := store.DeleteDependenciesForTask(ctx, p.ID); err != nil {
				return respond.Failure(taskerrors.ErrDatabase("delete dependencies", err)), nil
			}
			data["dependenciesDeleted"] = len(deps)
		}
	}

	if deleteSections {
		sections, err := store.SectionsForEntity(ctx, et, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("list sections", err)), nil
		}
		if len(sections) > 0 {
			if err := store.DeleteSectionsForEntity(ctx, et, p.ID); err != nil {
				return respond.Failure(taskerrors.ErrDatabase("delete sections", err)), nil
			}
			data["sectionsDeleted"] = len(sections)
		}
	}

	var err error
	switch et {
	case model.EntityProject:
		err = store.DeleteProject(ctx, p.ID)
	case model.EntityFeature:
		err = store.DeleteFeature(ctx, p.ID)
	case model.EntityTask:
		err = store.DeleteTask(ctx, p.ID)
	}
	if err != nil {
		return respond.Failure(taskerrors.ErrDatabase(fmt.Sprintf("delete %s", et), err)), nil
	}

	return respond.Success(fmt.Sprintf("%s '%s' deleted", et, name), data), nil
}

// --- setStatus ---

func (t *Manage) setStatus(ctx context.Context, et model.EntityType, p params) (*mcp.ToolsCallResult, error) {
	if p.ID == "" {
		return respond.Invalid("Container id is required", "Pass the id of the container whose status to set"), nil
	}
	if p.Status == "" {
		return respond.Invalid("Status is required for setStatus", "Pass the target status; it is resolved like a request_transition trigger"), nil
	}

	var summary string
	if p.Summary != nil {
		summary = *p.Summary
	}

	// the executor resolves a status name as a trigger and owns the
	// entity lock, so no lock is taken here
	result, err := t.engine.ExecuteTransition(ctx, workflow.TransitionRequest{
		ContainerID:   p.ID,
		ContainerType: et,
		Trigger:       p.Status,
		Summary:       summary,
	})
	if err != nil {
		return respond.Failure(err), nil
	}
	return respond.Success(result.Message, map[string]any{"transition": result}), nil
}

// --- bulkUpdate ---

type bulkItemOutcome struct {
	ID              string               `json:"id"`
	Success         bool                 `json:"success"`
	Container       any                  `json:"container,omitempty"`
	SectionsCreated int                  `json:"sectionsCreated,omitempty"`
	Error           *taskerrors.AppError `json:"error,omitempty"`
}

func (t *Manage) bulkUpdate(ctx context.Context, et model.EntityType, p params) (*mcp.ToolsCallResult, error) {
	if len(p.IDs) > 0 && len(p.Containers) > 0 {
		return respond.Invalid("Provide either ids or containers, not both",
			"ids applies the shared fields to every id; containers carries per-item fields"), nil
	}

	items := p.Containers
	for _, id := range p.IDs {
		items = append(items, bulkItem{ID: id, fieldSet: p.fieldSet})
	}
	if len(items) == 0 {
		return respond.Invalid("bulkUpdate requires ids or containers",
			"Pass ids: [...] with shared fields, or containers: [{id, ...fields}, ...]"), nil
	}
	if len(items) > maxBulkItems {
		return respond.Invalid(
			fmt.Sprintf("bulkUpdate accepts at most %d containers (got %d)", maxBulkItems, len(items)),
			"Split the update into smaller batches"), nil
	}

	results := make([]bulkItemOutcome, 0, len(items))
	succeeded := 0
	for _, item := range items {
		outcome := bulkItemOutcome{ID: item.ID}
		container, created, ae := t.updateOne(ctx, et, item.ID, item.fieldSet)
		if ae != nil {
			outcome.Error = ae
		} else {
			outcome.Success = true
			outcome.Container = container
			outcome.SectionsCreated = created
			succeeded++
		}
		results = append(results, outcome)
	}

	if succeeded == 0 {
		return respond.Failure(taskerrors.ErrOperationFailed(
			fmt.Sprintf("all %d updates failed", len(items)),
			"Every item in the bulk update failed validation or lookup").
			WithData("results", results)), nil
	}

	data := map[string]any{
		"results": results,
		"summary": map[string]int{
			"total":     len(items),
			"succeeded": succeeded,
			"failed":    len(items) - succeeded,
		},
	}
	return respond.Success(fmt.Sprintf("%d of %d containers updated", succeeded, len(items)), data), nil
}

// --- shared helpers ---

// checkFields validates the cross-operation field constraints for one
// entity type.
func checkFields(et model.EntityType, f fieldSet) *taskerrors.AppError {
	if f.Summary != nil && len(*f.Summary) > maxSummaryLength {
		return taskerrors.ErrValidation(
			fmt.Sprintf("Summary must be at most %d characters (current: %d)", maxSummaryLength, len(*f.Summary)),
			"Move longer prose into the description or a section")
	}
	if f.Priority != "" {
		if et == model.EntityProject {
			return taskerrors.ErrValidation("Priority applies only to features and tasks", "Projects carry no priority")
		}
		if !model.IsValidPriority(model.Priority(strings.ToLower(f.Priority))) {
			return taskerrors.ErrValidation(
				fmt.Sprintf("Unknown priority '%s'", f.Priority),
				"priority must be one of high, medium, low")
		}
	}
	if f.Complexity != nil {
		if et != model.EntityTask {
			return taskerrors.ErrValidation("Complexity applies only to tasks", "Features and projects carry no complexity")
		}
		if *f.Complexity < 1 || *f.Complexity > 10 {
			return taskerrors.ErrValidation(
				fmt.Sprintf("Complexity must be between 1 and 10 (got %d)", *f.Complexity),
				"Complexity is a 1-10 estimate")
		}
	}
	if f.RequiresVerification != nil && et == model.EntityProject {
		return taskerrors.ErrValidation("requiresVerification applies only to features and tasks",
			"Projects have no verification gate")
	}
	if f.FeatureID != nil && et != model.EntityTask {
		return taskerrors.ErrValidation("featureId applies only to tasks",
			"Features and projects cannot be nested under a feature")
	}
	if f.ProjectID != nil && et == model.EntityProject {
		return taskerrors.ErrValidation("projectId applies only to features and tasks",
			"Projects cannot be nested under another project")
	}
	return nil
}

// displayName picks the caller-supplied display name, preferring the
// field canonical for the entity type but accepting the other.
func displayName(et model.EntityType, f fieldSet) string {
	name := strings.TrimSpace(f.Name)
	title := strings.TrimSpace(f.Title)
	if et == model.EntityTask {
		if title != "" {
			return title
		}
		return name
	}
	if name != "" {
		return name
	}
	return title
}

func containerName(container any) string {
	switch c := container.(type) {
	case *model.Project:
		return c.Name
	case *model.Feature:
		return c.Name
	case *model.Task:
		return c.Title
	default:
		return ""
	}
}

func (t *Manage) requireProject(ctx context.Context, id string) *taskerrors.AppError {
	p, err := t.engine.Store().GetProject(ctx, id)
	if err != nil {
		return taskerrors.ErrDatabase("get project", err)
	}
	if p == nil {
		return taskerrors.ErrParentNotFound("project", id)
	}
	return nil
}

func (t *Manage) requireFeature(ctx context.Context, id string) (*model.Feature, *taskerrors.AppError) {
	f, err := t.engine.Store().GetFeature(ctx, id)
	if err != nil {
		return nil, taskerrors.ErrDatabase("get feature", err)
	}
	if f == nil {
		return nil, taskerrors.ErrParentNotFound("feature", id)
	}
	return f, nil
}

// resolveTemplates loads every referenced template, accepting either
// template ids or names, and checks each targets the entity type.
func (t *Manage) resolveTemplates(ctx context.Context, et model.EntityType, refs []string) ([]model.Template, *taskerrors.AppError) {
	if len(refs) == 0 {
		return nil, nil
	}
	store := t.engine.Store()
	templates := make([]model.Template, 0, len(refs))
	for _, ref := range refs {
		tpl, err := store.GetTemplate(ctx, ref)
		if err != nil {
			return nil, taskerrors.ErrDatabase("get template", err)
		}
		if tpl == nil {
			tpl, err = store.GetTemplateByName(ctx, ref)
			if err != nil {
				return nil, taskerrors.ErrDatabase("get template", err)
			}
		}
		if tpl == nil {
			return nil, taskerrors.ErrContainerNotFound("template", ref)
		}
		if tpl.TargetEntityType != et {
			return nil, taskerrors.ErrValidation(
				fmt.Sprintf("Template '%s' targets %ss, not %ss", tpl.Name, tpl.TargetEntityType, et),
				"Pick a template whose target type matches the container")
		}
		templates = append(templates, *tpl)
	}
	return templates, nil
}

// materialiseTemplates copies template section prototypes onto an
// entity. A prototype whose ordinal is already taken on the entity is
// skipped and logged rather than failing the operation.
func (t *Manage) materialiseTemplates(ctx context.Context, et model.EntityType, entityID string, templates []model.Template, now time.Time) (int, *taskerrors.AppError) {
	if len(templates) == 0 {
		return 0, nil
	}
	store := t.engine.Store()

	existing, err := store.SectionsForEntity(ctx, et, entityID)
	if err != nil {
		return 0, taskerrors.ErrDatabase("list sections", err)
	}
	used := make(map[int]bool, len(existing))
	for _, s := range existing {
		used[s.Ordinal] = true
	}

	created := 0
	for _, tpl := range templates {
		for _, proto := range tpl.Sections {
			if used[proto.Ordinal] {
				t.logger.Warn("skipping template section, ordinal already in use",
					"template", tpl.Name, "section", proto.Title, "ordinal", proto.Ordinal)
				continue
			}
			used[proto.Ordinal] = true
			sec := &model.Section{
				ID:               uuid.NewString(),
				EntityType:       et,
				EntityID:         entityID,
				Title:            proto.Title,
				UsageDescription: proto.UsageDescription,
				Content:          proto.ContentSample,
				ContentFormat:    proto.ContentFormat,
				Ordinal:          proto.Ordinal,
				Tags:             proto.Tags,
				CreatedAt:        now,
				ModifiedAt:       now,
			}
			if err := store.CreateSection(ctx, sec); err != nil {
				return created, taskerrors.ErrDatabase("create section", err)
			}
			created++
		}
	}
	return created, nil
}
