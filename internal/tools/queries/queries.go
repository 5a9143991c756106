// Package queries implements the query_container tool: get, search,
// markdown export, and the hierarchy overview. All operations are
// read-only and take no entity locks.
package queries

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskorchestrator/taskorchestrator/internal/db"
	taskerrors "github.com/taskorchestrator/taskorchestrator/internal/errors"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/respond"
	"github.com/taskorchestrator/taskorchestrator/internal/workflow"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	maxOverviewSummary = 200
	defaultOverview    = 100
)

type filterParams struct {
	Status    string   `json:"status,omitempty"`
	Statuses  []string `json:"statuses,omitempty"`
	Priority  string   `json:"priority,omitempty"`
	Tags      string   `json:"tags,omitempty"`
	ProjectID string   `json:"projectId,omitempty"`
	FeatureID string   `json:"featureId,omitempty"`
}

func (f filterParams) statusList() []string {
	var out []string
	if f.Status != "" {
		out = append(out, model.NormalizeStatus(f.Status))
	}
	for _, s := range f.Statuses {
		out = append(out, model.NormalizeStatus(s))
	}
	return out
}

type params struct {
	Operation       string       `json:"operation"`
	ContainerType   string       `json:"containerType,omitempty"`
	ID              string       `json:"id,omitempty"`
	Query           string       `json:"query,omitempty"`
	Filters         filterParams `json:"filters,omitempty"`
	Limit           int          `json:"limit,omitempty"`
	IncludeSections *bool        `json:"includeSections,omitempty"`
	SummaryLength   *int         `json:"summaryLength,omitempty"`
}

// Query is the query_container tool.
type Query struct {
	engine *workflow.Engine
	logger *slog.Logger
}

// NewQuery builds the tool around a workflow engine.
func NewQuery(engine *workflow.Engine, logger *slog.Logger) *Query {
	if logger == nil {
		logger = slog.Default()
	}
	return &Query{engine: engine, logger: logger}
}

func (t *Query) Name() string { return "query_container" }

func (t *Query) Description() string {
	return "Read projects, features, and tasks: fetch one container with its sections and relations, search by text and filters, export a container tree as markdown, or get a hierarchy overview with status counts."
}

func (t *Query) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "operation": {"type": "string", "enum": ["get", "search", "export", "overview"], "description": "What to read"},
    "containerType": {"type": "string", "enum": ["project", "feature", "task"], "description": "Which level of the hierarchy (overview defaults to project)"},
    "id": {"type": "string", "description": "Container id (required for get and export; scopes overview to one container)"},
    "query": {"type": "string", "description": "Search text, matched case-insensitively against name/title, summary, and description"},
    "filters": {
      "type": "object",
      "properties": {
        "status": {"type": "string"},
        "statuses": {"type": "array", "items": {"type": "string"}},
        "priority": {"type": "string", "enum": ["high", "medium", "low"]},
        "tags": {"type": "string", "description": "Comma-separated; results must carry every listed tag"},
        "projectId": {"type": "string"},
        "featureId": {"type": "string", "description": "Tasks only"}
      }
    },
    "limit": {"type": "integer", "minimum": 1, "maximum": 100, "description": "Search result cap (default 20)"},
    "includeSections": {"type": "boolean", "description": "On get, include the container's sections (default true)"},
    "summaryLength": {"type": "integer", "minimum": 0, "maximum": 200, "description": "On overview, trim summaries to this many characters; 0 omits them (default 100)"}
  },
  "required": ["operation"]
}`)
}

func (t *Query) Execute(ctx context.Context, args json.RawMessage) (res *mcp.ToolsCallResult, err error) {
	defer respond.Recovered(t.logger, &res, &err)

	var p params
	if err := json.Unmarshal(args, &p); err != nil {
		return respond.BadParams(err), nil
	}

	et := model.EntityType(strings.ToLower(strings.TrimSpace(p.ContainerType)))

	switch p.Operation {
	case "get":
		if ae := requireType(et, p.ContainerType); ae != nil {
			return respond.Failure(ae), nil
		}
		return t.get(ctx, et, p)
	case "search":
		if ae := requireType(et, p.ContainerType); ae != nil {
			return respond.Failure(ae), nil
		}
		return t.search(ctx, et, p)
	case "export":
		if ae := requireType(et, p.ContainerType); ae != nil {
			return respond.Failure(ae), nil
		}
		return t.export(ctx, et, p)
	case "overview":
		return t.overview(ctx, et, p)
	default:
		return respond.Invalid(
			fmt.Sprintf("Unknown operation '%s'", p.Operation),
			"operation must be one of get, search, export, overview"), nil
	}
}

func requireType(et model.EntityType, raw string) *taskerrors.AppError {
	if !model.IsValidEntityType(et) {
		return taskerrors.ErrValidation(
			fmt.Sprintf("Unknown container type '%s'", raw),
			"containerType must be one of project, feature, task")
	}
	return nil
}

// --- get ---

func (t *Query) get(ctx context.Context, et model.EntityType, p params) (*mcp.ToolsCallResult, error) {
	if p.ID == "" {
		return respond.Invalid("Container id is required", "Pass the id of the container to fetch"), nil
	}

	store := t.engine.Store()
	data := map[string]any{"containerType": et}
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
		data["container"] = proj

		counts, err := store.FeatureCountsByProject(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("count features", err)), nil
		}
		data["featureCounts"] = counts

	case model.EntityFeature:
		feat, err := store.GetFeature(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get feature", err)), nil
		}
		if feat == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("feature", p.ID)), nil
		}
		name = feat.Name
		data["container"] = feat

		counts, err := store.TaskCountsByFeature(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("count tasks", err)), nil
		}
		data["taskCounts"] = counts

	case model.EntityTask:
		task, err := store.GetTask(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get task", err)), nil
		}
		if task == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("task", p.ID)), nil
		}
		name = task.Title
		data["container"] = task

		deps, err := store.DependenciesForTask(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("list dependencies", err)), nil
		}
		data["dependencies"] = dependencySummary(p.ID, deps)
	}

	if p.IncludeSections == nil || *p.IncludeSections {
		sections, err := store.SectionsForEntity(ctx, et, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("list sections", err)), nil
		}
		data["sections"] = sections
	}

	return respond.Success(fmt.Sprintf("%s '%s' retrieved", et, name), data), nil
}

// dependencySummary groups a task's edges by what they mean for it.
func dependencySummary(taskID string, deps []model.Dependency) map[string][]string {
	out := map[string][]string{
		"blocks":    {},
		"blockedBy": {},
		"relatesTo": {},
	}
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

// --- search ---

func (t *Query) search(ctx context.Context, et model.EntityType, p params) (*mcp.ToolsCallResult, error) {
	limit := p.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit < 1 || limit > maxSearchLimit {
		return respond.Invalid(
			fmt.Sprintf("Limit must be between 1 and %d (got %d)", maxSearchLimit, p.Limit),
			"Omit limit for the default of 20"), nil
	}

	var tags []string
	if p.Filters.Tags != "" {
		tags = model.ParseTags(p.Filters.Tags)
	}
	statuses := p.Filters.statusList()

	store := t.engine.Store()
	var (
		results any
		count   int
	)
	switch et {
	case model.EntityProject:
		list, err := store.ListProjects(ctx, db.ProjectFilters{
			Statuses: statuses, Tags: tags, Text: p.Query, Limit: limit,
		})
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("search projects", err)), nil
		}
		results, count = list, len(list)

	case model.EntityFeature:
		list, err := store.ListFeatures(ctx, db.FeatureFilters{
			ProjectID: p.Filters.ProjectID, Statuses: statuses,
			Priority: strings.ToLower(p.Filters.Priority), Tags: tags,
			Text: p.Query, Limit: limit,
		})
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("search features", err)), nil
		}
		results, count = list, len(list)

	case model.EntityTask:
		list, err := store.ListTasks(ctx, db.TaskFilters{
			ProjectID: p.Filters.ProjectID, FeatureID: p.Filters.FeatureID,
			Statuses: statuses, Priority: strings.ToLower(p.Filters.Priority),
			Tags: tags, Text: p.Query, Limit: limit,
		})
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("search tasks", err)), nil
		}
		results, count = list, len(list)
	}

	data := map[string]any{
		"containerType": et,
		"results":       results,
		"count":         count,
	}
	return respond.Success(fmt.Sprintf("%d %s(s) found", count, et), data), nil
}

// --- export ---

func (t *Query) export(ctx context.Context, et model.EntityType, p params) (*mcp.ToolsCallResult, error) {
	if p.ID == "" {
		return respond.Invalid("Container id is required", "Pass the id of the container to export"), nil
	}

	var (
		b    strings.Builder
		name string
	)
	switch et {
	case model.EntityProject:
		proj, err := t.engine.Store().GetProject(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get project", err)), nil
		}
		if proj == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("project", p.ID)), nil
		}
		name = proj.Name
		if ae := t.renderProject(ctx, &b, proj); ae != nil {
			return respond.Failure(ae), nil
		}

	case model.EntityFeature:
		feat, err := t.engine.Store().GetFeature(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get feature", err)), nil
		}
		if feat == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("feature", p.ID)), nil
		}
		name = feat.Name
		if ae := t.renderFeature(ctx, &b, feat, 1); ae != nil {
			return respond.Failure(ae), nil
		}

	case model.EntityTask:
		task, err := t.engine.Store().GetTask(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get task", err)), nil
		}
		if task == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("task", p.ID)), nil
		}
		name = task.Title
		if ae := t.renderTask(ctx, &b, task, 1); ae != nil {
			return respond.Failure(ae), nil
		}
	}

	data := map[string]any{
		"containerType": et,
		"id":            p.ID,
		"markdown":      b.String(),
	}
	return respond.Success(fmt.Sprintf("%s '%s' exported", et, name), data), nil
}

func heading(level int) string {
	if level > 6 {
		level = 6
	}
	return strings.Repeat("#", level)
}

func writeMeta(b *strings.Builder, pairs ...string) {
	// pairs alternate label, value; empty values are skipped
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			parts = append(parts, fmt.Sprintf("**%s:** %s", pairs[i], pairs[i+1]))
		}
	}
	if len(parts) > 0 {
		b.WriteString(strings.Join(parts, " | "))
		b.WriteString("\n\n")
	}
}

func writeBody(b *strings.Builder, summary, description string) {
	if summary != "" {
		b.WriteString("> " + summary + "\n\n")
	}
	if description != "" {
		b.WriteString(description + "\n\n")
	}
}

func (t *Query) writeSections(ctx context.Context, b *strings.Builder, et model.EntityType, id string, level int) *taskerrors.AppError {
	sections, err := t.engine.Store().SectionsForEntity(ctx, et, id)
	if err != nil {
		return taskerrors.ErrDatabase("list sections", err)
	}
	for _, s := range sections {
		fmt.Fprintf(b, "%s %s\n\n", heading(level), s.Title)
		if s.Content != "" {
			b.WriteString(s.Content + "\n\n")
		}
	}
	return nil
}

func (t *Query) renderProject(ctx context.Context, b *strings.Builder, proj *model.Project) *taskerrors.AppError {
	fmt.Fprintf(b, "# Project: %s\n\n", proj.Name)
	writeMeta(b, "Status", proj.Status, "Tags", strings.Join(proj.Tags, ", "))
	writeBody(b, proj.Summary, proj.Description)
	if ae := t.writeSections(ctx, b, model.EntityProject, proj.ID, 2); ae != nil {
		return ae
	}

	features, err := t.engine.Store().FeaturesByProject(ctx, proj.ID)
	if err != nil {
		return taskerrors.ErrDatabase("list features", err)
	}
	for i := range features {
		if ae := t.renderFeature(ctx, b, &features[i], 2); ae != nil {
			return ae
		}
	}

	// tasks attached to the project without a feature
	tasks, err := t.engine.Store().TasksByProject(ctx, proj.ID)
	if err != nil {
		return taskerrors.ErrDatabase("list tasks", err)
	}
	for i := range tasks {
		if tasks[i].FeatureID != "" {
			continue
		}
		if ae := t.renderTask(ctx, b, &tasks[i], 2); ae != nil {
			return ae
		}
	}
	return nil
}

func (t *Query) renderFeature(ctx context.Context, b *strings.Builder, feat *model.Feature, level int) *taskerrors.AppError {
	fmt.Fprintf(b, "%s Feature: %s\n\n", heading(level), feat.Name)
	writeMeta(b, "Status", feat.Status, "Priority", string(feat.Priority), "Tags", strings.Join(feat.Tags, ", "))
	writeBody(b, feat.Summary, feat.Description)
	if ae := t.writeSections(ctx, b, model.EntityFeature, feat.ID, level+1); ae != nil {
		return ae
	}

	tasks, err := t.engine.Store().TasksByFeature(ctx, feat.ID)
	if err != nil {
		return taskerrors.ErrDatabase("list tasks", err)
	}
	for i := range tasks {
		if ae := t.renderTask(ctx, b, &tasks[i], level+1); ae != nil {
			return ae
		}
	}
	return nil
}

func (t *Query) renderTask(ctx context.Context, b *strings.Builder, task *model.Task, level int) *taskerrors.AppError {
	fmt.Fprintf(b, "%s Task: %s\n\n", heading(level), task.Title)
	writeMeta(b, "Status", task.Status, "Priority", string(task.Priority),
		"Complexity", fmt.Sprintf("%d", task.Complexity), "Tags", strings.Join(task.Tags, ", "))
	writeBody(b, task.Summary, task.Description)
	return t.writeSections(ctx, b, model.EntityTask, task.ID, level+1)
}

// --- overview ---

type overviewNode struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Status        string               `json:"status"`
	Priority      model.Priority       `json:"priority,omitempty"`
	Complexity    int                  `json:"complexity,omitempty"`
	Summary       string               `json:"summary,omitempty"`
	FeatureCounts *model.FeatureCounts `json:"featureCounts,omitempty"`
	TaskCounts    *model.TaskCounts    `json:"taskCounts,omitempty"`
	Features      []overviewNode       `json:"features,omitempty"`
	Tasks         []overviewNode       `json:"tasks,omitempty"`
}

func (t *Query) overview(ctx context.Context, et model.EntityType, p params) (*mcp.ToolsCallResult, error) {
	trim := defaultOverview
	if p.SummaryLength != nil {
		trim = *p.SummaryLength
	}
	if trim < 0 || trim > maxOverviewSummary {
		return respond.Invalid(
			fmt.Sprintf("summaryLength must be between 0 and %d (got %d)", maxOverviewSummary, trim),
			"0 omits summaries entirely"), nil
	}

	if et == "" {
		et = model.EntityProject
	}
	if !model.IsValidEntityType(et) {
		return respond.Failure(requireType(et, p.ContainerType)), nil
	}

	if p.ID == "" {
		if et != model.EntityProject {
			return respond.Invalid("Container id is required",
				fmt.Sprintf("An overview of all containers is only available for projects; pass an id for a single %s", et)), nil
		}
		return t.allProjectsOverview(ctx, trim)
	}

	switch et {
	case model.EntityProject:
		proj, err := t.engine.Store().GetProject(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get project", err)), nil
		}
		if proj == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("project", p.ID)), nil
		}
		node, ae := t.projectNode(ctx, proj, trim)
		if ae != nil {
			return respond.Failure(ae), nil
		}
		return respond.Success(fmt.Sprintf("overview of project '%s'", proj.Name),
			map[string]any{"project": node}), nil

	case model.EntityFeature:
		feat, err := t.engine.Store().GetFeature(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get feature", err)), nil
		}
		if feat == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("feature", p.ID)), nil
		}
		node, ae := t.featureNode(ctx, feat, trim)
		if ae != nil {
			return respond.Failure(ae), nil
		}
		return respond.Success(fmt.Sprintf("overview of feature '%s'", feat.Name),
			map[string]any{"feature": node}), nil

	default:
		task, err := t.engine.Store().GetTask(ctx, p.ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("get task", err)), nil
		}
		if task == nil {
			return respond.Failure(taskerrors.ErrContainerNotFound("task", p.ID)), nil
		}
		node := taskNode(task, trim)
		return respond.Success(fmt.Sprintf("overview of task '%s'", task.Title),
			map[string]any{"task": node}), nil
	}
}

func (t *Query) allProjectsOverview(ctx context.Context, trim int) (*mcp.ToolsCallResult, error) {
	projects, err := t.engine.Store().ListProjects(ctx, db.ProjectFilters{})
	if err != nil {
		return respond.Failure(taskerrors.ErrDatabase("list projects", err)), nil
	}

	nodes := make([]overviewNode, 0, len(projects))
	for i := range projects {
		counts, err := t.engine.Store().FeatureCountsByProject(ctx, projects[i].ID)
		if err != nil {
			return respond.Failure(taskerrors.ErrDatabase("count features", err)), nil
		}
		nodes = append(nodes, overviewNode{
			ID:            projects[i].ID,
			Name:          projects[i].Name,
			Status:        projects[i].Status,
			Summary:       trimSummary(projects[i].Summary, trim),
			FeatureCounts: counts,
		})
	}

	data := map[string]any{"projects": nodes, "count": len(nodes)}
	return respond.Success(fmt.Sprintf("overview of %d project(s)", len(nodes)), data), nil
}

func (t *Query) projectNode(ctx context.Context, proj *model.Project, trim int) (*overviewNode, *taskerrors.AppError) {
	node := &overviewNode{
		ID:      proj.ID,
		Name:    proj.Name,
		Status:  proj.Status,
		Summary: trimSummary(proj.Summary, trim),
	}

	counts, err := t.engine.Store().FeatureCountsByProject(ctx, proj.ID)
	if err != nil {
		return nil, taskerrors.ErrDatabase("count features", err)
	}
	node.FeatureCounts = counts

	features, err := t.engine.Store().FeaturesByProject(ctx, proj.ID)
	if err != nil {
		return nil, taskerrors.ErrDatabase("list features", err)
	}
	for i := range features {
		fn, ae := t.featureNode(ctx, &features[i], trim)
		if ae != nil {
			return nil, ae
		}
		node.Features = append(node.Features, *fn)
	}

	tasks, err := t.engine.Store().TasksByProject(ctx, proj.ID)
	if err != nil {
		return nil, taskerrors.ErrDatabase("list tasks", err)
	}
	for i := range tasks {
		if tasks[i].FeatureID != "" {
			continue
		}
		node.Tasks = append(node.Tasks, taskNode(&tasks[i], trim))
	}
	return node, nil
}

func (t *Query) featureNode(ctx context.Context, feat *model.Feature, trim int) (*overviewNode, *taskerrors.AppError) {
	node := &overviewNode{
		ID:       feat.ID,
		Name:     feat.Name,
		Status:   feat.Status,
		Priority: feat.Priority,
		Summary:  trimSummary(feat.Summary, trim),
	}

	counts, err := t.engine.Store().TaskCountsByFeature(ctx, feat.ID)
	if err != nil {
		return nil, taskerrors.ErrDatabase("count tasks", err)
	}
	node.TaskCounts = counts

	tasks, err := t.engine.Store().TasksByFeature(ctx, feat.ID)
	if err != nil {
		return nil, taskerrors.ErrDatabase("list tasks", err)
	}
	for i := range tasks {
		node.Tasks = append(node.Tasks, taskNode(&tasks[i], trim))
	}
	return node, nil
}

func taskNode(task *model.Task, trim int) overviewNode {
	return overviewNode{
		ID:         task.ID,
		Name:       task.Title,
		Status:     task.Status,
		Priority:   task.Priority,
		Complexity: task.Complexity,
		Summary:    trimSummary(task.Summary, trim),
	}
}

func trimSummary(s string, limit int) string {
	if limit == 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
