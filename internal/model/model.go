// Package model defines the entities managed by the task orchestrator:
// the project/feature/task hierarchy, sections attached to entities,
// task dependencies, templates, and the role transition log.
package model

import (
	"time"
)

// EntityType identifies which level of the hierarchy a container belongs to.
type EntityType string

const (
	EntityProject EntityType = "project"
	EntityFeature EntityType = "feature"
	EntityTask    EntityType = "task"
)

// ValidEntityTypes returns all valid entity type values.
func ValidEntityTypes() []EntityType {
	return []EntityType{EntityProject, EntityFeature, EntityTask}
}

// IsValidEntityType returns true if the entity type is a valid value.
func IsValidEntityType(t EntityType) bool {
	switch t {
	case EntityProject, EntityFeature, EntityTask:
		return true
	default:
		return false
	}
}

// Priority represents the urgency/importance of a feature or task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ValidPriorities returns all valid priority values.
func ValidPriorities() []Priority {
	return []Priority{PriorityHigh, PriorityMedium, PriorityLow}
}

// IsValidPriority returns true if the priority is a valid priority value.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// PriorityOrder returns a numeric value for sorting (lower = higher priority).
func PriorityOrder(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1 // Default to medium
	}
}

// ContentFormat describes how a section's content should be interpreted.
type ContentFormat string

const (
	FormatMarkdown ContentFormat = "markdown"
	FormatJSON     ContentFormat = "json"
	FormatPlain    ContentFormat = "plain"
)

// ValidContentFormats returns all valid content format values.
func ValidContentFormats() []ContentFormat {
	return []ContentFormat{FormatMarkdown, FormatJSON, FormatPlain}
}

// IsValidContentFormat returns true if the format is a valid value.
func IsValidContentFormat(f ContentFormat) bool {
	switch f {
	case FormatMarkdown, FormatJSON, FormatPlain:
		return true
	default:
		return false
	}
}

// DependencyType classifies a task-to-task dependency edge.
type DependencyType string

const (
	// DependencyBlocks means the from-task blocks the to-task.
	DependencyBlocks DependencyType = "BLOCKS"
	// DependencyIsBlockedBy is the inverse edge: the from-task is blocked
	// by the to-task. Equivalent to BLOCKS with endpoints swapped.
	DependencyIsBlockedBy DependencyType = "IS_BLOCKED_BY"
	// DependencyRelatesTo is informational and never blocks.
	DependencyRelatesTo DependencyType = "RELATES_TO"
)

// ValidDependencyTypes returns all valid dependency type values.
func ValidDependencyTypes() []DependencyType {
	return []DependencyType{DependencyBlocks, DependencyIsBlockedBy, DependencyRelatesTo}
}

// IsValidDependencyType returns true if the type is a valid value.
func IsValidDependencyType(t DependencyType) bool {
	switch t {
	case DependencyBlocks, DependencyIsBlockedBy, DependencyRelatesTo:
		return true
	default:
		return false
	}
}

// IsBlocking returns true for dependency types that participate in
// blocking analysis.
func (t DependencyType) IsBlocking() bool {
	return t == DependencyBlocks || t == DependencyIsBlockedBy
}

// FilesChangedOrdinal is the reserved section ordinal conventionally
// holding the "files changed" section of an entity.
const FilesChangedOrdinal = 999

// Project is the top level of the hierarchy.
type Project struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Summary     string    `json:"summary" db:"summary"`
	Description string    `json:"description,omitempty" db:"description"`
	Status      string    `json:"status" db:"status"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	ModifiedAt  time.Time `json:"modifiedAt" db:"modified_at"`
}

// Feature groups tasks under an optional parent project.
type Feature struct {
	ID          string   `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Summary     string   `json:"summary" db:"summary"`
	Description string   `json:"description,omitempty" db:"description"`
	Status      string   `json:"status" db:"status"`
	Priority    Priority `json:"priority" db:"priority"`

	// ProjectID references the parent project when set.
	ProjectID string `json:"projectId,omitempty" db:"project_id"`

	// RequiresVerification gates terminal transitions on the
	// Verification section's criteria all passing.
	RequiresVerification bool `json:"requiresVerification" db:"requires_verification"`

	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	ModifiedAt time.Time `json:"modifiedAt" db:"modified_at"`
}

// Task is the unit of work at the bottom of the hierarchy.
type Task struct {
	ID          string   `json:"id" db:"id"`
	Title       string   `json:"title" db:"title"`
	Summary     string   `json:"summary" db:"summary"`
	Description string   `json:"description,omitempty" db:"description"`
	Status      string   `json:"status" db:"status"`
	Priority    Priority `json:"priority" db:"priority"`

	// Complexity is an estimate on a 1-10 scale.
	Complexity int `json:"complexity" db:"complexity"`

	// ProjectID and FeatureID reference the parents when set.
	ProjectID string `json:"projectId,omitempty" db:"project_id"`
	FeatureID string `json:"featureId,omitempty" db:"feature_id"`

	RequiresVerification bool `json:"requiresVerification" db:"requires_verification"`

	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	ModifiedAt time.Time `json:"modifiedAt" db:"modified_at"`
}

// Section is a titled block of content attached to exactly one entity.
// Ordinals order sections within their owner and are unique per owner.
type Section struct {
	ID         string     `json:"id" db:"id"`
	EntityType EntityType `json:"entityType" db:"entity_type"`
	EntityID   string     `json:"entityId" db:"entity_id"`

	Title            string        `json:"title" db:"title"`
	UsageDescription string        `json:"usageDescription,omitempty" db:"usage_description"`
	Content          string        `json:"content" db:"content"`
	ContentFormat    ContentFormat `json:"contentFormat" db:"content_format"`
	Ordinal          int           `json:"ordinal" db:"ordinal"`

	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	ModifiedAt time.Time `json:"modifiedAt" db:"modified_at"`
}

// Dependency is a directed edge between two tasks.
type Dependency struct {
	ID         string         `json:"id" db:"id"`
	FromTaskID string         `json:"fromTaskId" db:"from_task_id"`
	ToTaskID   string         `json:"toTaskId" db:"to_task_id"`
	Type       DependencyType `json:"type" db:"dependency_type"`

	// UnblockAt names the role the blocking task must reach before the
	// blocked task may start. Empty means terminal.
	UnblockAt string `json:"unblockAt,omitempty" db:"unblock_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// BlockingTaskID returns the id of the task doing the blocking,
// regardless of edge direction.
func (d Dependency) BlockingTaskID() string {
	if d.Type == DependencyIsBlockedBy {
		return d.ToTaskID
	}
	return d.FromTaskID
}

// BlockedTaskID returns the id of the task being blocked,
// regardless of edge direction.
func (d Dependency) BlockedTaskID() string {
	if d.Type == DependencyIsBlockedBy {
		return d.FromTaskID
	}
	return d.ToTaskID
}

// RoleTransition is one row of the append-only role transition log.
// A row is recorded only when an entity's status change also changed
// its resolved role.
type RoleTransition struct {
	ID         int64      `json:"id" db:"id"`
	EntityID   string     `json:"entityId" db:"entity_id"`
	EntityType EntityType `json:"entityType" db:"entity_type"`

	FromRole   string `json:"fromRole" db:"from_role"`
	ToRole     string `json:"toRole" db:"to_role"`
	FromStatus string `json:"fromStatus" db:"from_status"`
	ToStatus   string `json:"toStatus" db:"to_status"`

	TransitionedAt time.Time `json:"transitionedAt" db:"transitioned_at"`
	Trigger        string    `json:"trigger,omitempty" db:"trigger_source"`
	Summary        string    `json:"summary,omitempty" db:"summary"`
}

// Template is a named bundle of section prototypes for one entity type.
// Applying a template materialises its sections on the target entity.
type Template struct {
	ID               string     `json:"id" db:"id"`
	Name             string     `json:"name" db:"name"`
	Description      string     `json:"description,omitempty" db:"description"`
	TargetEntityType EntityType `json:"targetEntityType" db:"target_entity_type"`
	IsBuiltin        bool       `json:"isBuiltin" db:"is_builtin"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`

	// Loaded relation (not stored directly)
	Sections []TemplateSection `json:"sections,omitempty"`
}

// TemplateSection is one section prototype within a template.
type TemplateSection struct {
	ID               string        `json:"id" db:"id"`
	TemplateID       string        `json:"templateId" db:"template_id"`
	Title            string        `json:"title" db:"title"`
	UsageDescription string        `json:"usageDescription,omitempty" db:"usage_description"`
	ContentSample    string        `json:"contentSample,omitempty" db:"content_sample"`
	ContentFormat    ContentFormat `json:"contentFormat" db:"content_format"`
	Ordinal          int           `json:"ordinal" db:"ordinal"`
	Tags             []string      `json:"tags,omitempty"`
}

// TaskCounts aggregates child task statuses for a feature.
type TaskCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
	Testing    int `json:"testing"`
	Blocked    int `json:"blocked"`
}

// FeatureCounts aggregates child feature statuses for a project.
type FeatureCounts struct {
	Total      int `json:"total"`
	Planning   int `json:"planning"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

// Container is a uniform view over a project, feature, or task used by
// the workflow engine. Fields that do not apply to the underlying
// entity type are zero.
type Container struct {
	Type                 EntityType
	ID                   string
	Name                 string
	Summary              string
	Status               string
	Priority             Priority
	Complexity           int
	ProjectID            string
	FeatureID            string
	RequiresVerification bool
	Tags                 []string
	ModifiedAt           time.Time
}

// AsContainer returns the uniform engine view of a project.
func (p *Project) AsContainer() *Container {
	return &Container{
		Type:       EntityProject,
		ID:         p.ID,
		Name:       p.Name,
		Summary:    p.Summary,
		Status:     p.Status,
		Tags:       p.Tags,
		ModifiedAt: p.ModifiedAt,
	}
}

// AsContainer returns the uniform engine view of a feature.
func (f *Feature) AsContainer() *Container {
	return &Container{
		Type:                 EntityFeature,
		ID:                   f.ID,
		Name:                 f.Name,
		Summary:              f.Summary,
		Status:               f.Status,
		Priority:             f.Priority,
		ProjectID:            f.ProjectID,
		RequiresVerification: f.RequiresVerification,
		Tags:                 f.Tags,
		ModifiedAt:           f.ModifiedAt,
	}
}

// AsContainer returns the uniform engine view of a task.
func (t *Task) AsContainer() *Container {
	return &Container{
		Type:                 EntityTask,
		ID:                   t.ID,
		Name:                 t.Title,
		Summary:              t.Summary,
		Status:               t.Status,
		Priority:             t.Priority,
		Complexity:           t.Complexity,
		ProjectID:            t.ProjectID,
		FeatureID:            t.FeatureID,
		RequiresVerification: t.RequiresVerification,
		Tags:                 t.Tags,
		ModifiedAt:           t.ModifiedAt,
	}
}
