package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

const taskColumns = "id, title, summary, description, status, priority, complexity, project_id, feature_id, requires_verification, tags, created_at, modified_at"

// CreateTask inserts a new task.
func (d *DB) CreateTask(ctx context.Context, t *model.Task) error {
	complexity := t.Complexity
	if complexity == 0 {
		complexity = 5
	}
	_, err := d.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Summary, t.Description, t.Status, string(t.Priority), complexity,
		nullableID(t.ProjectID), nullableID(t.FeatureID), boolToInt(t.RequiresVerification),
		marshalTags(t.Tags), formatTime(t.CreatedAt), formatTime(t.ModifiedAt))
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns (nil, nil) when absent.
func (d *DB) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := d.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// UpdateTask rewrites a task row.
func (d *DB) UpdateTask(ctx context.Context, t *model.Task) error {
	res, err := d.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, summary = ?, description = ?, status = ?, priority = ?, complexity = ?,
		    project_id = ?, feature_id = ?, requires_verification = ?, tags = ?, modified_at = ?
		WHERE id = ?
	`, t.Title, t.Summary, t.Description, t.Status, string(t.Priority), t.Complexity,
		nullableID(t.ProjectID), nullableID(t.FeatureID), boolToInt(t.RequiresVerification),
		marshalTags(t.Tags), formatTime(t.ModifiedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update task %s: %w", t.ID, sql.ErrNoRows)
	}
	return nil
}

// DeleteTask removes a task row. Dependency rows referencing the task
// must be removed first or the foreign keys will reject the delete.
func (d *DB) DeleteTask(ctx context.Context, id string) error {
	_, err := d.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// TaskFilters narrows ListTasks results.
type TaskFilters struct {
	ProjectID string
	FeatureID string
	Statuses  []string
	Priority  string
	Tags      []string
	Text      string // matches title, summary, and description
	Limit     int
	Offset    int
}

// ListTasks returns tasks matching the filters, ordered by priority
// (high first) then complexity (high first) then age.
func (d *DB) ListTasks(ctx context.Context, f TaskFilters) ([]model.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks"
	where, args := buildEntityFilters(f.Statuses, f.Tags, f.Text, []string{"title", "summary", "description"})
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.FeatureID != "" {
		where = append(where, "feature_id = ?")
		args = append(args, f.FeatureID)
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, f.Priority)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY
		CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
		complexity DESC,
		created_at ASC`
	query, args = applyLimitOffset(query, args, f.Limit, f.Offset)

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// TasksByFeature returns all tasks under a feature.
func (d *DB) TasksByFeature(ctx context.Context, featureID string) ([]model.Task, error) {
	return d.ListTasks(ctx, TaskFilters{FeatureID: featureID})
}

// TasksByProject returns all tasks directly under a project.
func (d *DB) TasksByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	return d.ListTasks(ctx, TaskFilters{ProjectID: projectID})
}

// CountTasksByFeature returns the number of tasks under a feature.
func (d *DB) CountTasksByFeature(ctx context.Context, featureID string) (int, error) {
	var n int
	err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE feature_id = ?", featureID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks for feature %s: %w", featureID, err)
	}
	return n, nil
}

func scanTask(scan func(...any) error) (*model.Task, error) {
	var t model.Task
	var priority, tags, createdAt, modifiedAt string
	var projectID, featureID sql.NullString
	var requiresVerification int
	err := scan(&t.ID, &t.Title, &t.Summary, &t.Description, &t.Status, &priority, &t.Complexity,
		&projectID, &featureID, &requiresVerification, &tags, &createdAt, &modifiedAt)
	if err != nil {
		return nil, err
	}
	t.Priority = model.Priority(priority)
	t.ProjectID = projectID.String
	t.FeatureID = featureID.String
	t.RequiresVerification = requiresVerification != 0
	t.Tags = unmarshalTags(tags)
	t.CreatedAt = parseTime(createdAt)
	t.ModifiedAt = parseTime(modifiedAt)
	return &t, nil
}
