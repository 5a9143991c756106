package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

const dependencyColumns = "id, from_task_id, to_task_id, dependency_type, unblock_at, created_at"

// CreateDependency inserts a new dependency edge.
func (d *DB) CreateDependency(ctx context.Context, dep *model.Dependency) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO dependencies (`+dependencyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, dep.ID, dep.FromTaskID, dep.ToTaskID, string(dep.Type), dep.UnblockAt,
		formatTime(dep.CreatedAt))
	if err != nil {
		return fmt.Errorf("create dependency %s: %w", dep.ID, err)
	}
	return nil
}

// GetDependency retrieves a dependency by ID. Returns (nil, nil) when absent.
func (d *DB) GetDependency(ctx context.Context, id string) (*model.Dependency, error) {
	row := d.QueryRowContext(ctx, `
		SELECT `+dependencyColumns+` FROM dependencies WHERE id = ?
	`, id)

	dep, err := scanDependency(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get dependency %s: %w", id, err)
	}
	return dep, nil
}

// DeleteDependency removes a dependency edge.
func (d *DB) DeleteDependency(ctx context.Context, id string) error {
	_, err := d.ExecContext(ctx, "DELETE FROM dependencies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete dependency %s: %w", id, err)
	}
	return nil
}

// DependenciesForTask returns every edge touching a task, in either
// direction and of any type.
func (d *DB) DependenciesForTask(ctx context.Context, taskID string) ([]model.Dependency, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT `+dependencyColumns+` FROM dependencies
		WHERE from_task_id = ? OR to_task_id = ?
		ORDER BY created_at ASC
	`, taskID, taskID)
	if err != nil {
		return nil, fmt.Errorf("dependencies for task %s: %w", taskID, err)
	}
	return collectDependencies(rows)
}

// InboundBlocking returns the blocking edges pointing at a task: edges
// whose blocked endpoint is the given task, RELATES_TO excluded.
func (d *DB) InboundBlocking(ctx context.Context, taskID string) ([]model.Dependency, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT `+dependencyColumns+` FROM dependencies
		WHERE (dependency_type = 'BLOCKS' AND to_task_id = ?)
		   OR (dependency_type = 'IS_BLOCKED_BY' AND from_task_id = ?)
		ORDER BY created_at ASC
	`, taskID, taskID)
	if err != nil {
		return nil, fmt.Errorf("inbound blocking for task %s: %w", taskID, err)
	}
	return collectDependencies(rows)
}

// OutboundBlocking returns the blocking edges originating at a task:
// edges whose blocking endpoint is the given task, RELATES_TO excluded.
func (d *DB) OutboundBlocking(ctx context.Context, taskID string) ([]model.Dependency, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT `+dependencyColumns+` FROM dependencies
		WHERE (dependency_type = 'BLOCKS' AND from_task_id = ?)
		   OR (dependency_type = 'IS_BLOCKED_BY' AND to_task_id = ?)
		ORDER BY created_at ASC
	`, taskID, taskID)
	if err != nil {
		return nil, fmt.Errorf("outbound blocking for task %s: %w", taskID, err)
	}
	return collectDependencies(rows)
}

// DeleteDependenciesForTask removes every edge touching a task. Used by
// forced task deletion.
func (d *DB) DeleteDependenciesForTask(ctx context.Context, taskID string) error {
	_, err := d.ExecContext(ctx, `
		DELETE FROM dependencies WHERE from_task_id = ? OR to_task_id = ?
	`, taskID, taskID)
	if err != nil {
		return fmt.Errorf("delete dependencies for task %s: %w", taskID, err)
	}
	return nil
}

// HasDependencies reports whether any edge touches the task.
func (d *DB) HasDependencies(ctx context.Context, taskID string) (bool, error) {
	var n int
	err := d.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dependencies WHERE from_task_id = ? OR to_task_id = ?
	`, taskID, taskID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count dependencies for task %s: %w", taskID, err)
	}
	return n > 0, nil
}

// AllBlockingDependencies returns every blocking edge in the database.
// Used by the blocked-tasks report.
func (d *DB) AllBlockingDependencies(ctx context.Context) ([]model.Dependency, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT `+dependencyColumns+` FROM dependencies
		WHERE dependency_type IN ('BLOCKS', 'IS_BLOCKED_BY')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("all blocking dependencies: %w", err)
	}
	return collectDependencies(rows)
}

func collectDependencies(rows *sql.Rows) ([]model.Dependency, error) {
	defer rows.Close()

	var deps []model.Dependency
	for rows.Next() {
		dep, err := scanDependency(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, *dep)
	}
	return deps, rows.Err()
}

func scanDependency(scan func(...any) error) (*model.Dependency, error) {
	var dep model.Dependency
	var depType, createdAt string
	err := scan(&dep.ID, &dep.FromTaskID, &dep.ToTaskID, &depType, &dep.UnblockAt, &createdAt)
	if err != nil {
		return nil, err
	}
	dep.Type = model.DependencyType(depType)
	dep.CreatedAt = parseTime(createdAt)
	return &dep, nil
}
