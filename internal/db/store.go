package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// GetContainer returns the uniform engine view of any entity.
// Returns (nil, nil) when the entity does not exist.
func (d *DB) GetContainer(ctx context.Context, entityType model.EntityType, id string) (*model.Container, error) {
	switch entityType {
	case model.EntityProject:
		p, err := d.GetProject(ctx, id)
		if err != nil || p == nil {
			return nil, err
		}
		return p.AsContainer(), nil
	case model.EntityFeature:
		f, err := d.GetFeature(ctx, id)
		if err != nil || f == nil {
			return nil, err
		}
		return f.AsContainer(), nil
	case model.EntityTask:
		t, err := d.GetTask(ctx, id)
		if err != nil || t == nil {
			return nil, err
		}
		return t.AsContainer(), nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
}

// UpdateContainerStatus writes a new status and modified time for any
// entity. Returns sql.ErrNoRows (wrapped) when the entity is missing.
func (d *DB) UpdateContainerStatus(ctx context.Context, entityType model.EntityType, id, status string, modifiedAt time.Time) error {
	var table string
	switch entityType {
	case model.EntityProject:
		table = "projects"
	case model.EntityFeature:
		table = "features"
	case model.EntityTask:
		table = "tasks"
	default:
		return fmt.Errorf("unknown entity type %q", entityType)
	}

	res, err := d.ExecContext(ctx,
		"UPDATE "+table+" SET status = ?, modified_at = ? WHERE id = ?",
		status, formatTime(modifiedAt), id)
	if err != nil {
		return fmt.Errorf("update %s %s status: %w", entityType, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s %s status: %w", entityType, id, sql.ErrNoRows)
	}
	return nil
}

// UpdateContainerSummary writes a new summary and modified time for any
// entity. Returns sql.ErrNoRows (wrapped) when the entity is missing.
func (d *DB) UpdateContainerSummary(ctx context.Context, entityType model.EntityType, id, summary string, modifiedAt time.Time) error {
	var table string
	switch entityType {
	case model.EntityProject:
		table = "projects"
	case model.EntityFeature:
		table = "features"
	case model.EntityTask:
		table = "tasks"
	default:
		return fmt.Errorf("unknown entity type %q", entityType)
	}

	res, err := d.ExecContext(ctx,
		"UPDATE "+table+" SET summary = ?, modified_at = ? WHERE id = ?",
		summary, formatTime(modifiedAt), id)
	if err != nil {
		return fmt.Errorf("update %s %s summary: %w", entityType, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s %s summary: %w", entityType, id, sql.ErrNoRows)
	}
	return nil
}
