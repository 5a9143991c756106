package db

import (
	"context"
	"fmt"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// AppendRoleTransition records one row of the role transition log.
// The log is append-only; rows are never updated or deleted.
func (d *DB) AppendRoleTransition(ctx context.Context, rt *model.RoleTransition) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO role_transitions (entity_type, entity_id, from_status, to_status, from_role, to_role, trigger_source, summary, transitioned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(rt.EntityType), rt.EntityID, rt.FromStatus, rt.ToStatus,
		rt.FromRole, rt.ToRole, rt.Trigger, rt.Summary, formatTime(rt.TransitionedAt))
	if err != nil {
		return fmt.Errorf("append role transition for %s %s: %w", rt.EntityType, rt.EntityID, err)
	}
	return nil
}

// RoleTransitionsForEntity returns an entity's role log, oldest first.
func (d *DB) RoleTransitionsForEntity(ctx context.Context, entityType model.EntityType, entityID string) ([]model.RoleTransition, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, from_status, to_status, from_role, to_role, trigger_source, summary, transitioned_at
		FROM role_transitions
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY id ASC
	`, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("role transitions for %s %s: %w", entityType, entityID, err)
	}
	defer rows.Close()

	var transitions []model.RoleTransition
	for rows.Next() {
		var rt model.RoleTransition
		var et, transitionedAt string
		err := rows.Scan(&rt.ID, &et, &rt.EntityID, &rt.FromStatus, &rt.ToStatus,
			&rt.FromRole, &rt.ToRole, &rt.Trigger, &rt.Summary, &transitionedAt)
		if err != nil {
			return nil, fmt.Errorf("scan role transition: %w", err)
		}
		rt.EntityType = model.EntityType(et)
		rt.TransitionedAt = parseTime(transitionedAt)
		transitions = append(transitions, rt)
	}
	return transitions, rows.Err()
}
