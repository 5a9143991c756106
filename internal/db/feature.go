package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

const featureColumns = "id, name, summary, description, status, priority, project_id, requires_verification, tags, created_at, modified_at"

// CreateFeature inserts a new feature.
func (d *DB) CreateFeature(ctx context.Context, f *model.Feature) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO features (`+featureColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.Name, f.Summary, f.Description, f.Status, string(f.Priority),
		nullableID(f.ProjectID), boolToInt(f.RequiresVerification), marshalTags(f.Tags),
		formatTime(f.CreatedAt), formatTime(f.ModifiedAt))
	if err != nil {
		return fmt.Errorf("create feature %s: %w", f.ID, err)
	}
	return nil
}

// GetFeature retrieves a feature by ID. Returns (nil, nil) when absent.
func (d *DB) GetFeature(ctx context.Context, id string) (*model.Feature, error) {
	row := d.QueryRowContext(ctx, `
		SELECT `+featureColumns+` FROM features WHERE id = ?
	`, id)

	f, err := scanFeature(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get feature %s: %w", id, err)
	}
	return f, nil
}

// UpdateFeature rewrites a feature row.
func (d *DB) UpdateFeature(ctx context.Context, f *model.Feature) error {
	res, err := d.ExecContext(ctx, `
		UPDATE features
		SET name = ?, summary = ?, description = ?, status = ?, priority = ?,
		    project_id = ?, requires_verification = ?, tags = ?, modified_at = ?
		WHERE id = ?
	`, f.Name, f.Summary, f.Description, f.Status, string(f.Priority),
		nullableID(f.ProjectID), boolToInt(f.RequiresVerification), marshalTags(f.Tags),
		formatTime(f.ModifiedAt), f.ID)
	if err != nil {
		return fmt.Errorf("update feature %s: %w", f.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update feature %s: %w", f.ID, sql.ErrNoRows)
	}
	return nil
}

// DeleteFeature removes a feature row.
func (d *DB) DeleteFeature(ctx context.Context, id string) error {
	_, err := d.ExecContext(ctx, "DELETE FROM features WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete feature %s: %w", id, err)
	}
	return nil
}

// FeatureFilters narrows ListFeatures results.
type FeatureFilters struct {
	ProjectID string
	Statuses  []string
	Priority  string
	Tags      []string
	Text      string // matches name, summary, and description
	Limit     int
	Offset    int
}

// ListFeatures returns features matching the filters, newest first.
func (d *DB) ListFeatures(ctx context.Context, f FeatureFilters) ([]model.Feature, error) {
	query := "SELECT " + featureColumns + " FROM features"
	where, args := buildEntityFilters(f.Statuses, f.Tags, f.Text, []string{"name", "summary", "description"})
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, f.Priority)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	query, args = applyLimitOffset(query, args, f.Limit, f.Offset)

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	var features []model.Feature
	for rows.Next() {
		ft, err := scanFeature(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		features = append(features, *ft)
	}
	return features, rows.Err()
}

// FeaturesByProject returns all features under a project.
func (d *DB) FeaturesByProject(ctx context.Context, projectID string) ([]model.Feature, error) {
	return d.ListFeatures(ctx, FeatureFilters{ProjectID: projectID})
}

// TaskCountsByFeature aggregates child task statuses for a feature.
func (d *DB) TaskCountsByFeature(ctx context.Context, featureID string) (*model.TaskCounts, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM tasks WHERE feature_id = ? GROUP BY status
	`, featureID)
	if err != nil {
		return nil, fmt.Errorf("task counts for feature %s: %w", featureID, err)
	}
	defer rows.Close()

	counts := &model.TaskCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan task counts: %w", err)
		}
		counts.Total += n
		switch status {
		case "pending":
			counts.Pending += n
		case "in-progress":
			counts.InProgress += n
		case "testing":
			counts.Testing += n
		case "completed":
			counts.Completed += n
		case "cancelled":
			counts.Cancelled += n
		case "blocked", "on-hold":
			counts.Blocked += n
		}
	}
	return counts, rows.Err()
}

func scanFeature(scan func(...any) error) (*model.Feature, error) {
	var f model.Feature
	var priority, tags, createdAt, modifiedAt string
	var projectID sql.NullString
	var requiresVerification int
	err := scan(&f.ID, &f.Name, &f.Summary, &f.Description, &f.Status, &priority,
		&projectID, &requiresVerification, &tags, &createdAt, &modifiedAt)
	if err != nil {
		return nil, err
	}
	f.Priority = model.Priority(priority)
	f.ProjectID = projectID.String
	f.RequiresVerification = requiresVerification != 0
	f.Tags = unmarshalTags(tags)
	f.CreatedAt = parseTime(createdAt)
	f.ModifiedAt = parseTime(modifiedAt)
	return &f, nil
}

// nullableID maps an empty id string to NULL so foreign keys stay honest.
func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
