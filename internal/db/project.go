package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

const projectColumns = "id, name, summary, description, status, tags, created_at, modified_at"

// CreateProject inserts a new project.
func (d *DB) CreateProject(ctx context.Context, p *model.Project) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Summary, p.Description, p.Status, marshalTags(p.Tags),
		formatTime(p.CreatedAt), formatTime(p.ModifiedAt))
	if err != nil {
		return fmt.Errorf("create project %s: %w", p.ID, err)
	}
	return nil
}

// GetProject retrieves a project by ID. Returns (nil, nil) when absent.
func (d *DB) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := d.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE id = ?
	`, id)

	p, err := scanProject(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

// UpdateProject rewrites a project row. The caller is expected to have
// loaded the row first, so a missing row is reported as an error.
func (d *DB) UpdateProject(ctx context.Context, p *model.Project) error {
	res, err := d.ExecContext(ctx, `
		UPDATE projects
		SET name = ?, summary = ?, description = ?, status = ?, tags = ?, modified_at = ?
		WHERE id = ?
	`, p.Name, p.Summary, p.Description, p.Status, marshalTags(p.Tags),
		formatTime(p.ModifiedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update project %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update project %s: %w", p.ID, sql.ErrNoRows)
	}
	return nil
}

// DeleteProject removes a project row.
func (d *DB) DeleteProject(ctx context.Context, id string) error {
	_, err := d.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return nil
}

// ProjectFilters narrows ListProjects results.
type ProjectFilters struct {
	Statuses []string
	Tags     []string
	Text     string // matches name, summary, and description
	Limit    int
	Offset   int
}

// ListProjects returns projects matching the filters, newest first.
func (d *DB) ListProjects(ctx context.Context, f ProjectFilters) ([]model.Project, error) {
	query := "SELECT " + projectColumns + " FROM projects"
	where, args := buildEntityFilters(f.Statuses, f.Tags, f.Text, []string{"name", "summary", "description"})
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	query, args = applyLimitOffset(query, args, f.Limit, f.Offset)

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// FeatureCountsByProject aggregates feature statuses under a project.
func (d *DB) FeatureCountsByProject(ctx context.Context, projectID string) (*model.FeatureCounts, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM features WHERE project_id = ? GROUP BY status
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("feature counts for project %s: %w", projectID, err)
	}
	defer rows.Close()

	counts := &model.FeatureCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan feature counts: %w", err)
		}
		counts.Total += n
		switch status {
		case "planning":
			counts.Planning += n
		case "in-development", "in-progress":
			counts.InProgress += n
		case "completed":
			counts.Completed += n
		case "cancelled":
			counts.Cancelled += n
		}
	}
	return counts, rows.Err()
}

func scanProject(scan func(...any) error) (*model.Project, error) {
	var p model.Project
	var tags, createdAt, modifiedAt string
	err := scan(&p.ID, &p.Name, &p.Summary, &p.Description, &p.Status, &tags, &createdAt, &modifiedAt)
	if err != nil {
		return nil, err
	}
	p.Tags = unmarshalTags(tags)
	p.CreatedAt = parseTime(createdAt)
	p.ModifiedAt = parseTime(modifiedAt)
	return &p, nil
}

// buildEntityFilters assembles WHERE clauses shared by the entity list
// queries: status membership, JSON tag containment, and a text match
// over the given columns. Callers append parent-id clauses themselves.
func buildEntityFilters(statuses, tags []string, text string, textCols []string) ([]string, []any) {
	var where []string
	var args []any

	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
		where = append(where, "status IN ("+placeholders+")")
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	for _, tag := range tags {
		// Tags are stored as a JSON array; match the quoted element.
		where = append(where, "tags LIKE ?")
		args = append(args, `%"`+tag+`"%`)
	}
	if text != "" && len(textCols) > 0 {
		var ors []string
		for _, col := range textCols {
			ors = append(ors, col+" LIKE ?")
			args = append(args, "%"+text+"%")
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	return where, args
}

func applyLimitOffset(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}
	return query, args
}
