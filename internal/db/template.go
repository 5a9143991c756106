package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// GetTemplate retrieves a template with its sections loaded.
// Returns (nil, nil) when absent.
func (d *DB) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	row := d.QueryRowContext(ctx, `
		SELECT id, name, description, target_entity_type, is_builtin, created_at
		FROM templates WHERE id = ?
	`, id)
	return d.loadTemplate(ctx, row)
}

// GetTemplateByName retrieves a template by its unique name.
// Returns (nil, nil) when absent.
func (d *DB) GetTemplateByName(ctx context.Context, name string) (*model.Template, error) {
	row := d.QueryRowContext(ctx, `
		SELECT id, name, description, target_entity_type, is_builtin, created_at
		FROM templates WHERE name = ?
	`, name)
	return d.loadTemplate(ctx, row)
}

// ListTemplates returns templates, optionally filtered by target entity
// type, with sections loaded.
func (d *DB) ListTemplates(ctx context.Context, targetType model.EntityType) ([]model.Template, error) {
	query := `
		SELECT id, name, description, target_entity_type, is_builtin, created_at
		FROM templates`
	var args []any
	if targetType != "" {
		query += " WHERE target_entity_type = ?"
		args = append(args, string(targetType))
	}
	query += " ORDER BY name ASC"

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range templates {
		sections, err := d.TemplateSections(ctx, templates[i].ID)
		if err != nil {
			return nil, err
		}
		templates[i].Sections = sections
	}
	return templates, nil
}

// TemplateSections returns a template's section prototypes in ordinal order.
func (d *DB) TemplateSections(ctx context.Context, templateID string) ([]model.TemplateSection, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT id, template_id, title, usage_description, content_sample, content_format, ordinal, tags
		FROM template_sections
		WHERE template_id = ?
		ORDER BY ordinal ASC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("sections for template %s: %w", templateID, err)
	}
	defer rows.Close()

	var sections []model.TemplateSection
	for rows.Next() {
		var ts model.TemplateSection
		var format, tags string
		err := rows.Scan(&ts.ID, &ts.TemplateID, &ts.Title, &ts.UsageDescription,
			&ts.ContentSample, &format, &ts.Ordinal, &tags)
		if err != nil {
			return nil, fmt.Errorf("scan template section: %w", err)
		}
		ts.ContentFormat = model.ContentFormat(format)
		ts.Tags = unmarshalTags(tags)
		sections = append(sections, ts)
	}
	return sections, rows.Err()
}

func (d *DB) loadTemplate(ctx context.Context, row *sql.Row) (*model.Template, error) {
	t, err := scanTemplate(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get template: %w", err)
	}

	sections, err := d.TemplateSections(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Sections = sections
	return t, nil
}

func scanTemplate(scan func(...any) error) (*model.Template, error) {
	var t model.Template
	var targetType, createdAt string
	var isBuiltin int
	err := scan(&t.ID, &t.Name, &t.Description, &targetType, &isBuiltin, &createdAt)
	if err != nil {
		return nil, err
	}
	t.TargetEntityType = model.EntityType(targetType)
	t.IsBuiltin = isBuiltin != 0
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}
