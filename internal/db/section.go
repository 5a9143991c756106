package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

const sectionColumns = "id, entity_type, entity_id, title, usage_description, content, content_format, ordinal, tags, created_at, modified_at"

// CreateSection inserts a new section. The (entity, ordinal) pair is
// unique; colliding ordinals surface as a constraint violation.
func (d *DB) CreateSection(ctx context.Context, s *model.Section) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO sections (`+sectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, string(s.EntityType), s.EntityID, s.Title, s.UsageDescription, s.Content,
		string(s.ContentFormat), s.Ordinal, marshalTags(s.Tags),
		formatTime(s.CreatedAt), formatTime(s.ModifiedAt))
	if err != nil {
		return fmt.Errorf("create section %s: %w", s.ID, err)
	}
	return nil
}

// GetSection retrieves a section by ID. Returns (nil, nil) when absent.
func (d *DB) GetSection(ctx context.Context, id string) (*model.Section, error) {
	row := d.QueryRowContext(ctx, `
		SELECT `+sectionColumns+` FROM sections WHERE id = ?
	`, id)

	s, err := scanSection(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get section %s: %w", id, err)
	}
	return s, nil
}

// SectionsForEntity returns an entity's sections in ordinal order.
func (d *DB) SectionsForEntity(ctx context.Context, entityType model.EntityType, entityID string) ([]model.Section, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT `+sectionColumns+` FROM sections
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY ordinal ASC
	`, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("sections for %s %s: %w", entityType, entityID, err)
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		s, err := scanSection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sections = append(sections, *s)
	}
	return sections, rows.Err()
}

// SectionByTitle returns the first section with the given title on an
// entity, or (nil, nil) when none exists. Title match is exact.
func (d *DB) SectionByTitle(ctx context.Context, entityType model.EntityType, entityID, title string) (*model.Section, error) {
	row := d.QueryRowContext(ctx, `
		SELECT `+sectionColumns+` FROM sections
		WHERE entity_type = ? AND entity_id = ? AND title = ?
		ORDER BY ordinal ASC
		LIMIT 1
	`, string(entityType), entityID, title)

	s, err := scanSection(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("section %q for %s %s: %w", title, entityType, entityID, err)
	}
	return s, nil
}

// UpdateSection rewrites a section row.
func (d *DB) UpdateSection(ctx context.Context, s *model.Section) error {
	res, err := d.ExecContext(ctx, `
		UPDATE sections
		SET title = ?, usage_description = ?, content = ?, content_format = ?,
		    ordinal = ?, tags = ?, modified_at = ?
		WHERE id = ?
	`, s.Title, s.UsageDescription, s.Content, string(s.ContentFormat),
		s.Ordinal, marshalTags(s.Tags), formatTime(s.ModifiedAt), s.ID)
	if err != nil {
		return fmt.Errorf("update section %s: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update section %s: %w", s.ID, sql.ErrNoRows)
	}
	return nil
}

// DeleteSection removes a section row.
func (d *DB) DeleteSection(ctx context.Context, id string) error {
	_, err := d.ExecContext(ctx, "DELETE FROM sections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete section %s: %w", id, err)
	}
	return nil
}

// DeleteSectionsForEntity removes all sections owned by an entity.
func (d *DB) DeleteSectionsForEntity(ctx context.Context, entityType model.EntityType, entityID string) error {
	_, err := d.ExecContext(ctx, `
		DELETE FROM sections WHERE entity_type = ? AND entity_id = ?
	`, string(entityType), entityID)
	if err != nil {
		return fmt.Errorf("delete sections for %s %s: %w", entityType, entityID, err)
	}
	return nil
}

// NextSectionOrdinal returns the next free ordinal for an entity,
// skipping the reserved files-changed slot.
func (d *DB) NextSectionOrdinal(ctx context.Context, entityType model.EntityType, entityID string) (int, error) {
	var max sql.NullInt64
	err := d.QueryRowContext(ctx, `
		SELECT MAX(ordinal) FROM sections
		WHERE entity_type = ? AND entity_id = ? AND ordinal < ?
	`, string(entityType), entityID, model.FilesChangedOrdinal).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next ordinal for %s %s: %w", entityType, entityID, err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

func scanSection(scan func(...any) error) (*model.Section, error) {
	var s model.Section
	var entityType, format, tags, createdAt, modifiedAt string
	err := scan(&s.ID, &entityType, &s.EntityID, &s.Title, &s.UsageDescription, &s.Content,
		&format, &s.Ordinal, &tags, &createdAt, &modifiedAt)
	if err != nil {
		return nil, err
	}
	s.EntityType = model.EntityType(entityType)
	s.ContentFormat = model.ContentFormat(format)
	s.Tags = unmarshalTags(tags)
	s.CreatedAt = parseTime(createdAt)
	s.ModifiedAt = parseTime(modifiedAt)
	return &s, nil
}
