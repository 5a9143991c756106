package db

import (
	"encoding/json"
	"strings"
	"time"
)

// formatTime renders a timestamp for storage. All timestamps are stored
// as RFC3339Nano UTC text so lexicographic order matches chronological
// order across both dialects.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a stored timestamp. Accepts both nano and second
// precision for rows written by older builds.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// marshalTags serialises a tag list to its JSON column form.
func marshalTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// unmarshalTags parses the JSON tags column. Malformed content yields nil.
func unmarshalTags(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

// IsUniqueViolation reports whether an error came from a unique or
// primary key constraint. Matched textually so neither driver's error
// types leak out of this package.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "duplicate key value") || // PostgreSQL
		strings.Contains(msg, "SQLSTATE 23505")
}

// IsForeignKeyViolation reports whether an error came from a foreign key
// constraint, such as deleting a task that still has dependency rows.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") || // SQLite
		strings.Contains(msg, "violates foreign key constraint") || // PostgreSQL
		strings.Contains(msg, "SQLSTATE 23503")
}
