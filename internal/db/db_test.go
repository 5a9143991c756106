package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func testTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestOpenCreatesSchema(t *testing.T) {
	d := openTestDB(t)

	tables := []string{
		"projects", "features", "tasks", "sections",
		"dependencies", "role_transitions", "templates", "template_sections",
	}
	for _, table := range tables {
		var name string
		err := d.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}
}

func TestOpenFileDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	if d.Path() != path {
		t.Errorf("Path() = %q, want %q", d.Path(), path)
	}
	if d.Dialect() != "sqlite" {
		t.Errorf("Dialect() = %q, want sqlite", d.Dialect())
	}
}

func TestMigrateIdempotent(t *testing.T) {
	d := openTestDB(t)

	// Migrations already ran in OpenInMemory; a second pass is a no-op.
	if err := d.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var n int
	if err := d.QueryRow("SELECT COUNT(*) FROM templates WHERE is_builtin = 1").Scan(&n); err != nil {
		t.Fatalf("count templates: %v", err)
	}
	if n != 4 {
		t.Errorf("builtin templates = %d, want 4", n)
	}
}

func TestRebind(t *testing.T) {
	d := openTestDB(t)

	// SQLite keeps ? placeholders untouched.
	got := d.Rebind("SELECT * FROM tasks WHERE id = ? AND status = ?")
	want := "SELECT * FROM tasks WHERE id = ? AND status = ?"
	if got != want {
		t.Errorf("Rebind() = %q, want %q", got, want)
	}
}

func TestGetContainer(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := testTime()

	project := &model.Project{ID: "PROJ-1", Name: "Platform", Status: "planning", CreatedAt: now, ModifiedAt: now}
	if err := d.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	feature := &model.Feature{ID: "FEAT-1", Name: "Auth", Status: "planning", Priority: model.PriorityHigh, ProjectID: "PROJ-1", CreatedAt: now, ModifiedAt: now}
	if err := d.CreateFeature(ctx, feature); err != nil {
		t.Fatalf("CreateFeature: %v", err)
	}
	task := &model.Task{ID: "TASK-1", Title: "Login form", Status: "pending", Priority: model.PriorityMedium, Complexity: 3, FeatureID: "FEAT-1", CreatedAt: now, ModifiedAt: now}
	if err := d.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	tests := []struct {
		entityType model.EntityType
		id         string
		wantName   string
	}{
		{model.EntityProject, "PROJ-1", "Platform"},
		{model.EntityFeature, "FEAT-1", "Auth"},
		{model.EntityTask, "TASK-1", "Login form"},
	}
	for _, tt := range tests {
		c, err := d.GetContainer(ctx, tt.entityType, tt.id)
		if err != nil {
			t.Fatalf("GetContainer(%s, %s): %v", tt.entityType, tt.id, err)
		}
		if c == nil {
			t.Fatalf("GetContainer(%s, %s) = nil", tt.entityType, tt.id)
		}
		if c.Name != tt.wantName {
			t.Errorf("Name = %q, want %q", c.Name, tt.wantName)
		}
		if c.Type != tt.entityType {
			t.Errorf("Type = %q, want %q", c.Type, tt.entityType)
		}
	}

	// Missing entity yields (nil, nil)
	c, err := d.GetContainer(ctx, model.EntityTask, "TASK-missing")
	if err != nil {
		t.Fatalf("GetContainer missing: %v", err)
	}
	if c != nil {
		t.Errorf("expected nil container for missing task, got %+v", c)
	}

	// Unknown entity type is an error
	if _, err := d.GetContainer(ctx, model.EntityType("epic"), "X"); err == nil {
		t.Error("expected error for unknown entity type")
	}
}

func TestUpdateContainerStatus(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := testTime()

	task := &model.Task{ID: "TASK-1", Title: "Login form", Status: "pending", Priority: model.PriorityMedium, CreatedAt: now, ModifiedAt: now}
	if err := d.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	later := now.Add(time.Hour)
	if err := d.UpdateContainerStatus(ctx, model.EntityTask, "TASK-1", "in-progress", later); err != nil {
		t.Fatalf("UpdateContainerStatus: %v", err)
	}

	got, err := d.GetTask(ctx, "TASK-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != "in-progress" {
		t.Errorf("status = %q, want in-progress", got.Status)
	}
	if !got.ModifiedAt.Equal(later) {
		t.Errorf("modified_at = %v, want %v", got.ModifiedAt, later)
	}

	// Missing entity reports an error
	if err := d.UpdateContainerStatus(ctx, model.EntityTask, "TASK-missing", "done", later); err == nil {
		t.Error("expected error for missing task")
	}
}

func TestConvertHelpers(t *testing.T) {
	if got := marshalTags(nil); got != "[]" {
		t.Errorf("marshalTags(nil) = %q, want []", got)
	}
	if got := marshalTags([]string{"a", "b"}); got != `["a","b"]` {
		t.Errorf("marshalTags = %q", got)
	}
	if got := unmarshalTags(`["x","y"]`); len(got) != 2 || got[0] != "x" {
		t.Errorf("unmarshalTags = %v", got)
	}
	if got := unmarshalTags("not json"); got != nil {
		t.Errorf("unmarshalTags(malformed) = %v, want nil", got)
	}

	ts := time.Date(2025, 3, 4, 5, 6, 7, 123456789, time.UTC)
	if parsed := parseTime(formatTime(ts)); !parsed.Equal(ts) {
		t.Errorf("round trip = %v, want %v", parsed, ts)
	}
	if parsed := parseTime("2025-03-04T05:06:07Z"); parsed.IsZero() {
		t.Error("second-precision timestamp should parse")
	}
	if parsed := parseTime("garbage"); !parsed.IsZero() {
		t.Errorf("garbage timestamp = %v, want zero", parsed)
	}
}
