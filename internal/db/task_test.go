package db

import (
	"context"
	"testing"
	"time"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

func TestTaskCRUD(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := testTime()

	task := &model.Task{
		ID:         "TASK-1",
		Title:      "Implement login",
		Summary:    "",
		Status:     "pending",
		Priority:   model.PriorityHigh,
		Complexity: 7,
		Tags:       []string{"auth", "frontend"},
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if err := d.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := d.GetTask(ctx, "TASK-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got == nil {
		t.Fatal("GetTask returned nil")
	}
	if got.Title != "Implement login" || got.Priority != model.PriorityHigh || got.Complexity != 7 {
		t.Errorf("got %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "auth" {
		t.Errorf("tags = %v", got.Tags)
	}

	// Duplicate id is a unique violation
	err = d.CreateTask(ctx, task)
	if err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}

	// Update
	got.Status = "in-progress"
	got.Summary = "Working on it"
	if err := d.UpdateTask(ctx, got); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	updated, _ := d.GetTask(ctx, "TASK-1")
	if updated.Status != "in-progress" || updated.Summary != "Working on it" {
		t.Errorf("after update: %+v", updated)
	}

	// Update of a missing row errors
	missing := &model.Task{ID: "TASK-missing", Title: "x", Status: "pending", ModifiedAt: now}
	if err := d.UpdateTask(ctx, missing); err == nil {
		t.Error("expected update of missing task to fail")
	}

	// Delete
	if err := d.DeleteTask(ctx, "TASK-1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	gone, err := d.GetTask(ctx, "TASK-1")
	if err != nil {
		t.Fatalf("GetTask after delete: %v", err)
	}
	if gone != nil {
		t.Error("task still present after delete")
	}
}

func TestTaskDefaultComplexity(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := testTime()

	task := &model.Task{ID: "TASK-1", Title: "No estimate", Status: "pending", Priority: model.PriorityLow, CreatedAt: now, ModifiedAt: now}
	if err := d.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	got, _ := d.GetTask(ctx, "TASK-1")
	if got.Complexity != 5 {
		t.Errorf("complexity = %d, want default 5", got.Complexity)
	}
}

func TestListTasksFiltersAndOrdering(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := testTime()

	if err := d.CreateFeature(ctx, &model.Feature{ID: "FEAT-1", Name: "Auth", Status: "planning", Priority: model.PriorityHigh, CreatedAt: now, ModifiedAt: now}); err != nil {
		t.Fatalf("CreateFeature: %v", err)
	}

	seed := []model.Task{
		{ID: "TASK-low", Title: "Cleanup", Status: "pending", Priority: model.PriorityLow, Complexity: 9, FeatureID: "FEAT-1"},
		{ID: "TASK-high-small", Title: "Hotfix", Status: "pending", Priority: model.PriorityHigh, Complexity: 2, FeatureID: "FEAT-1"},
		{ID: "TASK-high-big", Title: "Migration", Status: "pending", Priority: model.PriorityHigh, Complexity: 8, FeatureID: "FEAT-1"},
		{ID: "TASK-done", Title: "Old work", Status: "completed", Priority: model.PriorityMedium, Complexity: 5, FeatureID: "FEAT-1", Tags: []string{"legacy"}},
	}
	for i := range seed {
		seed[i].CreatedAt = now.Add(time.Duration(i) * time.Minute)
		seed[i].ModifiedAt = seed[i].CreatedAt
		if err := d.CreateTask(ctx, &seed[i]); err != nil {
			t.Fatalf("CreateTask %s: %v", seed[i].ID, err)
		}
	}

	// Ordering: high priority first, then higher complexity
	all, err := d.ListTasks(ctx, TaskFilters{FeatureID: "FEAT-1"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
	if all[0].ID != "TASK-high-big" || all[1].ID != "TASK-high-small" {
		t.Errorf("order = %s, %s", all[0].ID, all[1].ID)
	}

	// Status filter
	pending, err := d.ListTasks(ctx, TaskFilters{Statuses: []string{"pending"}})
	if err != nil {
		t.Fatalf("ListTasks pending: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("pending = %d, want 3", len(pending))
	}

	// Tag filter
	tagged, err := d.ListTasks(ctx, TaskFilters{Tags: []string{"legacy"}})
	if err != nil {
		t.Fatalf("ListTasks tagged: %v", err)
	}
	if len(tagged) != 1 || tagged[0].ID != "TASK-done" {
		t.Errorf("tagged = %v", tagged)
	}

	// Text search over title
	found, err := d.ListTasks(ctx, TaskFilters{Text: "migra"})
	if err != nil {
		t.Fatalf("ListTasks text: %v", err)
	}
	if len(found) != 1 || found[0].ID != "TASK-high-big" {
		t.Errorf("text search = %v", found)
	}

	// Limit and offset
	page, err := d.ListTasks(ctx, TaskFilters{FeatureID: "FEAT-1", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListTasks paged: %v", err)
	}
	if len(page) != 2 || page[0].ID != "TASK-high-small" {
		t.Errorf("page = %v", page)
	}

	// Count helper
	n, err := d.CountTasksByFeature(ctx, "FEAT-1")
	if err != nil {
		t.Fatalf("CountTasksByFeature: %v", err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
}
