package db

import (
	"context"
	"testing"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

func TestProjectCRUDAndCounts(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := testTime()

	p := &model.Project{ID: "PROJ-1", Name: "Platform", Summary: "Core platform work", Status: "planning", Tags: []string{"infra"}, CreatedAt: now, ModifiedAt: now}
	if err := d.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	got, err := d.GetProject(ctx, "PROJ-1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got == nil || got.Name != "Platform" || len(got.Tags) != 1 {
		t.Errorf("got %+v", got)
	}

	got.Status = "in-development"
	if err := d.UpdateProject(ctx, got); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}

	features := []model.Feature{
		{ID: "FEAT-1", Name: "Auth", Status: "planning", Priority: model.PriorityHigh, ProjectID: "PROJ-1"},
		{ID: "FEAT-2", Name: "Billing", Status: "in-development", Priority: model.PriorityMedium, ProjectID: "PROJ-1"},
		{ID: "FEAT-3", Name: "Search", Status: "completed", Priority: model.PriorityLow, ProjectID: "PROJ-1"},
	}
	for i := range features {
		features[i].CreatedAt = now
		features[i].ModifiedAt = now
		if err := d.CreateFeature(ctx, &features[i]); err != nil {
			t.Fatalf("CreateFeature: %v", err)
		}
	}

	counts, err := d.FeatureCountsByProject(ctx, "PROJ-1")
	if err != nil {
		t.Fatalf("FeatureCountsByProject: %v", err)
	}
	if counts.Total != 3 || counts.Planning != 1 || counts.InProgress != 1 || counts.Completed != 1 {
		t.Errorf("counts = %+v", counts)
	}

	listed, err := d.ListProjects(ctx, ProjectFilters{Statuses: []string{"in-development"}})
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "PROJ-1" {
		t.Errorf("listed = %v", listed)
	}
}

func TestFeatureCRUDAndTaskCounts(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := testTime()

	f := &model.Feature{ID: "FEAT-1", Name: "Auth", Status: "planning", Priority: model.PriorityHigh, RequiresVerification: true, CreatedAt: now, ModifiedAt: now}
	if err := d.CreateFeature(ctx, f); err != nil {
		t.Fatalf("CreateFeature: %v", err)
	}

	got, err := d.GetFeature(ctx, "FEAT-1")
	if err != nil {
		t.Fatalf("GetFeature: %v", err)
	}
	if got == nil || !got.RequiresVerification || got.Priority != model.PriorityHigh {
		t.Errorf("got %+v", got)
	}
	if got.ProjectID != "" {
		t.Errorf("standalone feature should have empty project id, got %q", got.ProjectID)
	}

	tasks := []struct {
		id, status string
	}{
		{"TASK-1", "pending"},
		{"TASK-2", "in-progress"},
		{"TASK-3", "testing"},
		{"TASK-4", "completed"},
		{"TASK-5", "blocked"},
	}
	for _, tt := range tasks {
		task := &model.Task{ID: tt.id, Title: tt.id, Status: tt.status, Priority: model.PriorityMedium, FeatureID: "FEAT-1", CreatedAt: now, ModifiedAt: now}
		if err := d.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	counts, err := d.TaskCountsByFeature(ctx, "FEAT-1")
	if err != nil {
		t.Fatalf("TaskCountsByFeature: %v", err)
	}
	if counts.Total != 5 || counts.Pending != 1 || counts.InProgress != 1 ||
		counts.Testing != 1 || counts.Completed != 1 || counts.Blocked != 1 {
		t.Errorf("counts = %+v", counts)
	}

	byProject, err := d.ListFeatures(ctx, FeatureFilters{Priority: "high"})
	if err != nil {
		t.Fatalf("ListFeatures: %v", err)
	}
	if len(byProject) != 1 {
		t.Errorf("by priority = %v", byProject)
	}

	// Tasks still reference the feature, so the FK rejects the delete
	err = d.DeleteFeature(ctx, "FEAT-1")
	if err == nil {
		t.Fatal("expected feature delete to fail while tasks reference it")
	}
	if !IsForeignKeyViolation(err) {
		t.Errorf("expected foreign key violation, got %v", err)
	}
}

func TestTemplatesSeeded(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	tpl, err := d.GetTemplateByName(ctx, "task-verified")
	if err != nil {
		t.Fatalf("GetTemplateByName: %v", err)
	}
	if tpl == nil {
		t.Fatal("task-verified template missing")
	}
	if !tpl.IsBuiltin || tpl.TargetEntityType != model.EntityTask {
		t.Errorf("template = %+v", tpl)
	}
	if len(tpl.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(tpl.Sections))
	}
	if tpl.Sections[1].Title != "Verification" || tpl.Sections[1].ContentFormat != model.FormatJSON {
		t.Errorf("verification section = %+v", tpl.Sections[1])
	}

	byID, err := d.GetTemplate(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if byID == nil || byID.Name != "task-verified" {
		t.Errorf("byID = %+v", byID)
	}

	taskTemplates, err := d.ListTemplates(ctx, model.EntityTask)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(taskTemplates) != 2 {
		t.Errorf("task templates = %d, want 2", len(taskTemplates))
	}

	all, err := d.ListTemplates(ctx, "")
	if err != nil {
		t.Fatalf("ListTemplates all: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all templates = %d, want 4", len(all))
	}

	missing, err := d.GetTemplateByName(ctx, "nope")
	if err != nil {
		t.Fatalf("GetTemplateByName missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil, got %+v", missing)
	}
}

func TestRoleTransitionLog(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := testTime()

	entries := []model.RoleTransition{
		{EntityType: model.EntityTask, EntityID: "TASK-1", FromStatus: "pending", ToStatus: "in-progress", FromRole: "queue", ToRole: "work", Trigger: "manual", TransitionedAt: now},
		{EntityType: model.EntityTask, EntityID: "TASK-1", FromStatus: "in-progress", ToStatus: "testing", FromRole: "work", ToRole: "review", Trigger: "executor", TransitionedAt: now},
		{EntityType: model.EntityTask, EntityID: "TASK-other", FromStatus: "pending", ToStatus: "in-progress", FromRole: "queue", ToRole: "work", TransitionedAt: now},
	}
	for i := range entries {
		if err := d.AppendRoleTransition(ctx, &entries[i]); err != nil {
			t.Fatalf("AppendRoleTransition: %v", err)
		}
	}

	log, err := d.RoleTransitionsForEntity(ctx, model.EntityTask, "TASK-1")
	if err != nil {
		t.Fatalf("RoleTransitionsForEntity: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("log = %d entries, want 2", len(log))
	}
	if log[0].ToRole != "work" || log[1].ToRole != "review" {
		t.Errorf("log order wrong: %v then %v", log[0].ToRole, log[1].ToRole)
	}
	if log[0].ID >= log[1].ID {
		t.Errorf("ids not monotonic: %d, %d", log[0].ID, log[1].ID)
	}
	if log[1].Trigger != "executor" {
		t.Errorf("trigger = %q", log[1].Trigger)
	}
}
