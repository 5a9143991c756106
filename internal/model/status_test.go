package model

import (
	"testing"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"in-progress", "in-progress"},
		{"in_progress", "in-progress"},
		{"inProgress", "in-progress"},
		{"IN_PROGRESS", "in-progress"},
		{"In-Progress", "in-progress"},
		{"  Pending ", "pending"},
		{"completed", "completed"},
		{"onHold", "on-hold"},
		{"ON_HOLD", "on-hold"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeStatus(tt.in); got != tt.want {
				t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoleOrder(t *testing.T) {
	if RoleOrder(RoleQueue) >= RoleOrder(RoleWork) {
		t.Error("queue should order before work")
	}
	if RoleOrder(RoleWork) >= RoleOrder(RoleReview) {
		t.Error("work should order before review")
	}
	if RoleOrder(RoleReview) >= RoleOrder(RoleTerminal) {
		t.Error("review should order before terminal")
	}
	if RoleOrder(RoleBlocked) != -1 {
		t.Errorf("blocked should be incomparable, got %d", RoleOrder(RoleBlocked))
	}
	if RoleOrder(Role("nonsense")) != -1 {
		t.Error("unknown roles should be incomparable")
	}
}

func TestRoleSatisfies(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleTerminal, RoleTerminal, true},
		{RoleReview, RoleTerminal, false},
		{RoleReview, RoleReview, true},
		{RoleWork, RoleReview, false},
		{RoleTerminal, RoleQueue, true},
		{RoleBlocked, RoleQueue, false},
		{RoleBlocked, RoleTerminal, false},
		{RoleQueue, Role("unknown"), false},
	}

	for _, tt := range tests {
		if got := RoleSatisfies(tt.role, tt.required); got != tt.want {
			t.Errorf("RoleSatisfies(%s, %s) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" Backend , API ", []string{"backend", "api"}},
		{"", nil},
		{" , ,", nil},
	}

	for _, tt := range tests {
		got := ParseTags(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("ParseTags(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ParseTags(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestDependencyEndpoints(t *testing.T) {
	blocks := Dependency{FromTaskID: "a", ToTaskID: "b", Type: DependencyBlocks}
	if blocks.BlockingTaskID() != "a" || blocks.BlockedTaskID() != "b" {
		t.Error("BLOCKS(a→b): a blocks b")
	}

	blockedBy := Dependency{FromTaskID: "b", ToTaskID: "a", Type: DependencyIsBlockedBy}
	if blockedBy.BlockingTaskID() != "a" || blockedBy.BlockedTaskID() != "b" {
		t.Error("IS_BLOCKED_BY(b→a): a blocks b")
	}

	relates := Dependency{FromTaskID: "a", ToTaskID: "b", Type: DependencyRelatesTo}
	if relates.Type.IsBlocking() {
		t.Error("RELATES_TO should never block")
	}
}

func TestPriorityOrder(t *testing.T) {
	if PriorityOrder(PriorityHigh) >= PriorityOrder(PriorityMedium) {
		t.Error("high should order before medium")
	}
	if PriorityOrder(PriorityMedium) >= PriorityOrder(PriorityLow) {
		t.Error("medium should order before low")
	}
	if PriorityOrder(Priority("")) != 1 {
		t.Error("unknown priority should default to medium order")
	}
}

func TestAsContainer(t *testing.T) {
	task := &Task{
		ID:                   "t1",
		Title:                "Implement parser",
		Status:               "pending",
		Priority:             PriorityHigh,
		Complexity:           4,
		FeatureID:            "f1",
		RequiresVerification: true,
		Tags:                 []string{"backend"},
	}

	c := task.AsContainer()
	if c.Type != EntityTask {
		t.Errorf("Type = %v, want task", c.Type)
	}
	if c.Name != "Implement parser" {
		t.Errorf("Name = %q, want title", c.Name)
	}
	if !c.RequiresVerification {
		t.Error("RequiresVerification should carry over")
	}

	feature := &Feature{ID: "f1", Name: "Parser", Status: "planning"}
	fc := feature.AsContainer()
	if fc.Type != EntityFeature || fc.Name != "Parser" {
		t.Error("feature container should carry name and type")
	}

	project := &Project{ID: "p1", Name: "Compiler", Status: "planning"}
	pc := project.AsContainer()
	if pc.Type != EntityProject || pc.ID != "p1" {
		t.Error("project container should carry id and type")
	}
}
