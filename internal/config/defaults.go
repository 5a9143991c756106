package config

import (
	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// Default returns the built-in workflow configuration used when no
// config file exists. The untagged flows are deliberately short so that
// completing an entity is a single sequential step from its working
// status; testing and deployment stages live in tag-selected flows.
func Default() *Config {
	return &Config{
		Tasks: Progression{
			DefaultFlow: []string{"pending", "in-progress", "completed"},
			Flows: map[string][]string{
				DefaultFlowKey:    {"pending", "in-progress", "completed"},
				"qa_flow":         {"pending", "in-progress", "testing", "completed"},
				"deployment_flow": {"pending", "in-progress", "testing", "deployed", "completed"},
			},
			FlowMappings: []FlowMapping{
				{Tags: []string{"deployment", "release", "hotfix-*"}, Flow: "deployment_flow"},
				{Tags: []string{"qa", "testing"}, Flow: "qa_flow"},
			},
			TerminalStatuses:     []string{"completed", "cancelled", "deferred"},
			EmergencyTransitions: []string{"blocked", "on-hold", "cancelled"},
		},
		Features: Progression{
			DefaultFlow: []string{"planning", "in-development", "completed"},
			Flows: map[string][]string{
				DefaultFlowKey: {"planning", "in-development", "completed"},
				"qa_flow":      {"planning", "in-development", "testing", "completed"},
			},
			FlowMappings: []FlowMapping{
				{Tags: []string{"qa", "verified"}, Flow: "qa_flow"},
			},
			TerminalStatuses:     []string{"completed", "cancelled"},
			EmergencyTransitions: []string{"blocked", "on-hold", "cancelled"},
		},
		Projects: Progression{
			DefaultFlow: []string{"planning", "in-development", "completed"},
			Flows: map[string][]string{
				DefaultFlowKey: {"planning", "in-development", "completed"},
			},
			TerminalStatuses:     []string{"completed", "cancelled", "archived"},
			EmergencyTransitions: []string{"on-hold", "cancelled", "archived"},
		},
		Validation: ValidationRules{
			EnforceSequential:     true,
			AllowBackward:         true,
			AllowEmergency:        true,
			ValidatePrerequisites: true,
		},
		Cascade: CascadeConfig{
			Enabled:  false,
			MaxDepth: 3,
		},
		Cleanup: CleanupConfig{
			Enabled:         true,
			DeleteCancelled: true,
			RetainCompleted: true,
		},
		Roles: map[model.EntityType]map[string]model.Role{
			model.EntityTask: {
				"pending":     model.RoleQueue,
				"in-progress": model.RoleWork,
				"testing":     model.RoleReview,
				"deployed":    model.RoleReview,
				"completed":   model.RoleTerminal,
				"cancelled":   model.RoleTerminal,
				"deferred":    model.RoleTerminal,
				"blocked":     model.RoleBlocked,
				"on-hold":     model.RoleBlocked,
			},
			model.EntityFeature: {
				"planning":       model.RoleQueue,
				"in-development": model.RoleWork,
				"testing":        model.RoleReview,
				"completed":      model.RoleTerminal,
				"cancelled":      model.RoleTerminal,
				"blocked":        model.RoleBlocked,
				"on-hold":        model.RoleBlocked,
			},
			model.EntityProject: {
				"planning":       model.RoleQueue,
				"in-development": model.RoleWork,
				"completed":      model.RoleTerminal,
				"cancelled":      model.RoleTerminal,
				"archived":       model.RoleTerminal,
				"on-hold":        model.RoleBlocked,
			},
		},
	}
}

// StarterYAML is the config file written by `taskorc init`. It matches
// the built-in defaults so users can edit from a known-good baseline.
const StarterYAML = `# Workflow configuration for the task orchestrator.
# Statuses are lowercase-hyphenated; flows are ordered sequences.

status_progression:
  tasks:
    default_flow: [pending, in-progress, completed]
    qa_flow: [pending, in-progress, testing, completed]
    deployment_flow: [pending, in-progress, testing, deployed, completed]
    flow_mappings:
      - tags: [deployment, release, hotfix-*]
        flow: deployment_flow
      - tags: [qa, testing]
        flow: qa_flow
    terminal_statuses: [completed, cancelled, deferred]
    emergency_transitions: [blocked, on-hold, cancelled]
  features:
    default_flow: [planning, in-development, completed]
    qa_flow: [planning, in-development, testing, completed]
    flow_mappings:
      - tags: [qa, verified]
        flow: qa_flow
    terminal_statuses: [completed, cancelled]
    emergency_transitions: [blocked, on-hold, cancelled]
  projects:
    default_flow: [planning, in-development, completed]
    terminal_statuses: [completed, cancelled, archived]
    emergency_transitions: [on-hold, cancelled, archived]

status_validation:
  enforce_sequential: true
  allow_backward: true
  allow_emergency: true
  validate_prerequisites: true

auto_cascade:
  enabled: false
  max_depth: 3

status_roles:
  tasks:
    pending: queue
    in-progress: work
    testing: review
    deployed: review
    completed: terminal
    cancelled: terminal
    deferred: terminal
    blocked: blocked
    on-hold: blocked
  features:
    planning: queue
    in-development: work
    testing: review
    completed: terminal
    cancelled: terminal
    blocked: blocked
    on-hold: blocked
  projects:
    planning: queue
    in-development: work
    completed: terminal
    cancelled: terminal
    archived: terminal
    on-hold: blocked
`
