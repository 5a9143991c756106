// Package config loads and caches the workflow configuration that
// drives status progression, validation policy, cascades, and status
// roles. The configuration lives at
// <working_dir>/.taskorchestrator/config.yaml; when the file is absent
// or unparseable the built-in defaults apply.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

const (
	// ConfigFileName is the workflow config file name.
	ConfigFileName = "config.yaml"
	// ConfigDir is the orchestrator configuration directory.
	ConfigDir = ".taskorchestrator"

	// DefaultFlowKey names the progression's fallback flow.
	DefaultFlowKey = "default_flow"
)

// FlowMapping selects a named flow for entities whose tags intersect
// the mapping's tag set. Mapping tags may be glob patterns.
type FlowMapping struct {
	Tags []string `yaml:"tags"`
	Flow string   `yaml:"flow"`
}

// Progression describes the status machine for one entity type:
// an ordered default flow, optional named alternative flows selected
// by tag mappings, and the terminal and emergency status sets.
type Progression struct {
	// DefaultFlow is the ordered status sequence used when no flow
	// mapping matches.
	DefaultFlow []string

	// Flows holds every "*_flow" key from the config, including
	// default_flow, keyed by its full key name.
	Flows map[string][]string

	// FlowMappings are evaluated in order; the first whose tags
	// intersect the entity's tags selects the flow.
	FlowMappings []FlowMapping

	TerminalStatuses     []string
	EmergencyTransitions []string
}

// UnmarshalYAML decodes a progression, collecting arbitrary "*_flow"
// keys into Flows. Unknown keys are ignored.
func (p *Progression) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("progression must be a mapping, got %v", value.Kind)
	}
	p.Flows = make(map[string][]string)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		val := value.Content[i+1]
		switch {
		case key == "flow_mappings":
			if err := val.Decode(&p.FlowMappings); err != nil {
				return fmt.Errorf("flow_mappings: %w", err)
			}
		case key == "terminal_statuses":
			if err := val.Decode(&p.TerminalStatuses); err != nil {
				return fmt.Errorf("terminal_statuses: %w", err)
			}
		case key == "emergency_transitions":
			if err := val.Decode(&p.EmergencyTransitions); err != nil {
				return fmt.Errorf("emergency_transitions: %w", err)
			}
		case strings.HasSuffix(key, "_flow"):
			var flow []string
			if err := val.Decode(&flow); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			p.Flows[key] = flow
			if key == DefaultFlowKey {
				p.DefaultFlow = flow
			}
		}
	}
	return nil
}

// MarshalYAML renders the progression back in its file syntax: the
// flow keys inline in the mapping, default_flow first.
func (p Progression) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, val any) error {
		var k, v yaml.Node
		k.SetString(key)
		if err := v.Encode(val); err != nil {
			return err
		}
		node.Content = append(node.Content, &k, &v)
		return nil
	}

	defaultFlow := p.DefaultFlow
	if flow, ok := p.Flows[DefaultFlowKey]; ok {
		defaultFlow = flow
	}
	if err := add(DefaultFlowKey, defaultFlow); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(p.Flows))
	for key := range p.Flows {
		if key != DefaultFlowKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := add(key, p.Flows[key]); err != nil {
			return nil, err
		}
	}

	if len(p.FlowMappings) > 0 {
		if err := add("flow_mappings", p.FlowMappings); err != nil {
			return nil, err
		}
	}
	if err := add("terminal_statuses", p.TerminalStatuses); err != nil {
		return nil, err
	}
	if err := add("emergency_transitions", p.EmergencyTransitions); err != nil {
		return nil, err
	}
	return node, nil
}

// normalize canonicalises every status and tag in the progression.
func (p *Progression) normalize() {
	p.DefaultFlow = normalizeAll(p.DefaultFlow)
	for name, flow := range p.Flows {
		p.Flows[name] = normalizeAll(flow)
	}
	p.TerminalStatuses = normalizeAll(p.TerminalStatuses)
	p.EmergencyTransitions = normalizeAll(p.EmergencyTransitions)
	for i := range p.FlowMappings {
		p.FlowMappings[i].Tags = model.NormalizeTags(p.FlowMappings[i].Tags)
	}
}

func normalizeAll(statuses []string) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if n := model.NormalizeStatus(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ValidationRules control which transition checks are enforced.
// Every rule defaults to enabled.
type ValidationRules struct {
	// EnforceSequential rejects forward jumps that skip flow statuses.
	EnforceSequential bool `yaml:"enforce_sequential"`
	// AllowBackward permits rework transitions (later to earlier).
	AllowBackward bool `yaml:"allow_backward"`
	// AllowEmergency permits emergency targets from any non-terminal state.
	AllowEmergency bool `yaml:"allow_emergency"`
	// ValidatePrerequisites runs the cross-entity prerequisite checks.
	ValidatePrerequisites bool `yaml:"validate_prerequisites"`
}

// CascadeConfig controls automatic cascade application.
type CascadeConfig struct {
	// Enabled applies cascades instead of only suggesting them.
	Enabled bool `yaml:"enabled"`
	// MaxDepth bounds the cascade chain length (default 3 covers
	// task -> feature -> project).
	MaxDepth int `yaml:"max_depth"`
}

// CleanupConfig controls the completion cleanup pass that runs when a
// feature reaches a terminal status within a cascade.
type CleanupConfig struct {
	Enabled bool `yaml:"enabled"`
	// DeleteCancelled removes cancelled child tasks with their sections
	// and dependency rows.
	DeleteCancelled bool `yaml:"delete_cancelled"`
	// RetainCompleted keeps completed child tasks.
	RetainCompleted bool `yaml:"retain_completed"`
}

// Config is the parsed workflow configuration.
type Config struct {
	Projects Progression
	Features Progression
	Tasks    Progression

	Validation ValidationRules
	Cascade    CascadeConfig
	Cleanup    CleanupConfig

	// Roles maps entity type -> status -> role name.
	Roles map[model.EntityType]map[string]model.Role
}

// Progression returns the status machine for an entity type.
func (c *Config) Progression(t model.EntityType) *Progression {
	switch t {
	case model.EntityProject:
		return &c.Projects
	case model.EntityFeature:
		return &c.Features
	default:
		return &c.Tasks
	}
}

// MarshalYAML renders the config in the same shape the file uses, so
// that 'taskorc config show' output can be pasted into config.yaml.
func (c Config) MarshalYAML() (any, error) {
	type progressions struct {
		Projects Progression `yaml:"projects"`
		Features Progression `yaml:"features"`
		Tasks    Progression `yaml:"tasks"`
	}
	type fileShape struct {
		StatusProgression progressions                 `yaml:"status_progression"`
		StatusValidation  ValidationRules              `yaml:"status_validation"`
		AutoCascade       CascadeConfig                `yaml:"auto_cascade"`
		StatusRoles       map[string]map[string]string `yaml:"status_roles"`
		CompletionCleanup CleanupConfig                `yaml:"completion_cleanup"`
	}

	roles := make(map[string]map[string]string, len(c.Roles))
	for t, byStatus := range c.Roles {
		m := make(map[string]string, len(byStatus))
		for status, role := range byStatus {
			m[status] = string(role)
		}
		roles[string(t)+"s"] = m
	}

	return fileShape{
		StatusProgression: progressions{Projects: c.Projects, Features: c.Features, Tasks: c.Tasks},
		StatusValidation:  c.Validation,
		AutoCascade:       c.Cascade,
		StatusRoles:       roles,
		CompletionCleanup: c.Cleanup,
	}, nil
}

// AllowedStatuses derives the full status set for an entity type:
// the union of every flow's statuses, the emergency transitions, and
// the terminal statuses.
func (c *Config) AllowedStatuses(t model.EntityType) map[string]bool {
	p := c.Progression(t)
	allowed := make(map[string]bool)
	for _, flow := range p.Flows {
		for _, s := range flow {
			allowed[s] = true
		}
	}
	for _, s := range p.EmergencyTransitions {
		allowed[s] = true
	}
	for _, s := range p.TerminalStatuses {
		allowed[s] = true
	}
	return allowed
}

// IsTerminal reports whether status is terminal for the entity type.
func (c *Config) IsTerminal(t model.EntityType, status string) bool {
	status = model.NormalizeStatus(status)
	for _, s := range c.Progression(t).TerminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsEmergency reports whether status is an emergency target for the
// entity type.
func (c *Config) IsEmergency(t model.EntityType, status string) bool {
	status = model.NormalizeStatus(status)
	for _, s := range c.Progression(t).EmergencyTransitions {
		if s == status {
			return true
		}
	}
	return false
}

// ActiveFlow selects the flow for an entity given its tags: the first
// flow mapping whose tag set intersects the entity's tags wins, else
// the default flow. Mapping tags may be glob patterns. Returns the
// flow key, the status sequence, and the entity tags that matched.
func (c *Config) ActiveFlow(t model.EntityType, tags []string) (string, []string, []string) {
	p := c.Progression(t)
	entityTags := model.NormalizeTags(tags)

	for _, mapping := range p.FlowMappings {
		flow, ok := p.Flows[mapping.Flow]
		if !ok {
			continue
		}
		var matched []string
		for _, pattern := range mapping.Tags {
			for _, tag := range entityTags {
				if tagMatches(pattern, tag) {
					matched = append(matched, tag)
				}
			}
		}
		if len(matched) > 0 {
			return mapping.Flow, flow, matched
		}
	}
	return DefaultFlowKey, p.DefaultFlow, nil
}

// tagMatches compares a mapping tag pattern against an entity tag.
// Glob patterns use doublestar syntax; a malformed pattern falls back
// to literal comparison.
func tagMatches(pattern, tag string) bool {
	if !strings.ContainsAny(pattern, "*?[{") {
		return pattern == tag
	}
	ok, err := doublestar.Match(pattern, tag)
	if err != nil {
		return pattern == tag
	}
	return ok
}

// RoleFor resolves the role of a status for an entity type. Returns
// the empty role when the status is unmapped.
func (c *Config) RoleFor(t model.EntityType, status string) model.Role {
	byStatus, ok := c.Roles[t]
	if !ok {
		return ""
	}
	return byStatus[model.NormalizeStatus(status)]
}

// NextInFlow returns the status after current in the given flow, or
// empty when current is absent or last.
func NextInFlow(flow []string, current string) string {
	current = model.NormalizeStatus(current)
	for i, s := range flow {
		if s == current && i+1 < len(flow) {
			return flow[i+1]
		}
	}
	return ""
}

// IndexInFlow returns the position of status in flow, or -1.
func IndexInFlow(flow []string, status string) int {
	status = model.NormalizeStatus(status)
	for i, s := range flow {
		if s == status {
			return i
		}
	}
	return -1
}
