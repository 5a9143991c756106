package workflow

import (
	"context"
	"fmt"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
	taskerrors "github.com/taskorchestrator/taskorchestrator/internal/errors"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// NextStatusState classifies a next-status recommendation.
type NextStatusState string

const (
	NextReady    NextStatusState = "ready"
	NextBlocked  NextStatusState = "blocked"
	NextTerminal NextStatusState = "terminal"
)

// NextStatus is the recommendation returned by GetNextStatus. Ready
// carries the recommended status and role movement; Blocked lists what
// stands in the way; Terminal means the entity is done.
type NextStatus struct {
	State             NextStatusState  `json:"state"`
	ContainerID       string           `json:"containerId"`
	ContainerType     model.EntityType `json:"containerType"`
	CurrentStatus     string           `json:"currentStatus"`
	RecommendedStatus string           `json:"recommendedStatus,omitempty"`
	TerminalStatus    string           `json:"terminalStatus,omitempty"`
	ActiveFlow        string           `json:"activeFlow"`
	FlowSequence      []string         `json:"flowSequence,omitempty"`
	CurrentPosition   int              `json:"currentPosition"`
	MatchedTags       []string         `json:"matchedTags,omitempty"`
	Blockers          []string         `json:"blockers,omitempty"`
	Reason            string           `json:"reason"`
	CurrentRole       model.Role       `json:"currentRole,omitempty"`
	NextRole          model.Role       `json:"nextRole,omitempty"`
}

// GetNextStatus recommends the next status for an entity along its
// active flow. currentStatus and tags override the stored values when
// supplied, so callers can ask hypothetical questions.
func (e *Engine) GetNextStatus(ctx context.Context, id string, t model.EntityType, currentStatus string, tags []string) (*NextStatus, error) {
	c, err := e.store.GetContainer(ctx, t, id)
	if err != nil {
		return nil, taskerrors.ErrDatabase("fetch container", err)
	}
	if c == nil {
		return nil, taskerrors.ErrContainerNotFound(string(t), id)
	}
	return e.nextStatusFor(ctx, c, currentStatus, tags), nil
}

// nextStatusFor computes the recommendation for a loaded container,
// honouring in-memory field changes such as a summary supplied with a
// transition request.
func (e *Engine) nextStatusFor(ctx context.Context, c *model.Container, currentStatus string, tags []string) *NextStatus {
	cfg := e.Config()

	current := model.NormalizeStatus(c.Status)
	if currentStatus != "" {
		current = model.NormalizeStatus(currentStatus)
	}
	if tags == nil {
		tags = c.Tags
	}

	flowKey, flow, matched := cfg.ActiveFlow(c.Type, tags)
	out := &NextStatus{
		ContainerID:     c.ID,
		ContainerType:   c.Type,
		CurrentStatus:   current,
		ActiveFlow:      flowKey,
		FlowSequence:    flow,
		CurrentPosition: config.IndexInFlow(flow, current),
		MatchedTags:     matched,
	}

	if cfg.IsTerminal(c.Type, current) {
		out.State = NextTerminal
		out.TerminalStatus = current
		out.Reason = fmt.Sprintf("'%s' is a terminal status; nothing further to do", current)
		return out
	}
	if len(flow) == 0 {
		out.State = NextTerminal
		out.TerminalStatus = current
		out.Reason = fmt.Sprintf("No flow is configured for %ss", c.Type)
		return out
	}

	// Statuses outside the active flow (emergency holds, or a flow
	// switch after a tag change) re-enter at the start.
	if out.CurrentPosition < 0 {
		out.State = NextReady
		out.RecommendedStatus = flow[0]
		out.Reason = fmt.Sprintf("Status '%s' is outside the %s flow; re-enter at '%s'", current, flowKey, flow[0])
		out.CurrentRole = cfg.RoleFor(c.Type, current)
		out.NextRole = cfg.RoleFor(c.Type, flow[0])
		return out
	}

	next := config.NextInFlow(flow, current)
	if next == "" {
		out.State = NextTerminal
		out.TerminalStatus = current
		out.Reason = fmt.Sprintf("'%s' is the end of the %s flow", current, flowKey)
		return out
	}

	if cfg.Validation.ValidatePrerequisites {
		if prereq := e.prerequisitesFor(ctx, c, next); prereq.State == StateInvalid {
			out.State = NextBlocked
			out.Blockers = prereq.Suggestions
			if len(out.Blockers) == 0 {
				out.Blockers = []string{prereq.Reason}
			}
			out.Reason = prereq.Reason
			return out
		}
	}

	out.State = NextReady
	out.RecommendedStatus = next
	out.Reason = fmt.Sprintf("Ready to advance from '%s' to '%s'", current, next)
	out.CurrentRole = cfg.RoleFor(c.Type, current)
	out.NextRole = cfg.RoleFor(c.Type, next)
	return out
}
