package workflow

import (
	"context"
	"time"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// recordRoleTransition appends a row to the role transition log when a
// status change also crossed a role boundary. A row is written only
// when both statuses resolve to a role and the roles differ; log
// failures are reported but never fail the transition that caused them.
// The resolved roles are returned either way so callers can include
// them in their response.
func (e *Engine) recordRoleTransition(ctx context.Context, c *model.Container, target, trigger, summary string, at time.Time) (from, to model.Role) {
	cfg := e.Config()
	from = cfg.RoleFor(c.Type, c.Status)
	to = cfg.RoleFor(c.Type, target)
	if from == "" || to == "" || from == to {
		return from, to
	}

	rt := &model.RoleTransition{
		EntityID:       c.ID,
		EntityType:     c.Type,
		FromRole:       string(from),
		ToRole:         string(to),
		FromStatus:     model.NormalizeStatus(c.Status),
		ToStatus:       model.NormalizeStatus(target),
		TransitionedAt: at,
		Trigger:        trigger,
		Summary:        summary,
	}
	if err := e.store.AppendRoleTransition(ctx, rt); err != nil {
		e.logger.Warn("role transition log failed",
			"entity", c.ID, "type", c.Type, "from", from, "to", to, "error", err)
	}
	return from, to
}
