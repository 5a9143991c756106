// Package blocked implements the get_blocked_tasks tool: every task
// waiting on an unsatisfied blocking dependency, with the blockers
// spelled out.
package blocked

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/respond"
	"github.com/taskorchestrator/taskorchestrator/internal/workflow"
)

// List is the get_blocked_tasks tool.
type List struct {
	engine *workflow.Engine
	logger *slog.Logger
}

// NewList builds the tool around a workflow engine.
func NewList(engine *workflow.Engine, logger *slog.Logger) *List {
	if logger == nil {
		logger = slog.Default()
	}
	return &List{engine: engine, logger: logger}
}

func (t *List) Name() string { return "get_blocked_tasks" }

func (t *List) Description() string {
	return "List every non-terminal task that still has an unsatisfied blocking dependency, with each blocker and the role it must reach."
}

func (t *List) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *List) Execute(ctx context.Context, args json.RawMessage) (res *mcp.ToolsCallResult, err error) {
	defer respond.Recovered(t.logger, &res, &err)

	blocked, err := t.engine.BlockedTasks(ctx)
	if err != nil {
		return respond.Failure(err), nil
	}

	if blocked == nil {
		blocked = []workflow.BlockedTaskInfo{}
	}
	data := map[string]any{
		"blockedTasks": blocked,
		"count":        len(blocked),
	}
	if len(blocked) == 0 {
		return respond.Success("No tasks are blocked", data), nil
	}
	return respond.Success(fmt.Sprintf("%d task(s) blocked", len(blocked)), data), nil
}
