// Package nextstatus implements the get_next_status tool, a read-only
// recommendation: where an entity sits in its active flow and what the
// next move is.
package nextstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/respond"
	"github.com/taskorchestrator/taskorchestrator/internal/workflow"
)

type params struct {
	ContainerID   string `json:"containerId"`
	ContainerType string `json:"containerType"`
	CurrentStatus string `json:"currentStatus,omitempty"`
	Tags          string `json:"tags,omitempty"`
}

// Next is the get_next_status tool.
type Next struct {
	engine *workflow.Engine
	logger *slog.Logger
}

// NewNext builds the tool around a workflow engine.
func NewNext(engine *workflow.Engine, logger *slog.Logger) *Next {
	if logger == nil {
		logger = slog.Default()
	}
	return &Next{engine: engine, logger: logger}
}

func (t *Next) Name() string { return "get_next_status" }

func (t *Next) Description() string {
	return "Recommend the next status for a container along its active flow. Reports ready (with the recommended status and role movement), blocked (with the blockers), or terminal. currentStatus and tags override the stored values for what-if questions."
}

func (t *Next) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "containerId": {"type": "string", "description": "Container to inspect"},
    "containerType": {"type": "string", "enum": ["project", "feature", "task"]},
    "currentStatus": {"type": "string", "description": "Ask from this status instead of the stored one"},
    "tags": {"type": "string", "description": "Comma-separated tags to resolve the flow with, overriding the stored tags"}
  },
  "required": ["containerId", "containerType"]
}`)
}

func (t *Next) Execute(ctx context.Context, args json.RawMessage) (res *mcp.ToolsCallResult, err error) {
	defer respond.Recovered(t.logger, &res, &err)

	var p params
	if err := json.Unmarshal(args, &p); err != nil {
		return respond.BadParams(err), nil
	}

	if p.ContainerID == "" {
		return respond.Invalid("Container id is required", "Pass the id of the container to inspect"), nil
	}
	et := model.EntityType(strings.ToLower(strings.TrimSpace(p.ContainerType)))
	if !model.IsValidEntityType(et) {
		return respond.Invalid(
			fmt.Sprintf("Unknown container type '%s'", p.ContainerType),
			"containerType must be one of project, feature, task"), nil
	}

	// A nil tag slice keeps the stored tags; an explicit list overrides.
	var tags []string
	if strings.TrimSpace(p.Tags) != "" {
		tags = model.ParseTags(p.Tags)
	}

	ns, err := t.engine.GetNextStatus(ctx, p.ContainerID, et, p.CurrentStatus, tags)
	if err != nil {
		return respond.Failure(err), nil
	}
	return respond.Success(ns.Reason, ns), nil
}
