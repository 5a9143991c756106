// Package transitions implements the request_transition tool, the
// write path for status changes. It hands requests to the workflow
// engine, which validates the move, applies cascades, and reports
// newly unblocked tasks.
package transitions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	taskerrors "github.com/taskorchestrator/taskorchestrator/internal/errors"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/respond"
	"github.com/taskorchestrator/taskorchestrator/internal/workflow"
)

const maxBatchItems = 100

type transitionItem struct {
	ContainerID   string `json:"containerId"`
	ContainerType string `json:"containerType"`
	Trigger       string `json:"trigger"`
	Summary       string `json:"summary,omitempty"`
}

type params struct {
	transitionItem
	Transitions []transitionItem `json:"transitions,omitempty"`
}

// Request is the request_transition tool.
type Request struct {
	engine *workflow.Engine
	logger *slog.Logger
}

// NewRequest builds the tool around a workflow engine.
func NewRequest(engine *workflow.Engine, logger *slog.Logger) *Request {
	if logger == nil {
		logger = slog.Default()
	}
	return &Request{engine: engine, logger: logger}
}

func (t *Request) Name() string { return "request_transition" }

func (t *Request) Description() string {
	return "Move a container through its status workflow. Triggers are a target status name, 'next' for the following status in the active flow, or an emergency verb (cancel, block, hold, archive). Accepts a single transition or a batch; batches keep going past individual failures."
}

func (t *Request) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "containerId": {"type": "string", "description": "Container to transition (single mode)"},
    "containerType": {"type": "string", "enum": ["project", "feature", "task"]},
    "trigger": {"type": "string", "description": "Target status, 'next', or an emergency verb"},
    "summary": {"type": "string", "description": "Work summary recorded on the container before validation runs"},
    "transitions": {
      "type": "array",
      "maxItems": 100,
      "description": "Batch mode: independent transitions, applied in order",
      "items": {
        "type": "object",
        "properties": {
          "containerId": {"type": "string"},
          "containerType": {"type": "string", "enum": ["project", "feature", "task"]},
          "trigger": {"type": "string"},
          "summary": {"type": "string"}
        },
        "required": ["containerId", "containerType", "trigger"]
      }
    }
  }
}`)
}

func (t *Request) Execute(ctx context.Context, args json.RawMessage) (res *mcp.ToolsCallResult, err error) {
	defer respond.Recovered(t.logger, &res, &err)

	var p params
	if err := json.Unmarshal(args, &p); err != nil {
		return respond.BadParams(err), nil
	}

	if len(p.Transitions) > 0 {
		if p.ContainerID != "" || p.Trigger != "" {
			return respond.Invalid("Provide either a single transition or a transitions list, not both",
				"Top-level containerId/trigger and the transitions array are mutually exclusive"), nil
		}
		return t.batch(ctx, p.Transitions)
	}
	return t.single(ctx, p.transitionItem)
}

func buildRequest(item transitionItem) (workflow.TransitionRequest, *taskerrors.AppError) {
	if item.ContainerID == "" {
		return workflow.TransitionRequest{}, taskerrors.ErrValidation(
			"Container id is required", "Pass the id of the container to transition")
	}
	et := model.EntityType(strings.ToLower(strings.TrimSpace(item.ContainerType)))
	if !model.IsValidEntityType(et) {
		return workflow.TransitionRequest{}, taskerrors.ErrValidation(
			fmt.Sprintf("Unknown container type '%s'", item.ContainerType),
			"containerType must be one of project, feature, task")
	}
	if strings.TrimSpace(item.Trigger) == "" {
		return workflow.TransitionRequest{}, taskerrors.ErrValidation(
			"Trigger is required",
			"Pass a target status, 'next', or an emergency verb (cancel, block, hold, archive)")
	}
	return workflow.TransitionRequest{
		ContainerID:   item.ContainerID,
		ContainerType: et,
		Trigger:       item.Trigger,
		Summary:       item.Summary,
	}, nil
}

func (t *Request) single(ctx context.Context, item transitionItem) (*mcp.ToolsCallResult, error) {
	req, ae := buildRequest(item)
	if ae != nil {
		return respond.Failure(ae), nil
	}

	result, err := t.engine.ExecuteTransition(ctx, req)
	if err != nil {
		return respond.Failure(err), nil
	}
	return respond.Success(result.Message, map[string]any{"transition": result}), nil
}

func (t *Request) batch(ctx context.Context, items []transitionItem) (*mcp.ToolsCallResult, error) {
	if len(items) > maxBatchItems {
		return respond.Invalid(
			fmt.Sprintf("transitions accepts at most %d items (got %d)", maxBatchItems, len(items)),
			"Split larger batches into multiple calls"), nil
	}

	reqs := make([]workflow.TransitionRequest, 0, len(items))
	for i, item := range items {
		req, ae := buildRequest(item)
		if ae != nil {
			return respond.Failure(ae.WithData("index", i)), nil
		}
		reqs = append(reqs, req)
	}

	batch := t.engine.ExecuteBatch(ctx, reqs)
	if batch.Summary.Succeeded == 0 {
		ae := taskerrors.ErrOperationFailed(
			fmt.Sprintf("all %d transitions failed", batch.Summary.Total),
			"Every transition in the batch was rejected").
			WithData("results", batch.Results)
		return respond.Failure(ae), nil
	}

	msg := fmt.Sprintf("%d of %d transitions applied", batch.Summary.Succeeded, batch.Summary.Total)
	data := map[string]any{
		"results": batch.Results,
		"summary": batch.Summary,
	}
	return respond.Success(msg, data), nil
}
