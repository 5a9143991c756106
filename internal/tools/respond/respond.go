// Package respond builds the envelope every orchestrator tool returns:
// {success, message, data} on success, {success:false, message, error}
// on failure, rendered as a JSON text block in the MCP result.
package respond

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	taskerrors "github.com/taskorchestrator/taskorchestrator/internal/errors"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
)

// Envelope is the uniform tool response shape.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the structured failure half of the envelope.
type ErrorBody struct {
	Code           taskerrors.Code `json:"code"`
	Details        string          `json:"details,omitempty"`
	AdditionalData map[string]any  `json:"additionalData,omitempty"`
}

// Success wraps data in a success envelope.
func Success(message string, data any) *mcp.ToolsCallResult {
	res, err := mcp.JSONResult(Envelope{Success: true, Message: message, Data: data})
	if err != nil {
		return Failure(taskerrors.Wrap(err, "failed to encode response"))
	}
	return res
}

// Failure renders err as a failure envelope flagged IsError. Anything
// that is not an AppError is treated as INTERNAL_ERROR.
func Failure(err error) *mcp.ToolsCallResult {
	ae := taskerrors.AsAppError(err)
	if ae == nil {
		ae = taskerrors.ErrInternal("unexpected error").WithCause(err)
	}

	env := Envelope{
		Message: ae.What,
		Error: &ErrorBody{
			Code:           ae.Code,
			Details:        ae.Details(),
			AdditionalData: ae.AdditionalData,
		},
	}
	res, mErr := mcp.JSONResult(env)
	if mErr != nil {
		return mcp.ErrorResult(ae.Error())
	}
	res.IsError = true
	return res
}

// Invalid is shorthand for a VALIDATION_ERROR failure.
func Invalid(what, why string) *mcp.ToolsCallResult {
	return Failure(taskerrors.ErrValidation(what, why))
}

// BadParams reports an unparseable argument object.
func BadParams(err error) *mcp.ToolsCallResult {
	return Invalid("Invalid tool parameters", err.Error())
}

// Recovered converts a panic inside a tool into an INTERNAL_ERROR
// envelope. Defer at the top of Execute with named results:
//
//	defer respond.Recovered(logger, &res, &err)
func Recovered(logger *slog.Logger, res **mcp.ToolsCallResult, err *error) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("tool panicked",
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()))
	*res = Failure(taskerrors.ErrInternal(fmt.Sprintf("panic: %v", r)))
	*err = nil
}
