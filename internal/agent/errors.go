package agent

import (
	"errors"
	"fmt"
)

// ErrBusySession is returned when a new graph is started while another is
// executing and not suspended for confirmation.
var ErrBusySession = errors.New("session already has an active graph")

// ResolveError reports a parameter reference that could not be resolved.
// The task fails without attempting the tool call.
type ResolveError struct {
	TaskID string
	Param  string
	Reason string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("task %s: parameter %q: %s", e.TaskID, e.Param, e.Reason)
}

// ToolErrorKind distinguishes tool failure modes.
type ToolErrorKind string

const (
	ToolErrorFailed  ToolErrorKind = "failed"
	ToolErrorTimeout ToolErrorKind = "timeout"
)

// ToolError records a tool-level failure on a task.
type ToolError struct {
	TaskID string
	Tool   string
	Kind   ToolErrorKind
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("task %s: tool %s %s: %v", e.TaskID, e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }
