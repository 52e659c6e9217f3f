package models

import "time"

// EventKind is the type tag of a progress stream event.
type EventKind string

const (
	EventConnected EventKind = "connected"
	EventProgress  EventKind = "progress"
	EventComplete  EventKind = "complete"
	EventError     EventKind = "error"
	EventHeartbeat EventKind = "heartbeat"
	EventClose     EventKind = "close"
)

// Terminal reports whether the kind ends the stream (a close follows it).
func (k EventKind) Terminal() bool {
	return k == EventComplete || k == EventError
}

// ProgressEvent is one entry on a session's progress stream.
type ProgressEvent struct {
	Kind      EventKind      `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewProgress builds a per-task progress event.
func NewProgress(taskID string, percent float64, message string) ProgressEvent {
	return ProgressEvent{
		Kind: EventProgress,
		Payload: map[string]any{
			"task_id": taskID,
			"percent": percent,
			"message": message,
		},
		Timestamp: time.Now(),
	}
}

// NewComplete builds the terminal success event carrying the formatted result.
func NewComplete(result any) ProgressEvent {
	return ProgressEvent{
		Kind:      EventComplete,
		Payload:   map[string]any{"result": result},
		Timestamp: time.Now(),
	}
}

// NewError builds the terminal failure event.
func NewError(message string) ProgressEvent {
	return ProgressEvent{
		Kind:      EventError,
		Payload:   map[string]any{"message": message},
		Timestamp: time.Now(),
	}
}

// NewHeartbeat builds a keep-alive event.
func NewHeartbeat(counter int) ProgressEvent {
	return ProgressEvent{
		Kind:      EventHeartbeat,
		Payload:   map[string]any{"counter": counter},
		Timestamp: time.Now(),
	}
}
