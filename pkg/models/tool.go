package models

import "encoding/json"

// AmbiguityError is the wire marker tool servers use to signal that an
// operation matched multiple rows and needs the user to pick one.
const AmbiguityError = "AMBIGUITY_DETECTED"

// ToolResult is the unified result contract between the core and tool
// servers: {success, data?, error?} plus an items array when the error is
// the ambiguity marker.
type ToolResult struct {
	Success bool            `json:"success"`
	Data    any             `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Items   []AmbiguousItem `json:"items,omitempty"`
}

// AmbiguousItem is one of the rows a tool could not choose between.
type AmbiguousItem struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// OutcomeKind distinguishes the three ways a tool call can land.
type OutcomeKind int

const (
	// OutcomeOK: the tool succeeded and Data carries its result.
	OutcomeOK OutcomeKind = iota
	// OutcomeAmbiguous: the tool matched multiple rows and wants the user
	// to disambiguate. Not a failure.
	OutcomeAmbiguous
	// OutcomeFailed: any other success=false result.
	OutcomeFailed
)

// Outcome classifies the result so callers match on a variant instead of
// comparing magic error strings.
func (r *ToolResult) Outcome() OutcomeKind {
	if r.Success {
		return OutcomeOK
	}
	if r.Error == AmbiguityError {
		return OutcomeAmbiguous
	}
	return OutcomeFailed
}

// DecodeToolResult parses a raw tool server reply.
func DecodeToolResult(raw []byte) (*ToolResult, error) {
	var res ToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
