// Package agent runs planned task graphs: it resolves parameter references
// against earlier results and session state, executes tasks with bounded
// parallelism honoring the dependency DAG, and suspends the graph when a
// tool reports ambiguity.
package agent

import (
	"strings"
)

// RefKind tags the parameter reference sum.
type RefKind int

const (
	// RefLiteral passes the value through unchanged.
	RefLiteral RefKind = iota
	// RefTask resolves "taskK.result[.path]" against an earlier result.
	RefTask
	// RefSession resolves "session.context.X" against the live session.
	RefSession
	// RefUnion concatenates two task references, left first, deduplicated.
	RefUnion
)

// Ref is a parsed parameter value. Reference strings are parsed once and
// consumed structurally; everything else stays a literal.
type Ref struct {
	Kind    RefKind
	Literal any

	// RefTask fields.
	TaskID string
	Path   []string

	// RefSession field.
	SessionKey string

	// RefUnion fields.
	Left  *Ref
	Right *Ref
}

// ParseRef classifies a raw parameter value. Only strings beginning with
// "task" or "session." can be references; any other value is a literal.
func ParseRef(value any) Ref {
	str, ok := value.(string)
	if !ok {
		return Ref{Kind: RefLiteral, Literal: value}
	}

	if left, right, found := splitUnion(str); found {
		l := ParseRef(left)
		r := ParseRef(right)
		if l.Kind == RefTask && r.Kind == RefTask {
			return Ref{Kind: RefUnion, Left: &l, Right: &r}
		}
		return Ref{Kind: RefLiteral, Literal: value}
	}

	if strings.HasPrefix(str, "session.context.") {
		key := strings.TrimPrefix(str, "session.context.")
		if key != "" {
			return Ref{Kind: RefSession, SessionKey: key}
		}
	}

	if id, path, ok := parseTaskRef(str); ok {
		return Ref{Kind: RefTask, TaskID: id, Path: path}
	}

	return Ref{Kind: RefLiteral, Literal: value}
}

// TaskIDs returns every task id the reference depends on.
func (r Ref) TaskIDs() []string {
	switch r.Kind {
	case RefTask:
		return []string{r.TaskID}
	case RefUnion:
		return append(r.Left.TaskIDs(), r.Right.TaskIDs()...)
	}
	return nil
}

// splitUnion detects exactly the "a + b" concatenation form.
func splitUnion(s string) (left, right string, found bool) {
	parts := strings.Split(s, " + ")
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// parseTaskRef parses "taskK.result" or "taskK.result.A.B" into the task id
// and the dotted path below the result.
func parseTaskRef(s string) (id string, path []string, ok bool) {
	if !strings.HasPrefix(s, "task") {
		return "", nil, false
	}
	segments := strings.Split(s, ".")
	if len(segments) < 2 || segments[1] != "result" {
		return "", nil, false
	}
	id = segments[0]
	if len(id) <= len("task") {
		return "", nil, false
	}
	for _, c := range id[len("task"):] {
		if c < '0' || c > '9' {
			return "", nil, false
		}
	}
	return id, segments[2:], true
}
