package agent

import (
	"fmt"
	"strconv"

	"github.com/haasonsaas/kondate/internal/tools"
	"github.com/haasonsaas/kondate/pkg/models"
)

// Resolver expands a task's parameter map into concrete call arguments,
// resolving references against earlier results and the live session.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve produces the concrete parameters for a task. Results holds the
// tool results of every completed dependency keyed by task id. Resolution
// failures fail the task before any tool call is attempted.
func (r *Resolver) Resolve(task *models.Task, desc *tools.Descriptor, results map[string]*models.ToolResult, session *models.Session) (map[string]any, error) {
	resolved := make(map[string]any, len(task.Parameters))
	for name, raw := range task.Parameters {
		ref := ParseRef(raw)
		value, err := r.resolveRef(ref, results, session)
		if err != nil {
			return nil, &ResolveError{TaskID: task.ID, Param: name, Reason: err.Error()}
		}
		if desc != nil {
			if spec, ok := desc.Params[name]; ok {
				value = coerce(value, spec.Type)
			}
		}
		resolved[name] = value
	}
	return resolved, nil
}

func (r *Resolver) resolveRef(ref Ref, results map[string]*models.ToolResult, session *models.Session) (any, error) {
	switch ref.Kind {
	case RefLiteral:
		return ref.Literal, nil

	case RefSession:
		if session == nil {
			return nil, fmt.Errorf("no session for session.context.%s", ref.SessionKey)
		}
		value, ok := session.Context[ref.SessionKey]
		if !ok {
			return nil, fmt.Errorf("session.context.%s is not set", ref.SessionKey)
		}
		return value, nil

	case RefTask:
		result, ok := results[ref.TaskID]
		if !ok {
			return nil, fmt.Errorf("result of %s is not available", ref.TaskID)
		}
		return walkResult(ref.TaskID, result, ref.Path)

	case RefUnion:
		left, err := r.resolveRef(*ref.Left, results, session)
		if err != nil {
			return nil, err
		}
		right, err := r.resolveRef(*ref.Right, results, session)
		if err != nil {
			return nil, err
		}
		return concatDedup(left, right)
	}
	return nil, fmt.Errorf("unsupported reference")
}

// walkResult follows dotted path segments into a tool result, supporting
// object keys and sequence indices. An empty path yields the whole result
// as an object.
func walkResult(taskID string, result *models.ToolResult, path []string) (any, error) {
	current := resultAsMap(result)
	var value any = current

	for i, segment := range path {
		// Documented shortcut: "...data.candidates" on a candidates list
		// of objects extracts the title sequence.
		if segment == "candidates" && i == len(path)-1 {
			if titles, ok := candidateTitles(value); ok {
				return titles, nil
			}
		}

		switch host := value.(type) {
		case map[string]any:
			next, ok := host[segment]
			if !ok {
				return nil, fmt.Errorf("%s.result: no field %q", taskID, segment)
			}
			value = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil {
				return nil, fmt.Errorf("%s.result: %q is not a sequence index", taskID, segment)
			}
			if idx < 0 || idx >= len(host) {
				return nil, fmt.Errorf("%s.result: index %d out of range", taskID, idx)
			}
			value = host[idx]
		default:
			return nil, fmt.Errorf("%s.result: cannot descend into %T with %q", taskID, value, segment)
		}
	}
	return value, nil
}

// resultAsMap exposes a tool result as the object shape references walk.
func resultAsMap(result *models.ToolResult) map[string]any {
	m := map[string]any{"success": result.Success}
	if result.Data != nil {
		m["data"] = result.Data
	}
	if result.Error != "" {
		m["error"] = result.Error
	}
	return m
}

// candidateTitles extracts titles when the host holds a "candidates"
// sequence of objects carrying a title.
func candidateTitles(host any) ([]any, bool) {
	m, ok := host.(map[string]any)
	if !ok {
		return nil, false
	}
	seq, ok := m["candidates"].([]any)
	if !ok {
		return nil, false
	}
	titles := make([]any, 0, len(seq))
	for _, item := range seq {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		title, ok := obj["title"]
		if !ok {
			return nil, false
		}
		titles = append(titles, title)
	}
	return titles, true
}

// concatDedup joins two sequences, left first, removing duplicates while
// preserving first-occurrence order.
func concatDedup(left, right any) (any, error) {
	ls, ok := asSequence(left)
	if !ok {
		return nil, fmt.Errorf("left side of + is not a sequence")
	}
	rs, ok := asSequence(right)
	if !ok {
		return nil, fmt.Errorf("right side of + is not a sequence")
	}
	seen := make(map[string]bool, len(ls)+len(rs))
	out := make([]any, 0, len(ls)+len(rs))
	for _, item := range append(ls, rs...) {
		key := fmt.Sprint(item)
		if !seen[key] {
			seen[key] = true
			out = append(out, item)
		}
	}
	return out, nil
}

func asSequence(v any) ([]any, bool) {
	switch seq := v.(type) {
	case []any:
		return seq, true
	case []string:
		out := make([]any, len(seq))
		for i, s := range seq {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// coerce repairs obvious type mismatches (a number in string form) without
// hiding semantic errors.
func coerce(value any, wantType string) any {
	if wantType != "number" {
		return value
	}
	str, ok := value.(string)
	if !ok {
		return value
	}
	if n, err := strconv.ParseFloat(str, 64); err == nil {
		return n
	}
	return value
}
