// Package tools holds the static catalog of callable tools and the dispatch
// path to the backend servers that own them. The registry knows which server
// owns each tool and what parameters it requires; it does not enforce
// parameter types (the resolver does that at call time).
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/kondate/pkg/models"
)

// ErrUnknownTool is returned when the registry is asked for a missing name.
var ErrUnknownTool = fmt.Errorf("unknown tool")

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Required bool
	Type     string // string | number | boolean | object | array
}

// Descriptor is the static description of one callable tool.
type Descriptor struct {
	// Name is the registry key, "service.method".
	Name string
	// Server identifies the backend server group owning the tool.
	Server string
	// Params maps parameter name to its spec.
	Params map[string]ParamSpec
	// MayReportAmbiguity marks tools that can return AMBIGUITY_DETECTED.
	MayReportAmbiguity bool
	// SideEffecting marks mutating operations. Dispatch of these is
	// at-most-once; only reads may be treated as idempotent.
	SideEffecting bool
}

// Transport carries a tool call to the server that owns it.
type Transport interface {
	Call(ctx context.Context, server, tool string, params map[string]any, authToken string) (*models.ToolResult, error)
}

// Registry is the read-only tool table plus the dispatch transport.
// Safe for concurrent use; the table never changes after construction.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*Descriptor
	transport Transport
}

// NewRegistry builds a registry over the given descriptors.
func NewRegistry(transport Transport, descriptors []*Descriptor) *Registry {
	r := &Registry{
		tools:     make(map[string]*Descriptor, len(descriptors)),
		transport: transport,
	}
	for _, d := range descriptors {
		r.tools[d.Name] = d
	}
	return r
}

// Get returns the descriptor for a tool name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Has reports whether the tool name exists in the catalog.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all tool names owned by the given server, or every name when
// server is empty. Used by the prompt builder to describe the catalog.
func (r *Registry) Names(server string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, d := range r.tools {
		if server == "" || d.Server == server {
			names = append(names, name)
		}
	}
	return names
}

// Dispatch forwards a tool call to the owning server. The auth token is
// passed through verbatim.
func (r *Registry) Dispatch(ctx context.Context, name string, params map[string]any, authToken string) (*models.ToolResult, error) {
	d, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return r.transport.Call(ctx, d.Server, name, params, authToken)
}

// MissingRequired returns the required parameter names absent from params.
// Used by the planner during plan validation.
func (d *Descriptor) MissingRequired(params map[string]any) []string {
	var missing []string
	for name, spec := range d.Params {
		if !spec.Required {
			continue
		}
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
