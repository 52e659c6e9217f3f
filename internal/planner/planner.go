// Package planner converts a rendered prompt into a validated task graph.
//
// The LLM's reply is held to a strict contract: a single JSON object with a
// tasks array, schema-checked before decoding, then semantically validated
// against the tool registry and the dependency rules. A reply that fails
// either check earns exactly one corrective retry.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/kondate/internal/agent"
	"github.com/haasonsaas/kondate/internal/observability"
	"github.com/haasonsaas/kondate/internal/providers"
	"github.com/haasonsaas/kondate/internal/tools"
	"github.com/haasonsaas/kondate/pkg/models"
)

// Metrics is the planner's metrics hook.
type Metrics interface {
	PlanRejection(reason string)
	LLMRequest(model string, seconds float64)
}

var (
	// ErrMalformedPlan means the reply was not parseable as the plan shape,
	// even after the corrective retry.
	ErrMalformedPlan = errors.New("planner: malformed plan")

	// ErrPlanInvalid means the plan parsed but violates a semantic rule:
	// unknown tool, bad dependency, or missing required parameter.
	ErrPlanInvalid = errors.New("planner: invalid plan")
)

// planSchema is the wire contract of a planning reply.
const planSchema = `{
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "description", "service", "method", "parameters"],
        "properties": {
          "id": {"type": "string", "pattern": "^task[0-9]+$"},
          "description": {"type": "string"},
          "service": {"type": "string", "minLength": 1},
          "method": {"type": "string", "minLength": 1},
          "parameters": {"type": "object"},
          "dependencies": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

var (
	planSchemaOnce     sync.Once
	planSchemaCompiled *jsonschema.Schema
	planSchemaErr      error
)

func compiledPlanSchema() (*jsonschema.Schema, error) {
	planSchemaOnce.Do(func() {
		planSchemaCompiled, planSchemaErr = jsonschema.CompileString("plan", planSchema)
	})
	return planSchemaCompiled, planSchemaErr
}

// Planner plans one request at a time.
type Planner struct {
	completer providers.ChatCompleter
	registry  *tools.Registry
	maxTokens int
	metrics   Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
}

// New creates a planner bound to a completer and the tool registry. Metrics
// and tracer may be nil.
func New(completer providers.ChatCompleter, registry *tools.Registry, metrics Metrics, tracer *observability.Tracer, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		completer: completer,
		registry:  registry,
		maxTokens: 4096,
		metrics:   metrics,
		tracer:    tracer,
		logger:    logger,
	}
}

// Plan sends the prompt, parses the reply into a task graph, and validates
// it. A malformed or invalid reply triggers one corrective round trip with
// the violation appended to the prompt; a second failure is final.
func (p *Planner) Plan(ctx context.Context, system, prompt string) (*models.TaskGraph, error) {
	graph, planErr := p.planOnce(ctx, system, prompt)
	if planErr == nil {
		return graph, nil
	}
	if !errors.Is(planErr, ErrMalformedPlan) && !errors.Is(planErr, ErrPlanInvalid) {
		return nil, planErr
	}
	p.countRejection(planErr)

	p.logger.Warn("plan rejected, retrying once", "error", planErr)

	corrective := prompt + "\n\nYour previous reply was rejected: " + planErr.Error() +
		"\nReply again with only the corrected JSON object."
	graph, retryErr := p.planOnce(ctx, system, corrective)
	if retryErr != nil {
		p.countRejection(retryErr)
		return nil, retryErr
	}
	return graph, nil
}

// countRejection records a validation rejection by reason.
func (p *Planner) countRejection(err error) {
	if p.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, ErrPlanInvalid):
		p.metrics.PlanRejection("invalid")
	case errors.Is(err, ErrMalformedPlan):
		p.metrics.PlanRejection("malformed")
	}
}

// planOnce is a single prompt→graph round trip.
func (p *Planner) planOnce(ctx context.Context, system, prompt string) (*models.TaskGraph, error) {
	llmCtx, span := p.tracer.LLMSpan(ctx, p.completer.Model())
	start := time.Now()
	resp, err := p.completer.Complete(llmCtx, &providers.CompletionRequest{
		System:    system,
		Prompt:    prompt,
		MaxTokens: p.maxTokens,
	})
	observability.EndSpan(span, err)
	if p.metrics != nil {
		p.metrics.LLMRequest(p.completer.Model(), time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("planner: completion: %w", err)
	}

	tasks, err := p.parse(resp.Text)
	if err != nil {
		return nil, err
	}
	if err := p.validate(tasks); err != nil {
		return nil, err
	}

	graph, err := models.NewTaskGraph(tasks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanInvalid, err)
	}

	p.logger.Debug("plan accepted",
		"tasks", len(tasks),
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return graph, nil
}

// parse extracts the JSON object from the reply, schema-checks it, and
// decodes the tasks.
func (p *Planner) parse(reply string) ([]*models.Task, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return nil, fmt.Errorf("%w: reply contains no JSON object", ErrMalformedPlan)
	}

	schema, err := compiledPlanSchema()
	if err != nil {
		return nil, fmt.Errorf("planner: schema: %w", err)
	}

	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	var plan struct {
		Tasks []*models.Task `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if plan.Tasks == nil {
		plan.Tasks = []*models.Task{}
	}
	return plan.Tasks, nil
}

// validate enforces the semantic rules the schema cannot express: known
// tools, dependencies pointing strictly at earlier tasks, parameter
// references covered by declared dependencies, and required parameters
// present.
func (p *Planner) validate(tasks []*models.Task) error {
	earlier := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		if !p.registry.Has(task.ToolName()) {
			return fmt.Errorf("%w: task %s calls unknown tool %q", ErrPlanInvalid, task.ID, task.ToolName())
		}

		for _, dep := range task.Dependencies {
			if !earlier[dep] {
				return fmt.Errorf("%w: task %s depends on %q which does not appear earlier", ErrPlanInvalid, task.ID, dep)
			}
		}

		declared := make(map[string]bool, len(task.Dependencies))
		for _, dep := range task.Dependencies {
			declared[dep] = true
		}
		for name, raw := range task.Parameters {
			for _, refID := range agent.ParseRef(raw).TaskIDs() {
				if !declared[refID] {
					return fmt.Errorf("%w: task %s parameter %q references %s without declaring the dependency", ErrPlanInvalid, task.ID, name, refID)
				}
			}
		}

		// A reference counts as present here; its value is checked at
		// resolution time.
		desc, _ := p.registry.Get(task.ToolName())
		if missing := desc.MissingRequired(task.Parameters); len(missing) > 0 {
			return fmt.Errorf("%w: task %s is missing required parameters: %s", ErrPlanInvalid, task.ID, strings.Join(missing, ", "))
		}

		earlier[task.ID] = true
	}
	return nil
}

// extractJSON returns the outermost JSON object of the reply, tolerating
// markdown code fences and prose around it.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}
