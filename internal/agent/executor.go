package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/kondate/internal/observability"
	"github.com/haasonsaas/kondate/internal/progress"
	"github.com/haasonsaas/kondate/internal/tools"
	"github.com/haasonsaas/kondate/pkg/models"
)

// ExecutorConfig bounds graph execution.
type ExecutorConfig struct {
	// MaxConcurrency limits simultaneous tool calls per graph.
	// Default: 4.
	MaxConcurrency int

	// CallTimeout is the wall-clock budget of one tool call.
	// Default: 120s.
	CallTimeout time.Duration
}

// DefaultExecutorConfig returns the default execution limits.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency: 4,
		CallTimeout:    120 * time.Second,
	}
}

// Metrics is the executor's hook into the metrics registry. All methods
// must be safe on a nil receiver implementation.
type Metrics interface {
	GraphStarted()
	TaskCompleted(tool string, err bool)
	ToolTimeout()
	AmbiguitySuspended()
}

// Executor runs one task graph per session: dependency-ordered, bounded
// parallelism, fail-stop on errors, suspension on ambiguity.
type Executor struct {
	registry *tools.Registry
	resolver *Resolver
	detector *Detector
	hub      *progress.Hub
	config   *ExecutorConfig
	metrics  Metrics
	tracer   *observability.Tracer
	logger   *slog.Logger
}

// NewExecutor creates an executor. If config is nil, defaults are used.
// Metrics and tracer may be nil.
func NewExecutor(registry *tools.Registry, hub *progress.Hub, config *ExecutorConfig, metrics Metrics, tracer *observability.Tracer, logger *slog.Logger) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		resolver: NewResolver(),
		detector: NewDetector(),
		hub:      hub,
		config:   config,
		metrics:  metrics,
		tracer:   tracer,
		logger:   logger,
	}
}

// RunOptions carries the per-run context the executor needs.
type RunOptions struct {
	SessionID       string
	AuthToken       string
	OriginalRequest string
	Session         *models.Session

	// Completed pre-populates results when resuming a suspended graph.
	Completed map[string]*models.ToolResult
}

// RunResult is the outcome of one graph execution.
type RunResult struct {
	// Results holds the tool result of every succeeded task.
	Results map[string]*models.ToolResult

	// Suspended is non-nil when a tool reported ambiguity and the graph
	// was halted awaiting user input.
	Suspended *models.Confirmation

	// Failed is the task whose non-ambiguity failure stopped the graph.
	Failed *models.Task
}

// Run executes the graph to completion, suspension, failure, or
// cancellation. Events stream to the session's progress channel; the
// terminal event is published by the caller once the response is formatted,
// except for failures which terminate the stream here.
func (e *Executor) Run(ctx context.Context, graph *models.TaskGraph, opts RunOptions) (*RunResult, error) {
	if e.metrics != nil {
		e.metrics.GraphStarted()
	}
	ctx, graphSpan := e.tracer.GraphSpan(ctx, opts.SessionID, graph.Len())
	defer graphSpan.End()

	run := &RunResult{Results: make(map[string]*models.ToolResult)}
	for id, res := range opts.Completed {
		run.Results[id] = res
	}

	total := graph.Len()
	completed := len(run.Results)
	sem := make(chan struct{}, e.config.MaxConcurrency)

	var mu sync.Mutex
	var suspended *models.Confirmation
	var failed *models.Task

	for {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}

		ready := graph.Ready()
		if len(ready) == 0 {
			break
		}

		// Dependencies of every ready task finished in earlier rounds, so a
		// snapshot gives each goroutine a race-free view of the results.
		snapshot := make(map[string]*models.ToolResult, len(run.Results))
		for id, res := range run.Results {
			snapshot[id] = res
		}

		var wg sync.WaitGroup
		for _, task := range ready {
			mu.Lock()
			stop := suspended != nil || failed != nil
			mu.Unlock()
			if stop {
				break
			}

			task.State = models.TaskRunning
			wg.Add(1)
			go func(task *models.Task) {
				defer wg.Done()

				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					task.State = models.TaskPending
					return
				}

				mu.Lock()
				startPct := percent(completed, total)
				mu.Unlock()
				e.publish(ctx, opts.SessionID, models.NewProgress(
					task.ID,
					startPct,
					"starting "+task.Description,
				))

				taskCtx, span := e.tracer.ToolSpan(ctx, task.ToolName())
				result, err := e.runTask(taskCtx, task, snapshot, opts)
				observability.EndSpan(span, err)

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					task.State = models.TaskFailed
					task.Err = err
					if failed == nil {
						failed = task
					}
					if e.metrics != nil {
						e.metrics.TaskCompleted(task.ToolName(), true)
					}
					return
				}

				task.State = models.TaskSucceeded
				task.Result = result
				completed++
				if e.metrics != nil {
					e.metrics.TaskCompleted(task.ToolName(), false)
				}

				if conf := e.detector.Detect(task, result, graph, run.Results, opts.OriginalRequest); conf != nil {
					if suspended == nil {
						suspended = conf
					}
					return
				}

				run.Results[task.ID] = result
				e.publish(ctx, opts.SessionID, models.NewProgress(
					task.ID,
					percent(completed, total),
					"finished "+task.Description,
				))
			}(task)
		}
		wg.Wait()

		if suspended != nil {
			// Siblings in the same round may have finished after the
			// detector took its snapshot; resuming must not re-run them.
			suspended.Ambiguity.Completed = make(map[string]*models.ToolResult, len(run.Results))
			for id, res := range run.Results {
				suspended.Ambiguity.Completed[id] = res
			}
			run.Suspended = suspended
			if e.metrics != nil {
				e.metrics.AmbiguitySuspended()
			}
			// The stream ends here; the clarification question rides on the
			// terminal event so an attached subscriber sees why.
			e.publish(ctx, opts.SessionID, models.NewComplete(suspended.Question))
			e.logger.Info("graph suspended for ambiguity",
				"session_id", opts.SessionID,
				"task_id", suspended.Ambiguity.TaskID,
			)
			return run, nil
		}
		if failed != nil {
			run.Failed = failed
			graph.SkipDownstream(failed.ID)
			e.publish(ctx, opts.SessionID, models.NewError(userFacingError(failed)))
			e.logger.Error("graph failed",
				"session_id", opts.SessionID,
				"task_id", failed.ID,
				"error", failed.Err,
			)
			return run, failed.Err
		}
	}

	return run, nil
}

// runTask resolves parameters and dispatches one tool call with its
// wall-clock budget.
func (e *Executor) runTask(ctx context.Context, task *models.Task, results map[string]*models.ToolResult, opts RunOptions) (*models.ToolResult, error) {
	desc, ok := e.registry.Get(task.ToolName())
	if !ok {
		return nil, fmt.Errorf("%w: %s", tools.ErrUnknownTool, task.ToolName())
	}

	params, err := e.resolver.Resolve(task, desc, results, opts.Session)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	result, err := e.registry.Dispatch(callCtx, task.ToolName(), params, opts.AuthToken)
	if err != nil {
		kind := ToolErrorFailed
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			kind = ToolErrorTimeout
			if e.metrics != nil {
				e.metrics.ToolTimeout()
			}
		}
		return nil, &ToolError{TaskID: task.ID, Tool: task.ToolName(), Kind: kind, Err: err}
	}

	if result.Outcome() == models.OutcomeFailed {
		return nil, &ToolError{
			TaskID: task.ID,
			Tool:   task.ToolName(),
			Kind:   ToolErrorFailed,
			Err:    fmt.Errorf("tool returned: %s", result.Error),
		}
	}
	return result, nil
}

// publish drops events once the run is cancelled so a disconnected
// subscriber sees nothing further.
func (e *Executor) publish(ctx context.Context, sessionID string, event models.ProgressEvent) {
	if ctx.Err() != nil {
		return
	}
	e.hub.Publish(sessionID, event)
}

func percent(completed, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(completed) / float64(total) * 100
}

// userFacingError renders a failure without exposing internals.
func userFacingError(task *models.Task) string {
	var toolErr *ToolError
	if errors.As(task.Err, &toolErr) && toolErr.Kind == ToolErrorTimeout {
		return "A step took too long and was stopped. Please try again."
	}
	return "Something went wrong while handling your request. Please try again."
}
