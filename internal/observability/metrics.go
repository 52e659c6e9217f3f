// Package observability provides structured logging and Prometheus metrics
// for the meal-planning service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the service's Prometheus metrics. Registered once at
// startup against the default registry; exposed at /metrics.
type Metrics struct {
	// ChatTurns counts chat turns by classified pattern.
	ChatTurns *prometheus.CounterVec

	// GraphsStarted counts task graph executions.
	GraphsStarted prometheus.Counter

	// TaskExecutions counts tool calls by tool name and status.
	TaskExecutions *prometheus.CounterVec

	// ToolTimeouts counts tool calls that hit their wall-clock budget.
	ToolTimeouts prometheus.Counter

	// AmbiguitySuspensions counts graphs suspended for user clarification.
	AmbiguitySuspensions prometheus.Counter

	// PlanRejections counts planner replies rejected by validation.
	PlanRejections *prometheus.CounterVec

	// LLMRequestDuration measures planning call latency in seconds.
	// Labels: model
	LLMRequestDuration *prometheus.HistogramVec

	// ActiveSessions gauges the live session count.
	ActiveSessions prometheus.Gauge

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		ChatTurns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kondate_chat_turns_total",
				Help: "Total number of chat turns by classified pattern",
			},
			[]string{"pattern"},
		),

		GraphsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kondate_graphs_started_total",
				Help: "Total number of task graph executions started",
			},
		),

		TaskExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kondate_task_executions_total",
				Help: "Total number of tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolTimeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kondate_tool_timeouts_total",
				Help: "Total number of tool calls stopped at their time budget",
			},
		),

		AmbiguitySuspensions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kondate_ambiguity_suspensions_total",
				Help: "Total number of graphs suspended awaiting disambiguation",
			},
		),

		PlanRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kondate_plan_rejections_total",
				Help: "Total number of planner replies rejected by validation",
			},
			[]string{"reason"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kondate_llm_request_duration_seconds",
				Help:    "Duration of planning LLM calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kondate_active_sessions",
				Help: "Current number of live sessions",
			},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kondate_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// ChatTurn counts one classified chat turn.
func (m *Metrics) ChatTurn(pattern string) {
	m.ChatTurns.WithLabelValues(pattern).Inc()
}

// The executor's metrics hook.

func (m *Metrics) GraphStarted() {
	m.GraphsStarted.Inc()
}

func (m *Metrics) TaskCompleted(tool string, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}
	m.TaskExecutions.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) ToolTimeout() {
	m.ToolTimeouts.Inc()
}

func (m *Metrics) AmbiguitySuspended() {
	m.AmbiguitySuspensions.Inc()
}

// The planner's metrics hook.

func (m *Metrics) PlanRejection(reason string) {
	m.PlanRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) LLMRequest(model string, seconds float64) {
	m.LLMRequestDuration.WithLabelValues(model).Observe(seconds)
}

// SetActiveSessions mirrors the session store's live count.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}
