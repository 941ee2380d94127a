package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - LLM request performance and token usage
//   - Tool execution patterns and latencies
//   - Error rates categorized by type and component
//   - Active session counts per agent, for capacity planning
//   - HTTP and database query latency
//   - The async photo pipeline's throughput and queue depth
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.LLMRequestDuration.WithLabelValues("anthropic", "claude-sonnet").Observe(time.Since(start).Seconds())
type Metrics struct {
	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider (anthropic), model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by type and component.
	// Labels: component (workflow|tool|llm|adapter|photo), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking current active sessions by agent.
	// Labels: agent (orchestrator|new_registration|re_registration)
	ActiveSessions *prometheus.GaugeVec

	// SessionDuration measures session lifetime in seconds, from first turn
	// to the clearing of the session, by the agent active when it ended.
	// Labels: agent
	SessionDuration *prometheus.HistogramVec

	// HTTPRequestDuration measures chatapi request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts chatapi requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures database query latency.
	// Labels: operation (select|insert|update), table
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts database queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec

	// PhotoUploadsTotal counts completed photo pipeline jobs by outcome.
	// Labels: outcome (accepted|rejected|error)
	PhotoUploadsTotal *prometheus.CounterVec

	// PhotoProcessingDuration measures time from upload acceptance to job
	// completion (decode, optimise, verify, store, write-back).
	PhotoProcessingDuration prometheus.Histogram

	// PhotoQueueDepth tracks the number of upload jobs currently running or
	// waiting for a free worker-pool slot.
	PhotoQueueDepth prometheus.Gauge

	// RetryAttempts counts adapter call attempts by internal/retry's policy,
	// by outcome.
	// Labels: status (success|retry|failed)
	RetryAttempts *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regagent_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regagent_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regagent_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regagent_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regagent_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regagent_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "regagent_active_sessions",
				Help: "Current number of active sessions by agent",
			},
			[]string{"agent"},
		),

		SessionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regagent_session_duration_seconds",
				Help:    "Duration of sessions in seconds",
				Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800},
			},
			[]string{"agent"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regagent_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regagent_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		DatabaseQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regagent_database_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regagent_database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),

		PhotoUploadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regagent_photo_uploads_total",
				Help: "Total number of completed photo pipeline jobs by outcome",
			},
			[]string{"outcome"},
		),

		PhotoProcessingDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "regagent_photo_processing_duration_seconds",
				Help:    "Duration of photo pipeline jobs from acceptance to completion",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),

		PhotoQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "regagent_photo_queue_depth",
				Help: "Current number of photo pipeline jobs running or waiting for a worker",
			},
		),

		RetryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regagent_retry_attempts_total",
				Help: "Total number of adapter call attempts by outcome",
			},
			[]string{"status"},
		),
	}
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("write_registration", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("workflow", "tool_dispatch_error")
//	metrics.RecordError("llm", "provider_error")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SessionStarted increments the active sessions gauge for agent.
//
// Example:
//
//	metrics.SessionStarted("orchestrator")
func (m *Metrics) SessionStarted(agent string) {
	m.ActiveSessions.WithLabelValues(agent).Inc()
}

// SessionEnded decrements the active sessions gauge and records session duration.
//
// Example:
//
//	start := time.Now()
//	// ... session lifecycle ...
//	metrics.SessionEnded("new_registration", time.Since(start).Seconds())
func (m *Metrics) SessionEnded(agent string, durationSeconds float64) {
	m.ActiveSessions.WithLabelValues(agent).Dec()
	m.SessionDuration.WithLabelValues(agent).Observe(durationSeconds)
}

// RecordHTTPRequest records metrics for an HTTP request.
//
// Example:
//
//	start := time.Now()
//	// ... handle HTTP request ...
//	metrics.RecordHTTPRequest("POST", "/chat", "200", time.Since(start).Seconds())
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordDatabaseQuery records metrics for a database query.
//
// Example:
//
//	start := time.Now()
//	// ... execute database query ...
//	metrics.RecordDatabaseQuery("select", "registrations", "success", time.Since(start).Seconds())
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}

// RecordPhotoUpload records a completed photo pipeline job.
//
// Example:
//
//	metrics.RecordPhotoUpload("accepted", time.Since(job.StartedAt).Seconds())
func (m *Metrics) RecordPhotoUpload(outcome string, durationSeconds float64) {
	m.PhotoUploadsTotal.WithLabelValues(outcome).Inc()
	m.PhotoProcessingDuration.Observe(durationSeconds)
}

// SetPhotoQueueDepth sets the current number of running/queued photo jobs.
//
// Example:
//
//	metrics.SetPhotoQueueDepth(3)
func (m *Metrics) SetPhotoQueueDepth(depth int) {
	m.PhotoQueueDepth.Set(float64(depth))
}

// RecordRetryAttempt records the outcome of one internal/retry-governed
// adapter call.
//
// Example:
//
//	metrics.RecordRetryAttempt("success")
//	metrics.RecordRetryAttempt("retry")
//	metrics.RecordRetryAttempt("failed")
func (m *Metrics) RecordRetryAttempt(status string) {
	m.RetryAttempts.WithLabelValues(status).Inc()
}
