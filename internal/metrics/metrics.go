// Package metrics defines the Prometheus metrics exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level LLM collectors used by the genai package, which has no
// handle on the Metrics struct. Set by InitGlobal; nil until then.
var (
	LLMTotal           *prometheus.CounterVec
	LLMDuration        *prometheus.HistogramVec
	LLMFallbackTotal   *prometheus.CounterVec
	LLMFallbackLatency *prometheus.HistogramVec
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Chat turn metrics
	TurnsTotal       *prometheus.CounterVec
	TurnDuration     *prometheus.HistogramVec
	StageFailures    *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	SessionEvictions prometheus.Counter

	// LLM metrics
	LLMTotal           *prometheus.CounterVec
	LLMDuration        *prometheus.HistogramVec
	LLMFallbackTotal   *prometheus.CounterVec
	LLMFallbackLatency *prometheus.HistogramVec

	// Retrieval metrics
	RetrievalTotal      *prometheus.CounterVec
	RetrievalDuration   prometheus.Histogram
	RetrievalCandidates prometheus.Histogram

	// Embedding gateway metrics
	EmbeddingTotal    *prometheus.CounterVec
	EmbeddingDuration prometheus.Histogram

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
	RateLimiterUsers   *prometheus.GaugeVec

	// Background job metrics
	WarmupTasksTotal *prometheus.CounterVec
	WarmupDuration   prometheus.Histogram
	SnapshotTotal    *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	m := &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_turns_total",
				Help: "Total chat turns by routed action and status",
			},
			[]string{"action", "status"}, // status: success, failed
		),

		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advisor_turn_duration_seconds",
				Help:    "Chat turn duration in seconds by routed action",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120}, // Up to the turn timeout
			},
			[]string{"action"},
		),

		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_stage_failures_total",
				Help: "Total pipeline stage failures that produced the apology reply",
			},
			[]string{"stage"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "advisor_active_sessions",
				Help: "Number of sessions held in memory",
			},
		),

		SessionEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "advisor_session_evictions_total",
				Help: "Total sessions evicted from memory by the idle janitor",
			},
		),

		LLMTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_llm_requests_total",
				Help: "Total LLM requests by provider, operation and status",
			},
			[]string{"provider", "operation", "status"},
		),

		LLMDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advisor_llm_duration_seconds",
				Help:    "LLM request duration in seconds by provider and operation",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
			},
			[]string{"provider", "operation"},
		),

		LLMFallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_llm_fallback_total",
				Help: "Total LLM fallbacks from one provider to the next",
			},
			[]string{"from", "to", "operation"},
		),

		LLMFallbackLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advisor_llm_fallback_latency_seconds",
				Help:    "Total latency of requests that needed a fallback provider",
				Buckets: []float64{1, 2, 4, 8, 15, 30, 60},
			},
			[]string{"operation"},
		),

		RetrievalTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_retrieval_total",
				Help: "Total eligibility-filtered retrievals by status",
			},
			[]string{"status"}, // status: success, empty, embedding_error, storage_error
		),

		RetrievalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "advisor_retrieval_duration_seconds",
				Help:    "Retrieval duration in seconds including the embedding call",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),

		RetrievalCandidates: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "advisor_retrieval_candidates",
				Help:    "Number of eligible candidates returned per retrieval",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),

		EmbeddingTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_embedding_requests_total",
				Help: "Total embedding gateway requests by status",
			},
			[]string{"status"},
		),

		EmbeddingDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "advisor_embedding_duration_seconds",
				Help:    "Embedding gateway request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter"},
		),

		RateLimiterUsers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "advisor_rate_limiter_users",
				Help: "Number of keys tracked by each keyed rate limiter",
			},
			[]string{"limiter"},
		),

		WarmupTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_warmup_tasks_total",
				Help: "Total number of warmup tasks by module and status",
			},
			[]string{"module", "status"},
		),

		WarmupDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "advisor_warmup_duration_seconds",
				Help:    "Total duration of warmup process",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		SnapshotTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_snapshot_total",
				Help: "Total database snapshot operations by operation and status",
			},
			[]string{"operation", "status"}, // operation: upload, restore
		),
	}

	return m
}

// InitGlobal publishes the LLM collectors for packages that record without
// holding a *Metrics.
func InitGlobal(m *Metrics) {
	if m == nil {
		return
	}
	LLMTotal = m.LLMTotal
	LLMDuration = m.LLMDuration
	LLMFallbackTotal = m.LLMFallbackTotal
	LLMFallbackLatency = m.LLMFallbackLatency
}

// RecordTurn records a completed chat turn
func (m *Metrics) RecordTurn(action, status string, duration float64) {
	m.TurnsTotal.WithLabelValues(action, status).Inc()
	m.TurnDuration.WithLabelValues(action).Observe(duration)
}

// RecordStageFailure records a pipeline stage that failed
func (m *Metrics) RecordStageFailure(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

// SetActiveSessions sets the in-memory session gauge
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionEvictions adds evicted sessions
func (m *Metrics) RecordSessionEvictions(count int) {
	m.SessionEvictions.Add(float64(count))
}

// RecordRetrieval records one retrieval
func (m *Metrics) RecordRetrieval(status string, candidates int, duration float64) {
	m.RetrievalTotal.WithLabelValues(status).Inc()
	m.RetrievalDuration.Observe(duration)
	if status == "success" || status == "empty" {
		m.RetrievalCandidates.Observe(float64(candidates))
	}
}

// RecordEmbedding records one embedding gateway request
func (m *Metrics) RecordEmbedding(status string, duration float64) {
	m.EmbeddingTotal.WithLabelValues(status).Inc()
	m.EmbeddingDuration.Observe(duration)
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiter string) {
	m.RateLimiterDropped.WithLabelValues(limiter).Inc()
}

// SetRateLimiterUsers sets the tracked key count for a limiter
func (m *Metrics) SetRateLimiterUsers(limiter string, count int) {
	m.RateLimiterUsers.WithLabelValues(limiter).Set(float64(count))
}

// RecordWarmupTask records a warmup task completion
func (m *Metrics) RecordWarmupTask(module, status string) {
	m.WarmupTasksTotal.WithLabelValues(module, status).Inc()
}

// RecordWarmupDuration records total warmup duration
func (m *Metrics) RecordWarmupDuration(duration float64) {
	m.WarmupDuration.Observe(duration)
}

// RecordSnapshot records a snapshot upload or restore
func (m *Metrics) RecordSnapshot(operation, status string) {
	m.SnapshotTotal.WithLabelValues(operation, status).Inc()
}
