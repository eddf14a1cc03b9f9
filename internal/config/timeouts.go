// Package config provides centralized timeout constants for the application.
//
// A chat turn makes up to four sequential LLM calls (classifier, responder,
// supervisor, title) and one embedding call, so the turn budget is sized for
// the slowest provider in the fallback chain plus retries.
package config

import "time"

// HTTP server timeouts
const (
	// HTTPRead is the HTTP server read timeout. Chat requests are small JSON bodies.
	HTTPRead = 10 * time.Second

	// HTTPWrite is the HTTP server write timeout.
	// Must exceed TurnProcessing plus response serialization.
	HTTPWrite = 125 * time.Second

	// HTTPIdle is the HTTP server idle timeout for keep-alive connections.
	HTTPIdle = 120 * time.Second
)

// Turn timeouts
const (
	// TurnProcessing is the default budget for one chat turn.
	TurnProcessing = 120 * time.Second

	// TurnPersist bounds the detached write that records a turn after the
	// caller's context has already been canceled.
	TurnPersist = 10 * time.Second
)

// Embedding gateway timeouts
const (
	// EmbeddingRequest is the timeout for a single embedding gateway request.
	EmbeddingRequest = 30 * time.Second

	// EmbeddingRetryInitial is the initial delay before retrying a failed request.
	EmbeddingRetryInitial = 500 * time.Millisecond

	// EmbeddingRetryMax caps the backoff between embedding retries.
	EmbeddingRetryMax = 5 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	// Set to 30s to accommodate catalog ingestion batches.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour

	// SlowQueryThreshold is the duration above which queries are logged as slow.
	SlowQueryThreshold = 100 * time.Millisecond
)

// Background job intervals
const (
	// SessionJanitorInterval is how often idle sessions are evicted from memory.
	SessionJanitorInterval = time.Minute

	// MetricsUpdateInterval is how often gauge metrics are refreshed.
	MetricsUpdateInterval = 5 * time.Minute

	// RateLimiterCleanupInterval is how often inactive user rate limiters are cleaned.
	RateLimiterCleanupInterval = 5 * time.Minute

	// SnapshotInitialDelay is the delay before the first snapshot upload.
	SnapshotInitialDelay = 10 * time.Minute
)

// Warmup timeouts
const (
	// WarmupBackfill bounds the startup embedding backfill for courses that
	// were ingested without vectors.
	WarmupBackfill = 10 * time.Minute

	// WarmupReadinessTimeout is how long /readyz reports not-ready before
	// the server is considered ready regardless of backfill progress.
	WarmupReadinessTimeout = 15 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	// Allows in-flight requests to complete before forceful termination.
	GracefulShutdown = 30 * time.Second
)
