package warmup

import (
	"sync/atomic"
	"time"
)

// ReadinessState gates /readyz and the chat routes until the startup
// embedding backfill finishes, or until the timeout elapses so a slow
// gateway cannot keep the service down forever.
type ReadinessState struct {
	ready     atomic.Bool
	startTime time.Time
	timeout   time.Duration
	now       func() time.Time
}

// ReadinessStatus contains the current readiness state for API responses.
type ReadinessStatus struct {
	Ready          bool   `json:"ready"`
	Reason         string `json:"reason,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// NewReadinessState creates a state that is not ready until MarkReady is
// called or timeout has elapsed. A non-positive timeout disables the gate.
func NewReadinessState(timeout time.Duration) *ReadinessState {
	s := &ReadinessState{
		startTime: time.Now(),
		timeout:   timeout,
		now:       time.Now,
	}
	if timeout <= 0 {
		s.ready.Store(true)
	}
	return s
}

// IsReady returns true if the service is ready to accept traffic.
func (s *ReadinessState) IsReady() bool {
	return s.ready.Load() || s.elapsed() >= s.timeout
}

func (s *ReadinessState) elapsed() time.Duration {
	return s.now().Sub(s.startTime)
}

// MarkReady marks the startup warmup as finished, successful or not.
func (s *ReadinessState) MarkReady() {
	s.ready.Store(true)
}

// Status returns the current readiness status for API responses.
func (s *ReadinessState) Status() ReadinessStatus {
	elapsed := s.elapsed()
	isReady := s.IsReady()

	status := ReadinessStatus{
		Ready:          isReady,
		ElapsedSeconds: int(elapsed.Seconds()),
		TimeoutSeconds: int(s.timeout.Seconds()),
	}

	if !isReady {
		status.Reason = "embedding backfill in progress"
	} else if !s.ready.Load() {
		status.Reason = "timeout reached (backfill may still be running)"
	}

	return status
}

// WarmupCompleted reports whether MarkReady was called, ignoring the timeout.
func (s *ReadinessState) WarmupCompleted() bool {
	return s.ready.Load()
}
