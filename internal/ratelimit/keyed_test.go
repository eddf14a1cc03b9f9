package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu    sync.Mutex
	drops map[string]int
	users map[string]int
}

func newRecorder() *recorder {
	return &recorder{drops: map[string]int{}, users: map[string]int{}}
}

func (r *recorder) RecordRateLimiterDrop(limiter string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drops[limiter]++
}

func (r *recorder) SetRateLimiterUsers(limiter string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[limiter] = count
}

func TestKeyedLimiter_PerKey(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	kl := NewKeyedLimiter(KeyedConfig{Name: "chat", Burst: 1, RefillRate: 0.001, CleanupPeriod: time.Hour, Recorder: rec})
	defer kl.Stop()

	assert.True(t, kl.Allow("student-1"))
	assert.False(t, kl.Allow("student-1"))
	assert.True(t, kl.Allow("student-2"))
	assert.True(t, kl.Allow(""), "empty key is not limited")

	assert.Equal(t, 2, kl.ActiveCount())
	assert.Equal(t, 1, rec.drops["chat"])
}

func TestKeyedLimiter_DailyLimit(t *testing.T) {
	t.Parallel()

	kl := NewKeyedLimiter(KeyedConfig{Name: "chat", Burst: 100, RefillRate: 100, DailyLimit: 2, CleanupPeriod: time.Hour})
	defer kl.Stop()

	assert.Equal(t, 2, kl.DailyRemaining("s"))
	assert.True(t, kl.Allow("s"))
	assert.True(t, kl.Allow("s"))
	assert.False(t, kl.Allow("s"))
	assert.Equal(t, 0, kl.DailyRemaining("s"))
}

func TestKeyedLimiter_DailyDisabled(t *testing.T) {
	t.Parallel()

	kl := NewKeyedLimiter(KeyedConfig{Name: "chat", Burst: 1, RefillRate: 1})
	defer kl.Stop()
	assert.Equal(t, -1, kl.DailyRemaining("s"))
}

func TestKeyedLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	kl := NewKeyedLimiter(KeyedConfig{Name: "chat", Burst: 1, RefillRate: 1000, CleanupPeriod: time.Hour, Recorder: rec})
	defer kl.Stop()

	kl.Allow("a")
	kl.Allow("b")
	assert.Eventually(t, func() bool { return kl.Cleanup() == 0 }, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 0, rec.users["chat"])
}

func TestKeyedLimiter_StopIdempotent(t *testing.T) {
	t.Parallel()

	kl := NewKeyedLimiter(KeyedConfig{Name: "chat", Burst: 1, RefillRate: 1})
	kl.Stop()
	kl.Stop()
}
