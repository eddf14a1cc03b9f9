package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Burst(t *testing.T) {
	t.Parallel()

	l := New(3, 0.001)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "burst exhausted")

	l.Reset()
	assert.True(t, l.IsFull())
}

func TestLimiter_CheckDoesNotConsume(t *testing.T) {
	t.Parallel()

	l := New(1, 0.001)
	assert.True(t, l.Check())
	assert.True(t, l.Check())
	l.Consume()
	assert.False(t, l.Check())
}

func TestLimiter_Refill(t *testing.T) {
	t.Parallel()

	l := New(1, 100) // one token per 10ms
	require.True(t, l.Allow())
	require.False(t, l.Allow())

	assert.Eventually(t, l.Check, time.Second, 5*time.Millisecond)
}

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	l := New(1, 50)
	require.True(t, l.Allow())

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestLimiter_WaitCanceled(t *testing.T) {
	t.Parallel()

	l := New(1, 0.001)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}

func TestNewPerMinute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rpm       float64
		wantBurst float64
	}{
		{name: "high rate", rpm: 600, wantBurst: 20},
		{name: "low rate floors burst at one", rpm: 6, wantBurst: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := NewPerMinute(tt.rpm)
			assert.InDelta(t, tt.wantBurst, l.maxTokens, 1e-9)
			assert.LessOrEqual(t, l.Available(), l.maxTokens)
		})
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	l := New(50, 0.001)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Go(func() {
			if l.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
