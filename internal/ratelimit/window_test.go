package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowCounter_Disabled(t *testing.T) {
	t.Parallel()

	c := NewSlidingWindowCounter(0, time.Hour)
	assert.Nil(t, c)
	assert.True(t, c.Allow())
	assert.True(t, c.Check())
	assert.Equal(t, -1, c.Remaining())
	assert.True(t, c.IsIdle())
	c.Consume()
}

func TestSlidingWindowCounter_Limit(t *testing.T) {
	t.Parallel()

	c := NewSlidingWindowCounter(2, time.Hour)
	assert.True(t, c.IsIdle())
	assert.True(t, c.Allow())
	assert.Equal(t, 1, c.Remaining())
	assert.True(t, c.Allow())
	assert.False(t, c.Allow())
	assert.False(t, c.Check())
	assert.Equal(t, 0, c.Remaining())
	assert.False(t, c.IsIdle())
}

func TestSlidingWindowCounter_PreviousWindowWeighs(t *testing.T) {
	t.Parallel()

	c := NewSlidingWindowCounter(10, time.Hour)
	c.currCount = 10
	c.windowStart = time.Now().Add(-90 * time.Minute) // half way into the next window

	remaining := c.Remaining()
	assert.InDelta(t, 5, remaining, 1, "about half of the previous window still counts")
}

func TestSlidingWindowCounter_LongIdleResets(t *testing.T) {
	t.Parallel()

	c := NewSlidingWindowCounter(10, time.Hour)
	c.currCount = 10
	c.windowStart = time.Now().Add(-3 * time.Hour)

	assert.Equal(t, 10, c.Remaining())
	assert.True(t, c.IsIdle())
}
