package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandler(t *testing.T) {
	t.Parallel()

	var debugBuf, errorBuf bytes.Buffer
	mh := NewMultiHandler(
		nil,
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	require.Len(t, mh.handlers, 2)
	assert.True(t, mh.Enabled(context.Background(), slog.LevelDebug))

	log := slog.New(mh).With("component", "test")
	log.Info("info only")
	log.Error("both")

	assert.Equal(t, 2, strings.Count(debugBuf.String(), "\n"))
	assert.Equal(t, 1, strings.Count(errorBuf.String(), "\n"))
	assert.Contains(t, errorBuf.String(), `"component":"test"`)
}

func TestMultiHandler_JoinsErrors(t *testing.T) {
	t.Parallel()

	base := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	mh := NewMultiHandler(failingHandler{base}, base)
	err := mh.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAsyncHandler_FlushOnShutdown(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	async := NewAsyncHandler(slog.NewJSONHandler(out, nil), AsyncOptions{BufferSize: 64})
	log := slog.New(async).With("sink", "remote")

	for range 10 {
		log.Info("queued")
	}
	require.NoError(t, async.Shutdown(context.Background()))

	assert.Equal(t, 10, strings.Count(out.String(), `"sink":"remote"`))

	// Records after shutdown are ignored, and a second shutdown is a no-op.
	log.Info("late")
	assert.NoError(t, async.Shutdown(context.Background()))
	assert.NotContains(t, out.String(), "late")
}

func TestAsyncHandler_RespectsLevel(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	async := NewAsyncHandler(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelWarn}), AsyncOptions{})
	slog.New(async).Info("filtered")
	require.NoError(t, async.Shutdown(context.Background()))
	assert.Empty(t, out.String())
	assert.Zero(t, async.Dropped())
}
