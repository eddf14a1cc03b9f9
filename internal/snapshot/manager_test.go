package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/course-advisor-go/internal/r2client"
	"github.com/garyellow/course-advisor-go/internal/storage"
)

// memoryBucket mimics R2 conditional-write semantics.
type memoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	version int
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: make(map[string][]byte), etags: make(map[string]string)}
}

func (b *memoryBucket) Download(_ context.Context, key string) (io.ReadCloser, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, "", r2client.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), b.etags[key], nil
}

func (b *memoryBucket) PutConditional(_ context.Context, key string, body io.Reader, ifMatch, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	current, exists := b.etags[key]
	if (ifMatch == "" && exists) || (ifMatch != "" && ifMatch != current) {
		return "", r2client.ErrPreconditionFailed
	}
	b.version++
	etag := fmt.Sprintf("v%d", b.version)
	b.objects[key] = data
	b.etags[key] = etag
	return etag, nil
}

type snapshotRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *snapshotRecorder) RecordSnapshot(operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, operation+"/"+status)
}

type failingSource struct{}

func (failingSource) VacuumInto(context.Context, string) error { return errors.New("disk full") }

func seededDB(t *testing.T) *storage.DB {
	t.Helper()
	ctx := context.Background()
	db, err := storage.New(ctx, filepath.Join(t.TempDir(), "advisor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SaveCoursesBatch(ctx, []*storage.Course{{
		CourseID: "C1", CourseName: "INFO-I 300", Department: "INFO", MinCredits: 3, MaxCredits: 3,
		OfferedSemester: "Fall", Title: "HCI", Description: "Design.",
	}}))
	return db
}

func TestManager_UploadAndRestore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bucket := newMemoryBucket()
	rec := &snapshotRecorder{}

	uploader := New(bucket, Config{Key: "snapshots/advisor.db.zst", TempDir: t.TempDir(), Recorder: rec})
	etag, err := uploader.Upload(ctx, seededDB(t))
	require.NoError(t, err)
	assert.Equal(t, "v1", etag)
	assert.Equal(t, "v1", uploader.ETag())

	// A second upload from the same instance replaces its own snapshot.
	etag, err = uploader.Upload(ctx, seededDB(t))
	require.NoError(t, err)
	assert.Equal(t, "v2", etag)

	dbPath := filepath.Join(t.TempDir(), "data", "advisor.db")
	restorer := New(bucket, Config{Key: "snapshots/advisor.db.zst", Recorder: rec})
	restored, err := restorer.Restore(ctx, dbPath)
	require.NoError(t, err)
	require.True(t, restored)
	assert.Equal(t, "v2", restorer.ETag())

	db, err := storage.New(ctx, dbPath)
	require.NoError(t, err)
	defer db.Close()
	course, err := db.GetCourseByID(ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, course)
	assert.Equal(t, "HCI", course.Title)

	_, err = os.Stat(dbPath + ".restore")
	assert.True(t, os.IsNotExist(err), "partial file removed")

	assert.Equal(t, []string{"upload/success", "upload/success", "restore/success"}, rec.events)
}

func TestManager_RestoreSkips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("local database exists", func(t *testing.T) {
		t.Parallel()
		dbPath := filepath.Join(t.TempDir(), "advisor.db")
		require.NoError(t, os.WriteFile(dbPath, []byte("local"), 0o644))

		restored, err := New(newMemoryBucket(), Config{Key: "k"}).Restore(ctx, dbPath)
		require.NoError(t, err)
		assert.False(t, restored)
		data, _ := os.ReadFile(dbPath)
		assert.Equal(t, "local", string(data))
	})

	t.Run("no snapshot in bucket", func(t *testing.T) {
		t.Parallel()
		rec := &snapshotRecorder{}
		dbPath := filepath.Join(t.TempDir(), "advisor.db")

		restored, err := New(newMemoryBucket(), Config{Key: "k", Recorder: rec}).Restore(ctx, dbPath)
		require.NoError(t, err)
		assert.False(t, restored)
		assert.Equal(t, []string{"restore/missing"}, rec.events)
	})

	t.Run("corrupt snapshot", func(t *testing.T) {
		t.Parallel()
		bucket := newMemoryBucket()
		_, err := bucket.PutConditional(ctx, "k", bytes.NewReader([]byte("not zstd")), "", "")
		require.NoError(t, err)
		dbPath := filepath.Join(t.TempDir(), "advisor.db")

		restored, err := New(bucket, Config{Key: "k"}).Restore(ctx, dbPath)
		require.Error(t, err)
		assert.False(t, restored)
		_, statErr := os.Stat(dbPath)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestManager_UploadConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bucket := newMemoryBucket()

	first := New(bucket, Config{Key: "k", TempDir: t.TempDir()})
	_, err := first.Upload(ctx, seededDB(t))
	require.NoError(t, err)

	rec := &snapshotRecorder{}
	second := New(bucket, Config{Key: "k", TempDir: t.TempDir(), Recorder: rec})
	_, err = second.Upload(ctx, seededDB(t))
	require.ErrorIs(t, err, r2client.ErrPreconditionFailed)
	assert.Equal(t, []string{"upload/conflict"}, rec.events)
	assert.Empty(t, second.ETag())

	// The first instance still owns the snapshot.
	_, err = first.Upload(ctx, seededDB(t))
	assert.NoError(t, err)
}

func TestManager_UploadVacuumFailure(t *testing.T) {
	t.Parallel()

	rec := &snapshotRecorder{}
	m := New(newMemoryBucket(), Config{Key: "k", TempDir: t.TempDir(), Recorder: rec})
	_, err := m.Upload(context.Background(), failingSource{})
	require.Error(t, err)
	assert.Equal(t, []string{"upload/error"}, rec.events)
}

func TestManager_RunStops(t *testing.T) {
	t.Parallel()

	m := New(newMemoryBucket(), Config{Key: "k", Interval: 0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Both calls must return: a disabled interval and a canceled ctx.
	m.Run(ctx, failingSource{}, 0)

	m = New(newMemoryBucket(), Config{Key: "k", Interval: 1})
	m.Run(ctx, failingSource{}, 0)
}
