// Package snapshot backs up the SQLite database to R2 and restores it on
// boot when the local file is missing. Uploads are conditional on the ETag
// this instance last saw, so two instances sharing a bucket never clobber
// each other's newer snapshot.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/garyellow/course-advisor-go/internal/r2client"
)

// ErrNotFound indicates no snapshot exists in the bucket.
var ErrNotFound = errors.New("snapshot: not found")

// ObjectStore is the subset of *r2client.Client the manager uses.
type ObjectStore interface {
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	PutConditional(ctx context.Context, key string, body io.Reader, ifMatch, contentType string) (string, error)
}

// Source produces a consistent copy of the live database. *storage.DB
// satisfies it.
type Source interface {
	VacuumInto(ctx context.Context, dest string) error
}

// Recorder receives snapshot outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordSnapshot(operation, status string)
}

// Config holds snapshot manager configuration.
type Config struct {
	Key      string        // Object key, e.g. "snapshots/advisor.db.zst"
	Interval time.Duration // Upload period for Run
	TempDir  string        // Scratch space for vacuum and compression
	Recorder Recorder
}

// Manager handles SQLite snapshot synchronization with R2.
type Manager struct {
	store  ObjectStore
	config Config

	mu   sync.Mutex
	etag string // last snapshot this instance uploaded or restored
}

// New creates a new snapshot manager.
func New(store ObjectStore, cfg Config) *Manager {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Manager{store: store, config: cfg}
}

// Restore downloads the latest snapshot into dbPath when dbPath does not
// exist. It reports whether a snapshot was restored; a missing snapshot
// is not an error.
func (m *Manager) Restore(ctx context.Context, dbPath string) (bool, error) {
	if _, err := os.Stat(dbPath); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat database: %w", err)
	}

	body, etag, err := m.store.Download(ctx, m.config.Key)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			m.record("restore", "missing")
			return false, nil
		}
		m.record("restore", "error")
		return false, fmt.Errorf("download snapshot: %w", err)
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return false, fmt.Errorf("create data dir: %w", err)
	}

	// Decompress beside the target so the final rename stays on one filesystem.
	partial := dbPath + ".restore"
	if err := r2client.DecompressStream(body, partial); err != nil {
		_ = os.Remove(partial)
		m.record("restore", "error")
		return false, fmt.Errorf("decompress snapshot: %w", err)
	}
	if err := os.Rename(partial, dbPath); err != nil {
		_ = os.Remove(partial)
		m.record("restore", "error")
		return false, fmt.Errorf("install snapshot: %w", err)
	}

	m.setETag(etag)
	m.record("restore", "success")
	slog.InfoContext(ctx, "Database restored from snapshot", "key", m.config.Key, "etag", etag)
	return true, nil
}

// Upload vacuums src into a temporary file, compresses it and uploads it.
// When another instance has replaced the snapshot since this one last saw
// it, the upload is skipped and r2client.ErrPreconditionFailed returned.
func (m *Manager) Upload(ctx context.Context, src Source) (string, error) {
	stamp := time.Now().UnixNano()
	rawPath := filepath.Join(m.config.TempDir, fmt.Sprintf("advisor_snapshot_%d.db", stamp))
	zstPath := rawPath + ".zst"
	defer os.Remove(rawPath)
	defer os.Remove(zstPath)

	if err := src.VacuumInto(ctx, rawPath); err != nil {
		m.record("upload", "error")
		return "", fmt.Errorf("vacuum database: %w", err)
	}
	if err := r2client.CompressFile(rawPath, zstPath); err != nil {
		m.record("upload", "error")
		return "", fmt.Errorf("compress snapshot: %w", err)
	}

	f, err := os.Open(zstPath)
	if err != nil {
		m.record("upload", "error")
		return "", fmt.Errorf("open compressed snapshot: %w", err)
	}
	defer f.Close()

	etag, err := m.store.PutConditional(ctx, m.config.Key, f, m.ETag(), "application/zstd")
	if err != nil {
		if errors.Is(err, r2client.ErrPreconditionFailed) {
			m.record("upload", "conflict")
			return "", err
		}
		m.record("upload", "error")
		return "", fmt.Errorf("upload snapshot: %w", err)
	}

	m.setETag(etag)
	m.record("upload", "success")
	return etag, nil
}

// Run uploads a snapshot every Interval after an initial delay, until ctx
// is canceled.
func (m *Manager) Run(ctx context.Context, src Source, initialDelay time.Duration) {
	if m.config.Interval <= 0 {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(initialDelay):
	}

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()
	for {
		m.uploadOnce(ctx, src)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) uploadOnce(ctx context.Context, src Source) {
	start := time.Now()
	etag, err := m.Upload(ctx, src)
	switch {
	case errors.Is(err, r2client.ErrPreconditionFailed):
		slog.WarnContext(ctx, "Snapshot skipped: bucket holds a newer snapshot", "key", m.config.Key)
	case err != nil:
		slog.ErrorContext(ctx, "Snapshot upload failed", "error", err)
	default:
		slog.InfoContext(ctx, "Snapshot uploaded",
			"key", m.config.Key,
			"etag", etag,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// ETag returns the ETag of the snapshot this instance last saw.
func (m *Manager) ETag() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.etag
}

func (m *Manager) setETag(etag string) {
	m.mu.Lock()
	m.etag = etag
	m.mu.Unlock()
}

func (m *Manager) record(operation, status string) {
	if m.config.Recorder != nil {
		m.config.Recorder.RecordSnapshot(operation, status)
	}
}
