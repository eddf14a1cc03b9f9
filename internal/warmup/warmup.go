// Package warmup prepares the advisor's derived data on startup: it embeds
// catalog courses that were ingested without vectors and rebuilds the
// in-memory catalog search index once embeddings are in place.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/course-advisor-go/internal/logger"
	"github.com/garyellow/course-advisor-go/internal/storage"
)

// Task names, also used as metric labels.
const (
	TaskEmbeddings   = "embeddings"
	TaskCatalogIndex = "catalog_index"
	TaskProfiles     = "profiles"
)

// DefaultBatchSize is the number of courses embedded per gateway request.
const DefaultBatchSize = 100

// Stats tracks warmup results.
// All fields use atomic operations for concurrent access
type Stats struct {
	Embedded    atomic.Int64
	Indexed     atomic.Int64
	Students    atomic.Int64
	Unavailable atomic.Int64 // courses still missing a vector afterwards
}

// Store is the persistence warmup reads and writes. *storage.DB satisfies it.
type Store interface {
	ListCoursesMissingEmbedding(ctx context.Context, limit int) ([]storage.Course, error)
	CountCoursesMissingEmbedding(ctx context.Context) (int, error)
	UpdateCourseEmbeddings(ctx context.Context, embeddings map[string][]float32) error
	CountStudents(ctx context.Context) (int, error)
}

// Embedder embeds a batch of texts. *genai.EmbeddingClient satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is rebuilt after embeddings change. *retrieval.CatalogSearcher satisfies it.
type Index interface {
	Reload(ctx context.Context) error
	Size() int
}

// Recorder receives task outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordWarmupTask(module, status string)
	RecordWarmupDuration(duration float64)
}

// Options configures a warmup run.
type Options struct {
	Tasks     []string // Defaults to all tasks
	BatchSize int
	Embedder  Embedder // Optional; without it the embeddings task is skipped
	Index     Index    // Optional; without it the catalog_index task is skipped
	Recorder  Recorder
}

// Run executes the requested tasks. Profiles run alongside the backfill;
// the catalog index waits for the backfill so it sees the new vectors.
func Run(ctx context.Context, store Store, log *logger.Logger, opts Options) (*Stats, error) {
	stats := &Stats{}
	startTime := time.Now()

	tasks := opts.Tasks
	if len(tasks) == 0 {
		tasks = []string{TaskEmbeddings, TaskCatalogIndex, TaskProfiles}
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var hasEmbeddings, hasIndex, hasProfiles bool
	for _, task := range tasks {
		switch task {
		case TaskEmbeddings:
			hasEmbeddings = true
		case TaskCatalogIndex:
			hasIndex = true
		case TaskProfiles:
			hasProfiles = true
		default:
			log.WithField("task", task).Warn("Unknown warmup task, skipping")
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	embeddingsDone := make(chan struct{})

	if hasProfiles {
		g.Go(func() error {
			return runTask(log, opts.Recorder, TaskProfiles, func() error {
				return countProfiles(ctx, store, log, stats)
			})
		})
	}

	if hasEmbeddings && opts.Embedder != nil {
		g.Go(func() error {
			defer close(embeddingsDone)
			return runTask(log, opts.Recorder, TaskEmbeddings, func() error {
				return Backfill(ctx, store, opts.Embedder, batchSize, log, stats)
			})
		})
	} else {
		if hasEmbeddings {
			log.Info("Embedding backfill skipped: embedding gateway not configured")
		}
		close(embeddingsDone)
	}

	if hasIndex && opts.Index != nil {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return fmt.Errorf("catalog index canceled while waiting for embeddings: %w", ctx.Err())
			case <-embeddingsDone:
			}
			return runTask(log, opts.Recorder, TaskCatalogIndex, func() error {
				if err := opts.Index.Reload(ctx); err != nil {
					return err
				}
				stats.Indexed.Store(int64(opts.Index.Size()))
				return nil
			})
		})
	}

	err := g.Wait()

	duration := time.Since(startTime)
	if opts.Recorder != nil {
		opts.Recorder.RecordWarmupDuration(duration.Seconds())
	}
	log.WithField("duration", duration).
		WithField("embedded", stats.Embedded.Load()).
		WithField("indexed", stats.Indexed.Load()).
		WithField("students", stats.Students.Load()).
		WithField("missing_embeddings", stats.Unavailable.Load()).
		Info("Warmup complete")

	if err != nil {
		log.WithError(err).Warn("Some warmup tasks failed")
		return stats, err
	}
	return stats, nil
}

func runTask(log *logger.Logger, rec Recorder, name string, fn func() error) error {
	err := fn()
	status := "success"
	if err != nil {
		status = "error"
		log.WithError(err).WithField("task", name).Error("Warmup task failed")
	}
	if rec != nil {
		rec.RecordWarmupTask(name, status)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Backfill embeds every course that has no vector yet, batchSize courses
// per request. It stops when nothing is missing, or when a batch makes no
// progress, so a course the gateway cannot embed never loops forever.
func Backfill(ctx context.Context, store Store, embedder Embedder, batchSize int, log *logger.Logger, stats *Stats) error {
	missing, err := store.CountCoursesMissingEmbedding(ctx)
	if err != nil {
		return fmt.Errorf("count missing embeddings: %w", err)
	}
	if missing == 0 {
		log.Debug("All courses already embedded")
		return nil
	}
	log.WithField("courses", missing).WithField("batch_size", batchSize).Info("Starting embedding backfill")

	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("backfill canceled: %w", err)
		}

		courses, err := store.ListCoursesMissingEmbedding(ctx, batchSize)
		if err != nil {
			return fmt.Errorf("list courses: %w", err)
		}
		if len(courses) == 0 {
			break
		}

		texts := make([]string, len(courses))
		for i := range courses {
			texts[i] = EmbeddingText(&courses[i])
		}
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			errs = append(errs, fmt.Errorf("embed batch starting at %s: %w", courses[0].CourseID, err))
			break
		}

		updates := make(map[string][]float32, len(courses))
		for i, v := range vectors {
			if i < len(courses) && len(v) > 0 {
				updates[courses[i].CourseID] = v
			}
		}
		if len(updates) == 0 {
			errs = append(errs, fmt.Errorf("gateway returned no usable vectors for batch starting at %s", courses[0].CourseID))
			break
		}
		if err := store.UpdateCourseEmbeddings(ctx, updates); err != nil {
			return fmt.Errorf("save embeddings: %w", err)
		}
		stats.Embedded.Add(int64(len(updates)))

		log.WithField("progress", fmt.Sprintf("%d/%d", stats.Embedded.Load(), missing)).
			Debug("Embedding backfill progress")

		if len(updates) < len(courses) {
			errs = append(errs, fmt.Errorf("%d courses in batch starting at %s got no vector",
				len(courses)-len(updates), courses[0].CourseID))
			break
		}
	}

	if remaining, err := store.CountCoursesMissingEmbedding(ctx); err == nil {
		stats.Unavailable.Store(int64(remaining))
	}
	return errors.Join(errs...)
}

func countProfiles(ctx context.Context, store Store, log *logger.Logger, stats *Stats) error {
	n, err := store.CountStudents(ctx)
	if err != nil {
		return fmt.Errorf("count students: %w", err)
	}
	stats.Students.Store(int64(n))
	if n == 0 {
		log.Warn("No student profiles loaded; every recommendation will be empty until profiles are ingested")
	}
	return nil
}

// EmbeddingText is the document embedded for a course.
func EmbeddingText(c *storage.Course) string {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = c.CourseName
	}
	return fmt.Sprintf("Title: %s. Description: %s.", title, strings.TrimSpace(c.Description))
}

// ParseTasks converts a comma-separated string to a task list.
func ParseTasks(tasks string) []string {
	if tasks == "" {
		return []string{}
	}

	var result []string
	for _, t := range strings.Split(tasks, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
