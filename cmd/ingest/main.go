// Package main provides the catalog ingestion tool. It loads the course
// catalog, student profiles, completed courses and enrollment trends from
// JSON exports into the advisor database and embeds the catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/garyellow/course-advisor-go/internal/config"
	"github.com/garyellow/course-advisor-go/internal/genai"
	"github.com/garyellow/course-advisor-go/internal/logger"
	"github.com/garyellow/course-advisor-go/internal/storage"
	"github.com/garyellow/course-advisor-go/internal/warmup"
)

// CLI flags
var (
	catalogFlag   = flag.String("catalog", "", "Course catalog export ({\"courses\": [...]})")
	studentsFlag  = flag.String("students", "", "Student profiles (JSON array)")
	completedFlag = flag.String("completed", "", "Completed courses (JSON array)")
	trendsFlag    = flag.String("trends", "", "Enrollment trends (JSON array)")
	skipEmbedFlag = flag.Bool("skip-embed", false, "Store courses without embedding them; the server backfills on start")
	timeoutFlag   = flag.Duration("timeout", 30*time.Minute, "Overall ingestion timeout")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel).WithModule("ingest")

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	db, err := storage.New(ctx, cfg.SQLitePath())
	if err != nil {
		log.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	start := time.Now()
	if err := run(ctx, db, cfg, log); err != nil {
		log.WithError(err).WithField("duration", time.Since(start)).Error("Ingestion failed")
		_ = db.Close()
		os.Exit(1) //nolint:gocritic // db closed explicitly above
	}
	log.WithField("duration", time.Since(start).Round(time.Millisecond)).Info("Ingestion complete")
}

func run(ctx context.Context, db *storage.DB, cfg *config.Config, log *logger.Logger) error {
	if *catalogFlag == "" && *studentsFlag == "" && *completedFlag == "" && *trendsFlag == "" && *skipEmbedFlag {
		return fmt.Errorf("nothing to do: pass at least one input file")
	}

	if *catalogFlag != "" {
		f, err := os.Open(*catalogFlag)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		courses, skipped, err := parseCatalog(f)
		_ = f.Close()
		if err != nil {
			return err
		}
		if err := db.SaveCoursesBatch(ctx, courses); err != nil {
			return fmt.Errorf("save courses: %w", err)
		}
		log.WithField("courses", len(courses)).WithField("skipped", skipped).Info("Catalog loaded")
	}

	if *studentsFlag != "" {
		students, err := readFile(*studentsFlag, parseStudents)
		if err != nil {
			return err
		}
		if err := db.SaveStudentsBatch(ctx, students); err != nil {
			return fmt.Errorf("save students: %w", err)
		}
		log.WithField("students", len(students)).Info("Student profiles loaded")
	}

	if *completedFlag != "" {
		completed, err := readFile(*completedFlag, parseCompleted)
		if err != nil {
			return err
		}
		if err := db.SaveCompletedCoursesBatch(ctx, completed); err != nil {
			return fmt.Errorf("save completed courses: %w", err)
		}
		log.WithField("records", len(completed)).Info("Completed courses loaded")
	}

	if *trendsFlag != "" {
		trends, err := readFile(*trendsFlag, parseTrends)
		if err != nil {
			return err
		}
		if err := db.SaveCourseTrendsBatch(ctx, trends); err != nil {
			return fmt.Errorf("save trends: %w", err)
		}
		log.WithField("rows", len(trends)).Info("Course trends loaded")
	}

	if *skipEmbedFlag {
		return nil
	}

	embedder := genai.NewEmbeddingClient(genai.EmbeddingConfig{
		URL:               cfg.EmbeddingURL,
		Dimensions:        cfg.EmbeddingDimensions,
		RequestsPerMinute: cfg.EmbeddingRPM,
		Timeout:           config.EmbeddingRequest,
		InitialDelay:      config.EmbeddingRetryInitial,
		MaxDelay:          config.EmbeddingRetryMax,
	})
	stats := &warmup.Stats{}
	err := warmup.Backfill(ctx, db, embedder, cfg.EmbeddingBatchSize, log, stats)
	log.WithField("embedded", stats.Embedded.Load()).
		WithField("missing", stats.Unavailable.Load()).
		Info("Embedding pass finished")
	return err
}
