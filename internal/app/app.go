// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/course-advisor-go/internal/advisor"
	"github.com/garyellow/course-advisor-go/internal/buildinfo"
	"github.com/garyellow/course-advisor-go/internal/config"
	"github.com/garyellow/course-advisor-go/internal/genai"
	"github.com/garyellow/course-advisor-go/internal/logger"
	"github.com/garyellow/course-advisor-go/internal/metrics"
	"github.com/garyellow/course-advisor-go/internal/r2client"
	"github.com/garyellow/course-advisor-go/internal/ratelimit"
	"github.com/garyellow/course-advisor-go/internal/retrieval"
	"github.com/garyellow/course-advisor-go/internal/sentry"
	"github.com/garyellow/course-advisor-go/internal/snapshot"
	"github.com/garyellow/course-advisor-go/internal/storage"
	"github.com/garyellow/course-advisor-go/internal/warmup"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	db             *storage.DB
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	server         *http.Server
	generator      *genai.FallbackGenerator // nil when no LLM provider is configured
	embedder       *genai.EmbeddingClient
	catalog        *retrieval.CatalogSearcher
	advisor        *advisor.Advisor
	userLimiter    *ratelimit.KeyedLimiter
	snapshots      *snapshot.Manager      // nil when R2 is disabled
	readinessState *warmup.ReadinessState // Tracks the startup backfill for readiness
	wg             sync.WaitGroup         // Track background goroutines for graceful shutdown
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	opts := logger.Options{}
	if cfg.BetterStack.Enabled {
		opts.BetterStackToken = cfg.BetterStack.Token
		opts.BetterStackEndpoint = cfg.BetterStack.Endpoint
	}
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, opts)
	log = log.WithField("service", cfg.ServerName).WithField("instance_id", cfg.InstanceID)

	// Package-level slog.*Context calls pick up user/session/request ids
	// through the ContextHandler.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.Version).Info("Initializing application...")
	if opts.BetterStackToken != "" {
		log.WithField("endpoint", opts.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if cfg.Sentry.Enabled {
		release := cfg.Sentry.Release
		if release == "" {
			release = buildinfo.Version
		}
		if err := sentry.Initialize(sentry.Config{
			Token:       cfg.Sentry.Token,
			Host:        cfg.Sentry.Host,
			Environment: cfg.Sentry.Environment,
			Release:     release,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			log.WithError(err).Warn("Sentry initialization failed")
		} else if sentry.IsEnabled() {
			log.WithField("environment", cfg.Sentry.Environment).Info("Sentry error reporting enabled")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	// Initialize global metrics for genai package
	metrics.InitGlobal(m)

	snapshots, err := setupSnapshots(ctx, cfg, m, log)
	if err != nil {
		log.WithError(err).Warn("Snapshot backups disabled")
	}
	if snapshots != nil {
		if restored, err := snapshots.Restore(ctx, cfg.SQLitePath()); err != nil {
			log.WithError(err).Warn("Snapshot restore failed, starting with a fresh database")
		} else if restored {
			log.WithField("path", cfg.SQLitePath()).Info("Database restored from snapshot")
		}
	}

	db, err := storage.New(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	generator, err := genai.NewGenerator(ctx, buildLLMConfig(cfg))
	if err != nil {
		log.WithError(err).Warn("LLM generator initialization failed")
	}
	// A nil *FallbackGenerator must stay a nil interface so the pipeline
	// takes its fallback paths.
	var gen genai.TextGenerator
	if generator != nil {
		gen = generator
		log.WithField("chain_size", generator.Size()).Info("LLM features enabled")
	} else {
		log.Warn("No LLM provider configured; every turn will ask for clarification")
	}

	embedder := genai.NewEmbeddingClient(genai.EmbeddingConfig{
		URL:               cfg.EmbeddingURL,
		Dimensions:        cfg.EmbeddingDimensions,
		RequestsPerMinute: cfg.EmbeddingRPM,
		Timeout:           config.EmbeddingRequest,
		InitialDelay:      config.EmbeddingRetryInitial,
		MaxDelay:          config.EmbeddingRetryMax,
		Recorder:          m,
	})

	retriever := retrieval.NewRetriever(embedder, db, m, cfg.RetrievalTopN)
	catalog := retrieval.NewCatalogSearcher(db, embedder)

	sessions := advisor.NewRegistry(advisor.RegistryConfig{
		Store:      db,
		IdleTTL:    cfg.SessionIdleTTL,
		MaxEntries: cfg.SessionMaxEntries,
		Recorder:   m,
	})
	orchestrator := advisor.NewOrchestrator(advisor.OrchestratorConfig{
		Classifier:     advisor.NewClassifier(gen),
		Responders:     advisor.NewResponders(gen, retriever, cfg.RetrievalTopN),
		Supervisor:     advisor.NewSupervisor(gen),
		Titles:         advisor.NewTitleGenerator(gen),
		Store:          db,
		Recorder:       m,
		ReportError:    sentry.CaptureExceptionWithContext,
		PersistTimeout: config.TurnPersist,
	})

	userLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "user",
		Burst:         cfg.UserRateBurst,
		RefillRate:    cfg.UserRateRefill,
		DailyLimit:    cfg.UserRateDaily,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Recorder:      m,
	})

	app := &Application{
		cfg:            cfg,
		logger:         log,
		db:             db,
		metrics:        m,
		registry:       registry,
		generator:      generator,
		embedder:       embedder,
		catalog:        catalog,
		advisor:        advisor.New(sessions, orchestrator, db, cfg.TurnTimeout),
		userLimiter:    userLimiter,
		snapshots:      snapshots,
		readinessState: warmup.NewReadinessState(config.WarmupReadinessTimeout),
	}

	gin.SetMode(gin.ReleaseMode)
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.routes(),
		ReadHeaderTimeout: config.HTTPRead,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      config.HTTPWrite,
		IdleTimeout:       config.HTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// routes builds the HTTP router.
func (a *Application) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if sentry.IsEnabled() {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(a.logger))

	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)

	router.POST("/chat", a.readinessMiddleware(), a.handleChat)
	router.GET("/chat/sessions/:user_id", a.handleSessions)
	router.GET("/chat/messages/:session_id", a.handleMessages)

	router.GET("/courses", a.handleListCourses)
	router.GET("/courses/search", a.readinessMiddleware(), a.handleSearchCourses)
	router.GET("/trends/:course_id", a.handleTrends)

	router.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsAuthEnabled, a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	return router
}

// buildLLMConfig maps the application config onto the genai provider chain.
func buildLLMConfig(cfg *config.Config) genai.LLMConfig {
	llmCfg := genai.DefaultLLMConfig()

	llmCfg.Gemini = genai.ProviderConfig{APIKey: cfg.LLM.GeminiAPIKey, Models: cfg.LLM.GeminiModels}
	llmCfg.Groq = genai.ProviderConfig{APIKey: cfg.LLM.GroqAPIKey, Models: cfg.LLM.GroqModels}
	llmCfg.Cerebras = genai.ProviderConfig{APIKey: cfg.LLM.CerebrasAPIKey, Models: cfg.LLM.CerebrasModels}
	llmCfg.OpenAI = genai.ProviderConfig{
		APIKey:   cfg.LLM.OpenAIAPIKey,
		Endpoint: cfg.LLM.OpenAIEndpoint,
		Models:   cfg.LLM.OpenAIModels,
	}

	if cfg.LLM.MaxAttempts > 0 {
		llmCfg.RetryConfig = genai.RetryConfig{
			MaxAttempts:  cfg.LLM.MaxAttempts,
			InitialDelay: cfg.LLM.InitialDelay,
			MaxDelay:     cfg.LLM.MaxDelay,
		}
	}

	if len(cfg.LLM.Providers) > 0 {
		providers := make([]genai.Provider, 0, len(cfg.LLM.Providers))
		for _, p := range cfg.LLM.Providers {
			switch p {
			case "gemini":
				providers = append(providers, genai.ProviderGemini)
			case "groq":
				providers = append(providers, genai.ProviderGroq)
			case "cerebras":
				providers = append(providers, genai.ProviderCerebras)
			case "openai":
				providers = append(providers, genai.ProviderOpenAI)
			default:
				slog.Warn("ignoring unknown provider", "name", p)
			}
		}
		if len(providers) > 0 {
			llmCfg.Providers = providers
		}
	}

	return llmCfg
}

// setupSnapshots returns nil, nil when R2 is disabled.
func setupSnapshots(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (*snapshot.Manager, error) {
	if !cfg.R2.Enabled {
		return nil, nil //nolint:nilnil // snapshots are optional
	}
	client, err := r2client.New(ctx, r2client.Config{
		AccountID:   cfg.R2.AccountID,
		AccessKeyID: cfg.R2.AccessKeyID,
		SecretKey:   cfg.R2.SecretAccessKey,
		BucketName:  cfg.R2.BucketName,
	})
	if err != nil {
		return nil, fmt.Errorf("r2 client: %w", err)
	}
	log.WithField("bucket", cfg.R2.BucketName).
		WithField("key", cfg.R2.SnapshotKey).
		WithField("interval", cfg.R2.SnapshotInterval).
		Info("Snapshot backups enabled")
	return snapshot.New(client, snapshot.Config{
		Key:      cfg.R2.SnapshotKey,
		Interval: cfg.R2.SnapshotInterval,
		TempDir:  cfg.DataDir,
		Recorder: m,
	}), nil
}

// Run starts the HTTP server and background jobs.
//
// Graceful shutdown sequence:
//  1. Receive shutdown signal (SIGINT/SIGTERM)
//  2. Cancel context to stop background jobs
//  3. Wait for background jobs to complete (backfill, janitor, snapshots)
//  4. Close resources in order (HTTP server, LLM clients, database, rate limiter)
//
// Closing the database before the jobs finish fails their in-flight writes.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startBackgroundJobs starts all background goroutines tracked by WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		a.startupWarmup(ctx)
	})
	a.wg.Go(func() {
		a.advisor.Registry().RunJanitor(ctx, config.SessionJanitorInterval)
	})
	a.wg.Go(func() {
		a.updateGaugeMetrics(ctx)
	})
	if a.snapshots != nil {
		a.wg.Go(func() {
			a.snapshots.Run(ctx, a.db, config.SnapshotInitialDelay)
		})
	}
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown stops the HTTP server and closes resources. Call it only after
// the background jobs have returned.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Closing resources...")

	if a.generator != nil {
		if err := a.generator.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "llm_generator").Error("Component close error")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}

	if a.userLimiter != nil {
		a.userLimiter.Stop()
	}

	if sentry.IsEnabled() && !sentry.Flush(5*time.Second) {
		a.logger.Warn("Sentry flush timed out")
	}

	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}

	a.logger.Info("Shutdown complete")
	return nil
}

// startupWarmup embeds courses ingested without vectors, rebuilds the
// catalog index and then marks the service ready, whether or not every
// task succeeded.
func (a *Application) startupWarmup(ctx context.Context) {
	a.logger.Debug("Startup warmup job started")
	defer a.logger.Debug("Startup warmup job stopped")

	warmupCtx, cancel := context.WithTimeout(ctx, config.WarmupBackfill)
	defer cancel()

	stats, err := warmup.Run(warmupCtx, a.db, a.logger.WithModule("warmup"), warmup.Options{
		BatchSize: a.cfg.EmbeddingBatchSize,
		Embedder:  a.embedder,
		Index:     a.catalog,
		Recorder:  a.metrics,
	})

	a.readinessState.MarkReady()
	a.logger.Info("Service marked as ready after startup warmup")

	if err != nil {
		a.logger.WithError(err).Error("Startup warmup failed")
		return
	}
	if stats.Unavailable.Load() > 0 {
		a.logger.WithField("courses", stats.Unavailable.Load()).
			Warn("Courses without embeddings are excluded from retrieval")
	}
}

// updateGaugeMetrics periodically records session and rate limiter gauges.
func (a *Application) updateGaugeMetrics(ctx context.Context) {
	a.logger.Debug("Gauge metrics job started")
	defer a.logger.Debug("Gauge metrics job stopped")

	ticker := time.NewTicker(config.MetricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.recordGaugeMetrics()
		}
	}
}

func (a *Application) recordGaugeMetrics() {
	if a.metrics == nil {
		return
	}
	a.metrics.SetActiveSessions(a.advisor.Registry().Len())
	if a.userLimiter != nil {
		a.metrics.SetRateLimiterUsers("user", a.userLimiter.ActiveCount())
	}
}
