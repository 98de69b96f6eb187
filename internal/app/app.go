package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Liyracat/tool-rss-reader/internal/config"
	"github.com/Liyracat/tool-rss-reader/internal/infrastructure/fetch"
	"github.com/Liyracat/tool-rss-reader/internal/infrastructure/note"
	"github.com/Liyracat/tool-rss-reader/internal/infrastructure/scheduler"
	"github.com/Liyracat/tool-rss-reader/internal/infrastructure/storage"
	"github.com/Liyracat/tool-rss-reader/internal/logging"
	"github.com/Liyracat/tool-rss-reader/internal/runlock"
	"github.com/Liyracat/tool-rss-reader/internal/scraper"
	"github.com/Liyracat/tool-rss-reader/internal/usecase"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	repo     *storage.SQLiteRepository
	lock     *runlock.FileLock
	pipeline *usecase.Pipeline
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	repo, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	feedClient := fetch.New(fetch.Options{
		Timeout:   time.Duration(cfg.Fetcher.TimeoutSeconds) * time.Second,
		UserAgent: cfg.Fetcher.UserAgent,
	})
	articleClient := fetch.New(fetch.Options{
		Timeout:   time.Duration(cfg.Metrics.TimeoutSeconds) * time.Second,
		UserAgent: cfg.Metrics.UserAgent,
	})

	registry := scraper.NewRegistry()
	registry.Register(note.NewExtractor(articleClient, note.Options{
		Prefix:          cfg.Metrics.Prefix,
		PaywallSelector: cfg.Metrics.PaywallSelector,
		BodySelector:    cfg.Metrics.BodySelector,
	}))

	autoBlock := usecase.DefaultAutoBlockPolicy()
	if cfg.AutoBlock.Enabled != nil {
		autoBlock.Enabled = *cfg.AutoBlock.Enabled
	}
	if cfg.AutoBlock.MinCharacterCount > 0 {
		autoBlock.MinCharacterCount = cfg.AutoBlock.MinCharacterCount
	}
	if cfg.AutoBlock.LinksPerParagraph > 0 {
		autoBlock.LinksPerParagraph = cfg.AutoBlock.LinksPerParagraph
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:          repo,
		Items:            repo,
		Rules:            repo,
		Fetcher:          feedClient,
		Scrapers:         registry,
		Clock:            systemClock{},
		Logger:           baseLogger.With("component", "pipeline"),
		MetricsBatchSize: cfg.Metrics.BatchSize,
		MetricsDelay:     time.Duration(cfg.Metrics.DelaySeconds) * time.Second,
		Retention:        time.Duration(cfg.Retention.IgnoredHours) * time.Hour,
		AutoBlock:        autoBlock,
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger.With("component", "app"),
		repo:     repo,
		lock:     runlock.New(cfg.Lock.Path),
		pipeline: pipeline,
	}, nil
}

// Close releases the database handle.
func (a *Application) Close() error {
	return a.repo.Close()
}

// RunOnce executes a single guarded pipeline pass and returns the
// process exit code. A held lock means another run is in flight; that
// is a clean exit, not an error.
func (a *Application) RunOnce(ctx context.Context) int {
	acquired, err := a.lock.TryAcquire()
	if err != nil {
		a.logger.Error("cannot acquire run lock", "path", a.cfg.Lock.Path, "error", err)
		return 1
	}
	if !acquired {
		a.logger.Info("lock exists, exiting", "path", a.cfg.Lock.Path)
		return 0
	}
	defer func() {
		if err := a.lock.Release(); err != nil {
			a.logger.Error("cannot release run lock", "path", a.cfg.Lock.Path, "error", err)
		}
	}()

	report := a.pipeline.Run(ctx)
	a.logger.Info("run finished",
		"attempted", report.Attempted,
		"failed", report.Failed,
		"inserted", report.Inserted,
		"duration", time.Since(report.StartedAt).String(),
	)
	if report.Err != nil {
		a.logger.Error("run aborted", "error", report.Err)
	}
	return report.ExitCode()
}

// RunScheduled repeats RunOnce on the configured interval until the
// context is cancelled.
func (a *Application) RunScheduled(ctx context.Context) int {
	driver := scheduler.NewIntervalScheduler(time.Duration(a.cfg.Scheduler.IntervalMinutes) * time.Minute)
	sched := usecase.NewScheduler(driver, func(runCtx context.Context) {
		a.RunOnce(runCtx)
	})

	if err := sched.Start(ctx); err != nil {
		a.logger.Error("scheduler start failed", "error", err)
		return 1
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		a.logger.Error("scheduler stop failed", "error", err)
	}
	return 0
}
