package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"StandardsScanner/internal/config"
	"StandardsScanner/internal/infrastructure/browser"
	"StandardsScanner/internal/infrastructure/feed"
	"StandardsScanner/internal/infrastructure/parser"
	"StandardsScanner/internal/infrastructure/scheduler"
	"StandardsScanner/internal/infrastructure/storage"
	"StandardsScanner/internal/infrastructure/telegram"
	"StandardsScanner/internal/logging"
	"StandardsScanner/internal/ports"
	"StandardsScanner/internal/scanner"
	"StandardsScanner/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	repo     *storage.PostgresRepository
	pipeline *usecase.Pipeline
}

// New builds a runnable application instance. The database is opened lazily
// by database/sql; the schema is ensured in Run.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	restrictions, err := cfg.Restrictions.Domain()
	if err != nil {
		return nil, fmt.Errorf("restrictions: %w", err)
	}

	client := &http.Client{Timeout: cfg.Browser.Timeout}
	session := browser.NewSession(client, browser.Options{
		UserAgent: cfg.Browser.UserAgent,
		Settle:    cfg.Browser.Settle,
	}, baseLogger.With("component", "browser"))

	registry := scanner.NewRegistry()
	registry.Register(parser.NewISOFeedScanner(
		feed.NewReader(client, baseLogger.With("component", "feed")),
		parser.NewDetailEnricher(session, baseLogger.With("component", "enricher")),
		baseLogger.With("component", "scanner.iso-rss"),
	))
	registry.Register(parser.NewISOCatalogScanner(session, baseLogger.With("component", "scanner.iso-ics")))

	source := parser.NewStrategySource(registry, cfg.Sites, restrictions.MaximumMaterials, baseLogger.With("component", "source"))

	application := &Application{cfg: cfg, logger: baseLogger}

	var repository ports.DocumentRepository
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		application.db = db
		application.repo = storage.NewPostgresRepository(db, "")
		repository = application.repo
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.APIURL, tg.BotToken, tg.ChatID, nil)
	}

	application.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:       source,
		Repository:   repository,
		Notifier:     notifier,
		Restrictions: restrictions,
		Logger:       baseLogger.With("component", "pipeline"),
	})

	return application, nil
}

// Run executes a single pass when no cron expression is configured;
// otherwise it schedules the pipeline and blocks until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if a.pipeline == nil {
		return nil
	}

	if a.repo != nil {
		if err := a.repo.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	if a.cfg.Scheduler.CronExpression == "" {
		now := time.Now().In(a.cfg.Scheduler.Location())
		_, err := a.pipeline.Run(ctx, now)
		return err
	}

	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(), a.logger.With("component", "cron"))
	sched := usecase.NewScheduler(driver, a.pipeline, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "timezone", a.cfg.Scheduler.Location().String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Close releases the database handle.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
