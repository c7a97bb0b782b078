package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/phrazzld/codescope-api/internal/analysis"
	"github.com/phrazzld/codescope-api/internal/api"
	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/events"
	"github.com/phrazzld/codescope-api/internal/generation"
	"github.com/phrazzld/codescope-api/internal/metrics"
	"github.com/phrazzld/codescope-api/internal/platform/gemini"
	"github.com/phrazzld/codescope-api/internal/platform/gitfetch"
	"github.com/phrazzld/codescope-api/internal/platform/natsqueue"
	"github.com/phrazzld/codescope-api/internal/platform/ollama"
	"github.com/phrazzld/codescope-api/internal/platform/sqlstore"
	"github.com/phrazzld/codescope-api/internal/report"
	"github.com/phrazzld/codescope-api/internal/service/auth"
	"github.com/phrazzld/codescope-api/internal/store"
	"github.com/phrazzld/codescope-api/internal/task"
	"golang.org/x/sync/errgroup"
)

// retentionInterval is how often expired reports are purged.
const retentionInterval = time.Hour

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger     *slog.Logger
	db         *sqlstore.DB
	natsServer *server.Server

	// Stores
	userStore   store.UserStore
	taskStore   task.Store
	reportStore store.ReportStore

	// Work queue and its depth for the metrics gauge
	queue      task.Queue
	queueDepth func(ctx context.Context) (int, error)

	// Service interfaces
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	generator        *generation.Retrying
	catalog          *analysis.Catalog
	reports          *report.Service

	// Event system
	emitter *events.Bus
	broker  *events.Broker
	metrics *metrics.Collector

	// Task handling
	coordinator *task.Coordinator
	runner      *task.Runner
	sweeper     *task.Sweeper
}

// newApplication creates a new application instance with all dependencies
// initialized. Nothing is started; call serve to run components.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{
		config: cfg,
		logger: logger,
	}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	if err := app.openStores(ctx); err != nil {
		return nil, err
	}
	if err := app.openQueue(ctx); err != nil {
		return nil, err
	}

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)
	app.passwordVerifier = auth.NewBcryptVerifier()

	if err := app.setupGenerator(ctx); err != nil {
		return nil, err
	}

	app.catalog, err = analysis.NewCatalog(cfg.LLM.PromptsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt profiles: %w", err)
	}

	fetcher, err := gitfetch.New(gitfetch.ConfigFrom(cfg.Fetch), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository fetcher: %w", err)
	}

	app.reports = report.NewService(app.reportStore, logger)

	// Event fan-out: stream subscribers and metrics
	app.emitter = events.NewBus(logger)
	app.broker = events.NewBroker(16)
	app.metrics = metrics.NewCollector()
	app.emitter.Subscribe(app.broker)
	app.emitter.Subscribe(app.metrics)
	app.metrics.RegisterQueueDepth(func() float64 {
		depthCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := app.queueDepth(depthCtx)
		if err != nil {
			return 0
		}
		return float64(n)
	})

	app.coordinator = task.NewCoordinator(app.taskStore, app.queue, task.InputPolicy{
		Profiles:      app.catalog,
		AllowedModels: cfg.LLM.AllowedModels,
	}, app.emitter, logger)

	analyzer := analysis.NewAnalyzer(app.generator, app.catalog, analysis.ConfigFrom(cfg.LLM), logger)
	app.runner = task.NewRunner(app.taskStore, app.queue, task.Stages{
		Fetcher:  fetcher,
		Analyzer: analyzer,
		Reporter: app.reports,
	}, task.RunnerConfig{
		WorkerCount: cfg.Task.WorkerCount,
		MaxAttempts: cfg.Task.MaxAttempts,
		Backoff: task.Backoff{
			Base: config.Seconds(cfg.Task.BackoffBaseSeconds),
			Max:  config.Seconds(cfg.Task.BackoffMaxSeconds),
		},
		HeartbeatInterval: config.Seconds(cfg.Task.HeartbeatIntervalSeconds),
		FetchTimeout:      config.Seconds(cfg.Task.FetchTimeoutSeconds),
		AnalysisTimeout:   config.Seconds(cfg.Task.AnalysisTimeoutSeconds),
	}, app.emitter, logger)

	app.sweeper = task.NewSweeper(app.taskStore, app.queue, task.SweeperConfig{
		Interval:    config.Seconds(cfg.Task.SweepIntervalSeconds),
		StaleAfter:  config.Seconds(cfg.Task.StaleAfterSeconds),
		MaxAttempts: cfg.Task.MaxAttempts,
	}, app.emitter, logger)

	logger.Info("Application initialized successfully")
	return app, nil
}

// openStores connects the database, applies migrations when configured and
// builds the stores. The memory driver keeps tasks in process and the rest in
// an in-memory SQLite database.
func (app *application) openStores(ctx context.Context) error {
	dbCfg := app.config.Database
	memory := dbCfg.Driver == "memory"
	if memory {
		dbCfg.Driver = "sqlite"
		dbCfg.URL = ":memory:"
		dbCfg.AutoMigrate = true
	}

	db, err := sqlstore.Open(ctx, dbCfg, app.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	if dbCfg.AutoMigrate {
		if err := sqlstore.Migrate(ctx, db, sqlstore.MigrateUp, app.logger); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	app.userStore = sqlstore.NewUserStore(db, app.config.Auth.BCryptCost)
	app.reportStore = sqlstore.NewReportStore(db)
	if memory {
		app.taskStore = task.NewMemoryStore()
	} else {
		app.taskStore = sqlstore.NewTaskStore(db)
	}
	return nil
}

// openQueue connects the configured work queue, starting an embedded NATS
// server first when asked to.
func (app *application) openQueue(ctx context.Context) error {
	qCfg := app.config.Queue
	if qCfg.Backend != "nats" {
		q := task.NewMemoryQueue(app.config.Task.QueueSize, app.logger)
		app.queue = q
		app.queueDepth = func(context.Context) (int, error) { return q.Len(), nil }
		return nil
	}

	url := qCfg.NATSURL
	if qCfg.Embedded {
		ns, err := natsqueue.StartEmbedded(qCfg.StoreDir)
		if err != nil {
			return err
		}
		app.natsServer = ns
		url = ns.ClientURL()
		app.logger.Info("embedded NATS server started", "url", url)
	}

	q, err := natsqueue.Connect(ctx, url, natsqueue.ConfigFrom(qCfg), app.logger)
	if err != nil {
		return err
	}
	app.queue = q
	app.queueDepth = func(ctx context.Context) (int, error) {
		n, err := q.Pending(ctx)
		return int(n), err
	}
	return nil
}

func (app *application) setupGenerator(ctx context.Context) error {
	var (
		next generation.Generator
		err  error
	)
	cfg := app.config.LLM
	genLogger := app.logger.With("component", "llm_generator")

	switch cfg.Provider {
	case "ollama":
		next, err = ollama.NewGenerator(cfg, &http.Client{Timeout: config.Seconds(app.config.Task.AnalysisTimeoutSeconds)}, genLogger)
	default:
		next, err = gemini.NewGenerator(ctx, cfg, genLogger)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize LLM generator: %w", err)
	}

	app.generator = generation.NewRetrying(next, generation.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  config.Seconds(cfg.RetryDelaySeconds),
	}, genLogger)
	app.logger.Info("LLM generator initialized successfully", "provider", cfg.Provider)
	return nil
}

// handler builds the HTTP API.
func (app *application) handler() http.Handler {
	return api.NewRouter(api.RouterDeps{
		Logger:           app.logger,
		JWTService:       app.jwtService,
		PasswordVerifier: app.passwordVerifier,
		UserStore:        app.userStore,
		Tasks:            app.coordinator,
		Reports:          app.reports,
		Events:           app.broker,
		Metrics:          app.metrics,
		Health: map[string]api.HealthCheck{
			"database": func(ctx context.Context) error { return app.db.PingContext(ctx) },
			"queue": func(ctx context.Context) error {
				_, err := app.queueDepth(ctx)
				return err
			},
		},
	})
}

// runOptions selects which components serve starts.
type runOptions struct {
	api     bool
	workers bool
}

// serve runs the selected components until ctx is cancelled or one of them fails.
func (app *application) serve(ctx context.Context, opts runOptions) error {
	g, gctx := errgroup.WithContext(ctx)

	if opts.workers {
		app.runner.Start()
		if err := app.sweeper.Start(gctx); err != nil {
			app.stopWorkers()
			return err
		}
	}

	g.Go(func() error {
		if err := app.catalog.Watch(gctx); err != nil {
			app.logger.Error("prompt profile watcher stopped", "error", err)
		}
		return nil
	})

	if opts.workers && app.config.Task.ReportRetentionDays > 0 {
		retention := time.Duration(app.config.Task.ReportRetentionDays) * 24 * time.Hour
		g.Go(func() error {
			return app.reports.RunRetention(gctx, retention, retentionInterval)
		})
	}

	if opts.api {
		g.Go(func() error {
			return app.startHTTPServer(gctx, app.handler())
		})
	} else {
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	}

	err := g.Wait()
	if opts.workers {
		app.stopWorkers()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (app *application) stopWorkers() {
	app.sweeper.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
	defer cancel()
	if err := app.runner.Stop(stopCtx); err != nil {
		app.logger.Error("task runner did not drain before shutdown", "error", err)
	}
}

func (app *application) shutdownTimeout() time.Duration {
	if d := config.Seconds(app.config.Server.ShutdownTimeoutSeconds); d > 0 {
		return d
	}
	return 10 * time.Second
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.queue != nil {
		if err := app.queue.Close(); err != nil {
			app.logger.Error("Error closing work queue", "error", err)
		}
	}

	if app.natsServer != nil {
		app.natsServer.Shutdown()
		app.natsServer.WaitForShutdown()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
