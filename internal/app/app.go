// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gcsapi "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/acquire"
	"github.com/JakeFAU/sitelens/internal/api"
	"github.com/JakeFAU/sitelens/internal/browser"
	"github.com/JakeFAU/sitelens/internal/budget"
	"github.com/JakeFAU/sitelens/internal/clock/system"
	"github.com/JakeFAU/sitelens/internal/config"
	"github.com/JakeFAU/sitelens/internal/dispatcher"
	"github.com/JakeFAU/sitelens/internal/download"
	"github.com/JakeFAU/sitelens/internal/id/uuid"
	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/pipeline"
	"github.com/JakeFAU/sitelens/internal/progress"
	"github.com/JakeFAU/sitelens/internal/progress/sinks"
	pubmem "github.com/JakeFAU/sitelens/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/sitelens/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/sitelens/internal/queue/memory"
	"github.com/JakeFAU/sitelens/internal/scrape"
	"github.com/JakeFAU/sitelens/internal/storage"
	"github.com/JakeFAU/sitelens/internal/storage/gcs"
	"github.com/JakeFAU/sitelens/internal/storage/local"
	"github.com/JakeFAU/sitelens/internal/storage/memory"
	"github.com/JakeFAU/sitelens/internal/storage/postgres"
	"github.com/JakeFAU/sitelens/internal/worker"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and handed to the CLI commands.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Stores       storage.Tiered
	Objects      scrape.ObjectStore
	Hub          *progress.Hub
	Orchestrator *pipeline.Orchestrator
	Queue        *queueMemory.Queue
	Dispatcher   *dispatcher.Dispatcher
	Server       *api.Server

	clock   scrape.Clock
	ids     scrape.IDGenerator
	pool    *pgxpool.Pool
	closers []func(context.Context) error
}

// New creates and initializes an App from cfg. It fails fast if any critical
// service cannot be initialized; everything opened so far is released first.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config: cfg,
		Logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	logger.Info("Initializing application services...")
	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	if err := a.initObjects(ctx); err != nil {
		return nil, err
	}
	if err := a.initProgress(); err != nil {
		return nil, err
	}
	publisher, err := a.initPublisher(ctx)
	if err != nil {
		return nil, err
	}
	selector, err := a.initAcquisition()
	if err != nil {
		return nil, err
	}

	downloader := download.New(download.Config{
		BatchSize: cfg.Downloader.BatchSize,
		Timeout:   cfg.Downloader.Timeout,
		UserAgent: cfg.Scraper.UserAgent,
		MaxBytes:  cfg.Downloader.MaxBytes,
		Transport: acquire.NewTransport(cfg.Scraper.ImpersonateTLS),
	}, a.Objects, logger.Named("download"))

	a.Orchestrator, err = pipeline.New(pipeline.Deps{
		Jobs:       a.Stores.Jobs,
		Objects:    a.Objects,
		Acquirer:   selector,
		Downloader: downloader,
		Logs:       a.Hub,
		Events:     a.Hub,
		Publisher:  publisher,
		Clock:      a.clock,
	}, pipeline.Config{
		Budget: budget.Config{
			Ceiling:         cfg.Budget.Ceiling,
			ReduceBelow:     cfg.Budget.DownloadReduceBelow,
			SkipBelow:       cfg.Budget.DownloadSkipBelow,
			FullAssetCap:    cfg.Downloader.MaxCandidates,
			ReducedAssetCap: cfg.Budget.ReducedCap,
		},
		AcquireGrace: cfg.Scraper.DeepGrace,
		Topic:        cfg.CompletionTopic(),
	}, logger.Named("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	a.Queue = queueMemory.NewQueue(cfg.Queue.Depth)
	workers := make([]*worker.Worker, 0, cfg.Queue.Workers)
	for i := 0; i < cfg.Queue.Workers; i++ {
		workers = append(workers, worker.New(a.Queue, a.Orchestrator, logger.Named("worker").With(zap.Int("index", i))))
	}
	a.Dispatcher = dispatcher.New(a.Queue, workers, logger.Named("dispatcher"))

	a.Server = api.NewServer(api.Deps{
		Jobs:       a.Stores.Jobs,
		Logs:       a.Stores.Logs,
		Objects:    a.Objects,
		Queue:      a.Dispatcher,
		Runner:     a.Orchestrator,
		Downloader: downloader,
		IDs:        a.ids,
		Clock:      a.clock,
		Ready:      a.Ready,
	}, cfg, logger.Named("api"))

	logger.Info("Application services initialized successfully.",
		zap.String("store_tier", string(a.Stores.Tier)),
		zap.String("browser", cfg.Browser.Source),
		zap.Int("workers", cfg.Queue.Workers),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	cfg := a.Config.Database
	switch cfg.Provider {
	case "", "memory":
		a.Logger.Info("Using in-memory job and log stores. Data is lost on exit.")
		tiered, err := storage.NewTiered(nil, &storage.Clients{Jobs: memory.NewJobStore(), Logs: memory.NewLogStore()})
		if err != nil {
			return fmt.Errorf("init stores: %w", err)
		}
		a.Stores = tiered
		return nil
	case "postgres":
	default:
		return fmt.Errorf("unknown database provider: %s", cfg.Provider)
	}

	var privileged, public *storage.Clients
	if cfg.PrivilegedDSN != "" {
		pool, err := postgres.Connect(ctx, a.poolConfig(cfg.PrivilegedDSN))
		if err != nil {
			a.Logger.Warn("Privileged database unavailable, falling back to public credentials", zap.Error(err))
		} else {
			a.pool = pool
			if privileged, err = postgresClients(pool); err != nil {
				pool.Close()
				return err
			}
		}
	}
	if privileged == nil {
		pool, err := postgres.Connect(ctx, a.poolConfig(cfg.DSN))
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		a.pool = pool
		if public, err = postgresClients(pool); err != nil {
			pool.Close()
			return err
		}
	}

	tiered, err := storage.NewTiered(privileged, public)
	if err != nil {
		a.pool.Close()
		return fmt.Errorf("init stores: %w", err)
	}
	a.Stores = tiered
	a.closers = append(a.closers, func(context.Context) error {
		a.pool.Close()
		return nil
	})
	a.Logger.Info("Connected to PostgreSQL", zap.String("tier", string(tiered.Tier)))

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, a.pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}
	return nil
}

func (a *App) poolConfig(dsn string) postgres.PoolConfig {
	return postgres.PoolConfig{
		DSN:             dsn,
		MaxConns:        a.Config.Database.MaxConns,
		MaxConnLifetime: a.Config.Database.MaxConnLifetime,
	}
}

func postgresClients(pool *pgxpool.Pool) (*storage.Clients, error) {
	jobs, err := postgres.NewJobStore(pool)
	if err != nil {
		return nil, fmt.Errorf("init job store: %w", err)
	}
	logs, err := postgres.NewLogStore(pool)
	if err != nil {
		return nil, fmt.Errorf("init log store: %w", err)
	}
	return &storage.Clients{Jobs: jobs, Logs: logs}, nil
}

func (a *App) initObjects(ctx context.Context) error {
	cfg := a.Config.Storage
	switch cfg.Provider {
	case "", "memory":
		a.Logger.Info("Using in-memory object store. Artifacts are lost on exit.")
		a.Objects = memory.NewBlobStore()
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir, PublicBaseURL: cfg.PublicBaseURL})
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.Logger.Info("Using local object store", zap.String("base_dir", cfg.BaseDir))
		a.Objects = store
	case "gcs":
		client, err := gcsapi.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix, PublicBaseURL: cfg.PublicBaseURL})
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.Logger.Info("Using GCS object store", zap.String("bucket", cfg.Bucket))
		a.Objects = store
	default:
		return fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
	return nil
}

func (a *App) initProgress() error {
	hubSinks := []progress.Sink{
		sinks.NewLogSink(a.Logger.Named("progress")),
		sinks.NewStoreSink(a.Stores.Logs, a.Logger.Named("progress")),
	}
	if a.Config.Metrics.Enabled {
		promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("init prometheus sink: %w", err)
		}
		hubSinks = append(hubSinks, promSink)
	}
	a.Hub = progress.NewHub(progress.Config{
		BufferSize:     a.Config.Progress.BufferSize,
		MaxBatchEvents: a.Config.Progress.BatchSize,
		MaxBatchWait:   a.Config.Progress.BatchWait,
		Clock:          a.clock,
		Logger:         a.Logger.Named("progress"),
	}, hubSinks...)
	a.closers = append(a.closers, a.Hub.Close)
	return nil
}

func (a *App) initPublisher(ctx context.Context) (scrape.Publisher, error) {
	if a.Config.CompletionTopic() == "" {
		return pubmem.New(), nil
	}
	pub, err := pubsubpublisher.Dial(ctx, a.Config.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
	a.Logger.Info("Publishing completions to Pub/Sub", zap.String("topic", a.Config.CompletionTopic()))
	return pub, nil
}

func (a *App) initAcquisition() (*acquire.Selector, error) {
	cfg := a.Config
	transport := acquire.NewTransport(cfg.Scraper.ImpersonateTLS)
	fast := acquire.NewFast(acquire.FastConfig{
		UserAgent:    cfg.Scraper.UserAgent,
		Timeout:      cfg.Scraper.FastTimeout,
		MaxBodyBytes: cfg.Scraper.MaxMarkupBytes,
		Transport:    transport,
	})
	plain := acquire.NewPlain(transport, cfg.Scraper.FastTimeout, int64(cfg.Scraper.MaxMarkupBytes))

	source, err := browser.ParseSource(cfg.Browser.Source)
	if err != nil {
		return nil, fmt.Errorf("init browser: %w", err)
	}
	var deep acquire.Strategy
	if source != browser.SourceNone {
		provider, err := browser.NewProvider(browser.Config{
			Source:        source,
			WSEndpoint:    cfg.Browser.WSEndpoint,
			ExecPath:      cfg.Browser.ExecPath,
			DownloadDir:   cfg.Browser.DownloadDir,
			MaxParallel:   cfg.Browser.MaxParallel,
			LaunchTimeout: cfg.Browser.LaunchTimeout,
			NoSandbox:     cfg.Browser.NoSandbox,
		}, a.Logger.Named("browser"))
		if err != nil {
			return nil, fmt.Errorf("init browser: %w", err)
		}
		deep = acquire.NewDeep(acquire.DeepConfig{
			UserAgent:         cfg.Scraper.UserAgent,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			ScrollStep:        cfg.Browser.ScrollStep,
			ScrollInterval:    cfg.Browser.ScrollInterval,
			MaxScroll:         cfg.Browser.MaxScroll,
			SettleDelay:       cfg.Browser.Settle,
			SampleLimit:       cfg.Browser.SampleLimit,
			Stealth:           cfg.Browser.Stealth,
		}, provider, a.Logger.Named("deep"))
	} else {
		a.Logger.Info("No browser source configured; deep scrapes fall back to the static fetch")
	}

	detector := acquire.NewHeuristic(cfg.Scraper.PromoteBelow, cfg.Scraper.MinVisibleText)
	return acquire.NewSelector(fast, deep, plain, detector, acquire.SelectorConfig{
		MinDeepBudget: cfg.Scraper.MinDeepBudget,
		DeepGrace:     cfg.Scraper.DeepGrace,
	}, a.Logger.Named("acquire")), nil
}

// Ready reports whether the backing stores are reachable.
func (a *App) Ready(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Serve runs the worker pool and the HTTP server until ctx is cancelled, then
// shuts both down gracefully.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.Logger.Info("dispatcher started", zap.Int("workers", a.Config.Queue.Workers))
		if err := a.Dispatcher.Run(ctx); err != nil {
			a.Logger.Error("dispatcher stopped", zap.Error(err))
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server started", zap.Int("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
			return
		}
		serveErr <- nil
	}()

	<-ctx.Done()
	a.Logger.Info("shutdown initiated")

	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), timeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server shutdown error", zap.Error(err))
	}
	a.Queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.Logger.Warn("workers still busy at shutdown deadline")
	}

	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Scrape creates a job for rawURL and runs it synchronously.
func (a *App) Scrape(ctx context.Context, rawURL string, mode scrape.Mode) (string, pipeline.Outcome, error) {
	target, err := targetURL(rawURL)
	if err != nil {
		return "", pipeline.Outcome{}, err
	}
	if mode == "" {
		mode = a.Config.Mode()
	}
	if !mode.Valid() {
		return "", pipeline.Outcome{}, fmt.Errorf("unknown mode %q", mode)
	}
	jobID, err := a.ids.NewID()
	if err != nil {
		return "", pipeline.Outcome{}, fmt.Errorf("generate job id: %w", err)
	}
	now := a.clock.Now()
	job := scrape.Job{ID: jobID, URL: target, Mode: mode, Status: scrape.JobStatusPending, CreatedAt: now}
	if err := a.Stores.Jobs.CreateJob(ctx, job); err != nil {
		return "", pipeline.Outcome{}, fmt.Errorf("create job: %w", err)
	}
	out, err := a.Orchestrator.Run(ctx, scrape.QueueItem{JobID: jobID, URL: target, Mode: mode, Submitted: now.Unix()})
	return jobID, out, err
}

func targetURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid url %q", raw)
	}
	return u.String(), nil
}

// Close gracefully shuts down all services in the App container, newest first.
func (a *App) Close(ctx context.Context) {
	a.Logger.Info("Shutting down application services...")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Warn("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}
