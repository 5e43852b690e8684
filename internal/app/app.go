// Package app builds the long-lived crawler services from configuration and
// acts as the dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/pharma-listing-crawler/internal/clock/system"
	"github.com/JakeFAU/pharma-listing-crawler/internal/config"
	"github.com/JakeFAU/pharma-listing-crawler/internal/extract"
	"github.com/JakeFAU/pharma-listing-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/pharma-listing-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pharma-listing-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/pharma-listing-crawler/internal/id/uuid"
	"github.com/JakeFAU/pharma-listing-crawler/internal/imagestore"
	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
	"github.com/JakeFAU/pharma-listing-crawler/internal/metrics"
	"github.com/JakeFAU/pharma-listing-crawler/internal/pipeline"
	"github.com/JakeFAU/pharma-listing-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/pharma-listing-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/pharma-listing-crawler/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/pharma-listing-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/pharma-listing-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/pharma-listing-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/pharma-listing-crawler/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/pharma-listing-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/pharma-listing-crawler/internal/telemetry"
)

// ErrImageStatsUnavailable is returned when the image backend cannot report totals.
var ErrImageStatsUnavailable = errors.New("image backend does not report statistics")

type pinger interface {
	Ping(ctx context.Context) error
}

type imageStatser interface {
	Stats(ctx context.Context) (medicine.ImageStats, error)
}

// App contains the crawler's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store        medicine.Store
	pageFetcher  *fetcher.Fetcher
	imageFetcher *fetcher.Fetcher
	headless     *headlessfetcher.Transport
	blobs        imagestore.BlobStore
	images       *imagestore.Store
	publisher    medicine.Publisher
	closers      []func() error
	orchestrator *pipeline.Orchestrator
}

// Build creates the application's dependencies. A store that cannot be
// reached or migrated fails the build.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies",
		zap.String("base_url", cfg.Site.BaseURL),
		zap.String("fetch_mode", cfg.Fetch.Mode),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("images_backend", cfg.Images.Backend),
	)

	if err := a.setupTracing(ctx); err != nil {
		return nil, err
	}
	if err := a.setupStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.setupFetchers()
	if err := a.setupImages(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.setupPipeline(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Store returns the record store.
func (a *App) Store() medicine.Store {
	return a.store
}

// Orchestrator returns the scrape pipeline.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return a.orchestrator
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// CheckStore pings the store when it supports it and reads its statistics.
func (a *App) CheckStore(ctx context.Context) (medicine.Statistics, error) {
	if p, ok := a.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return medicine.Statistics{}, fmt.Errorf("store unreachable: %w", err)
		}
	}
	stats, err := a.store.Statistics(ctx)
	if err != nil {
		return medicine.Statistics{}, fmt.Errorf("store statistics: %w", err)
	}
	return stats, nil
}

// ImageStats reports the totals held by the image backend.
func (a *App) ImageStats(ctx context.Context) (medicine.ImageStats, error) {
	s, ok := a.blobs.(imageStatser)
	if !ok {
		return medicine.ImageStats{}, ErrImageStatsUnavailable
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return medicine.ImageStats{}, fmt.Errorf("image statistics: %w", err)
	}
	return stats, nil
}

// ServeMetrics exposes Prometheus metrics until ctx ends when metrics.addr is
// configured. It returns immediately otherwise.
func (a *App) ServeMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger.Named("metrics")); err != nil {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down the application.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
	a.closers = nil
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
	_ = a.logger.Sync()
}

func (a *App) setupTracing(ctx context.Context) error {
	opts, err := telemetry.ExporterOptions(a.cfg.Tracing.Exporter, os.Stdout)
	if err != nil {
		return fmt.Errorf("trace exporter: %w", err)
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName, opts...)
	if err != nil {
		return fmt.Errorf("tracer provider init failed: %w", err)
	}
	a.closers = append(a.closers, func() error {
		return tp.Shutdown(context.Background())
	})
	return nil
}

func (a *App) setupStore(ctx context.Context) error {
	var (
		store medicine.Store
		err   error
	)
	switch a.cfg.Store.Driver {
	case config.StoreDriverPostgres:
		a.logger.Info("using postgres store", zap.String("table", a.cfg.Store.Table))
		store, err = pgstore.New(ctx, pgstore.Config{
			DSN:      a.cfg.Store.DSN,
			Table:    a.cfg.Store.Table,
			MaxConns: a.cfg.Store.MaxConns,
		})
	case config.StoreDriverSQLite:
		a.logger.Info("using sqlite store", zap.String("path", a.cfg.Store.Path))
		store, err = sqlitestore.Open(ctx, sqlitestore.Config{
			Path:  a.cfg.Store.Path,
			Table: a.cfg.Store.Table,
		})
	case config.StoreDriverMemory:
		a.logger.Warn("using in-memory store, records are lost on exit")
		store = memorystorage.NewMedicineStore()
	default:
		return fmt.Errorf("unknown store driver: %s", a.cfg.Store.Driver)
	}
	if err != nil {
		return fmt.Errorf("store init failed: %w", err)
	}
	a.store = store
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("store schema: %w", err)
	}
	return nil
}

func (a *App) setupFetchers() {
	clk := system.New()
	fetchCfg := fetcher.Config{
		MinDelay:   a.cfg.Fetch.MinDelay,
		MaxDelay:   a.cfg.Fetch.MaxDelay,
		MaxRetries: a.cfg.Fetch.MaxRetries,
		Timeout:    a.cfg.Fetch.Timeout,
	}
	opts := []fetcher.Option{
		fetcher.WithRandom(clk.Float64),
		fetcher.WithLogger(a.logger.Named("fetcher")),
	}
	if a.cfg.Fetch.MaxRPS > 0 {
		opts = append(opts, fetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			RPS:   a.cfg.Fetch.MaxRPS,
			Burst: a.cfg.Fetch.Burst,
		})))
	}

	httpTransport := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetch.UserAgent,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.Fetch.Timeout,
	})
	a.imageFetcher = fetcher.New(httpTransport, fetchCfg, opts...)

	if a.cfg.Fetch.Mode == config.FetchModeHeadless {
		// The browser returns rendered HTML, so image bytes always go through colly.
		a.headless = headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         a.cfg.Fetch.UserAgent,
			NavigationTimeout: a.cfg.Fetch.NavigationTimeout,
		})
		a.pageFetcher = fetcher.New(a.headless, fetchCfg, opts...)
		a.logger.Info("using headless page fetcher")
		return
	}
	a.pageFetcher = a.imageFetcher
	a.logger.Info("using colly page fetcher")
}

func (a *App) setupImages(ctx context.Context) error {
	switch a.cfg.Images.Backend {
	case config.BackendNone:
		a.logger.Info("image downloads disabled")
		return nil
	case config.BackendGCS:
		client, err := gcsstorage.NewClient(ctx, a.cfg.Images.Bucket)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Images.Bucket,
			Prefix: a.cfg.Images.Prefix,
		})
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.closers = append(a.closers, blobs.Close)
		a.blobs = blobs
		a.logger.Info("using GCS image backend", zap.String("bucket", a.cfg.Images.Bucket))
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Images.Dir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Info("using local image backend", zap.String("dir", a.cfg.Images.Dir))
	default:
		a.blobs = memorystorage.NewBlobStore()
		a.logger.Info("using in-memory image backend")
	}

	images, err := imagestore.New(a.imageFetcher, a.blobs, a.logger.Named("images"))
	if err != nil {
		return fmt.Errorf("image store init failed: %w", err)
	}
	a.images = images
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.Publisher.Backend {
	case config.BackendPubSub:
		pub, err := gcppublisher.Open(ctx, gcppublisher.Config{
			ProjectID: a.cfg.Publisher.ProjectID,
			TopicID:   a.cfg.Publisher.Topic,
		})
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.publisher = pub
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Publisher.ProjectID),
			zap.String("topic", a.cfg.Publisher.Topic),
		)
	case config.BackendMemory:
		a.publisher = memorypublisher.New()
	default:
		a.logger.Debug("new-record notifications disabled")
	}
	return nil
}

func (a *App) setupPipeline() error {
	fields := extract.NewFieldExtractor()
	discoverer, err := extract.NewDiscoverer(a.cfg.Site.BaseURL, fields, a.logger.Named("discover"))
	if err != nil {
		return fmt.Errorf("discoverer init failed: %w", err)
	}
	resolver, err := extract.NewDetailResolver(a.pageFetcher, a.cfg.Site.BaseURL, a.logger.Named("detail"))
	if err != nil {
		return fmt.Errorf("detail resolver init failed: %w", err)
	}

	clk := system.New()
	deps := pipeline.Dependencies{
		Fetcher:    a.pageFetcher,
		Discoverer: discoverer,
		Resolver:   resolver,
		Store:      a.store,
		Publisher:  a.publisher,
		Clock:      clk,
		IDs:        uuid.New(),
		Random:     clk.Float64,
		Logger:     a.logger,
	}
	if a.images != nil {
		deps.Images = a.images
	}
	a.orchestrator, err = pipeline.New(pipeline.Config{
		BaseURL:        a.cfg.Site.BaseURL,
		LetterPauseMin: a.cfg.Pipeline.LetterPauseMin,
		LetterPauseMax: a.cfg.Pipeline.LetterPauseMax,
	}, deps)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}
	return nil
}

// Scrape runs the pipeline over letters and returns the run report.
func (a *App) Scrape(ctx context.Context, letters []rune) (pipeline.RunReport, error) {
	return a.orchestrator.Run(ctx, letters)
}
