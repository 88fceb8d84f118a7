// Command riptide runs the extraction orchestration kernel: a cobra root
// wiring every internal component (resource admission, fetch, content
// analysis, extraction, caching, post-processing, async jobs, streaming
// delivery) behind an HTTP server exposing the External Interfaces
// surface. Grounded on the teacher's cmd/webstalk/main.go shape: a
// persistent --config/--verbose pair, one RunE per subcommand, a
// setupLogger/applyCLIOverrides pair, and signal-driven graceful
// shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/foofork/riptide/internal/analyzer"
	"github.com/foofork/riptide/internal/api"
	"github.com/foofork/riptide/internal/browserpool"
	"github.com/foofork/riptide/internal/cache"
	"github.com/foofork/riptide/internal/config"
	"github.com/foofork/riptide/internal/extractor"
	"github.com/foofork/riptide/internal/fetcher"
	"github.com/foofork/riptide/internal/idempotency"
	"github.com/foofork/riptide/internal/observability"
	"github.com/foofork/riptide/internal/orchestrator"
	"github.com/foofork/riptide/internal/pipeline"
	"github.com/foofork/riptide/internal/ratelimit"
	"github.com/foofork/riptide/internal/resource"
	"github.com/foofork/riptide/internal/streaming"
	"github.com/foofork/riptide/internal/worker"
)

var (
	cfgFile string
	verbose bool
	addr    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "riptide",
		Short: "RipTide — extraction orchestration kernel",
		Long: `RipTide fetches, renders and extracts content from a stream of URLs
behind one admission-controlled pipeline: per-host rate limiting, a
bounded headless-browser pool, PDF extraction, a caching layer and a
pluggable post-processing pipeline.

Serve an HTTP API exposing sync submit, streaming submit (NDJSON/SSE/
WebSocket), async jobs and a health/capabilities endpoint with:

  riptide serve`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	app, err := buildApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer app.Close()

	router := api.NewRouter(app.deps)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down...", "signal", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	app.pool.Stop()

	logger.Info("shutdown complete")
	return nil
}

// idempotencyBackend is what buildStores needs to both wire into
// resource.New (resource.IdempotencyStore) and close on shutdown; both
// idempotency.InMemoryStore and idempotency.MongoStore satisfy it.
type idempotencyBackend interface {
	resource.IdempotencyStore
	Close() error
}

// application bundles every long-lived component runServe must close or
// stop on shutdown, alongside the api.Deps the router reads from.
type application struct {
	deps        *api.Deps
	pool        *worker.Pool
	browserPool *browserpool.Pool
	cachePort   cache.Port
	idemStore   idempotencyBackend
	httpFetcher fetcher.Fetcher
}

func (a *application) Close() {
	if a.httpFetcher != nil {
		_ = a.httpFetcher.Close()
	}
	if a.cachePort != nil {
		_ = a.cachePort.Close()
	}
	if a.idemStore != nil {
		_ = a.idemStore.Close()
	}
}

// buildApp wires every component named in the External Interfaces and
// Persisted State sections: Resource Manager, Fetch Engine, Browser
// Pool, Extractor Registry, Cache Port, Idempotency Store, post-
// processing Pipeline, Pipeline Orchestrator, Batch Runner, Worker Pool,
// streaming delivery, and the health/capabilities Monitor.
func buildApp(cfg *config.Config, logger *slog.Logger) (*application, error) {
	idemStore, cachePort, err := buildStores(cfg, logger)
	if err != nil {
		return nil, err
	}

	mem := resource.NewMemoryMonitor(cfg.Resource.MemoryHighWaterMB, logger)
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.JitterMax, cfg.RateLimit.GroupByETLD1, logger)
	pdfSlots := resource.NewPDFSemaphore(cfg.Resource.MaxConcurrentPDF)

	pool := browserpool.New(browserpool.Config{
		MinWarm:        cfg.BrowserPool.MinWarm,
		MaxInstances:   cfg.BrowserPool.MaxInstances,
		IdleTimeout:    cfg.BrowserPool.IdleTimeout,
		MaxPagesPerTab: cfg.BrowserPool.MaxPagesPerTab,
		WarmupTimeout:  cfg.BrowserPool.WarmupTimeout,
		MaxLifetime:    cfg.BrowserPool.MaxLifetime,
		MinPoolSize:    cfg.BrowserPool.MinPoolSize,
	}, browserpool.NewRodLauncher(browserpool.RodLaunchOptions{}), logger)

	resourceMgr := resource.New(idemStore, limiter, mem, pool, pdfSlots, logger)

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	reg := extractor.NewRegistry(
		extractor.NewStaticExtractor(),
		extractor.NewDynamicExtractor(pool, cfg.BrowserPool.RenderTimeout, logger),
		extractor.NewStealthExtractor(pool, cfg.BrowserPool.RenderTimeout, logger),
		extractor.NewPDFExtractor(extractor.PDFConfig{
			MaxSizeBytes:    cfg.PDF.MaxSizeMB * 1024 * 1024,
			ExtractText:     cfg.PDF.ExtractText,
			ExtractMetadata: cfg.PDF.ExtractMeta,
			ExtractTables:   cfg.PDF.ExtractTables,
			MaxImages:       cfg.PDF.MaxImages,
			Timeout:         cfg.PDF.Timeout,
		}),
	)

	post := pipeline.New(logger)
	post.Use(pipeline.NewHTMLSanitizeMiddleware())
	post.Use(pipeline.NewPIIRedactMiddleware(logger))
	post.Use(pipeline.NewWordCountMiddleware())
	post.Use(pipeline.NewDedupMiddleware())

	pipelineCfg := cfg.Pipeline
	pipelineCfg.FetchMaxRetries = cfg.Fetcher.MaxRetries

	eng := orchestrator.New(resourceMgr, pdfSlots, httpFetcher, analyzer.NewCache(cfg.Analyzer.CacheSize, cfg.Analyzer.CacheTTL),
		reg, cachePort, post, pipelineCfg, cfg.Cache.TTL, logger)

	metrics := observability.NewMetrics(logger)
	eng.SetMetrics(metrics)

	runner := orchestrator.NewRunner(eng, logger)

	jobStore, err := buildJobStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	workerPool := worker.New(runner, jobStore, cfg.Worker.PoolSize, logger)
	workerPool.SetMetrics(metrics)
	workerPool.Start(context.Background())

	monitor := observability.NewMonitor(metrics, mem, resourceMgr, pool, cfg.BrowserPool.MaxInstances, pdfSlots,
		limiter.Rate(), []string{"static", "dynamic", "stealth", "pdf"}, stealthPresetNames(), workerPool.QueueDepth,
		observability.DefaultThresholds())

	warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.BrowserPool.WarmupTimeout)
	defer warmCancel()
	if err := pool.Warm(warmCtx); err != nil {
		logger.Warn("browser pool warmup failed, continuing cold", "error", err)
	}

	return &application{
		deps: &api.Deps{
			Runner:   runner,
			Pool:     workerPool,
			Producer: streaming.NewFrameProducer(runner, logger),
			Buffers:  streaming.NewBufferManager(),
			Monitor:  monitor,
			Logger:   logger,
		},
		pool:        workerPool,
		browserPool: pool,
		cachePort:   cachePort,
		idemStore:   idemStore,
		httpFetcher: httpFetcher,
	}, nil
}

func stealthPresetNames() []string {
	return []string{"none", "low", "medium", "high"}
}

// buildStores selects the Cache Port and Idempotency Store backends per
// cfg.Cache.Backend/cfg.Idempotency.Backend (spec §6.5).
func buildStores(cfg *config.Config, logger *slog.Logger) (idempotencyBackend, cache.Port, error) {
	var idemStore idempotencyBackend
	switch cfg.Idempotency.Backend {
	case "mongo":
		store, err := idempotency.NewMongoStore(cfg.Idempotency.MongoURI, cfg.Idempotency.MongoDatabase, cfg.Idempotency.MongoCollection, cfg.Idempotency.TTL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create mongo idempotency store: %w", err)
		}
		idemStore = store
	default:
		idemStore = idempotency.NewInMemoryStore(cfg.Idempotency.TTL, cfg.Idempotency.CleanupInterval, logger)
	}

	var cachePort cache.Port
	switch cfg.Cache.Backend {
	case "mongo":
		store, err := cache.NewMongoStore(cfg.Cache.MongoURI, cfg.Cache.MongoDB, "documents", logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create mongo cache store: %w", err)
		}
		cachePort = store
	default:
		cachePort = cache.NewMemoryStore(time.Minute, logger)
	}

	return idemStore, cachePort, nil
}

func buildJobStore(cfg *config.Config, logger *slog.Logger) (worker.Store, error) {
	if cfg.Idempotency.Backend != "mongo" {
		return worker.NewMemoryStore(), nil
	}
	return worker.NewMongoStore(cfg.Idempotency.MongoURI, cfg.Idempotency.MongoDatabase, "jobs", logger)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("riptide %s\n", config.Version)
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Server:\n")
			fmt.Printf("  Addr:              %s\n", cfg.Server.Addr)
			fmt.Printf("  Shutdown Timeout:  %s\n", cfg.Server.ShutdownTimeout)
			fmt.Printf("\nResource:\n")
			fmt.Printf("  Max Renders:       %d\n", cfg.Resource.MaxConcurrentRenders)
			fmt.Printf("  Max PDF:           %d\n", cfg.Resource.MaxConcurrentPDF)
			fmt.Printf("  Memory High Water: %d MB\n", cfg.Resource.MemoryHighWaterMB)
			fmt.Printf("\nRate Limit:\n")
			fmt.Printf("  RPS:               %.2f\n", cfg.RateLimit.RequestsPerSecond)
			fmt.Printf("  Burst:             %d\n", cfg.RateLimit.Burst)
			fmt.Printf("\nBrowser Pool:\n")
			fmt.Printf("  Min Warm:          %d\n", cfg.BrowserPool.MinWarm)
			fmt.Printf("  Max Instances:     %d\n", cfg.BrowserPool.MaxInstances)
			fmt.Printf("\nCache:\n")
			fmt.Printf("  Backend:           %s\n", cfg.Cache.Backend)
			fmt.Printf("  TTL:               %s\n", cfg.Cache.TTL)
			fmt.Printf("\nIdempotency:\n")
			fmt.Printf("  Backend:           %s\n", cfg.Idempotency.Backend)
			fmt.Printf("\nWorker:\n")
			fmt.Printf("  Pool Size:         %d\n", cfg.Worker.PoolSize)
			fmt.Printf("\nLogging:\n")
			fmt.Printf("  Level:             %s\n", cfg.Logging.Level)
			fmt.Printf("  Format:            %s\n", cfg.Logging.Format)
			return nil
		},
	}
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func applyCLIOverrides(cfg *config.Config) {
	if addr != "" {
		cfg.Server.Addr = addr
	}
}
