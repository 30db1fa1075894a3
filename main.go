package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghillie/ghillie/bronze"
	"github.com/ghillie/ghillie/clock"
	"github.com/ghillie/ghillie/config"
	"github.com/ghillie/ghillie/db"
	"github.com/ghillie/ghillie/evidence"
	"github.com/ghillie/ghillie/githubsource"
	"github.com/ghillie/ghillie/httpapi"
	"github.com/ghillie/ghillie/ingestion"
	"github.com/ghillie/ghillie/logger"
	"github.com/ghillie/ghillie/observability"
	"github.com/ghillie/ghillie/redisclient"
	"github.com/ghillie/ghillie/registry"
	"github.com/ghillie/ghillie/reporting"
	"github.com/ghillie/ghillie/silver"
	"github.com/ghillie/ghillie/status"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("ghillie: invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg)
	log.Info().Msg("ghillie starting")

	c := clock.RealClock{}
	metrics := observability.NewMetrics(log)

	if cfg.HealthOnly() {
		log.Warn().Msg("GHILLIE_DATABASE_URL not set, serving health endpoints only")
		serveAndWait(cfg, log, httpapi.NewRouter(log, &httpapi.Handlers{}, metrics), nil)
		return
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	catalog := registry.NewStore(pool)
	offsets := bronze.NewOffsetStore(pool)
	writer := bronze.NewRawEventWriter(pool, c)
	transformer := silver.NewTransformer(pool)
	bundler := evidence.NewBundler(pool, evidence.NoProjectLookup{}, c)
	health := ingestion.NewHealthService(offsets, c, cfg.StalledThreshold)

	statusModel, err := status.NewModelFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("status model configuration failed")
	}
	reportingService := reporting.NewService(pool, bundler, statusModel, c, cfg.ReportingWindowDays, cfg.ReportSinkPath, log).WithMetrics(metrics)

	handlers := &httpapi.Handlers{Catalog: catalog, Health: health, Reporting: reportingService, Metrics: metrics}

	var stopBackground chan struct{}
	if err := cfg.ValidateForIngestion(); err != nil {
		log.Warn().Err(err).Msg("ingestion disabled: missing GitHub credentials")
	} else {
		stopBackground = make(chan struct{})
		go runIngestionLoop(ctx, cfg, log, c, writer, offsets, catalog, transformer, metrics, stopBackground)
	}

	serveAndWait(cfg, log, httpapi.NewRouter(log, handlers, metrics), stopBackground)
}

// serveAndWait runs the HTTP server until an interrupt or SIGTERM arrives,
// then drains both the server and any background loop before returning.
func serveAndWait(cfg *config.Config, log zerolog.Logger, handler http.Handler, stopBackground chan struct{}) {
	httpServer := &http.Server{
		Addr:         cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("ghillie listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")
	if stopBackground != nil {
		close(stopBackground)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("ghillie stopped gracefully")
	}
}

// runIngestionLoop periodically schedules ingestion across every tracked
// repository and promotes whatever lands in bronze into silver, until
// stop is closed.
func runIngestionLoop(ctx context.Context, cfg *config.Config, log zerolog.Logger, c clock.Clock, writer *bronze.RawEventWriter, offsets *bronze.OffsetStore, catalog *registry.Store, transformer *silver.Transformer, metrics *observability.Metrics, stop <-chan struct{}) {
	graphqlCfg, err := githubsource.GraphQLConfigFromToken(cfg.GitHubToken)
	if err != nil {
		log.Error().Err(err).Msg("github client configuration failed, ingestion disabled")
		return
	}
	client, err := githubsource.NewGraphQLClient(graphqlCfg, nil)
	if err != nil {
		log.Error().Err(err).Msg("github client construction failed, ingestion disabled")
		return
	}

	events := ingestion.NewEventLogger(log).WithMetrics(metrics)
	worker := ingestion.NewWorker(client, writer, offsets, c, ingestion.Config{
		InitialLookback:  cfg.InitialLookback,
		Overlap:          cfg.Overlap,
		MaxEventsPerKind: cfg.MaxEventsPerKind,
	}, events)

	var lock *redisclient.RepositoryLock
	if cfg.RedisURL != "" {
		rc, err := redisclient.New(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis init failed, continuing without distributed lock")
		} else {
			lock = redisclient.NewRepositoryLock(rc, 10*time.Minute)
		}
	}

	scheduler := ingestion.NewScheduler(worker, catalog, lock, log)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	runPass := func() {
		scheduler.RunOnce(ctx)
		processed, err := transformer.TransformPending(ctx, 1000)
		if err != nil {
			log.Error().Err(err).Msg("silver transform pass failed")
			metrics.TrackTransform(processed, 1)
			return
		}
		metrics.TrackTransform(processed, 0)
	}

	runPass()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			runPass()
		}
	}
}
