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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"synapse.app/ingest/common/id"
	"synapse.app/ingest/common/logger"
	"synapse.app/ingest/common/otel"
	"synapse.app/ingest/core/config"
	"synapse.app/ingest/core/db"
	"synapse.app/ingest/internal/adapter"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/delivery"
	"synapse.app/ingest/internal/http/middleware"
	httprouter "synapse.app/ingest/internal/http/router"
	"synapse.app/ingest/internal/queue"
	"synapse.app/ingest/internal/service"
	"synapse.app/ingest/internal/store"
	"synapse.app/ingest/internal/syncer"
	"synapse.app/ingest/internal/worker"
)

// localIngestion makes the connector ingest in-process instead of over HTTP.
const localIngestion = "local"

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeConnector)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)
	log := slog.Default()

	slog.InfoContext(ctx, "connector starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(cfg.Connector.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	var (
		database    *db.DB
		redisClient *redis.Client
	)
	needDB := cfg.Connector.CursorBackend == config.CursorBackendPostgres ||
		(cfg.Connector.IngestionAPIURL == localIngestion && cfg.Ingestion.EventStore == config.EventStorePostgres)
	if needDB {
		database, err = db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to apply migrations", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "database connected")
	}
	if cfg.Redis.URL != "" {
		redisClient, err = connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	backend, closeBackend, err := cursorBackend(cfg, database, redisClient)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open cursor backend", "backend", cfg.Connector.CursorBackend, "error", err)
		os.Exit(1)
	}
	defer closeBackend()
	slog.InfoContext(ctx, "cursor backend ready", "backend", cfg.Connector.CursorBackend)

	var loader *config.SourcesLoader
	var overrides *config.SourcesFile
	if cfg.Connector.SourcesFile != "" {
		loader, err = config.NewSourcesLoader(cfg.Connector.SourcesFile)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load sources file", "error", err)
			os.Exit(1)
		}
		overrides = loader.Current()
	}

	sources, err := buildSources(cfg, overrides, log)
	if err != nil {
		slog.ErrorContext(ctx, "failed to configure adapters", "error", err)
		os.Exit(1)
	}

	registry := adapter.NewRegistry()
	for _, s := range sources {
		registry.Register(s.adapter)
		slog.InfoContext(ctx, "adapter configured",
			"adapter", s.adapter.Name(),
			"scopes", s.scopes.Len(),
			"interval", s.interval,
			"lookback", s.adapter.Lookback())
	}
	cursors := cursor.NewStore(backend, log, lookbacks(sources)...)

	if loader != nil {
		loader.OnChange(func(f *config.SourcesFile) { rescope(sources, f, log) })
		stopWatch, err := loader.Watch()
		if err != nil {
			slog.WarnContext(ctx, "sources file hot reload disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	client, err := deliveryClient(cfg, database, redisClient, log)
	if err != nil {
		slog.ErrorContext(ctx, "failed to configure delivery", "error", err)
		os.Exit(1)
	}

	orchestrator := syncer.NewOrchestrator(cursors, client, registry, log)
	scheduler := worker.NewScheduler(orchestrator, jobs(sources), log)

	repoAnalyzer, err := analyzer(cfg, log)
	if err != nil {
		slog.ErrorContext(ctx, "failed to configure repository analysis", "error", err)
		os.Exit(1)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	httprouter.SetupConnectorRoutes(router, orchestrator, cursors, repoAnalyzer)

	server := &http.Server{
		Addr:              ":" + cfg.Connector.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// manual sync requests wait for the cycle
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Connector.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	go scheduler.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	scheduler.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func cursorBackend(cfg config.Config, database *db.DB, redisClient *redis.Client) (cursor.Backend, func(), error) {
	noop := func() {}
	switch cfg.Connector.CursorBackend {
	case config.CursorBackendRedis:
		return cursor.NewRedisBackend(redisClient, cfg.Connector.CursorRedisKey), noop, nil
	case config.CursorBackendPostgres:
		return cursor.NewPostgresBackend(database.Queries()), noop, nil
	case config.CursorBackendSQLite:
		b, err := cursor.OpenSQLite(cfg.Connector.CursorSQLite)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	default:
		return cursor.NewMemoryBackend(), noop, nil
	}
}

func deliveryClient(cfg config.Config, database *db.DB, redisClient *redis.Client, log *slog.Logger) (delivery.Client, error) {
	if cfg.Connector.IngestionAPIURL != localIngestion {
		return delivery.NewHTTPClient(delivery.HTTPConfig{
			BaseURL: cfg.Connector.IngestionAPIURL,
			Timeout: cfg.Delivery.RequestTimeout,
			Retry: delivery.RetryPolicy{
				MaxAttempts:    cfg.Delivery.MaxAttempts,
				InitialBackoff: cfg.Delivery.InitialBackoff,
				MaxBackoff:     cfg.Delivery.MaxBackoff,
			},
			RatePerSecond: cfg.Delivery.RatePerSecond,
			Burst:         cfg.Delivery.Burst,
			TraceHeader:   cfg.Ingestion.TraceHeaderName,
		}, log), nil
	}

	var txRunner service.TxRunner
	if cfg.Ingestion.EventStore == config.EventStorePostgres {
		txRunner = service.NewTxRunner(database)
	} else {
		txRunner = service.NewMemoryTxRunner(store.NewMemoryEventStore())
	}
	producer := queue.NewNoopProducer()
	if cfg.Ingestion.EventStream != "" && redisClient != nil {
		producer = queue.NewRedisProducer(redisClient, queue.StreamConfig{
			Stream: cfg.Ingestion.EventStream,
			MaxLen: cfg.Ingestion.EventStreamMax,
		}, log)
	}
	log.Info("delivering in-process", "event_store", cfg.Ingestion.EventStore)
	return delivery.NewLocalClient(service.NewEventIngestService(txRunner, producer, log)), nil
}

const banner = `
 ___ _   _ _ __   __ _ _ __  ___  ___    ___ ___  _ __  _ __   ___  ___| |_ ___  _ __
/ __| | | | '_ \ / _' | '_ \/ __|/ _ \  / __/ _ \| '_ \| '_ \ / _ \/ __| __/ _ \| '__|
\__ \ |_| | | | | (_| | |_) \__ \  __/ | (_| (_) | | | | | | |  __/ (__| || (_) | |
|___/\__, |_| |_|\__,_| .__/|___/\___|  \___\___/|_| |_|_| |_|\___|\___|\__\___/|_|
     |___/            |_|
`
