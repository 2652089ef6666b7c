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

	"synapse.app/ingest/common/logger"
	"synapse.app/ingest/common/otel"
	"synapse.app/ingest/core/config"
	"synapse.app/ingest/core/db"
	"synapse.app/ingest/internal/http/middleware"
	httprouter "synapse.app/ingest/internal/http/router"
	"synapse.app/ingest/internal/queue"
	"synapse.app/ingest/internal/service"
	"synapse.app/ingest/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg)
	if err != nil {
		// Can't use slog yet, OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry.Enabled() {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "ingestion api starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)

	var txRunner service.TxRunner
	switch cfg.Ingestion.EventStore {
	case config.EventStoreMemory:
		slog.WarnContext(ctx, "using in-memory event store, events are lost on restart")
		txRunner = service.NewMemoryTxRunner(store.NewMemoryEventStore())
	default:
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		slog.InfoContext(ctx, "database connected")

		if err := database.Migrate(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to apply migrations", "error", err)
			os.Exit(1)
		}
		txRunner = service.NewTxRunner(database)
	}

	eventProducer := queue.NewNoopProducer()
	if cfg.Ingestion.EventStream != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}

		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Ingestion.EventStream)
		eventProducer = queue.NewRedisProducer(redisClient, queue.StreamConfig{
			Stream: cfg.Ingestion.EventStream,
			MaxLen: cfg.Ingestion.EventStreamMax,
		}, slog.Default())
	}
	defer eventProducer.Close()

	services := service.NewServices(txRunner, eventProducer, slog.Default())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span, Recovery catches panics, Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		TraceHeader:    cfg.Ingestion.TraceHeaderName,
		EnableTestData: cfg.Ingestion.EnableTestData && !cfg.IsProduction(),
	})

	return router
}

const banner = `
 ___ _   _ _ __   __ _ _ __  ___  ___    ___ _ __   __ _  ___  ___| |_
/ __| | | | '_ \ / _' | '_ \/ __|/ _ \  |_ _| '_ \ / _' |/ _ \/ __| __|
\__ \ |_| | | | | (_| | |_) \__ \  __/   | || | | | (_| |  __/\__ \ |_
|___/\__, |_| |_|\__,_| .__/|___/\___|  |___|_| |_|\__, |\___||___/\__|
     |___/            |_|                          |___/
`
