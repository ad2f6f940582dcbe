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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/roundtable/common/id"
	"basegraph.app/roundtable/common/logger"
	"basegraph.app/roundtable/common/otel"
	"basegraph.app/roundtable/core/config"
	"basegraph.app/roundtable/internal/bootstrap"
	"basegraph.app/roundtable/internal/http/handler"
	"basegraph.app/roundtable/internal/http/middleware"
	httprouter "basegraph.app/roundtable/internal/http/router"
	"basegraph.app/roundtable/internal/service"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel before the logger: production logs go through the OTel provider.
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "roundtable starting", "env", cfg.Env, "service", cfg.OTel.ServiceName, "store", cfg.StoreDriver)
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCtx, stopWorkerCtx := context.WithCancel(ctx)
	defer stopWorkerCtx()
	var stopWorker func()
	if cfg.Pipeline.RunInline {
		stopWorker, err = app.StartWorker(workerCtx, cfg)
		if err != nil {
			slog.ErrorContext(ctx, "failed to start inline worker", "error", err)
			os.Exit(1)
		}
	}

	services := service.NewServices(app.Stores, app.Orchestrator, app.Producer, app.Indexer, slog.Default())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, app, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: synchronous runs wait on several generator calls and
		// event streams stay open.
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

	if stopWorker != nil {
		stopWorker()
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, app *bootstrap.App, services *service.Services) *gin.Engine {
	router := gin.New()

	// OTel opens the span, Recovery sees panics inside it, Logger logs with its trace id.
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	routerCfg := httprouter.RouterConfig{
		TraceHeaderName:   cfg.Pipeline.TraceHeaderName,
		AdminAPIKey:       cfg.AdminAPIKey,
		EventStreamPrefix: cfg.Events.StreamPrefix,
	}
	var stream handler.StreamReader
	if app.Redis != nil && cfg.Events.HasSink("redis") {
		stream = app.Redis
	}
	routerCfg.EventStream = stream

	httprouter.SetupRoutes(router, services, routerCfg)
	return router
}

const banner = `
 ____                       _ _        _     _
|  _ \ ___  _   _ _ __   __| | |_ __ _| |__ | | ___
| |_) / _ \| | | | '_ \ / _' | __/ _' | '_ \| |/ _ \
|  _ < (_) | |_| | | | | (_| | || (_| | |_) | |  __/
|_| \_\___/ \__,_|_| |_|\__,_|\__\__,_|_.__/|_|\___|  server
`
