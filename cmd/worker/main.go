package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"basegraph.app/roundtable/common/id"
	"basegraph.app/roundtable/common/logger"
	"basegraph.app/roundtable/common/otel"
	"basegraph.app/roundtable/core/config"
	"basegraph.app/roundtable/internal/bootstrap"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "roundtable worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	if cfg.StoreDriver == "memory" {
		slog.WarnContext(ctx, "a standalone worker on the in-memory store cannot see the server's discussions")
	}

	// Servers and workers must not share a snowflake node id.
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	stop, err := app.StartWorker(runCtx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start worker", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()

	select {
	case <-shutdownCtx.Done():
		// An in-flight batch is abandoned; its message stays pending for the reclaimer.
		slog.WarnContext(ctx, "shutdown timeout exceeded, cancelling in-flight run")
		cancelRun()
		<-done
	case <-done:
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
 ____                       _ _        _     _
|  _ \ ___  _   _ _ __   __| | |_ __ _| |__ | | ___
| |_) / _ \| | | | '_ \ / _' | __/ _' | '_ \| |/ _ \
|  _ < (_) | |_| | | | | (_| | || (_| | |_) | |  __/
|_| \_\___/ \__,_|_| |_|\__,_|\__\__,_|_.__/|_|\___|  worker
`
