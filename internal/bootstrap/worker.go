package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/roundtable/core/config"
	"basegraph.app/roundtable/internal/queue"
	"basegraph.app/roundtable/internal/worker"
)

// StartWorker starts the queue worker and its reclaimer. The returned stop
// function blocks until both have exited.
func (a *App) StartWorker(ctx context.Context, cfg config.Config) (stop func(), err error) {
	if a.Redis == nil {
		return nil, errors.New("the queue worker needs REDIS_URL")
	}

	consumer, err := queue.NewRedisConsumer(ctx, a.Redis, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    1, // one batch run at a time
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		RequeueDelay: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating consumer: %w", err)
	}

	w := worker.New(consumer, a.Producer, a.Orchestrator, worker.Config{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	})
	reclaimer := worker.NewRedisReclaimer(a.Redis, worker.RedisReclaimerConfig{
		Stream:      cfg.Pipeline.RedisStream,
		Group:       cfg.Pipeline.RedisGroup,
		Consumer:    cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:     cfg.Pipeline.ReclaimMinIdle,
		Interval:    cfg.Pipeline.ReclaimInterval,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	}, consumer, w.ProcessMessage)

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "worker exited", "error", err)
		}
	}()
	go reclaimer.Run(ctx)

	slog.InfoContext(ctx, "queue worker running",
		"stream", cfg.Pipeline.RedisStream,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	return func() {
		reclaimer.Stop()
		w.Stop()
	}, nil
}
