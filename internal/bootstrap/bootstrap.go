// Package bootstrap assembles the orchestrator and its infrastructure from config.
// Both binaries build on it so a server running the worker inline and a
// standalone worker see the same wiring.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/roundtable/common/llm"
	"basegraph.app/roundtable/common/typesense"
	"basegraph.app/roundtable/core/config"
	"basegraph.app/roundtable/core/db"
	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/events"
	"basegraph.app/roundtable/internal/generator"
	"basegraph.app/roundtable/internal/lock"
	"basegraph.app/roundtable/internal/queue"
	"basegraph.app/roundtable/internal/retriever/history"
	"basegraph.app/roundtable/internal/store"
	"basegraph.app/roundtable/internal/store/memory"
)

// App holds everything a process needs. Redis, Producer and Indexer are nil when
// not configured.
type App struct {
	Stores       store.StoreProvider
	Orchestrator *discussion.Orchestrator
	Redis        *redis.Client
	Producer     queue.Producer
	Indexer      discussion.MessageIndexer

	closers []func() error
}

// New connects to every configured backend. On error, whatever was opened is closed.
func New(ctx context.Context, cfg config.Config) (_ *App, err error) {
	app := &App{}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	txRunner, err := app.openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Pipeline.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		app.Redis = redis.NewClient(opts)
		app.closers = append(app.closers, app.Redis.Close)
		if err := app.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

		// The producer's Close shuts the shared client, which the closer above already does.
		app.Producer = queue.NewRedisProducer(app.Redis, cfg.Pipeline.RedisStream, nil)
	}

	llmClient, err := llm.New(llm.Config{
		Provider:   cfg.GeneratorLLM.Provider,
		APIKey:     cfg.GeneratorLLM.APIKey,
		BaseURL:    cfg.GeneratorLLM.BaseURL,
		Model:      cfg.GeneratorLLM.Model,
		MaxRetries: cfg.GeneratorLLM.MaxRetries,
		Timeout:    cfg.GeneratorLLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating generator llm client: %w", err)
	}
	gen := generator.New(llmClient, generator.Options{
		MaxTokens:   cfg.GeneratorLLM.MaxTokens,
		Temperature: llm.Temp(cfg.GeneratorLLM.Temperature),
	})
	slog.InfoContext(ctx, "generator ready", "provider", cfg.GeneratorLLM.Provider, "model", llmClient.Model())

	historyProvider, err := app.openHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sink, err := app.openSinks(cfg)
	if err != nil {
		return nil, err
	}

	var locker lock.Locker = lock.NewLocal()
	if app.Redis != nil {
		locker = lock.NewRedis(app.Redis, "discussion-lock", cfg.Orchestrator.LockTTL)
	}

	app.Orchestrator = discussion.NewOrchestrator(discussion.Deps{
		Stores:      app.Stores,
		TxRunner:    txRunner,
		Generator:   gen,
		History:     historyProvider,
		Indexer:     app.Indexer,
		Broadcaster: events.NewBroadcaster(sink, cfg.Events.PublishTimeout),
		Locker:      locker,
	}, discussion.Config{
		BatchSize:       cfg.Orchestrator.BatchSize,
		PacingMin:       cfg.Orchestrator.PacingMin,
		PacingMax:       cfg.Orchestrator.PacingMax,
		ContextLimit:    cfg.Orchestrator.ContextLimit,
		MaxTurnsCeiling: cfg.Orchestrator.MaxTurnsCeiling,
	})
	return app, nil
}

func (a *App) openStores(ctx context.Context, cfg config.Config) (store.TxRunner, error) {
	if cfg.StoreDriver == "memory" {
		mem := memory.New()
		a.Stores = mem.Stores()
		slog.WarnContext(ctx, "using in-memory store, state is lost on exit")
		return mem, nil
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		database.Close()
		return nil
	})
	slog.InfoContext(ctx, "database connected")

	a.Stores = store.NewStores(database.Querier())
	return store.NewTxRunner(database), nil
}

// openHistory prefers Typesense search and falls back to recent room messages.
func (a *App) openHistory(ctx context.Context, cfg config.Config) (discussion.ContextProvider, error) {
	recency := history.NewRecency(a.Stores)
	if !cfg.Typesense.Enabled() {
		return recency, nil
	}

	ts, err := typesense.New(typesense.Config{
		URL:        cfg.Typesense.URL,
		APIKey:     cfg.Typesense.APIKey,
		Collection: cfg.Typesense.Collection,
	})
	if err != nil {
		return nil, err
	}
	if err := ts.EnsureCollection(ctx); err != nil {
		// Search degrades to recency until the collection exists.
		slog.WarnContext(ctx, "typesense collection not ready", "error", err)
	}

	search := history.NewSearch(ts)
	a.Indexer = search
	return history.NewFallback(search, recency), nil
}

func (a *App) openSinks(cfg config.Config) (events.Sink, error) {
	var sinks events.MultiSink
	if cfg.Events.HasSink("redis") {
		if a.Redis == nil {
			return nil, errors.New("the redis event sink needs REDIS_URL")
		}
		sinks = append(sinks, events.NewRedisStreamSink(a.Redis, cfg.Events.StreamPrefix, cfg.Events.StreamMaxLen))
	}
	if cfg.Events.HasSink("kafka") {
		kafka := events.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		a.closers = append(a.closers, kafka.Close)
		sinks = append(sinks, kafka)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
