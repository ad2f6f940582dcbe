package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, req RunRequest) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, req RunRequest) error {
	attempt := req.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"task_type":     string(TaskTypeDiscussionRun),
		"discussion_id": req.DiscussionID,
		"room_id":       req.RoomID,
		"attempt":       attempt,
	}
	if req.Reason != "" {
		fields["reason"] = req.Reason
	}
	if req.TraceID != nil && *req.TraceID != "" {
		fields["trace_id"] = *req.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue discussion run: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued discussion run",
		"discussion_id", req.DiscussionID,
		"room_id", req.RoomID,
		"reason", req.Reason,
		"attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
