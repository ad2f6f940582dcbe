package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/roundtable/common/logger"
	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/queue"
)

type Config struct {
	MaxAttempts  int
	ErrorBackoff time.Duration
	// BusyDelay is how long to wait before retrying a discussion another runner holds.
	BusyDelay time.Duration
}

// Worker drives discussions to completion one batch per message. A batch that
// leaves turns remaining enqueues its own continuation.
type Worker struct {
	consumer Consumer
	producer queue.Producer
	runner   Runner
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, producer queue.Producer, runner Runner, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	if cfg.BusyDelay <= 0 {
		cfg.BusyDelay = 2 * time.Second
	}
	return &Worker{
		consumer:  consumer,
		producer:  producer,
		runner:    runner,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "roundtable.worker"})

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				w.backoff(ctx)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) backoff(ctx context.Context) {
	timer := time.NewTimer(w.cfg.ErrorBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-timer.C:
	}
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// Shutting down. The message stays pending for the reclaimer.
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"discussion_id", msg.DiscussionID)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"discussion_id", msg.DiscussionID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs one batch and acks msg. Exported for the reclaimer.
// An error means msg was not acked and needs a retry decision.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	sc := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.discussion_run")
	defer sc.End()
	sc.SetAttributes(
		attribute.Int64("discussion_id", msg.DiscussionID),
		attribute.Int("attempt", msg.Attempt),
	)
	msgID := msg.ID
	taskType := string(msg.TaskType)
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		DiscussionID: logger.Ptr(msg.DiscussionID),
		RoomID:       logger.Ptr(msg.RoomID),
		MessageID:    &msgID,
		TaskType:     &taskType,
	})

	slog.InfoContext(ctx, "processing discussion run",
		"attempt", msg.Attempt,
		"reason", msg.Reason)

	start := time.Now()
	outcome, err := w.runner.Run(ctx, msg.DiscussionID)
	if errors.Is(err, discussion.ErrDiscussionNotFound) {
		slog.WarnContext(ctx, "discussion no longer exists, dropping run")
		w.ack(ctx, msg)
		return nil
	}
	if err != nil {
		sc.RecordError(err)
		return err
	}

	slog.InfoContext(ctx, "discussion batch finished",
		"status", outcome.Status,
		"turns_completed", outcome.TurnsCompleted,
		"turns_failed", outcome.TurnsFailed,
		"current_turn", outcome.CurrentTurn,
		"has_more", outcome.HasMore,
		"busy", outcome.Busy,
		"duration_ms", time.Since(start).Milliseconds())

	if outcome.HasMore {
		reason := "continue"
		if outcome.Busy {
			// The holder may be a synchronous run that never enqueues, so keep a
			// continuation alive. A duplicate finds nothing to do or reports busy again.
			reason = "busy"
			if err := w.wait(ctx, w.cfg.BusyDelay); err != nil {
				return err
			}
		}
		traceID := sc.TraceID()
		if err := w.producer.Enqueue(ctx, queue.RunRequest{
			DiscussionID: msg.DiscussionID,
			RoomID:       msg.RoomID,
			TraceID:      &traceID,
			Reason:       reason,
		}); err != nil {
			sc.RecordError(err)
			return fmt.Errorf("enqueueing continuation: %w", err)
		}
	}

	w.ack(ctx, msg)
	return nil
}

func (w *Worker) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (w *Worker) ack(ctx context.Context, msg queue.Message) {
	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The reclaimer will redeliver it, and a rerun is safe.
		slog.WarnContext(ctx, "failed to ACK message",
			"error", err,
			"message_id", msg.ID)
	}
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"discussion_id", msg.DiscussionID,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"discussion_id", msg.DiscussionID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
