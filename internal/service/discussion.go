package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/queue"
)

// ErrAsyncUnavailable is returned for async requests when no run queue is configured.
var ErrAsyncUnavailable = errors.New("async runs need a run queue")

type CreateDiscussionParams struct {
	RoomID    int64
	MessageID int64
	UserID    *int64
	AgentIDs  []int64
	Topic     *string
	Intensity model.Intensity
	MaxTurns  *int
	// AutoRun enqueues the first batch right after creation.
	AutoRun bool
	TraceID *string
}

type CreateDiscussionResult struct {
	Discussion *model.Discussion
	Enqueued   bool
}

type RunResult struct {
	// Outcome is nil when the run was only enqueued.
	Outcome  *discussion.RunOutcome
	Enqueued bool
}

// Orchestrator is the slice of *discussion.Orchestrator the service drives.
type Orchestrator interface {
	CreateDiscussion(ctx context.Context, p discussion.CreateParams) (*model.Discussion, error)
	Run(ctx context.Context, discussionID int64) (*discussion.RunOutcome, error)
	Pause(ctx context.Context, discussionID int64) (*model.Discussion, error)
	Resume(ctx context.Context, discussionID int64) (*model.Discussion, error)
	Stop(ctx context.Context, discussionID int64) (*model.Discussion, error)
	GetStatus(ctx context.Context, discussionID int64) (*discussion.Snapshot, error)
	ListDiscussions(ctx context.Context, roomID int64, limit int) ([]model.Discussion, error)
}

type DiscussionService interface {
	Create(ctx context.Context, params CreateDiscussionParams) (*CreateDiscussionResult, error)
	Run(ctx context.Context, discussionID int64, async bool, traceID *string) (*RunResult, error)
	Pause(ctx context.Context, discussionID int64) (*discussion.Snapshot, error)
	// Resume reactivates the discussion and, when a queue is configured, enqueues its next batch.
	Resume(ctx context.Context, discussionID int64, traceID *string) (*discussion.Snapshot, error)
	Stop(ctx context.Context, discussionID int64) (*discussion.Snapshot, error)
	Get(ctx context.Context, discussionID int64) (*discussion.Snapshot, error)
	ListByRoom(ctx context.Context, roomID int64, limit int) ([]model.Discussion, error)
}

type discussionService struct {
	orch   Orchestrator
	queue  queue.Producer
	logger *slog.Logger
}

// NewDiscussionService builds the service. producer may be nil, which disables async runs.
func NewDiscussionService(orch Orchestrator, producer queue.Producer, logger *slog.Logger) DiscussionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &discussionService{orch: orch, queue: producer, logger: logger}
}

func (s *discussionService) Create(ctx context.Context, params CreateDiscussionParams) (*CreateDiscussionResult, error) {
	if params.AutoRun && s.queue == nil {
		return nil, ErrAsyncUnavailable
	}

	d, err := s.orch.CreateDiscussion(ctx, discussion.CreateParams{
		RoomID:    params.RoomID,
		MessageID: params.MessageID,
		UserID:    params.UserID,
		AgentIDs:  params.AgentIDs,
		Topic:     params.Topic,
		Intensity: params.Intensity,
		MaxTurns:  params.MaxTurns,
	})
	if err != nil {
		return nil, err
	}

	result := &CreateDiscussionResult{Discussion: d}
	if params.AutoRun && d.HasMore() {
		if err := s.enqueue(ctx, d, params.TraceID, "created"); err != nil {
			// The discussion exists. A later run request can still drive it.
			s.logger.WarnContext(ctx, "auto run not enqueued", "discussion_id", d.ID, "error", err)
			return result, nil
		}
		result.Enqueued = true
	}
	return result, nil
}

func (s *discussionService) Run(ctx context.Context, discussionID int64, async bool, traceID *string) (*RunResult, error) {
	if !async {
		outcome, err := s.orch.Run(ctx, discussionID)
		if err != nil {
			return nil, err
		}
		return &RunResult{Outcome: outcome}, nil
	}

	if s.queue == nil {
		return nil, ErrAsyncUnavailable
	}
	snap, err := s.orch.GetStatus(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, snap.Discussion, traceID, "requested"); err != nil {
		return nil, err
	}
	return &RunResult{Enqueued: true}, nil
}

func (s *discussionService) Pause(ctx context.Context, discussionID int64) (*discussion.Snapshot, error) {
	if _, err := s.orch.Pause(ctx, discussionID); err != nil {
		return nil, err
	}
	return s.orch.GetStatus(ctx, discussionID)
}

func (s *discussionService) Resume(ctx context.Context, discussionID int64, traceID *string) (*discussion.Snapshot, error) {
	d, err := s.orch.Resume(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if s.queue != nil && d.HasMore() {
		if err := s.enqueue(ctx, d, traceID, "resumed"); err != nil {
			s.logger.WarnContext(ctx, "resumed run not enqueued", "discussion_id", d.ID, "error", err)
		}
	}
	return s.orch.GetStatus(ctx, discussionID)
}

func (s *discussionService) Stop(ctx context.Context, discussionID int64) (*discussion.Snapshot, error) {
	if _, err := s.orch.Stop(ctx, discussionID); err != nil {
		return nil, err
	}
	return s.orch.GetStatus(ctx, discussionID)
}

func (s *discussionService) Get(ctx context.Context, discussionID int64) (*discussion.Snapshot, error) {
	return s.orch.GetStatus(ctx, discussionID)
}

func (s *discussionService) ListByRoom(ctx context.Context, roomID int64, limit int) ([]model.Discussion, error) {
	return s.orch.ListDiscussions(ctx, roomID, limit)
}

func (s *discussionService) enqueue(ctx context.Context, d *model.Discussion, traceID *string, reason string) error {
	if err := s.queue.Enqueue(ctx, queue.RunRequest{
		DiscussionID: d.ID,
		RoomID:       d.RoomID,
		TraceID:      traceID,
		Reason:       reason,
	}); err != nil {
		return fmt.Errorf("enqueueing discussion run: %w", err)
	}
	return nil
}
