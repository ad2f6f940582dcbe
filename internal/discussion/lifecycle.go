package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/roundtable/common/logger"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
)

// Pause stops a running discussion at its next turn boundary.
func (o *Orchestrator) Pause(ctx context.Context, discussionID int64) (*model.Discussion, error) {
	return o.transition(ctx, discussionID, model.DiscussionStatusPaused)
}

// Resume makes a paused discussion runnable again. It does not run any turns.
func (o *Orchestrator) Resume(ctx context.Context, discussionID int64) (*model.Discussion, error) {
	return o.transition(ctx, discussionID, model.DiscussionStatusActive)
}

// Stop ends a discussion for good. A turn in flight is discarded.
func (o *Orchestrator) Stop(ctx context.Context, discussionID int64) (*model.Discussion, error) {
	return o.transition(ctx, discussionID, model.DiscussionStatusStopped)
}

func (o *Orchestrator) transition(ctx context.Context, discussionID int64, to model.DiscussionStatus) (*model.Discussion, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DiscussionID: logger.Ptr(discussionID),
		Component:    "roundtable.discussion.lifecycle",
	})

	current, err := o.load(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(current.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}

	updated, err := o.stores.Discussions().UpdateStatus(ctx, discussionID, []model.DiscussionStatus{current.Status}, to)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: status changed concurrently from %s", ErrInvalidTransition, current.Status)
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDiscussionNotFound
		}
		return nil, persistence("updating discussion status", err)
	}

	slog.InfoContext(ctx, "discussion status changed", "from", current.Status, "to", updated.Status)
	o.broadcaster.Lifecycle(ctx, updated, current.Status)
	return updated, nil
}

// GetStatus returns the discussion with its responses and failures.
func (o *Orchestrator) GetStatus(ctx context.Context, discussionID int64) (*Snapshot, error) {
	d, err := o.load(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	responses, err := o.stores.Responses().ListByDiscussion(ctx, d.ID)
	if err != nil {
		return nil, persistence("loading responses", err)
	}
	failures, err := o.stores.TurnFailures().ListByDiscussion(ctx, d.ID)
	if err != nil {
		return nil, persistence("loading turn failures", err)
	}
	if responses == nil {
		responses = []model.DiscussionResponse{}
	}
	if failures == nil {
		failures = []model.TurnFailure{}
	}

	return &Snapshot{
		Discussion:     d,
		Responses:      responses,
		Failures:       failures,
		TurnLimit:      d.TurnLimit(),
		HasMore:        d.Status == model.DiscussionStatusActive && d.HasMore(),
		CurrentAgentID: d.CurrentAgentID(),
		NextAgentID:    d.NextAgentID(),
	}, nil
}

// ListDiscussions returns a room's discussions, newest first.
func (o *Orchestrator) ListDiscussions(ctx context.Context, roomID int64, limit int) ([]model.Discussion, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	ds, err := o.stores.Discussions().ListByRoom(ctx, roomID, limit)
	if err != nil {
		return nil, persistence("listing discussions", err)
	}
	return ds, nil
}
