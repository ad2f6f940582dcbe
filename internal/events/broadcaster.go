package events

import (
	"context"
	"log/slog"
	"time"

	"basegraph.app/roundtable/internal/model"
)

const defaultPublishTimeout = 2 * time.Second

// Broadcaster turns orchestration milestones into ProgressEvents.
// Publishing is synchronous, so events leave in execution order. A failing sink
// is logged and otherwise ignored.
type Broadcaster struct {
	sink    Sink
	timeout time.Duration
	now     func() time.Time
}

func NewBroadcaster(sink Sink, timeout time.Duration) *Broadcaster {
	if sink == nil {
		sink = NopSink{}
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Broadcaster{sink: sink, timeout: timeout, now: time.Now}
}

// TurnInfo identifies the turn an event is about.
type TurnInfo struct {
	Discussion *model.Discussion
	TurnIndex  int
	AgentID    int64
	AgentName  string
}

func (b *Broadcaster) TurnStarting(ctx context.Context, t TurnInfo) {
	ev := b.turnEvent(EventTurnStarting, t)
	b.publish(ctx, t.Discussion.RoomID, ev)
}

func (b *Broadcaster) TurnComplete(ctx context.Context, t TurnInfo, messageID int64, processingTimeMs int64) {
	ev := b.turnEvent(EventTurnComplete, t)
	ev.MessageID = &messageID
	ev.ProcessingTimeMs = processingTimeMs
	b.publish(ctx, t.Discussion.RoomID, ev)
}

func (b *Broadcaster) TurnError(ctx context.Context, t TurnInfo, kind model.TurnErrorKind, summary string) {
	ev := b.turnEvent(EventTurnError, t)
	ev.ErrorKind = kind
	ev.ErrorSummary = summary
	b.publish(ctx, t.Discussion.RoomID, ev)
}

// Lifecycle reports a status change. from is empty for a newly created discussion.
func (b *Broadcaster) Lifecycle(ctx context.Context, d *model.Discussion, from model.DiscussionStatus) {
	b.publish(ctx, d.RoomID, ProgressEvent{
		Kind:           EventDiscussionLifecycle,
		RoomID:         d.RoomID,
		DiscussionID:   d.ID,
		OccurredAt:     b.now().UTC(),
		TotalTurns:     d.TurnLimit(),
		FromStatus:     from,
		Status:         d.Status,
		CurrentAgentID: d.CurrentAgentID(),
		NextAgentID:    d.NextAgentID(),
	})
}

func (b *Broadcaster) turnEvent(kind EventKind, t TurnInfo) ProgressEvent {
	idx := t.TurnIndex
	agentID := t.AgentID
	return ProgressEvent{
		Kind:         kind,
		RoomID:       t.Discussion.RoomID,
		DiscussionID: t.Discussion.ID,
		OccurredAt:   b.now().UTC(),
		TurnIndex:    &idx,
		TotalTurns:   t.Discussion.TurnLimit(),
		AgentID:      &agentID,
		AgentName:    t.AgentName,
	}
}

func (b *Broadcaster) publish(ctx context.Context, roomID int64, ev ProgressEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	if err := b.sink.Publish(pubCtx, roomID, ev); err != nil {
		slog.WarnContext(ctx, "progress event not delivered",
			"kind", ev.Kind,
			"room_id", roomID,
			"discussion_id", ev.DiscussionID,
			"error", err)
	}
}
