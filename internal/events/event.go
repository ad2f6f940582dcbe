package events

import (
	"context"
	"errors"
	"time"

	"basegraph.app/roundtable/internal/model"
)

type EventKind string

const (
	EventTurnStarting        EventKind = "turn_starting"
	EventTurnComplete        EventKind = "turn_complete"
	EventTurnError           EventKind = "turn_error"
	EventDiscussionLifecycle EventKind = "discussion_lifecycle"
)

// ProgressEvent is the payload pushed to room subscribers.
// Fields irrelevant to a kind are omitted from the JSON form.
type ProgressEvent struct {
	Kind         EventKind `json:"kind"`
	RoomID       int64     `json:"room_id,string"`
	DiscussionID int64     `json:"discussion_id,string"`
	OccurredAt   time.Time `json:"occurred_at"`

	TurnIndex        *int   `json:"turn_index,omitempty"`
	TotalTurns       int    `json:"total_turns,omitempty"`
	AgentID          *int64 `json:"agent_id,omitempty,string"`
	AgentName        string `json:"agent_name,omitempty"`
	MessageID        *int64 `json:"message_id,omitempty,string"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`

	ErrorKind    model.TurnErrorKind `json:"error_kind,omitempty"`
	ErrorSummary string              `json:"error_summary,omitempty"`

	FromStatus     model.DiscussionStatus `json:"from_status,omitempty"`
	Status         model.DiscussionStatus `json:"status,omitempty"`
	CurrentAgentID *int64                 `json:"current_agent_id,omitempty,string"`
	NextAgentID    *int64                 `json:"next_agent_id,omitempty,string"`
}

// Sink delivers events to subscribers of a room.
type Sink interface {
	Publish(ctx context.Context, roomID int64, event ProgressEvent) error
}

// NopSink drops everything.
type NopSink struct{}

func (NopSink) Publish(context.Context, int64, ProgressEvent) error { return nil }

// MultiSink fans out to every sink in order and joins their errors.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, roomID int64, event ProgressEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, roomID, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
