package model

import (
	"fmt"
	"time"
)

type Intensity string

const (
	IntensityNormal  Intensity = "normal"
	IntensityBrutal  Intensity = "brutal"
	IntensityIntense Intensity = "intense"
	IntensityExtreme Intensity = "extreme"
)

// ParseIntensity accepts the lowercase wire form. Empty means normal.
func ParseIntensity(s string) (Intensity, error) {
	switch Intensity(s) {
	case "":
		return IntensityNormal, nil
	case IntensityNormal, IntensityBrutal, IntensityIntense, IntensityExtreme:
		return Intensity(s), nil
	}
	return "", fmt.Errorf("unknown intensity %q", s)
}

// Confrontational is true for every level above normal.
func (i Intensity) Confrontational() bool {
	return i == IntensityBrutal || i == IntensityIntense || i == IntensityExtreme
}

// DirectnessMultiplier is the numeric form handed to the response generator.
func (i Intensity) DirectnessMultiplier() float64 {
	switch i {
	case IntensityBrutal:
		return 1.5
	case IntensityIntense:
		return 2.0
	case IntensityExtreme:
		return 3.0
	default:
		return 1.0
	}
}

type DiscussionStatus string

const (
	DiscussionStatusActive    DiscussionStatus = "active"
	DiscussionStatusPaused    DiscussionStatus = "paused"
	DiscussionStatusStopped   DiscussionStatus = "stopped"
	DiscussionStatusConcluded DiscussionStatus = "concluded"
)

// Terminal statuses never change again and freeze CurrentTurn.
func (s DiscussionStatus) Terminal() bool {
	return s == DiscussionStatusStopped || s == DiscussionStatusConcluded
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
func CanTransition(from, to DiscussionStatus) bool {
	switch from {
	case DiscussionStatusActive:
		return to == DiscussionStatusPaused || to == DiscussionStatusStopped || to == DiscussionStatusConcluded
	case DiscussionStatusPaused:
		return to == DiscussionStatusActive || to == DiscussionStatusStopped
	default:
		return false
	}
}

// Discussion is one multi-agent exchange triggered by a user message.
// TurnOrder is fixed at creation. CurrentTurn is the resumption checkpoint: every slot
// below it holds exactly one response or one recorded failure.
type Discussion struct {
	ID          int64            `json:"id,string"`
	RoomID      int64            `json:"room_id,string"`
	MessageID   int64            `json:"message_id,string"`
	UserID      *int64           `json:"user_id,omitempty,string"`
	Topic       *string          `json:"topic,omitempty"`
	Intensity   Intensity        `json:"intensity"`
	TurnOrder   []int64          `json:"turn_order"`
	CurrentTurn int              `json:"current_turn"`
	MaxTurns    int              `json:"max_turns"`
	Status      DiscussionStatus `json:"status"`
	FailedTurns int              `json:"failed_turns"`
	LastError   *string          `json:"last_error,omitempty"`
	Version     int64            `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ConcludedAt *time.Time       `json:"concluded_at,omitempty"`
}

// TurnLimit is min(len(TurnOrder), MaxTurns).
func (d *Discussion) TurnLimit() int {
	if d.MaxTurns < len(d.TurnOrder) {
		return max(d.MaxTurns, 0)
	}
	return len(d.TurnOrder)
}

// HasMore reports whether slots remain below the limit.
func (d *Discussion) HasMore() bool {
	return d.CurrentTurn < d.TurnLimit()
}

// AgentAt returns the agent scheduled for turn idx.
func (d *Discussion) AgentAt(idx int) (int64, bool) {
	if idx < 0 || idx >= d.TurnLimit() {
		return 0, false
	}
	return d.TurnOrder[idx], true
}

// CurrentAgentID is the agent that spoke last, nil before the first turn.
func (d *Discussion) CurrentAgentID() *int64 {
	if id, ok := d.AgentAt(d.CurrentTurn - 1); ok {
		return &id
	}
	return nil
}

// NextAgentID is the agent scheduled for the checkpoint slot, nil when none remain.
func (d *Discussion) NextAgentID() *int64 {
	if id, ok := d.AgentAt(d.CurrentTurn); ok {
		return &id
	}
	return nil
}

// DiscussionResponse records one successful turn. Never mutated after creation.
type DiscussionResponse struct {
	ID                  int64     `json:"id,string"`
	DiscussionID        int64     `json:"discussion_id,string"`
	AgentID             int64     `json:"agent_id,string"`
	TurnIndex           int       `json:"turn_index"`
	RespondingToAgentID *int64    `json:"responding_to_agent_id,omitempty,string"`
	MessageID           int64     `json:"message_id,string"`
	CreatedAt           time.Time `json:"created_at"`

	// Joined from the backing message on reads.
	Content          string `json:"content,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
}

type TurnErrorKind string

const (
	TurnErrorUnavailable       TurnErrorKind = "collaborator_unavailable"
	TurnErrorQuotaExceeded     TurnErrorKind = "quota_exceeded"
	TurnErrorMalformedResponse TurnErrorKind = "malformed_response"
)

// TurnFailure records a turn slot whose generation failed. It occupies the slot
// the same way a response does, so the slot is never attempted again.
type TurnFailure struct {
	ID           int64         `json:"id,string"`
	DiscussionID int64         `json:"discussion_id,string"`
	AgentID      int64         `json:"agent_id,string"`
	TurnIndex    int           `json:"turn_index"`
	Kind         TurnErrorKind `json:"kind"`
	Summary      string        `json:"summary"`
	CreatedAt    time.Time     `json:"created_at"`
}
