package model

import "time"

// Message is a room message. Exactly one of AuthorUserID or AuthorAgentID is set.
type Message struct {
	ID               int64     `json:"id,string"`
	RoomID           int64     `json:"room_id,string"`
	AuthorUserID     *int64    `json:"author_user_id,omitempty,string"`
	AuthorAgentID    *int64    `json:"author_agent_id,omitempty,string"`
	Content          string    `json:"content"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// UserPattern is a behavioural summary of a user, fed into turn prompts when present.
type UserPattern struct {
	UserID    int64     `json:"user_id,string"`
	Summary   string    `json:"summary"`
	Traits    []string  `json:"traits"`
	UpdatedAt time.Time `json:"updated_at"`
}
