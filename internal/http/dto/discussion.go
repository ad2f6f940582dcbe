package dto

import (
	"fmt"
	"strconv"

	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/model"
)

// CreateDiscussionRequest starts a discussion about a user message in the room
// named by the path.
type CreateDiscussionRequest struct {
	MessageID string   `json:"message_id" binding:"required"`
	AgentIDs  []string `json:"agent_ids"`
	Topic     *string  `json:"topic,omitempty" binding:"omitempty,max=500"`
	Intensity string   `json:"intensity" binding:"omitempty,oneof=normal brutal intense extreme"`
	MaxTurns  *int     `json:"max_turns,omitempty"`
	AutoRun   bool     `json:"auto_run"`
}

type CreateDiscussionResponse struct {
	Discussion *model.Discussion `json:"discussion"`
	Enqueued   bool              `json:"enqueued"`
}

type RunDiscussionResponse struct {
	Outcome  *discussion.RunOutcome `json:"outcome,omitempty"`
	Enqueued bool                   `json:"enqueued"`
}

type ListDiscussionsResponse struct {
	Discussions []model.Discussion `json:"discussions"`
}

// ParseID reads a snowflake id sent as a decimal string.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func ParseIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, err := ParseID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
