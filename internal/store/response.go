package store

import (
	"context"

	"basegraph.app/roundtable/core/db"
	"basegraph.app/roundtable/internal/model"
)

type responseStore struct {
	q db.Querier
}

func newResponseStore(q db.Querier) ResponseStore {
	return &responseStore{q: q}
}

func (s *responseStore) Create(ctx context.Context, r *model.DiscussionResponse) (*model.DiscussionResponse, error) {
	out := *r
	err := s.q.QueryRow(ctx, `
		INSERT INTO discussion_responses (id, discussion_id, agent_id, turn_index, responding_to_agent_id, message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		r.ID, r.DiscussionID, r.AgentID, r.TurnIndex, r.RespondingToAgentID, r.MessageID,
	).Scan(&out.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTurn
		}
		return nil, err
	}
	return &out, nil
}

func (s *responseStore) ListByDiscussion(ctx context.Context, discussionID int64) ([]model.DiscussionResponse, error) {
	rows, err := s.q.Query(ctx, `
		SELECT r.id, r.discussion_id, r.agent_id, r.turn_index, r.responding_to_agent_id,
			r.message_id, r.created_at, m.content, m.processing_time_ms
		FROM discussion_responses r
		JOIN messages m ON m.id = r.message_id
		WHERE r.discussion_id = $1
		ORDER BY r.turn_index`, discussionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DiscussionResponse
	for rows.Next() {
		var r model.DiscussionResponse
		if err := rows.Scan(&r.ID, &r.DiscussionID, &r.AgentID, &r.TurnIndex, &r.RespondingToAgentID,
			&r.MessageID, &r.CreatedAt, &r.Content, &r.ProcessingTimeMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *responseStore) Count(ctx context.Context, discussionID int64) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `SELECT count(*) FROM discussion_responses WHERE discussion_id = $1`, discussionID).Scan(&n)
	return n, err
}
