package store

import (
	"context"

	"basegraph.app/roundtable/core/db"
	"basegraph.app/roundtable/internal/model"
)

type turnFailureStore struct {
	q db.Querier
}

func newTurnFailureStore(q db.Querier) TurnFailureStore {
	return &turnFailureStore{q: q}
}

func (s *turnFailureStore) Create(ctx context.Context, f *model.TurnFailure) (*model.TurnFailure, error) {
	out := *f
	err := s.q.QueryRow(ctx, `
		INSERT INTO discussion_turn_failures (id, discussion_id, agent_id, turn_index, kind, summary)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		f.ID, f.DiscussionID, f.AgentID, f.TurnIndex, string(f.Kind), f.Summary,
	).Scan(&out.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTurn
		}
		return nil, err
	}
	return &out, nil
}

func (s *turnFailureStore) ListByDiscussion(ctx context.Context, discussionID int64) ([]model.TurnFailure, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, discussion_id, agent_id, turn_index, kind, summary, created_at
		FROM discussion_turn_failures
		WHERE discussion_id = $1
		ORDER BY turn_index`, discussionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TurnFailure
	for rows.Next() {
		var (
			f    model.TurnFailure
			kind string
		)
		if err := rows.Scan(&f.ID, &f.DiscussionID, &f.AgentID, &f.TurnIndex, &kind, &f.Summary, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Kind = model.TurnErrorKind(kind)
		out = append(out, f)
	}
	return out, rows.Err()
}
