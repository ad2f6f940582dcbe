package store

import (
	"context"

	"basegraph.app/roundtable/core/db"
	"basegraph.app/roundtable/internal/model"
)

type userPatternStore struct {
	q db.Querier
}

func newUserPatternStore(q db.Querier) UserPatternStore {
	return &userPatternStore{q: q}
}

func (s *userPatternStore) GetByUser(ctx context.Context, userID int64) (*model.UserPattern, error) {
	var p model.UserPattern
	err := s.q.QueryRow(ctx, `
		SELECT user_id, summary, traits, updated_at FROM user_patterns WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Summary, &p.Traits, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *userPatternStore) Upsert(ctx context.Context, p *model.UserPattern) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO user_patterns (user_id, summary, traits)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET summary = EXCLUDED.summary, traits = EXCLUDED.traits, updated_at = now()`,
		p.UserID, p.Summary, p.Traits)
	return err
}
