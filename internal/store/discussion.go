package store

import (
	"context"
	"errors"
	"fmt"

	"basegraph.app/roundtable/core/db"
	"basegraph.app/roundtable/internal/model"
	"github.com/jackc/pgx/v5"
)

const discussionColumns = `id, room_id, message_id, user_id, topic, intensity, turn_order, current_turn,
	max_turns, status, failed_turns, last_error, version, created_at, updated_at, concluded_at`

type discussionStore struct {
	q db.Querier
}

func newDiscussionStore(q db.Querier) DiscussionStore {
	return &discussionStore{q: q}
}

func (s *discussionStore) Create(ctx context.Context, d *model.Discussion) (*model.Discussion, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO discussions (id, room_id, message_id, user_id, topic, intensity, turn_order,
			current_turn, max_turns, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+discussionColumns,
		d.ID, d.RoomID, d.MessageID, d.UserID, d.Topic, string(d.Intensity), d.TurnOrder,
		d.CurrentTurn, d.MaxTurns, string(d.Status),
	)
	return scanDiscussion(row)
}

func (s *discussionStore) GetByID(ctx context.Context, id int64) (*model.Discussion, error) {
	row := s.q.QueryRow(ctx, `SELECT `+discussionColumns+` FROM discussions WHERE id = $1`, id)
	return scanDiscussion(row)
}

func (s *discussionStore) ListByRoom(ctx context.Context, roomID int64, limit int) ([]model.Discussion, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+discussionColumns+` FROM discussions
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Discussion
	for rows.Next() {
		d, err := scanDiscussion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *discussionStore) UpdateStatus(ctx context.Context, id int64, from []model.DiscussionStatus, to model.DiscussionStatus) (*model.Discussion, error) {
	fromStrs := make([]string, len(from))
	for i, f := range from {
		fromStrs[i] = string(f)
	}

	row := s.q.QueryRow(ctx, `
		UPDATE discussions
		SET status = $3,
			version = version + 1,
			updated_at = now(),
			concluded_at = CASE WHEN $3 = 'concluded' THEN now() ELSE concluded_at END
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+discussionColumns, id, fromStrs, string(to))

	d, err := scanDiscussion(row)
	if errors.Is(err, ErrNotFound) {
		// Distinguish a missing row from a status that did not match.
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return d, err
}

func (s *discussionStore) AdvanceTurn(ctx context.Context, params AdvanceTurnParams) (*model.Discussion, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE discussions
		SET current_turn = current_turn + 1,
			failed_turns = failed_turns + CASE WHEN $3 THEN 1 ELSE 0 END,
			last_error = COALESCE($4, last_error),
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND current_turn = $2 AND status IN ('active', 'paused')
		RETURNING `+discussionColumns,
		params.DiscussionID, params.ExpectedTurn, params.Failed, params.LastError)

	d, err := scanDiscussion(row)
	if !errors.Is(err, ErrNotFound) {
		return d, err
	}

	current, getErr := s.GetByID(ctx, params.DiscussionID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status.Terminal() {
		return nil, ErrDiscussionClosed
	}
	return nil, fmt.Errorf("%w: expected turn %d, found %d", ErrCheckpointConflict, params.ExpectedTurn, current.CurrentTurn)
}

func scanDiscussion(row pgx.Row) (*model.Discussion, error) {
	var (
		d         model.Discussion
		intensity string
		status    string
	)
	err := row.Scan(
		&d.ID, &d.RoomID, &d.MessageID, &d.UserID, &d.Topic, &intensity, &d.TurnOrder,
		&d.CurrentTurn, &d.MaxTurns, &status, &d.FailedTurns, &d.LastError, &d.Version,
		&d.CreatedAt, &d.UpdatedAt, &d.ConcludedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	d.Intensity = model.Intensity(intensity)
	d.Status = model.DiscussionStatus(status)
	return &d, nil
}
