package store

import (
	"context"

	"basegraph.app/roundtable/common/id"
	"basegraph.app/roundtable/core/db"
	"basegraph.app/roundtable/internal/model"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, room_id, author_user_id, author_agent_id, content, processing_time_ms, created_at`

type messageStore struct {
	q db.Querier
}

func newMessageStore(q db.Querier) MessageStore {
	return &messageStore{q: q}
}

func (s *messageStore) CreateUserMessage(ctx context.Context, roomID, userID int64, content string) (*model.Message, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO messages (id, room_id, author_user_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING `+messageColumns, id.New(), roomID, userID, content)
	return scanMessage(row)
}

func (s *messageStore) CreateAgentMessage(ctx context.Context, roomID, agentID int64, content string, processingTimeMs int64) (*model.Message, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO messages (id, room_id, author_agent_id, content, processing_time_ms)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+messageColumns, id.New(), roomID, agentID, content, processingTimeMs)
	return scanMessage(row)
}

func (s *messageStore) GetByID(ctx context.Context, messageID int64) (*model.Message, error) {
	row := s.q.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID)
	return scanMessage(row)
}

func (s *messageStore) ListRecentByRoom(ctx context.Context, roomID int64, limit int) ([]model.Message, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	if err := row.Scan(&m.ID, &m.RoomID, &m.AuthorUserID, &m.AuthorAgentID, &m.Content, &m.ProcessingTimeMs, &m.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}
