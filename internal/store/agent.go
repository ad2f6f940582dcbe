package store

import (
	"context"

	"basegraph.app/roundtable/core/db"
	"basegraph.app/roundtable/internal/model"
	"github.com/jackc/pgx/v5"
)

type agentStore struct {
	q db.Querier
}

func newAgentStore(q db.Querier) AgentStore {
	return &agentStore{q: q}
}

func (s *agentStore) GetByID(ctx context.Context, id int64) (*model.Agent, error) {
	row := s.q.QueryRow(ctx, `SELECT id, name, persona, instructions FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (s *agentStore) ListByIDs(ctx context.Context, ids []int64) ([]model.Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, `SELECT id, name, persona, instructions FROM agents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *agentStore) Upsert(ctx context.Context, a *model.Agent) (*model.Agent, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO agents (id, name, persona, instructions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, persona = EXCLUDED.persona, instructions = EXCLUDED.instructions
		RETURNING id, name, persona, instructions`,
		a.ID, a.Name, string(a.Persona), a.Instructions)
	return scanAgent(row)
}

func scanAgent(row pgx.Row) (*model.Agent, error) {
	var (
		a       model.Agent
		persona string
	)
	if err := row.Scan(&a.ID, &a.Name, &persona, &a.Instructions); err != nil {
		return nil, notFound(err)
	}
	a.Persona = model.ParsePersona(persona)
	return &a, nil
}
