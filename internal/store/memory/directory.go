package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"basegraph.app/roundtable/common/id"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
)

type agentStore struct{ p *provider }

func (s *agentStore) GetByID(ctx context.Context, agentID int64) (*model.Agent, error) {
	var out model.Agent
	err := s.p.with(func(st *state) error {
		a, ok := st.agents[agentID]
		if !ok {
			return store.ErrNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *agentStore) ListByIDs(ctx context.Context, ids []int64) ([]model.Agent, error) {
	var out []model.Agent
	err := s.p.with(func(st *state) error {
		for _, agentID := range ids {
			if a, ok := st.agents[agentID]; ok {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (s *agentStore) Upsert(ctx context.Context, a *model.Agent) (*model.Agent, error) {
	row := *a
	row.Persona = model.ParsePersona(string(a.Persona))
	err := s.p.with(func(st *state) error {
		st.agents[row.ID] = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

type messageStore struct{ p *provider }

func (s *messageStore) insert(m model.Message) (*model.Message, error) {
	m.ID = id.New()
	m.CreatedAt = time.Now().UTC()
	err := s.p.with(func(st *state) error {
		st.messages[m.ID] = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *messageStore) CreateUserMessage(ctx context.Context, roomID, userID int64, content string) (*model.Message, error) {
	return s.insert(model.Message{RoomID: roomID, AuthorUserID: &userID, Content: content})
}

func (s *messageStore) CreateAgentMessage(ctx context.Context, roomID, agentID int64, content string, processingTimeMs int64) (*model.Message, error) {
	return s.insert(model.Message{RoomID: roomID, AuthorAgentID: &agentID, Content: content, ProcessingTimeMs: processingTimeMs})
}

func (s *messageStore) GetByID(ctx context.Context, messageID int64) (*model.Message, error) {
	var out model.Message
	err := s.p.with(func(st *state) error {
		m, ok := st.messages[messageID]
		if !ok {
			return store.ErrNotFound
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *messageStore) ListRecentByRoom(ctx context.Context, roomID int64, limit int) ([]model.Message, error) {
	var out []model.Message
	err := s.p.with(func(st *state) error {
		for _, m := range st.messages {
			if m.RoomID == roomID {
				out = append(out, m)
			}
		}
		return nil
	})
	// snowflake ids are time ordered
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type userPatternStore struct{ p *provider }

func (s *userPatternStore) GetByUser(ctx context.Context, userID int64) (*model.UserPattern, error) {
	var out model.UserPattern
	err := s.p.with(func(st *state) error {
		p, ok := st.patterns[userID]
		if !ok {
			return store.ErrNotFound
		}
		out = p
		out.Traits = slices.Clone(p.Traits)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *userPatternStore) Upsert(ctx context.Context, p *model.UserPattern) error {
	row := *p
	row.Traits = slices.Clone(p.Traits)
	row.UpdatedAt = time.Now().UTC()
	return s.p.with(func(st *state) error {
		st.patterns[row.UserID] = row
		return nil
	})
}
