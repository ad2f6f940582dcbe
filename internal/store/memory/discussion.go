package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
)

type discussionStore struct{ p *provider }

func copyDiscussion(d model.Discussion) *model.Discussion {
	d.TurnOrder = slices.Clone(d.TurnOrder)
	return &d
}

func (s *discussionStore) Create(ctx context.Context, d *model.Discussion) (*model.Discussion, error) {
	var out *model.Discussion
	err := s.p.with(func(st *state) error {
		if _, ok := st.discussions[d.ID]; ok {
			return fmt.Errorf("discussion %d already exists", d.ID)
		}
		if _, ok := st.messages[d.MessageID]; !ok {
			return fmt.Errorf("message %d: %w", d.MessageID, store.ErrNotFound)
		}
		now := time.Now().UTC()
		row := *copyDiscussion(*d)
		row.Version = 1
		row.CreatedAt = now
		row.UpdatedAt = now
		st.discussions[row.ID] = row
		out = copyDiscussion(row)
		return nil
	})
	return out, err
}

func (s *discussionStore) GetByID(ctx context.Context, id int64) (*model.Discussion, error) {
	var out *model.Discussion
	err := s.p.with(func(st *state) error {
		d, ok := st.discussions[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyDiscussion(d)
		return nil
	})
	return out, err
}

func (s *discussionStore) ListByRoom(ctx context.Context, roomID int64, limit int) ([]model.Discussion, error) {
	var out []model.Discussion
	err := s.p.with(func(st *state) error {
		for _, d := range st.discussions {
			if d.RoomID == roomID {
				out = append(out, *copyDiscussion(d))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (s *discussionStore) UpdateStatus(ctx context.Context, id int64, from []model.DiscussionStatus, to model.DiscussionStatus) (*model.Discussion, error) {
	var out *model.Discussion
	err := s.p.with(func(st *state) error {
		d, ok := st.discussions[id]
		if !ok {
			return store.ErrNotFound
		}
		if !slices.Contains(from, d.Status) {
			return store.ErrInvalidTransition
		}
		now := time.Now().UTC()
		d.Status = to
		d.Version++
		d.UpdatedAt = now
		if to == model.DiscussionStatusConcluded {
			d.ConcludedAt = &now
		}
		st.discussions[id] = d
		out = copyDiscussion(d)
		return nil
	})
	return out, err
}

func (s *discussionStore) AdvanceTurn(ctx context.Context, params store.AdvanceTurnParams) (*model.Discussion, error) {
	var out *model.Discussion
	err := s.p.with(func(st *state) error {
		d, ok := st.discussions[params.DiscussionID]
		if !ok {
			return store.ErrNotFound
		}
		if d.Status.Terminal() {
			return store.ErrDiscussionClosed
		}
		if d.CurrentTurn != params.ExpectedTurn {
			return fmt.Errorf("%w: expected turn %d, found %d", store.ErrCheckpointConflict, params.ExpectedTurn, d.CurrentTurn)
		}
		d.CurrentTurn++
		if params.Failed {
			d.FailedTurns++
		}
		if params.LastError != nil {
			msg := *params.LastError
			d.LastError = &msg
		}
		d.Version++
		d.UpdatedAt = time.Now().UTC()
		st.discussions[d.ID] = d
		out = copyDiscussion(d)
		return nil
	})
	return out, err
}
