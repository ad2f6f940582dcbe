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

type responseStore struct{ p *provider }

func (s *responseStore) Create(ctx context.Context, r *model.DiscussionResponse) (*model.DiscussionResponse, error) {
	var out model.DiscussionResponse
	err := s.p.with(func(st *state) error {
		if _, ok := st.discussions[r.DiscussionID]; !ok {
			return fmt.Errorf("discussion %d: %w", r.DiscussionID, store.ErrNotFound)
		}
		for _, existing := range st.responses[r.DiscussionID] {
			if existing.TurnIndex == r.TurnIndex {
				return store.ErrDuplicateTurn
			}
		}
		out = *r
		out.Content = ""
		out.ProcessingTimeMs = 0
		out.CreatedAt = time.Now().UTC()
		st.responses[r.DiscussionID] = append(st.responses[r.DiscussionID], out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *responseStore) ListByDiscussion(ctx context.Context, discussionID int64) ([]model.DiscussionResponse, error) {
	var out []model.DiscussionResponse
	err := s.p.with(func(st *state) error {
		out = slices.Clone(st.responses[discussionID])
		for i := range out {
			if m, ok := st.messages[out[i].MessageID]; ok {
				out[i].Content = m.Content
				out[i].ProcessingTimeMs = m.ProcessingTimeMs
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TurnIndex < out[j].TurnIndex })
	return out, err
}

func (s *responseStore) Count(ctx context.Context, discussionID int64) (int, error) {
	var n int
	err := s.p.with(func(st *state) error {
		n = len(st.responses[discussionID])
		return nil
	})
	return n, err
}

type turnFailureStore struct{ p *provider }

func (s *turnFailureStore) Create(ctx context.Context, f *model.TurnFailure) (*model.TurnFailure, error) {
	var out model.TurnFailure
	err := s.p.with(func(st *state) error {
		if _, ok := st.discussions[f.DiscussionID]; !ok {
			return fmt.Errorf("discussion %d: %w", f.DiscussionID, store.ErrNotFound)
		}
		for _, existing := range st.failures[f.DiscussionID] {
			if existing.TurnIndex == f.TurnIndex {
				return store.ErrDuplicateTurn
			}
		}
		out = *f
		out.CreatedAt = time.Now().UTC()
		st.failures[f.DiscussionID] = append(st.failures[f.DiscussionID], out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *turnFailureStore) ListByDiscussion(ctx context.Context, discussionID int64) ([]model.TurnFailure, error) {
	var out []model.TurnFailure
	err := s.p.with(func(st *state) error {
		out = slices.Clone(st.failures[discussionID])
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TurnIndex < out[j].TurnIndex })
	return out, err
}
