// Package memory is an in-process implementation of the store interfaces.
// It backs STORE_DRIVER=memory and the orchestrator tests. Transactions are
// serialized and copy-on-write: fn works on a clone that replaces the live
// state only when fn returns nil.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
)

type state struct {
	discussions map[int64]model.Discussion
	responses   map[int64][]model.DiscussionResponse // by discussion
	failures    map[int64][]model.TurnFailure        // by discussion
	agents      map[int64]model.Agent
	messages    map[int64]model.Message
	patterns    map[int64]model.UserPattern
}

func newState() *state {
	return &state{
		discussions: map[int64]model.Discussion{},
		responses:   map[int64][]model.DiscussionResponse{},
		failures:    map[int64][]model.TurnFailure{},
		agents:      map[int64]model.Agent{},
		messages:    map[int64]model.Message{},
		patterns:    map[int64]model.UserPattern{},
	}
}

func (s *state) clone() *state {
	c := &state{
		discussions: maps.Clone(s.discussions),
		responses:   make(map[int64][]model.DiscussionResponse, len(s.responses)),
		failures:    make(map[int64][]model.TurnFailure, len(s.failures)),
		agents:      maps.Clone(s.agents),
		messages:    maps.Clone(s.messages),
		patterns:    maps.Clone(s.patterns),
	}
	for k, v := range s.responses {
		c.responses[k] = slices.Clone(v)
	}
	for k, v := range s.failures {
		c.failures[k] = slices.Clone(v)
	}
	return c
}

// DB holds the live state. The zero value is not usable; call New.
type DB struct {
	mu sync.Mutex
	st *state
}

func New() *DB {
	return &DB{st: newState()}
}

// Stores returns stores that lock per call.
func (db *DB) Stores() store.StoreProvider {
	return &provider{db: db}
}

// WithTx implements store.TxRunner.
func (db *DB) WithTx(ctx context.Context, fn func(stores store.StoreProvider) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	draft := db.st.clone()
	if err := fn(&provider{db: db, tx: draft}); err != nil {
		return err
	}
	db.st = draft
	return nil
}

// provider binds stores either to the live state (tx == nil) or to a transaction draft.
type provider struct {
	db *DB
	tx *state
}

func (p *provider) with(fn func(st *state) error) error {
	if p.tx != nil {
		return fn(p.tx)
	}
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	return fn(p.db.st)
}

func (p *provider) Discussions() store.DiscussionStore   { return &discussionStore{p} }
func (p *provider) Responses() store.ResponseStore       { return &responseStore{p} }
func (p *provider) TurnFailures() store.TurnFailureStore { return &turnFailureStore{p} }
func (p *provider) Agents() store.AgentStore             { return &agentStore{p} }
func (p *provider) Messages() store.MessageStore         { return &messageStore{p} }
func (p *provider) UserPatterns() store.UserPatternStore { return &userPatternStore{p} }

var (
	_ store.TxRunner      = (*DB)(nil)
	_ store.StoreProvider = (*provider)(nil)
)
