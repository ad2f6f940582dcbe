package store

import (
	"context"

	"basegraph.app/roundtable/core/db"
)

type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Discussions() DiscussionStore {
	return newDiscussionStore(s.q)
}

func (s *Stores) Responses() ResponseStore {
	return newResponseStore(s.q)
}

func (s *Stores) TurnFailures() TurnFailureStore {
	return newTurnFailureStore(s.q)
}

func (s *Stores) Agents() AgentStore {
	return newAgentStore(s.q)
}

func (s *Stores) Messages() MessageStore {
	return newMessageStore(s.q)
}

func (s *Stores) UserPatterns() UserPatternStore {
	return newUserPatternStore(s.q)
}

type dbTxRunner struct {
	db *db.DB
}

// NewTxRunner builds a TxRunner backed by the core DB.
func NewTxRunner(database *db.DB) TxRunner {
	return &dbTxRunner{db: database}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.db.WithTx(ctx, func(q db.Querier) error {
		return fn(NewStores(q))
	})
}
