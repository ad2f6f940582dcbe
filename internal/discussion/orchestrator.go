package discussion

import (
	"context"
	"math/rand/v2"
	"time"

	"basegraph.app/roundtable/internal/events"
	"basegraph.app/roundtable/internal/lock"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
)

const (
	defaultBatchSize    = 3
	defaultContextLimit = 10
)

// ContextProvider supplies room history related to the user's message.
type ContextProvider interface {
	GetRecentContext(ctx context.Context, roomID int64, query string, limit int) ([]HistorySnippet, error)
}

type Config struct {
	BatchSize       int
	PacingMin       time.Duration
	PacingMax       time.Duration
	ContextLimit    int
	MaxTurnsCeiling int // 0 disables the ceiling
}

// Deps are the collaborators an Orchestrator needs. History, Indexer, Broadcaster
// and Locker are optional.
type Deps struct {
	Stores      store.StoreProvider
	TxRunner    store.TxRunner
	Generator   Generator
	History     ContextProvider
	Indexer     MessageIndexer
	Broadcaster *events.Broadcaster
	Locker      lock.Locker
}

// Orchestrator owns the discussion lifecycle: creation, batch runs and
// pause/resume/stop. Every call re-reads state from the stores, so any number of
// processes can share the same discussions.
type Orchestrator struct {
	stores      store.StoreProvider
	txRunner    store.TxRunner
	executor    *Executor
	history     ContextProvider
	broadcaster *events.Broadcaster
	locker      lock.Locker
	cfg         Config
	pace        func(ctx context.Context) error
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = defaultContextLimit
	}
	if cfg.PacingMax < cfg.PacingMin {
		cfg.PacingMax = cfg.PacingMin
	}

	broadcaster := deps.Broadcaster
	if broadcaster == nil {
		broadcaster = events.NewBroadcaster(nil, 0)
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}

	o := &Orchestrator{
		stores:      deps.Stores,
		txRunner:    deps.TxRunner,
		executor:    NewExecutor(deps.Stores.Agents(), deps.Generator, deps.TxRunner, deps.Indexer),
		history:     deps.History,
		broadcaster: broadcaster,
		locker:      locker,
		cfg:         cfg,
	}
	o.pace = o.randomDelay
	return o
}

// randomDelay sleeps for a uniform duration in [PacingMin, PacingMax].
func (o *Orchestrator) randomDelay(ctx context.Context) error {
	d := o.cfg.PacingMin
	if span := o.cfg.PacingMax - o.cfg.PacingMin; span > 0 {
		d += rand.N(span + 1)
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunOutcome summarizes one Run call.
type RunOutcome struct {
	DiscussionID   int64                  `json:"discussion_id,string"`
	Status         model.DiscussionStatus `json:"status"`
	TurnsCompleted int                    `json:"turns_completed"`
	TurnsFailed    int                    `json:"turns_failed"`
	TurnsAttempted int                    `json:"turns_attempted"`
	TotalResponses int                    `json:"total_responses"`
	CurrentTurn    int                    `json:"current_turn"`
	TurnLimit      int                    `json:"turn_limit"`
	// HasMore is true when another Run call would execute turns.
	HasMore  bool                `json:"has_more"`
	Busy     bool                `json:"busy,omitempty"`
	Failures []model.TurnFailure `json:"failures,omitempty"`
}

func (r *RunOutcome) refresh(d *model.Discussion) {
	r.TurnsAttempted = r.TurnsCompleted + r.TurnsFailed
	r.Status = d.Status
	r.CurrentTurn = d.CurrentTurn
	r.TurnLimit = d.TurnLimit()
	r.HasMore = d.Status == model.DiscussionStatusActive && d.HasMore()
}

// Snapshot is the read model returned by GetStatus.
type Snapshot struct {
	Discussion     *model.Discussion          `json:"discussion"`
	Responses      []model.DiscussionResponse `json:"responses"`
	Failures       []model.TurnFailure        `json:"failures"`
	TurnLimit      int                        `json:"turn_limit"`
	HasMore        bool                       `json:"has_more"`
	CurrentAgentID *int64                     `json:"current_agent_id,omitempty,string"`
	NextAgentID    *int64                     `json:"next_agent_id,omitempty,string"`
}
