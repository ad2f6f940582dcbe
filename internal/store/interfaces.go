package store

import (
	"context"
	"errors"

	"basegraph.app/roundtable/internal/model"
)

var (
	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTurn is returned when a turn slot already holds a response or failure.
	ErrDuplicateTurn = errors.New("turn already committed")

	// ErrCheckpointConflict is returned when the discussion checkpoint moved under the writer.
	ErrCheckpointConflict = errors.New("checkpoint conflict")

	// ErrDiscussionClosed is returned when a turn commit targets a stopped or concluded discussion.
	ErrDiscussionClosed = errors.New("discussion closed")

	// ErrInvalidTransition is returned when a status change is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// AdvanceTurnParams moves the checkpoint one slot forward.
// The write only lands when current_turn still equals ExpectedTurn and the
// discussion is active or paused.
type AdvanceTurnParams struct {
	DiscussionID int64
	ExpectedTurn int
	Failed       bool
	LastError    *string
}

type DiscussionStore interface {
	Create(ctx context.Context, d *model.Discussion) (*model.Discussion, error)
	GetByID(ctx context.Context, id int64) (*model.Discussion, error)
	ListByRoom(ctx context.Context, roomID int64, limit int) ([]model.Discussion, error)
	// UpdateStatus is a compare-and-set on status. Returns ErrInvalidTransition when the
	// current status is not in from.
	UpdateStatus(ctx context.Context, id int64, from []model.DiscussionStatus, to model.DiscussionStatus) (*model.Discussion, error)
	AdvanceTurn(ctx context.Context, params AdvanceTurnParams) (*model.Discussion, error)
}

type ResponseStore interface {
	Create(ctx context.Context, r *model.DiscussionResponse) (*model.DiscussionResponse, error)
	// ListByDiscussion returns responses in turn order with message content joined in.
	ListByDiscussion(ctx context.Context, discussionID int64) ([]model.DiscussionResponse, error)
	Count(ctx context.Context, discussionID int64) (int, error)
}

type TurnFailureStore interface {
	Create(ctx context.Context, f *model.TurnFailure) (*model.TurnFailure, error)
	ListByDiscussion(ctx context.Context, discussionID int64) ([]model.TurnFailure, error)
}

type AgentStore interface {
	GetByID(ctx context.Context, id int64) (*model.Agent, error)
	// ListByIDs returns the agents that exist, in no particular order.
	ListByIDs(ctx context.Context, ids []int64) ([]model.Agent, error)
	Upsert(ctx context.Context, a *model.Agent) (*model.Agent, error)
}

type MessageStore interface {
	CreateUserMessage(ctx context.Context, roomID, userID int64, content string) (*model.Message, error)
	CreateAgentMessage(ctx context.Context, roomID, agentID int64, content string, processingTimeMs int64) (*model.Message, error)
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	// ListRecentByRoom returns the newest messages first.
	ListRecentByRoom(ctx context.Context, roomID int64, limit int) ([]model.Message, error)
}

type UserPatternStore interface {
	GetByUser(ctx context.Context, userID int64) (*model.UserPattern, error)
	Upsert(ctx context.Context, p *model.UserPattern) error
}

// StoreProvider exposes every store bound to one connection or transaction.
type StoreProvider interface {
	Discussions() DiscussionStore
	Responses() ResponseStore
	TurnFailures() TurnFailureStore
	Agents() AgentStore
	Messages() MessageStore
	UserPatterns() UserPatternStore
}

// TxRunner runs fn in a transaction and hands it stores bound to that transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}
