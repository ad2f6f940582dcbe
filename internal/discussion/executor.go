package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/roundtable/common/id"
	"basegraph.app/roundtable/common/llm"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
)

// Generation is a speaker's reply and how long producing it took.
type Generation struct {
	Content          string
	ProcessingTimeMs int64
}

// Generator produces one agent's reply for one turn.
type Generator interface {
	Generate(ctx context.Context, agent model.Agent, tc TurnContext, userMessage string) (*Generation, error)
}

// AgentDirectory resolves agent descriptors.
type AgentDirectory interface {
	GetByID(ctx context.Context, id int64) (*model.Agent, error)
}

// MessageIndexer receives committed agent messages for later context retrieval.
// Indexing is best effort.
type MessageIndexer interface {
	Index(ctx context.Context, msg model.Message, authorName string) error
}

// ErrTurnAlreadyCommitted is the benign outcome of losing a race for a turn slot.
var ErrTurnAlreadyCommitted = errors.New("turn already committed")

// Executor runs exactly one turn: resolve the agent, generate, and commit the
// message, the response and the checkpoint advance together.
type Executor struct {
	agents    AgentDirectory
	generator Generator
	txRunner  store.TxRunner
	indexer   MessageIndexer
}

func NewExecutor(agents AgentDirectory, generator Generator, txRunner store.TxRunner, indexer MessageIndexer) *Executor {
	return &Executor{agents: agents, generator: generator, txRunner: txRunner, indexer: indexer}
}

type ExecuteParams struct {
	Discussion  *model.Discussion
	TurnIndex   int
	TurnContext TurnContext
	UserMessage string
}

type ExecuteResult struct {
	Agent    model.Agent
	Response *model.DiscussionResponse
	Message  *model.Message
}

// Execute returns *ExecutionError for turn-local failures (nothing persisted),
// ErrTurnAlreadyCommitted when another writer owns the slot or the discussion was
// stopped meanwhile, and *PersistenceError when the commit itself failed.
func (e *Executor) Execute(ctx context.Context, p ExecuteParams) (*ExecuteResult, error) {
	d := p.Discussion
	agentID, ok := d.AgentAt(p.TurnIndex)
	if !ok {
		return nil, fmt.Errorf("turn %d outside discussion %d limit %d", p.TurnIndex, d.ID, d.TurnLimit())
	}

	agent, err := e.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = ErrAgentNotFound
		}
		return nil, &ExecutionError{Kind: model.TurnErrorUnavailable, AgentID: agentID, TurnIndex: p.TurnIndex, Err: err}
	}

	gen, err := e.generator.Generate(ctx, *agent, p.TurnContext, p.UserMessage)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ExecutionError{Kind: classify(err), AgentID: agentID, TurnIndex: p.TurnIndex, Err: err}
	}
	if gen == nil || strings.TrimSpace(gen.Content) == "" {
		return nil, &ExecutionError{Kind: model.TurnErrorMalformedResponse, AgentID: agentID, TurnIndex: p.TurnIndex, Err: ErrEmptyReply}
	}

	result := &ExecuteResult{Agent: *agent}
	err = e.txRunner.WithTx(ctx, func(stores store.StoreProvider) error {
		msg, err := stores.Messages().CreateAgentMessage(ctx, d.RoomID, agentID, gen.Content, gen.ProcessingTimeMs)
		if err != nil {
			return fmt.Errorf("creating agent message: %w", err)
		}

		resp, err := stores.Responses().Create(ctx, &model.DiscussionResponse{
			ID:                  id.New(),
			DiscussionID:        d.ID,
			AgentID:             agentID,
			TurnIndex:           p.TurnIndex,
			RespondingToAgentID: p.TurnContext.RespondingToAgentID,
			MessageID:           msg.ID,
		})
		if err != nil {
			return fmt.Errorf("creating response: %w", err)
		}

		if _, err := stores.Discussions().AdvanceTurn(ctx, store.AdvanceTurnParams{
			DiscussionID: d.ID,
			ExpectedTurn: p.TurnIndex,
		}); err != nil {
			return fmt.Errorf("advancing checkpoint: %w", err)
		}

		resp.Content = msg.Content
		resp.ProcessingTimeMs = msg.ProcessingTimeMs
		result.Response = resp
		result.Message = msg
		return nil
	})
	if err != nil {
		if isBenignCommitConflict(err) {
			return nil, fmt.Errorf("%w: %v", ErrTurnAlreadyCommitted, err)
		}
		return nil, persistence("committing turn", err)
	}

	if e.indexer != nil {
		if err := e.indexer.Index(ctx, *result.Message, agent.Name); err != nil {
			slog.WarnContext(ctx, "indexing agent message failed", "message_id", result.Message.ID, "error", err)
		}
	}

	return result, nil
}

func isBenignCommitConflict(err error) bool {
	return errors.Is(err, store.ErrDuplicateTurn) ||
		errors.Is(err, store.ErrCheckpointConflict) ||
		errors.Is(err, store.ErrDiscussionClosed)
}

func classify(err error) model.TurnErrorKind {
	switch llm.Classify(err) {
	case llm.ClassQuotaExceeded:
		return model.TurnErrorQuotaExceeded
	case llm.ClassMalformed:
		return model.TurnErrorMalformedResponse
	default:
		return model.TurnErrorUnavailable
	}
}
