package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/roundtable/common/id"
	"basegraph.app/roundtable/common/logger"
	"basegraph.app/roundtable/internal/events"
	"basegraph.app/roundtable/internal/lock"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
)

// Run executes the next batch of turns, resuming at the stored checkpoint.
// A discussion that is not active is returned untouched. Reaching the turn limit
// concludes the discussion in the same call.
func (o *Orchestrator) Run(ctx context.Context, discussionID int64) (*RunOutcome, error) {
	sc := logger.StartSpan(ctx, "discussion.run")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		DiscussionID: logger.Ptr(discussionID),
		Component:    "roundtable.discussion.runner",
	})

	lease, err := o.locker.Acquire(ctx, discussionID)
	if errors.Is(err, lock.ErrHeld) {
		d, getErr := o.load(ctx, discussionID)
		if getErr != nil {
			return nil, getErr
		}
		slog.InfoContext(ctx, "discussion already running elsewhere")
		outcome := &RunOutcome{DiscussionID: discussionID, Busy: true}
		outcome.refresh(d)
		return outcome, nil
	}
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("acquiring discussion lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "releasing discussion lock failed", "error", err)
		}
	}()

	outcome, err := o.runLocked(ctx, discussionID, lease)
	if err != nil {
		sc.RecordError(err)
	}
	if outcome != nil {
		sc.SetAttributes(
			attribute.Int("turns_completed", outcome.TurnsCompleted),
			attribute.Int("turns_failed", outcome.TurnsFailed),
			attribute.String("status", string(outcome.Status)),
		)
	}
	return outcome, err
}

func (o *Orchestrator) runLocked(ctx context.Context, discussionID int64, lease lock.Lease) (*RunOutcome, error) {
	d, err := o.load(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{RoomID: logger.Ptr(d.RoomID)})

	outcome := &RunOutcome{DiscussionID: d.ID}
	outcome.refresh(d)

	if d.Status != model.DiscussionStatusActive {
		return o.finish(ctx, outcome, d)
	}

	limit := d.TurnLimit()
	if d.CurrentTurn >= limit {
		concluded, err := o.conclude(ctx, d)
		if err != nil {
			return nil, err
		}
		return o.finish(ctx, outcome, concluded)
	}

	userMsg, err := o.stores.Messages().GetByID(ctx, d.MessageID)
	if err != nil {
		return nil, persistence("loading trigger message", err)
	}
	responses, err := o.stores.Responses().ListByDiscussion(ctx, d.ID)
	if err != nil {
		return nil, persistence("loading prior responses", err)
	}
	names, err := o.agentNames(ctx, d.TurnOrder)
	if err != nil {
		return nil, persistence("loading agents", err)
	}
	pattern := o.loadPattern(ctx, d)
	history := o.loadHistory(ctx, d, userMsg.Content)

	start := d.CurrentTurn
	end := min(start+o.cfg.BatchSize, limit)

	for idx := start; idx < end; idx++ {
		if idx > start {
			if err := o.pace(ctx); err != nil {
				return o.interrupted(ctx, outcome, d.ID, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return o.interrupted(ctx, outcome, d.ID, err)
		}
		if idx > start {
			if err := lease.Extend(ctx); err != nil {
				if errors.Is(err, lock.ErrLost) {
					slog.WarnContext(ctx, "discussion lock expired mid-batch, leaving the rest to its new holder", "turn_index", idx)
					return o.reloadAndFinish(ctx, outcome, d.ID)
				}
				// Commits stay guarded by the checkpoint, so a failed renewal only risks a duplicate call.
				slog.WarnContext(ctx, "extending discussion lock failed", "error", err, "turn_index", idx)
			}
		}

		// Pause and stop take effect here, between turns.
		current, err := o.load(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if current.Status != model.DiscussionStatusActive || current.CurrentTurn != idx {
			slog.InfoContext(ctx, "batch halted at turn boundary",
				"status", current.Status,
				"checkpoint", current.CurrentTurn,
				"expected_turn", idx)
			break
		}

		tc := BuildTurnContext(current, idx, responses, names, history, pattern)
		resp, failure, err := o.runTurn(ctx, current, idx, tc, userMsg.Content, names)
		switch {
		case err == nil && resp != nil:
			outcome.TurnsCompleted++
			responses = append(responses, *resp)
		case err == nil && failure != nil:
			outcome.TurnsFailed++
			outcome.Failures = append(outcome.Failures, *failure)
		case errors.Is(err, ErrTurnAlreadyCommitted):
			slog.InfoContext(ctx, "turn slot taken by another writer, ending batch", "turn_index", idx, "error", err)
			return o.reloadAndFinish(ctx, outcome, d.ID)
		default:
			if ctx.Err() != nil {
				return o.interrupted(ctx, outcome, d.ID, ctx.Err())
			}
			return nil, err
		}
	}

	return o.reloadAndFinish(ctx, outcome, d.ID)
}

// runTurn executes one slot. Exactly one of response or failure is set on a nil error.
func (o *Orchestrator) runTurn(
	ctx context.Context,
	d *model.Discussion,
	idx int,
	tc TurnContext,
	userMessage string,
	names map[int64]string,
) (*model.DiscussionResponse, *model.TurnFailure, error) {
	agentID := d.TurnOrder[idx]
	sc := logger.StartSpan(ctx, "discussion.turn")
	defer sc.End()
	sc.SetAttributes(attribute.Int("turn_index", idx), attribute.Int64("agent_id", agentID))
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		AgentID:   logger.Ptr(agentID),
		TurnIndex: logger.Ptr(idx),
	})

	turn := events.TurnInfo{Discussion: d, TurnIndex: idx, AgentID: agentID, AgentName: names[agentID]}
	o.broadcaster.TurnStarting(ctx, turn)

	result, err := o.executor.Execute(ctx, ExecuteParams{
		Discussion:  d,
		TurnIndex:   idx,
		TurnContext: tc,
		UserMessage: userMessage,
	})
	if err == nil {
		slog.InfoContext(ctx, "turn completed",
			"message_id", result.Message.ID,
			"processing_time_ms", result.Message.ProcessingTimeMs)
		o.broadcaster.TurnComplete(ctx, turn, result.Message.ID, result.Message.ProcessingTimeMs)
		return result.Response, nil, nil
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		sc.RecordError(err)
		return nil, nil, err
	}

	slog.WarnContext(ctx, "turn failed, moving on",
		"kind", execErr.Kind,
		"error", logger.Truncate(execErr.Error(), 300))

	failure, err := o.recordFailure(ctx, d, execErr)
	if err != nil {
		sc.RecordError(err)
		return nil, nil, err
	}
	o.broadcaster.TurnError(ctx, turn, execErr.Kind, execErr.Summary())
	return nil, failure, nil
}

// recordFailure occupies the slot with a failure record and advances the checkpoint.
func (o *Orchestrator) recordFailure(ctx context.Context, d *model.Discussion, execErr *ExecutionError) (*model.TurnFailure, error) {
	lastErr := logger.Truncate(execErr.Error(), 500)
	var failure *model.TurnFailure

	err := o.txRunner.WithTx(ctx, func(stores store.StoreProvider) error {
		created, err := stores.TurnFailures().Create(ctx, &model.TurnFailure{
			ID:           id.New(),
			DiscussionID: d.ID,
			AgentID:      execErr.AgentID,
			TurnIndex:    execErr.TurnIndex,
			Kind:         execErr.Kind,
			Summary:      execErr.Summary(),
		})
		if err != nil {
			return fmt.Errorf("recording turn failure: %w", err)
		}
		if _, err := stores.Discussions().AdvanceTurn(ctx, store.AdvanceTurnParams{
			DiscussionID: d.ID,
			ExpectedTurn: execErr.TurnIndex,
			Failed:       true,
			LastError:    &lastErr,
		}); err != nil {
			return fmt.Errorf("advancing checkpoint: %w", err)
		}
		failure = created
		return nil
	})
	if err != nil {
		if isBenignCommitConflict(err) {
			return nil, fmt.Errorf("%w: %v", ErrTurnAlreadyCommitted, err)
		}
		return nil, persistence("recording turn failure", err)
	}
	return failure, nil
}

func (o *Orchestrator) conclude(ctx context.Context, d *model.Discussion) (*model.Discussion, error) {
	concluded, err := o.transition(ctx, d.ID, model.DiscussionStatusConcluded)
	if errors.Is(err, ErrInvalidTransition) {
		// Paused or stopped concurrently. Leave it to that caller.
		return o.load(ctx, d.ID)
	}
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "discussion concluded", "turns", concluded.CurrentTurn, "failed_turns", concluded.FailedTurns)
	return concluded, nil
}

func (o *Orchestrator) reloadAndFinish(ctx context.Context, outcome *RunOutcome, discussionID int64) (*RunOutcome, error) {
	d, err := o.load(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if d.Status == model.DiscussionStatusActive && !d.HasMore() {
		if d, err = o.conclude(ctx, d); err != nil {
			return nil, err
		}
	}
	return o.finish(ctx, outcome, d)
}

// interrupted reports progress made before ctx ended, along with ctx's error.
func (o *Orchestrator) interrupted(ctx context.Context, outcome *RunOutcome, discussionID int64, cause error) (*RunOutcome, error) {
	slog.InfoContext(ctx, "run interrupted", "error", cause)
	out, err := o.reloadAndFinish(context.WithoutCancel(ctx), outcome, discussionID)
	if err != nil {
		return nil, err
	}
	return out, cause
}

func (o *Orchestrator) finish(ctx context.Context, outcome *RunOutcome, d *model.Discussion) (*RunOutcome, error) {
	total, err := o.stores.Responses().Count(ctx, d.ID)
	if err != nil {
		return nil, persistence("counting responses", err)
	}
	outcome.TotalResponses = total
	outcome.refresh(d)
	return outcome, nil
}

func (o *Orchestrator) load(ctx context.Context, discussionID int64) (*model.Discussion, error) {
	d, err := o.stores.Discussions().GetByID(ctx, discussionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDiscussionNotFound
		}
		return nil, persistence("loading discussion", err)
	}
	return d, nil
}

func (o *Orchestrator) agentNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	agents, err := o.stores.Agents().ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(agents))
	for _, a := range agents {
		names[a.ID] = a.Name
	}
	return names, nil
}

// loadPattern degrades to nil on any error.
func (o *Orchestrator) loadPattern(ctx context.Context, d *model.Discussion) *model.UserPattern {
	if d.UserID == nil {
		return nil
	}
	p, err := o.stores.UserPatterns().GetByUser(ctx, *d.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "loading user patterns failed, continuing without", "error", err)
		}
		return nil
	}
	return p
}

// loadHistory degrades to empty on any error.
func (o *Orchestrator) loadHistory(ctx context.Context, d *model.Discussion, query string) []HistorySnippet {
	if o.history == nil {
		return nil
	}
	snippets, err := o.history.GetRecentContext(ctx, d.RoomID, query, o.cfg.ContextLimit)
	if err != nil {
		slog.WarnContext(ctx, "loading room history failed, continuing without", "error", err)
		return nil
	}
	return snippets
}
