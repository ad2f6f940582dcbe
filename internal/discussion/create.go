package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/roundtable/common/id"
	"basegraph.app/roundtable/common/logger"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
)

type CreateParams struct {
	RoomID    int64
	MessageID int64
	// UserID defaults to the trigger message's author.
	UserID    *int64
	AgentIDs  []int64
	Topic     *string
	Intensity model.Intensity
	// MaxTurns defaults to the number of agents when nil.
	MaxTurns *int
}

// CreateDiscussion plans the speaking order and persists an active discussion
// with its checkpoint at zero.
func (o *Orchestrator) CreateDiscussion(ctx context.Context, p CreateParams) (*model.Discussion, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RoomID:    logger.Ptr(p.RoomID),
		Component: "roundtable.discussion.create",
	})

	intensity, err := model.ParseIntensity(string(p.Intensity))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntensity, err)
	}
	if p.MaxTurns != nil && *p.MaxTurns < 0 {
		return nil, ErrInvalidMaxTurns
	}

	msg, err := o.stores.Messages().GetByID(ctx, p.MessageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("fetching trigger message: %w", err)
	}
	if msg.RoomID != p.RoomID {
		return nil, fmt.Errorf("%w: message %d is not in room %d", ErrMessageNotFound, p.MessageID, p.RoomID)
	}

	agents, err := o.resolveAgents(ctx, p.AgentIDs)
	if err != nil {
		return nil, err
	}

	order, err := Plan(agents, intensity)
	if err != nil {
		return nil, err
	}

	userID := msg.AuthorUserID
	if p.UserID != nil {
		userID = p.UserID
	}

	maxTurns := len(order)
	if p.MaxTurns != nil {
		maxTurns = *p.MaxTurns
	}
	if o.cfg.MaxTurnsCeiling > 0 && maxTurns > o.cfg.MaxTurnsCeiling {
		maxTurns = o.cfg.MaxTurnsCeiling
	}

	d, err := o.stores.Discussions().Create(ctx, &model.Discussion{
		ID:          id.New(),
		RoomID:      p.RoomID,
		MessageID:   p.MessageID,
		UserID:      userID,
		Topic:       p.Topic,
		Intensity:   intensity,
		TurnOrder:   order,
		CurrentTurn: 0,
		MaxTurns:    maxTurns,
		Status:      model.DiscussionStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("creating discussion: %w", err)
	}

	slog.InfoContext(ctx, "discussion created",
		"discussion_id", d.ID,
		"intensity", d.Intensity,
		"turn_order", d.TurnOrder,
		"max_turns", d.MaxTurns)

	o.broadcaster.Lifecycle(ctx, d, "")
	return d, nil
}

// resolveAgents returns the requested agents in request order, duplicates removed.
func (o *Orchestrator) resolveAgents(ctx context.Context, ids []int64) ([]model.Agent, error) {
	seen := make(map[int64]bool, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, agentID := range ids {
		if !seen[agentID] {
			seen[agentID] = true
			unique = append(unique, agentID)
		}
	}
	if len(unique) == 0 {
		return nil, &PlanningError{Err: ErrNoAgents}
	}

	found, err := o.stores.Agents().ListByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("fetching agents: %w", err)
	}
	byID := make(map[int64]model.Agent, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}

	agents := make([]model.Agent, 0, len(unique))
	var missing []int64
	for _, agentID := range unique {
		a, ok := byID[agentID]
		if !ok {
			missing = append(missing, agentID)
			continue
		}
		agents = append(agents, a)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAgents, missing)
	}
	return agents, nil
}
