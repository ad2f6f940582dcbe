package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
)

var ErrInvalidInput = errors.New("invalid input")

type UpsertAgentParams struct {
	ID           int64
	Name         string
	Persona      string
	Instructions string
}

type PostMessageParams struct {
	RoomID  int64
	UserID  int64
	Content string
}

// RoomService manages what discussions draw on: agents, user messages and user patterns.
type RoomService interface {
	UpsertAgent(ctx context.Context, params UpsertAgentParams) (*model.Agent, error)
	PostMessage(ctx context.Context, params PostMessageParams) (*model.Message, error)
	SetUserPattern(ctx context.Context, pattern model.UserPattern) error
}

type roomService struct {
	stores  store.StoreProvider
	indexer discussion.MessageIndexer
	logger  *slog.Logger
}

// NewRoomService builds the service. indexer may be nil.
func NewRoomService(stores store.StoreProvider, indexer discussion.MessageIndexer, logger *slog.Logger) RoomService {
	if logger == nil {
		logger = slog.Default()
	}
	return &roomService{stores: stores, indexer: indexer, logger: logger}
}

func (s *roomService) UpsertAgent(ctx context.Context, params UpsertAgentParams) (*model.Agent, error) {
	name := strings.TrimSpace(params.Name)
	if params.ID == 0 || name == "" {
		return nil, fmt.Errorf("%w: agent id and name are required", ErrInvalidInput)
	}
	return s.stores.Agents().Upsert(ctx, &model.Agent{
		ID:           params.ID,
		Name:         name,
		Persona:      model.ParsePersona(params.Persona),
		Instructions: params.Instructions,
	})
}

func (s *roomService) PostMessage(ctx context.Context, params PostMessageParams) (*model.Message, error) {
	if params.RoomID == 0 || params.UserID == 0 || strings.TrimSpace(params.Content) == "" {
		return nil, fmt.Errorf("%w: room, user and content are required", ErrInvalidInput)
	}
	msg, err := s.stores.Messages().CreateUserMessage(ctx, params.RoomID, params.UserID, params.Content)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	if s.indexer != nil {
		if err := s.indexer.Index(ctx, *msg, "user"); err != nil {
			s.logger.WarnContext(ctx, "indexing user message failed", "message_id", msg.ID, "error", err)
		}
	}
	return msg, nil
}

func (s *roomService) SetUserPattern(ctx context.Context, pattern model.UserPattern) error {
	if pattern.UserID == 0 {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	pattern.UpdatedAt = time.Now().UTC()
	return s.stores.UserPatterns().Upsert(ctx, &pattern)
}
