package service

import (
	"log/slog"

	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/queue"
	"basegraph.app/roundtable/internal/store"
)

type Services struct {
	stores   store.StoreProvider
	orch     Orchestrator
	producer queue.Producer
	indexer  discussion.MessageIndexer
	logger   *slog.Logger
}

// NewServices wires the services. producer and indexer may be nil.
func NewServices(stores store.StoreProvider, orch Orchestrator, producer queue.Producer, indexer discussion.MessageIndexer, logger *slog.Logger) *Services {
	return &Services{
		stores:   stores,
		orch:     orch,
		producer: producer,
		indexer:  indexer,
		logger:   logger,
	}
}

func (s *Services) Discussions() DiscussionService {
	return NewDiscussionService(s.orch, s.producer, s.logger)
}

func (s *Services) Rooms() RoomService {
	return NewRoomService(s.stores, s.indexer, s.logger)
}
