package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/service"
	"basegraph.app/roundtable/internal/store"
	"basegraph.app/roundtable/internal/store/memory"
)

var _ = Describe("RoomService", func() {
	var (
		ctx     context.Context
		stores  store.StoreProvider
		indexer *mockIndexer
		svc     service.RoomService
	)

	BeforeEach(func() {
		ctx = context.Background()
		stores = memory.New().Stores()
		indexer = &mockIndexer{}
		svc = service.NewRoomService(stores, indexer, nil)
	})

	It("normalises unknown personas when upserting agents", func() {
		a, err := svc.UpsertAgent(ctx, service.UpsertAgentParams{ID: 5, Name: " Ada ", Persona: "contrarian"})

		Expect(err).NotTo(HaveOccurred())
		Expect(a.Name).To(Equal("Ada"))
		Expect(a.Persona).To(Equal(model.PersonaOther))
	})

	It("rejects agents without a name", func() {
		_, err := svc.UpsertAgent(ctx, service.UpsertAgentParams{ID: 5})
		Expect(err).To(MatchError(service.ErrInvalidInput))
	})

	It("stores and indexes user messages, tolerating index failures", func() {
		indexer.indexFn = func(context.Context, model.Message, string) error { return errors.New("typesense down") }

		msg, err := svc.PostMessage(ctx, service.PostMessageParams{RoomID: 7, UserID: 99, Content: "hello"})

		Expect(err).NotTo(HaveOccurred())
		Expect(indexer.indexed).To(HaveLen(1))
		stored, err := stores.Messages().GetByID(ctx, msg.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(*stored.AuthorUserID).To(Equal(int64(99)))
	})

	It("stores user patterns", func() {
		Expect(svc.SetUserPattern(ctx, model.UserPattern{UserID: 99, Summary: "terse", Traits: []string{"direct"}})).To(Succeed())

		p, err := stores.UserPatterns().GetByUser(ctx, 99)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Summary).To(Equal("terse"))
		Expect(p.UpdatedAt).NotTo(BeZero())
	})
})
