package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/queue"
	"basegraph.app/roundtable/internal/service"
	"basegraph.app/roundtable/internal/store"
	"basegraph.app/roundtable/internal/store/memory"
)

var _ = Describe("DiscussionService", func() {
	var (
		ctx      context.Context
		stores   store.StoreProvider
		orch     *discussion.Orchestrator
		producer *mockProducer
		svc      service.DiscussionService
		msg      *model.Message
	)

	BeforeEach(func() {
		ctx = context.Background()
		db := memory.New()
		stores = db.Stores()
		orch = discussion.NewOrchestrator(discussion.Deps{Stores: stores, TxRunner: db, Generator: stubGenerator{}}, discussion.Config{BatchSize: 1})
		producer = &mockProducer{}
		svc = service.NewDiscussionService(orch, producer, nil)

		for i, p := range []model.Persona{model.PersonaStrategic, model.PersonaCritic} {
			_, err := stores.Agents().Upsert(ctx, &model.Agent{ID: int64(i + 1), Name: string(p), Persona: p})
			Expect(err).NotTo(HaveOccurred())
		}
		var err error
		msg, err = stores.Messages().CreateUserMessage(ctx, 7, 99, "thoughts?")
		Expect(err).NotTo(HaveOccurred())
	})

	create := func(autoRun bool) *service.CreateDiscussionResult {
		res, err := svc.Create(ctx, service.CreateDiscussionParams{RoomID: 7, MessageID: msg.ID, AgentIDs: []int64{1, 2}, AutoRun: autoRun})
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	It("enqueues the first batch when auto run is requested", func() {
		res := create(true)

		Expect(res.Enqueued).To(BeTrue())
		Expect(producer.enqueued).To(HaveLen(1))
		Expect(producer.enqueued[0].DiscussionID).To(Equal(res.Discussion.ID))
		Expect(producer.enqueued[0].Reason).To(Equal("created"))
	})

	It("keeps the discussion when the auto run cannot be enqueued", func() {
		producer.enqueueFn = func(context.Context, queue.RunRequest) error { return errors.New("redis down") }

		res := create(true)

		Expect(res.Enqueued).To(BeFalse())
		_, err := svc.Get(ctx, res.Discussion.ID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("runs a batch synchronously", func() {
		res := create(false)

		out, err := svc.Run(ctx, res.Discussion.ID, false, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Enqueued).To(BeFalse())
		Expect(out.Outcome.TurnsCompleted).To(Equal(1))
		Expect(out.Outcome.HasMore).To(BeTrue())
	})

	It("only enqueues async runs", func() {
		res := create(false)

		out, err := svc.Run(ctx, res.Discussion.ID, true, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Enqueued).To(BeTrue())
		Expect(out.Outcome).To(BeNil())
		Expect(producer.enqueued).To(HaveLen(1))
	})

	It("refuses async work without a queue", func() {
		svc = service.NewDiscussionService(orch, nil, nil)
		res := create(false)

		_, err := svc.Run(ctx, res.Discussion.ID, true, nil)
		Expect(err).To(MatchError(service.ErrAsyncUnavailable))

		_, err = svc.Create(ctx, service.CreateDiscussionParams{RoomID: 7, MessageID: msg.ID, AgentIDs: []int64{1}, AutoRun: true})
		Expect(err).To(MatchError(service.ErrAsyncUnavailable))
	})

	It("re-enqueues a resumed discussion", func() {
		res := create(false)
		paused, err := svc.Pause(ctx, res.Discussion.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(paused.Discussion.Status).To(Equal(model.DiscussionStatusPaused))

		resumed, err := svc.Resume(ctx, res.Discussion.ID, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(resumed.Discussion.Status).To(Equal(model.DiscussionStatusActive))
		Expect(producer.enqueued).To(HaveLen(1))
		Expect(producer.enqueued[0].Reason).To(Equal("resumed"))
	})

	It("passes invalid transitions through", func() {
		res := create(false)
		_, err := svc.Stop(ctx, res.Discussion.ID)
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.Pause(ctx, res.Discussion.ID)
		Expect(err).To(MatchError(discussion.ErrInvalidTransition))
	})
})
