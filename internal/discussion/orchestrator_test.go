package discussion_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roundtable/common/logger"
	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/events"
	"basegraph.app/roundtable/internal/lock"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
	"basegraph.app/roundtable/internal/store/memory"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx       context.Context
		db        *memory.DB
		stores    store.StoreProvider
		generator *mockGenerator
		sink      *recordingSink
		indexer   *mockIndexer
		locker    *lock.Local
		cfg       discussion.Config
		orch      *discussion.Orchestrator
		msg       *model.Message
	)

	build := func() {
		orch = discussion.NewOrchestrator(discussion.Deps{
			Stores:      stores,
			TxRunner:    db,
			Generator:   generator,
			History:     staticHistory{},
			Indexer:     indexer,
			Broadcaster: events.NewBroadcaster(sink, 0),
			Locker:      locker,
		}, cfg)
	}

	create := func(agentIDs []int64, maxTurns *int) *model.Discussion {
		d, err := orch.CreateDiscussion(ctx, discussion.CreateParams{
			RoomID:    testRoomID,
			MessageID: msg.ID,
			AgentIDs:  agentIDs,
			Intensity: model.IntensityNormal,
			MaxTurns:  maxTurns,
		})
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	// slotsFilled returns the turn indexes holding a response or a failure.
	slotsFilled := func(discussionID int64) []int {
		snap, err := orch.GetStatus(ctx, discussionID)
		Expect(err).NotTo(HaveOccurred())
		filled := map[int]int{}
		for _, r := range snap.Responses {
			filled[r.TurnIndex]++
		}
		for _, f := range snap.Failures {
			filled[f.TurnIndex]++
		}
		out := make([]int, 0, len(filled))
		for i := 0; i < len(filled); i++ {
			Expect(filled[i]).To(Equal(1), "slot %d should hold exactly one record", i)
			out = append(out, i)
		}
		Expect(out).To(HaveLen(snap.Discussion.CurrentTurn))
		return out
	}

	BeforeEach(func() {
		ctx = context.Background()
		db = newMemory()
		stores = db.Stores()
		generator = &mockGenerator{}
		sink = &recordingSink{}
		indexer = &mockIndexer{}
		locker = lock.NewLocal()
		cfg = discussion.Config{BatchSize: 3}
		msg = seedMessage(ctx, stores, "should we deploy on fridays?")
		build()
	})

	Describe("CreateDiscussion", func() {
		It("plans the order and starts active at turn zero", func() {
			ids := seedAgents(ctx, stores, model.PersonaOther, model.PersonaStrategic)

			d := create(ids, nil)

			Expect(d.Status).To(Equal(model.DiscussionStatusActive))
			Expect(d.CurrentTurn).To(BeZero())
			Expect(d.TurnOrder).To(Equal([]int64{ids[1], ids[0]}))
			Expect(d.MaxTurns).To(Equal(2))
			Expect(*d.UserID).To(Equal(int64(99)))
			Expect(sink.kinds()).To(Equal([]events.EventKind{events.EventDiscussionLifecycle}))
		})

		It("deduplicates agent ids", func() {
			ids := seedAgents(ctx, stores, model.PersonaCritic)
			d := create([]int64{ids[0], ids[0]}, nil)
			Expect(d.TurnOrder).To(Equal([]int64{ids[0]}))
		})

		It("fails with a planning error when no agents are given", func() {
			_, err := orch.CreateDiscussion(ctx, discussion.CreateParams{RoomID: testRoomID, MessageID: msg.ID})

			var planningErr *discussion.PlanningError
			Expect(errors.As(err, &planningErr)).To(BeTrue())
		})

		It("rejects unknown agents", func() {
			_, err := orch.CreateDiscussion(ctx, discussion.CreateParams{RoomID: testRoomID, MessageID: msg.ID, AgentIDs: []int64{404}})
			Expect(err).To(MatchError(discussion.ErrUnknownAgents))
		})

		It("rejects a message from another room", func() {
			ids := seedAgents(ctx, stores, model.PersonaCritic)
			_, err := orch.CreateDiscussion(ctx, discussion.CreateParams{RoomID: 8, MessageID: msg.ID, AgentIDs: ids})
			Expect(err).To(MatchError(discussion.ErrMessageNotFound))
		})

		It("rejects negative max turns and unknown intensity", func() {
			ids := seedAgents(ctx, stores, model.PersonaCritic)
			_, err := orch.CreateDiscussion(ctx, discussion.CreateParams{RoomID: testRoomID, MessageID: msg.ID, AgentIDs: ids, MaxTurns: logger.Ptr(-1)})
			Expect(err).To(MatchError(discussion.ErrInvalidMaxTurns))

			_, err = orch.CreateDiscussion(ctx, discussion.CreateParams{RoomID: testRoomID, MessageID: msg.ID, AgentIDs: ids, Intensity: "loud"})
			Expect(err).To(MatchError(discussion.ErrInvalidIntensity))
		})

		It("caps max turns at the configured ceiling", func() {
			cfg.MaxTurnsCeiling = 1
			build()
			ids := seedAgents(ctx, stores, model.PersonaCritic, model.PersonaSkeptic)
			d := create(ids, logger.Ptr(10))
			Expect(d.MaxTurns).To(Equal(1))
		})
	})

	Describe("Run", func() {
		It("finishes a two-agent discussion in one call", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic, model.PersonaOther)
			d := create(ids, logger.Ptr(2))

			out, err := orch.Run(ctx, d.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out.TurnsCompleted).To(Equal(2))
			Expect(out.TotalResponses).To(Equal(2))
			Expect(out.Status).To(Equal(model.DiscussionStatusConcluded))
			Expect(out.HasMore).To(BeFalse())
			Expect(indexer.indexed).To(HaveLen(2))
		})

		It("runs five turns over two bounded batches", func() {
			ids := seedAgents(ctx, stores,
				model.PersonaStrategic, model.PersonaAnalytical, model.PersonaPragmatic,
				model.PersonaCreative, model.PersonaSupportive)
			d := create(ids, logger.Ptr(5))

			first, err := orch.Run(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.TurnsCompleted).To(Equal(3))
			Expect(first.TotalResponses).To(Equal(3))
			Expect(first.CurrentTurn).To(Equal(3))
			Expect(first.HasMore).To(BeTrue())
			Expect(first.Status).To(Equal(model.DiscussionStatusActive))

			second, err := orch.Run(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.TurnsCompleted).To(Equal(2))
			Expect(second.TotalResponses).To(Equal(5))
			Expect(second.HasMore).To(BeFalse())
			Expect(second.Status).To(Equal(model.DiscussionStatusConcluded))

			Expect(generator.turnIndexes()).To(Equal([]int{0, 1, 2, 3, 4}))
			Expect(slotsFilled(d.ID)).To(Equal([]int{0, 1, 2, 3, 4}))
		})

		It("concludes immediately when max turns is zero", func() {
			ids := seedAgents(ctx, stores, model.PersonaCritic)
			d := create(ids, logger.Ptr(0))

			out, err := orch.Run(ctx, d.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(model.DiscussionStatusConcluded))
			Expect(out.TotalResponses).To(BeZero())
			Expect(out.HasMore).To(BeFalse())
			Expect(generator.calls).To(BeEmpty())
		})

		It("is a no-op on a terminal discussion", func() {
			ids := seedAgents(ctx, stores, model.PersonaCritic, model.PersonaSkeptic)
			d := create(ids, nil)
			_, err := orch.Stop(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())

			out, err := orch.Run(ctx, d.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(model.DiscussionStatusStopped))
			Expect(out.TurnsCompleted).To(BeZero())
			Expect(generator.calls).To(BeEmpty())
		})

		It("hands each speaker the previous speaker's actual reply", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic, model.PersonaAnalytical)
			d := create(ids, nil)

			_, err := orch.Run(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())

			second := generator.calls[1].Context
			Expect(second.Role).To(Equal(discussion.RoleResponding))
			Expect(second.RespondingTo).NotTo(BeNil())
			Expect(second.RespondingTo.Content).To(Equal("agent-101 speaking at turn 0"))
		})

		It("records a failed turn and carries on with the next one", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic, model.PersonaAnalytical, model.PersonaPragmatic)
			d := create(ids, nil)
			generator.generateFn = func(ctx context.Context, agent model.Agent, tc discussion.TurnContext, _ string) (*discussion.Generation, error) {
				if tc.TurnIndex == 1 {
					return nil, errors.New("connection refused")
				}
				return &discussion.Generation{Content: "ok", ProcessingTimeMs: 5}, nil
			}

			out, err := orch.Run(ctx, d.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out.TurnsCompleted).To(Equal(2))
			Expect(out.TurnsFailed).To(Equal(1))
			Expect(out.Failures[0].Kind).To(Equal(model.TurnErrorUnavailable))
			Expect(out.Status).To(Equal(model.DiscussionStatusConcluded))

			snap, err := orch.GetStatus(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Responses).To(HaveLen(2))
			Expect(snap.Responses[0].TurnIndex).To(Equal(0))
			Expect(snap.Responses[1].TurnIndex).To(Equal(2))
			Expect(snap.Discussion.FailedTurns).To(Equal(1))
			Expect(*snap.Discussion.LastError).To(ContainSubstring("connection refused"))
			Expect(slotsFilled(d.ID)).To(Equal([]int{0, 1, 2}))

			Expect(sink.kinds()).To(Equal([]events.EventKind{
				events.EventDiscussionLifecycle,
				events.EventTurnStarting, events.EventTurnComplete,
				events.EventTurnStarting, events.EventTurnError,
				events.EventTurnStarting, events.EventTurnComplete,
				events.EventDiscussionLifecycle,
			}))
		})

		It("never retries a failed slot on later runs", func() {
			cfg.BatchSize = 1
			build()
			ids := seedAgents(ctx, stores, model.PersonaStrategic, model.PersonaAnalytical)
			d := create(ids, nil)
			generator.generateFn = func(context.Context, model.Agent, discussion.TurnContext, string) (*discussion.Generation, error) {
				return &discussion.Generation{Content: "   "}, nil
			}

			out, err := orch.Run(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Failures[0].Kind).To(Equal(model.TurnErrorMalformedResponse))

			generator.generateFn = nil
			_, err = orch.Run(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(generator.turnIndexes()).To(Equal([]int{0, 1}))
		})

		It("counts a missing agent as unavailable without calling the generator", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic)
			d := create(ids, nil)

			executor := discussion.NewExecutor(emptyDirectory{}, generator, db, nil)
			_, err := executor.Execute(ctx, discussion.ExecuteParams{Discussion: d, TurnIndex: 0})

			var execErr *discussion.ExecutionError
			Expect(errors.As(err, &execErr)).To(BeTrue())
			Expect(execErr.Kind).To(Equal(model.TurnErrorUnavailable))
			Expect(err).To(MatchError(discussion.ErrAgentNotFound))
			Expect(generator.calls).To(BeEmpty())
		})

		It("aborts on a persistence failure and leaves the checkpoint alone", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic, model.PersonaAnalytical)
			d := create(ids, nil)
			orch = discussion.NewOrchestrator(discussion.Deps{
				Stores:    stores,
				TxRunner:  failingTx{err: errors.New("connection reset")},
				Generator: generator,
			}, cfg)

			out, err := orch.Run(ctx, d.ID)

			Expect(out).To(BeNil())
			var persistErr *discussion.PersistenceError
			Expect(errors.As(err, &persistErr)).To(BeTrue())

			snap, err := orch.GetStatus(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Discussion.CurrentTurn).To(BeZero())
			Expect(snap.Responses).To(BeEmpty())
			Expect(snap.Failures).To(BeEmpty())
		})

		It("reports busy when another runner holds the discussion", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic)
			d := create(ids, nil)
			lease, err := locker.Acquire(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())
			defer lease.Release(ctx)

			out, err := orch.Run(ctx, d.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Busy).To(BeTrue())
			Expect(out.TurnsCompleted).To(BeZero())
			Expect(generator.calls).To(BeEmpty())
		})

		It("renews the lock between turns of a batch", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic, model.PersonaAnalytical, model.PersonaCritic)
			d := create(ids, nil)
			renewing := &renewingLocker{}
			orch = discussion.NewOrchestrator(discussion.Deps{
				Stores: stores, TxRunner: db, Generator: generator, Locker: renewing,
			}, cfg)

			out, err := orch.Run(ctx, d.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out.TurnsCompleted).To(Equal(3))
			Expect(renewing.extendCount()).To(Equal(2))
		})

		It("stops the batch once the lock has been lost", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic, model.PersonaAnalytical, model.PersonaCritic)
			d := create(ids, nil)
			orch = discussion.NewOrchestrator(discussion.Deps{
				Stores: stores, TxRunner: db, Generator: generator, Locker: &renewingLocker{loseAfter: 1},
			}, cfg)

			out, err := orch.Run(ctx, d.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out.TurnsCompleted).To(Equal(1))
			Expect(out.Status).To(Equal(model.DiscussionStatusActive))
			Expect(out.HasMore).To(BeTrue())
			Expect(generator.turnIndexes()).To(Equal([]int{0}))
		})

		It("treats a losing concurrent writer as a no-op", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic, model.PersonaAnalytical)
			d := create(ids, nil)
			stale := *d

			_, err := orch.Run(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())

			executor := discussion.NewExecutor(stores.Agents(), generator, db, nil)
			_, err = executor.Execute(ctx, discussion.ExecuteParams{Discussion: &stale, TurnIndex: 0})
			Expect(err).To(MatchError(discussion.ErrTurnAlreadyCommitted))
			Expect(slotsFilled(d.ID)).To(Equal([]int{0, 1}))
		})

		It("discards the in-flight turn when the discussion is stopped mid-turn", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic, model.PersonaAnalytical, model.PersonaPragmatic)
			d := create(ids, nil)
			generator.generateFn = func(ctx context.Context, agent model.Agent, tc discussion.TurnContext, _ string) (*discussion.Generation, error) {
				if tc.TurnIndex == 1 {
					_, err := orch.Stop(ctx, d.ID)
					Expect(err).NotTo(HaveOccurred())
				}
				return &discussion.Generation{Content: "still talking"}, nil
			}

			out, err := orch.Run(ctx, d.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(model.DiscussionStatusStopped))
			Expect(out.TurnsCompleted).To(Equal(1))
			Expect(out.CurrentTurn).To(Equal(1))
			Expect(out.TotalResponses).To(Equal(1))
		})

		It("returns the context error and keeps completed turns when cancelled", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic, model.PersonaAnalytical, model.PersonaPragmatic)
			d := create(ids, nil)
			runCtx, cancel := context.WithCancel(ctx)
			generator.generateFn = func(ctx context.Context, agent model.Agent, tc discussion.TurnContext, _ string) (*discussion.Generation, error) {
				if tc.TurnIndex == 1 {
					cancel()
					return nil, ctx.Err()
				}
				return &discussion.Generation{Content: "ok"}, nil
			}

			out, err := orch.Run(runCtx, d.ID)

			Expect(err).To(MatchError(context.Canceled))
			Expect(out.CurrentTurn).To(Equal(1))
			Expect(out.TurnsCompleted).To(Equal(1))
			Expect(out.TurnsFailed).To(BeZero())
			Expect(out.HasMore).To(BeTrue())
		})

		It("returns ErrDiscussionNotFound for unknown ids", func() {
			_, err := orch.Run(ctx, 12345)
			Expect(err).To(MatchError(discussion.ErrDiscussionNotFound))
		})
	})

	Describe("lifecycle", func() {
		var d *model.Discussion

		BeforeEach(func() {
			cfg.BatchSize = 2
			build()
			ids := seedAgents(ctx, stores,
				model.PersonaStrategic, model.PersonaAnalytical, model.PersonaPragmatic,
				model.PersonaCreative, model.PersonaSupportive)
			d = create(ids, nil)
		})

		It("resumes a paused discussion without re-running earlier turns", func() {
			_, err := orch.Run(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())

			paused, err := orch.Pause(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(paused.Status).To(Equal(model.DiscussionStatusPaused))
			Expect(paused.CurrentTurn).To(Equal(2))

			out, err := orch.Run(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.TurnsCompleted).To(BeZero())
			Expect(out.HasMore).To(BeFalse())

			resumed, err := orch.Resume(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(resumed.CurrentTurn).To(Equal(2))

			for {
				out, err = orch.Run(ctx, d.ID)
				Expect(err).NotTo(HaveOccurred())
				if !out.HasMore {
					break
				}
			}

			Expect(out.Status).To(Equal(model.DiscussionStatusConcluded))
			Expect(generator.turnIndexes()).To(Equal([]int{0, 1, 2, 3, 4}))
		})

		It("halts a batch at the next turn boundary after a pause", func() {
			generator.generateFn = func(ctx context.Context, agent model.Agent, tc discussion.TurnContext, _ string) (*discussion.Generation, error) {
				if tc.TurnIndex == 0 {
					_, err := orch.Pause(ctx, d.ID)
					Expect(err).NotTo(HaveOccurred())
				}
				return &discussion.Generation{Content: "ok"}, nil
			}

			out, err := orch.Run(ctx, d.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out.TurnsCompleted).To(Equal(1))
			Expect(out.Status).To(Equal(model.DiscussionStatusPaused))
			Expect(out.CurrentTurn).To(Equal(1))
		})

		DescribeTable("rejects transitions the state machine forbids",
			func(prepare func(), act func() error) {
				prepare()
				Expect(act()).To(MatchError(discussion.ErrInvalidTransition))
			},
			Entry("resume while active", func() {}, func() error {
				_, err := orch.Resume(ctx, d.ID)
				return err
			}),
			Entry("pause while paused", func() {
				_, err := orch.Pause(ctx, d.ID)
				Expect(err).NotTo(HaveOccurred())
			}, func() error {
				_, err := orch.Pause(ctx, d.ID)
				return err
			}),
			Entry("resume after stop", func() {
				_, err := orch.Stop(ctx, d.ID)
				Expect(err).NotTo(HaveOccurred())
			}, func() error {
				_, err := orch.Resume(ctx, d.ID)
				return err
			}),
		)

		It("emits one lifecycle event per transition with the agents around the checkpoint", func() {
			_, err := orch.Run(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())
			sink.reset()

			_, err = orch.Stop(ctx, d.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(sink.events).To(HaveLen(1))
			ev := sink.events[0]
			Expect(ev.FromStatus).To(Equal(model.DiscussionStatusActive))
			Expect(ev.Status).To(Equal(model.DiscussionStatusStopped))
			Expect(*ev.CurrentAgentID).To(Equal(d.TurnOrder[1]))
			Expect(*ev.NextAgentID).To(Equal(d.TurnOrder[2]))
		})
	})

	Describe("ListDiscussions", func() {
		It("returns the room's discussions newest first", func() {
			ids := seedAgents(ctx, stores, model.PersonaStrategic)
			first := create(ids, nil)
			second := create(ids, nil)

			list, err := orch.ListDiscussions(ctx, testRoomID, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].ID).To(Equal(second.ID))
			Expect(list[1].ID).To(Equal(first.ID))
		})
	})
})

type emptyDirectory struct{}

func (emptyDirectory) GetByID(ctx context.Context, id int64) (*model.Agent, error) {
	return nil, store.ErrNotFound
}
