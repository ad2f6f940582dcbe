package queue_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"basegraph.app/roundtable/internal/queue"
)

var _ = Describe("Redis queue", func() {
	var (
		ctx      context.Context
		mr       *miniredis.Miniredis
		client   *redis.Client
		producer queue.Producer
		consumer *queue.RedisConsumer
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(mr.Close)

		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(client.Close)

		producer = queue.NewRedisProducer(client, "discussion_runs", nil)
		consumer, err = queue.NewRedisConsumer(ctx, client, queue.ConsumerConfig{
			Stream:    "discussion_runs",
			Group:     "workers",
			Consumer:  "worker-1",
			DLQStream: "discussion_runs_dlq",
			BatchSize: 10,
			Block:     10 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("delivers enqueued runs to the consumer", func() {
		trace := "4bf92f3577b34da6a3ce929d0e0e4736"
		Expect(producer.Enqueue(ctx, queue.RunRequest{DiscussionID: 42, RoomID: 7, TraceID: &trace, Reason: "created"})).To(Succeed())

		msgs, err := consumer.Read(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].TaskType).To(Equal(queue.TaskTypeDiscussionRun))
		Expect(msgs[0].DiscussionID).To(Equal(int64(42)))
		Expect(msgs[0].RoomID).To(Equal(int64(7)))
		Expect(msgs[0].Attempt).To(Equal(1))
		Expect(msgs[0].TraceID).To(Equal(trace))
		Expect(msgs[0].Reason).To(Equal("created"))
	})

	It("returns nothing when the stream is empty", func() {
		msgs, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
	})

	It("requeues with the next attempt and acks the original", func() {
		Expect(producer.Enqueue(ctx, queue.RunRequest{DiscussionID: 42, RoomID: 7})).To(Succeed())
		msgs, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(consumer.Requeue(ctx, msgs[0], "db down")).To(Succeed())

		pending, err := client.XPending(ctx, "discussion_runs", "workers").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending.Count).To(BeZero())

		again, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(HaveLen(1))
		Expect(again[0].Attempt).To(Equal(2))
		Expect(again[0].Raw.Values).To(HaveKeyWithValue("last_error", "db down"))
	})

	It("moves messages to the dead letter stream", func() {
		Expect(producer.Enqueue(ctx, queue.RunRequest{DiscussionID: 42, RoomID: 7})).To(Succeed())
		msgs, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(consumer.SendDLQ(ctx, msgs[0], "gave up")).To(Succeed())

		dead, err := client.XRange(ctx, "discussion_runs_dlq", "-", "+").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(dead).To(HaveLen(1))
		Expect(dead[0].Values).To(HaveKeyWithValue("error", "gave up"))
		Expect(dead[0].Values).To(HaveKeyWithValue("discussion_id", "42"))
	})

	It("acks and skips messages it cannot parse", func() {
		Expect(client.XAdd(ctx, &redis.XAddArgs{Stream: "discussion_runs", Values: map[string]any{"task_type": "mystery"}}).Err()).To(Succeed())

		msgs, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())

		pending, err := client.XPending(ctx, "discussion_runs", "workers").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending.Count).To(BeZero())
	})

	It("tolerates an existing consumer group", func() {
		_, err := queue.NewRedisConsumer(ctx, client, queue.ConsumerConfig{Stream: "discussion_runs", Group: "workers"})
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = DescribeTable("ParseMessage",
	func(values map[string]any, wantErr bool) {
		_, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values})
		if wantErr {
			Expect(err).To(HaveOccurred())
		} else {
			Expect(err).NotTo(HaveOccurred())
		}
	},
	Entry("complete", map[string]any{"task_type": "discussion_run", "discussion_id": "1", "room_id": "2", "attempt": "3"}, false),
	Entry("task type defaults to discussion_run", map[string]any{"discussion_id": "1", "room_id": "2"}, false),
	Entry("missing discussion id", map[string]any{"room_id": "2"}, true),
	Entry("non-numeric room", map[string]any{"discussion_id": "1", "room_id": "x"}, true),
	Entry("bad attempt", map[string]any{"discussion_id": "1", "room_id": "2", "attempt": "two"}, true),
	Entry("unknown task type", map[string]any{"task_type": "repo_sync", "discussion_id": "1", "room_id": "2"}, true),
)
