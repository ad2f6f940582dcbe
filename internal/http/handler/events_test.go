package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"basegraph.app/roundtable/internal/events"
	"basegraph.app/roundtable/internal/http/handler"
	"basegraph.app/roundtable/internal/model"
)

var _ = Describe("EventsHandler", func() {
	var (
		router *gin.Engine
		client *redis.Client
		sink   *events.RedisStreamSink
	)

	BeforeEach(func() {
		mr, err := miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(mr.Close)
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(client.Close)
		sink = events.NewRedisStreamSink(client, "discussion-events", 100)

		gin.SetMode(gin.TestMode)
		router = gin.New()
		h := handler.NewEventsHandler(client, "discussion-events", 50*time.Millisecond)
		router.GET("/rooms/:room_id/events", h.Stream)
	})

	publish := func(discussionID int64, kind events.EventKind) {
		Expect(sink.Publish(context.Background(), 7, events.ProgressEvent{
			Kind:         kind,
			RoomID:       7,
			DiscussionID: discussionID,
			Status:       model.DiscussionStatusActive,
		})).To(Succeed())
	}

	// stream serves the request until the client goes away.
	stream := func(path string, lastEventID string) *httptest.ResponseRecorder {
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
		if lastEventID != "" {
			req.Header.Set("Last-Event-ID", lastEventID)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("replays the room stream as named events", func() {
		publish(1, events.EventTurnStarting)
		publish(1, events.EventTurnComplete)

		w := stream("/rooms/7/events?last_id=0", "")

		Expect(w.Header().Get("Content-Type")).To(Equal("text/event-stream"))
		body := w.Body.String()
		Expect(body).To(HavePrefix("event: ping\ndata: ready\n\n"))
		starting := strings.Index(body, "event: turn_starting\n")
		complete := strings.Index(body, "event: turn_complete\n")
		Expect(starting).To(BeNumerically(">", 0))
		Expect(complete).To(BeNumerically(">", starting))
		Expect(body).To(ContainSubstring(`"discussion_id":"1"`))
		Expect(body).To(MatchRegexp(`id: \d+-\d+\nevent: turn_starting`))
	})

	It("filters by discussion", func() {
		publish(1, events.EventTurnStarting)
		publish(2, events.EventTurnError)

		body := stream("/rooms/7/events?last_id=0&discussion_id=2", "").Body.String()

		Expect(body).To(ContainSubstring("event: turn_error"))
		Expect(body).NotTo(ContainSubstring("event: turn_starting"))
	})

	It("resumes after Last-Event-ID", func() {
		first, err := client.XAdd(context.Background(), &redis.XAddArgs{
			Stream: events.StreamName("discussion-events", 7),
			Values: map[string]any{"kind": "turn_starting", "discussion_id": "1", "payload": `{"kind":"turn_starting","room_id":"7","discussion_id":"1"}`},
		}).Result()
		Expect(err).NotTo(HaveOccurred())
		publish(1, events.EventTurnComplete)

		body := stream("/rooms/7/events", first).Body.String()

		Expect(body).NotTo(ContainSubstring("event: turn_starting"))
		Expect(body).To(ContainSubstring("event: turn_complete"))
	})

	It("pings while the stream is idle", func() {
		body := stream("/rooms/7/events", "").Body.String()
		Expect(strings.Count(body, "event: ping")).To(BeNumerically(">=", 2))
	})

	It("rejects a bad room id", func() {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/x/events", nil))
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})
