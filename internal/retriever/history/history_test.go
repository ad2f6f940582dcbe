package history_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roundtable/common/typesense"
	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/retriever/history"
	"basegraph.app/roundtable/internal/store/memory"
)

type mockTypesense struct {
	searchFn func(ctx context.Context, params typesense.SearchParams) ([]typesense.Document, error)
	upserted []typesense.Document
}

func (m *mockTypesense) EnsureCollection(ctx context.Context) error { return nil }

func (m *mockTypesense) UpsertDocument(ctx context.Context, doc typesense.Document) error {
	m.upserted = append(m.upserted, doc)
	return nil
}

func (m *mockTypesense) Search(ctx context.Context, params typesense.SearchParams) ([]typesense.Document, error) {
	return m.searchFn(ctx, params)
}

type stubProvider struct {
	snippets []discussion.HistorySnippet
	err      error
	calls    int
}

func (s *stubProvider) GetRecentContext(ctx context.Context, roomID int64, query string, limit int) ([]discussion.HistorySnippet, error) {
	s.calls++
	return s.snippets, s.err
}

var _ = Describe("Search", func() {
	var (
		ctx context.Context
		ts  *mockTypesense
	)

	BeforeEach(func() {
		ctx = context.Background()
		ts = &mockTypesense{}
	})

	It("maps hits to snippets and keeps their order", func() {
		var got typesense.SearchParams
		ts.searchFn = func(_ context.Context, params typesense.SearchParams) ([]typesense.Document, error) {
			got = params
			return []typesense.Document{
				{ID: "12", Author: "Ada", Content: "b", CreatedAt: 200},
				{ID: "not-a-number", Content: "skipped"},
				{ID: "11", Author: "sam", Content: "a", CreatedAt: 100},
			}, nil
		}

		snippets, err := history.NewSearch(ts).GetRecentContext(ctx, 7, "friday", 4)

		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(typesense.SearchParams{Query: "friday", RoomID: 7, Limit: 4}))
		Expect(snippets).To(HaveLen(2))
		Expect(snippets[0].MessageID).To(Equal(int64(12)))
		Expect(snippets[1].CreatedAt).To(Equal(time.Unix(100, 0).UTC()))
	})

	It("indexes messages under their id", func() {
		created := time.Unix(1700000000, 0)
		err := history.NewSearch(ts).Index(ctx, model.Message{ID: 55, RoomID: 7, Content: "hi", CreatedAt: created}, "Ada")

		Expect(err).NotTo(HaveOccurred())
		Expect(ts.upserted).To(Equal([]typesense.Document{{ID: "55", RoomID: 7, Author: "Ada", Content: "hi", CreatedAt: 1700000000}}))
	})
})

var _ = Describe("Recency", func() {
	It("returns the newest messages oldest first with author labels", func() {
		ctx := context.Background()
		db := memory.New()
		stores := db.Stores()
		_, err := stores.Agents().Upsert(ctx, &model.Agent{ID: 5, Name: "Ada", Persona: model.PersonaCritic})
		Expect(err).NotTo(HaveOccurred())

		_, err = stores.Messages().CreateUserMessage(ctx, 7, 99, "oldest")
		Expect(err).NotTo(HaveOccurred())
		_, err = stores.Messages().CreateUserMessage(ctx, 7, 99, "middle")
		Expect(err).NotTo(HaveOccurred())
		_, err = stores.Messages().CreateAgentMessage(ctx, 7, 5, "newest", 10)
		Expect(err).NotTo(HaveOccurred())
		_, err = stores.Messages().CreateUserMessage(ctx, 8, 99, "other room")
		Expect(err).NotTo(HaveOccurred())

		snippets, err := history.NewRecency(stores).GetRecentContext(ctx, 7, "ignored", 2)

		Expect(err).NotTo(HaveOccurred())
		Expect(snippets).To(HaveLen(2))
		Expect(snippets[0].Content).To(Equal("middle"))
		Expect(snippets[0].Author).To(Equal("user"))
		Expect(snippets[1].Content).To(Equal("newest"))
		Expect(snippets[1].Author).To(Equal("Ada"))
	})
})

var _ = Describe("Fallback", func() {
	It("uses the primary when it succeeds", func() {
		primary := &stubProvider{snippets: []discussion.HistorySnippet{{Content: "primary"}}}
		secondary := &stubProvider{}

		out, err := history.NewFallback(primary, secondary).GetRecentContext(context.Background(), 7, "q", 3)

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Content).To(Equal("primary"))
		Expect(secondary.calls).To(BeZero())
	})

	It("falls back when the primary fails", func() {
		primary := &stubProvider{err: errors.New("typesense down")}
		secondary := &stubProvider{snippets: []discussion.HistorySnippet{{Content: "recent"}}}

		out, err := history.NewFallback(primary, secondary).GetRecentContext(context.Background(), 7, "q", 3)

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Content).To(Equal("recent"))
	})
})
