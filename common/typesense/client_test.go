package typesense_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roundtable/common/typesense"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   string
}

var _ = Describe("Client", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		mu       sync.Mutex
		requests []recordedRequest
		status   int
		reply    string
		client   typesense.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		requests = nil
		status = http.StatusOK
		reply = `{}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			q := map[string]string{}
			for k, v := range r.URL.Query() {
				q[k] = v[0]
			}
			mu.Lock()
			requests = append(requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: q, Body: string(body)})
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, reply)
		}))
		DeferCleanup(server.Close)

		var err error
		client, err = typesense.New(typesense.Config{URL: server.URL, APIKey: "xyz", Collection: "room_messages"})
		Expect(err).NotTo(HaveOccurred())
	})

	It("validates its config", func() {
		_, err := typesense.New(typesense.Config{URL: server.URL})
		Expect(err).To(HaveOccurred())
	})

	It("searches one room by content", func() {
		reply = `{"found":2,"hits":[
			{"document":{"id":"11","room_id":7,"author":"sam","content":"we broke prod","created_at":1700000000}},
			{"document":{"id":"12","room_id":7,"author":"Ada","content":"rollbacks are cheap","created_at":1700000100}}
		]}`

		docs, err := client.Search(ctx, typesense.SearchParams{Query: "deploy friday", RoomID: 7, Limit: 5})

		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(2))
		Expect(docs[0]).To(Equal(typesense.Document{ID: "11", RoomID: 7, Author: "sam", Content: "we broke prod", CreatedAt: 1700000000}))

		Expect(requests).NotTo(BeEmpty())
		last := requests[len(requests)-1]
		Expect(last.Method).To(Equal(http.MethodGet))
		Expect(last.Path).To(Equal("/collections/room_messages/documents/search"))
		Expect(last.Query).To(HaveKeyWithValue("q", "deploy friday"))
		Expect(last.Query).To(HaveKeyWithValue("query_by", "content"))
		Expect(last.Query).To(HaveKeyWithValue("filter_by", "room_id:=7"))
		Expect(last.Query).To(HaveKeyWithValue("per_page", "5"))
	})

	It("upserts documents", func() {
		status = http.StatusCreated
		reply = `{"id":"11"}`

		err := client.UpsertDocument(ctx, typesense.Document{ID: "11", RoomID: 7, Author: "Ada", Content: "hello", CreatedAt: 1})

		Expect(err).NotTo(HaveOccurred())
		last := requests[len(requests)-1]
		Expect(last.Method).To(Equal(http.MethodPost))
		Expect(last.Path).To(Equal("/collections/room_messages/documents"))
		Expect(last.Query).To(HaveKeyWithValue("action", "upsert"))

		var sent map[string]any
		Expect(json.Unmarshal([]byte(last.Body), &sent)).To(Succeed())
		Expect(sent).To(HaveKeyWithValue("content", "hello"))
	})

	It("treats an existing collection as ready", func() {
		status = http.StatusConflict
		reply = `{"message":"A collection with name room_messages already exists."}`

		Expect(client.EnsureCollection(ctx)).To(Succeed())
	})

	It("surfaces server errors from search", func() {
		status = http.StatusBadRequest
		reply = `{"message":"bad filter"}`

		_, err := client.Search(ctx, typesense.SearchParams{RoomID: 7})
		Expect(err).To(HaveOccurred())
	})
})
