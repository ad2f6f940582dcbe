package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"basegraph.app/roundtable/common/llm"
)

var _ = Describe("SanitizeName", func() {
	DescribeTable("sanitizes agent names for the OpenAI name parameter",
		func(input, expected string) {
			Expect(llm.SanitizeName(input)).To(Equal(expected))
		},
		Entry("valid name unchanged", "Ada", "Ada"),
		Entry("spaces replaced", "Devil's Advocate", "Devil_s_Advocate"),
		Entry("hyphens preserved", "red-team", "red-team"),
		Entry("long name truncated to 64 chars", strings.Repeat("a", 100), strings.Repeat("a", 64)),
		Entry("empty string unchanged", "", ""),
	)
})

type reply struct {
	Reply  string `json:"reply"`
	Stance string `json:"stance"`
}

var _ = Describe("Decode", func() {
	It("parses plain JSON", func() {
		r, err := llm.Decode[reply](`{"reply":"hi","stance":"agree"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Reply).To(Equal("hi"))
	})

	It("strips a fenced json block", func() {
		r, err := llm.Decode[reply]("```json\n{\"reply\":\"fenced\"}\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Reply).To(Equal("fenced"))
	})

	DescribeTable("wraps ErrMalformedResponse",
		func(content string) {
			_, err := llm.Decode[reply](content)
			Expect(err).To(MatchError(llm.ErrMalformedResponse))
			Expect(llm.Classify(err)).To(Equal(llm.ClassMalformed))
		},
		Entry("empty", ""),
		Entry("whitespace", "   "),
		Entry("prose", "I think we should ship"),
		Entry("truncated", `{"reply": "cut`),
	)
})

var _ = Describe("Classify", func() {
	DescribeTable("maps provider errors",
		func(err error, want llm.ErrorClass) {
			Expect(llm.Classify(err)).To(Equal(want))
		},
		Entry("nil", nil, llm.ClassNone),
		Entry("openai rate limit", &openai.Error{StatusCode: 429}, llm.ClassQuotaExceeded),
		Entry("openai server error", &openai.Error{StatusCode: 502}, llm.ClassUnavailable),
		Entry("openai bad request", &openai.Error{StatusCode: 400}, llm.ClassMalformed),
		Entry("anthropic overloaded", &anthropic.Error{StatusCode: 529}, llm.ClassUnavailable),
		Entry("anthropic rate limit", &anthropic.Error{StatusCode: 429}, llm.ClassQuotaExceeded),
		Entry("gemini resource exhausted", fmt.Errorf("gemini generate: %w", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}), llm.ClassQuotaExceeded),
		Entry("network failure", errors.New("dial tcp: connection refused"), llm.ClassUnavailable),
		Entry("deadline", context.DeadlineExceeded, llm.ClassUnavailable),
		Entry("canceled", fmt.Errorf("openai chat: %w", context.Canceled), llm.ClassCanceled),
	)
})

var _ = Describe("New", func() {
	It("requires an API key", func() {
		_, err := llm.New(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(err).To(HaveOccurred())
	})

	It("rejects unknown providers", func() {
		_, err := llm.New(llm.Config{Provider: "mystery", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})
})

var _ = Describe("OpenAI client", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
		client  llm.Client
		body    map[string]any
	)

	BeforeEach(func() {
		body = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &body)
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		var err error
		client, err = llm.New(llm.Config{
			Provider: llm.ProviderOpenAI,
			APIKey:   "test-key",
			BaseURL:  server.URL + "/v1/",
			Model:    "gpt-test",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("sends the thread with a strict schema and returns content", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(HaveSuffix("/chat/completions"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{
				"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-test",
				"choices": [{"index": 0, "finish_reason": "stop",
					"message": {"role": "assistant", "content": "{\"reply\":\"ship it\",\"stance\":\"agree\"}"}}],
				"usage": {"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18}
			}`)
		}

		resp, err := client.Chat(context.Background(), llm.Request{
			Messages: []llm.Message{
				{Role: "system", Content: "you are a panelist"},
				{Role: "user", Name: "Ada Lovelace", Content: "opening"},
			},
			SchemaName: "panel_reply",
			Schema:     llm.GenerateSchema[reply](),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.PromptTokens).To(Equal(11))
		Expect(resp.CompletionTokens).To(Equal(7))

		r, err := llm.Decode[reply](resp.Content)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Reply).To(Equal("ship it"))

		Expect(body["model"]).To(Equal("gpt-test"))
		Expect(body).To(HaveKey("response_format"))
		messages := body["messages"].([]any)
		Expect(messages).To(HaveLen(2))
		Expect(messages[1].(map[string]any)["name"]).To(Equal("Ada_Lovelace"))
	})

	DescribeTable("classifies HTTP failures",
		func(status int, want llm.ErrorClass) {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = io.WriteString(w, `{"error": {"message": "nope", "type": "test"}}`)
			}
			_, err := client.Chat(context.Background(), llm.Request{
				Messages: []llm.Message{{Role: "user", Content: "hi"}},
			})
			Expect(err).To(HaveOccurred())
			Expect(llm.Classify(err)).To(Equal(want))
		},
		Entry("429", http.StatusTooManyRequests, llm.ClassQuotaExceeded),
		Entry("503", http.StatusServiceUnavailable, llm.ClassUnavailable),
		Entry("400", http.StatusBadRequest, llm.ClassMalformed),
	)

	It("treats an empty choice list as malformed", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id": "x", "object": "chat.completion", "created": 1, "model": "gpt-test", "choices": []}`)
		}
		_, err := client.Chat(context.Background(), llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
		Expect(llm.Classify(err)).To(Equal(llm.ClassMalformed))
	})
})
