package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

var nameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config holds LLM client configuration.
type Config struct {
	Provider   string        // "openai", "anthropic" or "gemini"
	APIKey     string        // Required: API key for the provider
	BaseURL    string        // Optional: custom API endpoint
	Model      string        // Model name
	MaxRetries int           // SDK-level retries, 0 disables
	Timeout    time.Duration // Per request, 0 means none
}

// Client is a single-shot chat completion against one model.
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// Request is a conversation thread plus an optional structured-output schema.
// When Schema is set the reply content is a JSON document matching it.
type Request struct {
	Messages    []Message
	SchemaName  string
	Schema      any
	MaxTokens   int
	Temperature *float64 // nil = model default, explicit 0 = deterministic
}

// Message represents a conversation message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Name    string // Optional: participant name (user messages only)
	Content string
}

type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// New selects the provider named by cfg.Provider. Defaults to OpenAI.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	case ProviderGemini:
		return newGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// Decode unmarshals a structured reply, tolerating a fenced ```json block.
// Failures wrap ErrMalformedResponse.
func Decode[T any](content string) (T, error) {
	var out T
	body := strings.TrimSpace(content)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	if body == "" {
		return out, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// GenerateSchema reflects T into an inline JSON schema suitable for strict structured output.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// SanitizeName converts a display name to a valid OpenAI name parameter.
// The name must match ^[a-zA-Z0-9_-]{1,64}$.
func SanitizeName(name string) string {
	sanitized := nameInvalidChars.ReplaceAllString(name, "_")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}

func schemaJSON(schema any) string {
	b, err := json.Marshal(schema)
	if err != nil {
		return "{}"
	}
	return string(b)
}
