package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

type geminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func newGeminiClient(cfg Config) (*geminiClient, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &geminiClient{client: client, model: model, timeout: cfg.Timeout}, nil
}

func (c *geminiClient) Chat(ctx context.Context, req Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	system, contents := c.convertMessages(req.Messages)
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		MaxOutputTokens:   int32(maxTokens),
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseJsonSchema = req.Schema
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	out := &Response{Content: resp.Text()}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	slog.DebugContext(ctx, "llm chat completed",
		"provider", ProviderGemini,
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", out.PromptTokens,
		"completion_tokens", out.CompletionTokens)

	return out, nil
}

func (c *geminiClient) Model() string {
	return c.model
}

func (c *geminiClient) convertMessages(msgs []Message) (*genai.Content, []*genai.Content) {
	var (
		system   *genai.Content
		contents []*genai.Content
	)
	for _, msg := range msgs {
		switch msg.Role {
		case "system":
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: msg.Content})
		case "assistant":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			text := msg.Content
			if msg.Name != "" {
				text = msg.Name + ": " + text
			}
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}
	}
	return system, contents
}
