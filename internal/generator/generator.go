// Package generator turns a built turn context into an agent's reply using an LLM.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/roundtable/common/llm"
	"basegraph.app/roundtable/common/logger"
	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/model"
)

// Stance is how a reply positions itself against the previous speaker.
type Stance string

const (
	StanceOpen      Stance = "open"
	StanceAgree     Stance = "agree"
	StanceBuild     Stance = "build"
	StanceChallenge Stance = "challenge"
	StanceRedirect  Stance = "redirect"
)

// Reply is the structured output requested from the model.
type Reply struct {
	Reply  string `json:"reply" jsonschema:"required,description=What you say in the discussion. Plain prose, no headings, no speaker label."`
	Stance Stance `json:"stance" jsonschema:"required,enum=open,enum=agree,enum=build,enum=challenge,enum=redirect,description=How your reply relates to the previous speaker. Use open only when you speak first."`
}

type Options struct {
	MaxTokens   int
	Temperature *float64
}

// Generator implements discussion.Generator.
type Generator struct {
	client llm.Client
	opts   Options
	schema any
	now    func() time.Time
}

func New(client llm.Client, opts Options) *Generator {
	return &Generator{
		client: client,
		opts:   opts,
		schema: llm.GenerateSchema[Reply](),
		now:    time.Now,
	}
}

func (g *Generator) Generate(ctx context.Context, agent model.Agent, tc discussion.TurnContext, userMessage string) (*discussion.Generation, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "roundtable.generator"})
	start := g.now()

	resp, err := g.client.Chat(ctx, llm.Request{
		Messages:    buildThread(agent, tc, userMessage),
		SchemaName:  "discussion_reply",
		Schema:      g.schema,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generating reply for %s: %w", agent.Name, err)
	}

	reply, err := llm.Decode[Reply](resp.Content)
	if err != nil {
		slog.WarnContext(ctx, "unparseable reply",
			"model", g.client.Model(),
			"content", logger.Truncate(resp.Content, 200))
		return nil, err
	}
	content, stripped := sanitizeReply(agent.Name, reply.Reply)
	if stripped > 0 {
		slog.DebugContext(ctx, "stripped transcript markers from reply", "count", stripped)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: empty reply field", llm.ErrMalformedResponse)
	}

	elapsed := g.now().Sub(start)
	slog.DebugContext(ctx, "reply generated",
		"model", g.client.Model(),
		"stance", reply.Stance,
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
		"duration_ms", elapsed.Milliseconds())

	return &discussion.Generation{
		Content:          content,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

func buildThread(agent model.Agent, tc discussion.TurnContext, userMessage string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt(agent, tc)},
		{Role: "user", Content: tc.Render()},
		{Role: "user", Name: "asker", Content: "The question everyone is discussing:\n" + userMessage},
	}
}

var personaVoice = map[model.Persona]string{
	model.PersonaDevilsAdvocate: "You argue the opposite of whatever is gaining agreement, to stress-test it.",
	model.PersonaCritic:         "You find the weak points in proposals and name them plainly.",
	model.PersonaSkeptic:        "You doubt claims until evidence is given, and you ask for it.",
	model.PersonaStrategic:      "You look at the long-term picture: goals, trade-offs and second-order effects.",
	model.PersonaAnalytical:     "You break problems into parts and reason from facts and numbers.",
	model.PersonaPragmatic:      "You care about what can actually be done, with what is available, soon.",
	model.PersonaCreative:       "You propose unexpected angles and options nobody has raised yet.",
	model.PersonaSupportive:     "You look for what is promising in others' ideas and help them land.",
}

func systemPrompt(agent model.Agent, tc discussion.TurnContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, one of several agents taking turns in a group discussion.\n", agent.Name)
	if voice, ok := personaVoice[agent.Persona]; ok {
		b.WriteString(voice)
		b.WriteString("\n")
	}
	if agent.Instructions != "" {
		b.WriteString("\n")
		b.WriteString(agent.Instructions)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(directnessGuidance(tc.DirectnessMultiplier))
	b.WriteString("\nKeep it to one short paragraph. Never repeat what an earlier speaker already said.")
	return b.String()
}

func directnessGuidance(multiplier float64) string {
	switch {
	case multiplier >= 3:
		return "Be blunt to the point of harshness. Attack weak reasoning head on and do not soften disagreement."
	case multiplier >= 2:
		return "Be very direct. Disagree openly when you disagree and skip the pleasantries."
	case multiplier > 1:
		return "Be direct and willing to push back."
	default:
		return "Be candid but constructive."
	}
}
