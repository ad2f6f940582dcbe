package discussion

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"basegraph.app/roundtable/internal/model"
)

type RoleHint string

const (
	// RoleOpening is the first speaker: open the discussion and set the themes.
	RoleOpening RoleHint = "opening"
	// RoleResponding speakers react to the previous contribution.
	RoleResponding RoleHint = "responding"
)

// PriorResponse is an earlier turn of the same discussion, labelled with its author.
type PriorResponse struct {
	TurnIndex int
	AgentID   int64
	AgentName string
	Content   string
	MessageID int64
}

// HistorySnippet is background material from the room, outside this discussion.
type HistorySnippet struct {
	MessageID int64
	Author    string
	Content   string
	CreatedAt time.Time
}

// TurnContext is everything a speaker sees for one turn. Built fresh per turn, never stored.
type TurnContext struct {
	DiscussionID         int64
	RoomID               int64
	Topic                string
	TurnIndex            int
	TotalTurns           int
	Role                 RoleHint
	RespondingToAgentID  *int64
	RespondingTo         *PriorResponse // nil when opening or when the previous slot failed
	PriorResponses       []PriorResponse
	History              []HistorySnippet
	UserPattern          *model.UserPattern
	Intensity            model.Intensity
	DirectnessMultiplier float64
}

// BuildTurnContext assembles the context for turn turnIndex of d. It is pure.
// Only d's own responses below turnIndex are included, in turn order. History entries
// that are blank or that duplicate this discussion's messages are dropped.
func BuildTurnContext(
	d *model.Discussion,
	turnIndex int,
	responses []model.DiscussionResponse,
	agentNames map[int64]string,
	history []HistorySnippet,
	pattern *model.UserPattern,
) TurnContext {
	tc := TurnContext{
		DiscussionID:         d.ID,
		RoomID:               d.RoomID,
		TurnIndex:            turnIndex,
		TotalTurns:           d.TurnLimit(),
		Role:                 RoleOpening,
		Intensity:            d.Intensity,
		DirectnessMultiplier: d.Intensity.DirectnessMultiplier(),
		UserPattern:          pattern,
	}
	if d.Topic != nil {
		tc.Topic = *d.Topic
	}

	own := map[int64]bool{d.MessageID: true}
	for _, r := range responses {
		if r.DiscussionID != d.ID || r.TurnIndex >= turnIndex {
			continue
		}
		own[r.MessageID] = true
		tc.PriorResponses = append(tc.PriorResponses, PriorResponse{
			TurnIndex: r.TurnIndex,
			AgentID:   r.AgentID,
			AgentName: agentLabel(agentNames, r.AgentID),
			Content:   r.Content,
			MessageID: r.MessageID,
		})
	}
	sort.SliceStable(tc.PriorResponses, func(i, j int) bool {
		return tc.PriorResponses[i].TurnIndex < tc.PriorResponses[j].TurnIndex
	})

	if turnIndex > 0 {
		tc.Role = RoleResponding
		if prev, ok := d.AgentAt(turnIndex - 1); ok {
			tc.RespondingToAgentID = &prev
		}
		if n := len(tc.PriorResponses); n > 0 && tc.PriorResponses[n-1].TurnIndex == turnIndex-1 {
			last := tc.PriorResponses[n-1]
			tc.RespondingTo = &last
		}
	}

	for _, h := range history {
		if strings.TrimSpace(h.Content) == "" || own[h.MessageID] {
			continue
		}
		tc.History = append(tc.History, h)
	}

	return tc
}

func agentLabel(names map[int64]string, agentID int64) string {
	if name := names[agentID]; name != "" {
		return name
	}
	return fmt.Sprintf("agent-%d", agentID)
}

// Render lays the context out as prompt text with delimited sections.
// Room history is fenced off so speakers do not mistake it for this discussion.
func (tc TurnContext) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Discussion\nTurn %d of %d.", tc.TurnIndex+1, tc.TotalTurns)
	if tc.Topic != "" {
		fmt.Fprintf(&b, " Topic: %s.", tc.Topic)
	}
	fmt.Fprintf(&b, "\nDirectness multiplier: %.1f (1.0 is measured, higher is blunter and more confrontational).\n\n", tc.DirectnessMultiplier)

	b.WriteString("## Your role\n")
	switch {
	case tc.Role == RoleOpening:
		b.WriteString("You speak first. Open the discussion and set out the main themes for the others to pick up.\n\n")
	case tc.RespondingTo != nil:
		fmt.Fprintf(&b, "Respond to %s's point directly before you. Build on it, challenge it, or redirect it.\n\n", tc.RespondingTo.AgentName)
	default:
		b.WriteString("The previous speaker did not get a word in. Respond to the discussion so far and move it forward.\n\n")
	}

	if len(tc.PriorResponses) > 0 {
		b.WriteString("## Earlier in this discussion\n")
		for _, r := range tc.PriorResponses {
			fmt.Fprintf(&b, "[Turn %d] %s: %s\n", r.TurnIndex+1, r.AgentName, r.Content)
		}
		b.WriteString("\n")
	}

	if len(tc.History) > 0 {
		b.WriteString("## Room history (background only, not part of this discussion)\n<<<\n")
		for _, h := range tc.History {
			fmt.Fprintf(&b, "- %s: %s\n", h.Author, h.Content)
		}
		b.WriteString(">>>\n\n")
	}

	if tc.UserPattern != nil && tc.UserPattern.Summary != "" {
		b.WriteString("## About the person who asked\n")
		b.WriteString(tc.UserPattern.Summary)
		if len(tc.UserPattern.Traits) > 0 {
			fmt.Fprintf(&b, "\nTraits: %s", strings.Join(tc.UserPattern.Traits, ", "))
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
