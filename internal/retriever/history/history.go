// Package history supplies room history to the context builder and keeps the
// search index fed with new messages.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"basegraph.app/roundtable/common/typesense"
	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/store"
)

// Search ranks room messages by relevance to the query.
type Search struct {
	ts typesense.Client
}

func NewSearch(ts typesense.Client) *Search {
	return &Search{ts: ts}
}

func (s *Search) GetRecentContext(ctx context.Context, roomID int64, query string, limit int) ([]discussion.HistorySnippet, error) {
	docs, err := s.ts.Search(ctx, typesense.SearchParams{Query: query, RoomID: roomID, Limit: limit})
	if err != nil {
		return nil, err
	}

	out := make([]discussion.HistorySnippet, 0, len(docs))
	for _, doc := range docs {
		messageID, err := strconv.ParseInt(doc.ID, 10, 64)
		if err != nil {
			slog.WarnContext(ctx, "skipping search hit with non-numeric id", "id", doc.ID)
			continue
		}
		out = append(out, discussion.HistorySnippet{
			MessageID: messageID,
			Author:    doc.Author,
			Content:   doc.Content,
			CreatedAt: time.Unix(doc.CreatedAt, 0).UTC(),
		})
	}
	return out, nil
}

// Index implements discussion.MessageIndexer.
func (s *Search) Index(ctx context.Context, msg model.Message, authorName string) error {
	return s.ts.UpsertDocument(ctx, typesense.Document{
		ID:        strconv.FormatInt(msg.ID, 10),
		RoomID:    msg.RoomID,
		Author:    authorName,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.Unix(),
	})
}

// Recency returns the room's latest messages, oldest first. It ignores the query.
type Recency struct {
	stores store.StoreProvider
}

func NewRecency(stores store.StoreProvider) *Recency {
	return &Recency{stores: stores}
}

func (r *Recency) GetRecentContext(ctx context.Context, roomID int64, _ string, limit int) ([]discussion.HistorySnippet, error) {
	msgs, err := r.stores.Messages().ListRecentByRoom(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent messages: %w", err)
	}

	var agentIDs []int64
	for _, m := range msgs {
		if m.AuthorAgentID != nil {
			agentIDs = append(agentIDs, *m.AuthorAgentID)
		}
	}
	names := map[int64]string{}
	if len(agentIDs) > 0 {
		agents, err := r.stores.Agents().ListByIDs(ctx, agentIDs)
		if err != nil {
			return nil, fmt.Errorf("resolving agent names: %w", err)
		}
		for _, a := range agents {
			names[a.ID] = a.Name
		}
	}

	out := make([]discussion.HistorySnippet, 0, len(msgs))
	for _, m := range slices.Backward(msgs) {
		out = append(out, discussion.HistorySnippet{
			MessageID: m.ID,
			Author:    authorLabel(m, names),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

func authorLabel(m model.Message, names map[int64]string) string {
	if m.AuthorAgentID != nil {
		if name := names[*m.AuthorAgentID]; name != "" {
			return name
		}
		return fmt.Sprintf("agent-%d", *m.AuthorAgentID)
	}
	return "user"
}

// Fallback asks primary first and falls back to secondary when it errors.
type Fallback struct {
	primary   discussion.ContextProvider
	secondary discussion.ContextProvider
}

func NewFallback(primary, secondary discussion.ContextProvider) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) GetRecentContext(ctx context.Context, roomID int64, query string, limit int) ([]discussion.HistorySnippet, error) {
	snippets, err := f.primary.GetRecentContext(ctx, roomID, query, limit)
	if err == nil {
		return snippets, nil
	}
	slog.WarnContext(ctx, "history search failed, using recent messages", "room_id", roomID, "error", err)
	return f.secondary.GetRecentContext(ctx, roomID, query, limit)
}
