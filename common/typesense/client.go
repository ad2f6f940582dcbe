package typesense

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"
)

// Document is one room message as stored in the search collection.
type Document struct {
	ID        string `json:"id"`
	RoomID    int64  `json:"room_id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"` // unix seconds
}

type SearchParams struct {
	Query  string
	RoomID int64
	Limit  int
}

type Client interface {
	EnsureCollection(ctx context.Context) error
	UpsertDocument(ctx context.Context, doc Document) error
	Search(ctx context.Context, params SearchParams) ([]Document, error)
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("typesense URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("typesense API key is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("typesense collection is required")
	}
	return nil
}

type client struct {
	ts         *typesense.Client
	collection string
}

func New(cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("typesense config: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ts := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(timeout),
		typesense.WithNumRetries(1),
	)
	return &client{ts: ts, collection: cfg.Collection}, nil
}

func (c *client) EnsureCollection(ctx context.Context) error {
	_, err := c.ts.Collections().Create(ctx, &api.CollectionSchema{
		Name: c.collection,
		Fields: []api.Field{
			{Name: "room_id", Type: "int64", Facet: pointer.True()},
			{Name: "author", Type: "string"},
			{Name: "content", Type: "string"},
			{Name: "created_at", Type: "int64"},
		},
		DefaultSortingField: pointer.String("created_at"),
	})
	var httpErr *typesense.HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", c.collection, err)
	}
	return nil
}

func (c *client) UpsertDocument(ctx context.Context, doc Document) error {
	if _, err := c.ts.Collection(c.collection).Documents().Upsert(ctx, doc, &api.DocumentIndexParameters{}); err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

// Search returns matches in relevance order, restricted to one room.
func (c *client) Search(ctx context.Context, params SearchParams) ([]Document, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	query := params.Query
	if query == "" {
		query = "*"
	}

	res, err := c.ts.Collection(c.collection).Documents().Search(ctx, &api.SearchCollectionParams{
		Q:        pointer.String(query),
		QueryBy:  pointer.String("content"),
		FilterBy: pointer.String("room_id:=" + strconv.FormatInt(params.RoomID, 10)),
		SortBy:   pointer.String("_text_match:desc,created_at:desc"),
		PerPage:  pointer.Int(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", c.collection, err)
	}
	if res.Hits == nil {
		return nil, nil
	}

	docs := make([]Document, 0, len(*res.Hits))
	for _, hit := range *res.Hits {
		if hit.Document == nil {
			continue
		}
		docs = append(docs, decodeDocument(*hit.Document))
	}
	return docs, nil
}

func decodeDocument(m map[string]interface{}) Document {
	var doc Document
	doc.ID, _ = m["id"].(string)
	doc.Author, _ = m["author"].(string)
	doc.Content, _ = m["content"].(string)
	doc.RoomID = asInt64(m["room_id"])
	doc.CreatedAt = asInt64(m["created_at"])
	return doc
}

// asInt64 handles the float64 that encoding/json produces for numbers.
func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	}
	return 0
}
