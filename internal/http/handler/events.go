package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"basegraph.app/roundtable/internal/events"
)

const defaultStreamBlock = 25 * time.Second

// StreamReader is the part of *redis.Client the event stream needs.
type StreamReader interface {
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
}

// EventsHandler tails a room's progress stream over server-sent events.
type EventsHandler struct {
	reader StreamReader
	prefix string
	block  time.Duration
}

// NewEventsHandler builds the handler. block bounds each XREAD and sets the
// keep-alive ping interval; zero uses 25s.
func NewEventsHandler(reader StreamReader, streamPrefix string, block time.Duration) *EventsHandler {
	if block <= 0 {
		block = defaultStreamBlock
	}
	return &EventsHandler{reader: reader, prefix: streamPrefix, block: block}
}

// Stream replays from last_id (or Last-Event-ID) and then follows new events.
// discussion_id narrows the stream to one discussion.
func (h *EventsHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	if h.reader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream not configured"})
		return
	}

	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	var onlyDiscussion int64
	if raw := c.Query("discussion_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid discussion_id"})
			return
		}
		onlyDiscussion = id
	}

	stream := events.StreamName(h.prefix, roomID)
	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = c.GetHeader("Last-Event-ID")
	}
	if lastID == "" {
		lastID = "$"
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	sseWrite(c.Writer, "", "ping", "ready")
	flusher.Flush()

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := h.reader.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Block:   h.block,
			Count:   100,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				sseWrite(c.Writer, "", "ping", time.Now().UTC().Format(time.RFC3339Nano))
				flusher.Flush()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			slog.WarnContext(ctx, "reading event stream failed", "stream", stream, "error", err)
			sseWrite(c.Writer, "", "error", map[string]string{"error": "event stream unavailable"})
			flusher.Flush()
			return
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				lastID = msg.ID
				ev, err := events.DecodeStreamMessage(msg)
				if err != nil {
					slog.WarnContext(ctx, "skipping undecodable event", "stream", stream, "error", err)
					continue
				}
				if onlyDiscussion != 0 && ev.DiscussionID != onlyDiscussion {
					continue
				}
				sseWrite(c.Writer, msg.ID, string(ev.Kind), ev)
			}
		}
		flusher.Flush()
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, id, event string, data any) {
	if id != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", id)
	}
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(marshalPayload(data), "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}
