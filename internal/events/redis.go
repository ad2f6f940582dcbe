package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const defaultStreamMaxLen = 1000

// StreamName is the per-room stream events are appended to.
func StreamName(prefix string, roomID int64) string {
	return fmt.Sprintf("%s:room-%d", prefix, roomID)
}

// RedisStreamSink appends events to a capped Redis stream per room.
// The SSE endpoint tails the same stream.
type RedisStreamSink struct {
	client *redis.Client
	prefix string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, prefix string, maxLen int64) *RedisStreamSink {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &RedisStreamSink{client: client, prefix: prefix, maxLen: maxLen}
}

func (s *RedisStreamSink) Publish(ctx context.Context, roomID int64, event ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(s.prefix, roomID),
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":          string(event.Kind),
			"discussion_id": strconv.FormatInt(event.DiscussionID, 10),
			"payload":       string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd progress event: %w", err)
	}
	return nil
}

// DecodeStreamMessage reads back an event written by RedisStreamSink.
func DecodeStreamMessage(msg redis.XMessage) (ProgressEvent, error) {
	var ev ProgressEvent
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return ev, fmt.Errorf("stream message %s has no payload", msg.ID)
	}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, fmt.Errorf("decoding stream message %s: %w", msg.ID, err)
	}
	return ev, nil
}
