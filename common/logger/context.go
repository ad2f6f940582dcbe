package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields holds structured fields attached to every log record emitted with a context.
// Callers enrich the context once (discussion, room, turn) and every slog.*Context call
// downstream picks the fields up through TraceHandler.
type LogFields struct {
	DiscussionID *int64  // Discussion being orchestrated
	RoomID       *int64  // Room the discussion lives in
	AgentID      *int64  // Agent currently speaking
	TurnIndex    *int    // Zero-based turn slot
	MessageID    *string // Redis stream message ID
	TaskType     *string // Queue task type (e.g., "discussion_run")
	Component    string  // OTel-style component name, e.g. "roundtable.discussion.runner"
}

// WithLogFields merges fields into ctx. Newer non-nil values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields returns the fields stored in ctx, or the zero value.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.DiscussionID != nil {
		result.DiscussionID = next.DiscussionID
	}
	if next.RoomID != nil {
		result.RoomID = next.RoomID
	}
	if next.AgentID != nil {
		result.AgentID = next.AgentID
	}
	if next.TurnIndex != nil {
		result.TurnIndex = next.TurnIndex
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.TaskType != nil {
		result.TaskType = next.TaskType
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr returns a pointer to v. Handy for inline LogFields.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate cuts s to maxLen bytes and appends "..." when it had to cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
