package queue

type TaskType string

const (
	// TaskTypeDiscussionRun asks a worker to run the next batch of a discussion.
	TaskTypeDiscussionRun TaskType = "discussion_run"
)

// RunRequest is what producers enqueue.
type RunRequest struct {
	DiscussionID int64
	RoomID       int64
	TraceID      *string
	Attempt      int
	Reason       string // "created", "resumed", "continue", ... for logs only
}
