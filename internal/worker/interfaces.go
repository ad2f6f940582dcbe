package worker

import (
	"context"

	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Runner runs one batch of a discussion. *discussion.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, discussionID int64) (*discussion.RunOutcome, error)
}
