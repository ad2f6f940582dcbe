package discussion

import (
	"errors"
	"fmt"

	"basegraph.app/roundtable/internal/model"
)

var (
	ErrNoAgents           = errors.New("discussion needs at least one agent")
	ErrDiscussionNotFound = errors.New("discussion not found")
	ErrMessageNotFound    = errors.New("trigger message not found")
	ErrUnknownAgents      = errors.New("unknown agents")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrInvalidMaxTurns    = errors.New("max turns must not be negative")
	ErrInvalidIntensity   = errors.New("invalid intensity")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrEmptyReply         = errors.New("generator returned an empty reply")
)

// PlanningError means no discussion could be created.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning discussion: %v", e.Err)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

// ExecutionError is a turn-local failure. The turn is recorded as failed and the
// run moves on to the next slot.
type ExecutionError struct {
	Kind      model.TurnErrorKind
	AgentID   int64
	TurnIndex int
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("turn %d (agent %d) %s: %v", e.TurnIndex, e.AgentID, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Summary is the short, user-safe description carried by turn-error events.
func (e *ExecutionError) Summary() string {
	switch e.Kind {
	case model.TurnErrorQuotaExceeded:
		return "the agent hit its usage quota"
	case model.TurnErrorMalformedResponse:
		return "the agent produced an unusable reply"
	default:
		return "the agent was unavailable"
	}
}

// PersistenceError aborts a run. The checkpoint is left where it was.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
