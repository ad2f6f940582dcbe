// Package lock provides the per-discussion mutual exclusion around batch runs.
package lock

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrHeld is returned when another runner owns the discussion.
	ErrHeld = errors.New("discussion lock held")
	// ErrLost is returned by Extend once the lock expired and may belong to someone else.
	ErrLost = errors.New("discussion lock lost")
)

// Lease is one holder's ownership of a discussion.
type Lease interface {
	// Extend pushes the expiry out by a full TTL.
	Extend(ctx context.Context) error
	// Release gives the lock back. It is safe to call after the lock expired.
	Release(ctx context.Context) error
}

// Locker grants exclusive ownership of one discussion at a time.
// Acquire never blocks waiting for a holder; it returns ErrHeld instead.
type Locker interface {
	Acquire(ctx context.Context, discussionID int64) (Lease, error)
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func NewLocal() *Local {
	return &Local{held: map[int64]struct{}{}}
}

func (l *Local) Acquire(ctx context.Context, discussionID int64) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[discussionID]; ok {
		return nil, ErrHeld
	}
	l.held[discussionID] = struct{}{}
	return &localLease{locker: l, discussionID: discussionID}, nil
}

// localLease never expires, so Extend only reports whether it was released.
type localLease struct {
	locker       *Local
	discussionID int64
	once         sync.Once
	released     bool
}

func (ll *localLease) Extend(context.Context) error {
	ll.locker.mu.Lock()
	defer ll.locker.mu.Unlock()
	if ll.released {
		return ErrLost
	}
	return nil
}

func (ll *localLease) Release(context.Context) error {
	ll.once.Do(func() {
		ll.locker.mu.Lock()
		delete(ll.locker.held, ll.discussionID)
		ll.released = true
		ll.locker.mu.Unlock()
	})
	return nil
}
