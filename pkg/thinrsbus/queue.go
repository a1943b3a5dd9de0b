package thinrsbus

import (
	"context"
	"time"
)

// Cursor is a read position handed out by a Queue. Its Position is opaque
// to the Receiver and only meaningful to the queue that created it.
//
// A Cursor only moves forward. It is owned by one Receiver and never shared.
type Cursor interface {
	// Position returns the token of the last examined entry.
	Position() string
	// Advance moves the cursor past id. It returns false for an id at or
	// before the current position, and an error for an id the queue could
	// not have produced.
	Advance(id string) (bool, error)
}

// Queue is the durable queue a Receiver watches.
type Queue interface {
	// Endpoint names the queue for logs and errors.
	Endpoint() string
	// CreateCursor returns a fresh read position. It fails if the queue
	// cannot be accessed.
	CreateCursor(ctx context.Context) (Cursor, error)
	// Watch waits up to timeout for the first entry after cursor.Position()
	// without removing it. It never moves the cursor.
	Watch(ctx context.Context, cursor Cursor, timeout time.Duration) WatchResult
	// Remove deletes an entry so no reader observes it again.
	Remove(ctx context.Context, id string) error
	// Close releases the queue. An outstanding Watch completes with WatchClosed.
	Close() error
}

// WatchOutcome is the closed set of ways a watch can complete.
type WatchOutcome int

const (
	// WatchMessage means an entry was observed.
	WatchMessage WatchOutcome = iota
	// WatchTimeout means nothing arrived within the wait window.
	WatchTimeout
	// WatchClosed means the queue was closed while the watch was outstanding.
	WatchClosed
	// WatchFailed is any other transport failure.
	WatchFailed
)

func (o WatchOutcome) String() string {
	switch o {
	case WatchMessage:
		return "message"
	case WatchTimeout:
		return "timeout"
	case WatchClosed:
		return "closed"
	case WatchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WatchResult is the completion of one Watch call.
type WatchResult struct {
	Outcome WatchOutcome
	Message *RawMessage     // set for WatchMessage
	Err     *TransportError // set for WatchFailed
}
