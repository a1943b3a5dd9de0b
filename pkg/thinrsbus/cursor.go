package thinrsbus

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// StreamCursor is the Cursor of a Redis stream: the ID of the last entry
// examined. A watch looks for the first entry strictly after Position, so
// "0-0" means the head of the stream.
type StreamCursor struct {
	mu       sync.Mutex
	position string
}

// NewStreamCursor returns a cursor positioned at id. An empty id or "0" is
// the head of the stream.
func NewStreamCursor(id string) (*StreamCursor, error) {
	if id == "" || id == "0" {
		id = "0-0"
	}
	ms, seq, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return &StreamCursor{position: formatID(ms, seq)}, nil
}

// Position returns the ID of the last examined entry.
func (c *StreamCursor) Position() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Advance moves the cursor to id if id is after the current position.
// Returns false (and leaves the cursor alone) for an id at or before it, and
// an error for an id that is not a stream ID.
func (c *StreamCursor) Advance(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmp, err := CompareIDs(id, c.position)
	if err != nil {
		return false, err
	}
	if cmp <= 0 {
		return false, nil
	}
	c.position = id
	return true, nil
}

// CompareIDs orders two stream entry IDs ("{ms}-{seq}").
// Returns -1, 0 or 1 like strings.Compare.
func CompareIDs(a, b string) (int, error) {
	aMs, aSeq, err := parseID(a)
	if err != nil {
		return 0, err
	}
	bMs, bSeq, err := parseID(b)
	if err != nil {
		return 0, err
	}

	switch {
	case aMs < bMs:
		return -1, nil
	case aMs > bMs:
		return 1, nil
	case aSeq < bSeq:
		return -1, nil
	case aSeq > bSeq:
		return 1, nil
	}
	return 0, nil
}

// parseID splits "{ms}-{seq}"; a bare "{ms}" has sequence 0.
func parseID(id string) (uint64, uint64, error) {
	msPart, seqPart, found := strings.Cut(id, "-")
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid stream id %q", id)
	}
	if !found {
		return ms, 0, nil
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid stream id %q", id)
	}
	return ms, seq, nil
}

func formatID(ms, seq uint64) string {
	return strconv.FormatUint(ms, 10) + "-" + strconv.FormatUint(seq, 10)
}
