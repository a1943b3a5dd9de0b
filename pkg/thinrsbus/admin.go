package thinrsbus

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// StreamDetail holds stream metadata.
type StreamDetail struct {
	Stream  string
	Length  int64
	FirstID string
	LastID  string
}

// Admin provides read-only inspection of queue streams.
type Admin struct {
	client *redis.Client
	config Config
	mapper EnvelopeMapper
}

// NewAdmin creates a new Admin instance.
func NewAdmin(client *redis.Client, config Config) *Admin {
	return &Admin{
		client: client,
		config: config,
		mapper: StreamFieldsMapper{},
	}
}

// StreamInfo returns stream metadata.
// Uses: XLEN, XRANGE - + COUNT 1, XREVRANGE + - COUNT 1
func (a *Admin) StreamInfo(ctx context.Context, topic string) (*StreamDetail, error) {
	stream := StreamKey(a.config.Namespace, topic)

	length, err := a.client.XLen(ctx, stream).Result()
	if err != nil {
		return nil, err
	}

	detail := &StreamDetail{Stream: stream, Length: length}
	if length == 0 {
		return detail, nil
	}

	first, err := a.client.XRangeN(ctx, stream, "-", "+", 1).Result()
	if err != nil {
		return nil, err
	}
	if len(first) > 0 {
		detail.FirstID = first[0].ID
	}

	last, err := a.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return nil, err
	}
	if len(last) > 0 {
		detail.LastID = last[0].ID
	}

	return detail, nil
}

// PeekResult is one entry returned by Peek. Err is set when the entry
// could not be mapped to an envelope.
type PeekResult struct {
	ID       string
	Envelope *Envelope
	Err      error
}

// Peek maps the first count entries of the stream (oldest first) without
// removing them.
func (a *Admin) Peek(ctx context.Context, topic string, count int64) ([]PeekResult, error) {
	stream := StreamKey(a.config.Namespace, topic)

	entries, err := a.client.XRangeN(ctx, stream, "-", "+", count).Result()
	if err != nil {
		return nil, err
	}

	results := make([]PeekResult, 0, len(entries))
	for _, entry := range entries {
		env, err := a.mapper.Map(&RawMessage{ID: entry.ID, Values: entry.Values})
		results = append(results, PeekResult{ID: entry.ID, Envelope: env, Err: err})
	}

	return results, nil
}
