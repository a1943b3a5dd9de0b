package thinrsbus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a go-redis client from cfg.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	if cfg.UseTLS {
		// SNI needs the bare host
		host := strings.Split(cfg.Address, ":")[0]
		opts.TLSConfig = &tls.Config{
			ServerName: host,
		}
	}

	return redis.NewClient(opts)
}

// RedisQueue is a Queue over a single Redis Stream.
//
// Watches use XREAD (not a consumer group), so observing an entry does not
// claim it; other readers of the stream still see it until it is removed.
// The queue owns a dedicated client so Close can interrupt a blocked XREAD.
type RedisQueue struct {
	client  *redis.Client
	stream  string
	startID string
	closed  atomic.Bool
}

// NewRedisQueue creates a queue for {namespace}:{topic} with its own client.
func NewRedisQueue(cfg Config, topic string) *RedisQueue {
	cfg = cfg.WithDefaults()
	return &RedisQueue{
		client:  NewRedisClient(cfg.Redis),
		stream:  StreamKey(cfg.Namespace, topic),
		startID: cfg.Receiver.StartID,
	}
}

// Endpoint returns the stream key.
func (q *RedisQueue) Endpoint() string {
	return q.stream
}

// CreateCursor checks the stream is reachable and returns a cursor at the
// configured start. Start "$" resolves to the current last entry, so only
// entries added afterwards are observed.
func (q *RedisQueue) CreateCursor(ctx context.Context) (Cursor, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}

	if err := q.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	// TYPE returns "none" for a stream nobody has written to yet
	kind, err := q.client.Type(ctx, q.stream).Result()
	if err != nil {
		return nil, fmt.Errorf("type check failed: %w", err)
	}
	if kind != "stream" && kind != "none" {
		return nil, fmt.Errorf("key %s holds a %s, not a stream", q.stream, kind)
	}

	start := q.startID
	if start == "$" {
		entries, err := q.client.XRevRangeN(ctx, q.stream, "+", "-", 1).Result()
		if err != nil {
			return nil, fmt.Errorf("resolve last entry: %w", err)
		}
		start = "0-0"
		if len(entries) > 0 {
			start = entries[0].ID
		}
	}

	return NewStreamCursor(start)
}

// Watch waits for the first entry after the cursor.
// XREAD COUNT 1 BLOCK {timeout} STREAMS {stream} {cursor}
func (q *RedisQueue) Watch(ctx context.Context, cursor Cursor, timeout time.Duration) WatchResult {
	if q.closed.Load() {
		return WatchResult{Outcome: WatchClosed}
	}

	// BLOCK 0 would wait forever
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}

	streams, err := q.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{q.stream, cursor.Position()},
		Count:   1,
		Block:   timeout,
	}).Result()
	if err != nil {
		return q.classify(ctx, err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return WatchResult{Outcome: WatchTimeout}
	}

	m := streams[0].Messages[0]
	return WatchResult{
		Outcome: WatchMessage,
		Message: &RawMessage{ID: m.ID, Values: m.Values},
	}
}

// classify maps an XREAD error onto a watch outcome.
func (q *RedisQueue) classify(ctx context.Context, err error) WatchResult {
	switch {
	case errors.Is(err, redis.Nil):
		return WatchResult{Outcome: WatchTimeout}
	case q.closed.Load(),
		ctx.Err() != nil,
		errors.Is(err, redis.ErrClosed),
		errors.Is(err, net.ErrClosed):
		return WatchResult{Outcome: WatchClosed}
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		code, _, _ := strings.Cut(msg, " ")
		return WatchResult{
			Outcome: WatchFailed,
			Err:     &TransportError{Code: code, Message: msg, Err: err},
		}
	}

	return WatchResult{
		Outcome: WatchFailed,
		Err:     &TransportError{Code: "IO", Message: err.Error(), Err: err},
	}
}

// Remove deletes an entry from the stream.
// XDEL {stream} {id}
func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if err := q.client.XDel(ctx, q.stream, id).Err(); err != nil {
		return fmt.Errorf("xdel failed: %w", err)
	}
	return nil
}

// Send appends msg to the stream and returns its entry ID.
// Sending is not part of the receive path; tools and tests use it to feed a queue.
func (q *RedisQueue) Send(ctx context.Context, msg Message) (string, error) {
	if q.closed.Load() {
		return "", ErrQueueClosed
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		ID:     "*",
		Values: msg.ToStreamFields(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd failed: %w", err)
	}
	return id, nil
}

// Close closes the client, which fails any blocked XREAD. Safe to call twice.
func (q *RedisQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	return q.client.Close()
}
