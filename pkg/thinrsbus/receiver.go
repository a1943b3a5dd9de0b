package thinrsbus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Option configures a Receiver.
type Option func(*Receiver)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(logger Logger) Option {
	return func(r *Receiver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMapper sets the envelope mapper (default: StreamFieldsMapper).
func WithMapper(mapper EnvelopeMapper) Option {
	return func(r *Receiver) {
		if mapper != nil {
			r.mapper = mapper
		}
	}
}

// Receiver watches a Queue and fans each observed message out to its
// subscribed consumers.
//
// There is at most one outstanding watch at a time. The loop starts on the
// first Subscribe and keeps re-issuing watches until Close, until the queue
// is closed under it, or until a transport error halts it. A halted receiver
// stays halted; recreate it (see Supervisor) to recover.
type Receiver struct {
	endpoint  string
	mapper    EnvelopeMapper
	cursor    Cursor
	config    ReceiverConfig
	name      string
	logger    Logger
	consumers consumerSet
	pool      *dispatchPool

	watchCtx    context.Context
	watchCancel context.CancelFunc

	// Lifecycle
	mu       sync.Mutex
	queue    Queue // nil once closed
	watching bool
	closed   atomic.Bool
	haltErr  error
	doneCh   chan struct{}
	doneOnce sync.Once
}

// NewReceiver attaches a receiver to queue and creates its cursor.
//
// If the cursor cannot be created an *EndpointError is returned and the
// queue stays with the caller. On success the receiver owns the queue and
// closes it in Close.
func NewReceiver(ctx context.Context, queue Queue, config Config, opts ...Option) (*Receiver, error) {
	config = config.WithDefaults()

	cursor, err := queue.CreateCursor(ctx)
	if err != nil {
		return nil, &EndpointError{Endpoint: queue.Endpoint(), Err: err}
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())

	r := &Receiver{
		endpoint:    queue.Endpoint(),
		mapper:      StreamFieldsMapper{},
		cursor:      cursor,
		config:      config.Receiver,
		name:        generateReceiverName(config.Receiver.NamePrefix),
		logger:      slog.Default(),
		pool:        newDispatchPool(config.Receiver.Workers),
		watchCtx:    watchCtx,
		watchCancel: watchCancel,
		queue:       queue,
		doneCh:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}
	r.logger = withAttrs(r.logger, "receiver", r.name, "endpoint", r.endpoint)

	return r, nil
}

// Name returns the auto-generated receiver name used in logs.
func (r *Receiver) Name() string {
	return r.name
}

// Position returns the ID of the last message the receiver observed.
func (r *Receiver) Position() string {
	return r.cursor.Position()
}

// Done is closed once the watch loop has stopped for good.
func (r *Receiver) Done() <-chan struct{} {
	return r.doneCh
}

// Err returns the transport error that halted the loop, or nil.
func (r *Receiver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.haltErr
}

// Subscribe registers a consumer and starts watching the queue if no watch
// is outstanding yet. Registering the same consumer twice is a no-op.
// Returns ErrReceiverClosed after Close.
func (r *Receiver) Subscribe(consumer Consumer) error {
	if consumer == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return ErrReceiverClosed
	}

	if r.consumers.add(consumer) {
		r.logger.Debug("consumer subscribed", "consumer", fmt.Sprintf("%T", consumer))
	}

	if !r.watching {
		r.watching = true
		go r.watchLoop()
	}

	return nil
}

// Close stops the loop and releases the queue.
//
// In-flight dispatches get up to ShutdownTimeoutMs to finish before their
// context is canceled. Closing while a watch is outstanding is safe: the
// watch completes as closed and no further watch is issued.
//
// A consumer that closes the receiver from Deliver must use CloseContext
// with the context it was given; Close would wait on its own dispatch.
func (r *Receiver) Close() error {
	return r.CloseContext(context.Background())
}

// CloseContext is Close bounded by ctx as well as ShutdownTimeoutMs.
//
// Called with a context passed to Deliver, it does not wait for in-flight
// dispatches: they finish on their own and their context is canceled once
// the last one returns.
func (r *Receiver) CloseContext(ctx context.Context) error {
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return nil
	}
	r.closed.Store(true)
	queue := r.queue
	r.queue = nil
	started := r.watching
	r.mu.Unlock()

	r.watchCancel()

	timeout := r.config.shutdownTimeout()
	if r.pool.owns(ctx) {
		r.pool.release()
	} else if !r.pool.wait(ctx, timeout) {
		r.logger.Warn("shutdown timeout exceeded, abandoning in-flight dispatches")
	}

	err := queue.Close()

	if started {
		select {
		case <-r.doneCh:
		case <-ctx.Done():
			r.logger.Warn("shutdown canceled waiting for watch to complete")
		case <-time.After(timeout):
			r.logger.Warn("shutdown timeout exceeded waiting for watch to complete")
		}
	} else {
		r.markDone()
	}

	r.consumers.clear()
	return err
}

func (r *Receiver) watchLoop() {
	defer r.markDone()

	timeout := r.config.watchTimeout()
	for {
		queue := r.liveQueue()
		if queue == nil {
			return
		}

		result := queue.Watch(r.watchCtx, r.cursor, timeout)
		if !r.watchCompleted(queue, result) {
			return
		}
	}
}

// watchCompleted handles one watch completion and reports whether another
// watch should be issued.
func (r *Receiver) watchCompleted(queue Queue, result WatchResult) bool {
	if r.closed.Load() {
		return false
	}

	switch result.Outcome {
	case WatchMessage:
		msg := result.Message
		if msg == nil {
			return r.halt(&TransportError{Code: "NOMSG", Message: "watch reported a message but returned none"})
		}

		advanced, err := r.cursor.Advance(msg.ID)
		if err != nil {
			return r.halt(&TransportError{Code: "BADID", Message: err.Error(), Err: err})
		}
		// The cursor only moves forward, so an entry at or before it was
		// already seen and must not be dispatched twice.
		if !advanced {
			r.logger.Warn("ignoring message at or before cursor",
				"message_id", msg.ID, "position", r.cursor.Position())
			return true
		}

		r.logger.Debug("received message", "message_id", msg.ID)
		dispatched := r.pool.submit(func(ctx context.Context) {
			r.dispatch(ctx, queue, msg)
		})
		// a draining pool means Close is in progress
		return dispatched

	case WatchTimeout:
		return true

	case WatchClosed:
		r.logger.Info("queue was closed during an asynchronous operation")
		return false

	default:
		transportErr := result.Err
		if transportErr == nil {
			transportErr = &TransportError{Code: "UNKNOWN", Message: "watch failed without an error"}
		}
		return r.halt(transportErr)
	}
}

// halt records err as the reason the loop stopped. It always returns false.
func (r *Receiver) halt(err *TransportError) bool {
	r.logger.Error("watch failed",
		"code", err.Code,
		"message", err.Message)

	r.mu.Lock()
	r.haltErr = err
	r.mu.Unlock()
	return false
}

func (r *Receiver) liveQueue() Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue
}

func (r *Receiver) markDone() {
	r.doneOnce.Do(func() { close(r.doneCh) })
}

// generateReceiverName creates a unique receiver name.
// Format: {prefix}-{hostname}-{pid}-{short_uuid}
func generateReceiverName(prefix string) string {
	if prefix == "" {
		prefix = "receiver"
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	pid := os.Getpid()
	shortUUID := uuid.New().String()[:8]

	return fmt.Sprintf("%s-%s-%d-%s", prefix, hostname, pid, shortUUID)
}
