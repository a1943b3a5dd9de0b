package thinrsbus_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hunetmoducoding/thinrsbus-go/pkg/thinrsbus"
)

// fakeQueue is a Queue whose watch completions are pushed by the test.
type fakeQueue struct {
	endpoint  string
	cursorErr error

	results chan thinrsbus.WatchResult
	closeCh chan struct{}
	once    sync.Once

	watches        atomic.Int32
	outstanding    atomic.Int32
	maxOutstanding atomic.Int32
	closeCalls     atomic.Int32

	mu        sync.Mutex
	positions []string
	removed   []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		endpoint: "fake:orders",
		results:  make(chan thinrsbus.WatchResult, 64),
		closeCh:  make(chan struct{}),
	}
}

func (q *fakeQueue) Endpoint() string { return q.endpoint }

func (q *fakeQueue) CreateCursor(ctx context.Context) (thinrsbus.Cursor, error) {
	if q.cursorErr != nil {
		return nil, q.cursorErr
	}
	return thinrsbus.NewStreamCursor("0-0")
}

func (q *fakeQueue) Watch(ctx context.Context, cursor thinrsbus.Cursor, timeout time.Duration) thinrsbus.WatchResult {
	n := q.outstanding.Add(1)
	defer q.outstanding.Add(-1)
	for {
		cur := q.maxOutstanding.Load()
		if n <= cur || q.maxOutstanding.CompareAndSwap(cur, n) {
			break
		}
	}

	q.mu.Lock()
	q.positions = append(q.positions, cursor.Position())
	q.mu.Unlock()
	q.watches.Add(1)

	select {
	case res := <-q.results:
		return res
	case <-q.closeCh:
		return thinrsbus.WatchResult{Outcome: thinrsbus.WatchClosed}
	}
}

func (q *fakeQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, id)
	return nil
}

func (q *fakeQueue) Close() error {
	q.closeCalls.Add(1)
	q.once.Do(func() { close(q.closeCh) })
	return nil
}

func (q *fakeQueue) push(res thinrsbus.WatchResult) {
	q.results <- res
}

func (q *fakeQueue) pushMessage(id, msgType, payload string) {
	q.push(thinrsbus.WatchResult{
		Outcome: thinrsbus.WatchMessage,
		Message: &thinrsbus.RawMessage{ID: id, Values: map[string]interface{}{
			"v":       "1",
			"type":    msgType,
			"payload": payload,
		}},
	})
}

func (q *fakeQueue) Positions() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.positions...)
}

func (q *fakeQueue) Removed() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.removed...)
}

// recordingConsumer counts calls and records delivered envelope IDs.
type recordingConsumer struct {
	name       string
	interested func(env *thinrsbus.Envelope) bool
	onDeliver  func(env *thinrsbus.Envelope) error

	checks atomic.Int32
	mu     sync.Mutex
	got    []string
}

func newRecordingConsumer(name string, interested bool) *recordingConsumer {
	return &recordingConsumer{
		name:       name,
		interested: func(*thinrsbus.Envelope) bool { return interested },
	}
}

func (c *recordingConsumer) IsHandled(env *thinrsbus.Envelope) bool {
	c.checks.Add(1)
	return c.interested(env)
}

func (c *recordingConsumer) Deliver(ctx context.Context, env *thinrsbus.Envelope) error {
	c.mu.Lock()
	c.got = append(c.got, env.ID())
	c.mu.Unlock()
	if c.onDeliver != nil {
		return c.onDeliver(env)
	}
	return nil
}

func (c *recordingConsumer) Delivered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

// logRecord is one captured log call.
type logRecord struct {
	Level string
	Msg   string
	Args  []any
}

// recordingLogger captures every log call.
type recordingLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, logRecord{Level: level, Msg: msg, Args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("DEBUG", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("INFO", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("WARN", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("ERROR", msg, args) }

func (l *recordingLogger) Records(level string) []logRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logRecord
	for _, r := range l.records {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

func (l *recordingLogger) Has(level, msg string) bool {
	for _, r := range l.Records(level) {
		if r.Msg == msg {
			return true
		}
	}
	return false
}

// attr returns the value logged under key, if any.
func (r logRecord) attr(key string) (any, bool) {
	for i := 0; i+1 < len(r.Args); i += 2 {
		if k, ok := r.Args[i].(string); ok && k == key {
			return r.Args[i+1], true
		}
	}
	return nil, false
}

// testConfig returns a config with a short shutdown window.
func testConfig(namespace string) thinrsbus.Config {
	cfg := thinrsbus.DefaultConfig()
	cfg.Namespace = namespace
	cfg.Receiver.Workers = 4
	cfg.Receiver.ShutdownTimeoutMs = 2000
	return cfg
}

// newFakeReceiver builds a receiver over a fresh fakeQueue.
func newFakeReceiver(t *testing.T, cfg thinrsbus.Config) (*thinrsbus.Receiver, *fakeQueue, *recordingLogger) {
	t.Helper()

	queue := newFakeQueue()
	logger := &recordingLogger{}
	r, err := thinrsbus.NewReceiver(context.Background(), queue, cfg, thinrsbus.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return r, queue, logger
}

// newMiniRedis starts an in-process Redis and returns a config pointing at it.
func newMiniRedis(t *testing.T) (*miniredis.Miniredis, thinrsbus.Config) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := testConfig(UniqueNamespace(t))
	cfg.Redis.Address = mr.Addr()
	return mr, cfg
}

// UniqueNamespace returns a test-scoped namespace like "test-TestName-abc123".
func UniqueNamespace(t *testing.T) string {
	name := strings.ReplaceAll(t.Name(), "/", "-")
	return fmt.Sprintf("test-%s-%s", name, uuid.New().String()[:8])
}

// WaitFor polls condition every 10ms until it returns true or timeout expires.
func WaitFor(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("WaitFor timed out after %v", timeout)
}

var errDeliver = errors.New("deliver failed")
