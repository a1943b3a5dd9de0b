package thinrsbus_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunetmoducoding/thinrsbus-go/pkg/thinrsbus"
)

func TestSmoke_SendReceiveRemove(t *testing.T) {
	_, cfg := newMiniRedis(t)
	cfg.Receiver.WatchTimeoutMs = 200
	ctx := context.Background()

	queue := thinrsbus.NewRedisQueue(cfg, "orders")
	logger := &recordingLogger{}
	r, err := thinrsbus.NewReceiver(ctx, queue, cfg, thinrsbus.WithLogger(logger))
	require.NoError(t, err)
	defer r.Close()

	var mu sync.Mutex
	var bodies []string
	orders := thinrsbus.TypeConsumer(func(ctx context.Context, env *thinrsbus.Envelope) error {
		b, err := io.ReadAll(env.Body())
		if err != nil {
			return err
		}
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		return nil
	}, "order.created")
	require.NoError(t, r.Subscribe(orders))

	sender := thinrsbus.NewRedisQueue(cfg, "orders")
	defer sender.Close()

	_, err = sender.Send(ctx, thinrsbus.Message{Type: "order.created", Payload: `{"id":1}`})
	require.NoError(t, err)
	skipped, err := sender.Send(ctx, thinrsbus.Message{Type: "user.created", Payload: `{"id":2}`})
	require.NoError(t, err)
	last, err := sender.Send(ctx, thinrsbus.Message{Type: "order.created", Payload: `{"id":3}`})
	require.NoError(t, err)

	WaitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 2
	}, 3*time.Second)
	WaitFor(t, func() bool { return r.Position() == last }, 3*time.Second)

	mu.Lock()
	assert.ElementsMatch(t, []string{`{"id":1}`, `{"id":3}`}, bodies)
	mu.Unlock()

	client := thinrsbus.NewRedisClient(cfg.Redis)
	defer client.Close()
	admin := thinrsbus.NewAdmin(client, cfg)

	// delivered entries are removed; the one nobody wanted stays
	WaitFor(t, func() bool {
		info, err := admin.StreamInfo(ctx, "orders")
		return err == nil && info.Length == 1
	}, 3*time.Second)
	info, err := admin.StreamInfo(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, skipped, info.FirstID)

	require.NoError(t, r.Close())
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not stop")
	}
	assert.NoError(t, r.Err())
	assert.Empty(t, logger.Records("ERROR"))
}

func TestSmoke_TwoReceiversBothObserve(t *testing.T) {
	_, cfg := newMiniRedis(t)
	cfg.Receiver.Removal = thinrsbus.RemoveNever
	ctx := context.Background()

	newReceiver := func() (*thinrsbus.Receiver, *recordingConsumer) {
		r, err := thinrsbus.NewReceiver(ctx, thinrsbus.NewRedisQueue(cfg, "events"), cfg,
			thinrsbus.WithLogger(&recordingLogger{}))
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Close() })

		c := newRecordingConsumer("c", true)
		require.NoError(t, r.Subscribe(c))
		return r, c
	}
	_, first := newReceiver()
	_, second := newReceiver()

	sender := thinrsbus.NewRedisQueue(cfg, "events")
	defer sender.Close()
	id, err := sender.Send(ctx, thinrsbus.Message{Type: "e", Payload: "{}"})
	require.NoError(t, err)

	WaitFor(t, func() bool {
		return len(first.Delivered()) == 1 && len(second.Delivered()) == 1
	}, 3*time.Second)
	assert.Equal(t, []string{id}, first.Delivered())
	assert.Equal(t, []string{id}, second.Delivered())
}
