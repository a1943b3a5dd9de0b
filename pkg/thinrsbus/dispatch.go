package thinrsbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// dispatch maps one observed message and fans it out. It runs on the
// dispatch pool, never on the watch loop.
//
// Every consumer is asked whether it wants the envelope. If at least one
// does, the envelope goes to every registered consumer, and then (with
// RemoveDelivered) the message is removed from the queue.
func (r *Receiver) dispatch(ctx context.Context, queue Queue, msg *RawMessage) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("dispatch panicked",
				"message_id", msg.ID,
				"error", &ConsumerPanicError{Value: v})
		}
	}()

	consumers := r.consumers.snapshot()
	if len(consumers) == 0 {
		return
	}

	env, err := r.mapper.Map(msg)
	if err != nil {
		r.logger.Error("envelope mapping failed", "message_id", msg.ID, "error", err)
		return
	}

	interested := false
	for _, c := range consumers {
		if r.isHandled(c, env) {
			interested = true
		}
	}
	if !interested {
		return
	}

	r.logger.Debug("delivering envelope", "message_id", env.ID(), "consumers", len(consumers))
	for _, c := range consumers {
		r.deliver(ctx, c, env)
	}

	if r.config.Removal == RemoveDelivered {
		if err := queue.Remove(ctx, env.ID()); err != nil {
			r.logger.Warn("failed to remove delivered message", "message_id", env.ID(), "error", err)
		}
	}
}

func (r *Receiver) isHandled(c Consumer, env *Envelope) (handled bool) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("consumer interest check failed",
				"consumer", fmt.Sprintf("%T", c),
				"message_id", env.ID(),
				"error", &ConsumerPanicError{Value: v})
			handled = false
		}
	}()
	return c.IsHandled(env)
}

func (r *Receiver) deliver(ctx context.Context, c Consumer, env *Envelope) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("consumer delivery failed",
				"consumer", fmt.Sprintf("%T", c),
				"message_id", env.ID(),
				"error", &ConsumerPanicError{Value: v})
		}
	}()

	if err := c.Deliver(ctx, env); err != nil {
		r.logger.Error("consumer delivery failed",
			"consumer", fmt.Sprintf("%T", c),
			"message_id", env.ID(),
			"error", err)
	}
}

type workerKey struct{}

// dispatchPool runs dispatch work off the caller's goroutine with at most
// `workers` jobs executing at once. submit never blocks, so each accepted
// job holds a goroutine while it waits for a slot.
type dispatchPool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

func newDispatchPool(workers int64) *dispatchPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &dispatchPool{
		sem:    semaphore.NewWeighted(workers),
		cancel: cancel,
	}
	p.ctx = context.WithValue(ctx, workerKey{}, p)
	return p
}

// submit schedules fn. Returns false once the pool is draining.
func (p *dispatchPool) submit(fn func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)

		fn(p.ctx)
	}()
	return true
}

// owns reports whether ctx was handed out by this pool to one of its jobs.
func (p *dispatchPool) owns(ctx context.Context) bool {
	owner, _ := ctx.Value(workerKey{}).(*dispatchPool)
	return owner == p
}

func (p *dispatchPool) stopAccepting() {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()
}

// wait stops accepting work and waits for submitted jobs until timeout or
// ctx is done. In that case the jobs' context is canceled and wait returns
// false.
func (p *dispatchPool) wait(ctx context.Context, timeout time.Duration) bool {
	p.stopAccepting()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return true
	case <-ctx.Done():
	case <-timer.C:
	}
	p.cancel()
	return false
}

// release stops accepting work without waiting. The jobs' context is
// canceled after the last submitted job returns.
func (p *dispatchPool) release() {
	p.stopAccepting()
	go func() {
		p.wg.Wait()
		p.cancel()
	}()
}
