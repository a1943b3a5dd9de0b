package thinrsbus

import (
	"context"
	"reflect"
	"sync"
)

// Consumer is something a Receiver can deliver envelopes to.
//
// Both methods may be called concurrently for different envelopes.
// IsHandled must not have side effects. A Consumer is registered by
// identity, so implementations should be pointer types. Values of a type
// that cannot be compared are never treated as duplicates.
type Consumer interface {
	// IsHandled reports whether the consumer wants env.
	IsHandled(env *Envelope) bool
	// Deliver hands env to the consumer. A returned error is logged by the
	// receiver and does not affect other consumers.
	Deliver(ctx context.Context, env *Envelope) error
}

// FuncConsumer builds a Consumer from two functions.
// Always use it through the pointer returned by NewFuncConsumer.
type FuncConsumer struct {
	isHandled func(env *Envelope) bool
	deliver   func(ctx context.Context, env *Envelope) error
}

// NewFuncConsumer returns a Consumer backed by the given functions.
// A nil isHandled accepts every envelope.
func NewFuncConsumer(
	isHandled func(env *Envelope) bool,
	deliver func(ctx context.Context, env *Envelope) error,
) *FuncConsumer {
	return &FuncConsumer{isHandled: isHandled, deliver: deliver}
}

func (c *FuncConsumer) IsHandled(env *Envelope) bool {
	if c.isHandled == nil {
		return true
	}
	return c.isHandled(env)
}

func (c *FuncConsumer) Deliver(ctx context.Context, env *Envelope) error {
	if c.deliver == nil {
		return nil
	}
	return c.deliver(ctx, env)
}

// TypeConsumer returns a Consumer interested in envelopes of the given types.
func TypeConsumer(deliver func(ctx context.Context, env *Envelope) error, types ...string) *FuncConsumer {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return NewFuncConsumer(func(env *Envelope) bool {
		_, ok := set[env.Type()]
		return ok
	}, deliver)
}

// consumerSet is the registration set shared by the watch loop and the
// dispatch workers. Writers replace the slice; readers take a snapshot, so a
// fan-out pass never sees a consumer twice.
type consumerSet struct {
	mu    sync.RWMutex
	items []Consumer
}

// add registers c. Returns false if c was already registered.
func (s *consumerSet) add(c Consumer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if sameConsumer(existing, c) {
			return false
		}
	}

	next := make([]Consumer, len(s.items), len(s.items)+1)
	copy(next, s.items)
	s.items = append(next, c)
	return true
}

// sameConsumer compares a and b with == when their dynamic type allows it.
func sameConsumer(a, b Consumer) (same bool) {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	// a comparable struct can still hold an uncomparable value in an
	// interface field
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func (s *consumerSet) snapshot() []Consumer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items
}

func (s *consumerSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *consumerSet) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}
