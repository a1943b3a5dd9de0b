package thinrsbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ReceiverFactory builds a fresh Receiver, including its queue.
type ReceiverFactory func(ctx context.Context) (*Receiver, error)

// Supervisor owns a Receiver and recreates it when a transport error halts
// its loop. Consumers subscribed to the Supervisor are carried over to every
// new Receiver.
type Supervisor struct {
	factory   ReceiverFactory
	config    SupervisorConfig
	logger    Logger
	consumers consumerSet

	mu      sync.Mutex
	current *Receiver
}

// NewSupervisor creates a Supervisor. A nil logger means slog.Default().
func NewSupervisor(factory ReceiverFactory, config Config, logger Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		factory: factory,
		config:  config.WithDefaults().Supervisor,
		logger:  logger,
	}
}

// Subscribe registers a consumer with the live receiver and every later one.
func (s *Supervisor) Subscribe(consumer Consumer) {
	s.consumers.add(consumer)

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current != nil {
		// s.consumers hands the consumer to the next receiver
		if err := current.Subscribe(consumer); err != nil {
			s.logger.Debug("receiver closed, consumer waits for the next one",
				"receiver", current.Name(), "error", err)
		}
	}
}

// Current returns the live receiver, or nil between generations.
func (s *Supervisor) Current() *Receiver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Run keeps a receiver alive until ctx is canceled or a receiver stops
// without an error (its queue was closed from outside). Construction and
// transport failures are retried with exponential backoff.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0

	for {
		r, err := s.factory(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			delay := ComputeDelay(attempt, s.config)
			s.logger.Error("receiver construction failed",
				"attempt", attempt, "retry_in", delay, "error", err)
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}

		started := time.Now()
		s.setCurrent(r)
		for _, c := range s.consumers.snapshot() {
			_ = r.Subscribe(c)
		}

		select {
		case <-ctx.Done():
			s.setCurrent(nil)
			return r.Close()
		case <-r.Done():
		}

		haltErr := r.Err()
		s.setCurrent(nil)
		if err := r.Close(); err != nil {
			s.logger.Warn("closing halted receiver failed", "receiver", r.Name(), "error", err)
		}

		if haltErr == nil {
			s.logger.Info("receiver stopped", "receiver", r.Name())
			return nil
		}

		// a receiver that ran longer than the max delay starts a new backoff series
		if time.Since(started) > time.Duration(s.config.MaxDelayMs)*time.Millisecond {
			attempt = 0
		}
		attempt++
		delay := ComputeDelay(attempt, s.config)
		s.logger.Warn("receiver halted, recreating",
			"receiver", r.Name(), "attempt", attempt, "retry_in", delay, "error", haltErr)
		if !sleepCtx(ctx, delay) {
			return nil
		}
	}
}

func (s *Supervisor) setCurrent(r *Receiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = r
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
