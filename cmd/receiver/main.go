package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hunetmoducoding/thinrsbus-go/internal/cli"
	"github.com/hunetmoducoding/thinrsbus-go/pkg/thinrsbus"
)

type receiverOptions struct {
	conn        cli.ConnOptions
	types       []string
	start       string
	removal     string
	workers     int64
	supervise   bool
	failRate    float64
	processTime time.Duration
	drain       time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &receiverOptions{}

	cmd := &cobra.Command{
		Use:          "thinrsbus-receiver",
		Short:        "Watch a queue and print every envelope delivered to it",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	opts.conn.Bind(cmd)
	flags := cmd.Flags()
	flags.StringSliceVar(&opts.types, "types", nil, "Message types to accept (default: all)")
	flags.StringVar(&opts.start, "start", "", `Start position: "0" for the head, "$" for new entries only`)
	flags.StringVar(&opts.removal, "removal", "", "Removal policy (delivered|never)")
	flags.Int64Var(&opts.workers, "workers", 0, "Dispatch workers")
	flags.BoolVar(&opts.supervise, "supervise", false, "Recreate the receiver after transport errors")
	flags.Float64Var(&opts.failRate, "fail-rate", 0.0, "Fraction [0,1] of deliveries to randomly fail")
	flags.DurationVar(&opts.processTime, "process-time", 0, "Simulated processing time (e.g., 2s)")
	flags.DurationVar(&opts.drain, "drain", 0, "Exit after no message arrived for this long")

	return cmd
}

func run(cmd *cobra.Command, opts *receiverOptions) error {
	cfg, err := opts.conn.Config(cmd)
	if err != nil {
		return err
	}
	if opts.start != "" {
		cfg.Receiver.StartID = opts.start
	}
	if opts.removal != "" {
		cfg.Receiver.Removal = thinrsbus.RemovalPolicy(opts.removal)
	}
	if opts.workers > 0 {
		cfg.Receiver.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := opts.conn.Logger()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	var received atomic.Int64
	var lastMsg atomic.Int64
	lastMsg.Store(time.Now().UnixNano())

	deliver := func(ctx context.Context, env *thinrsbus.Envelope) error {
		timestamp := time.Now().Format(time.RFC3339)
		body, err := io.ReadAll(env.Body())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "[%s] <- %s | %s | %s\n", timestamp, env.ID(), env.Type(), body)

		received.Add(1)
		lastMsg.Store(time.Now().UnixNano())

		if opts.processTime > 0 {
			select {
			case <-time.After(opts.processTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if opts.failRate > 0 && rand.Float64() < opts.failRate {
			return fmt.Errorf("simulated error (fail-rate=%.2f)", opts.failRate)
		}
		return nil
	}

	var consumer thinrsbus.Consumer = thinrsbus.NewFuncConsumer(nil, deliver)
	if len(opts.types) > 0 {
		consumer = thinrsbus.TypeConsumer(deliver, opts.types...)
	}

	factory := func(ctx context.Context) (*thinrsbus.Receiver, error) {
		queue := thinrsbus.NewRedisQueue(cfg, opts.conn.Topic)
		r, err := thinrsbus.NewReceiver(ctx, queue, cfg, thinrsbus.WithLogger(logger))
		if err != nil {
			_ = queue.Close()
			return nil, err
		}
		return r, nil
	}

	if opts.drain > 0 {
		go watchDrain(ctx, cancel, &lastMsg, opts.drain, out)
	}

	fmt.Fprintf(out, "[%s] Watching '%s'\n",
		time.Now().Format(time.RFC3339), thinrsbus.StreamKey(cfg.Namespace, opts.conn.Topic))

	if opts.supervise {
		sup := thinrsbus.NewSupervisor(factory, cfg, logger)
		sup.Subscribe(consumer)
		err = sup.Run(ctx)
	} else {
		err = runOnce(ctx, factory, consumer)
	}

	fmt.Fprintf(out, "[%s] Shutdown complete (received %d messages)\n",
		time.Now().Format(time.RFC3339), received.Load())
	return err
}

// runOnce runs a single receiver until ctx ends or the receiver halts.
func runOnce(ctx context.Context, factory thinrsbus.ReceiverFactory, consumer thinrsbus.Consumer) error {
	r, err := factory(ctx)
	if err != nil {
		return err
	}
	if err := r.Subscribe(consumer); err != nil {
		_ = r.Close()
		return err
	}

	select {
	case <-ctx.Done():
	case <-r.Done():
	}

	haltErr := r.Err()
	if err := r.Close(); err != nil {
		return err
	}
	return haltErr
}

// watchDrain cancels once no message has arrived for quiet.
func watchDrain(ctx context.Context, cancel context.CancelFunc, lastMsg *atomic.Int64, quiet time.Duration, out io.Writer) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(time.Unix(0, lastMsg.Load())) > quiet {
				fmt.Fprintf(out, "[%s] Drain complete: no new messages for %v\n",
					time.Now().Format(time.RFC3339), quiet)
				cancel()
				return
			}
		}
	}
}
