package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hunetmoducoding/thinrsbus-go/internal/cli"
	"github.com/hunetmoducoding/thinrsbus-go/pkg/thinrsbus"
)

type producerOptions struct {
	conn     cli.ConnOptions
	msgType  string
	traceID  string
	producer string
	headers  map[string]string
	auto     []string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &producerOptions{}

	cmd := &cobra.Command{
		Use:          "thinrsbus-producer",
		Short:        "Append messages to a queue",
		Long:         "Sends each --auto payload and exits, or reads one payload per line from stdin.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	opts.conn.Bind(cmd)
	flags := cmd.Flags()
	flags.StringVar(&opts.msgType, "type", "event", "Message type")
	flags.StringVar(&opts.traceID, "trace-id", "", "Trace ID")
	flags.StringVar(&opts.producer, "producer", "thinrsbus-producer", "Producer identifier")
	flags.StringToStringVar(&opts.headers, "header", nil, "Extra header (key=value, repeatable)")
	flags.StringArrayVar(&opts.auto, "auto", nil, "Send payload and exit (repeatable)")

	return cmd
}

func run(cmd *cobra.Command, opts *producerOptions) error {
	cfg, err := opts.conn.Config(cmd)
	if err != nil {
		return err
	}

	queue := thinrsbus.NewRedisQueue(cfg, opts.conn.Topic)
	defer queue.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	send := func(payload string) error {
		id, err := queue.Send(ctx, thinrsbus.Message{
			Type:     opts.msgType,
			Payload:  payload,
			TraceID:  opts.traceID,
			Producer: opts.producer,
			Headers:  opts.headers,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Published: %s\n", id)
		return nil
	}

	if len(opts.auto) > 0 {
		for _, payload := range opts.auto {
			if err := send(payload); err != nil {
				return fmt.Errorf("publish: %w", err)
			}
		}
		return nil
	}

	fmt.Fprintf(out, "# Producer ready. Enter payloads (one per line). Press Ctrl+D to exit.\n")
	fmt.Fprintf(out, "# Publishing to: %s (type=%s)\n\n", queue.Endpoint(), opts.msgType)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := send(line); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}
