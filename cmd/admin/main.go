package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hunetmoducoding/thinrsbus-go/internal/cli"
	"github.com/hunetmoducoding/thinrsbus-go/pkg/thinrsbus"
)

type adminOptions struct {
	conn       cli.ConnOptions
	jsonOutput bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &adminOptions{}

	cmd := &cobra.Command{
		Use:          "thinrsbus-admin",
		Short:        "Inspect queue streams",
		SilenceUsage: true,
	}
	opts.conn.Bind(cmd)
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(newStatsCommand(opts), newPeekCommand(opts))
	return cmd
}

func newAdmin(cmd *cobra.Command, opts *adminOptions) (*thinrsbus.Admin, func(), error) {
	cfg, err := opts.conn.Config(cmd)
	if err != nil {
		return nil, nil, err
	}

	client := thinrsbus.NewRedisClient(cfg.Redis)
	if err := client.Ping(cmd.Context()).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Address, err)
	}

	return thinrsbus.NewAdmin(client, cfg), func() { _ = client.Close() }, nil
}

// newStatsCommand constructs the `stats` subcommand.
func newStatsCommand(opts *adminOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stream info (length, first/last ID)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admin, closeFn, err := newAdmin(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			info, err := admin.StreamInfo(cmd.Context(), opts.conn.Topic)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, info)
			}
			fmt.Fprintf(out, "Stream Info:\n")
			fmt.Fprintf(out, "  Stream:    %s\n", info.Stream)
			fmt.Fprintf(out, "  Length:    %d\n", info.Length)
			fmt.Fprintf(out, "  First ID:  %s\n", info.FirstID)
			fmt.Fprintf(out, "  Last ID:   %s\n", info.LastID)
			return nil
		},
	}
}

type peekRow struct {
	ID      string            `json:"id"`
	Type    string            `json:"type,omitempty"`
	TraceID string            `json:"trace_id,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// newPeekCommand constructs the `peek [n]` subcommand.
func newPeekCommand(opts *adminOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "peek [n]",
		Short: "Show the oldest N entries as envelopes (default: 10)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := int64(10)
			if len(args) == 1 {
				n, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid count %q", args[0])
				}
				count = n
			}

			admin, closeFn, err := newAdmin(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			results, err := admin.Peek(cmd.Context(), opts.conn.Topic, count)
			if err != nil {
				return err
			}

			rows := make([]peekRow, 0, len(results))
			for _, res := range results {
				row := peekRow{ID: res.ID}
				if res.Err != nil {
					row.Error = res.Err.Error()
				} else {
					body, _ := io.ReadAll(res.Envelope.Body())
					row.Type = res.Envelope.Type()
					row.TraceID = res.Envelope.TraceID()
					row.Headers = res.Envelope.Headers()
					row.Body = string(body)
				}
				rows = append(rows, row)
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, rows)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tType\tBody")
			fmt.Fprintln(w, "--\t----\t----")
			for _, row := range rows {
				if row.Error != "" {
					fmt.Fprintf(w, "%s\t!\t%s\n", row.ID, row.Error)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", row.ID, row.Type, row.Body)
			}
			return w.Flush()
		},
	}
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
