package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/rafaeljc/phishguard/internal/dataapi"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
)

func (c *cli) remoteCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "remote <url|email> <input>",
		Short: "Analyze with a running PhishGuard data plane",
		Long: `Send the input to a phishguard-data gRPC server and render its verdict.
The server's rules and threshold apply; --rules, --threshold and
--normalization are ignored.

For emails, "-" reads the body from standard input.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}

			kind := ruleengine.Kind(args[0])
			if !kind.Valid() {
				return fmt.Errorf("unknown kind %q (use: url, email)", args[0])
			}

			input := args[1]
			if kind == ruleengine.KindEmail && input == "-" {
				if input, err = c.readInput("-"); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			verdict, err := c.analyzeRemote(ctx, addr, kind, input)
			if err != nil {
				return err
			}
			return finish(c.out, opts.Output, verdict)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "data plane gRPC address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func (c *cli) analyzeRemote(ctx context.Context, addr string, kind ruleengine.Kind, input string) (*ruleengine.Verdict, error) {
	conn, err := grpc.NewClient(addr, c.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	defer conn.Close()

	client := dataapi.NewClient(conn)
	verdict, err := client.Analyze(dataapi.WithRequestID(ctx, uuid.NewString()), kind, input)
	if err != nil {
		return nil, fmt.Errorf("remote analysis failed: %w", err)
	}
	return verdict, nil
}
