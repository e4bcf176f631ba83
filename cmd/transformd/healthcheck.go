package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"transformd/internal/transport"
)

var (
	healthTarget  string
	healthTimeout time.Duration
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Query the gRPC health endpoint of a running transformd",
	Args:  cobra.NoArgs,
	RunE:  runHealthcheck,
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().StringVar(&healthTarget, "target", "localhost:9090", "gRPC address")
	healthcheckCmd.Flags().DurationVar(&healthTimeout, "timeout", 3*time.Second, "request timeout")
}

func runHealthcheck(cmd *cobra.Command, _ []string) error {
	c, err := transport.Dial(healthTarget)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
	defer cancel()
	if err := c.Check(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "SERVING")
	return nil
}
