// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Command ghcore-probe is a small diagnostic CLI exercising the
// client core against the live GitHub API: it issues GET /rate_limit
// and prints the governor's resulting snapshot, useful for sanity
// checking a token and the client's wiring without standing up the
// full monitor.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulsewatch/ghcore/pkg/ghclient"
	"github.com/pulsewatch/ghcore/pkg/ghclient/auth"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var token string
	var timeout time.Duration

	rootCmd := &cobra.Command{
		Use:          "ghcore-probe",
		Short:        "probe the configured GitHub token's current rate limit",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd.Context(), token, timeout)
		},
	}

	rootCmd.Flags().StringVarP(&token, "token", "t", os.Getenv("GITHUB_TOKEN"),
		"personal access token to authenticate with (defaults to $GITHUB_TOKEN)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	return rootCmd
}

func runProbe(ctx context.Context, token string, timeout time.Duration) error {
	if token == "" {
		return fmt.Errorf("a token is required: pass --token or set GITHUB_TOKEN")
	}

	provider, err := auth.NewStaticTokenProvider(token)
	if err != nil {
		return err
	}

	cfg := ghclient.DefaultConfig()
	cfg.Timeout = timeout

	client, err := ghclient.New(provider, cfg)
	if err != nil {
		return fmt.Errorf("constructing client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := client.Get(ctx, "/rate_limit", nil, nil); err != nil {
		return fmt.Errorf("probing rate limit: %w", err)
	}

	snap, ok := client.Governor().Snapshot("core")
	if !ok {
		fmt.Println("no rate-limit headers observed in response")
		return nil
	}

	fmt.Printf("core: %d/%d remaining, resets at %s\n", snap.Remaining, snap.Limit, snap.Reset.Format(time.RFC3339))
	return nil
}
