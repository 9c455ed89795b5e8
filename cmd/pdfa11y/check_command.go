package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/client"
)

func newCheckCommand() *cobra.Command {
	var (
		server           string
		asJSON           bool
		timeout          time.Duration
		failOnViolations bool
	)

	cmd := &cobra.Command{
		Use:   "check <file.pdf>",
		Short: "Upload a PDF to the checker service and report violations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := client.New(server, timeout).Check(ctx, filepath.Base(path), content)
			if err != nil {
				return err
			}

			if asJSON {
				if err := writeJSON(cmd, res.Raw); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderReport(filepath.Base(path), res.Summary, shouldColorize(cmd.OutOrStdout())))
			}

			if failOnViolations && res.Summary.ViolationCount() > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", envOr("PDFA11Y_SERVER", "http://localhost:8080"), "Checker service base URL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw axe-core results as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum time to wait for the check")
	cmd.Flags().BoolVar(&failOnViolations, "fail-on-violations", false, "Exit with status 1 when violations are found")

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
