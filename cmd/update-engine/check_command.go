package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"updateengine/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the device is ready to take an update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			for _, line := range checkLines(results, colorize) {
				fmt.Fprintln(out, line)
			}
			if preflight.Failed(results) {
				return errors.New("device is not ready for updates")
			}
			return nil
		},
	}
}

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

const checkLabelWidth = 24

func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		mark, color := "OK", ansiGreen
		if !r.Passed {
			mark, color = "FAIL", ansiRed
		}
		line := fmt.Sprintf("  %-*s [%s]", checkLabelWidth, r.Name+":", mark)
		if r.Detail != "" {
			line += " " + r.Detail
		}
		if colorize {
			line = color + line + ansiReset
		}
		lines = append(lines, line)
	}
	return lines
}
