package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"updateengine/internal/config"
	"updateengine/internal/failure"
	"updateengine/internal/installer"
	"updateengine/internal/logging"
	"updateengine/internal/slot"
	"updateengine/internal/status"
)

// runClear empties the status directory, leaving it for a fresh attempt.
func runClear(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	reporter := status.New(cfg.Paths.StatusDir, cfg.Paths.LockFile)
	if err := reporter.Lock(); err != nil {
		return err
	}
	defer func() { _ = reporter.Unlock() }()
	return reporter.Clear()
}

func runUpdate(cmd *cobra.Command, ctx *commandContext, url string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		// Without a configuration the error still has to reach the UI.
		def := config.Default()
		return ctx.fail(cmd, status.New(def.Paths.StatusDir, ""), nil,
			failure.Wrap(failure.CodeUnknown, "load config", "configuration error", err))
	}
	logger, err := ctx.logger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	logger = logging.NewComponentLogger(logger, "cli")

	reporter := status.New(cfg.Paths.StatusDir, cfg.Paths.LockFile)
	if err := reporter.Lock(); err != nil {
		if errors.Is(err, status.ErrLocked) {
			// The running attempt owns the status files.
			return &exitError{code: int(failure.CodeUnknown), err: err}
		}
		return ctx.fail(cmd, reporter, logger, failure.Wrap(failure.CodeIO, "lock", "IO Error", err))
	}
	defer func() { _ = reporter.Unlock() }()
	if err := reporter.Clear(); err != nil {
		return ctx.fail(cmd, reporter, logger, failure.Wrap(failure.CodeIO, "clear status", "IO Error", err))
	}

	pair, err := slot.ResolveFromFile(cfg.Paths.Cmdline)
	if err != nil {
		logging.WarnWithContext(logger, "kernel command line unreadable", "cmdline_unreadable",
			logging.String(logging.FieldErrorHint, "check paths.cmdline"),
			logging.String(logging.FieldImpact, "updating from the factory slot into slot a"),
			logging.Error(err),
		)
	}
	logger.Debug("target slot resolved", logging.String("current_slot", pair.Current), logging.String("target_slot", pair.Target))

	opts := installer.Options{
		Config: cfg,
		Status: reporter,
		Pair:   pair,
		Logger: logger,
	}
	var line *progressLine
	errOut := cmd.ErrOrStderr()
	if ctx.isVerbose() && isTerminal(errOut) {
		line = newProgressLine(errOut)
		opts.OnProgress = line.update
	}
	engine, err := installer.New(opts)
	if err != nil {
		return ctx.fail(cmd, reporter, logger, err)
	}

	err = engine.Update(cmd.Context(), url)
	if line != nil {
		line.finish()
	}
	if err != nil {
		return ctx.fail(cmd, reporter, logger, err)
	}
	logger.Info("update installed",
		logging.String("target_slot", pair.Target),
		logging.String(logging.FieldEventType, "update_complete"),
	)
	return nil
}

// fail records err in the status directory and converts it into the exit
// code of the process.
func (c *commandContext) fail(cmd *cobra.Command, reporter *status.Reporter, logger *slog.Logger, err error) error {
	code, werr := reporter.Fail(err)
	if werr != nil && logger != nil {
		logging.ErrorWithContext(logger, "could not record failure", "status_write_failed",
			logging.String(logging.FieldErrorHint, "check the status directory"),
			logging.Error(werr),
		)
	}
	if c.isVerbose() {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
	return &exitError{code: code, err: err}
}
