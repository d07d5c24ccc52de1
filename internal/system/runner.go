package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result is the outcome of one command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the command exited with status zero.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Runner executes external commands.
type Runner interface {
	// Run executes name with args. err is non-nil only when the command could
	// not be started or waited for; a non-zero exit is reported in Result.
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("run %s: %w", name, err)
	}
	return result, nil
}

// describe renders a failed command for error messages.
func describe(name string, args []string, result Result) string {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	detail := fmt.Sprintf("%q exited with status %d", line, result.ExitCode)
	if result.Stderr != "" {
		detail += ": " + result.Stderr
	}
	return detail
}

// runChecked runs a command and turns a non-zero exit into an error.
func runChecked(ctx context.Context, runner Runner, name string, args ...string) (Result, error) {
	if runner == nil {
		runner = ExecRunner{}
	}
	result, err := runner.Run(ctx, name, args...)
	if err != nil {
		return result, err
	}
	if !result.OK() {
		return result, errors.New(describe(name, args, result))
	}
	return result, nil
}
