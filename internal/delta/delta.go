// Package delta defines the call contract for binary delta payloads and a
// default applier that hands the payload to an external program.
//
// The payload reaches the applier as an io.ReadSeeker backed by a caching
// reader: seeks inside the cached prefix and forward seeks are cheap, any
// other access fails. Appliers must therefore consume the payload mostly
// front to back.
package delta

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"updateengine/internal/failure"
)

// Targets names the four block devices a delta touches. The current slot
// devices are read-only sources.
type Targets struct {
	TargetBoot    string
	TargetSystem  string
	CurrentBoot   string
	CurrentSystem string
}

// Args renders the device paths in the order the applier expects them.
func (t Targets) Args() []string {
	return []string{t.TargetBoot, t.TargetSystem, t.CurrentBoot, t.CurrentSystem}
}

// Applier applies a delta payload to the target slot.
type Applier interface {
	Apply(ctx context.Context, payload io.ReadSeeker, targets Targets) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, payload io.ReadSeeker, targets Targets) error

// Apply implements Applier.
func (f ApplierFunc) Apply(ctx context.Context, payload io.ReadSeeker, targets Targets) error {
	return f(ctx, payload, targets)
}

// ExecApplier streams the payload to Binary on stdin and passes the device
// paths as arguments: target boot, target system, current boot, current system.
type ExecApplier struct {
	Binary string
}

// Apply implements Applier.
func (a ExecApplier) Apply(ctx context.Context, payload io.ReadSeeker, targets Targets) error {
	binary := strings.TrimSpace(a.Binary)
	if binary == "" {
		return failure.New(failure.CodePayload, "apply delta", "Delta payload error: no applier configured")
	}
	cmd := exec.CommandContext(ctx, binary, targets.Args()...) //nolint:gosec
	cmd.Stdin = payload
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// A failure while feeding stdin keeps the code of the reader that
		// produced it.
		var tagged *failure.Error
		if errors.As(err, &tagged) {
			return err
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return failure.Wrap(failure.CodePayload, "apply delta", fmt.Sprintf("Delta payload error: %s", detail), err)
	}
	return nil
}
