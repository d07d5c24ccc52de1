package system

import (
	"context"
	"log/slog"

	"updateengine/internal/failure"
	"updateengine/internal/logging"
	"updateengine/internal/slot"
)

// SlotControl is the slot selector used by the installer.
type SlotControl interface {
	SetUnbootable(ctx context.Context, pair slot.Pair) error
	SetActive(ctx context.Context, pair slot.Pair) error
}

// Bootctl drives the bootctl tool: `bootctl <current> <verb> <target>`.
type Bootctl struct {
	Binary string
	Runner Runner
}

// SetUnbootable marks the target slot unbootable.
func (b Bootctl) SetUnbootable(ctx context.Context, pair slot.Pair) error {
	if _, err := runChecked(ctx, b.Runner, b.Binary, pair.Current, "set_unbootable", pair.Target); err != nil {
		return failure.Wrap(failure.CodeSlotControl, "mark target unbootable", "could not mark target slot unbootable", err)
	}
	return nil
}

// SetActive makes the target slot the one booted next.
func (b Bootctl) SetActive(ctx context.Context, pair slot.Pair) error {
	if _, err := runChecked(ctx, b.Runner, b.Binary, pair.Current, "set_active", pair.Target); err != nil {
		return failure.Wrap(failure.CodeSlotControl, "activate target", "could not set target slot as active", err)
	}
	return nil
}

// Syncer flushes written data to storage.
type Syncer interface {
	Sync(ctx context.Context) error
}

// SyncTool runs the sync binary.
type SyncTool struct {
	Binary string
	Runner Runner
}

// Sync implements Syncer.
func (s SyncTool) Sync(ctx context.Context) error {
	if _, err := runChecked(ctx, s.Runner, s.Binary); err != nil {
		return failure.Wrap(failure.CodeIO, "sync", "couldn't sync OS images to disk", err)
	}
	return nil
}

// Mounter mounts and unmounts a device at a mount point.
type Mounter interface {
	Mount(ctx context.Context, device, mountPoint string) error
	Unmount(ctx context.Context, mountPoint string) error
}

// MountTool runs mount and umount.
type MountTool struct {
	MountBinary  string
	UmountBinary string
	Runner       Runner
}

// Mount implements Mounter.
func (m MountTool) Mount(ctx context.Context, device, mountPoint string) error {
	if _, err := runChecked(ctx, m.Runner, m.MountBinary, device, mountPoint); err != nil {
		return failure.Wrap(failure.CodeIO, "mount", "couldn't mount target system partition", err)
	}
	return nil
}

// Unmount implements Mounter.
func (m MountTool) Unmount(ctx context.Context, mountPoint string) error {
	if _, err := runChecked(ctx, m.Runner, m.UmountBinary, mountPoint); err != nil {
		return failure.Wrap(failure.CodeIO, "umount", "couldn't unmount "+mountPoint, err)
	}
	return nil
}

// WithMount mounts device at mountPoint, runs fn, and always unmounts. An
// unmount failure is returned only when fn succeeded.
func WithMount(ctx context.Context, m Mounter, logger *slog.Logger, device, mountPoint string, fn func() error) (err error) {
	if err := m.Mount(ctx, device, mountPoint); err != nil {
		return err
	}
	defer func() {
		uerr := m.Unmount(ctx, mountPoint)
		if uerr == nil {
			return
		}
		if err == nil {
			err = uerr
			return
		}
		logging.WarnWithContext(logger, "unmount after failure did not succeed", "unmount_failed",
			logging.String("mount_point", mountPoint),
			logging.String(logging.FieldErrorHint, "target slot may still be mounted; run umount manually"),
			logging.String(logging.FieldImpact, "mount point stays busy until the next boot"),
			logging.Error(uerr),
		)
	}()
	return fn()
}

// Properties reads system properties.
type Properties interface {
	Get(ctx context.Context, name string) (string, bool)
}

// Getprop reads properties with the getprop binary.
type Getprop struct {
	Binary string
	Runner Runner
}

// Get returns the property value. Unknown properties and tool failures both
// report ok=false.
func (g Getprop) Get(ctx context.Context, name string) (string, bool) {
	result, err := runChecked(ctx, g.Runner, g.Binary, name)
	if err != nil {
		return "", false
	}
	return result.Stdout, true
}
