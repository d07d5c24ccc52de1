package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"updateengine/internal/config"
	"updateengine/internal/deps"
	"updateengine/internal/slot"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDevices verifies that the current slot's partitions are readable and
// the target slot's partitions are writable.
func CheckDevices(dir, current, target string) []Result {
	var results []Result
	for _, partition := range []string{slot.Boot, slot.System} {
		results = append(results, checkDevice(dir, partition, current, unix.R_OK))
		results = append(results, checkDevice(dir, partition, target, unix.W_OK))
	}
	return results
}

func checkDevice(dir, partition, slotName string, mode uint32) Result {
	label, err := slot.Label(partition, slotName)
	if err != nil {
		return Result{Name: partition + " device", Detail: err.Error()}
	}
	name := "Device " + label
	path := filepath.Join(dir, label)
	if _, err := os.Stat(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	access := "read"
	if mode&unix.W_OK != 0 {
		access = "write"
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no %s access: %v)", path, access, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s ok)", path, access)}
}

// CheckSystemDeps evaluates the external programs and key material for the
// given config. The decoder tools are optional with the native backend.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	native := cfg.Transfer.DecoderBackend == config.BackendNative
	requirements := []deps.Requirement{
		{Name: "OpenSSL", Command: cfg.Tools.OpenSSL, Description: "Required for manifest signature verification"},
		{Name: "bootctl", Command: cfg.Tools.Bootctl, Description: "Required to switch slots"},
		{Name: "sync", Command: cfg.Tools.Sync, Description: "Required to flush images to disk"},
		{Name: "mount", Command: cfg.Tools.Mount, Description: "Required for anki-only updates"},
		{Name: "umount", Command: cfg.Tools.Umount, Description: "Required for anki-only updates"},
		{Name: "getprop", Command: cfg.Tools.Getprop, Description: "Required to identify the device"},
		{Name: "gzip", Command: cfg.Tools.Gunzip, Description: "Decompresses images with the process decoder", Optional: native},
		{Name: "Delta applier", Command: cfg.Tools.DeltaApplier, Description: "Required for delta updates", Optional: true},
	}
	results := deps.CheckBinaries(requirements)
	results = append(results, deps.CheckReadableFiles([]deps.Requirement{
		{Name: "Public key", Command: cfg.Paths.PublicKey, Description: "Verifies the manifest signature"},
		{Name: "Password file", Command: cfg.Paths.PasswordFile, Description: "Decrypts encrypted images"},
	})...)
	return results
}
