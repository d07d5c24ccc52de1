package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"updateengine/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose paths all live in a per-test temp
// directory. The status, device and mount directories exist; the kernel
// command line selects slot a. The native decoder backend is selected so
// tests do not depend on openssl or gzip being installed.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StatusDir = filepath.Join(base, "status")
	cfgVal.Paths.StagingDir = cfgVal.Paths.StatusDir
	cfgVal.Paths.LockFile = filepath.Join(base, "update-engine.lock")
	cfgVal.Paths.BootDeviceDir = filepath.Join(base, "by-name")
	cfgVal.Paths.MountPoint = filepath.Join(base, "mnt")
	cfgVal.Paths.Cmdline = filepath.Join(base, "cmdline")
	cfgVal.Paths.PublicKey = filepath.Join(base, "ota.pub")
	cfgVal.Paths.PasswordFile = filepath.Join(base, "ota.pas")
	cfgVal.Transfer.DecoderBackend = config.BackendNative
	cfgVal.Transfer.HTTPBlockSize = 64
	cfgVal.Transfer.WriteBlockSize = 4096

	for _, dir := range []string{cfgVal.Paths.StatusDir, cfgVal.Paths.BootDeviceDir, cfgVal.Paths.MountPoint} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	writeText(t, cfgVal.Paths.Cmdline, "console=ttyMSM0 androidboot.slot_suffix=_a\n")
	writeText(t, cfgVal.Paths.PasswordFile, "test-password\n")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSlotSuffix rewrites the kernel command line with the given
// androidboot.slot_suffix value. An empty suffix removes the argument.
func WithSlotSuffix(suffix string) ConfigOption {
	return func(b *configBuilder) {
		line := "console=ttyMSM0"
		if suffix != "" {
			line += " androidboot.slot_suffix=" + suffix
		}
		writeText(b.t, b.cfg.Paths.Cmdline, line+"\n")
	}
}

// WithProcessBackend selects the openssl/gzip child process decoder.
func WithProcessBackend() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transfer.DecoderBackend = config.BackendProcess
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the configured tools without an
// absolute path are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Tools.Mount, b.cfg.Tools.Umount}
		}
		for _, name := range names {
			StubBinary(b.t, filepath.Join(b.baseDir, "bin"), name, "exit 0\n")
		}
		PrependPath(b.t, filepath.Join(b.baseDir, "bin"))
	}
}

// StubBinary writes an executable shell script named name into dir and
// returns its path.
func StubBinary(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// PrependPath puts dir first on PATH for the duration of the test.
func PrependPath(t testing.TB, dir string) {
	t.Helper()
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StatusDir)
}

func writeText(t testing.TB, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
