package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"updateengine/internal/config"
	"updateengine/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDevices(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := CheckDevices(cfg.Paths.BootDeviceDir, "a", "b")
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Passed {
			t.Fatalf("expected %s to fail before devices exist", r.Name)
		}
	}

	testsupport.WriteDevices(t, cfg, 16)
	for _, r := range CheckDevices(cfg.Paths.BootDeviceDir, "f", "a") {
		if !r.Passed {
			t.Fatalf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestProbeSlots(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSlotSuffix("_b"))
	probe := ProbeSlots(cfg.Paths.Cmdline)
	if probe.Err != nil || probe.Pair.Current != "b" || probe.Pair.Target != "a" {
		t.Fatalf("unexpected probe %+v", probe)
	}
	if !strings.Contains(probe.Detail(), "slot b") {
		t.Fatalf("unexpected detail %q", probe.Detail())
	}

	factory := ProbeSlots(filepath.Join(t.TempDir(), "missing"))
	if factory.Err == nil || !factory.Factory() {
		t.Fatalf("expected factory fallback with error, got %+v", factory)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_StubbedDevice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteDevices(t, cfg, 16)
	testsupport.WriteFile(t, cfg.Paths.PublicKey, 32)
	bin := filepath.Join(testsupport.BaseDir(cfg), "tools")
	cfg.Tools.OpenSSL = testsupport.StubBinary(t, bin, "openssl", "exit 0\n")
	cfg.Tools.Bootctl = testsupport.StubBinary(t, bin, "bootctl", "exit 0\n")
	cfg.Tools.Sync = testsupport.StubBinary(t, bin, "sync", "exit 0\n")
	cfg.Tools.Mount = testsupport.StubBinary(t, bin, "mount", "exit 0\n")
	cfg.Tools.Umount = testsupport.StubBinary(t, bin, "umount", "exit 0\n")
	cfg.Tools.Getprop = testsupport.StubBinary(t, bin, "getprop", "exit 0\n")
	cfg.Tools.Gunzip = filepath.Join(bin, "absent-gzip")
	cfg.Tools.DeltaApplier = filepath.Join(bin, "absent-applier")

	results := RunAll(context.Background(), cfg)
	if Failed(results) {
		for _, r := range results {
			if !r.Passed {
				t.Errorf("check %q failed: %s", r.Name, r.Detail)
			}
		}
		t.FailNow()
	}

	cfg.Transfer.DecoderBackend = config.BackendProcess
	if !Failed(RunAll(context.Background(), cfg)) {
		t.Fatal("expected missing gzip to fail with the process backend")
	}
}
