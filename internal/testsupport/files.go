package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"updateengine/internal/config"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	writePattern(t, path, size, 0x42)
}

// DeviceNames lists the partition files created by WriteDevices.
var DeviceNames = []string{"boot_a", "system_a", "boot_b", "system_b", "recovery", "recoveryfs"}

// WriteDevices creates every slot device under the configured boot device
// directory. Each device is size bytes of a byte pattern unique to it, so a
// test can tell which device a copy came from.
func WriteDevices(t testing.TB, cfg *config.Config, size int64) {
	t.Helper()
	for i, name := range DeviceNames {
		writePattern(t, filepath.Join(cfg.Paths.BootDeviceDir, name), size, byte(0x10+i))
	}
}

// DeviceContents reads a device file created by WriteDevices.
func DeviceContents(t testing.TB, cfg *config.Config, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Paths.BootDeviceDir, name))
	if err != nil {
		t.Fatalf("read device %s: %v", name, err)
	}
	return data
}

// DevicePattern returns the fill byte WriteDevices used for name.
func DevicePattern(name string) byte {
	for i, candidate := range DeviceNames {
		if candidate == name {
			return byte(0x10 + i)
		}
	}
	return 0
}

// IsZeroPrefix reports whether data starts with n zero bytes.
func IsZeroPrefix(data []byte, n int) bool {
	if len(data) < n {
		return false
	}
	return bytes.Equal(data[:n], make([]byte, n))
}

func writePattern(t testing.TB, path string, size int64, fill byte) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := bytes.Repeat([]byte{fill}, chunkSize)

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}
