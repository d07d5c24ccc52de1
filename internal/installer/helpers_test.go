package installer_test

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"updateengine/internal/config"
	"updateengine/internal/delta"
	"updateengine/internal/installer"
	"updateengine/internal/signature"
	"updateengine/internal/slot"
	"updateengine/internal/status"
)

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func randomBytes(seed int64, n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// image is one manifest section and the archive entry carrying it.
type image struct {
	section string
	entry   string
	// payload is the archive entry content.
	payload []byte
	// bytes and sha256 are published in the manifest.
	bytes  int
	sha256 string
	extra  []string
}

// gzImage describes an image whose decoded content is data.
func gzImage(t *testing.T, section, entry string, data []byte, extra ...string) image {
	return image{
		section: section,
		entry:   entry,
		payload: gzipBytes(t, data),
		bytes:   len(data),
		sha256:  digest(data),
		extra:   extra,
	}
}

func manifestText(version string, images ...image) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[META]\nmanifest_version=%s\nupdate_version=1.6.0.3000\nnum_images=%d\n", version, len(images))
	for _, img := range images {
		fmt.Fprintf(&b, "\n[%s]\ncompression=gz\nbytes=%d\nsha256=%s\n", img.section, img.bytes, img.sha256)
		for _, line := range img.extra {
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

type tarEntry struct {
	name string
	data []byte
}

func tarBytes(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.data)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.name, err)
		}
		if _, err := tw.Write(e.data); err != nil {
			t.Fatalf("tar write %s: %v", e.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

// buildPackage writes the manifest, a signature and every image entry in
// order.
func buildPackage(t *testing.T, manifest string, images ...image) []byte {
	t.Helper()
	entries := []tarEntry{
		{name: "manifest.ini", data: []byte(manifest)},
		{name: "manifest.sha256", data: []byte("signature")},
	}
	for _, img := range images {
		entries = append(entries, tarEntry{name: img.entry, data: img.payload})
	}
	return tarBytes(t, entries...)
}

// harness records every side effect the engine has outside the device files.
type harness struct {
	calls    []string
	props    map[string]string
	failSync bool
	mounted  bool
	onMount  func(mountPoint string)
	verify   installer.ManifestVerifier
	applier  delta.Applier
	progress [][2]int64
}

func newHarness() *harness {
	return &harness{
		props: map[string]string{
			"ro.anki.version":        "0.9.5",
			"ro.anki.victor.version": "1.5.0",
			"ro.serialno":            "00e10a",
		},
	}
}

func (h *harness) SetUnbootable(_ context.Context, pair slot.Pair) error {
	h.calls = append(h.calls, "set_unbootable "+pair.Current+" "+pair.Target)
	return nil
}

func (h *harness) SetActive(_ context.Context, pair slot.Pair) error {
	h.calls = append(h.calls, "set_active "+pair.Current+" "+pair.Target)
	return nil
}

func (h *harness) Sync(context.Context) error {
	h.calls = append(h.calls, "sync")
	if h.failSync {
		return fmt.Errorf("sync failed")
	}
	return nil
}

func (h *harness) Mount(_ context.Context, device, mountPoint string) error {
	h.calls = append(h.calls, "mount "+filepath.Base(device))
	h.mounted = true
	if h.onMount != nil {
		h.onMount(mountPoint)
	}
	return nil
}

func (h *harness) Unmount(context.Context, string) error {
	h.calls = append(h.calls, "umount")
	h.mounted = false
	return nil
}

func (h *harness) Get(_ context.Context, name string) (string, bool) {
	v, ok := h.props[name]
	return v, ok
}

type acceptAll struct{}

func (acceptAll) Verify(context.Context, string, string) (signature.Result, error) {
	return signature.Result{OK: true}, nil
}

func newEngine(t *testing.T, cfg *config.Config, h *harness) *installer.Engine {
	t.Helper()
	pair, err := slot.ResolveFromFile(cfg.Paths.Cmdline)
	if err != nil {
		t.Fatalf("resolve slots: %v", err)
	}
	verifier := h.verify
	if verifier == nil {
		verifier = acceptAll{}
	}
	engine, err := installer.New(installer.Options{
		Config:   cfg,
		Status:   status.New(cfg.Paths.StatusDir, ""),
		Pair:     pair,
		Verifier: verifier,
		Slots:    h,
		Syncer:   h,
		Mounter:  h,
		Props:    h,
		Applier:  h.applier,
		OnProgress: func(done, total int64) {
			h.progress = append(h.progress, [2]int64{done, total})
		},
	})
	if err != nil {
		t.Fatalf("installer.New: %v", err)
	}
	return engine
}

func readStatus(t *testing.T, cfg *config.Config, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Paths.StatusDir, name))
	if err != nil {
		t.Fatalf("read status %s: %v", name, err)
	}
	return strings.TrimSpace(string(data))
}

func statusExists(cfg *config.Config, name string) bool {
	_, err := os.Stat(filepath.Join(cfg.Paths.StatusDir, name))
	return err == nil
}
