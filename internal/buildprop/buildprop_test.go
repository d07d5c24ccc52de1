package buildprop_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"updateengine/internal/buildprop"
	"updateengine/internal/config"
	"updateengine/internal/failure"
)

func TestParseKeepsOrder(t *testing.T) {
	f, err := buildprop.Parse(strings.NewReader("# header\nro.a=1\n\nro.b = two\nro.a=3\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("expected 2 properties, got %d", f.Len())
	}
	if v, _ := f.Get("ro.a"); v != "3" {
		t.Fatalf("later value should win, got %q", v)
	}
	f.Set("ro.c", "x=y")
	want := "# header\nro.a=3\n\nro.b=two\nro.c=x=y\n"
	if got := string(f.Bytes()); got != want {
		t.Fatalf("unexpected rendering:\n%s\nwant:\n%s", got, want)
	}
}

func TestNewIdentity(t *testing.T) {
	id := buildprop.NewIdentity("1.2.3", "abc123", "0.9.5", "20180101")
	if id.VersionID != "v1.2.3_os0.9.5" {
		t.Fatalf("unexpected version id %q", id.VersionID)
	}
	if id.BuildID != "v1.2.3-abc123_os0.9.5-20180101" {
		t.Fatalf("unexpected build id %q", id.BuildID)
	}
	if bare := buildprop.NewIdentity("1.2.3", "", "0.9.5", "r"); bare.BuildID != "v1.2.3_os0.9.5-r" {
		t.Fatalf("unexpected build id without revision %q", bare.BuildID)
	}
}

func TestRewrite(t *testing.T) {
	mnt := t.TempDir()
	layout := config.Default().Anki
	write := func(rel, content string) {
		path := filepath.Join(mnt, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(layout.VersionFile, "1.5.0\n")
	write(layout.RevisionFile, "deadbeef\n")
	write(layout.BuildProp, "ro.anki.version=0.9.5\nro.build.version.release=42\nro.build.id=old\nro.serialno=x\n")

	id, err := buildprop.Rewrite(mnt, layout)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if id.BuildID != "v1.5.0-deadbeef_os0.9.5-42" {
		t.Fatalf("unexpected build id %q", id.BuildID)
	}
	got, err := os.ReadFile(filepath.Join(mnt, layout.BuildProp))
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"ro.anki.version=0.9.5",
		"ro.build.version.release=42",
		"ro.build.id=v1.5.0-deadbeef_os0.9.5-42",
		"ro.serialno=x",
		"ro.revision=anki-deadbeef_os-",
		"ro.anki.victor.version=1.5.0",
		"ro.build.fingerprint=v1.5.0-deadbeef_os0.9.5-42",
		"ro.build.display.id=v1.5.0_os0.9.5",
	}, "\n") + "\n"
	if string(got) != want {
		t.Fatalf("unexpected build.prop:\n%s\nwant:\n%s", got, want)
	}
}

func TestRewriteMissingVersionFile(t *testing.T) {
	_, err := buildprop.Rewrite(t.TempDir(), config.Default().Anki)
	if !failure.Is(err, failure.CodeIO) {
		t.Fatalf("expected io failure, got %v", err)
	}
}
