package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for blank command: %#v", results[2])
	}
}

func TestCheckReadableFiles(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join(dir, "ota.pub")
	if err := os.WriteFile(key, []byte("key"), 0o644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	results := CheckReadableFiles([]Requirement{
		{Name: "Key", Command: key},
		{Name: "Missing", Command: filepath.Join(dir, "absent")},
		{Name: "Dir", Command: dir},
		{Name: "Unset", Command: ""},
	})
	if !results[0].Available {
		t.Fatalf("expected readable key, got %#v", results[0])
	}
	for _, r := range results[1:] {
		if r.Available || r.Detail == "" {
			t.Fatalf("expected %s to be unavailable with detail, got %#v", r.Name, r)
		}
	}
}
