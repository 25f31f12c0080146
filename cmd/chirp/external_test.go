package main

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/4thel00z/chirp/internal"
)

func TestFindExternal(t *testing.T) {
	tmp := t.TempDir()
	script := filepath.Join(tmp, "chirp-test")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho ok"), 0755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PATH", tmp+string(os.PathListSeparator)+os.Getenv("PATH"))

	path, err := findExternal("test")
	if err != nil {
		t.Fatalf("expected to find chirp-test, got error: %v", err)
	}
	if path != script {
		t.Errorf("expected %s, got %s", script, path)
	}
}

func TestFindExternalNotFound(t *testing.T) {
	if _, err := findExternal("nonexistent-command-12345"); err == nil {
		t.Fatal("expected error for nonexistent command")
	}
}

func TestListExternalCommands(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()

	for _, s := range []string{"chirp-stats", "chirp-backup"} {
		if err := os.WriteFile(filepath.Join(first, s), []byte("#!/bin/sh"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	// shadowed by the first directory
	if err := os.WriteFile(filepath.Join(second, "chirp-stats"), []byte("#!/bin/sh"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(second, "chirp-noexec"), []byte("#!/bin/sh"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(second, "other-script"), []byte("#!/bin/sh"), 0755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PATH", first+string(os.PathListSeparator)+second)

	got := listExternalCommands()
	want := []string{"backup", "stats"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBuildExternalEnv(t *testing.T) {
	scope := internal.Scope{Type: internal.ScopeProject, Path: "/srv/bot", DataPath: "/srv/bot/.chirp"}
	env := buildExternalEnv("1.0.0", scope)

	want := map[string]string{
		"CHIRP_VERSION":  "1.0.0",
		"CHIRP_DATA_DIR": "/srv/bot/.chirp",
		"CHIRP_DB":       filepath.Join("/srv/bot/.chirp", "chirp.db"),
	}
	found := map[string]bool{}
	for _, e := range env {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if expected, tracked := want[key]; tracked {
			found[key] = true
			if value != expected {
				t.Errorf("expected %s=%s, got %s", key, expected, value)
			}
		}
		if key == "CHIRP_BIN" {
			found[key] = true
		}
	}

	for _, key := range []string{"CHIRP_VERSION", "CHIRP_BIN", "CHIRP_DATA_DIR", "CHIRP_DB"} {
		if !found[key] {
			t.Errorf("%s not found in env", key)
		}
	}
}
