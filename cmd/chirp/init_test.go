package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/4thel00z/chirp/internal"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	return tmpDir
}

func TestInitCmd(t *testing.T) {
	tmpDir := chdirTemp(t)

	cmd := NewInitCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	dataPath := filepath.Join(tmpDir, ".chirp")
	for _, name := range []string{"config.yaml", "persona.yaml", ".chirpignore"} {
		if _, err := os.Stat(filepath.Join(dataPath, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}

	if !strings.Contains(out.String(), dataPath) {
		t.Errorf("expected output to name %s, got %q", dataPath, out.String())
	}

	persona, err := internal.LoadPersona(filepath.Join(dataPath, "persona.yaml"))
	if err != nil {
		t.Fatalf("written persona does not load: %v", err)
	}
	if persona.Name == "" {
		t.Error("expected persona name")
	}

	mute, err := internal.LoadMuteList(filepath.Join(dataPath, ".chirpignore"))
	if err != nil {
		t.Fatalf("load mute list: %v", err)
	}
	if mute.Muted("spam_bot") {
		t.Error("default mute list should only hold comments")
	}
}

func TestInitCmdUsername(t *testing.T) {
	tmpDir := chdirTemp(t)

	cmd := NewInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--username", "night_shift"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	scope := internal.Scope{Type: internal.ScopeProject, Path: tmpDir, DataPath: filepath.Join(tmpDir, ".chirp")}
	cfg, err := internal.LoadConfig(scope)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Account.Username != "night_shift" {
		t.Errorf("expected username night_shift, got %q", cfg.Account.Username)
	}
}

func TestInitCmdAlreadyInitialized(t *testing.T) {
	tmpDir := chdirTemp(t)

	if err := os.MkdirAll(filepath.Join(tmpDir, ".chirp"), 0755); err != nil {
		t.Fatal(err)
	}

	cmd := NewInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for already initialized directory")
	}
	if !strings.Contains(err.Error(), "already initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInitCmdGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)

	cmd := NewInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--global"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if _, err := os.Stat(filepath.Join(home, ".chirp", "config.yaml")); err != nil {
		t.Errorf("global config not created: %v", err)
	}
}
