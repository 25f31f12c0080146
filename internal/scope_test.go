package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScopePaths(t *testing.T) {
	scope := Scope{DataPath: "/home/user/.chirp"}

	cases := map[string]string{
		scope.ConfigPath():  "/home/user/.chirp/config.yaml",
		scope.PersonaPath(): "/home/user/.chirp/persona.yaml",
		scope.DBPath():      "/home/user/.chirp/chirp.db",
		scope.IgnorePath():  "/home/user/.chirp/.chirpignore",
	}
	for got, expected := range cases {
		if got != expected {
			t.Errorf("expected %q, got %q", expected, got)
		}
	}
}

func TestScopeResolverGlobal(t *testing.T) {
	resolver := NewScopeResolver()
	scope := resolver.Global()

	if scope.Type != ScopeGlobal {
		t.Errorf("expected ScopeGlobal, got %q", scope.Type)
	}

	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".chirp")
	if scope.DataPath != expected {
		t.Errorf("expected DataPath %q, got %q", expected, scope.DataPath)
	}
}

func TestScopeResolverProjectNotFound(t *testing.T) {
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	defer func() { _ = os.Chdir(orig) }()

	_ = os.Chdir(tmp)

	resolver := &ScopeResolver{homeDir: t.TempDir()}
	_, found := resolver.Project()
	if found {
		t.Error("expected Project() to return false when no .chirp exists")
	}
}

func TestScopeResolverProjectInParent(t *testing.T) {
	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, ".chirp")
	if err := os.Mkdir(dataDir, 0755); err != nil {
		t.Fatal(err)
	}
	subDir := filepath.Join(tmp, "sub", "dir")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	orig, _ := os.Getwd()
	defer func() { _ = os.Chdir(orig) }()

	_ = os.Chdir(subDir)

	resolver := &ScopeResolver{homeDir: t.TempDir()}
	scope, found := resolver.Project()
	if !found {
		t.Fatal("expected Project() to find .chirp in parent")
	}
	if scope.Type != ScopeProject {
		t.Errorf("expected ScopeProject, got %q", scope.Type)
	}

	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedPath, _ := filepath.EvalSymlinks(tmp)
	actualPath, _ := filepath.EvalSymlinks(scope.Path)
	if actualPath != expectedPath {
		t.Errorf("expected Path %q, got %q", expectedPath, actualPath)
	}
}

func TestScopeResolverResolveExplicitGlobal(t *testing.T) {
	resolver := NewScopeResolver()
	scope := resolver.Resolve("global")
	if scope.Type != ScopeGlobal {
		t.Errorf("expected ScopeGlobal, got %q", scope.Type)
	}
}

func TestScopeResolverResolveExplicitDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "agent")

	resolver := NewScopeResolver()
	scope := resolver.Resolve(dir)
	if scope.DataPath != dir {
		t.Errorf("expected DataPath %q, got %q", dir, scope.DataPath)
	}
}

func TestScopeResolverResolveFallbackToGlobal(t *testing.T) {
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	defer func() { _ = os.Chdir(orig) }()

	_ = os.Chdir(tmp)

	resolver := &ScopeResolver{homeDir: t.TempDir()}
	scope := resolver.Resolve("")
	if scope.Type != ScopeGlobal {
		t.Errorf("expected fallback to ScopeGlobal, got %q", scope.Type)
	}
}
