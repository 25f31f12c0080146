package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/4thel00z/chirp/internal"
)

func newTestApp(env map[string]string) *app {
	return &app{
		resolver: internal.NewScopeResolver(),
		getenv:   func(key string) string { return env[key] },
	}
}

// setupScope creates an empty data directory with a saved config.
func setupScope(t *testing.T, cfg *internal.Config) internal.Scope {
	t.Helper()

	root := t.TempDir()
	scope := internal.Scope{
		Type:     internal.ScopeProject,
		Path:     root,
		DataPath: filepath.Join(root, internal.DataDirName),
	}
	if err := os.MkdirAll(scope.DataPath, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if cfg == nil {
		cfg = internal.DefaultConfig()
	}
	if err := internal.SaveConfig(scope, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return scope
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd("test", a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func openScopeStore(t *testing.T, scope internal.Scope) *internal.SQLStore {
	t.Helper()
	store, err := internal.OpenStore(t.Context(), internal.DialectSQLite, scope.DBPath())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
