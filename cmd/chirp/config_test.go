package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/4thel00z/chirp/internal"
)

func TestConfigShowRedactsSecrets(t *testing.T) {
	cfg := internal.DefaultConfig()
	cfg.Account.Username = "night_shift"
	cfg.X.BearerToken = "file-token"
	scope := setupScope(t, cfg)

	a := newTestApp(map[string]string{
		"LLM_API_KEY":        "sk-from-env",
		"SOLANA_PRIVATE_KEY": "5secretkey",
	})

	out, err := execute(t, a, "config", "show", "--scope", scope.DataPath)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	for _, secret := range []string{"file-token", "sk-from-env", "5secretkey"} {
		if strings.Contains(out, secret) {
			t.Errorf("output leaks %q", secret)
		}
	}
	if !strings.Contains(out, redacted) {
		t.Error("expected redacted placeholders")
	}
	if !strings.Contains(out, "night_shift") {
		t.Error("expected username in output")
	}
	if !strings.Contains(out, scope.ConfigPath()) {
		t.Errorf("expected config path in header, got %q", out)
	}
}

func TestConfigShowJSON(t *testing.T) {
	scope := setupScope(t, nil)

	out, err := execute(t, newTestApp(nil), "config", "show", "--json", "--scope", scope.DataPath)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var got struct {
		DataDir string `json:"data_dir"`
		Scope   string `json:"scope"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.DataDir != scope.DataPath {
		t.Errorf("expected data_dir %s, got %s", scope.DataPath, got.DataDir)
	}
	if got.Scope != string(internal.ScopeProject) {
		t.Errorf("expected project scope, got %s", got.Scope)
	}
}

func TestRedactLeavesEmptyValues(t *testing.T) {
	cfg := internal.DefaultConfig()
	redact(cfg)

	if cfg.X.BearerToken != "" || cfg.Wallet.PrivateKey != "" {
		t.Error("empty secrets should stay empty")
	}
}
