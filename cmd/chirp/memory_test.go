package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/4thel00z/chirp/internal"
)

func seedLongTerm(t *testing.T, store *internal.SQLStore, content string, score int, at time.Time) {
	t.Helper()
	mem, err := internal.NewLongTermMemory(content, internal.NewEmbedding([]float32{1, 0, 0, 0}, "test"), score)
	if err != nil {
		t.Fatal(err)
	}
	mem.CreatedAt = at
	if err := store.SaveLongTerm(t.Context(), mem); err != nil {
		t.Fatalf("save long-term memory: %v", err)
	}
}

func TestMemoryListJSON(t *testing.T) {
	scope := setupScope(t, nil)
	store := openScopeStore(t, scope)

	at := time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)
	seedLongTerm(t, store, "the terminal hums at night", 8, at)
	seedLongTerm(t, store, "someone sent me a fish", 9, at.Add(time.Hour))

	out, err := execute(t, newTestApp(nil), "memory", "list", "--json", "--scope", scope.DataPath)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var got []memoryView
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 memories, got %d", len(got))
	}
	if got[0].Content != "someone sent me a fish" {
		t.Errorf("expected newest first, got %q", got[0].Content)
	}
	if got[0].Significance != 9 {
		t.Errorf("expected significance 9, got %d", got[0].Significance)
	}
}

func TestMemoryListLimit(t *testing.T) {
	scope := setupScope(t, nil)
	store := openScopeStore(t, scope)

	at := time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)
	for i := range 5 {
		seedLongTerm(t, store, strings.Repeat("x", i+1), 7, at.Add(time.Duration(i)*time.Minute))
	}

	out, err := execute(t, newTestApp(nil), "memory", "ls", "-n", "2", "--scope", scope.DataPath)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "[7]") {
		t.Errorf("expected significance marker, got %q", lines[0])
	}
}

func TestMemoryListShortTerm(t *testing.T) {
	scope := setupScope(t, nil)
	store := openScopeStore(t, scope)

	if err := store.SaveShortTerm(t.Context(), internal.NewShortTermMemory("quiet day, two mentions")); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, newTestApp(nil), "memory", "list", "--short", "--scope", scope.DataPath)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "quiet day, two mentions") {
		t.Errorf("expected short-term memory in output, got %q", out)
	}
}

func TestMemoryListEmpty(t *testing.T) {
	scope := setupScope(t, nil)

	out, err := execute(t, newTestApp(nil), "memory", "list", "--scope", scope.DataPath)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "No memories found") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestMemorySearchRequiresQuery(t *testing.T) {
	scope := setupScope(t, nil)

	if _, err := execute(t, newTestApp(nil), "memory", "search", "--scope", scope.DataPath); err == nil {
		t.Fatal("expected error without a query")
	}
}
