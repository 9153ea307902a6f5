package codex

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
)

func writeSession(t *testing.T, dir, name string, lines []string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	for _, l := range lines {
		f.WriteString(l)
		f.WriteString("\n")
	}
}

func turnContext(model string) string {
	return `{"type":"turn_context","model_id":"` + model + `"}`
}

func tokenEvent(ts string, input, output, cached int64) string {
	return `{"type":"event_msg","timestamp":"` + ts + `","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":` +
		itoa(input) + `,"cached_input_tokens":` + itoa(cached) + `,"output_tokens":` + itoa(output) + `}}}}`
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestCumulativeToDelta(t *testing.T) {
	dir := t.TempDir()
	sessionsDir := filepath.Join(dir, "sessions")
	os.MkdirAll(sessionsDir, 0o755)
	writeSession(t, sessionsDir, "test-session.jsonl", []string{
		turnContext("gpt-5"),
		tokenEvent("2025-01-01T10:00:00Z", 100, 50, 0),
		tokenEvent("2025-01-01T10:05:00Z", 300, 150, 0),
	})

	t.Setenv("CODEX_HOME", dir)
	l := New(zerolog.Nop())
	entries, errs := l.StreamEntries(context.Background())

	var got []struct{ in, out int64 }
	for e := range entries {
		got = append(got, struct{ in, out int64 }{e.Tokens.InputTokens, e.Tokens.OutputTokens})
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].in != 100 || got[0].out != 50 {
		t.Fatalf("expected first delta 100/50, got %+v", got[0])
	}
	if got[1].in != 200 || got[1].out != 100 {
		t.Fatalf("expected second delta 200/100, got %+v", got[1])
	}
}

func TestModelFallbackWhenNoTurnContext(t *testing.T) {
	dir := t.TempDir()
	sessionsDir := filepath.Join(dir, "sessions")
	os.MkdirAll(sessionsDir, 0o755)
	writeSession(t, sessionsDir, "no-model.jsonl", []string{
		tokenEvent("2025-01-01T10:00:00Z", 100, 50, 0),
	})

	t.Setenv("CODEX_HOME", dir)
	l := New(zerolog.Nop())
	entries, errs := l.StreamEntries(context.Background())

	var models []string
	for e := range entries {
		models = append(models, e.Model)
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 || models[0] != fallbackModel {
		t.Fatalf("expected fallback model %q, got %v", fallbackModel, models)
	}
}

func TestNormalizeModelAlias(t *testing.T) {
	if got := normalizeModel("gpt-5-codex"); got != "gpt-5" {
		t.Fatalf("expected gpt-5, got %q", got)
	}
	if got := normalizeModel("o3-mini"); got != "o3-mini" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestNoSessionsDirectoryYieldsEmptyStream(t *testing.T) {
	t.Setenv("CODEX_HOME", filepath.Join(t.TempDir(), "does-not-exist"))
	l := New(zerolog.Nop())
	entries, errs := l.StreamEntries(context.Background())

	count := 0
	for range entries {
		count++
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty stream, got %d entries", count)
	}
}
