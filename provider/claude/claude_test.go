package claude

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeJSONL(t *testing.T, dir, name string, lines []map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	for _, l := range lines {
		b, err := json.Marshal(l)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		f.Write(b)
		f.Write([]byte("\n"))
	}
	return path
}

func assistantLine(sessionID, msgID, model string, input int64) map[string]any {
	return map[string]any{
		"sessionId": sessionID,
		"timestamp": "2024-01-01T10:00:00Z",
		"type":      "assistant",
		"cwd":       "/home/dev/project-x",
		"requestId": "req-" + msgID,
		"message": map[string]any{
			"model": model,
			"id":    msgID,
			"usage": map[string]any{"input_tokens": input, "output_tokens": 1},
		},
	}
}

func TestStreamEntriesParsesAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	writeJSONL(t, dir, "a.jsonl", []map[string]any{
		assistantLine("s1", "m1", "claude-3-opus-20240229", 100),
		assistantLine("s1", "m1", "claude-3-opus-20240229", 100), // duplicate, dropped
		assistantLine("s1", "m2", "claude-3-opus-20240229", 50),
	})

	l := New(zerolog.Nop(), dir)
	entries, errs := l.StreamEntries(context.Background())

	var got []string
	for e := range entries {
		got = append(got, e.Model)
		if e.Project != "project-x" {
			t.Fatalf("expected project derived from cwd basename, got %q", e.Project)
		}
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries after dedup, got %d", len(got))
	}
}

func TestStreamEntriesFiltersNonAssistantAndErrors(t *testing.T) {
	dir := t.TempDir()
	userLine := assistantLine("s1", "m1", "claude-3-opus-20240229", 100)
	userLine["type"] = "user"
	errLine := assistantLine("s1", "m2", "claude-3-opus-20240229", 100)
	errLine["isApiErrorMessage"] = true
	syntheticLine := assistantLine("s1", "m3", "<synthetic>", 100)

	writeJSONL(t, dir, "a.jsonl", []map[string]any{userLine, errLine, syntheticLine})

	l := New(zerolog.Nop(), dir)
	entries, errs := l.StreamEntries(context.Background())

	count := 0
	for range entries {
		count++
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected all lines filtered out, got %d entries", count)
	}
}

func TestDiscoverPathsOverride(t *testing.T) {
	dir := t.TempDir()
	paths := discoverPaths(dir)
	found := false
	for _, p := range paths {
		if p == dir {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected override path %q among discovered paths %v", dir, paths)
	}
}

func TestStreamEntriesDeduplicatesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	record := map[string]any{
		"sessionId": "s1",
		"timestamp": "2024-01-01T10:00:00Z",
		"type":      "assistant",
		"requestId": "req_456",
		"message": map[string]any{
			"model": "claude-3-opus-20240229",
			"id":    "msg_123",
			"usage": map[string]any{"input_tokens": 100, "output_tokens": 50},
		},
	}
	writeJSONL(t, dir, "a.jsonl", []map[string]any{record})
	writeJSONL(t, dir, "b.jsonl", []map[string]any{record})

	l := New(zerolog.Nop(), dir)
	entries, errs := l.StreamEntries(context.Background())

	var total int64
	count := 0
	for e := range entries {
		count++
		total += e.Tokens.Total()
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 surviving event across files, got %d", count)
	}
	if total != 150 {
		t.Fatalf("expected 150 total tokens, got %d", total)
	}
}

func TestStreamEntriesCostFieldPrecedence(t *testing.T) {
	dir := t.TempDir()
	line := assistantLine("s1", "m1", "claude-3-opus-20240229", 100)
	line["costUSD"] = 0.05
	line["cost_usd"] = 0.99
	writeJSONL(t, dir, "a.jsonl", []map[string]any{line})

	l := New(zerolog.Nop(), dir)
	entries, errs := l.StreamEntries(context.Background())

	var costs []float64
	for e := range entries {
		if e.TotalCost != nil {
			costs = append(costs, *e.TotalCost)
		}
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(costs) != 1 || costs[0] != 0.05 {
		t.Fatalf("expected camelCase costUSD to win, got %v", costs)
	}
}

func TestStreamEntriesModifiedSinceSkipsOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := writeJSONL(t, dir, "old.jsonl", []map[string]any{
		assistantLine("s-old", "m-old", "claude-3-opus-20240229", 10),
	})
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	writeJSONL(t, dir, "new.jsonl", []map[string]any{
		assistantLine("s-new", "m-new", "claude-3-opus-20240229", 10),
	})

	l := New(zerolog.Nop(), dir, WithModifiedSince(time.Now().Add(-time.Hour)))
	entries, errs := l.StreamEntries(context.Background())

	var sessions []string
	for e := range entries {
		sessions = append(sessions, e.SessionID)
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 1 || sessions[0] != "s-new" {
		t.Fatalf("expected only the recent file's event, got %v", sessions)
	}
}

func TestStreamEntriesSynthesizesSessionID(t *testing.T) {
	dir := t.TempDir()
	line := assistantLine("", "m1", "claude-3-opus-20240229", 10)
	delete(line, "sessionId")
	writeJSONL(t, dir, "a.jsonl", []map[string]any{line})

	l := New(zerolog.Nop(), dir)
	entries, errs := l.StreamEntries(context.Background())

	var ids []string
	for e := range entries {
		ids = append(ids, e.SessionID)
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || !strings.HasPrefix(ids[0], "generated-") {
		t.Fatalf("expected a synthesized generated-{secs}-{model} session ID, got %v", ids)
	}
}

func TestStreamEntriesMemoryOptimizationsAreTransparent(t *testing.T) {
	dir := t.TempDir()
	writeJSONL(t, dir, "a.jsonl", []map[string]any{
		assistantLine("s1", "m1", "claude-3-opus-20240229", 100),
		assistantLine("s1", "m2", "claude-3-opus-20240229", 50),
	})

	plain := New(zerolog.Nop(), dir)
	optimized := New(zerolog.Nop(), dir, WithInterning(), WithBufferPooling())

	collect := func(l *Loader) []string {
		entries, errs := l.StreamEntries(context.Background())
		var got []string
		for e := range entries {
			got = append(got, e.SessionID+"/"+e.Model)
		}
		if err := <-errs; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sort.Strings(got)
		return got
	}

	a, b := collect(plain), collect(optimized)
	if len(a) != len(b) {
		t.Fatalf("optimized loader changed event count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("optimized loader changed events: %v vs %v", a, b)
		}
	}
}
