package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ccstat-go/ccstat/aggregate"
	"github.com/ccstat-go/ccstat/cost"
	"github.com/ccstat-go/ccstat/domain"
	"github.com/ccstat-go/ccstat/filter"
	"github.com/ccstat-go/ccstat/pricing"
	"github.com/ccstat-go/ccstat/provider"
	"github.com/ccstat-go/ccstat/provider/claude"
	"github.com/ccstat-go/ccstat/provider/codex"
	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

const claudeLine = `{"sessionId":"sess-1","timestamp":"2024-06-01T10:00:00Z","type":"assistant","cwd":"/home/dev/alpha","requestId":"req-1","costUSD":0.05,"message":{"model":"claude-3-opus-20240229","id":"msg-1","usage":{"input_tokens":1000,"output_tokens":500}}}`

const codexLines = `{"type":"turn_context","model_id":"gpt-5-codex"}
{"type":"event_msg","timestamp":"2024-06-01T12:00:00Z","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":100,"output_tokens":50}}}}
{"type":"event_msg","timestamp":"2024-06-01T12:05:00Z","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":300,"output_tokens":150}}}}
`

// runPipeline assembles the same stages main wires together, against
// fixture directories, and returns the encoded JSON report.
func runPipeline(t *testing.T, claudeDir, codexHome string) []byte {
	t.Helper()
	log := zerolog.Nop()

	// Keep discovery away from any real user directories.
	t.Setenv("HOME", filepath.Join(t.TempDir(), "home"))
	t.Setenv("XDG_CONFIG_HOME", "")

	resolver := pricing.New(log, pricing.Options{Offline: true})
	calc := cost.New(resolver, domain.CostModeAuto, log)

	t.Setenv("CODEX_HOME", codexHome)
	registry := provider.NewRegistry(
		claude.New(log, claudeDir),
		codex.New(log),
	)

	merged, wait := registry.StreamAll(context.Background())

	f := filter.New(time.UTC)
	agg := aggregate.New(calc, time.UTC)
	result, err := agg.Fold(context.Background(), f.Stream(merged))
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if err := wait(); err != nil {
		t.Fatalf("providers: %v", err)
	}

	report := struct {
		Daily    []domain.DailySummary   `json:"daily"`
		Sessions []domain.SessionSummary `json:"sessions"`
		Monthly  []domain.MonthlySummary `json:"monthly"`
		Totals   domain.Totals           `json:"totals"`
	}{result.Daily, result.Sessions, result.Monthly, result.Totals}

	out, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return out
}

func TestPipelineEndToEnd(t *testing.T) {
	claudeDir := t.TempDir()
	writeFile(t, filepath.Join(claudeDir, "projects", "alpha", "log.jsonl"), claudeLine+"\n")

	codexHome := t.TempDir()
	writeFile(t, filepath.Join(codexHome, "sessions", "work.jsonl"), codexLines)

	out := runPipeline(t, claudeDir, codexHome)

	var report struct {
		Daily    []domain.DailySummary   `json:"daily"`
		Sessions []domain.SessionSummary `json:"sessions"`
		Totals   domain.Totals           `json:"totals"`
	}
	if err := json.Unmarshal(out, &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(report.Daily) != 1 {
		t.Fatalf("expected 1 daily row, got %d", len(report.Daily))
	}
	// claude 1000+500 plus codex deltas (100+50)+(200+100)
	if report.Totals.Tokens.InputTokens != 1300 || report.Totals.Tokens.OutputTokens != 650 {
		t.Fatalf("unexpected totals: %+v", report.Totals.Tokens)
	}
	// The precomputed claude cost is trusted in auto mode; the codex
	// events price against the embedded gpt-5 rates.
	wantCodex := 300*(5.0/1_000_000) + 150*(15.0/1_000_000)
	if diff := report.Totals.TotalCost - (0.05 + wantCodex); diff < -1e-9 || diff > 1e-9 {
		t.Fatalf("unexpected total cost: %v", report.Totals.TotalCost)
	}
	// sess-1 (claude) and work (codex filename stem)
	if len(report.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(report.Sessions))
	}
}

func TestPipelineIsDeterministic(t *testing.T) {
	claudeDir := t.TempDir()
	writeFile(t, filepath.Join(claudeDir, "a", "log.jsonl"), claudeLine+"\n")
	codexHome := t.TempDir()
	writeFile(t, filepath.Join(codexHome, "sessions", "work.jsonl"), codexLines)

	first := runPipeline(t, claudeDir, codexHome)
	second := runPipeline(t, claudeDir, codexHome)
	if string(first) != string(second) {
		t.Fatalf("two runs over the same input produced different reports:\n%s\n%s", first, second)
	}
}

func TestPipelineEmptySourcesYieldEmptyReport(t *testing.T) {
	out := runPipeline(t, filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "missing"))

	var report struct {
		Daily  []domain.DailySummary `json:"daily"`
		Totals domain.Totals         `json:"totals"`
	}
	if err := json.Unmarshal(out, &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(report.Daily) != 0 || report.Totals.Tokens.Total() != 0 {
		t.Fatalf("expected an empty report, got %s", out)
	}
}
