// Package codex discovers and streams OpenAI Codex's JSONL session logs,
// converting their cumulative token counters into per-event deltas.
package codex

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccstat-go/ccstat/domain"
	"github.com/rs/zerolog"
)

// fallbackModel is used when a session file's token_count events appear
// before any turn_context has announced a model.
const fallbackModel = "gpt-5"

// Loader discovers CODEX_HOME/sessions (or ~/.codex/sessions) and streams
// normalized events, one file at a time.
type Loader struct {
	sessionDir string
	log        zerolog.Logger
}

// New resolves the Codex session directory, honoring CODEX_HOME.
func New(log zerolog.Logger) *Loader {
	base := os.Getenv("CODEX_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".codex")
	}
	return &Loader{sessionDir: filepath.Join(base, "sessions"), log: log}
}

func (l *Loader) Name() string { return "codex" }

func (l *Loader) StreamEntries(ctx context.Context) (<-chan domain.UsageEntry, <-chan error) {
	out := make(chan domain.UsageEntry)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		if _, err := os.Stat(l.sessionDir); err != nil {
			l.log.Debug().Str("dir", l.sessionDir).Msg("codex: sessions directory not found")
			return
		}

		entries, err := os.ReadDir(l.sessionDir)
		if err != nil {
			errs <- err
			return
		}

		for _, de := range entries {
			if de.IsDir() || filepath.Ext(de.Name()) != ".jsonl" {
				continue
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			path := filepath.Join(l.sessionDir, de.Name())
			sessionID := strings.TrimSuffix(de.Name(), ".jsonl")
			if err := l.parseSessionFile(ctx, path, sessionID, out); err != nil {
				l.log.Warn().Err(err).Str("session", sessionID).Msg("codex: failed to parse session, skipping")
			}
		}
	}()

	return out, errs
}

type codexEvent struct {
	Type      string        `json:"type"`
	Timestamp string        `json:"timestamp"`
	ModelID   string        `json:"model_id"`
	Payload   *eventPayload `json:"payload"`
}

type eventPayload struct {
	Type string     `json:"type"`
	Info *tokenInfo `json:"info"`
}

type tokenInfo struct {
	TotalTokenUsage *cumulativeTokens `json:"total_token_usage"`
	LastTokenUsage  *cumulativeTokens `json:"last_token_usage"`
}

type cumulativeTokens struct {
	InputTokens        int64 `json:"input_tokens"`
	CachedInputTokens  int64 `json:"cached_input_tokens"`
	CacheReadTokensAlt int64 `json:"cache_read_input_tokens"`
	OutputTokens       int64 `json:"output_tokens"`
}

func (c *cumulativeTokens) cacheRead() int64 {
	if c.CachedInputTokens > 0 {
		return c.CachedInputTokens
	}
	return c.CacheReadTokensAlt
}

func (l *Loader) parseSessionFile(ctx context.Context, path, sessionID string, out chan<- domain.UsageEntry) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	currentModel := ""
	prevCumulative := make(map[string]*cumulativeTokens)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var ev codexEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			l.log.Warn().Err(err).Str("session", sessionID).Msg("codex: skipping unparsable line")
			continue
		}

		switch ev.Type {
		case "turn_context":
			if ev.ModelID != "" {
				currentModel = normalizeModel(ev.ModelID)
			}
		case "event_msg":
			if ev.Payload == nil || ev.Payload.Type != "token_count" || ev.Payload.Info == nil {
				continue
			}
			if ev.Timestamp == "" {
				continue
			}
			ts, err := time.Parse(time.RFC3339, ev.Timestamp)
			if err != nil {
				l.log.Warn().Str("session", sessionID).Str("timestamp", ev.Timestamp).Msg("codex: invalid timestamp")
				continue
			}

			model := currentModel
			if model == "" {
				model = fallbackModel
			}

			delta := computeDelta(ev.Payload.Info, prevCumulative[model])
			if total := ev.Payload.Info.TotalTokenUsage; total != nil {
				prevCumulative[model] = total
			}

			if delta.InputTokens == 0 && delta.OutputTokens == 0 {
				continue
			}

			entry := domain.UsageEntry{
				SessionID: sessionID,
				Timestamp: ts,
				Model:     model,
				Tokens:    delta,
			}

			select {
			case out <- entry:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return scanner.Err()
}

// computeDelta prefers last_token_usage (already a delta) and otherwise
// subtracts the previous cumulative snapshot from the current one.
func computeDelta(info *tokenInfo, prev *cumulativeTokens) domain.TokenCounts {
	if last := info.LastTokenUsage; last != nil {
		return domain.TokenCounts{
			InputTokens:     last.InputTokens,
			OutputTokens:    last.OutputTokens,
			CacheReadTokens: last.cacheRead(),
		}
	}

	total := info.TotalTokenUsage
	if total == nil {
		return domain.TokenCounts{}
	}

	var prevInput, prevOutput, prevCacheRead int64
	if prev != nil {
		prevInput, prevOutput, prevCacheRead = prev.InputTokens, prev.OutputTokens, prev.cacheRead()
	}

	return domain.TokenCounts{
		InputTokens:     saturatingSub(total.InputTokens, prevInput),
		OutputTokens:    saturatingSub(total.OutputTokens, prevOutput),
		CacheReadTokens: saturatingSub(total.cacheRead(), prevCacheRead),
	}
}

func saturatingSub(a, b int64) int64 {
	if a < b {
		return 0
	}
	return a - b
}

// normalizeModel aliases Codex's IDE-bundled model name to the public one.
func normalizeModel(model string) string {
	if model == "gpt-5-codex" {
		return "gpt-5"
	}
	return model
}
