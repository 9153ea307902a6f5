// Package amp discovers and streams Amp's thread JSON files, joining
// each usage-ledger event with the matching message's cache token
// breakdown.
package amp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccstat-go/ccstat/domain"
	"github.com/rs/zerolog"
)

// Loader reads every "T-"-prefixed thread file directly under the
// threads subdirectory of AMP_DATA_DIR (or of the platform data
// directory's amp folder).
type Loader struct {
	threadsDir string
	log        zerolog.Logger
}

// New resolves the Amp threads directory, honoring AMP_DATA_DIR.
func New(log zerolog.Logger, dataDir string) *Loader {
	base := os.Getenv("AMP_DATA_DIR")
	if base == "" {
		base = dataDir
	}
	if base == "" {
		base = filepath.Join(xdgDataHome(), "amp")
	}
	return &Loader{threadsDir: filepath.Join(base, "threads"), log: log}
}

func xdgDataHome() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

func (l *Loader) Name() string { return "amp" }

func (l *Loader) StreamEntries(ctx context.Context) (<-chan domain.UsageEntry, <-chan error) {
	out := make(chan domain.UsageEntry)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		if _, err := os.Stat(l.threadsDir); err != nil {
			l.log.Debug().Str("dir", l.threadsDir).Msg("amp: threads directory not found")
			return
		}

		des, err := os.ReadDir(l.threadsDir)
		if err != nil {
			errs <- err
			return
		}

		for _, de := range des {
			name := de.Name()
			if de.IsDir() || filepath.Ext(name) != ".json" || !strings.HasPrefix(strings.TrimSuffix(name, ".json"), "T-") {
				continue
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			path := filepath.Join(l.threadsDir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				l.log.Warn().Err(err).Str("file", path).Msg("amp: failed to read thread, skipping")
				continue
			}

			var thread rawThread
			if err := json.Unmarshal(data, &thread); err != nil {
				l.log.Warn().Err(err).Str("file", path).Msg("amp: failed to parse thread, skipping")
				continue
			}

			for _, entry := range extractEntries(l.log, thread) {
				select {
				case out <- entry:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errs
}

type rawThread struct {
	ID          string       `json:"id"`
	Messages    []rawMessage `json:"messages"`
	UsageLedger *usageLedger `json:"usageLedger"`
}

type rawMessage struct {
	ID    string        `json:"id"`
	Usage *messageUsage `json:"usage"`
}

type messageUsage struct {
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

type usageLedger struct {
	Events []ledgerEvent `json:"events"`
}

type ledgerEvent struct {
	MessageID string   `json:"messageId"`
	Model     string   `json:"model"`
	Input     int64    `json:"inputTokens"`
	Output    int64    `json:"outputTokens"`
	Credits   *float64 `json:"credits"`
	CreatedAt string   `json:"createdAt"`
}

// extractEntries joins each ledger event's token counts with the cache
// breakdown of the message sharing its messageId, when one exists.
func extractEntries(log zerolog.Logger, thread rawThread) []domain.UsageEntry {
	if thread.UsageLedger == nil {
		return nil
	}

	cacheByMessage := make(map[string]messageUsage, len(thread.Messages))
	for _, m := range thread.Messages {
		if m.Usage != nil {
			cacheByMessage[m.ID] = *m.Usage
		}
	}

	var entries []domain.UsageEntry
	for _, ev := range thread.UsageLedger.Events {
		if ev.Input == 0 && ev.Output == 0 {
			continue
		}

		ts, err := time.Parse(time.RFC3339, ev.CreatedAt)
		if err != nil {
			log.Warn().Str("thread", thread.ID).Str("createdAt", ev.CreatedAt).Msg("amp: invalid timestamp, dropping event")
			continue
		}

		model := ev.Model
		if model == "" {
			model = "unknown"
		}

		var cacheCreate, cacheRead int64
		if u, ok := cacheByMessage[ev.MessageID]; ok {
			cacheCreate = u.CacheCreationInputTokens
			cacheRead = u.CacheReadInputTokens
		}

		entries = append(entries, domain.UsageEntry{
			SessionID: thread.ID,
			Timestamp: ts,
			Model:     model,
			Tokens: domain.TokenCounts{
				InputTokens:         ev.Input,
				OutputTokens:        ev.Output,
				CacheCreationTokens: cacheCreate,
				CacheReadTokens:     cacheRead,
			},
			TotalCost: ev.Credits,
		})
	}
	return entries
}
