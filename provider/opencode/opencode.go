// Package opencode discovers and streams OpenCode's per-message JSON
// files from its local storage directory.
package opencode

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ccstat-go/ccstat/dedup"
	"github.com/ccstat-go/ccstat/domain"
	"github.com/rs/zerolog"
)

// Loader reads every JSON file directly under the storage/message
// subdirectory of OPENCODE_DATA_DIR (or of the platform data directory's
// opencode folder), each holding one chat message and its token usage.
type Loader struct {
	messageDir string
	log        zerolog.Logger
}

// New resolves the OpenCode message directory, honoring OPENCODE_DATA_DIR.
func New(log zerolog.Logger, dataDir string) *Loader {
	base := os.Getenv("OPENCODE_DATA_DIR")
	if base == "" {
		base = dataDir
	}
	if base == "" {
		base = filepath.Join(xdgDataHome(), "opencode")
	}
	return &Loader{messageDir: filepath.Join(base, "storage", "message"), log: log}
}

func xdgDataHome() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

func (l *Loader) Name() string { return "opencode" }

func (l *Loader) StreamEntries(ctx context.Context) (<-chan domain.UsageEntry, <-chan error) {
	out := make(chan domain.UsageEntry)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		if _, err := os.Stat(l.messageDir); err != nil {
			l.log.Debug().Str("dir", l.messageDir).Msg("opencode: message directory not found")
			return
		}

		des, err := os.ReadDir(l.messageDir)
		if err != nil {
			errs <- err
			return
		}

		seen := dedup.NewSet()

		for _, de := range des {
			if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
				continue
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			path := filepath.Join(l.messageDir, de.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				l.log.Warn().Err(err).Str("file", path).Msg("opencode: failed to read message, skipping")
				continue
			}

			var msg rawMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				l.log.Warn().Err(err).Str("file", path).Msg("opencode: failed to parse message, skipping")
				continue
			}

			if !seen.Admit(dedup.Key(msg.ID, "")) {
				continue
			}

			entry, ok := convert(msg)
			if !ok {
				continue
			}

			select {
			case out <- entry:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return out, errs
}

type rawMessage struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionID"`
	ModelID   string     `json:"modelID"`
	Time      *rawTime   `json:"time"`
	Tokens    *rawTokens `json:"tokens"`
	Cost      *float64   `json:"cost"`
}

type rawTime struct {
	Created *float64 `json:"created"`
}

type rawTokens struct {
	Input  int64        `json:"input"`
	Output int64        `json:"output"`
	Cache  *rawCacheUse `json:"cache"`
}

type rawCacheUse struct {
	Read  int64 `json:"read"`
	Write int64 `json:"write"`
}

func convert(msg rawMessage) (domain.UsageEntry, bool) {
	if msg.Tokens == nil {
		return domain.UsageEntry{}, false
	}
	if msg.Tokens.Input == 0 && msg.Tokens.Output == 0 {
		return domain.UsageEntry{}, false
	}

	ts := time.Now().UTC()
	if msg.Time != nil && msg.Time.Created != nil {
		secs, frac := math.Modf(*msg.Time.Created)
		ts = time.Unix(int64(secs), int64(frac*1e9)).UTC()
	}

	var cacheRead, cacheWrite int64
	if msg.Tokens.Cache != nil {
		cacheRead = msg.Tokens.Cache.Read
		cacheWrite = msg.Tokens.Cache.Write
	}

	return domain.UsageEntry{
		SessionID: msg.SessionID,
		Timestamp: ts,
		Model:     normalizeModel(msg.ModelID),
		Tokens: domain.TokenCounts{
			InputTokens:         msg.Tokens.Input,
			OutputTokens:        msg.Tokens.Output,
			CacheCreationTokens: cacheWrite,
			CacheReadTokens:     cacheRead,
		},
		TotalCost: msg.Cost,
	}, true
}

func normalizeModel(model string) string {
	if model == "gemini-3-pro-high" {
		return "gemini-3-pro-preview"
	}
	return model
}
