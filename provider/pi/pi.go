// Package pi discovers and streams Pi agent session JSONL files laid
// out as sessions/{project}/{session_id}.jsonl.
package pi

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

// Loader walks PI_AGENT_DIR/sessions (or ~/.pi/agent/sessions) two
// levels deep, treating each immediate subdirectory as a project.
type Loader struct {
	sessionsDir string
	log         zerolog.Logger
}

// New resolves the Pi sessions directory, honoring PI_AGENT_DIR.
func New(log zerolog.Logger) *Loader {
	base := os.Getenv("PI_AGENT_DIR")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".pi", "agent")
	}
	return &Loader{sessionsDir: filepath.Join(base, "sessions"), log: log}
}

func (l *Loader) Name() string { return "pi" }

func (l *Loader) StreamEntries(ctx context.Context) (<-chan domain.UsageEntry, <-chan error) {
	out := make(chan domain.UsageEntry)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		if _, err := os.Stat(l.sessionsDir); err != nil {
			l.log.Debug().Str("dir", l.sessionsDir).Msg("pi: sessions directory not found")
			return
		}

		projectDirs, err := os.ReadDir(l.sessionsDir)
		if err != nil {
			errs <- err
			return
		}

		for _, pd := range projectDirs {
			if !pd.IsDir() {
				continue
			}
			project := pd.Name()
			projectPath := filepath.Join(l.sessionsDir, project)

			sessionFiles, err := os.ReadDir(projectPath)
			if err != nil {
				l.log.Warn().Err(err).Str("dir", projectPath).Msg("pi: failed to list project directory, skipping")
				continue
			}

			for _, sf := range sessionFiles {
				if sf.IsDir() || filepath.Ext(sf.Name()) != ".jsonl" {
					continue
				}
				select {
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				default:
				}

				sessionID := strings.TrimSuffix(sf.Name(), ".jsonl")
				path := filepath.Join(projectPath, sf.Name())
				if err := l.parseSessionFile(ctx, path, sessionID, project, out); err != nil {
					l.log.Warn().Err(err).Str("session", sessionID).Msg("pi: failed to parse session, skipping")
				}
			}
		}
	}()

	return out, errs
}

type rawEntry struct {
	Timestamp string      `json:"timestamp"`
	Message   *rawMessage `json:"message"`
}

type rawMessage struct {
	Role  string    `json:"role"`
	Model string    `json:"model"`
	Usage *rawUsage `json:"usage"`
}

type rawUsage struct {
	Input      int64    `json:"input"`
	Output     int64    `json:"output"`
	CacheRead  int64    `json:"cacheRead"`
	CacheWrite int64    `json:"cacheWrite"`
	Cost       *rawCost `json:"cost"`
}

type rawCost struct {
	Total *float64 `json:"total"`
}

func (l *Loader) parseSessionFile(ctx context.Context, path, sessionID, project string, out chan<- domain.UsageEntry) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw rawEntry
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			l.log.Warn().Err(err).Str("session", sessionID).Msg("pi: skipping unparsable line")
			continue
		}

		if raw.Message == nil || raw.Message.Role != "assistant" || raw.Message.Usage == nil {
			continue
		}
		usage := raw.Message.Usage
		if usage.Input == 0 && usage.Output == 0 {
			continue
		}

		ts, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			l.log.Warn().Str("session", sessionID).Str("timestamp", raw.Timestamp).Msg("pi: invalid timestamp, dropping record")
			continue
		}

		model := "[pi] unknown"
		if raw.Message.Model != "" {
			model = "[pi] " + raw.Message.Model
		}

		var totalCost *float64
		if usage.Cost != nil {
			totalCost = usage.Cost.Total
		}

		entry := domain.UsageEntry{
			SessionID: sessionID,
			Timestamp: ts,
			Model:     model,
			Tokens: domain.TokenCounts{
				InputTokens:         usage.Input,
				OutputTokens:        usage.Output,
				CacheCreationTokens: usage.CacheWrite,
				CacheReadTokens:     usage.CacheRead,
			},
			TotalCost: totalCost,
			Project:   project,
		}

		select {
		case out <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return scanner.Err()
}
