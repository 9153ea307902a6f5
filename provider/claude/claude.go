// Package claude discovers and streams Claude Code's JSONL usage logs.
package claude

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ccstat-go/ccstat/dedup"
	"github.com/ccstat-go/ccstat/domain"
	"github.com/ccstat-go/ccstat/internpool"
	"github.com/ccstat-go/ccstat/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Loader discovers Claude Code's ~/.claude (and platform-specific)
// directories and streams normalized events from their .jsonl files
// using a bounded worker pool, one goroutine per file.
type Loader struct {
	paths         []string
	log           zerolog.Logger
	interning     bool
	models        *internpool.Pool
	sessions      *internpool.Pool
	workerCount   int
	modifiedSince time.Time
	metrics       *metrics.Collector
	buffers       *internpool.BufferPool
}

// Process-global intern pools for model names and session IDs, shared by
// every Loader that enables WithInterning.
var (
	modelPool   = internpool.NewPool()
	sessionPool = internpool.NewPool()
)

// Option configures a Loader.
type Option func(*Loader)

// WithInterning enables string interning of model names and session IDs.
func WithInterning() Option {
	return func(l *Loader) { l.interning = true }
}

// WithBufferPooling reuses per-file scan buffers across workers instead
// of allocating a fresh one per file.
func WithBufferPooling() Option {
	return func(l *Loader) { l.buffers = internpool.NewBufferPool(64 * 1024) }
}

// WithWorkerCount overrides the default per-file worker pool size.
func WithWorkerCount(n int) Option {
	return func(l *Loader) { l.workerCount = n }
}

// WithModifiedSince skips files whose modification time is before t.
func WithModifiedSince(t time.Time) Option {
	return func(l *Loader) { l.modifiedSince = t }
}

// WithMetrics counts dropped records and duplicates against m.
func WithMetrics(m *metrics.Collector) Option {
	return func(l *Loader) { l.metrics = m }
}

// New discovers Claude data directories (honoring CLAUDE_DATA_PATH) and
// constructs a Loader. An empty result is not an error; StreamEntries
// simply yields nothing.
func New(log zerolog.Logger, overridePath string, opts ...Option) *Loader {
	l := &Loader{
		log:         log,
		models:      modelPool,
		sessions:    sessionPool,
		workerCount: runtime.NumCPU(),
	}
	for _, o := range opts {
		o(l)
	}
	l.paths = discoverPaths(overridePath)
	return l
}

func (l *Loader) Name() string { return "claude" }

func discoverPaths(overridePath string) []string {
	var paths []string
	home, _ := os.UserHomeDir()

	if overridePath != "" && dirExists(overridePath) {
		paths = append(paths, overridePath)
	}

	if home != "" {
		if p := filepath.Join(home, ".claude"); dirExists(p) {
			paths = append(paths, p)
		}
	}

	switch runtime.GOOS {
	case "darwin":
		if home != "" {
			if p := filepath.Join(home, "Library", "Application Support", "Claude"); dirExists(p) {
				paths = append(paths, p)
			}
		}
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			if p := filepath.Join(appData, "Claude"); dirExists(p) {
				paths = append(paths, p)
			}
		}
	default: // linux and friends
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			if p := filepath.Join(xdg, "Claude"); dirExists(p) {
				paths = append(paths, p)
			}
		} else if home != "" {
			if p := filepath.Join(home, ".config", "Claude"); dirExists(p) {
				paths = append(paths, p)
			}
		}
	}

	return paths
}

func dirExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

// findJSONLFiles walks every discovered path for .jsonl files, applying
// an optional modification-time cutoff (zero value disables it).
func (l *Loader) findJSONLFiles(since time.Time) []string {
	var files []string
	for _, root := range l.paths {
		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				l.log.Warn().Err(err).Str("path", path).Msg("claude: walk error, skipping")
				return nil
			}
			if info.IsDir() {
				return nil
			}
			if filepath.Ext(path) != ".jsonl" {
				return nil
			}
			if !since.IsZero() && info.ModTime().Before(since) {
				return nil
			}
			files = append(files, path)
			return nil
		})
	}
	return files
}

// StreamEntries fans one goroutine per discovered file out over a
// bounded worker pool, funneling parsed events into a single channel
// guarded by a shared dedup set (matching the semantics of reading
// every file sequentially, just concurrently).
func (l *Loader) StreamEntries(ctx context.Context) (<-chan domain.UsageEntry, <-chan error) {
	out := make(chan domain.UsageEntry)
	errs := make(chan error, 1)

	files := l.findJSONLFiles(l.modifiedSince)
	seen := dedup.NewSetWithMetrics(l.metrics)

	go func() {
		defer close(out)
		defer close(errs)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.workerCount)

		for _, path := range files {
			path := path
			g.Go(func() error {
				return l.processFile(gctx, path, seen, out)
			})
		}
		if err := g.Wait(); err != nil {
			errs <- err
		}
	}()

	return out, errs
}

func (l *Loader) processFile(ctx context.Context, path string, seen *dedup.Set, out chan<- domain.UsageEntry) error {
	f, err := os.Open(path)
	if err != nil {
		l.log.Warn().Err(err).Str("file", path).Msg("claude: unable to open file, skipping")
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if l.buffers != nil {
		buf := l.buffers.Get()
		defer l.buffers.Put(buf)
		scanner.Buffer(buf, 16*1024*1024)
	} else {
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw rawEntry
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			l.metrics.EventDropped()
			l.log.Warn().Err(err).Str("file", path).Msg("claude: skipping unparsable line")
			continue
		}

		if key := dedup.Key(raw.Message.ID, raw.RequestID); !seen.Admit(key) {
			continue
		}

		entry, ok := l.convert(raw)
		if !ok {
			continue
		}

		select {
		case out <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		l.log.Warn().Err(err).Str("file", path).Msg("claude: read error, skipping rest of file")
	}
	return nil
}

type rawEntry struct {
	SessionID         string     `json:"sessionId"`
	Timestamp         string     `json:"timestamp"`
	Type              *string    `json:"type"`
	UUID              string     `json:"uuid"`
	Cwd               string     `json:"cwd"`
	RequestID         string     `json:"requestId"`
	IsAPIErrorMessage bool       `json:"isApiErrorMessage"`
	CostUSD           *float64   `json:"cost_usd"`
	CostUSDCamel      *float64   `json:"costUSD"`
	Message           rawMessage `json:"message"`
}

type rawMessage struct {
	Model string   `json:"model"`
	ID    string   `json:"id"`
	Usage rawUsage `json:"usage"`
}

type rawUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

func (l *Loader) convert(raw rawEntry) (domain.UsageEntry, bool) {
	if raw.IsAPIErrorMessage {
		return domain.UsageEntry{}, false
	}
	if raw.Type != nil && *raw.Type != "assistant" {
		return domain.UsageEntry{}, false
	}
	if raw.Message.Model == "<synthetic>" {
		return domain.UsageEntry{}, false
	}

	ts, err := time.Parse(time.RFC3339, raw.Timestamp)
	if err != nil {
		l.metrics.EventDropped()
		l.log.Warn().Str("timestamp", raw.Timestamp).Msg("claude: invalid timestamp, dropping record")
		return domain.UsageEntry{}, false
	}

	if raw.UUID != "" {
		if _, err := uuid.Parse(raw.UUID); err != nil {
			l.log.Debug().Str("uuid", raw.UUID).Msg("claude: non-UUID instance identifier")
		}
	}

	sessionID := raw.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("generated-%d-%s", ts.Unix(), raw.Message.Model)
	}

	model := raw.Message.Model
	if l.interning {
		model = l.models.Intern(model)
		sessionID = l.sessions.Intern(sessionID)
	}

	var project string
	if raw.Cwd != "" {
		project = filepath.Base(raw.Cwd)
	}

	var totalCost *float64
	if raw.CostUSDCamel != nil {
		totalCost = raw.CostUSDCamel
	} else if raw.CostUSD != nil {
		totalCost = raw.CostUSD
	}

	return domain.UsageEntry{
		SessionID: sessionID,
		Timestamp: ts,
		Model:     model,
		Tokens: domain.TokenCounts{
			InputTokens:         raw.Message.Usage.InputTokens,
			OutputTokens:        raw.Message.Usage.OutputTokens,
			CacheCreationTokens: raw.Message.Usage.CacheCreationInputTokens,
			CacheReadTokens:     raw.Message.Usage.CacheReadInputTokens,
		},
		TotalCost:  totalCost,
		Project:    project,
		InstanceID: raw.UUID,
	}, true
}
