// Package pricing resolves per-model token pricing, backed by a
// lazily-loaded cache that prefers a network catalog and falls back to
// an embedded snapshot.
package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ccstat-go/ccstat/ccerr"
	"github.com/ccstat-go/ccstat/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const catalogURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// Resolver resolves pricing by model name, with a read-write-locked
// in-memory cache warmed on first use.
type Resolver struct {
	client    *http.Client
	log       zerolog.Logger
	offline   bool
	noRefresh bool

	loadMu sync.Mutex // serializes catalog loads

	mu       sync.RWMutex
	catalog  map[string]domain.Pricing
	loadedAt time.Time
	ttl      time.Duration

	fetchFailures prometheus.Counter
}

// Options configures a Resolver.
type Options struct {
	Offline bool
	// DisableRefresh keeps the first loaded catalog for the lifetime of
	// the process, ignoring the TTL. Explicit Refresh still reloads.
	DisableRefresh bool
	TTL            time.Duration
	Metrics        prometheus.Registerer
}

// New constructs a Resolver. The catalog is not fetched until the first
// GetModelPricing/Refresh call.
func New(log zerolog.Logger, opts Options) *Resolver {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	r := &Resolver{
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log,
		offline:   opts.Offline,
		noRefresh: opts.DisableRefresh,
		ttl:       opts.TTL,
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccstat_pricing_fetch_failures_total",
			Help: "Number of failed attempts to fetch the remote pricing catalog.",
		}),
	}
	if opts.Metrics != nil {
		opts.Metrics.MustRegister(r.fetchFailures)
	}
	return r
}

// GetModelPricing resolves pricing for model, loading the catalog on
// first use or after the TTL expires. ok is false only when no variant
// of model matches any catalog key.
func (r *Resolver) GetModelPricing(ctx context.Context, model string) (domain.Pricing, bool) {
	r.ensureLoaded(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup(r.catalog, model)
}

// Refresh forces an immediate reload of the catalog, ignoring any
// outstanding TTL.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	return r.load(ctx)
}

func (r *Resolver) ensureLoaded(ctx context.Context) {
	if !r.stale() {
		return
	}
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	if r.stale() {
		_ = r.load(ctx)
	}
}

func (r *Resolver) stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.catalog == nil {
		return true
	}
	return !r.noRefresh && time.Since(r.loadedAt) > r.ttl
}

func (r *Resolver) load(ctx context.Context) error {
	var catalog map[string]domain.Pricing
	var err error

	if !r.offline {
		catalog, err = r.fetchRemote(ctx)
		if err != nil {
			r.fetchFailures.Inc()
			r.log.Warn().Err(err).Msg("pricing catalog fetch failed, using embedded fallback")
			catalog = embeddedCatalog()
		}
	} else {
		catalog = embeddedCatalog()
	}

	r.mu.Lock()
	r.catalog = catalog
	r.loadedAt = time.Now()
	r.mu.Unlock()
	return nil
}

func (r *Resolver) fetchRemote(ctx context.Context) (map[string]domain.Pricing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, catalogURL, nil)
	if err != nil {
		return nil, ccerr.Wrap(ccerr.KindNetwork, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, ccerr.Wrap(ccerr.KindNetwork, err)
	}
	defer resp.Body.Close()

	var raw map[string]rawPricingEntry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, ccerr.Wrap(ccerr.KindJSON, err)
	}

	out := make(map[string]domain.Pricing, len(raw))
	for model, entry := range raw {
		out[model] = entry.toDomain()
	}
	return out, nil
}

type rawPricingEntry struct {
	InputCostPerToken           *float64 `json:"input_cost_per_token"`
	OutputCostPerToken          *float64 `json:"output_cost_per_token"`
	CacheCreationInputTokenCost *float64 `json:"cache_creation_input_token_cost"`
	CacheReadInputTokenCost     *float64 `json:"cache_read_input_token_cost"`
}

func (e rawPricingEntry) toDomain() domain.Pricing {
	return domain.Pricing{
		InputCostPerToken:           e.InputCostPerToken,
		OutputCostPerToken:          e.OutputCostPerToken,
		CacheCreationInputTokenCost: e.CacheCreationInputTokenCost,
		CacheReadInputTokenCost:     e.CacheReadInputTokenCost,
	}
}

// lookup applies the exact-match then variant-list then bidirectional
// substring fallback, iterating catalog keys in sorted order so that
// the substring fallback is deterministic.
func lookup(catalog map[string]domain.Pricing, model string) (domain.Pricing, bool) {
	if catalog == nil {
		return domain.Pricing{}, false
	}
	if p, ok := catalog[model]; ok {
		return p, true
	}

	for _, variant := range variants(model) {
		if p, ok := catalog[variant]; ok {
			return p, true
		}
	}

	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lowerModel := strings.ToLower(model)
	for _, k := range keys {
		lowerKey := strings.ToLower(k)
		if strings.Contains(lowerKey, lowerModel) || strings.Contains(lowerModel, lowerKey) {
			return catalog[k], true
		}
	}
	return domain.Pricing{}, false
}

func variants(model string) []string {
	out := []string{"anthropic/" + model, "claude-" + model}
	if strings.Contains(model, "claude-3-") {
		out = append(out, strings.ReplaceAll(model, "claude-3-", "claude-3."))
	}
	if strings.Contains(model, "claude-3.") {
		out = append(out, strings.ReplaceAll(model, "claude-3.", "claude-3-"))
	}
	return out
}
