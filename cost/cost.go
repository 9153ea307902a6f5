// Package cost implements the three-mode cost calculator: prefer a
// precomputed cost, recompute from tokens and pricing, or fail,
// depending on the configured domain.CostMode.
package cost

import (
	"context"
	"sync"

	"github.com/ccstat-go/ccstat/ccerr"
	"github.com/ccstat-go/ccstat/domain"
	"github.com/ccstat-go/ccstat/metrics"
	"github.com/rs/zerolog"
)

// PricingSource resolves pricing for a model name. pricing.Resolver
// satisfies this.
type PricingSource interface {
	GetModelPricing(ctx context.Context, model string) (domain.Pricing, bool)
}

// Calculator computes the dollar cost of a normalized event under a
// configured mode, warning at most once per unknown model in Auto mode.
type Calculator struct {
	pricing PricingSource
	mode    domain.CostMode
	log     zerolog.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	warned map[string]bool
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithMetrics counts unknown-model warnings against m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Calculator) { c.metrics = m }
}

// New constructs a Calculator bound to the given pricing source and mode.
func New(pricingSource PricingSource, mode domain.CostMode, log zerolog.Logger, opts ...Option) *Calculator {
	c := &Calculator{
		pricing: pricingSource,
		mode:    mode,
		log:     log,
		warned:  make(map[string]bool),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Calculate returns the dollar cost for e under the calculator's mode.
func (c *Calculator) Calculate(ctx context.Context, e domain.UsageEntry) (float64, error) {
	switch c.mode {
	case domain.CostModeDisplay:
		if e.TotalCost == nil {
			return 0, ccerr.InvalidArgument("display mode requires a precomputed cost for model " + e.Model)
		}
		return *e.TotalCost, nil

	case domain.CostModeCalculate:
		p, ok := c.pricing.GetModelPricing(ctx, e.Model)
		if !ok {
			return 0, ccerr.UnknownModel(e.Model)
		}
		return p.Cost(e.Tokens), nil

	default: // domain.CostModeAuto
		if e.TotalCost != nil {
			return *e.TotalCost, nil
		}
		p, ok := c.pricing.GetModelPricing(ctx, e.Model)
		if ok {
			return p.Cost(e.Tokens), nil
		}
		c.warnOnce(e.Model)
		return 0, nil
	}
}

func (c *Calculator) warnOnce(model string) {
	c.mu.Lock()
	newlyWarned := !c.warned[model]
	c.warned[model] = true
	c.mu.Unlock()

	if newlyWarned {
		c.metrics.UnknownModel()
		c.log.Warn().Str("model", model).Msg("unknown model, cost recorded as zero")
	}
}
