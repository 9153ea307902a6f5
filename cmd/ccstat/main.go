// Command ccstat wires the configuration, pricing, provider, and
// aggregation layers together and emits a JSON usage report to stdout.
// Pretty-printing, the live TUI, and the statusline integration are
// separate frontends layered on top of this core.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ccstat-go/ccstat/aggregate"
	"github.com/ccstat-go/ccstat/config"
	"github.com/ccstat-go/ccstat/cost"
	"github.com/ccstat-go/ccstat/domain"
	"github.com/ccstat-go/ccstat/filter"
	"github.com/ccstat-go/ccstat/logger"
	"github.com/ccstat-go/ccstat/metrics"
	"github.com/ccstat-go/ccstat/pricing"
	"github.com/ccstat-go/ccstat/provider"
	"github.com/ccstat-go/ccstat/provider/amp"
	"github.com/ccstat-go/ccstat/provider/claude"
	"github.com/ccstat-go/ccstat/provider/codex"
	"github.com/ccstat-go/ccstat/provider/opencode"
	"github.com/ccstat-go/ccstat/provider/pi"
	"github.com/ccstat-go/ccstat/tzconfig"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("ccstat starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Configuration errors surface before any stream is consumed.
	loc, err := tzconfig.Resolve(cfg.UTC, cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve timezone")
	}

	costMode, ok := domain.ParseCostMode(cfg.CostMode)
	if !ok {
		log.Fatal().Str("mode", cfg.CostMode).Msg("invalid cost mode")
	}

	tokenLimit, err := cfg.ParseTokenLimit()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid token limit")
	}

	f := filter.New(loc)
	if cfg.SinceDate != "" {
		since, err := filter.ParseDate(cfg.SinceDate)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid since date")
		}
		f.WithSince(since)
	}
	if cfg.UntilDate != "" {
		until, err := filter.ParseDate(cfg.UntilDate)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid until date")
		}
		f.WithUntil(until)
	}
	if cfg.Project != "" {
		f.WithProject(cfg.Project)
	}

	collector := metrics.New(prometheus.DefaultRegisterer)

	resolver := pricing.New(log, pricing.Options{
		Offline:        cfg.OfflinePricing,
		DisableRefresh: cfg.PricingRefreshDisabled,
		Metrics:        prometheus.DefaultRegisterer,
	})
	calc := cost.New(resolver, costMode, log, cost.WithMetrics(collector))

	claudeOpts := []claude.Option{claude.WithInterning(), claude.WithBufferPooling(), claude.WithMetrics(collector)}
	if cfg.ClaudeRecentDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.ClaudeRecentDays)
		claudeOpts = append(claudeOpts, claude.WithModifiedSince(cutoff))
	}

	registry := provider.NewRegistry(
		claude.New(log, cfg.ClaudeDataPath, claudeOpts...),
		codex.New(log),
		opencode.New(log, cfg.OpenCodeDataDir),
		amp.New(log, cfg.AmpDataDir),
		pi.New(log),
	)
	log.Info().Int("providers", 5).Msg("provider registration complete")

	merged, wait := registry.StreamAll(ctx)

	aggOpts := []aggregate.Option{
		aggregate.WithMetrics(collector),
		aggregate.WithTokenLimit(tokenLimit),
	}
	if cfg.Verbose {
		aggOpts = append(aggOpts, aggregate.WithDetails())
	}
	agg := aggregate.New(calc, loc, aggOpts...)
	result, err := agg.Fold(ctx, f.Stream(merged))
	if err != nil {
		log.Fatal().Err(err).Msg("aggregation failed")
	}

	providerErr := wait()
	if providerErr != nil {
		log.Error().Err(providerErr).Msg("one or more providers failed")
	}

	report := struct {
		GeneratedAt   time.Time                     `json:"generated_at"`
		Daily         []domain.DailySummary         `json:"daily"`
		DailyInstance []domain.DailyInstanceSummary `json:"daily_by_instance"`
		Sessions      []domain.SessionSummary       `json:"sessions"`
		Monthly       []domain.MonthlySummary       `json:"monthly"`
		Blocks        []domain.BillingBlock         `json:"blocks"`
		Totals        domain.Totals                 `json:"totals"`
	}{
		GeneratedAt:   time.Now().In(loc),
		Daily:         result.Daily,
		DailyInstance: result.DailyInstance,
		Sessions:      result.Sessions,
		Monthly:       result.Monthly,
		Blocks:        result.Blocks,
		Totals:        result.Totals,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatal().Err(err).Msg("failed to encode report")
	}

	log.Info().
		Int("days", len(result.Daily)).
		Int("sessions", len(result.Sessions)).
		Int("blocks", len(result.Blocks)).
		Msg("ccstat report complete")

	if providerErr != nil {
		os.Exit(1)
	}
}
