// Package aggregate folds a stream of normalized events into daily,
// daily-by-instance, session, monthly, and five-hour billing-block
// summaries.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ccstat-go/ccstat/cost"
	"github.com/ccstat-go/ccstat/domain"
	"github.com/ccstat-go/ccstat/metrics"
	"github.com/ccstat-go/ccstat/tzconfig"
)

// Aggregator folds normalized events into the report summaries, pricing
// each event through calc as it goes.
type Aggregator struct {
	calc       *cost.Calculator
	loc        *time.Location
	metrics    *metrics.Collector
	tokenLimit int64
	details    bool
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMetrics counts folded events against m.
func WithMetrics(m *metrics.Collector) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithTokenLimit attaches a warning to any billing block whose total
// token count exceeds limit. Zero disables the check.
func WithTokenLimit(limit int64) Option {
	return func(a *Aggregator) { a.tokenLimit = limit }
}

// WithDetails retains the per-event detail list on each daily summary
// for verbose output. Memory then grows with event count, not bucket
// count, so this is off by default.
func WithDetails() Option {
	return func(a *Aggregator) { a.details = true }
}

// New constructs an Aggregator.
func New(calc *cost.Calculator, loc *time.Location, opts ...Option) *Aggregator {
	a := &Aggregator{calc: calc, loc: loc}
	for _, o := range opts {
		o(a)
	}
	return a
}

type dailyAcc struct {
	tokens  domain.TokenCounts
	cost    float64
	models  map[string]struct{}
	entries []domain.UsageEntry
}

type instanceKey struct {
	date       string
	instanceID string
}

// Fold consumes every event from in exactly once, returning all five
// summary views plus any error encountered while costing an event (the
// fold stops on the first such error in Calculate/Display mode).
func (a *Aggregator) Fold(ctx context.Context, in <-chan domain.UsageEntry) (Result, error) {
	daily := make(map[string]*dailyAcc)
	instances := make(map[instanceKey]*dailyAcc)
	sessions := make(map[string]*domain.SessionSummary)
	sessionOrder := make([]string, 0)

	var totals domain.Totals

	for e := range in {
		c, err := a.calc.Calculate(ctx, e)
		if err != nil {
			return Result{}, err
		}
		a.metrics.EventProcessed()

		totals.Tokens = totals.Tokens.Add(e.Tokens)
		totals.TotalCost += c

		date := tzconfig.DailyDate(e.Timestamp, a.loc)
		accumulate(daily, date, e, c)
		if a.details {
			daily[date].entries = append(daily[date].entries, e)
		}

		instID := e.InstanceID
		if instID == "" {
			instID = "default"
		}
		ik := instanceKey{date: date, instanceID: instID}
		accumulateInstance(instances, ik, e, c)

		s, ok := sessions[e.SessionID]
		if !ok {
			s = &domain.SessionSummary{
				SessionID:    e.SessionID,
				StartTime:    e.Timestamp,
				EndTime:      e.Timestamp,
				PrimaryModel: e.Model,
				Project:      e.Project,
			}
			sessions[e.SessionID] = s
			sessionOrder = append(sessionOrder, e.SessionID)
		}
		if e.Timestamp.Before(s.StartTime) {
			s.StartTime = e.Timestamp
		}
		if e.Timestamp.After(s.EndTime) {
			s.EndTime = e.Timestamp
		}
		s.Tokens = s.Tokens.Add(e.Tokens)
		s.TotalCost += c
	}

	dailySummaries := finalizeDaily(daily)
	instanceSummaries := finalizeInstances(instances)
	sessionSummaries := finalizeSessions(sessions, sessionOrder)
	monthlySummaries := foldMonthly(dailySummaries)
	blocks := foldBillingBlocks(sessionSummaries, time.Now(), a.tokenLimit)

	return Result{
		Daily:         dailySummaries,
		DailyInstance: instanceSummaries,
		Sessions:      sessionSummaries,
		Monthly:       monthlySummaries,
		Blocks:        blocks,
		Totals:        totals,
	}, nil
}

// Result bundles every summary view produced by a single fold.
type Result struct {
	Daily         []domain.DailySummary
	DailyInstance []domain.DailyInstanceSummary
	Sessions      []domain.SessionSummary
	Monthly       []domain.MonthlySummary
	Blocks        []domain.BillingBlock
	Totals        domain.Totals
}

func accumulate(m map[string]*dailyAcc, date string, e domain.UsageEntry, c float64) {
	acc, ok := m[date]
	if !ok {
		acc = &dailyAcc{models: make(map[string]struct{})}
		m[date] = acc
	}
	acc.tokens = acc.tokens.Add(e.Tokens)
	acc.cost += c
	acc.models[e.Model] = struct{}{}
}

func accumulateInstance(m map[instanceKey]*dailyAcc, k instanceKey, e domain.UsageEntry, c float64) {
	acc, ok := m[k]
	if !ok {
		acc = &dailyAcc{models: make(map[string]struct{})}
		m[k] = acc
	}
	acc.tokens = acc.tokens.Add(e.Tokens)
	acc.cost += c
	acc.models[e.Model] = struct{}{}
}

func sortedModels(models map[string]struct{}) []string {
	out := make([]string, 0, len(models))
	for m := range models {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func finalizeDaily(m map[string]*dailyAcc) []domain.DailySummary {
	out := make([]domain.DailySummary, 0, len(m))
	for date, acc := range m {
		out = append(out, domain.DailySummary{
			Date:      date,
			Tokens:    acc.tokens,
			TotalCost: acc.cost,
			Models:    sortedModels(acc.models),
			Entries:   acc.entries,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func finalizeInstances(m map[instanceKey]*dailyAcc) []domain.DailyInstanceSummary {
	out := make([]domain.DailyInstanceSummary, 0, len(m))
	for k, acc := range m {
		out = append(out, domain.DailyInstanceSummary{
			Date:       k.date,
			InstanceID: k.instanceID,
			Tokens:     acc.tokens,
			TotalCost:  acc.cost,
			Models:     sortedModels(acc.models),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out
}

func finalizeSessions(m map[string]*domain.SessionSummary, order []string) []domain.SessionSummary {
	out := make([]domain.SessionSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *m[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func foldMonthly(daily []domain.DailySummary) []domain.MonthlySummary {
	type monthAcc struct {
		tokens domain.TokenCounts
		cost   float64
		days   int
	}
	m := make(map[string]*monthAcc)
	order := make([]string, 0)
	for _, d := range daily {
		month := d.Date[:7] // YYYY-MM prefix of YYYY-MM-DD
		acc, ok := m[month]
		if !ok {
			acc = &monthAcc{}
			m[month] = acc
			order = append(order, month)
		}
		acc.tokens = acc.tokens.Add(d.Tokens)
		acc.cost += d.TotalCost
		acc.days++
	}
	sort.Strings(order)
	out := make([]domain.MonthlySummary, 0, len(order))
	for _, month := range order {
		acc := m[month]
		out = append(out, domain.MonthlySummary{
			Month:      month,
			Tokens:     acc.tokens,
			TotalCost:  acc.cost,
			ActiveDays: acc.days,
		})
	}
	return out
}

const billingBlockWindow = 5 * time.Hour

func foldBillingBlocks(sessions []domain.SessionSummary, now time.Time, tokenLimit int64) []domain.BillingBlock {
	var blocks []domain.BillingBlock

	var blockStart time.Time
	var open bool
	var cur domain.BillingBlock

	warn := func() {
		if tokenLimit > 0 && cur.Tokens.Total() > tokenLimit {
			cur.Warning = fmt.Sprintf("token limit exceeded: %d > %d", cur.Tokens.Total(), tokenLimit)
		}
	}

	closeBlock := func() {
		cur.EndTime = blockStart.Add(billingBlockWindow)
		cur.IsActive = false
		warn()
		blocks = append(blocks, cur)
		cur = domain.BillingBlock{}
		open = false
	}

	for _, s := range sessions {
		if open && !s.StartTime.Before(blockStart.Add(billingBlockWindow)) {
			closeBlock()
		}
		if !open {
			blockStart = s.StartTime
			cur = domain.BillingBlock{StartTime: blockStart}
			open = true
		}
		cur.Sessions = append(cur.Sessions, s)
		cur.Tokens = cur.Tokens.Add(s.Tokens)
		cur.TotalCost += s.TotalCost
		cur.Models = appendUnique(cur.Models, s.PrimaryModel)
		if s.Project != "" {
			cur.Projects = appendUnique(cur.Projects, s.Project)
		}
	}

	if open {
		cur.EndTime = blockStart.Add(billingBlockWindow)
		cur.IsActive = now.Before(cur.EndTime)
		warn()
		blocks = append(blocks, cur)
	}

	return blocks
}

func appendUnique(s []string, v string) []string {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}
