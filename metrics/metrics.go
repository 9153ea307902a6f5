// Package metrics holds the pipeline's Prometheus counters. No /metrics
// endpoint is served here; callers that want one can register the
// collector against their own registry and mux.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector counts pipeline-level events. A nil *Collector is valid and
// counts nothing, so every stage can take one unconditionally.
type Collector struct {
	eventsProcessed   prometheus.Counter
	eventsDropped     prometheus.Counter
	duplicatesDropped prometheus.Counter
	unknownModels     prometheus.Counter
}

// New constructs a Collector, registering its counters against reg when
// reg is non-nil.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccstat_events_processed_total",
			Help: "Number of normalized events folded into the aggregation.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccstat_events_dropped_total",
			Help: "Number of raw records dropped due to per-record parse failures.",
		}),
		duplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccstat_duplicates_dropped_total",
			Help: "Number of events dropped because their dedup key was already seen.",
		}),
		unknownModels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccstat_unknown_models_total",
			Help: "Number of distinct models that could not be priced in auto mode.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.eventsProcessed, c.eventsDropped, c.duplicatesDropped, c.unknownModels)
	}
	return c
}

// EventProcessed records one event folded into the aggregation.
func (c *Collector) EventProcessed() {
	if c != nil {
		c.eventsProcessed.Inc()
	}
}

// EventDropped records one raw record dropped by a parse failure.
func (c *Collector) EventDropped() {
	if c != nil {
		c.eventsDropped.Inc()
	}
}

// DuplicateDropped records one event dropped by the deduplicator.
func (c *Collector) DuplicateDropped() {
	if c != nil {
		c.duplicatesDropped.Inc()
	}
}

// UnknownModel records one model that could not be priced.
func (c *Collector) UnknownModel() {
	if c != nil {
		c.unknownModels.Inc()
	}
}
