// Package dedup drops normalized events whose dedup key has already been
// seen, safe for concurrent use by multiple parsing workers.
package dedup

import (
	"sync"

	"github.com/ccstat-go/ccstat/metrics"
)

// Key derives the dedup key for a raw (message_id, request_id) pair.
// The empty string return means "no key" — such events are never
// considered duplicates.
func Key(messageID, requestID string) string {
	switch {
	case messageID != "" && requestID != "":
		return messageID + "-" + requestID
	case messageID != "":
		return messageID
	case requestID != "":
		return requestID
	default:
		return ""
	}
}

// Set is a concurrency-safe set of seen dedup keys.
type Set struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	metrics *metrics.Collector
}

// NewSet constructs an empty Set.
func NewSet() *Set {
	return NewSetWithMetrics(nil)
}

// NewSetWithMetrics constructs an empty Set that counts dropped
// duplicates against m.
func NewSetWithMetrics(m *metrics.Collector) *Set {
	return &Set{seen: make(map[string]struct{}), metrics: m}
}

// Admit reports whether key should be emitted: true the first time a
// non-empty key is seen, true always for the empty key (no identity),
// false on every subsequent occurrence of a previously-seen key.
func (s *Set) Admit(key string) bool {
	if key == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		s.metrics.DuplicateDropped()
		return false
	}
	s.seen[key] = struct{}{}
	return true
}
