package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ccstat-go/ccstat/domain"
)

type fakeLoader struct {
	name    string
	entries []domain.UsageEntry
	err     error
}

func (f *fakeLoader) Name() string { return f.name }

func (f *fakeLoader) StreamEntries(ctx context.Context) (<-chan domain.UsageEntry, <-chan error) {
	out := make(chan domain.UsageEntry)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, e := range f.entries {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
		if f.err != nil {
			errs <- f.err
		}
	}()
	return out, errs
}

func entry(session string) domain.UsageEntry {
	return domain.UsageEntry{
		SessionID: session,
		Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Model:     "m",
		Tokens:    domain.TokenCounts{InputTokens: 1},
	}
}

func TestStreamAllMergesEveryLoader(t *testing.T) {
	r := NewRegistry(
		&fakeLoader{name: "a", entries: []domain.UsageEntry{entry("a1"), entry("a2")}},
		&fakeLoader{name: "b", entries: []domain.UsageEntry{entry("b1")}},
	)

	merged, wait := r.StreamAll(context.Background())
	seen := make(map[string]bool)
	for e := range merged {
		seen[e.SessionID] = true
	}
	if err := wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 3 || !seen["a1"] || !seen["a2"] || !seen["b1"] {
		t.Fatalf("expected events from both loaders, got %v", seen)
	}
}

func TestStreamAllSurfacesLoaderError(t *testing.T) {
	boom := errors.New("enumeration failed")
	r := NewRegistry(
		&fakeLoader{name: "ok", entries: []domain.UsageEntry{entry("x")}},
		&fakeLoader{name: "bad", err: boom},
	)

	merged, wait := r.StreamAll(context.Background())
	for range merged {
	}
	if err := wait(); !errors.Is(err, boom) {
		t.Fatalf("expected loader error to surface from wait, got %v", err)
	}
}

func TestStreamAllEmptyRegistry(t *testing.T) {
	r := NewRegistry()
	merged, wait := r.StreamAll(context.Background())
	count := 0
	for range merged {
		count++
	}
	if err := wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty stream, got %d events", count)
	}
}
