// Package provider defines the uniform loader contract implemented by
// every supported usage-log source, plus a small registry for fanning
// concurrent discovery and streaming out across all of them.
package provider

import (
	"context"

	"github.com/ccstat-go/ccstat/domain"
	"golang.org/x/sync/errgroup"
)

// Loader discovers and streams normalized events from one usage-log
// source. A missing data directory is not an error, it simply yields an
// empty stream.
type Loader interface {
	// Name identifies the provider for logging and diagnostics.
	Name() string

	// StreamEntries returns a channel of normalized events and a
	// channel carrying at most one fatal error. Both channels are
	// closed when the stream ends; per-record parse failures are
	// logged and skipped rather than surfaced here.
	StreamEntries(ctx context.Context) (<-chan domain.UsageEntry, <-chan error)
}

// Registry holds the set of configured loaders and fans their streams
// into a single merged channel.
type Registry struct {
	loaders []Loader
}

// NewRegistry constructs a Registry over the given loaders.
func NewRegistry(loaders ...Loader) *Registry {
	return &Registry{loaders: loaders}
}

// StreamAll merges every registered loader's event stream into one
// channel. Wait blocks until every loader has finished and returns the
// first fatal error encountered, if any; events already forwarded
// before a failing loader's error are not discarded.
func (r *Registry) StreamAll(ctx context.Context) (merged <-chan domain.UsageEntry, wait func() error) {
	out := make(chan domain.UsageEntry)
	g, gctx := errgroup.WithContext(ctx)

	for _, l := range r.loaders {
		l := l
		g.Go(func() error {
			entries, errs := l.StreamEntries(gctx)
			for entries != nil || errs != nil {
				select {
				case e, ok := <-entries:
					if !ok {
						entries = nil
						continue
					}
					select {
					case out <- e:
					case <-gctx.Done():
						return gctx.Err()
					}
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					if err != nil {
						return err
					}
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	done := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = g.Wait()
		close(out)
		close(done)
	}()

	wait = func() error {
		<-done
		return waitErr
	}

	return out, wait
}
