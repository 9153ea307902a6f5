// Package filter implements date-range and project predicates over
// normalized events.
package filter

import (
	"time"

	"github.com/ccstat-go/ccstat/ccerr"
	"github.com/ccstat-go/ccstat/domain"
)

// ParseDate parses a YYYY-MM-DD calendar date for the Since/Until
// options.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, ccerr.InvalidDate(s)
	}
	return t, nil
}

// UsageFilter accepts or rejects events by calendar date (in a given
// timezone) and/or project label.
type UsageFilter struct {
	Location   *time.Location
	Since      *time.Time // calendar date, time-of-day ignored
	Until      *time.Time
	Project    string
	HasProject bool
}

// New constructs a UsageFilter. loc must not be nil.
func New(loc *time.Location) *UsageFilter {
	return &UsageFilter{Location: loc}
}

// WithSince restricts to events on or after date (inclusive).
func (f *UsageFilter) WithSince(date time.Time) *UsageFilter {
	f.Since = &date
	return f
}

// WithUntil restricts to events on or before date (inclusive).
func (f *UsageFilter) WithUntil(date time.Time) *UsageFilter {
	f.Until = &date
	return f
}

// WithProject restricts to events whose Project field equals project.
func (f *UsageFilter) WithProject(project string) *UsageFilter {
	f.Project = project
	f.HasProject = true
	return f
}

// Matches reports whether e passes this filter.
func (f *UsageFilter) Matches(e domain.UsageEntry) bool {
	local := e.Timestamp.In(f.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, f.Location)

	if f.Since != nil {
		since := *f.Since
		sinceDay := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, f.Location)
		if day.Before(sinceDay) {
			return false
		}
	}
	if f.Until != nil {
		until := *f.Until
		untilDay := time.Date(until.Year(), until.Month(), until.Day(), 0, 0, 0, 0, f.Location)
		if day.After(untilDay) {
			return false
		}
	}
	if f.HasProject {
		if e.Project != f.Project {
			return false
		}
	}
	return true
}

// Stream applies f to every event read from in, forwarding only matches
// to the returned channel. The channel is closed when in is closed.
func (f *UsageFilter) Stream(in <-chan domain.UsageEntry) <-chan domain.UsageEntry {
	out := make(chan domain.UsageEntry)
	go func() {
		defer close(out)
		for e := range in {
			if f.Matches(e) {
				out <- e
			}
		}
	}()
	return out
}

// MonthFilter restricts to events falling within [SinceYear-SinceMonth,
// UntilYear-UntilMonth], inclusive, for monthly report views.
type MonthFilter struct {
	Location              *time.Location
	SinceYear, SinceMonth int
	UntilYear, UntilMonth int
	HasSince, HasUntil    bool
}

// Matches reports whether e's calendar month (in Location) falls within
// the configured bounds.
func (mf *MonthFilter) Matches(e domain.UsageEntry) bool {
	local := e.Timestamp.In(mf.Location)
	y, m := local.Year(), int(local.Month())

	if mf.HasSince {
		if y < mf.SinceYear || (y == mf.SinceYear && m < mf.SinceMonth) {
			return false
		}
	}
	if mf.HasUntil {
		if y > mf.UntilYear || (y == mf.UntilYear && m > mf.UntilMonth) {
			return false
		}
	}
	return true
}
