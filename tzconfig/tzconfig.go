// Package tzconfig resolves the reporting timezone following the
// precedence: explicit UTC flag, explicit IANA name, TZ environment
// variable, system local timezone, UTC fallback.
package tzconfig

import (
	"os"
	"time"

	"github.com/ccstat-go/ccstat/ccerr"
)

// Resolve returns the *time.Location to use for bucketing calendar
// dates. explicitName is the CLI/config override, if any; forceUTC
// takes precedence over everything.
func Resolve(forceUTC bool, explicitName string) (*time.Location, error) {
	if forceUTC {
		return time.UTC, nil
	}
	if explicitName != "" {
		loc, err := time.LoadLocation(explicitName)
		if err != nil {
			return nil, ccerr.InvalidTimezone(explicitName)
		}
		return loc, nil
	}
	if tz := os.Getenv("TZ"); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc, nil
		}
	}
	// time.Local reflects the system's configured local timezone.
	if time.Local != nil {
		return time.Local, nil
	}
	return time.UTC, nil
}

// DailyDate formats t as a calendar date (YYYY-MM-DD) in loc.
func DailyDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// Month formats t as a calendar month (YYYY-MM) in loc.
func Month(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01")
}
