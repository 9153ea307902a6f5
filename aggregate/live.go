package aggregate

import (
	"time"

	"github.com/ccstat-go/ccstat/domain"
)

// BurnRateStatus labels a burn rate against fixed USD/minute thresholds.
type BurnRateStatus int

const (
	BurnRateNormal BurnRateStatus = iota
	BurnRateElevated
	BurnRateHigh
)

func (s BurnRateStatus) String() string {
	switch s {
	case BurnRateHigh:
		return "HIGH"
	case BurnRateElevated:
		return "ELEVATED"
	default:
		return "NORMAL"
	}
}

// ProjectionStatus labels a projected usage percentage against fixed
// thresholds.
type ProjectionStatus int

const (
	ProjectionGreen ProjectionStatus = iota
	ProjectionYellow
	ProjectionRed
)

// LiveMetrics is the burn-rate and projection snapshot for an active
// billing block, independent of any rendering.
type LiveMetrics struct {
	BurnRatePerMinute float64
	BurnRateStatus    BurnRateStatus
	ProjectedCost     float64
	UsagePercent      float64
	ProjectionPercent float64
	ProjectionStatus  ProjectionStatus
}

// ComputeLiveMetrics computes burn rate, projected cost, and usage
// percentages for block as observed at now, against maxHistoricalCost
// (the denominator for percentage displays).
func ComputeLiveMetrics(block domain.BillingBlock, now time.Time, maxHistoricalCost float64) LiveMetrics {
	elapsed := now.Sub(block.StartTime)
	remaining := block.EndTime.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	var burnRateDivisor float64
	if elapsed < time.Minute && elapsed.Seconds() > 0 {
		burnRateDivisor = elapsed.Seconds() / 60
	} else {
		burnRateDivisor = elapsed.Minutes()
		if burnRateDivisor < 1 {
			burnRateDivisor = 1
		}
	}

	burnRate := block.TotalCost / burnRateDivisor
	projected := block.TotalCost + burnRate*remaining.Minutes()

	var usagePercent, projectionPercent float64
	if maxHistoricalCost > 0 {
		usagePercent = 100 * block.TotalCost / maxHistoricalCost
		projectionPercent = 100 * projected / maxHistoricalCost
	}

	m := LiveMetrics{
		BurnRatePerMinute: burnRate,
		ProjectedCost:     projected,
		UsagePercent:      usagePercent,
		ProjectionPercent: projectionPercent,
	}

	switch {
	case burnRate > 0.50:
		m.BurnRateStatus = BurnRateHigh
	case burnRate > 0.20:
		m.BurnRateStatus = BurnRateElevated
	default:
		m.BurnRateStatus = BurnRateNormal
	}

	switch {
	case projectionPercent > 100:
		m.ProjectionStatus = ProjectionRed
	case projectionPercent > 80:
		m.ProjectionStatus = ProjectionYellow
	default:
		m.ProjectionStatus = ProjectionGreen
	}

	return m
}
