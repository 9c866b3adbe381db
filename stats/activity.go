package stats

import (
	"time"

	models "farmpulse/database/models_pkg"
)

// Activity flags
const (
	ActivityActive  = "active"
	ActivityAtRisk  = "at_risk"
	ActivityChurned = "churned"
)

const (
	activeWindowDays  = 30
	churnedAfterDays  = 84
	atRiskIntervalMul = 2.0
)

// ActivityFlag classifies a pair's engagement from order recency.
// A customer well inside the 30-day window can still be at_risk when they
// have blown past twice their own ordering cadence.
func ActivityFlag(s *models.CustomerCropStat, now time.Time) (flag string, daysSince int) {
	daysSince = churnedAfterDays
	if s.LastOrderDate != nil {
		daysSince = DaysBetweenDates(*s.LastOrderDate, now)
	}

	cadenceKnown := s.IntervalCount > 0 && s.AvgDaysBetweenOrders > 0
	overdue := cadenceKnown && float64(daysSince) > atRiskIntervalMul*s.AvgDaysBetweenOrders

	switch {
	case daysSince <= activeWindowDays && !overdue:
		return ActivityActive, daysSince
	case daysSince > churnedAfterDays:
		return ActivityChurned, daysSince
	default:
		return ActivityAtRisk, daysSince
	}
}
