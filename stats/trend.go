package stats

import (
	models "farmpulse/database/models_pkg"
)

// Trend classifications
const (
	TrendIncreasing       = "increasing"
	TrendDecreasing       = "decreasing"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

const (
	minTrendSamples    = 4
	trendWeeklyBandPct = 5.0
)

// ClassifyTrend fits the accumulated regression sums and labels the pair's
// demand direction. The x axis is order sequence rather than elapsed time,
// so the slope reads as change per order, weighted toward order frequency
// for unevenly spaced customers.
func ClassifyTrend(s *models.CustomerCropStat) (trend string, slope, weeklyChangePct float64) {
	n := float64(s.Count)
	if s.Count < minTrendSamples {
		return TrendInsufficientData, 0, 0
	}

	denom := n*s.SumX2 - s.SumX*s.SumX
	if denom == 0 {
		return TrendStable, 0, 0
	}
	slope = (n*s.SumXY - s.SumX*s.SumY) / denom

	mean := s.SumY / n
	if mean != 0 {
		weeklyChangePct = slope / mean * 100
	}

	switch {
	case weeklyChangePct > trendWeeklyBandPct:
		trend = TrendIncreasing
	case weeklyChangePct < -trendWeeklyBandPct:
		trend = TrendDecreasing
	default:
		trend = TrendStable
	}
	return trend, slope, weeklyChangePct
}
