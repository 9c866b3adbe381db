package stats

import (
	"encoding/json"
	"time"

	models "farmpulse/database/models_pkg"
)

// RefreshPresentation rewrites every derived presentation field of a record
// from its accumulators. The real-time handler, the nightly job, and the
// backfill all call this single code path, which is what makes the nightly
// recompute idempotent and consistent with incremental updates.
func RefreshPresentation(s *models.CustomerCropStat, now time.Time) {
	score, level, parts := ScoreConfidence(s, now)
	s.Confidence = score
	s.ConfidenceLevel = level
	if raw, err := json.Marshal(parts); err == nil {
		s.ConfidenceComponents = string(raw)
	}

	trend, slope, weeklyPct := ClassifyTrend(s)
	s.Trend = trend
	s.TrendSlope = slope
	s.TrendWeeklyChangePct = weeklyPct

	s.Mape = Mape(s)
	s.AdjustedEwma, s.BiasCorrected = BiasAdjustedEwma(s.Ewma, s.RunningBias)

	flag, daysSince := ActivityFlag(s, now)
	s.ActivityFlag = flag
	s.DaysSinceLastOrder = daysSince
}
