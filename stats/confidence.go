package stats

import (
	"math"
	"time"

	models "farmpulse/database/models_pkg"
)

// Confidence levels
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

const (
	componentCap         = 25.0
	fullHistoryCount     = 20.0 // observations for a full data score
	recencyHorizonDays   = 84.0 // 12 weeks; also the default when never ordered
	highLevelThreshold   = 70
	mediumLevelThreshold = 40
)

// ConfidenceComponents breaks the composite score into its four capped parts.
type ConfidenceComponents struct {
	Data        float64 `json:"data"`
	Consistency float64 `json:"consistency"`
	Recency     float64 `json:"recency"`
	Regularity  float64 `json:"regularity"`
}

// ScoreConfidence derives the composite 0-100 confidence score for a pair:
// sample depth, quantity consistency (CV), order recency, and interval
// regularity, each capped at 25. now only matters at calendar-day
// granularity, so re-scoring within the same day is stable.
func ScoreConfidence(s *models.CustomerCropStat, now time.Time) (score int, level string, parts ConfidenceComponents) {
	parts.Data = math.Min(float64(s.Count)/fullHistoryCount, 1) * componentCap

	cv := 1.0
	if s.Count >= 2 && s.Mean > 0 {
		cv = SampleStddev(s.Count, s.M2) / s.Mean
	}
	parts.Consistency = componentCap * (1 - math.Min(cv, 1))

	daysSince := recencyHorizonDays
	if s.LastOrderDate != nil {
		daysSince = float64(DaysBetweenDates(*s.LastOrderDate, now))
	}
	parts.Recency = componentCap * (1 - math.Min(daysSince/recencyHorizonDays, 1))

	intervalCV := 1.0
	if s.IntervalCount >= 2 && s.AvgDaysBetweenOrders > 0 {
		intervalCV = s.IntervalStddev / s.AvgDaysBetweenOrders
	}
	parts.Regularity = componentCap * (1 - math.Min(intervalCV, 1))

	score = int(math.Round(parts.Data + parts.Consistency + parts.Recency + parts.Regularity))
	switch {
	case score >= highLevelThreshold:
		level = LevelHigh
	case score >= mediumLevelThreshold:
		level = LevelMedium
	default:
		level = LevelLow
	}
	return score, level, parts
}
