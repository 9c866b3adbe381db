package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	models "farmpulse/database/models_pkg"
)

func TestScoreConfidencePerfectHistory(t *testing.T) {
	now := day(100)
	last := now

	s := &models.CustomerCropStat{
		Count:                20,
		Mean:                 10,
		M2:                   0, // perfectly consistent quantities
		LastOrderDate:        &last,
		IntervalCount:        5,
		AvgDaysBetweenOrders: 7,
		IntervalStddev:       0, // perfectly regular cadence
	}

	score, level, parts := ScoreConfidence(s, now)
	assert.Equal(t, 100, score)
	assert.Equal(t, LevelHigh, level)
	assert.InDelta(t, 25.0, parts.Data, 1e-9)
	assert.InDelta(t, 25.0, parts.Consistency, 1e-9)
	assert.InDelta(t, 25.0, parts.Recency, 1e-9)
	assert.InDelta(t, 25.0, parts.Regularity, 1e-9)
}

func TestScoreConfidenceBrandNewPair(t *testing.T) {
	s := &models.CustomerCropStat{Count: 1, Mean: 10}

	score, level, parts := ScoreConfidence(s, day(0))
	// Only the data component contributes: 1/20 of the cap
	assert.Equal(t, 1, score)
	assert.Equal(t, LevelLow, level)
	assert.InDelta(t, 1.25, parts.Data, 1e-9)
	assert.InDelta(t, 0.0, parts.Consistency, 1e-9)
	assert.InDelta(t, 0.0, parts.Recency, 1e-9, "no last order defaults to the full recency horizon")
	assert.InDelta(t, 0.0, parts.Regularity, 1e-9)
}

func TestScoreConfidenceMidwayComponents(t *testing.T) {
	now := day(100)
	last := now.AddDate(0, 0, -42) // half the recency horizon

	s := &models.CustomerCropStat{
		Count:                10,
		Mean:                 10,
		M2:                   225, // sample stddev 5, cv 0.5
		LastOrderDate:        &last,
		IntervalCount:        4,
		AvgDaysBetweenOrders: 10,
		IntervalStddev:       5, // interval cv 0.5
	}

	score, level, parts := ScoreConfidence(s, now)
	assert.InDelta(t, 12.5, parts.Data, 1e-9)
	assert.InDelta(t, 12.5, parts.Consistency, 1e-9)
	assert.InDelta(t, 12.5, parts.Recency, 1e-9)
	assert.InDelta(t, 12.5, parts.Regularity, 1e-9)
	assert.Equal(t, 50, score)
	assert.Equal(t, LevelMedium, level)
}

func TestScoreConfidenceCapsExtremeValues(t *testing.T) {
	now := day(100)
	last := now.AddDate(0, 0, -200) // far past the horizon

	s := &models.CustomerCropStat{
		Count:                200, // far past the full-history count
		Mean:                 10,
		M2:                   100000, // cv well above 1
		LastOrderDate:        &last,
		IntervalCount:        10,
		AvgDaysBetweenOrders: 5,
		IntervalStddev:       50, // interval cv well above 1
	}

	score, _, parts := ScoreConfidence(s, now)
	assert.InDelta(t, 25.0, parts.Data, 1e-9)
	assert.InDelta(t, 0.0, parts.Consistency, 1e-9)
	assert.InDelta(t, 0.0, parts.Recency, 1e-9)
	assert.InDelta(t, 0.0, parts.Regularity, 1e-9)
	assert.Equal(t, 25, score)
}

func TestScoreConfidenceStableWithinSameDay(t *testing.T) {
	last := day(10)
	s := &models.CustomerCropStat{Count: 8, Mean: 10, M2: 20, LastOrderDate: &last}

	morning := time.Date(2026, 3, 20, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 20, 23, 0, 0, 0, time.UTC)

	scoreA, _, _ := ScoreConfidence(s, morning)
	scoreB, _, _ := ScoreConfidence(s, evening)
	assert.Equal(t, scoreA, scoreB, "re-scoring within a calendar day must not drift")
}
