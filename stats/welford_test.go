package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "farmpulse/database/models_pkg"
)

func day(offset int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestObserveMatchesBatchStatistics(t *testing.T) {
	quantities := []float64{10, 12, 8, 14, 11, 9, 13}

	s := &models.CustomerCropStat{}
	for i, q := range quantities {
		Observe(s, q, day(i*7))
	}

	// Batch mean and sample stddev
	sum := 0.0
	for _, q := range quantities {
		sum += q
	}
	mean := sum / float64(len(quantities))
	ss := 0.0
	for _, q := range quantities {
		ss += (q - mean) * (q - mean)
	}
	stddev := math.Sqrt(ss / float64(len(quantities)-1))

	assert.Equal(t, int64(len(quantities)), s.Count)
	assert.InDelta(t, mean, s.Mean, 1e-9)
	assert.InDelta(t, stddev, SampleStddev(s.Count, s.M2), 1e-9)
	assert.GreaterOrEqual(t, s.M2, 0.0)
}

func TestObserveIsOrderSensitive(t *testing.T) {
	ascending := &models.CustomerCropStat{}
	descending := &models.CustomerCropStat{}

	for i, q := range []float64{5, 10, 15, 20, 25} {
		Observe(ascending, q, day(i))
	}
	for i, q := range []float64{25, 20, 15, 10, 5} {
		Observe(descending, q, day(i))
	}

	// Mean and variance are order-free; EWMA and regression are not
	assert.InDelta(t, ascending.Mean, descending.Mean, 1e-9)
	assert.InDelta(t, ascending.M2, descending.M2, 1e-9)
	assert.NotEqual(t, ascending.Ewma, descending.Ewma)
	assert.NotEqual(t, ascending.SumXY, descending.SumXY)
}

func TestAdaptiveAlpha(t *testing.T) {
	tests := []struct {
		name    string
		count   int64
		avgDays float64
		want    float64
	}{
		{"young pair chases the signal", 2, 7, 0.40},
		{"young pair even with slow cadence", 4, 30, 0.40},
		{"slow cadence smooths heavily", 8, 14, 0.15},
		{"established weekly customer", 8, 7, 0.25},
		{"boundary: exactly ten days is not slow", 8, 10, 0.25},
		{"boundary: five observations leaves young band", 5, 3, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdaptiveAlpha(tt.count, tt.avgDays))
		})
	}
}

func TestEwmaSeedAndSmoothing(t *testing.T) {
	s := &models.CustomerCropStat{}

	Observe(s, 10, day(0))
	assert.Equal(t, 10.0, s.Ewma, "first observation seeds the EWMA directly")

	Observe(s, 20, day(7))
	// count=2 stays in the young band: 0.40*20 + 0.60*10
	assert.InDelta(t, 14.0, s.Ewma, 1e-9)
}

func TestIntervalTracker(t *testing.T) {
	s := &models.CustomerCropStat{}

	Observe(s, 10, day(0))
	Observe(s, 10, day(7))
	Observe(s, 10, day(14))

	require.Equal(t, int64(2), s.IntervalCount)
	assert.InDelta(t, 7.0, s.AvgDaysBetweenOrders, 1e-9)
	assert.InDelta(t, 0.0, s.IntervalStddev, 1e-9)
}

func TestIntervalTrackerIgnoresSameTimestampLines(t *testing.T) {
	s := &models.CustomerCropStat{}

	// Two line items on the same order share a timestamp
	Observe(s, 10, day(0))
	Observe(s, 5, day(0))

	assert.Equal(t, int64(0), s.IntervalCount)
	assert.Equal(t, 0.0, s.AvgDaysBetweenOrders)
}

func TestFeedbackLoopScoresPriorForecast(t *testing.T) {
	s := &models.CustomerCropStat{}

	Observe(s, 10, day(0))
	assert.Equal(t, int64(0), s.TotalPredictions, "first observation has no standing forecast to score")

	// Standing forecast before this observation is 10
	Observe(s, 20, day(7))
	require.Equal(t, int64(1), s.TotalPredictions)
	assert.InDelta(t, 50.0, s.SumAbsPercentError, 1e-9) // |20-10|/20*100
	assert.InDelta(t, 3.0, s.RunningBias, 1e-9)         // 0.3*(20-10) + 0.7*0
}

func TestObserveTracksOrderRecency(t *testing.T) {
	s := &models.CustomerCropStat{}

	Observe(s, 10, day(0))
	Observe(s, 12, day(7))

	require.NotNil(t, s.FirstOrderDate)
	require.NotNil(t, s.LastOrderDate)
	assert.Equal(t, day(0), *s.FirstOrderDate)
	assert.Equal(t, day(7), *s.LastOrderDate)
	assert.Equal(t, 12.0, s.LastQuantity)
}

func TestDaysBetweenDates(t *testing.T) {
	a := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	b := time.Date(2026, 3, 2, 0, 10, 0, 0, time.UTC)

	// Calendar days, not 24-hour periods
	assert.Equal(t, 1, DaysBetweenDates(a, b))
	assert.Equal(t, 0, DaysBetweenDates(a, a))
	assert.Equal(t, 28, DaysBetweenDates(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSampleStddev(t *testing.T) {
	assert.Equal(t, 0.0, SampleStddev(1, 5))
	assert.Equal(t, 0.0, SampleStddev(10, 0))
	assert.Equal(t, 0.0, SampleStddev(10, -1))
	assert.InDelta(t, 2.0, SampleStddev(6, 20), 1e-9)
}
