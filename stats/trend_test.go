package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	models "farmpulse/database/models_pkg"
)

func observeAll(quantities []float64) *models.CustomerCropStat {
	s := &models.CustomerCropStat{}
	for i, q := range quantities {
		Observe(s, q, day(i*7))
	}
	return s
}

func TestClassifyTrendInsufficientData(t *testing.T) {
	s := observeAll([]float64{10, 12, 14})

	trend, slope, weekly := ClassifyTrend(s)
	assert.Equal(t, TrendInsufficientData, trend)
	assert.Equal(t, 0.0, slope)
	assert.Equal(t, 0.0, weekly)
}

func TestClassifyTrendIncreasing(t *testing.T) {
	s := observeAll([]float64{10, 12, 14, 16})

	trend, slope, weekly := ClassifyTrend(s)
	assert.Equal(t, TrendIncreasing, trend)
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 2.0/13.0*100, weekly, 1e-9)
}

func TestClassifyTrendDecreasing(t *testing.T) {
	s := observeAll([]float64{16, 14, 12, 10})

	trend, slope, _ := ClassifyTrend(s)
	assert.Equal(t, TrendDecreasing, trend)
	assert.InDelta(t, -2.0, slope, 1e-9)
}

func TestClassifyTrendStable(t *testing.T) {
	s := observeAll([]float64{10, 10, 10, 10})

	trend, slope, weekly := ClassifyTrend(s)
	assert.Equal(t, TrendStable, trend)
	assert.InDelta(t, 0.0, slope, 1e-9)
	assert.InDelta(t, 0.0, weekly, 1e-9)
}

func TestClassifyTrendSmallDriftStaysStable(t *testing.T) {
	// Slope 0.1 on a mean of ~10 is a 1% weekly change, inside the 5% band
	s := observeAll([]float64{9.85, 9.95, 10.05, 10.15})

	trend, _, weekly := ClassifyTrend(s)
	assert.Equal(t, TrendStable, trend)
	assert.Less(t, weekly, 5.0)
	assert.Greater(t, weekly, -5.0)
}
