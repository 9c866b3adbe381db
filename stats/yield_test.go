package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "farmpulse/database/models_pkg"
)

func TestObserveYieldSeedsProfile(t *testing.T) {
	p := &models.YieldProfile{CropID: "sunflower"}

	res := ObserveYield(p, 12.5, day(0))
	assert.False(t, res.Outlier)
	assert.Equal(t, int64(1), p.YieldCount)
	assert.InDelta(t, 12.5, p.YieldMean, 1e-9)
	assert.InDelta(t, 12.5, p.ActualYieldEstimate, 1e-9, "first sample seeds the estimate directly")
	assert.InDelta(t, 15.0, p.AdjustedBufferPercent, 1e-9, "buffer stays at the default until warmup")
	require.NotNil(t, p.LastHarvestDate)
	assert.Equal(t, day(0), *p.LastHarvestDate)
}

func TestObserveYieldSmoothsEstimate(t *testing.T) {
	p := &models.YieldProfile{CropID: "pea"}

	ObserveYield(p, 12.5, day(0))
	res := ObserveYield(p, 10, day(3))

	// 0.3*10 + 0.7*12.5
	assert.InDelta(t, 11.75, res.Ewma, 1e-9)
	assert.InDelta(t, 11.75, p.ActualYieldEstimate, 1e-9)
}

func TestObserveYieldBufferFloor(t *testing.T) {
	p := &models.YieldProfile{CropID: "radish"}

	for i := 0; i < 5; i++ {
		ObserveYield(p, 10, day(i*3))
	}

	// Zero variance would suggest zero buffer; the floor holds it at 5%
	assert.InDelta(t, 5.0, p.AdjustedBufferPercent, 1e-9)
}

func TestObserveYieldBufferCeiling(t *testing.T) {
	p := &models.YieldProfile{CropID: "basil"}

	for i, y := range []float64{10, 20, 10, 20, 10} {
		ObserveYield(p, y, day(i*3))
	}

	// cv ~0.39 maps to ~59%; the ceiling clamps it
	assert.InDelta(t, 30.0, p.AdjustedBufferPercent, 1e-9)
}

func TestObserveYieldRejectsOutlier(t *testing.T) {
	p := &models.YieldProfile{CropID: "cilantro"}

	for i, y := range []float64{10, 12, 11, 13, 9} {
		ObserveYield(p, y, day(i*3))
	}
	before := *p

	res := ObserveYield(p, 100, day(20))
	assert.True(t, res.Outlier)
	assert.Greater(t, res.ZScore, 3.0)
	assert.Equal(t, 100.0, res.YieldPerTray)

	// A rejected sample leaves the whole profile untouched
	assert.Equal(t, before.YieldCount, p.YieldCount)
	assert.Equal(t, before.YieldMean, p.YieldMean)
	assert.Equal(t, before.YieldM2, p.YieldM2)
	assert.Equal(t, before.ActualYieldEstimate, p.ActualYieldEstimate)
	assert.Equal(t, before.AdjustedBufferPercent, p.AdjustedBufferPercent)
	assert.Equal(t, *before.LastHarvestDate, *p.LastHarvestDate)
}

func TestObserveYieldAbsorbsExtremesDuringWarmup(t *testing.T) {
	p := &models.YieldProfile{CropID: "arugula"}

	for i, y := range []float64{10, 12, 11, 13} {
		ObserveYield(p, y, day(i*3))
	}

	res := ObserveYield(p, 100, day(15))
	assert.False(t, res.Outlier, "the gate needs five samples before it can reject")
	assert.Equal(t, int64(5), p.YieldCount)
}

func TestObserveYieldAbsorbsWhenStddevIsZero(t *testing.T) {
	p := &models.YieldProfile{CropID: "kale"}

	for i := 0; i < 5; i++ {
		ObserveYield(p, 10, day(i*3))
	}

	res := ObserveYield(p, 100, day(20))
	assert.False(t, res.Outlier, "no spread means no z-score to gate on")
	assert.Equal(t, int64(6), p.YieldCount)
}
