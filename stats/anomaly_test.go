package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	models "farmpulse/database/models_pkg"
)

func TestDetectAnomalySmallSampleUsesAbsoluteBounds(t *testing.T) {
	s := &models.CustomerCropStat{Count: 4, Mean: 10}

	tests := []struct {
		name     string
		quantity float64
		want     bool
	}{
		{"exactly five times the mean is not anomalous", 50, false},
		{"just above five times the mean", 50.01, true},
		{"exactly a tenth of the mean is not anomalous", 1, false},
		{"just below a tenth of the mean", 0.99, true},
		{"ordinary quantity", 12, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DetectAnomaly(s, tt.quantity)
			assert.Equal(t, tt.want, a.IsAnomaly)
			assert.Equal(t, MethodAbsoluteBounds, a.Method)
			assert.Equal(t, ConfidenceLow, a.Confidence)
			assert.InDelta(t, 1.0, a.ExpectedLow, 1e-9)
			assert.InDelta(t, 50.0, a.ExpectedHigh, 1e-9)
		})
	}
}

func TestDetectAnomalyZeroMeanNeverFlagsSmallSample(t *testing.T) {
	s := &models.CustomerCropStat{Count: 2, Mean: 0}
	a := DetectAnomaly(s, 100)
	assert.False(t, a.IsAnomaly)
}

func TestDetectAnomalyZScore(t *testing.T) {
	// mean 10, sample stddev 2 (m2 = 4 * (6-1))
	s := &models.CustomerCropStat{Count: 6, Mean: 10, M2: 20}

	a := DetectAnomaly(s, 16)
	assert.False(t, a.IsAnomaly, "z exactly at the threshold is not anomalous")
	assert.Equal(t, MethodZScore, a.Method)
	assert.Equal(t, ConfidenceMedium, a.Confidence)
	assert.InDelta(t, 3.0, a.ZScore, 1e-9)

	a = DetectAnomaly(s, 16.5)
	assert.True(t, a.IsAnomaly)
	assert.InDelta(t, 4.0, a.ExpectedLow, 1e-9)
	assert.InDelta(t, 16.0, a.ExpectedHigh, 1e-9)

	a = DetectAnomaly(s, 3.5)
	assert.True(t, a.IsAnomaly, "low side is symmetric")
}

func TestDetectAnomalyLargeSampleTightensThreshold(t *testing.T) {
	// mean 10, sample stddev 2 (m2 = 4 * (12-1))
	s := &models.CustomerCropStat{Count: 12, Mean: 10, M2: 44}

	a := DetectAnomaly(s, 15.5)
	assert.True(t, a.IsAnomaly, "z=2.75 exceeds the 2.5 threshold at this sample size")
	assert.Equal(t, ConfidenceHigh, a.Confidence)

	a = DetectAnomaly(s, 14.5)
	assert.False(t, a.IsAnomaly, "z=2.25 is inside the band")
}

func TestDetectAnomalyZeroStddevNeverFlags(t *testing.T) {
	s := &models.CustomerCropStat{Count: 8, Mean: 10, M2: 0}

	a := DetectAnomaly(s, 1000)
	assert.False(t, a.IsAnomaly, "perfectly consistent history cannot produce a z-score")
	assert.Equal(t, 0.0, a.ZScore)
}
