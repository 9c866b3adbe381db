package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	models "farmpulse/database/models_pkg"
)

func TestBiasAdjustedEwma(t *testing.T) {
	tests := []struct {
		name          string
		ewma          float64
		runningBias   float64
		wantAdjusted  float64
		wantCorrected bool
	}{
		{"under-forecasting gets scaled up", 10, 15, 11.5, true},
		{"over-forecasting gets scaled down", 10, -15, 8.5, true},
		{"small bias left alone", 10, 5, 10, false},
		{"bias exactly at the floor left alone", 10, 10, 10, false},
		{"negative bias at the floor left alone", 10, -10, 10, false},
		{"zero bias", 10, 0, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adjusted, corrected := BiasAdjustedEwma(tt.ewma, tt.runningBias)
			assert.InDelta(t, tt.wantAdjusted, adjusted, 1e-9)
			assert.Equal(t, tt.wantCorrected, corrected)
		})
	}
}

func TestMape(t *testing.T) {
	assert.Equal(t, 0.0, Mape(&models.CustomerCropStat{}))

	s := &models.CustomerCropStat{TotalPredictions: 4, SumAbsPercentError: 100}
	assert.InDelta(t, 25.0, Mape(s), 1e-9)
}
