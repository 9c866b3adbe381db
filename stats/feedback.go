package stats

import (
	"math"

	models "farmpulse/database/models_pkg"
)

// biasCorrectionFloor is the |runningBias| above which the forecast is
// considered systematically off and gets corrected at read time.
const biasCorrectionFloor = 10.0

// BiasAdjustedEwma applies the read-time bias correction to a forecast.
// A running bias inside the floor leaves the EWMA untouched.
func BiasAdjustedEwma(ewma, runningBias float64) (adjusted float64, corrected bool) {
	if math.Abs(runningBias) > biasCorrectionFloor {
		return ewma * (1 + runningBias/100), true
	}
	return ewma, false
}

// Mape returns the mean absolute percentage error accumulated by the
// feedback loop, 0 when no predictions have been scored yet.
func Mape(s *models.CustomerCropStat) float64 {
	if s.TotalPredictions == 0 {
		return 0
	}
	return s.SumAbsPercentError / float64(s.TotalPredictions)
}
