package stats

import (
	models "farmpulse/database/models_pkg"
)

// Detection methods and confidence labels
const (
	MethodAbsoluteBounds = "absolute_bounds"
	MethodZScore         = "z_score"

	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Absolute-bounds and z-score thresholds
const (
	absoluteHighMultiplier = 5.0
	absoluteLowMultiplier  = 0.1
	zThresholdSmallSample  = 3.0 // 5 <= count < 10
	zThresholdLargeSample  = 2.5 // count >= 10
	zSampleCutover         = 10
	minSamplesForZScore    = 5
)

// Assessment is the anomaly classification of a single observation.
type Assessment struct {
	IsAnomaly    bool    `json:"is_anomaly"`
	ZScore       float64 `json:"z_score"`
	Method       string  `json:"method"`
	Confidence   string  `json:"confidence"`
	ExpectedLow  float64 `json:"expected_low"`
	ExpectedHigh float64 `json:"expected_high"`
}

// DetectAnomaly classifies a new quantity against the PRE-update record.
// Callers must run this before Observe mutates the accumulators.
//
// With fewer than five samples the z-score is meaningless, so detection
// falls back to absolute bounds around the mean; both comparisons are
// strict, so an observation exactly at mean*5 is not anomalous.
func DetectAnomaly(s *models.CustomerCropStat, quantity float64) Assessment {
	if s.Count < minSamplesForZScore {
		a := Assessment{
			Method:       MethodAbsoluteBounds,
			Confidence:   ConfidenceLow,
			ExpectedLow:  s.Mean * absoluteLowMultiplier,
			ExpectedHigh: s.Mean * absoluteHighMultiplier,
		}
		if s.Mean > 0 && (quantity > s.Mean*absoluteHighMultiplier || quantity < s.Mean*absoluteLowMultiplier) {
			a.IsAnomaly = true
		}
		return a
	}

	stddev := SampleStddev(s.Count, s.M2)
	threshold := zThresholdSmallSample
	confidence := ConfidenceMedium
	if s.Count >= zSampleCutover {
		threshold = zThresholdLargeSample
		confidence = ConfidenceHigh
	}

	a := Assessment{
		Method:       MethodZScore,
		Confidence:   confidence,
		ExpectedLow:  s.Mean - threshold*stddev,
		ExpectedHigh: s.Mean + threshold*stddev,
	}
	if stddev == 0 {
		// Perfectly consistent history: never anomalous
		return a
	}
	a.ZScore = (quantity - s.Mean) / stddev
	if a.ZScore > threshold || a.ZScore < -threshold {
		a.IsAnomaly = true
	}
	return a
}
