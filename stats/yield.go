package stats

import (
	"math"
	"time"

	models "farmpulse/database/models_pkg"
)

const (
	yieldOutlierMinSamples = 5
	yieldOutlierZThreshold = 3.0
	yieldEwmaAlpha         = 0.3

	defaultBufferPercent = 15.0
	bufferWarmupCount    = 3
	bufferCVMultiplier   = 1.5
	bufferFloorPercent   = 5.0
	bufferCeilingPercent = 30.0
)

// YieldResult reports the outcome of applying one harvest observation.
type YieldResult struct {
	Outlier       bool    `json:"outlier"`
	ZScore        float64 `json:"z_score"`
	YieldPerTray  float64 `json:"yield_per_tray"`
	Ewma          float64 `json:"ewma"`
	BufferPercent float64 `json:"buffer_percent"`
}

// ObserveYield applies a yield-per-tray observation to a crop's profile.
//
// This is the one stream that rejects rather than absorbs extreme inputs:
// once five samples exist, an observation beyond 3 standard deviations of
// the pre-update mean leaves the profile untouched and is reported as an
// outlier for the caller to alert on.
func ObserveYield(p *models.YieldProfile, yieldPerTray float64, date time.Time) YieldResult {
	if p.YieldCount >= yieldOutlierMinSamples {
		stddev := SampleStddev(p.YieldCount, p.YieldM2)
		if stddev > 0 {
			z := (yieldPerTray - p.YieldMean) / stddev
			if math.Abs(z) > yieldOutlierZThreshold {
				return YieldResult{
					Outlier:       true,
					ZScore:        z,
					YieldPerTray:  yieldPerTray,
					Ewma:          p.ActualYieldEstimate,
					BufferPercent: p.AdjustedBufferPercent,
				}
			}
		}
	}

	priorCount := p.YieldCount
	p.YieldCount++
	delta := yieldPerTray - p.YieldMean
	p.YieldMean += delta / float64(p.YieldCount)
	delta2 := yieldPerTray - p.YieldMean
	p.YieldM2 += delta * delta2
	if p.YieldM2 < 0 {
		p.YieldM2 = 0
	}
	p.YieldStddev = SampleStddev(p.YieldCount, p.YieldM2)

	if priorCount == 0 {
		p.ActualYieldEstimate = yieldPerTray
	} else {
		p.ActualYieldEstimate = yieldEwmaAlpha*yieldPerTray + (1-yieldEwmaAlpha)*p.ActualYieldEstimate
	}

	p.AdjustedBufferPercent = defaultBufferPercent
	if p.YieldCount >= bufferWarmupCount && p.YieldMean > 0 {
		cv := p.YieldStddev / p.YieldMean
		buffer := cv * 100 * bufferCVMultiplier
		if buffer < bufferFloorPercent {
			buffer = bufferFloorPercent
		}
		if buffer > bufferCeilingPercent {
			buffer = bufferCeilingPercent
		}
		p.AdjustedBufferPercent = buffer
	}

	last := date
	p.LastHarvestDate = &last

	return YieldResult{
		YieldPerTray:  yieldPerTray,
		Ewma:          p.ActualYieldEstimate,
		BufferPercent: p.AdjustedBufferPercent,
	}
}
