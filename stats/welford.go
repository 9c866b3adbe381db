// Package stats implements the streaming statistics core: single-pass
// mean/variance, adaptive exponential smoothing, online regression, interval
// tracking, anomaly classification, forecast feedback, confidence scoring,
// trend classification, and yield profiling. Everything here is a pure
// function over the record structs; persistence and orchestration live in
// the database, handlers, and app packages.
package stats

import (
	"math"
	"time"

	models "farmpulse/database/models_pkg"
)

// Adaptive EWMA alpha selection
const (
	alphaYoungPair   = 0.40 // fewer than 5 observations: chase the signal
	alphaSlowCadence = 0.15 // avg interval > 10 days: smooth heavily
	alphaDefault     = 0.25
	youngPairCount   = 5
	slowCadenceDays  = 10.0
)

// SampleStddev returns the sample standard deviation for a Welford
// accumulator, 0 for fewer than two observations.
func SampleStddev(count int64, m2 float64) float64 {
	if count < 2 || m2 <= 0 {
		return 0
	}
	return math.Sqrt(m2 / float64(count-1))
}

// AdaptiveAlpha picks the smoothing factor for a pair based on how much
// history it has and how often the customer orders.
func AdaptiveAlpha(count int64, avgDaysBetweenOrders float64) float64 {
	if count < youngPairCount {
		return alphaYoungPair
	}
	if avgDaysBetweenOrders > slowCadenceDays {
		return alphaSlowCadence
	}
	return alphaDefault
}

// Observe applies one qualifying line-item observation to a customer-crop
// record: Welford mean/variance, regression sums, adaptive EWMA, forecast
// feedback, and the days-between-orders interval tracker, in that order.
//
// Observations MUST arrive in ascending chronological order for the pair;
// the regression x axis is the pair's own sequential order index, so an
// out-of-order replay silently corrupts the trend and the EWMA.
func Observe(s *models.CustomerCropStat, quantity float64, date time.Time) {
	priorEwma := s.Ewma
	priorCount := s.Count
	priorLast := s.LastOrderDate

	// Welford update
	s.Count++
	delta := quantity - s.Mean
	s.Mean += delta / float64(s.Count)
	delta2 := quantity - s.Mean
	s.M2 += delta * delta2
	if s.M2 < 0 {
		// Guard against floating drift; the invariant is m2 >= 0
		s.M2 = 0
	}

	// Regression sums, x = the new sequential index for this pair
	x := float64(s.Count)
	s.SumX += x
	s.SumY += quantity
	s.SumXY += x * quantity
	s.SumX2 += x * x

	// Adaptive EWMA, seeded on first observation
	s.EwmaAlpha = AdaptiveAlpha(s.Count, s.AvgDaysBetweenOrders)
	if priorCount == 0 {
		s.Ewma = quantity
	} else {
		s.Ewma = s.EwmaAlpha*quantity + (1-s.EwmaAlpha)*priorEwma
	}

	// Forecast feedback against the standing forecast that existed before
	// this observation
	if priorCount > 0 && quantity > 0 {
		percentError := math.Abs(quantity-priorEwma) / quantity * 100
		signedError := quantity - priorEwma
		s.TotalPredictions++
		s.SumAbsPercentError += percentError
		s.RunningBias = 0.3*signedError + 0.7*s.RunningBias
	}

	// Interval tracker: Welford over days between consecutive orders.
	// Same-timestamp lines (multiple items on one order) contribute nothing.
	if priorLast != nil {
		days := date.Sub(*priorLast).Hours() / 24
		if days > 0 {
			s.IntervalCount++
			d := days - s.AvgDaysBetweenOrders
			s.AvgDaysBetweenOrders += d / float64(s.IntervalCount)
			d2 := days - s.AvgDaysBetweenOrders
			s.IntervalM2 += d * d2
			s.IntervalStddev = SampleStddev(s.IntervalCount, s.IntervalM2)
		}
	}

	if s.FirstOrderDate == nil {
		first := date
		s.FirstOrderDate = &first
	}
	last := date
	s.LastOrderDate = &last
	s.LastQuantity = quantity
}

// DaysBetweenDates returns the whole calendar days from a to b in UTC.
// Calendar granularity keeps same-day re-runs of the nightly job
// byte-identical.
func DaysBetweenDates(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	at := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bt := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bt.Sub(at).Hours() / 24)
}
