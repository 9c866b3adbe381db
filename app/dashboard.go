package app

import (
	"encoding/json"
	"sort"
	"time"

	"farmpulse/database"
	"farmpulse/stats"
)

const topCropsLimit = 8

// CropVolume is one crop's projected demand aggregated across customers
type CropVolume struct {
	CropKey         string  `json:"crop_key"`
	ProjectedVolume float64 `json:"projected_volume"` // sum of mean * count
	CustomerPairs   int     `json:"customer_pairs"`
}

// healthCounts tallies distinct customers by their best activity flag:
// a customer with any active pair is active, one with only churned pairs
// is churned, everyone else is at risk.
type healthCounts struct {
	Active  int `json:"active"`
	AtRisk  int `json:"at_risk"`
	Churned int `json:"churned"`
}

// confidenceCounts tallies pairs by confidence level
type confidenceCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// dashboardBuilder accumulates dashboard inputs during a stat scan so the
// nightly job and the backfill share one snapshot construction path.
type dashboardBuilder struct {
	crops         map[string]*CropVolume
	customerFlags map[string]string
	confidence    confidenceCounts
	confidenceSum float64
	mapeSum       float64
	mapeCount     int
	pairs         int
}

func newDashboardBuilder() *dashboardBuilder {
	return &dashboardBuilder{
		crops:         make(map[string]*CropVolume),
		customerFlags: make(map[string]string),
	}
}

// add folds one customer-crop record into the accumulators
func (b *dashboardBuilder) add(s *database.CustomerCropStat) {
	b.pairs++

	crop, ok := b.crops[s.CropKey]
	if !ok {
		crop = &CropVolume{CropKey: s.CropKey}
		b.crops[s.CropKey] = crop
	}
	crop.ProjectedVolume += s.Mean * float64(s.Count)
	crop.CustomerPairs++

	b.customerFlags[s.CustomerKey] = betterFlag(b.customerFlags[s.CustomerKey], s.ActivityFlag)

	switch s.ConfidenceLevel {
	case stats.LevelHigh:
		b.confidence.High++
	case stats.LevelMedium:
		b.confidence.Medium++
	default:
		b.confidence.Low++
	}
	b.confidenceSum += float64(s.Confidence)

	if s.TotalPredictions > 0 {
		b.mapeSum += s.Mape
		b.mapeCount++
	}
}

// betterFlag keeps the healthiest flag seen for a customer
func betterFlag(current, incoming string) string {
	rank := func(f string) int {
		switch f {
		case stats.ActivityActive:
			return 3
		case stats.ActivityAtRisk:
			return 2
		case stats.ActivityChurned:
			return 1
		}
		return 0
	}
	if rank(incoming) > rank(current) {
		return incoming
	}
	return current
}

// snapshot assembles the final dashboard record
func (b *dashboardBuilder) snapshot(now time.Time, pendingAlerts int64, trailingRevenue float64) *database.DashboardSnapshot {
	topCrops := make([]CropVolume, 0, len(b.crops))
	for _, c := range b.crops {
		topCrops = append(topCrops, *c)
	}
	sort.Slice(topCrops, func(i, j int) bool {
		if topCrops[i].ProjectedVolume != topCrops[j].ProjectedVolume {
			return topCrops[i].ProjectedVolume > topCrops[j].ProjectedVolume
		}
		return topCrops[i].CropKey < topCrops[j].CropKey
	})
	if len(topCrops) > topCropsLimit {
		topCrops = topCrops[:topCropsLimit]
	}

	var health healthCounts
	for _, flag := range b.customerFlags {
		switch flag {
		case stats.ActivityActive:
			health.Active++
		case stats.ActivityChurned:
			health.Churned++
		default:
			health.AtRisk++
		}
	}

	snapshot := &database.DashboardSnapshot{
		ID:                      1,
		GeneratedAt:             now,
		TrailingFourWeekRevenue: trailingRevenue,
		ActiveCustomers:         health.Active,
		AtRiskCustomers:         health.AtRisk,
		ChurnedCustomers:        health.Churned,
		PendingAlerts:           pendingAlerts,
	}

	if raw, err := json.Marshal(topCrops); err == nil {
		snapshot.TopCrops = string(raw)
	}
	if raw, err := json.Marshal(health); err == nil {
		snapshot.CustomerHealth = string(raw)
	}
	if raw, err := json.Marshal(b.confidence); err == nil {
		snapshot.ConfidenceDistribution = string(raw)
	}
	if b.pairs > 0 {
		snapshot.AvgConfidence = b.confidenceSum / float64(b.pairs)
	}
	if b.mapeCount > 0 {
		snapshot.AvgMape = b.mapeSum / float64(b.mapeCount)
	}

	return snapshot
}
