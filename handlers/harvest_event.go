package handlers

import (
	"fmt"
	"log"
	"time"

	"farmpulse/database"
	"farmpulse/helpers"
	"farmpulse/realtime"
	"farmpulse/stats"
)

// HarvestEventHandler applies one recorded harvest to its crop's yield
// profile. Unlike the order path this stream rejects extreme observations:
// an outlier produces a yield_outlier alert and leaves the profile untouched.
type HarvestEventHandler struct {
	store         StatStore
	notifier      AlertNotifier
	broker        Broadcaster
	casRetryLimit int
}

// HarvestResult reports what one harvest event did
type HarvestResult struct {
	HarvestID    int64   `json:"harvest_id"`
	CropID       string  `json:"crop_id,omitempty"`
	SkipReason   string  `json:"skip_reason,omitempty"`
	Outlier      bool    `json:"outlier"`
	YieldPerTray float64 `json:"yield_per_tray"`
}

// NewHarvestEventHandler creates a harvest event handler
func NewHarvestEventHandler(store StatStore, notifier AlertNotifier, broker Broadcaster, casRetryLimit int) *HarvestEventHandler {
	if casRetryLimit <= 0 {
		casRetryLimit = defaultCASRetryLimit
	}
	return &HarvestEventHandler{
		store:         store,
		notifier:      notifier,
		broker:        broker,
		casRetryLimit: casRetryLimit,
	}
}

// ProcessHarvestID loads a harvest by feed id and applies it
func (h *HarvestEventHandler) ProcessHarvestID(harvestID int64) (*HarvestResult, error) {
	harvest, err := h.store.GetHarvestByID(harvestID)
	if err != nil {
		return nil, fmt.Errorf("load harvest %d: %w", harvestID, err)
	}
	return h.ProcessHarvest(harvest)
}

// ProcessHarvest applies one harvest. Rows logged before weighing are
// skipped with missing_yield_data and reported, not errored.
func (h *HarvestEventHandler) ProcessHarvest(harvest *database.Harvest) (*HarvestResult, error) {
	result := &HarvestResult{HarvestID: harvest.ID, CropID: harvest.CropID}

	if harvest.CropID == "" {
		result.SkipReason = stats.SkipMissingCropID
	} else if harvest.TotalYieldOz == nil || harvest.TrayCount <= 0 {
		result.SkipReason = stats.SkipMissingYieldData
	}
	if result.SkipReason != "" {
		log.Printf("⏭️  Harvest %d skipped: %s", harvest.ID, result.SkipReason)
		return result, nil
	}

	yieldPerTray := *harvest.TotalYieldOz / float64(harvest.TrayCount)
	result.YieldPerTray = yieldPerTray
	cropKey := stats.SanitizeKeyPart(harvest.CropID)

	profile, yieldResult, err := h.applyYield(cropKey, yieldPerTray, harvest.HarvestedAt)
	if err != nil {
		return result, err
	}

	if yieldResult.Outlier {
		result.Outlier = true
		h.emitOutlierAlert(harvest, cropKey, profile, yieldResult)
		return result, nil
	}

	if h.broker != nil {
		h.broker.Broadcast(realtime.EventYieldUpdated, profile)
	}
	return result, nil
}

// applyYield runs the read/gate/update/write cycle under optimistic
// concurrency. An outlier never writes, so it cannot conflict.
func (h *HarvestEventHandler) applyYield(cropKey string, yieldPerTray float64, date time.Time) (*database.YieldProfile, *stats.YieldResult, error) {
	var lastErr error

	for attempt := 0; attempt < h.casRetryLimit; attempt++ {
		profile, err := h.store.GetOrCreateYieldProfile(cropKey)
		if err != nil {
			return nil, nil, err
		}

		yieldResult := stats.ObserveYield(profile, yieldPerTray, date)
		if yieldResult.Outlier {
			return profile, &yieldResult, nil
		}

		err = h.store.UpdateYieldProfileCAS(profile)
		if err == nil {
			return profile, &yieldResult, nil
		}
		if err != database.ErrVersionConflict {
			return nil, nil, err
		}
		lastErr = err
	}

	return nil, nil, fmt.Errorf("gave up after %d version conflicts: %w", h.casRetryLimit, lastErr)
}

// emitOutlierAlert persists a yield_outlier alert and fans it out
func (h *HarvestEventHandler) emitOutlierAlert(harvest *database.Harvest, cropKey string, profile *database.YieldProfile, r *stats.YieldResult) {
	harvestID := harvest.ID
	low := profile.YieldMean - 3*profile.YieldStddev
	high := profile.YieldMean + 3*profile.YieldStddev

	alert := &database.Alert{
		CreatedAt:       time.Now(),
		Type:            "yield_outlier",
		Status:          "pending",
		CropKey:         cropKey,
		SourceHarvestID: &harvestID,
		Quantity:        r.YieldPerTray,
		ZScore:          r.ZScore,
		ExpectedLow:     low,
		ExpectedHigh:    high,
		Method:          stats.MethodZScore,
		Confidence:      stats.ConfidenceHigh,
	}

	if err := h.store.SaveAlert(alert); err != nil {
		log.Printf("⚠️  Failed to save yield outlier alert for %s: %v", cropKey, err)
		return
	}

	log.Printf("🌱 YIELD OUTLIER! %s | %s/tray outside %s-%s | Z-Score: %.2f",
		cropKey, helpers.FormatOz(r.YieldPerTray), helpers.FormatOz(low), helpers.FormatOz(high), r.ZScore)

	if h.notifier != nil {
		h.notifier.SendAlert(alert)
	}
	if h.broker != nil {
		h.broker.Broadcast(realtime.EventAlertCreated, alert)
	}
}
