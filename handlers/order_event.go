package handlers

import (
	"fmt"
	"log"
	"time"

	"farmpulse/database"
	"farmpulse/realtime"
	"farmpulse/stats"
)

const defaultCASRetryLimit = 5

// OrderEventHandler applies one recorded order to the statistics core.
// It normalizes the order, runs anomaly detection against the pre-update
// record, folds every qualifying line item into its customer-crop stat under
// optimistic concurrency, and bumps the daily rollup counters.
type OrderEventHandler struct {
	store         StatStore
	notifier      AlertNotifier
	broker        Broadcaster
	casRetryLimit int
}

// OrderResult reports what one order event did
type OrderResult struct {
	OrderID        int64    `json:"order_id"`
	SkipReason     string   `json:"skip_reason,omitempty"`
	ItemsProcessed int      `json:"items_processed"`
	AlertsCreated  int      `json:"alerts_created"`
	StatKeys       []string `json:"stat_keys,omitempty"`
}

// NewOrderEventHandler creates an order event handler
func NewOrderEventHandler(store StatStore, notifier AlertNotifier, broker Broadcaster, casRetryLimit int) *OrderEventHandler {
	if casRetryLimit <= 0 {
		casRetryLimit = defaultCASRetryLimit
	}
	return &OrderEventHandler{
		store:         store,
		notifier:      notifier,
		broker:        broker,
		casRetryLimit: casRetryLimit,
	}
}

// ProcessOrderID loads an order by feed id and applies it
func (h *OrderEventHandler) ProcessOrderID(orderID int64) (*OrderResult, error) {
	order, err := h.store.GetOrderByID(orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	return h.ProcessOrder(order)
}

// ProcessOrder applies one order. A skip is a normal outcome, not an error:
// the result carries the structured reason and nothing is written.
func (h *OrderEventHandler) ProcessOrder(order *database.Order) (*OrderResult, error) {
	result := &OrderResult{OrderID: order.ID}

	canonical, skipReason := stats.NormalizeOrder(order)
	if skipReason != "" {
		result.SkipReason = skipReason
		log.Printf("⏭️  Order %d skipped: %s", order.ID, skipReason)
		if h.broker != nil {
			h.broker.Broadcast(realtime.EventOrderSkipped, result)
		}
		return result, nil
	}

	for _, item := range canonical.Items {
		statKey := stats.StatKey(canonical.CustomerKey, item.CropKey)

		updated, assessment, err := h.applyItem(statKey, canonical, item)
		if err != nil {
			return result, fmt.Errorf("apply item %s: %w", statKey, err)
		}

		result.ItemsProcessed++
		result.StatKeys = append(result.StatKeys, statKey)

		if assessment != nil && assessment.IsAnomaly {
			if h.emitAnomalyAlert(order, canonical, item, statKey, assessment) {
				result.AlertsCreated++
			}
		}

		if h.broker != nil {
			h.broker.Broadcast(realtime.EventStatUpdated, updated)
		}
	}

	if err := h.incrementBuckets(canonical); err != nil {
		// Counters are best-effort per event; the nightly recompute cannot
		// repair them but the backfill can, so log loudly and keep going.
		log.Printf("⚠️  Failed to increment daily buckets for order %d: %v", order.ID, err)
	}

	return result, nil
}

// applyItem runs the read/detect/update/write cycle for one line item,
// retrying on version conflicts. Anomaly detection always sees the record
// as it was before this observation.
func (h *OrderEventHandler) applyItem(statKey string, order *stats.CanonicalOrder, item stats.CanonicalItem) (*database.CustomerCropStat, *stats.Assessment, error) {
	var lastErr error

	for attempt := 0; attempt < h.casRetryLimit; attempt++ {
		stat, err := h.store.GetOrCreateStat(statKey, order.CustomerKey, item.CropKey)
		if err != nil {
			return nil, nil, err
		}

		assessment := stats.DetectAnomaly(stat, item.Quantity)

		stats.Observe(stat, item.Quantity, order.Date)
		stats.RefreshPresentation(stat, time.Now())

		err = h.store.UpdateStatCAS(stat)
		if err == nil {
			return stat, &assessment, nil
		}
		if err != database.ErrVersionConflict {
			return nil, nil, err
		}
		lastErr = err
	}

	return nil, nil, fmt.Errorf("gave up after %d version conflicts: %w", h.casRetryLimit, lastErr)
}

// emitAnomalyAlert persists an order_anomaly alert and fans it out
func (h *OrderEventHandler) emitAnomalyAlert(order *database.Order, canonical *stats.CanonicalOrder, item stats.CanonicalItem, statKey string, a *stats.Assessment) bool {
	orderID := order.ID
	alert := &database.Alert{
		CreatedAt:     time.Now(),
		Type:          "order_anomaly",
		Status:        "pending",
		StatKey:       statKey,
		CustomerKey:   canonical.CustomerKey,
		CropKey:       item.CropKey,
		SourceOrderID: &orderID,
		Quantity:      item.Quantity,
		ZScore:        a.ZScore,
		ExpectedLow:   a.ExpectedLow,
		ExpectedHigh:  a.ExpectedHigh,
		Method:        a.Method,
		Confidence:    a.Confidence,
	}

	if err := h.store.SaveAlert(alert); err != nil {
		log.Printf("⚠️  Failed to save anomaly alert for %s: %v", statKey, err)
		return false
	}

	log.Printf("📦 ORDER ANOMALY! %s %s | Qty: %.1f expected %.1f-%.1f | %s (%s)",
		canonical.CustomerKey, item.CropKey, item.Quantity,
		a.ExpectedLow, a.ExpectedHigh, a.Method, a.Confidence)

	if h.notifier != nil {
		h.notifier.SendAlert(alert)
	}
	if h.broker != nil {
		h.broker.Broadcast(realtime.EventAlertCreated, alert)
	}
	return true
}

// incrementBuckets bumps the daily rollup counters for one absorbed order
func (h *OrderEventHandler) incrementBuckets(order *stats.CanonicalOrder) error {
	bucketDate := order.Date.UTC().Format("2006-01-02")

	if err := h.store.IncrementDailyBucket(bucketDate, order.Total); err != nil {
		return err
	}
	if err := h.store.IncrementDailyCustomerOrder(bucketDate, order.CustomerKey); err != nil {
		return err
	}
	for _, item := range order.Items {
		if err := h.store.IncrementDailyCropQuantity(bucketDate, item.CropKey, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}
