package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"farmpulse/database"
	"farmpulse/realtime"
	"farmpulse/stats"
)

// BackfillJob rebuilds every derived record from the raw ledgers. It wipes
// the derived tables, replays the merged order history in chronological
// order through the same statistics core the feed uses, replays harvests,
// and bulk-writes the result. Two runs over the same ledgers produce
// byte-identical derived state apart from run ids and timestamps.
type BackfillJob struct {
	store       JobStore
	locker      Locker
	broadcaster Broadcaster
	chunkSize   int
	lockTTL     time.Duration
}

// BackfillReport summarizes one backfill run
type BackfillReport struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	PrimaryOrders int            `json:"primary_orders"`
	LegacyOrders  int            `json:"legacy_orders"`
	Duplicates    int            `json:"duplicates"`
	Skips         map[string]int `json:"skips"`

	OrdersApplied   int `json:"orders_applied"`
	ItemsApplied    int `json:"items_applied"`
	HarvestsRead    int `json:"harvests_read"`
	HarvestsApplied int `json:"harvests_applied"`

	StatsWritten    int `json:"stats_written"`
	ProfilesWritten int `json:"profiles_written"`
	AlertsCreated   int `json:"alerts_created"`
	MonthsWritten   int `json:"months_written"`

	AbortedPhase string `json:"aborted_phase,omitempty"`
	Skipped      bool   `json:"skipped"` // lock held by another run
}

// replayOrder is one merged ledger entry queued for chronological replay
type replayOrder struct {
	canonical *stats.CanonicalOrder
	primary   bool
	rowID     int64
}

// NewBackfillJob creates the destructive rebuild job
func NewBackfillJob(store JobStore, locker Locker, chunkSize int, lockTTL time.Duration) *BackfillJob {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &BackfillJob{
		store:     store,
		locker:    locker,
		chunkSize: chunkSize,
		lockTTL:   lockTTL,
	}
}

// SetBroadcaster wires the realtime broker so dashboard clients see a
// job_completed event with the run report
func (j *BackfillJob) SetBroadcaster(b Broadcaster) {
	j.broadcaster = b
}

// Run executes one full backfill. The wipe happens only after both ledgers
// have been read successfully, so a read failure leaves existing derived
// state in place.
func (j *BackfillJob) Run(ctx context.Context, now time.Time) (*BackfillReport, error) {
	report := &BackfillReport{
		RunID:     uuid.New().String(),
		StartedAt: now,
		Skips:     make(map[string]int),
	}

	if j.locker != nil {
		acquired, err := j.locker.AcquireLock(ctx, jobLockKey, report.RunID, j.lockTTL)
		if err != nil {
			log.Printf("⚠️  Backfill lock check failed, proceeding unguarded: %v", err)
		} else if !acquired {
			report.Skipped = true
			return report, fmt.Errorf("backfill skipped: another job holds the lock")
		} else {
			defer func() {
				if err := j.locker.ReleaseLock(ctx, jobLockKey, report.RunID); err != nil {
					log.Printf("⚠️  Failed to release job lock: %v", err)
				}
			}()
		}
	}

	log.Printf("🔄 Backfill started (run %s)", report.RunID)
	start := time.Now()

	// 1. Read both ledgers before touching anything
	replay, err := j.loadAndMergeOrders(report)
	if err != nil {
		return report, err
	}
	harvests, err := j.store.GetAllHarvests()
	if err != nil {
		return report, fmt.Errorf("read harvests: %w", err)
	}
	report.HarvestsRead = len(harvests)

	// 2. Destructive wipe
	if err := j.store.WipeDerivedState(); err != nil {
		return report, fmt.Errorf("wipe derived state: %w", err)
	}

	// 3. In-memory replay
	state := newReplayState()
	j.replayOrders(replay, state, report)
	j.replayHarvests(harvests, state, report)

	// 4. Presentation pass and dashboard accumulation
	builder := newDashboardBuilder()
	statRows := state.sortedStats()
	for i := range statRows {
		stats.RefreshPresentation(&statRows[i], now)
		builder.add(&statRows[i])
	}

	// 5. Bulk writes; any chunk failure aborts with partial progress reported
	if err := j.writeDerived(statRows, state, builder, now, report); err != nil {
		return report, err
	}

	// 6. Bookkeeping
	j.writeSystemState(now, replay, report)

	report.Duration = time.Since(start)
	log.Printf("✅ Backfill finished in %v: %d orders (%d dup, %d skipped), %d stats, %d profiles, %d alerts",
		report.Duration.Round(time.Millisecond), report.OrdersApplied, report.Duplicates,
		totalSkips(report.Skips), report.StatsWritten, report.ProfilesWritten, report.AlertsCreated)

	if j.broadcaster != nil {
		j.broadcaster.Broadcast(realtime.EventJobCompleted, map[string]interface{}{
			"job":    "backfill",
			"report": report,
		})
	}

	return report, nil
}

// loadAndMergeOrders reads both ledgers, normalizes, deduplicates by
// external id preferring the primary ledger, and sorts chronologically
// with the external id as tiebreaker so replay order is deterministic.
func (j *BackfillJob) loadAndMergeOrders(report *BackfillReport) ([]replayOrder, error) {
	orders, err := j.store.GetAllOrders()
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	report.PrimaryOrders = len(orders)

	legacy, err := j.store.GetAllLegacyOrders()
	if err != nil {
		return nil, fmt.Errorf("read legacy orders: %w", err)
	}
	report.LegacyOrders = len(legacy)

	byExternalID := make(map[string]replayOrder)
	var keys []string

	add := func(entry replayOrder) {
		key := entry.canonical.ExternalID
		if key == "" {
			// No cross-ledger identity, so nothing to deduplicate against
			key = fmt.Sprintf("row:%t:%d", entry.primary, entry.rowID)
			entry.canonical.ExternalID = key
		}
		existing, seen := byExternalID[key]
		if !seen {
			byExternalID[key] = entry
			keys = append(keys, key)
			return
		}
		report.Duplicates++
		if entry.primary && !existing.primary {
			byExternalID[key] = entry
		}
	}

	for i := range orders {
		canonical, skip := stats.NormalizeOrder(&orders[i])
		if skip != "" {
			report.Skips[skip]++
			continue
		}
		add(replayOrder{canonical: canonical, primary: true, rowID: orders[i].ID})
	}
	for i := range legacy {
		canonical, skip := stats.NormalizeLegacyOrder(&legacy[i])
		if skip != "" {
			report.Skips[skip]++
			continue
		}
		add(replayOrder{canonical: canonical, primary: false, rowID: legacy[i].ID})
	}

	merged := make([]replayOrder, 0, len(keys))
	for _, key := range keys {
		merged = append(merged, byExternalID[key])
	}
	sort.Slice(merged, func(a, b int) bool {
		if !merged[a].canonical.Date.Equal(merged[b].canonical.Date) {
			return merged[a].canonical.Date.Before(merged[b].canonical.Date)
		}
		return merged[a].canonical.ExternalID < merged[b].canonical.ExternalID
	})
	return merged, nil
}

// replayState accumulates the whole derived world in memory
type replayState struct {
	stats     map[string]*database.CustomerCropStat
	profiles  map[string]*database.YieldProfile
	buckets   map[string]*database.DailyBucket
	cropQty   map[string]map[string]float64 // date -> crop -> qty
	custOrder map[string]map[string]int64   // date -> customer -> orders
	alerts    []database.Alert
}

func newReplayState() *replayState {
	return &replayState{
		stats:     make(map[string]*database.CustomerCropStat),
		profiles:  make(map[string]*database.YieldProfile),
		buckets:   make(map[string]*database.DailyBucket),
		cropQty:   make(map[string]map[string]float64),
		custOrder: make(map[string]map[string]int64),
	}
}

func (s *replayState) sortedStats() []database.CustomerCropStat {
	keys := make([]string, 0, len(s.stats))
	for k := range s.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]database.CustomerCropStat, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.stats[k])
	}
	return out
}

// replayOrders folds the merged history through the statistics core, using
// the same detect-then-observe order as the real-time handler so backfilled
// alerts match what live processing would have produced.
func (j *BackfillJob) replayOrders(replay []replayOrder, state *replayState, report *BackfillReport) {
	for _, entry := range replay {
		canonical := entry.canonical
		bucketDate := canonical.Date.UTC().Format("2006-01-02")

		for _, item := range canonical.Items {
			statKey := stats.StatKey(canonical.CustomerKey, item.CropKey)
			stat, ok := state.stats[statKey]
			if !ok {
				stat = &database.CustomerCropStat{
					StatKey:     statKey,
					CustomerKey: canonical.CustomerKey,
					CropKey:     item.CropKey,
				}
				state.stats[statKey] = stat
			}

			assessment := stats.DetectAnomaly(stat, item.Quantity)
			stats.Observe(stat, item.Quantity, canonical.Date)
			report.ItemsApplied++

			if assessment.IsAnomaly {
				alert := database.Alert{
					CreatedAt:    canonical.Date,
					Type:         "order_anomaly",
					Status:       "pending",
					StatKey:      statKey,
					CustomerKey:  canonical.CustomerKey,
					CropKey:      item.CropKey,
					Quantity:     item.Quantity,
					ZScore:       assessment.ZScore,
					ExpectedLow:  assessment.ExpectedLow,
					ExpectedHigh: assessment.ExpectedHigh,
					Method:       assessment.Method,
					Confidence:   assessment.Confidence,
				}
				if entry.primary {
					rowID := entry.rowID
					alert.SourceOrderID = &rowID
				}
				state.alerts = append(state.alerts, alert)
			}

			qty := state.cropQty[bucketDate]
			if qty == nil {
				qty = make(map[string]float64)
				state.cropQty[bucketDate] = qty
			}
			qty[item.CropKey] += item.Quantity
		}

		bucket, ok := state.buckets[bucketDate]
		if !ok {
			bucket = &database.DailyBucket{BucketDate: bucketDate}
			state.buckets[bucketDate] = bucket
		}
		bucket.OrderCount++
		bucket.TotalRevenue += canonical.Total

		custs := state.custOrder[bucketDate]
		if custs == nil {
			custs = make(map[string]int64)
			state.custOrder[bucketDate] = custs
		}
		custs[canonical.CustomerKey]++

		report.OrdersApplied++
	}
}

// replayHarvests folds the harvest ledger through the yield tracker with
// the same outlier gate the feed path applies
func (j *BackfillJob) replayHarvests(harvests []database.Harvest, state *replayState, report *BackfillReport) {
	sort.Slice(harvests, func(a, b int) bool {
		if !harvests[a].HarvestedAt.Equal(harvests[b].HarvestedAt) {
			return harvests[a].HarvestedAt.Before(harvests[b].HarvestedAt)
		}
		return harvests[a].ID < harvests[b].ID
	})

	for i := range harvests {
		h := &harvests[i]
		if h.CropID == "" {
			report.Skips[stats.SkipMissingCropID]++
			continue
		}
		if h.TotalYieldOz == nil || h.TrayCount <= 0 {
			report.Skips[stats.SkipMissingYieldData]++
			continue
		}

		cropKey := stats.SanitizeKeyPart(h.CropID)
		profile, ok := state.profiles[cropKey]
		if !ok {
			profile = &database.YieldProfile{CropID: cropKey}
			state.profiles[cropKey] = profile
		}

		yieldPerTray := *h.TotalYieldOz / float64(h.TrayCount)
		result := stats.ObserveYield(profile, yieldPerTray, h.HarvestedAt)
		if result.Outlier {
			harvestID := h.ID
			state.alerts = append(state.alerts, database.Alert{
				CreatedAt:       h.HarvestedAt,
				Type:            "yield_outlier",
				Status:          "pending",
				CropKey:         cropKey,
				SourceHarvestID: &harvestID,
				Quantity:        yieldPerTray,
				ZScore:          result.ZScore,
				ExpectedLow:     profile.YieldMean - 3*profile.YieldStddev,
				ExpectedHigh:    profile.YieldMean + 3*profile.YieldStddev,
				Method:          stats.MethodZScore,
				Confidence:      stats.ConfidenceHigh,
			})
			continue
		}
		report.HarvestsApplied++
	}
}

// writeDerived bulk-writes the replayed state. The first failing phase
// aborts the run; the report names it so the operator knows what landed.
func (j *BackfillJob) writeDerived(statRows []database.CustomerCropStat, state *replayState, builder *dashboardBuilder, now time.Time, report *BackfillReport) error {
	if err := j.store.SaveStats(statRows, j.chunkSize); err != nil {
		report.AbortedPhase = "stats"
		return fmt.Errorf("write stats: %w", err)
	}
	report.StatsWritten = len(statRows)

	profiles := make([]database.YieldProfile, 0, len(state.profiles))
	profileKeys := make([]string, 0, len(state.profiles))
	for k := range state.profiles {
		profileKeys = append(profileKeys, k)
	}
	sort.Strings(profileKeys)
	for _, k := range profileKeys {
		profiles = append(profiles, *state.profiles[k])
	}
	if err := j.store.SaveYieldProfiles(profiles, j.chunkSize); err != nil {
		report.AbortedPhase = "yield_profiles"
		return fmt.Errorf("write yield profiles: %w", err)
	}
	report.ProfilesWritten = len(profiles)

	buckets, cropRows, customerRows := state.bucketRows()
	if err := j.store.SaveDailyBuckets(buckets, cropRows, customerRows, j.chunkSize); err != nil {
		report.AbortedPhase = "daily_buckets"
		return fmt.Errorf("write daily buckets: %w", err)
	}

	summaries := state.monthlySummaries()
	if err := j.store.UpsertMonthlySummaries(summaries, j.chunkSize); err != nil {
		report.AbortedPhase = "monthly_summaries"
		return fmt.Errorf("write monthly summaries: %w", err)
	}
	report.MonthsWritten = len(summaries)

	if err := j.store.SaveAlerts(state.alerts, j.chunkSize); err != nil {
		report.AbortedPhase = "alerts"
		return fmt.Errorf("write alerts: %w", err)
	}
	report.AlertsCreated = len(state.alerts)

	trailingRevenue := state.revenueSince(now.UTC().AddDate(0, 0, -28).Format("2006-01-02"))
	snapshot := builder.snapshot(now, int64(len(state.alerts)), trailingRevenue)
	if err := j.store.SaveDashboard(snapshot); err != nil {
		report.AbortedPhase = "dashboard"
		return fmt.Errorf("write dashboard: %w", err)
	}
	return nil
}

// bucketRows flattens the bucket maps into sorted rows
func (s *replayState) bucketRows() ([]database.DailyBucket, []database.DailyCropQuantity, []database.DailyCustomerOrder) {
	dates := make([]string, 0, len(s.buckets))
	for d := range s.buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	buckets := make([]database.DailyBucket, 0, len(dates))
	var cropRows []database.DailyCropQuantity
	var customerRows []database.DailyCustomerOrder

	for _, d := range dates {
		buckets = append(buckets, *s.buckets[d])

		crops := make([]string, 0, len(s.cropQty[d]))
		for c := range s.cropQty[d] {
			crops = append(crops, c)
		}
		sort.Strings(crops)
		for _, c := range crops {
			cropRows = append(cropRows, database.DailyCropQuantity{
				BucketDate: d, CropKey: c, Quantity: s.cropQty[d][c],
			})
		}

		customers := make([]string, 0, len(s.custOrder[d]))
		for c := range s.custOrder[d] {
			customers = append(customers, c)
		}
		sort.Strings(customers)
		for _, c := range customers {
			customerRows = append(customerRows, database.DailyCustomerOrder{
				BucketDate: d, CustomerKey: c, OrderCount: s.custOrder[d][c],
			})
		}
	}
	return buckets, cropRows, customerRows
}

// monthlySummaries derives the monthly rollups from the in-memory buckets,
// producing the same JSON shapes as the SQL aggregation the nightly job uses
func (s *replayState) monthlySummaries() []database.MonthlySummary {
	type monthAgg struct {
		orders    int64
		revenue   float64
		crops     map[string]float64
		customers map[string]int64
	}
	months := make(map[string]*monthAgg)

	aggFor := func(date string) *monthAgg {
		month := date[:7]
		agg, ok := months[month]
		if !ok {
			agg = &monthAgg{crops: make(map[string]float64), customers: make(map[string]int64)}
			months[month] = agg
		}
		return agg
	}

	for date, bucket := range s.buckets {
		agg := aggFor(date)
		agg.orders += bucket.OrderCount
		agg.revenue += bucket.TotalRevenue
	}
	for date, crops := range s.cropQty {
		agg := aggFor(date)
		for crop, qty := range crops {
			agg.crops[crop] += qty
		}
	}
	for date, customers := range s.custOrder {
		agg := aggFor(date)
		for customer, n := range customers {
			agg.customers[customer] += n
		}
	}

	keys := make([]string, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Strings(keys)

	out := make([]database.MonthlySummary, 0, len(keys))
	for _, month := range keys {
		agg := months[month]
		summary := database.MonthlySummary{
			Month:           month,
			TotalOrders:     agg.orders,
			TotalRevenue:    agg.revenue,
			UniqueCustomers: len(agg.customers),
		}
		if agg.orders > 0 {
			summary.AvgOrderValue = agg.revenue / float64(agg.orders)
		}

		crops := make([]database.CropQuantityRow, 0, len(agg.crops))
		for crop, qty := range agg.crops {
			crops = append(crops, database.CropQuantityRow{CropKey: crop, Quantity: qty})
		}
		database.SortCropRows(crops)
		if raw, err := json.Marshal(crops); err == nil {
			summary.CropBreakdown = string(raw)
		}

		top := make([]database.CustomerOrderRow, 0, len(agg.customers))
		for customer, n := range agg.customers {
			top = append(top, database.CustomerOrderRow{CustomerKey: customer, OrderCount: n})
		}
		sort.Slice(top, func(a, b int) bool {
			if top[a].OrderCount != top[b].OrderCount {
				return top[a].OrderCount > top[b].OrderCount
			}
			return top[a].CustomerKey < top[b].CustomerKey
		})
		if len(top) > 5 {
			top = top[:5]
		}
		if raw, err := json.Marshal(top); err == nil {
			summary.TopCustomers = string(raw)
		}

		out = append(out, summary)
	}
	return out
}

// revenueSince sums bucket revenue from a date forward
func (s *replayState) revenueSince(fromDate string) float64 {
	total := 0.0
	for date, bucket := range s.buckets {
		if date >= fromDate {
			total += bucket.TotalRevenue
		}
	}
	return total
}

// writeSystemState records the run and the ledger bounds
func (j *BackfillJob) writeSystemState(now time.Time, replay []replayOrder, report *BackfillReport) {
	state, err := j.store.GetSystemState()
	if err != nil {
		log.Printf("⚠️  Failed to load system state: %v", err)
		return
	}
	state.LastBackfillAt = &now
	state.LastBackfillRunID = report.RunID
	state.OrdersProcessed = int64(report.OrdersApplied)
	if len(replay) > 0 {
		first := replay[0].canonical.Date
		last := replay[len(replay)-1].canonical.Date
		state.LedgerStart = &first
		state.LedgerEnd = &last
	}
	if err := j.store.SaveSystemState(state); err != nil {
		log.Printf("⚠️  Failed to save system state: %v", err)
	}
}

func totalSkips(skips map[string]int) int {
	total := 0
	for _, n := range skips {
		total += n
	}
	return total
}
