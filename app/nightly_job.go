package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"farmpulse/database"
	"farmpulse/helpers"
	"farmpulse/realtime"
	"farmpulse/stats"
)

// NightlyJob recomputes every derived presentation field from the stored
// accumulators: confidence, trend, activity flags, bias-adjusted forecasts,
// monthly summaries, and the dashboard snapshot. It never touches the
// accumulators themselves, so running it twice in the same day is a no-op
// the second time.
type NightlyJob struct {
	store         JobStore
	locker        Locker
	broadcaster   Broadcaster
	batchSize     int
	casRetryLimit int
	lockTTL       time.Duration
}

// NightlyReport summarizes one nightly run
type NightlyReport struct {
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	StatsScanned     int           `json:"stats_scanned"`
	StatsUpdated     int           `json:"stats_updated"`
	VersionConflicts int           `json:"version_conflicts"`
	MonthsRecomputed int           `json:"months_recomputed"`
	ActiveCustomers  int           `json:"active_customers"`
	AtRiskCustomers  int           `json:"at_risk_customers"`
	ChurnedCustomers int           `json:"churned_customers"`
	PendingAlerts    int64         `json:"pending_alerts"`
	ChunkErrors      int           `json:"chunk_errors"`
	ScanAborted      bool          `json:"scan_aborted,omitempty"`
	Skipped          bool          `json:"skipped"` // lock held by another run
}

// maxConsecutiveScanFailures bounds the stat-scan phase when the store keeps
// erroring: after this many back-to-back failed reads the phase is abandoned
// so the run still terminates and the later phases get their chance.
const maxConsecutiveScanFailures = 3

// NewNightlyJob creates the nightly recompute job
func NewNightlyJob(store JobStore, locker Locker, batchSize, casRetryLimit int, lockTTL time.Duration) *NightlyJob {
	if batchSize <= 0 {
		batchSize = 500
	}
	if casRetryLimit <= 0 {
		casRetryLimit = 5
	}
	return &NightlyJob{
		store:         store,
		locker:        locker,
		batchSize:     batchSize,
		casRetryLimit: casRetryLimit,
		lockTTL:       lockTTL,
	}
}

// SetBroadcaster wires the realtime broker so dashboard clients see a
// job_completed event with the run report
func (j *NightlyJob) SetBroadcaster(b Broadcaster) {
	j.broadcaster = b
}

// Run executes one nightly recompute. now is injected so scores and flags
// are consistent across the whole run, and so re-running within the same
// day recomputes identical values.
func (j *NightlyJob) Run(ctx context.Context, now time.Time) (*NightlyReport, error) {
	report := &NightlyReport{
		RunID:     uuid.New().String(),
		StartedAt: now,
	}

	if j.locker != nil {
		acquired, err := j.locker.AcquireLock(ctx, jobLockKey, report.RunID, j.lockTTL)
		if err != nil {
			log.Printf("⚠️  Nightly job lock check failed, proceeding unguarded: %v", err)
		} else if !acquired {
			log.Println("⏭️  Nightly job skipped: another job holds the lock")
			report.Skipped = true
			return report, nil
		} else {
			defer func() {
				if err := j.locker.ReleaseLock(ctx, jobLockKey, report.RunID); err != nil {
					log.Printf("⚠️  Failed to release job lock: %v", err)
				}
			}()
		}
	}

	log.Printf("🌙 Nightly recompute started (run %s)", report.RunID)
	start := time.Now()

	builder := newDashboardBuilder()
	j.refreshStats(now, report, builder)
	j.recomputeMonthlySummaries(report)
	j.rebuildDashboard(now, report, builder)
	j.touchSystemState(now, report)

	report.Duration = time.Since(start)
	log.Printf("✅ Nightly recompute finished in %v: %d scanned, %d updated, %d conflicts, %d months, %d errors",
		report.Duration.Round(time.Millisecond), report.StatsScanned, report.StatsUpdated,
		report.VersionConflicts, report.MonthsRecomputed, report.ChunkErrors)

	if j.broadcaster != nil {
		j.broadcaster.Broadcast(realtime.EventJobCompleted, map[string]interface{}{
			"job":    "nightly",
			"report": report,
		})
	}

	return report, nil
}

// refreshStats pages through every record, rewrites its presentation
// fields, and writes back only the rows whose fields actually changed.
// A failing page is logged and skipped; repeated back-to-back failures
// abort the phase so a dead store cannot spin the scan forever.
func (j *NightlyJob) refreshStats(now time.Time, report *NightlyReport, builder *dashboardBuilder) {
	if total, err := j.store.CountStats(); err == nil {
		log.Printf("🔍 Scanning %d customer-crop records", total)
	}

	offset := 0
	consecutiveFailures := 0
	for {
		batch, err := j.store.GetStatsBatch(offset, j.batchSize)
		if err != nil {
			log.Printf("⚠️  Nightly scan failed at offset %d: %v", offset, err)
			report.ChunkErrors++
			consecutiveFailures++
			if consecutiveFailures >= maxConsecutiveScanFailures {
				log.Printf("⚠️  Nightly scan aborted after %d consecutive read failures", consecutiveFailures)
				report.ScanAborted = true
				return
			}
			offset += j.batchSize
			continue
		}
		consecutiveFailures = 0
		if len(batch) == 0 {
			return
		}

		for i := range batch {
			stat := &batch[i]
			report.StatsScanned++

			before := presentationFingerprint(stat)
			stats.RefreshPresentation(stat, now)
			if presentationFingerprint(stat) == before {
				builder.add(stat)
				continue
			}

			if err := j.writeStat(stat, now, report); err != nil {
				log.Printf("⚠️  Failed to refresh %s: %v", stat.StatKey, err)
				report.ChunkErrors++
			} else {
				report.StatsUpdated++
			}
			builder.add(stat)
		}

		if len(batch) < j.batchSize {
			return
		}
		offset += j.batchSize
	}
}

// writeStat writes one refreshed record, re-reading and re-refreshing on
// version conflicts so a concurrent feed event is never overwritten.
func (j *NightlyJob) writeStat(stat *database.CustomerCropStat, now time.Time, report *NightlyReport) error {
	err := j.store.UpdateStatCAS(stat)
	for attempt := 0; err == database.ErrVersionConflict && attempt < j.casRetryLimit; attempt++ {
		report.VersionConflicts++
		fresh, getErr := j.store.GetStat(stat.StatKey)
		if getErr != nil {
			return getErr
		}
		stats.RefreshPresentation(fresh, now)
		*stat = *fresh
		err = j.store.UpdateStatCAS(stat)
	}
	return err
}

// presentationFingerprint captures the derived fields for change detection
func presentationFingerprint(s *database.CustomerCropStat) string {
	return fmt.Sprintf("%d|%s|%s|%s|%.6f|%.4f|%.4f|%t|%.4f|%s|%d",
		s.Confidence, s.ConfidenceLevel, s.ConfidenceComponents,
		s.Trend, s.TrendSlope, s.TrendWeeklyChangePct,
		s.AdjustedEwma, s.BiasCorrected, s.Mape,
		s.ActivityFlag, s.DaysSinceLastOrder)
}

// recomputeMonthlySummaries rebuilds every month present in the buckets
func (j *NightlyJob) recomputeMonthlySummaries(report *NightlyReport) {
	months, err := j.store.ListMonths()
	if err != nil {
		log.Printf("⚠️  Failed to list months: %v", err)
		report.ChunkErrors++
		return
	}

	summaries := make([]database.MonthlySummary, 0, len(months))
	for _, month := range months {
		summary, err := j.store.AggregateMonth(month)
		if err != nil {
			log.Printf("⚠️  Failed to aggregate month %s: %v", month, err)
			report.ChunkErrors++
			continue
		}
		summaries = append(summaries, *summary)
	}

	if err := j.store.UpsertMonthlySummaries(summaries, j.batchSize); err != nil {
		log.Printf("⚠️  Failed to write monthly summaries: %v", err)
		report.ChunkErrors++
		return
	}
	report.MonthsRecomputed = len(summaries)
}

// rebuildDashboard writes the singleton snapshot from the scan accumulators
func (j *NightlyJob) rebuildDashboard(now time.Time, report *NightlyReport, builder *dashboardBuilder) {
	pendingAlerts, err := j.store.CountPendingAlerts()
	if err != nil {
		log.Printf("⚠️  Failed to count pending alerts: %v", err)
		report.ChunkErrors++
	}

	fourWeeksAgo := now.UTC().AddDate(0, 0, -28).Format("2006-01-02")
	trailingRevenue, err := j.store.GetRevenueSince(fourWeeksAgo)
	if err != nil {
		log.Printf("⚠️  Failed to compute trailing revenue: %v", err)
		report.ChunkErrors++
	}

	snapshot := builder.snapshot(now, pendingAlerts, trailingRevenue)
	if err := j.store.SaveDashboard(snapshot); err != nil {
		log.Printf("⚠️  Failed to save dashboard snapshot: %v", err)
		report.ChunkErrors++
	}

	report.ActiveCustomers = snapshot.ActiveCustomers
	report.AtRiskCustomers = snapshot.AtRiskCustomers
	report.ChurnedCustomers = snapshot.ChurnedCustomers
	report.PendingAlerts = snapshot.PendingAlerts
	log.Printf("📊 Dashboard rebuilt: %s trailing 4-week revenue, %d active / %d at-risk / %d churned customers",
		helpers.FormatUSD(snapshot.TrailingFourWeekRevenue),
		snapshot.ActiveCustomers, snapshot.AtRiskCustomers, snapshot.ChurnedCustomers)
}

// touchSystemState records the run in the bookkeeping singleton
func (j *NightlyJob) touchSystemState(now time.Time, report *NightlyReport) {
	state, err := j.store.GetSystemState()
	if err != nil {
		log.Printf("⚠️  Failed to load system state: %v", err)
		report.ChunkErrors++
		return
	}
	state.LastNightlyAt = &now
	state.LastNightlyRunID = report.RunID
	if err := j.store.SaveSystemState(state); err != nil {
		log.Printf("⚠️  Failed to save system state: %v", err)
		report.ChunkErrors++
	}
}
