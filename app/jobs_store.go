package app

import (
	"context"
	"time"

	"farmpulse/database"
)

// JobStore is the slice of the repository the nightly and backfill jobs
// need. *database.StatRepository satisfies it; tests substitute an
// in-memory fake.
type JobStore interface {
	// Nightly scan
	CountStats() (int64, error)
	GetStatsBatch(offset, limit int) ([]database.CustomerCropStat, error)
	GetStat(statKey string) (*database.CustomerCropStat, error)
	UpdateStatCAS(stat *database.CustomerCropStat) error

	// Rollups
	ListMonths() ([]string, error)
	AggregateMonth(month string) (*database.MonthlySummary, error)
	UpsertMonthlySummaries(summaries []database.MonthlySummary, chunkSize int) error
	GetRevenueSince(fromDate string) (float64, error)

	// Dashboard and bookkeeping
	CountPendingAlerts() (int64, error)
	SaveDashboard(snapshot *database.DashboardSnapshot) error
	GetSystemState() (*database.SystemState, error)
	SaveSystemState(state *database.SystemState) error

	// Backfill: raw ledger reads
	GetAllOrders() ([]database.Order, error)
	GetAllLegacyOrders() ([]database.LegacyOrder, error)
	GetAllHarvests() ([]database.Harvest, error)

	// Backfill: destructive rebuild
	WipeDerivedState() error
	SaveStats(stats []database.CustomerCropStat, chunkSize int) error
	SaveYieldProfiles(profiles []database.YieldProfile, chunkSize int) error
	SaveAlerts(alerts []database.Alert, chunkSize int) error
	SaveDailyBuckets(buckets []database.DailyBucket, cropRows []database.DailyCropQuantity, customerRows []database.DailyCustomerOrder, chunkSize int) error
}

// Broadcaster pushes events to connected dashboard clients.
// *realtime.Broker satisfies it; a nil Broadcaster means nobody is listening.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// Locker is the advisory lock the jobs use for mutual exclusion.
// *cache.RedisClient satisfies it. A nil Locker means run unguarded,
// which is fine for a single-instance deployment.
type Locker interface {
	AcquireLock(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, holder string) error
}

// jobLockKey guards both jobs: a nightly run and a backfill must never
// overlap, and neither may run twice concurrently.
const jobLockKey = "farmpulse:jobs:lock"
