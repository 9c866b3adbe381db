package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatRepository handles database operations for the statistics core
type StatRepository struct {
	db *Database
}

// NewStatRepository creates a new stat repository
func NewStatRepository(db *Database) *StatRepository {
	return &StatRepository{db: db}
}

// InitSchema performs auto-migration for all farmpulse tables
func (r *StatRepository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&Order{},
		&OrderItem{},
		&LegacyOrder{},
		&Harvest{},
		&CustomerCropStat{},
		&DailyBucket{},
		&DailyCropQuantity{},
		&DailyCustomerOrder{},
		&MonthlySummary{},
		&YieldProfile{},
		&Alert{},
		&DashboardSnapshot{},
		&SystemState{},
		&AlertWebhook{},
		&AlertWebhookLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// Partial index for the pending-alert feed; AutoMigrate can't express it
	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_alerts_pending
		ON alerts (created_at DESC)
		WHERE status = 'pending'
	`)

	fmt.Println("✅ Database schema initialization completed successfully")
	return nil
}

// ============================================================================
// Raw Ledger Reads
// ============================================================================

// GetOrderByID loads one order with its line items
func (r *StatRepository) GetOrderByID(id int64) (*Order, error) {
	var order Order
	if err := r.db.db.Preload("Items").First(&order, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewNotFoundErrorWithID("order", id)
		}
		return nil, WrapDBError("get order", err)
	}
	return &order, nil
}

// GetHarvestByID loads one harvest record
func (r *StatRepository) GetHarvestByID(id int64) (*Harvest, error) {
	var harvest Harvest
	if err := r.db.db.First(&harvest, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewNotFoundErrorWithID("harvest", id)
		}
		return nil, WrapDBError("get harvest", err)
	}
	return &harvest, nil
}

// GetAllOrders returns the complete primary ledger with line items,
// oldest first. Only the backfill job calls this.
func (r *StatRepository) GetAllOrders() ([]Order, error) {
	var orders []Order
	if err := r.db.db.Preload("Items").Order("created_at ASC, id ASC").Find(&orders).Error; err != nil {
		return nil, WrapDBError("get all orders", err)
	}
	return orders, nil
}

// GetAllLegacyOrders returns the complete legacy ledger, oldest first.
func (r *StatRepository) GetAllLegacyOrders() ([]LegacyOrder, error) {
	var orders []LegacyOrder
	if err := r.db.db.Order("created_at ASC, id ASC").Find(&orders).Error; err != nil {
		return nil, WrapDBError("get all legacy orders", err)
	}
	return orders, nil
}

// GetAllHarvests returns the complete harvest ledger, oldest first.
func (r *StatRepository) GetAllHarvests() ([]Harvest, error) {
	var harvests []Harvest
	if err := r.db.db.Order("harvested_at ASC, id ASC").Find(&harvests).Error; err != nil {
		return nil, WrapDBError("get all harvests", err)
	}
	return harvests, nil
}

// ============================================================================
// Customer-Crop Stats (optimistic concurrency)
// ============================================================================

// GetStat loads one customer-crop record by its sanitized key
func (r *StatRepository) GetStat(statKey string) (*CustomerCropStat, error) {
	var stat CustomerCropStat
	if err := r.db.db.First(&stat, "stat_key = ?", statKey).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewNotFoundErrorWithID("customer_crop_stat", statKey)
		}
		return nil, WrapDBError("get stat", err)
	}
	return &stat, nil
}

// GetOrCreateStat returns the record for a pair, creating a zeroed one on
// first observation. A create that loses a race to a concurrent insert
// falls back to reading the winner's row.
func (r *StatRepository) GetOrCreateStat(statKey, customerKey, cropKey string) (*CustomerCropStat, error) {
	stat, err := r.GetStat(statKey)
	if err == nil {
		return stat, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	fresh := &CustomerCropStat{
		StatKey:     statKey,
		CustomerKey: customerKey,
		CropKey:     cropKey,
	}
	if err := r.db.db.Create(fresh).Error; err != nil {
		if isDuplicateKey(err) {
			return r.GetStat(statKey)
		}
		return nil, WrapDBError("create stat", err)
	}
	return fresh, nil
}

// UpdateStatCAS writes a record back if and only if nobody else has written
// it since it was read. Returns ErrVersionConflict when the version moved;
// callers re-read and retry.
func (r *StatRepository) UpdateStatCAS(stat *CustomerCropStat) error {
	expected := stat.Version
	stat.Version = expected + 1

	res := r.db.db.Model(&CustomerCropStat{}).
		Where("stat_key = ? AND version = ?", stat.StatKey, expected).
		Select("*").Omit("stat_key").
		Updates(stat)
	if res.Error != nil {
		stat.Version = expected
		return WrapDBError("update stat", res.Error)
	}
	if res.RowsAffected == 0 {
		stat.Version = expected
		return ErrVersionConflict
	}
	return nil
}

// CountStats returns the number of customer-crop records
func (r *StatRepository) CountStats() (int64, error) {
	var count int64
	if err := r.db.db.Model(&CustomerCropStat{}).Count(&count).Error; err != nil {
		return 0, WrapDBError("count stats", err)
	}
	return count, nil
}

// GetStatsBatch pages through all customer-crop records in stable key order
func (r *StatRepository) GetStatsBatch(offset, limit int) ([]CustomerCropStat, error) {
	var batch []CustomerCropStat
	err := r.db.db.Order("stat_key ASC").Offset(offset).Limit(limit).Find(&batch).Error
	if err != nil {
		return nil, WrapDBError("get stats batch", err)
	}
	return batch, nil
}

// ListStats returns records for the API, optionally filtered by activity flag
func (r *StatRepository) ListStats(activityFlag string, limit int) ([]CustomerCropStat, error) {
	q := r.db.db.Order("confidence DESC, stat_key ASC").Limit(limit)
	if activityFlag != "" {
		q = q.Where("activity_flag = ?", activityFlag)
	}
	var out []CustomerCropStat
	if err := q.Find(&out).Error; err != nil {
		return nil, WrapDBError("list stats", err)
	}
	return out, nil
}

// SaveStats replaces records in bulk, chunked to respect write-size limits.
// Used by the jobs, which own whole records.
func (r *StatRepository) SaveStats(stats []CustomerCropStat, chunkSize int) error {
	return saveInChunks(r.db.db, "save stats", stats, chunkSize, true)
}

// saveInChunks writes rows in chunkSize slices, continuing past a failed
// chunk so one bad row cannot sink the rest of a bulk write. The returned
// BatchError carries an exact failure count with capped detail.
func saveInChunks[T any](db *gorm.DB, operation string, rows []T, chunkSize int, upsert bool) error {
	if len(rows) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 500
	}
	batchErr := &BatchError{Operation: operation}
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		tx := db
		if upsert {
			tx = tx.Clauses(clause.OnConflict{UpdateAll: true})
		}
		if err := tx.Create(rows[start:end]).Error; err != nil {
			batchErr.Record(fmt.Errorf("rows %d-%d: %w", start, end-1, err))
		}
	}
	return batchErr.OrNil()
}

// ============================================================================
// Yield Profiles (optimistic concurrency)
// ============================================================================

// GetYieldProfile loads one crop's yield profile
func (r *StatRepository) GetYieldProfile(cropID string) (*YieldProfile, error) {
	var profile YieldProfile
	if err := r.db.db.First(&profile, "crop_id = ?", cropID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewNotFoundErrorWithID("yield_profile", cropID)
		}
		return nil, WrapDBError("get yield profile", err)
	}
	return &profile, nil
}

// GetOrCreateYieldProfile returns the profile for a crop, creating a zeroed
// one on first harvest
func (r *StatRepository) GetOrCreateYieldProfile(cropID string) (*YieldProfile, error) {
	profile, err := r.GetYieldProfile(cropID)
	if err == nil {
		return profile, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	fresh := &YieldProfile{CropID: cropID}
	if err := r.db.db.Create(fresh).Error; err != nil {
		if isDuplicateKey(err) {
			return r.GetYieldProfile(cropID)
		}
		return nil, WrapDBError("create yield profile", err)
	}
	return fresh, nil
}

// UpdateYieldProfileCAS writes a profile back under optimistic concurrency
func (r *StatRepository) UpdateYieldProfileCAS(profile *YieldProfile) error {
	expected := profile.Version
	profile.Version = expected + 1

	res := r.db.db.Model(&YieldProfile{}).
		Where("crop_id = ? AND version = ?", profile.CropID, expected).
		Select("*").Omit("crop_id").
		Updates(profile)
	if res.Error != nil {
		profile.Version = expected
		return WrapDBError("update yield profile", res.Error)
	}
	if res.RowsAffected == 0 {
		profile.Version = expected
		return ErrVersionConflict
	}
	return nil
}

// ListYieldProfiles returns all crop yield profiles
func (r *StatRepository) ListYieldProfiles() ([]YieldProfile, error) {
	var profiles []YieldProfile
	if err := r.db.db.Order("crop_id ASC").Find(&profiles).Error; err != nil {
		return nil, WrapDBError("list yield profiles", err)
	}
	return profiles, nil
}

// SaveYieldProfiles replaces profiles in bulk (backfill)
func (r *StatRepository) SaveYieldProfiles(profiles []YieldProfile, chunkSize int) error {
	return saveInChunks(r.db.db, "save yield profiles", profiles, chunkSize, true)
}

// ============================================================================
// Daily Buckets (atomic increments)
// ============================================================================

// IncrementDailyBucket bumps a date's order count and revenue in a single
// upsert statement; concurrent events for the same date never lose updates.
func (r *StatRepository) IncrementDailyBucket(bucketDate string, revenue float64) error {
	return r.db.db.Exec(`
		INSERT INTO daily_buckets (bucket_date, order_count, total_revenue)
		VALUES (?, 1, ?)
		ON CONFLICT (bucket_date) DO UPDATE SET
			order_count = daily_buckets.order_count + 1,
			total_revenue = daily_buckets.total_revenue + EXCLUDED.total_revenue
	`, bucketDate, revenue).Error
}

// IncrementDailyCropQuantity bumps one crop's quantity for a date
func (r *StatRepository) IncrementDailyCropQuantity(bucketDate, cropKey string, quantity float64) error {
	return r.db.db.Exec(`
		INSERT INTO daily_crop_quantities (bucket_date, crop_key, quantity)
		VALUES (?, ?, ?)
		ON CONFLICT (bucket_date, crop_key) DO UPDATE SET
			quantity = daily_crop_quantities.quantity + EXCLUDED.quantity
	`, bucketDate, cropKey, quantity).Error
}

// IncrementDailyCustomerOrder bumps one customer's order count for a date
func (r *StatRepository) IncrementDailyCustomerOrder(bucketDate, customerKey string) error {
	return r.db.db.Exec(`
		INSERT INTO daily_customer_orders (bucket_date, customer_key, order_count)
		VALUES (?, ?, 1)
		ON CONFLICT (bucket_date, customer_key) DO UPDATE SET
			order_count = daily_customer_orders.order_count + 1
	`, bucketDate, customerKey).Error
}

// SaveDailyBuckets bulk-writes buckets (backfill)
func (r *StatRepository) SaveDailyBuckets(buckets []DailyBucket, cropRows []DailyCropQuantity, customerRows []DailyCustomerOrder, chunkSize int) error {
	if err := saveInChunks(r.db.db, "save daily buckets", buckets, chunkSize, true); err != nil {
		return err
	}
	if err := saveInChunks(r.db.db, "save daily crop quantities", cropRows, chunkSize, true); err != nil {
		return err
	}
	return saveInChunks(r.db.db, "save daily customer orders", customerRows, chunkSize, true)
}

// ============================================================================
// Monthly Summaries
// ============================================================================

// UpsertMonthlySummaries replaces monthly summary rows wholesale
func (r *StatRepository) UpsertMonthlySummaries(summaries []MonthlySummary, chunkSize int) error {
	return saveInChunks(r.db.db, "upsert monthly summaries", summaries, chunkSize, true)
}

// ListMonthlySummaries returns all monthly summaries, newest first
func (r *StatRepository) ListMonthlySummaries() ([]MonthlySummary, error) {
	var summaries []MonthlySummary
	if err := r.db.db.Order("month DESC").Find(&summaries).Error; err != nil {
		return nil, WrapDBError("list monthly summaries", err)
	}
	return summaries, nil
}

// ============================================================================
// Alerts
// ============================================================================

// SaveAlert persists a newly detected alert
func (r *StatRepository) SaveAlert(alert *Alert) error {
	return WrapDBError("save alert", r.db.db.Create(alert).Error)
}

// SaveAlerts bulk-writes alerts (backfill)
func (r *StatRepository) SaveAlerts(alerts []Alert, chunkSize int) error {
	return saveInChunks(r.db.db, "save alerts", alerts, chunkSize, false)
}

// GetAlerts lists alerts, newest first, optionally filtered by status
func (r *StatRepository) GetAlerts(status string, limit int) ([]Alert, error) {
	q := r.db.db.Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var alerts []Alert
	if err := q.Find(&alerts).Error; err != nil {
		return nil, WrapDBError("get alerts", err)
	}
	return alerts, nil
}

// CountPendingAlerts returns how many alerts are awaiting review
func (r *StatRepository) CountPendingAlerts() (int64, error) {
	var count int64
	err := r.db.db.Model(&Alert{}).Where("status = ?", "pending").Count(&count).Error
	if err != nil {
		return 0, WrapDBError("count pending alerts", err)
	}
	return count, nil
}

// DismissAlerts transitions the given pending alerts to dismissed and
// returns how many actually changed
func (r *StatRepository) DismissAlerts(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	res := r.db.db.Model(&Alert{}).
		Where("id IN ? AND status = ?", ids, "pending").
		Updates(map[string]interface{}{"status": "dismissed", "dismissed_at": now})
	return res.RowsAffected, WrapDBError("dismiss alerts", res.Error)
}

// DismissAllPendingAlerts transitions every pending alert to dismissed
func (r *StatRepository) DismissAllPendingAlerts() (int64, error) {
	now := time.Now()
	res := r.db.db.Model(&Alert{}).
		Where("status = ?", "pending").
		Updates(map[string]interface{}{"status": "dismissed", "dismissed_at": now})
	return res.RowsAffected, WrapDBError("dismiss all alerts", res.Error)
}

// ============================================================================
// Dashboard, System State, Webhooks
// ============================================================================

// SaveDashboard overwrites the singleton dashboard snapshot
func (r *StatRepository) SaveDashboard(snapshot *DashboardSnapshot) error {
	snapshot.ID = 1
	return WrapDBError("save dashboard",
		r.db.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(snapshot).Error)
}

// GetDashboard loads the singleton dashboard snapshot
func (r *StatRepository) GetDashboard() (*DashboardSnapshot, error) {
	var snapshot DashboardSnapshot
	if err := r.db.db.First(&snapshot, 1).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewNotFoundErrorWithID("dashboard", 1)
		}
		return nil, WrapDBError("get dashboard", err)
	}
	return &snapshot, nil
}

// SaveSystemState overwrites the singleton job bookkeeping record
func (r *StatRepository) SaveSystemState(state *SystemState) error {
	state.ID = 1
	return WrapDBError("save system state",
		r.db.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(state).Error)
}

// GetSystemState loads the singleton job bookkeeping record, zero-valued if
// it has never been written
func (r *StatRepository) GetSystemState() (*SystemState, error) {
	var state SystemState
	if err := r.db.db.First(&state, 1).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &SystemState{ID: 1}, nil
		}
		return nil, WrapDBError("get system state", err)
	}
	return &state, nil
}

// ListWebhooks returns every webhook registration
func (r *StatRepository) ListWebhooks() ([]AlertWebhook, error) {
	var webhooks []AlertWebhook
	if err := r.db.db.Order("id ASC").Find(&webhooks).Error; err != nil {
		return nil, WrapDBError("list webhooks", err)
	}
	return webhooks, nil
}

// CreateWebhook registers a new outbound webhook
func (r *StatRepository) CreateWebhook(webhook *AlertWebhook) error {
	return WrapDBError("create webhook", r.db.db.Create(webhook).Error)
}

// UpdateWebhook replaces a webhook registration
func (r *StatRepository) UpdateWebhook(webhook *AlertWebhook) error {
	res := r.db.db.Model(&AlertWebhook{}).Where("id = ?", webhook.ID).Select("*").Omit("id", "created_at").Updates(webhook)
	if res.Error != nil {
		return WrapDBError("update webhook", res.Error)
	}
	if res.RowsAffected == 0 {
		return NewNotFoundErrorWithID("webhook", webhook.ID)
	}
	return nil
}

// DeleteWebhook removes a webhook registration
func (r *StatRepository) DeleteWebhook(id int) error {
	res := r.db.db.Delete(&AlertWebhook{}, id)
	if res.Error != nil {
		return WrapDBError("delete webhook", res.Error)
	}
	if res.RowsAffected == 0 {
		return NewNotFoundErrorWithID("webhook", id)
	}
	return nil
}

// GetActiveWebhooks returns all enabled webhook registrations
func (r *StatRepository) GetActiveWebhooks() ([]AlertWebhook, error) {
	var webhooks []AlertWebhook
	err := r.db.db.Where("is_active = ?", true).Find(&webhooks).Error
	if err != nil {
		return nil, WrapDBError("get active webhooks", err)
	}
	return webhooks, nil
}

// SaveWebhookLog records one delivery attempt outcome
func (r *StatRepository) SaveWebhookLog(entry *AlertWebhookLog) error {
	return WrapDBError("save webhook log", r.db.db.Create(entry).Error)
}

// ============================================================================
// Backfill wipe
// ============================================================================

// WipeDerivedState deletes every derived record in one transaction: stats,
// buckets, summaries, yield profiles, alerts, and the dashboard. The raw
// order/harvest ledgers are untouched. Only the backfill job calls this.
func (r *StatRepository) WipeDerivedState() error {
	return r.db.db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{
			"customer_crop_stats",
			"daily_buckets",
			"daily_crop_quantities",
			"daily_customer_orders",
			"monthly_summaries",
			"yield_profiles",
			"alerts",
			"dashboard_snapshots",
		} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("wipe %s: %w", table, err)
			}
		}
		return nil
	})
}

// isDuplicateKey reports whether an insert failed on a unique constraint.
// PostgreSQL error code 23505 = unique_violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"duplicate key", "unique constraint", "23505"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
