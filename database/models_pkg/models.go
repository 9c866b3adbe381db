package models

import "time"

// Order represents a purchase order synced from the commerce platform.
// Orders are the raw ledger for the statistics core: the real-time handler
// and the backfill job both read them, nothing in this system writes them.
//
// Key Fields:
//   - ExternalID: Canonical order id from the commerce platform, used for
//     cross-source deduplication during backfill
//   - Source: Which sync wrote the row (shopify, manual)
//   - CustomerEmail/CustomerID/CustomerName: Legacy shapes disagree on which
//     of these is populated; the normalization adapter resolves one key
//   - Status: Order lifecycle state (cancelled orders are skipped)
//   - Total: Order value used for daily revenue rollups
type Order struct {
	ID            int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID    string      `gorm:"type:text;uniqueIndex;not null" json:"external_id"`
	Source        string      `gorm:"type:text;index" json:"source"`
	CustomerEmail string      `gorm:"type:text" json:"customer_email"`
	CustomerID    string      `gorm:"type:text" json:"customer_id"`
	CustomerName  string      `gorm:"type:text" json:"customer_name"`
	CreatedAt     time.Time   `gorm:"index;not null" json:"created_at"`
	Total         float64     `gorm:"type:decimal(12,2)" json:"total"`
	Status        string      `gorm:"type:text" json:"status"`
	Tags          string      `gorm:"type:text" json:"tags"`
	Note          string      `gorm:"type:text" json:"note"`
	Items         []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
}

// TableName specifies the table name for Order
func (Order) TableName() string {
	return "orders"
}

// OrderItem is a single line of an order. Title and Name mirror the two
// upstream field spellings; ShopifyProductID is only present on catalog items.
type OrderItem struct {
	ID               int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID          int64   `gorm:"index;not null" json:"order_id"`
	Title            string  `gorm:"type:text" json:"title"`
	Name             string  `gorm:"type:text" json:"name"`
	Quantity         float64 `gorm:"type:decimal(12,3)" json:"quantity"`
	ShopifyProductID string  `gorm:"type:text" json:"shopify_product_id"`
}

// TableName specifies the table name for OrderItem
func (OrderItem) TableName() string {
	return "order_items"
}

// LegacyOrder is the secondary historical ledger kept from the pre-Shopify
// spreadsheet import. Line items were dumped as raw JSON at import time, so
// the normalization adapter parses ItemsJSON instead of joined rows.
// Only the backfill job reads this table.
type LegacyOrder struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID    string    `gorm:"type:text;index;not null" json:"external_id"`
	CustomerEmail string    `gorm:"type:text" json:"customer_email"`
	CustomerName  string    `gorm:"type:text" json:"customer_name"`
	CreatedAt     time.Time `gorm:"index;not null" json:"created_at"`
	Total         float64   `gorm:"type:decimal(12,2)" json:"total"`
	Status        string    `gorm:"type:text" json:"status"`
	ItemsJSON     string    `gorm:"type:jsonb" json:"items_json"`
}

// TableName specifies the table name for LegacyOrder
func (LegacyOrder) TableName() string {
	return "legacy_orders"
}

// Harvest represents one recorded harvest of a crop.
// TotalYieldOz is nullable because the field crew sometimes logs the tray
// count before weighing; such rows are skipped with missing_yield_data.
type Harvest struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CropID       string    `gorm:"type:text;index" json:"crop_id"`
	TotalYieldOz *float64  `gorm:"type:decimal(12,2)" json:"total_yield_oz,omitempty"`
	TrayCount    int       `json:"tray_count"`
	HarvestedAt  time.Time `gorm:"index;not null" json:"harvested_at"`
}

// TableName specifies the table name for Harvest
func (Harvest) TableName() string {
	return "harvests"
}

// CustomerCropStat holds the full accumulator state for one customer-crop
// pair. This is the central record of the statistics core: the real-time
// handler mutates the accumulator fields, the nightly job rewrites only the
// presentation fields, and the backfill job replaces the whole row.
//
// Key Fields:
//   - StatKey: Sanitized composite key derived from (customer, crop); the
//     derivation is identical across real-time, nightly, and backfill paths
//   - Count/Mean/M2: Welford accumulators over line-item quantities (M2 >= 0)
//   - Ewma/EwmaAlpha: Adaptive exponential smoothing forecast
//   - SumX/SumY/SumXY/SumX2: Online regression sums; x is the pair's own
//     sequential order index, not wall-clock time
//   - IntervalCount/AvgDaysBetweenOrders/IntervalM2/IntervalStddev: Welford
//     accumulators over days between consecutive orders
//   - TotalPredictions/SumAbsPercentError/RunningBias: Forecast feedback state
//   - Version: Optimistic concurrency token; every compare-and-swap write
//     increments it
//
// Ordering contract: accumulator updates MUST be applied in ascending
// chronological order per pair. Regression and EWMA are order-index
// sensitive, so an out-of-order replay silently corrupts both.
type CustomerCropStat struct {
	StatKey     string `gorm:"type:text;primaryKey" json:"stat_key"`
	CustomerKey string `gorm:"type:text;index" json:"customer_key"`
	CropKey     string `gorm:"type:text;index" json:"crop_key"`

	// Welford accumulators (quantity)
	Count int64   `gorm:"not null;default:0" json:"count"`
	Mean  float64 `gorm:"type:decimal(14,4)" json:"mean"`
	M2    float64 `gorm:"type:decimal(20,6)" json:"m2"`

	// Adaptive EWMA forecast
	Ewma      float64 `gorm:"type:decimal(14,4)" json:"ewma"`
	EwmaAlpha float64 `gorm:"type:decimal(5,3)" json:"ewma_alpha"`

	// Online regression sums (x = sequential order index for this pair)
	SumX  float64 `gorm:"type:decimal(20,4)" json:"sum_x"`
	SumY  float64 `gorm:"type:decimal(20,4)" json:"sum_y"`
	SumXY float64 `gorm:"type:decimal(24,6)" json:"sum_xy"`
	SumX2 float64 `gorm:"type:decimal(24,6)" json:"sum_x2"`

	// Order recency
	FirstOrderDate *time.Time `json:"first_order_date,omitempty"`
	LastOrderDate  *time.Time `gorm:"index" json:"last_order_date,omitempty"`
	LastQuantity   float64    `gorm:"type:decimal(14,4)" json:"last_quantity"`

	// Interval (days between orders) accumulators
	IntervalCount        int64   `gorm:"not null;default:0" json:"interval_count"`
	AvgDaysBetweenOrders float64 `gorm:"type:decimal(12,4)" json:"avg_days_between_orders"`
	IntervalM2           float64 `gorm:"type:decimal(20,6)" json:"interval_m2"`
	IntervalStddev       float64 `gorm:"type:decimal(12,4)" json:"interval_stddev"`

	// Forecast feedback loop
	TotalPredictions   int64   `gorm:"not null;default:0" json:"total_predictions"`
	SumAbsPercentError float64 `gorm:"type:decimal(20,4)" json:"sum_abs_percent_error"`
	RunningBias        float64 `gorm:"type:decimal(12,4)" json:"running_bias"`

	// Derived presentation fields (rewritten by the nightly job)
	Confidence           int     `json:"confidence"`
	ConfidenceLevel      string  `gorm:"type:text" json:"confidence_level"`
	ConfidenceComponents string  `gorm:"type:jsonb" json:"confidence_components,omitempty"`
	Trend                string  `gorm:"type:text" json:"trend"`
	TrendSlope           float64 `gorm:"type:decimal(12,6)" json:"trend_slope"`
	TrendWeeklyChangePct float64 `gorm:"type:decimal(12,4)" json:"trend_weekly_change_pct"`
	AdjustedEwma         float64 `gorm:"type:decimal(14,4)" json:"adjusted_ewma"`
	BiasCorrected        bool    `json:"bias_corrected"`
	Mape                 float64 `gorm:"type:decimal(12,4)" json:"mape"`
	ActivityFlag         string  `gorm:"type:text;index" json:"activity_flag"`
	DaysSinceLastOrder   int     `json:"days_since_last_order"`

	Version   int64     `gorm:"not null;default:0" json:"version"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for CustomerCropStat
func (CustomerCropStat) TableName() string {
	return "customer_crop_stats"
}

// DailyBucket holds append-only per-date counters. Rows are only ever
// incremented in place with a single upsert statement, never read-modified.
type DailyBucket struct {
	BucketDate   string  `gorm:"type:text;primaryKey" json:"bucket_date"` // YYYY-MM-DD
	OrderCount   int64   `gorm:"not null;default:0" json:"order_count"`
	TotalRevenue float64 `gorm:"type:decimal(14,2);not null;default:0" json:"total_revenue"`
}

// TableName specifies the table name for DailyBucket
func (DailyBucket) TableName() string {
	return "daily_buckets"
}

// DailyCropQuantity is the per-crop breakdown of a daily bucket.
// Kept as child rows rather than a jsonb map so each crop's counter can be
// incremented atomically in SQL.
type DailyCropQuantity struct {
	BucketDate string  `gorm:"type:text;primaryKey" json:"bucket_date"`
	CropKey    string  `gorm:"type:text;primaryKey" json:"crop_key"`
	Quantity   float64 `gorm:"type:decimal(14,3);not null;default:0" json:"quantity"`
}

// TableName specifies the table name for DailyCropQuantity
func (DailyCropQuantity) TableName() string {
	return "daily_crop_quantities"
}

// DailyCustomerOrder is the per-customer order count of a daily bucket.
type DailyCustomerOrder struct {
	BucketDate  string `gorm:"type:text;primaryKey" json:"bucket_date"`
	CustomerKey string `gorm:"type:text;primaryKey" json:"customer_key"`
	OrderCount  int64  `gorm:"not null;default:0" json:"order_count"`
}

// TableName specifies the table name for DailyCustomerOrder
func (DailyCustomerOrder) TableName() string {
	return "daily_customer_orders"
}

// MonthlySummary is derived wholesale from daily buckets (nightly) or from
// first principles during backfill; it is always safe to overwrite.
type MonthlySummary struct {
	Month           string    `gorm:"type:text;primaryKey" json:"month"` // YYYY-MM
	TotalOrders     int64     `json:"total_orders"`
	TotalRevenue    float64   `gorm:"type:decimal(14,2)" json:"total_revenue"`
	UniqueCustomers int       `json:"unique_customers"`
	CropBreakdown   string    `gorm:"type:jsonb" json:"crop_breakdown,omitempty"`
	TopCustomers    string    `gorm:"type:jsonb" json:"top_customers,omitempty"`
	AvgOrderValue   float64   `gorm:"type:decimal(12,2)" json:"avg_order_value"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for MonthlySummary
func (MonthlySummary) TableName() string {
	return "monthly_summaries"
}

// YieldProfile holds the per-crop yield statistics stream.
//
// Key Fields:
//   - YieldCount/YieldMean/YieldM2/YieldStddev: Welford accumulators over
//     yield-per-tray observations
//   - ActualYieldEstimate: EWMA of yield-per-tray used for tray planning
//   - AdjustedBufferPercent: Overplanting buffer derived from yield CV
//   - Version: Optimistic concurrency token
//
// Unlike customer-crop stats, this stream rejects extreme observations:
// once five samples exist, an observation beyond 3 standard deviations is
// recorded as a yield_outlier alert and does not touch the accumulators.
type YieldProfile struct {
	CropID                string     `gorm:"type:text;primaryKey" json:"crop_id"`
	YieldCount            int64      `gorm:"not null;default:0" json:"yield_count"`
	YieldMean             float64    `gorm:"type:decimal(12,4)" json:"yield_mean"`
	YieldM2               float64    `gorm:"type:decimal(20,6)" json:"yield_m2"`
	YieldStddev           float64    `gorm:"type:decimal(12,4)" json:"yield_stddev"`
	ActualYieldEstimate   float64    `gorm:"type:decimal(12,4)" json:"actual_yield_estimate"`
	AdjustedBufferPercent float64    `gorm:"type:decimal(6,2)" json:"adjusted_buffer_percent"`
	LastHarvestDate       *time.Time `json:"last_harvest_date,omitempty"`
	Version               int64      `gorm:"not null;default:0" json:"version"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for YieldProfile
func (YieldProfile) TableName() string {
	return "yield_profiles"
}

// Alert represents a detected order anomaly or yield outlier.
// Alerts start pending and only an explicit dismissal transitions them.
type Alert struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt       time.Time  `gorm:"index;not null" json:"created_at"`
	Type            string     `gorm:"type:text;index;not null" json:"type"`   // order_anomaly, yield_outlier
	Status          string     `gorm:"type:text;index;not null" json:"status"` // pending, dismissed
	StatKey         string     `gorm:"type:text;index" json:"stat_key,omitempty"`
	CustomerKey     string     `gorm:"type:text" json:"customer_key,omitempty"`
	CropKey         string     `gorm:"type:text;index" json:"crop_key,omitempty"`
	SourceOrderID   *int64     `gorm:"index" json:"source_order_id,omitempty"`
	SourceHarvestID *int64     `gorm:"index" json:"source_harvest_id,omitempty"`
	Quantity        float64    `gorm:"type:decimal(14,4)" json:"quantity"`
	ZScore          float64    `gorm:"type:decimal(10,4)" json:"z_score"`
	ExpectedLow     float64    `gorm:"type:decimal(14,4)" json:"expected_low"`
	ExpectedHigh    float64    `gorm:"type:decimal(14,4)" json:"expected_high"`
	Method          string     `gorm:"type:text" json:"method"`     // absolute_bounds, z_score
	Confidence      string     `gorm:"type:text" json:"confidence"` // low, medium, high
	DismissedAt     *time.Time `json:"dismissed_at,omitempty"`
}

// TableName specifies the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}

// DashboardSnapshot is the singleton snapshot written wholesale by the
// nightly job. Downstream consumers only ever read it.
type DashboardSnapshot struct {
	ID                      int       `gorm:"primaryKey" json:"id"` // always 1
	GeneratedAt             time.Time `json:"generated_at"`
	TopCrops                string    `gorm:"type:jsonb" json:"top_crops,omitempty"`
	CustomerHealth          string    `gorm:"type:jsonb" json:"customer_health,omitempty"`
	ConfidenceDistribution  string    `gorm:"type:jsonb" json:"confidence_distribution,omitempty"`
	AvgConfidence           float64   `gorm:"type:decimal(8,2)" json:"avg_confidence"`
	AvgMape                 float64   `gorm:"type:decimal(10,2)" json:"avg_mape"`
	TrailingFourWeekRevenue float64   `gorm:"type:decimal(14,2)" json:"trailing_four_week_revenue"`
	ActiveCustomers         int       `json:"active_customers"`
	AtRiskCustomers         int       `json:"at_risk_customers"`
	ChurnedCustomers        int       `json:"churned_customers"`
	PendingAlerts           int64     `json:"pending_alerts"`
}

// TableName specifies the table name for DashboardSnapshot
func (DashboardSnapshot) TableName() string {
	return "dashboard_snapshots"
}

// SystemState is the singleton job bookkeeping record, overwritten wholesale
// by the backfill job and touched by the nightly job.
type SystemState struct {
	ID                int        `gorm:"primaryKey" json:"id"` // always 1
	LastNightlyAt     *time.Time `json:"last_nightly_at,omitempty"`
	LastNightlyRunID  string     `gorm:"type:text" json:"last_nightly_run_id,omitempty"`
	LastBackfillAt    *time.Time `json:"last_backfill_at,omitempty"`
	LastBackfillRunID string     `gorm:"type:text" json:"last_backfill_run_id,omitempty"`
	LedgerStart       *time.Time `json:"ledger_start,omitempty"`
	LedgerEnd         *time.Time `json:"ledger_end,omitempty"`
	OrdersProcessed   int64      `json:"orders_processed"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for SystemState
func (SystemState) TableName() string {
	return "system_state"
}

// AlertWebhook holds an outbound notification registration
type AlertWebhook struct {
	ID                int        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string     `gorm:"size:100;not null" json:"name"`
	URL               string     `gorm:"not null" json:"url"`
	Method            string     `gorm:"size:10;default:POST" json:"method"`
	AuthType          string     `gorm:"size:20" json:"auth_type"`
	AuthHeader        string     `gorm:"size:100" json:"auth_header"`
	AuthValue         string     `json:"auth_value"`
	AlertTypes        string     `json:"alert_types"`                               // Stored as JSON array
	CropKeys          string     `json:"crop_keys"`                                 // Stored as JSON array
	MinConfidence     string     `gorm:"type:text" json:"min_confidence,omitempty"` // low, medium, high
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	RetryCount        int        `gorm:"default:3" json:"retry_count"`
	RetryDelaySeconds int        `gorm:"default:5" json:"retry_delay_seconds"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	TotalSent         int        `gorm:"default:0" json:"total_sent"`
	TotalFailed       int        `gorm:"default:0" json:"total_failed"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for AlertWebhook
func (AlertWebhook) TableName() string {
	return "alert_webhooks"
}

// AlertWebhookLog holds webhook delivery logs
type AlertWebhookLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WebhookID      int       `gorm:"index;not null" json:"webhook_id"`
	AlertID        *int64    `json:"alert_id,omitempty"`
	DeliveryID     string    `gorm:"type:text" json:"delivery_id"`
	TriggeredAt    time.Time `gorm:"index;not null" json:"triggered_at"`
	Status         string    `gorm:"type:text" json:"status"` // SUCCESS, FAILED
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	RetryAttempt   int       `gorm:"default:0" json:"retry_attempt"`
}

// TableName specifies the table name for AlertWebhookLog
func (AlertWebhookLog) TableName() string {
	return "alert_webhook_logs"
}
