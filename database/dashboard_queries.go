package database

import (
	"encoding/json"
	"fmt"
	"sort"
)

// CropQuantityRow is one crop's aggregated quantity over some date range
type CropQuantityRow struct {
	CropKey  string  `json:"crop_key"`
	Quantity float64 `json:"quantity"`
}

// CustomerOrderRow is one customer's aggregated order count over some date range
type CustomerOrderRow struct {
	CustomerKey string `json:"customer_key"`
	OrderCount  int64  `json:"order_count"`
}

// ListMonths returns every distinct YYYY-MM month present in the daily
// buckets, oldest first
func (r *StatRepository) ListMonths() ([]string, error) {
	var months []string
	err := r.db.db.Raw(`
		SELECT DISTINCT substring(bucket_date FROM 1 FOR 7) AS month
		FROM daily_buckets
		ORDER BY month ASC
	`).Scan(&months).Error
	if err != nil {
		return nil, WrapDBError("list months", err)
	}
	return months, nil
}

// AggregateMonth derives one monthly summary from the daily bucket tables.
// The summary is computed wholesale, so re-running it for the same month
// always produces the same row.
func (r *StatRepository) AggregateMonth(month string) (*MonthlySummary, error) {
	prefix := month + "%"

	summary := &MonthlySummary{Month: month}

	type totalsRow struct {
		TotalOrders  int64
		TotalRevenue float64
	}
	var totals totalsRow
	err := r.db.db.Raw(`
		SELECT COALESCE(SUM(order_count), 0) AS total_orders,
		       COALESCE(SUM(total_revenue), 0) AS total_revenue
		FROM daily_buckets
		WHERE bucket_date LIKE ?
	`, prefix).Scan(&totals).Error
	if err != nil {
		return nil, WrapDBError("aggregate month totals", err)
	}
	summary.TotalOrders = totals.TotalOrders
	summary.TotalRevenue = totals.TotalRevenue
	if totals.TotalOrders > 0 {
		summary.AvgOrderValue = totals.TotalRevenue / float64(totals.TotalOrders)
	}

	var uniqueCustomers int
	err = r.db.db.Raw(`
		SELECT COUNT(DISTINCT customer_key)
		FROM daily_customer_orders
		WHERE bucket_date LIKE ?
	`, prefix).Scan(&uniqueCustomers).Error
	if err != nil {
		return nil, WrapDBError("aggregate month customers", err)
	}
	summary.UniqueCustomers = uniqueCustomers

	var crops []CropQuantityRow
	err = r.db.db.Raw(`
		SELECT crop_key, SUM(quantity) AS quantity
		FROM daily_crop_quantities
		WHERE bucket_date LIKE ?
		GROUP BY crop_key
		ORDER BY quantity DESC, crop_key ASC
	`, prefix).Scan(&crops).Error
	if err != nil {
		return nil, WrapDBError("aggregate month crops", err)
	}
	SortCropRows(crops)
	if raw, err := json.Marshal(crops); err == nil {
		summary.CropBreakdown = string(raw)
	}

	var topCustomers []CustomerOrderRow
	err = r.db.db.Raw(`
		SELECT customer_key, SUM(order_count) AS order_count
		FROM daily_customer_orders
		WHERE bucket_date LIKE ?
		GROUP BY customer_key
		ORDER BY order_count DESC, customer_key ASC
		LIMIT 5
	`, prefix).Scan(&topCustomers).Error
	if err != nil {
		return nil, WrapDBError("aggregate month top customers", err)
	}
	if raw, err := json.Marshal(topCustomers); err == nil {
		summary.TopCustomers = string(raw)
	}

	return summary, nil
}

// GetRevenueSince sums daily revenue from the given bucket date (inclusive)
// forward. Used for the trailing four-week dashboard figure.
func (r *StatRepository) GetRevenueSince(fromDate string) (float64, error) {
	var revenue float64
	err := r.db.db.Raw(`
		SELECT COALESCE(SUM(total_revenue), 0)
		FROM daily_buckets
		WHERE bucket_date >= ?
	`, fromDate).Scan(&revenue).Error
	if err != nil {
		return 0, WrapDBError("revenue since", err)
	}
	return revenue, nil
}

// GetLedgerBounds returns the oldest and newest primary-ledger order dates
// as RFC3339-ish strings, empty when the ledger is empty.
func (r *StatRepository) GetLedgerBounds() (first, last string, err error) {
	type boundsRow struct {
		First *string
		Last  *string
	}
	var bounds boundsRow
	err = r.db.db.Raw(`
		SELECT MIN(created_at)::text AS first, MAX(created_at)::text AS last
		FROM orders
	`).Scan(&bounds).Error
	if err != nil {
		return "", "", WrapDBError("ledger bounds", err)
	}
	if bounds.First != nil {
		first = *bounds.First
	}
	if bounds.Last != nil {
		last = *bounds.Last
	}
	return first, last, nil
}

// SortCropRows orders crop rows largest quantity first with the crop key as
// tiebreaker, so equal quantities always serialize in the same order
func SortCropRows(rows []CropQuantityRow) {
	sort.Slice(rows, func(a, b int) bool {
		if rows[a].Quantity != rows[b].Quantity {
			return rows[a].Quantity > rows[b].Quantity
		}
		return rows[a].CropKey < rows[b].CropKey
	})
}

// String renders a crop row for log lines
func (c CropQuantityRow) String() string {
	return fmt.Sprintf("%s=%.1f", c.CropKey, c.Quantity)
}
