package stats

import (
	"encoding/json"
	"strings"
	"time"

	models "farmpulse/database/models_pkg"
)

// Skip reasons returned by the normalization adapter. These are business
// non-matches, not errors: the caller reports them and moves on.
const (
	SkipUnknownCustomer  = "unknown_customer"
	SkipNoLineItems      = "no_line_items"
	SkipCancelled        = "cancelled"
	SkipMissingCropID    = "missing_cropId"
	SkipMissingYieldData = "missing_yield_data"
)

const (
	maxKeyPartLen = 60
	maxStatKeyLen = 120
)

// CanonicalItem is one qualifying line of a canonical order.
type CanonicalItem struct {
	CropKey  string  `json:"crop_key"`
	Quantity float64 `json:"quantity"`
}

// CanonicalOrder is the single event shape the statistics core consumes.
// The adapter resolves all heterogeneous upstream field variants here so
// nothing downstream ever branches on source shape.
type CanonicalOrder struct {
	ExternalID  string          `json:"external_id"`
	CustomerKey string          `json:"customer_key"`
	Date        time.Time       `json:"date"`
	Total       float64         `json:"total"`
	Items       []CanonicalItem `json:"items"`
}

// NormalizeOrder maps a primary-ledger order to the canonical shape.
// A non-empty skip reason means the order does not qualify; the returned
// order is nil in that case.
func NormalizeOrder(o *models.Order) (*CanonicalOrder, string) {
	if isCancelled(o.Status) {
		return nil, SkipCancelled
	}
	customer := resolveCustomerKey(o.CustomerEmail, o.CustomerID, o.CustomerName)
	if customer == "" {
		return nil, SkipUnknownCustomer
	}
	if len(o.Items) == 0 {
		return nil, SkipNoLineItems
	}

	canonical := &CanonicalOrder{
		ExternalID:  o.ExternalID,
		CustomerKey: customer,
		Date:        o.CreatedAt,
		Total:       o.Total,
	}
	for _, item := range o.Items {
		crop := resolveCropKey(item.ShopifyProductID, item.Title, item.Name)
		if crop == "" || item.Quantity <= 0 {
			continue
		}
		canonical.Items = append(canonical.Items, CanonicalItem{CropKey: crop, Quantity: item.Quantity})
	}
	if len(canonical.Items) == 0 {
		return nil, SkipNoLineItems
	}
	return canonical, ""
}

// legacyItem covers the field spellings seen in the spreadsheet import:
// title/name and quantity/qty both occur.
type legacyItem struct {
	Title            string  `json:"title"`
	Name             string  `json:"name"`
	Quantity         float64 `json:"quantity"`
	Qty              float64 `json:"qty"`
	ShopifyProductID string  `json:"shopify_product_id"`
}

// NormalizeLegacyOrder maps a legacy-ledger order to the canonical shape.
// Unparseable item JSON counts as having no line items.
func NormalizeLegacyOrder(o *models.LegacyOrder) (*CanonicalOrder, string) {
	if isCancelled(o.Status) {
		return nil, SkipCancelled
	}
	customer := resolveCustomerKey(o.CustomerEmail, "", o.CustomerName)
	if customer == "" {
		return nil, SkipUnknownCustomer
	}

	var items []legacyItem
	if o.ItemsJSON != "" {
		if err := json.Unmarshal([]byte(o.ItemsJSON), &items); err != nil {
			items = nil
		}
	}
	if len(items) == 0 {
		return nil, SkipNoLineItems
	}

	canonical := &CanonicalOrder{
		ExternalID:  o.ExternalID,
		CustomerKey: customer,
		Date:        o.CreatedAt,
		Total:       o.Total,
	}
	for _, item := range items {
		qty := item.Quantity
		if qty == 0 {
			qty = item.Qty
		}
		crop := resolveCropKey(item.ShopifyProductID, item.Title, item.Name)
		if crop == "" || qty <= 0 {
			continue
		}
		canonical.Items = append(canonical.Items, CanonicalItem{CropKey: crop, Quantity: qty})
	}
	if len(canonical.Items) == 0 {
		return nil, SkipNoLineItems
	}
	return canonical, ""
}

// StatKey derives the single storage key for a customer-crop pair. The
// derivation must stay identical across the real-time, nightly, and backfill
// paths; changing it orphans every existing record.
func StatKey(customerKey, cropKey string) string {
	key := SanitizeKeyPart(customerKey) + "__" + SanitizeKeyPart(cropKey)
	if len(key) > maxStatKeyLen {
		key = key[:maxStatKeyLen]
	}
	return key
}

// SanitizeKeyPart lowercases, trims, and strips path-unsafe characters from
// one key component, capping its length.
func SanitizeKeyPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '@', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > maxKeyPartLen {
		out = out[:maxKeyPartLen]
	}
	return out
}

func resolveCustomerKey(email, id, name string) string {
	if v := strings.TrimSpace(email); v != "" {
		return strings.ToLower(v)
	}
	if v := strings.TrimSpace(id); v != "" {
		return v
	}
	return strings.TrimSpace(name)
}

func resolveCropKey(productID, title, name string) string {
	if v := strings.TrimSpace(productID); v != "" {
		return v
	}
	if v := strings.TrimSpace(title); v != "" {
		return v
	}
	return strings.TrimSpace(name)
}

func isCancelled(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	return s == "cancelled" || s == "canceled"
}
