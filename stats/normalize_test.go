package stats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "farmpulse/database/models_pkg"
)

func validOrder() *models.Order {
	return &models.Order{
		ExternalID:    "shopify-1001",
		CustomerEmail: "Jordan@Example.com",
		Status:        "paid",
		CreatedAt:     day(0),
		Total:         42.50,
		Items: []models.OrderItem{
			{ShopifyProductID: "prod-77", Title: "Sunflower Shoots", Quantity: 4},
		},
	}
}

func TestNormalizeOrderHappyPath(t *testing.T) {
	canonical, skip := NormalizeOrder(validOrder())
	require.Empty(t, skip)
	require.NotNil(t, canonical)

	assert.Equal(t, "shopify-1001", canonical.ExternalID)
	assert.Equal(t, "jordan@example.com", canonical.CustomerKey, "email is lowercased")
	assert.Equal(t, day(0), canonical.Date)
	require.Len(t, canonical.Items, 1)
	assert.Equal(t, "prod-77", canonical.Items[0].CropKey)
	assert.Equal(t, 4.0, canonical.Items[0].Quantity)
}

func TestNormalizeOrderSkipReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *models.Order)
		want   string
	}{
		{"cancelled double-l", func(o *models.Order) { o.Status = "Cancelled" }, SkipCancelled},
		{"cancelled single-l", func(o *models.Order) { o.Status = "canceled" }, SkipCancelled},
		{"no customer identity", func(o *models.Order) {
			o.CustomerEmail, o.CustomerID, o.CustomerName = "", "", "  "
		}, SkipUnknownCustomer},
		{"no line items", func(o *models.Order) { o.Items = nil }, SkipNoLineItems},
		{"all items zero quantity", func(o *models.Order) {
			o.Items = []models.OrderItem{{Title: "Pea Shoots", Quantity: 0}}
		}, SkipNoLineItems},
		{"all items unidentifiable", func(o *models.Order) {
			o.Items = []models.OrderItem{{Quantity: 3}}
		}, SkipNoLineItems},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOrder()
			tt.mutate(o)
			canonical, skip := NormalizeOrder(o)
			assert.Nil(t, canonical)
			assert.Equal(t, tt.want, skip)
		})
	}
}

func TestNormalizeOrderCustomerPrecedence(t *testing.T) {
	o := validOrder()
	o.CustomerEmail = ""
	o.CustomerID = "cust-9"
	o.CustomerName = "Jordan"

	canonical, skip := NormalizeOrder(o)
	require.Empty(t, skip)
	assert.Equal(t, "cust-9", canonical.CustomerKey, "id outranks name when email is missing")

	o.CustomerID = ""
	canonical, _ = NormalizeOrder(o)
	assert.Equal(t, "Jordan", canonical.CustomerKey)
}

func TestNormalizeOrderCropPrecedence(t *testing.T) {
	o := validOrder()
	o.Items = []models.OrderItem{{Title: "Sunflower Shoots", Name: "sunflower", Quantity: 2}}

	canonical, skip := NormalizeOrder(o)
	require.Empty(t, skip)
	assert.Equal(t, "Sunflower Shoots", canonical.Items[0].CropKey, "title outranks name without a product id")

	o.Items = []models.OrderItem{{Name: "sunflower", Quantity: 2}}
	canonical, _ = NormalizeOrder(o)
	assert.Equal(t, "sunflower", canonical.Items[0].CropKey)
}

func TestNormalizeOrderFiltersNonQualifyingItems(t *testing.T) {
	o := validOrder()
	o.Items = append(o.Items,
		models.OrderItem{Title: "Delivery Fee", Quantity: 0},
		models.OrderItem{Title: "Pea Shoots", Quantity: -1},
	)

	canonical, skip := NormalizeOrder(o)
	require.Empty(t, skip)
	assert.Len(t, canonical.Items, 1, "zero and negative quantities drop silently")
}

func TestNormalizeLegacyOrderQtyVariants(t *testing.T) {
	o := &models.LegacyOrder{
		ExternalID:    "legacy-31",
		CustomerEmail: "pat@example.com",
		Status:        "fulfilled",
		CreatedAt:     day(0),
		ItemsJSON:     `[{"title":"Radish Shoots","quantity":3},{"name":"pea shoots","qty":2}]`,
	}

	canonical, skip := NormalizeLegacyOrder(o)
	require.Empty(t, skip)
	require.Len(t, canonical.Items, 2)
	assert.Equal(t, 3.0, canonical.Items[0].Quantity)
	assert.Equal(t, 2.0, canonical.Items[1].Quantity, "qty spelling is honored")
}

func TestNormalizeLegacyOrderBadJSON(t *testing.T) {
	o := &models.LegacyOrder{
		ExternalID:    "legacy-32",
		CustomerEmail: "pat@example.com",
		CreatedAt:     day(0),
		ItemsJSON:     `{not json`,
	}

	canonical, skip := NormalizeLegacyOrder(o)
	assert.Nil(t, canonical)
	assert.Equal(t, SkipNoLineItems, skip)
}

func TestStatKeySanitization(t *testing.T) {
	assert.Equal(t, "jordan@example.com__sunflower-shoots", StatKey("Jordan@Example.com", "Sunflower-Shoots"))
	assert.Equal(t, "a_b__c_d", StatKey("a b", "c/d"))
}

func TestStatKeyLengthCaps(t *testing.T) {
	long := strings.Repeat("x", 100)

	part := SanitizeKeyPart(long)
	assert.Len(t, part, 60)

	key := StatKey(long, long)
	assert.LessOrEqual(t, len(key), 120)
}
