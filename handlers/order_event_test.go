package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmpulse/database"
	"farmpulse/realtime"
	"farmpulse/stats"
)

// fakeStore is an in-memory StatStore. Reads hand out copies so a retry after
// a simulated version conflict sees the stored record, not the caller's
// mutated one, matching how the repository re-reads from the database.
type fakeStore struct {
	orders   map[int64]*database.Order
	harvests map[int64]*database.Harvest
	stats    map[string]*database.CustomerCropStat
	profiles map[string]*database.YieldProfile
	alerts   []*database.Alert

	statCASCalls    int
	statCASFailures int
	profileCASCalls int

	bucketRevenue map[string]float64
	cropQuantity  map[string]float64
	customerHits  map[string]int
	bucketErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:        map[int64]*database.Order{},
		harvests:      map[int64]*database.Harvest{},
		stats:         map[string]*database.CustomerCropStat{},
		profiles:      map[string]*database.YieldProfile{},
		bucketRevenue: map[string]float64{},
		cropQuantity:  map[string]float64{},
		customerHits:  map[string]int{},
	}
}

func (f *fakeStore) GetOrderByID(id int64) (*database.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	return o, nil
}

func (f *fakeStore) GetHarvestByID(id int64) (*database.Harvest, error) {
	h, ok := f.harvests[id]
	if !ok {
		return nil, errors.New("harvest not found")
	}
	return h, nil
}

func (f *fakeStore) GetOrCreateStat(statKey, customerKey, cropKey string) (*database.CustomerCropStat, error) {
	if s, ok := f.stats[statKey]; ok {
		c := *s
		return &c, nil
	}
	return &database.CustomerCropStat{StatKey: statKey, CustomerKey: customerKey, CropKey: cropKey}, nil
}

func (f *fakeStore) UpdateStatCAS(stat *database.CustomerCropStat) error {
	f.statCASCalls++
	if f.statCASFailures > 0 {
		f.statCASFailures--
		return database.ErrVersionConflict
	}
	c := *stat
	f.stats[stat.StatKey] = &c
	return nil
}

func (f *fakeStore) GetOrCreateYieldProfile(cropID string) (*database.YieldProfile, error) {
	if p, ok := f.profiles[cropID]; ok {
		c := *p
		return &c, nil
	}
	return &database.YieldProfile{CropID: cropID}, nil
}

func (f *fakeStore) UpdateYieldProfileCAS(profile *database.YieldProfile) error {
	f.profileCASCalls++
	c := *profile
	f.profiles[profile.CropID] = &c
	return nil
}

func (f *fakeStore) SaveAlert(alert *database.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeStore) IncrementDailyBucket(bucketDate string, revenue float64) error {
	if f.bucketErr != nil {
		return f.bucketErr
	}
	f.bucketRevenue[bucketDate] += revenue
	return nil
}

func (f *fakeStore) IncrementDailyCropQuantity(bucketDate, cropKey string, quantity float64) error {
	f.cropQuantity[bucketDate+"|"+cropKey] += quantity
	return nil
}

func (f *fakeStore) IncrementDailyCustomerOrder(bucketDate, customerKey string) error {
	f.customerHits[bucketDate+"|"+customerKey]++
	return nil
}

type fakeBroker struct {
	events []string
}

func (b *fakeBroker) Broadcast(event string, payload interface{}) {
	b.events = append(b.events, event)
}

type fakeNotifier struct {
	alerts []*database.Alert
}

func (n *fakeNotifier) SendAlert(alert *database.Alert) {
	n.alerts = append(n.alerts, alert)
}

func testOrder() *database.Order {
	return &database.Order{
		ID:            1,
		ExternalID:    "shopify-1",
		CustomerEmail: "jordan@example.com",
		Status:        "paid",
		CreatedAt:     time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Total:         37.50,
		Items: []database.OrderItem{
			{Title: "Sunflower Shoots", Quantity: 4},
			{Title: "Pea Shoots", Quantity: 2},
		},
	}
}

func TestProcessOrderHappyPath(t *testing.T) {
	store := newFakeStore()
	broker := &fakeBroker{}
	h := NewOrderEventHandler(store, nil, broker, 0)

	result, err := h.ProcessOrder(testOrder())
	require.NoError(t, err)

	assert.Empty(t, result.SkipReason)
	assert.Equal(t, 2, result.ItemsProcessed)
	assert.Equal(t, 0, result.AlertsCreated)
	require.Len(t, result.StatKeys, 2)

	sunflower := store.stats[result.StatKeys[0]]
	require.NotNil(t, sunflower)
	assert.Equal(t, int64(1), sunflower.Count)
	assert.Equal(t, 4.0, sunflower.Mean)
	assert.Equal(t, "jordan@example.com", sunflower.CustomerKey)

	// One revenue and customer bump per order, one quantity bump per item
	assert.InDelta(t, 37.50, store.bucketRevenue["2026-03-10"], 1e-9)
	assert.Equal(t, 1, store.customerHits["2026-03-10|jordan@example.com"])
	assert.Equal(t, 4.0, store.cropQuantity["2026-03-10|Sunflower Shoots"])
	assert.Equal(t, 2.0, store.cropQuantity["2026-03-10|Pea Shoots"])

	assert.Equal(t, []string{realtime.EventStatUpdated, realtime.EventStatUpdated}, broker.events)
}

func TestProcessOrderSkipWritesNothing(t *testing.T) {
	store := newFakeStore()
	broker := &fakeBroker{}
	h := NewOrderEventHandler(store, nil, broker, 0)

	order := testOrder()
	order.Status = "cancelled"

	result, err := h.ProcessOrder(order)
	require.NoError(t, err, "a skip is a normal outcome")

	assert.Equal(t, stats.SkipCancelled, result.SkipReason)
	assert.Equal(t, 0, result.ItemsProcessed)
	assert.Empty(t, store.stats)
	assert.Empty(t, store.bucketRevenue)
	assert.Equal(t, []string{realtime.EventOrderSkipped}, broker.events)
}

func TestProcessOrderEmitsAnomalyAlert(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	h := NewOrderEventHandler(store, notifier, nil, 0)

	order := testOrder()
	order.Items = []database.OrderItem{{Title: "Sunflower Shoots", Quantity: 60}}

	// Established history: mean 10 over 4 orders, so 60 blows past the
	// five-times absolute bound.
	key := stats.StatKey("jordan@example.com", "Sunflower Shoots")
	store.stats[key] = &database.CustomerCropStat{
		StatKey: key, CustomerKey: "jordan@example.com", CropKey: "Sunflower Shoots",
		Count: 4, Mean: 10,
	}

	result, err := h.ProcessOrder(order)
	require.NoError(t, err)

	assert.Equal(t, 1, result.AlertsCreated)
	require.Len(t, store.alerts, 1)
	alert := store.alerts[0]
	assert.Equal(t, "order_anomaly", alert.Type)
	assert.Equal(t, "pending", alert.Status)
	assert.Equal(t, key, alert.StatKey)
	require.NotNil(t, alert.SourceOrderID)
	assert.Equal(t, order.ID, *alert.SourceOrderID)
	assert.Equal(t, 60.0, alert.Quantity)
	assert.Equal(t, stats.MethodAbsoluteBounds, alert.Method)

	require.Len(t, notifier.alerts, 1, "alert fans out to webhooks")

	// The anomalous order is still absorbed into the stat
	assert.Equal(t, int64(5), store.stats[key].Count)
}

func TestProcessOrderRetriesOnVersionConflict(t *testing.T) {
	store := newFakeStore()
	store.statCASFailures = 1
	h := NewOrderEventHandler(store, nil, nil, 0)

	order := testOrder()
	order.Items = order.Items[:1]

	result, err := h.ProcessOrder(order)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ItemsProcessed)
	assert.Equal(t, 2, store.statCASCalls, "one conflict then one success")

	// The retry re-read a clean record, so the observation landed once
	stat := store.stats[result.StatKeys[0]]
	assert.Equal(t, int64(1), stat.Count)
	assert.Equal(t, 4.0, stat.Mean)
}

func TestProcessOrderGivesUpAfterRetryLimit(t *testing.T) {
	store := newFakeStore()
	store.statCASFailures = 3
	h := NewOrderEventHandler(store, nil, nil, 3)

	order := testOrder()
	order.Items = order.Items[:1]

	_, err := h.ProcessOrder(order)
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrVersionConflict)
	assert.Equal(t, 3, store.statCASCalls)
}

func TestProcessOrderIDLoadsFromStore(t *testing.T) {
	store := newFakeStore()
	store.orders[1] = testOrder()
	h := NewOrderEventHandler(store, nil, nil, 0)

	result, err := h.ProcessOrderID(1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsProcessed)

	_, err = h.ProcessOrderID(99)
	assert.Error(t, err)
}

func TestProcessOrderBucketFailureIsBestEffort(t *testing.T) {
	store := newFakeStore()
	store.bucketErr = errors.New("connection reset")
	h := NewOrderEventHandler(store, nil, nil, 0)

	result, err := h.ProcessOrder(testOrder())
	require.NoError(t, err, "counter failures never fail the event")
	assert.Equal(t, 2, result.ItemsProcessed)
}
