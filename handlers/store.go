package handlers

import (
	"farmpulse/database"
)

// StatStore is the slice of the repository the event handlers need.
// *database.StatRepository satisfies it; tests substitute an in-memory fake.
type StatStore interface {
	GetOrderByID(id int64) (*database.Order, error)
	GetHarvestByID(id int64) (*database.Harvest, error)

	GetOrCreateStat(statKey, customerKey, cropKey string) (*database.CustomerCropStat, error)
	UpdateStatCAS(stat *database.CustomerCropStat) error

	GetOrCreateYieldProfile(cropID string) (*database.YieldProfile, error)
	UpdateYieldProfileCAS(profile *database.YieldProfile) error

	SaveAlert(alert *database.Alert) error

	IncrementDailyBucket(bucketDate string, revenue float64) error
	IncrementDailyCropQuantity(bucketDate, cropKey string, quantity float64) error
	IncrementDailyCustomerOrder(bucketDate, customerKey string) error
}

// Broadcaster pushes events to connected dashboard clients
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// AlertNotifier fans a persisted alert out to registered webhooks
type AlertNotifier interface {
	SendAlert(alert *database.Alert)
}
