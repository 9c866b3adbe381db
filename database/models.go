// Package database provides database connection management for the farmpulse
// demand and yield analytics system.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - Repositories for the statistics core's keyed record contracts
//   - Comprehensive error handling and validation
//
// Key Concepts:
//   - Optimistic compare-and-swap updates on keyed statistics records
//   - Single-statement upsert increments for daily rollup counters
//   - Chunked batch writes for the nightly and backfill jobs
//
// Data Models:
//
//	All data models (Order, CustomerCropStat, YieldProfile, etc.) are defined
//	in the models_pkg package to avoid circular import dependencies.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "farmpulse/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
// It serves as the central connection point for all database operations in the application.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// Backward Compatibility Type Aliases
// ============================================================================

// These type aliases keep callers importing types from the database package
// directly, without reaching into models_pkg.

// Core data models - type aliases for backward compatibility
type Order = models.Order
type OrderItem = models.OrderItem
type LegacyOrder = models.LegacyOrder
type Harvest = models.Harvest
type CustomerCropStat = models.CustomerCropStat
type DailyBucket = models.DailyBucket
type DailyCropQuantity = models.DailyCropQuantity
type DailyCustomerOrder = models.DailyCustomerOrder
type MonthlySummary = models.MonthlySummary
type YieldProfile = models.YieldProfile
type Alert = models.Alert
type DashboardSnapshot = models.DashboardSnapshot
type SystemState = models.SystemState
type AlertWebhook = models.AlertWebhook
type AlertWebhookLog = models.AlertWebhookLog
