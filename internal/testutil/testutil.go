// Package testutil builds in-memory ledger databases for tests.
package testutil

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transport-ledger-backend/internal/models"
)

// NewDB opens a migrated in-memory SQLite database that lives until the test ends.
// A single connection keeps every query on the same in-memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SeedCustomer(t testing.TB, db *gorm.DB, name string) *models.Customer {
	t.Helper()
	c := &models.Customer{Name: name}
	require.NoError(t, db.Create(c).Error)
	return c
}

// SeedRequest stores a transport request for customer with the given billing data.
func SeedRequest(t testing.TB, db *gorm.DB, customerID uint, consigner, price string, createdAt time.Time) *models.TransportRequest {
	t.Helper()
	r := &models.TransportRequest{
		CustomerID:     customerID,
		Consigner:      consigner,
		Consignee:      "Consignee of " + consigner,
		FromLocation:   "Pune",
		ToLocation:     "Nagpur",
		RequestedPrice: Money(price),
		CreatedAt:      createdAt,
	}
	require.NoError(t, db.Create(r).Error)
	return r
}
