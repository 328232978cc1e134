package database

import (
	"fmt"

	"github.com/kasuwa/escrow-api/internal/database/migrations"
	"github.com/kasuwa/escrow-api/internal/notify"
	"github.com/kasuwa/escrow-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddEscrowTransactions(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddTradeFulfillment(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&types.User{},
		&types.Listing{},
		&types.Order{},
		&notify.Notification{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
