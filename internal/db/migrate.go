package db

import (
	"fmt"

	"github.com/pixwave-ai/pixwave-server/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all engine tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.BillingRule{},
		&models.BillingPrice{},
		&models.UsageRecord{},
		&models.CreditTransaction{},
	)
}
