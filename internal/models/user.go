package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User holds the account record and its credit balance.
type User struct {
	ID string `gorm:"type:uuid;primaryKey"` // Primary key.

	Email string `gorm:"type:text;not null;uniqueIndex"` // Login email.
	Name  string `gorm:"type:text"`                      // Display name.

	Credits int64 `gorm:"not null;default:0"` // Current credit balance.

	// IsActive is always written explicitly: a default tag would make gorm
	// drop an explicit false on insert.
	IsActive bool `gorm:"not null"` // Whether the account is enabled.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// BeforeCreate assigns a UUID primary key when missing.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
