package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UsageRecord stores one billed or zero-cost generation attempt.
type UsageRecord struct {
	ID string `gorm:"type:uuid;primaryKey"` // Primary key.

	UserID string `gorm:"type:uuid;not null;index"` // Charged user ID.

	ModelID       *string `gorm:"type:text;index"` // Related AI model ID, when model-scoped.
	BillingRuleID *string `gorm:"type:uuid;index"` // Billing rule applied, when one resolved.

	NodeType   string `gorm:"type:text"`          // Workflow node type, when node-scoped.
	ModuleType string `gorm:"type:text"`          // Module type, when module-scoped.
	Operation  string `gorm:"type:text;not null"` // Human operation label.

	Quantity      int     `gorm:"not null;default:0"` // Requested item count.
	Duration      float64 `gorm:"not null;default:0"` // Requested duration in seconds.
	Resolution    string  `gorm:"type:text"`          // Requested resolution string.
	Mode          string  `gorm:"type:text"`          // Requested mode.
	OperationType string  `gorm:"type:text"`          // Requested operation type.

	CreditsCharged int64 `gorm:"not null;default:0"` // Credits actually debited; 0 for free usage.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Raw request params plus free-usage and refund markers.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// BeforeCreate assigns a UUID primary key when missing.
func (u *UsageRecord) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
