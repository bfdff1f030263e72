package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BillingType defines how costs are calculated.
type BillingType string

// BillingType constants define pricing strategies.
const (
	// BillingTypePerRequest charges a flat amount per request.
	BillingTypePerRequest BillingType = "PER_REQUEST"
	// BillingTypePerImage charges per generated image, optionally by resolution.
	BillingTypePerImage BillingType = "PER_IMAGE"
	// BillingTypePerDuration charges linearly by duration in seconds.
	BillingTypePerDuration BillingType = "PER_DURATION"
	// BillingTypeDurationResolution charges by duration and resolution tier.
	BillingTypeDurationResolution BillingType = "DURATION_RESOLUTION"
	// BillingTypePerCharacter charges per character unit.
	BillingTypePerCharacter BillingType = "PER_CHARACTER"
	// BillingTypeDurationMode charges by mode with per-second or per-request pricing.
	BillingTypeDurationMode BillingType = "DURATION_MODE"
	// BillingTypeOperationMode charges an operation price scaled by a mode multiplier.
	BillingTypeOperationMode BillingType = "OPERATION_MODE"
)

// Price dimension identifiers for BillingPrice rows.
const (
	// DimensionResolution prices a resolution value such as "1024x1024" or "720p_5".
	DimensionResolution = "resolution"
	// DimensionMode prices a generation mode such as "fast" or "Relax".
	DimensionMode = "mode"
	// DimensionOperationType prices an operation label such as "Imagine".
	DimensionOperationType = "operationType"
)

// BillingRule defines pricing and applicability for a model, node type, or module type.
type BillingRule struct {
	ID string `gorm:"type:uuid;primaryKey"` // Primary key.

	Name        string `gorm:"type:text;not null"` // Display name.
	Description string `gorm:"type:text"`          // Optional description.

	AIModelID  string `gorm:"type:text;index"` // Target AI model ID, when model-scoped.
	NodeType   string `gorm:"type:text;index"` // Target node type, when node-scoped.
	ModuleType string `gorm:"type:text;index"` // Target module type, when module-scoped.

	BillingType BillingType `gorm:"type:text;not null"` // Billing strategy.
	BaseCredits int64       `gorm:"not null;default:0"` // Fallback flat price.

	Config datatypes.JSON `gorm:"type:jsonb"` // Strategy options (roundUp, pricingUnit).

	// IsActive is always written explicitly: a default tag would make gorm
	// drop an explicit false on insert.
	IsActive bool `gorm:"not null"` // Whether the rule is active.

	Prices []BillingPrice `gorm:"foreignKey:RuleID"` // Per-dimension price rows.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// BeforeCreate assigns a UUID primary key when missing.
func (r *BillingRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// BillingPrice is a priced point on one dimension belonging to a rule.
type BillingPrice struct {
	ID string `gorm:"type:uuid;primaryKey"` // Primary key.

	RuleID string `gorm:"type:uuid;not null;index"` // Owning billing rule ID.

	Dimension string `gorm:"type:text;not null"` // Price dimension (resolution, mode, operationType).
	Value     string `gorm:"type:text;not null"` // Dimension key, e.g. "1024x1024", "720p_5", "fast".

	CreditsPerUnit int64 `gorm:"not null;default:0"` // Flat price or multiplier depending on strategy.
	UnitSize       int   `gorm:"not null;default:0"` // Characters per unit, per-character billing only.

	IsActive bool `gorm:"not null"` // Whether the price row is active; written explicitly.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// BeforeCreate assigns a UUID primary key when missing.
func (p *BillingPrice) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
