package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionType classifies a ledger entry.
type TransactionType string

// TransactionType constants.
const (
	// TransactionConsume records a debit for a billed operation.
	TransactionConsume TransactionType = "CONSUME"
	// TransactionRefund records credits returned for a prior charge.
	TransactionRefund TransactionType = "REFUND"
	// TransactionGift records granted credits.
	TransactionGift TransactionType = "GIFT"
)

// CreditTransaction is an append-only ledger entry; the engine never updates or deletes one.
type CreditTransaction struct {
	ID string `gorm:"type:uuid;primaryKey"` // Primary key.

	UserID string `gorm:"type:uuid;not null;index"` // Affected user ID.

	Type TransactionType `gorm:"type:text;not null;index"` // Entry classification.

	Amount  int64 `gorm:"not null"` // Signed delta; negative for consumption.
	Balance int64 `gorm:"not null"` // Balance snapshot after the transaction.

	UsageRecordID *string `gorm:"type:uuid;index"` // Related usage record, when one exists.

	Description string `gorm:"type:text"` // Human description.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// BeforeCreate assigns a UUID primary key when missing.
func (t *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
