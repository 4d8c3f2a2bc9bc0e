package models

import (
	"time"

	"pawhaven/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transaction is one payment attempt and the idempotency record for its webhook.
type Transaction struct {
	ID                string                   `gorm:"type:varchar(36);primaryKey" json:"id"`
	ApplicationID     string                   `gorm:"type:varchar(36);not null;index:idx_tx_app_type,priority:1" json:"application_id"`
	SeekerID          string                   `gorm:"type:varchar(36);not null;index" json:"seeker_id"`
	BreederID         string                   `gorm:"type:varchar(36);not null;index" json:"breeder_id"`
	ListingID         string                   `gorm:"type:varchar(36);not null" json:"listing_id"`
	Amount            int64                    `gorm:"not null" json:"amount"` // minor units
	CommissionFee     int64                    `gorm:"not null;default:0" json:"commission_fee"`
	Currency          string                   `gorm:"size:3;not null" json:"currency"`
	PaymentType       domain.PaymentType       `gorm:"size:20;not null;index:idx_tx_app_type,priority:2" json:"payment_type"`
	Status            domain.TransactionStatus `gorm:"size:20;not null;index" json:"status"`
	ExternalReference string                   `gorm:"size:128;not null;uniqueIndex" json:"external_reference"`
	PayoutStatus      domain.PayoutStatus      `gorm:"size:20;not null;default:'pending'" json:"payout_status"`
	FailureReason     string                   `gorm:"size:64" json:"failure_reason,omitempty"`
	PaidAt            *time.Time               `json:"paid_at"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
