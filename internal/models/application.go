package models

import (
	"time"

	"pawhaven/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Application struct {
	ID              string                   `gorm:"type:varchar(36);primaryKey" json:"id"`
	ListingID       string                   `gorm:"type:varchar(36);not null;index" json:"listing_id"`
	SeekerID        string                   `gorm:"type:varchar(36);not null;index" json:"seeker_id"`
	Status          domain.ApplicationStatus `gorm:"size:20;not null;index:idx_applications_sweep,priority:1" json:"status"`
	ReservationPaid bool                     `gorm:"not null;default:false;index:idx_applications_sweep,priority:2" json:"reservation_paid"`
	PaymentComplete bool                     `gorm:"not null;default:false" json:"payment_complete"`
	ExpiredAt       *time.Time               `json:"expired_at"`
	CompletedAt     *time.Time               `json:"completed_at"`
	CreatedAt       time.Time                `gorm:"index:idx_applications_sweep,priority:3" json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`

	Listing Listing `gorm:"foreignKey:ListingID" json:"-"`
}

func (Application) TableName() string {
	return "applications"
}

func (a *Application) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
