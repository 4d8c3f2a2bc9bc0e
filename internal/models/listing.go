package models

import (
	"time"

	"pawhaven/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing rows are created by the catalogue service; this service only moves their status.
type Listing struct {
	ID        string               `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID   string               `gorm:"type:varchar(36);not null;index" json:"owner_id"` // breeder
	Title     string               `gorm:"size:255" json:"title"`
	Status    domain.ListingStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func (Listing) TableName() string {
	return "listings"
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
