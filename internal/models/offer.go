package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashbackOffer overrides a store's default cashback rate for a period.
type CashbackOffer struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	StoreID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"store"`
	Title     string          `gorm:"not null" json:"title"`
	Rate      decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"rate"`
	IsActive  bool            `gorm:"not null" json:"isActive"`
	StartsAt  *time.Time      `json:"startsAt"`
	EndsAt    *time.Time      `json:"endsAt"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (offer *CashbackOffer) BeforeCreate(tx *gorm.DB) (err error) {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	return
}

// LiveAt reports whether the offer applies to a purchase made at t.
func (offer *CashbackOffer) LiveAt(t time.Time) bool {
	if !offer.IsActive {
		return false
	}
	if offer.StartsAt != nil && t.Before(*offer.StartsAt) {
		return false
	}
	if offer.EndsAt != nil && !t.Before(*offer.EndsAt) {
		return false
	}
	return true
}
