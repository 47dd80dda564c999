package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Store struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Name                string          `gorm:"not null" json:"name"`
	LogoURL             string          `json:"logoUrl"`
	WebsiteURL          string          `json:"websiteUrl"`
	Categories          []string        `gorm:"type:text;serializer:json" json:"categories"`
	IsActive            bool            `gorm:"not null" json:"isActive"`
	DefaultCashbackRate decimal.Decimal `gorm:"type:numeric(6,2);not null;default:0" json:"defaultCashbackRate"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

func (store *Store) BeforeCreate(tx *gorm.DB) (err error) {
	if store.ID == uuid.Nil {
		store.ID = uuid.New()
	}
	return
}
