package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type User struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Email         string          `gorm:"uniqueIndex;not null" json:"email"`
	Password      string          `gorm:"not null" json:"-"`
	Name          string          `json:"name"`
	Role          Role            `gorm:"type:varchar(16);not null;default:'user'" json:"role"`
	Verified      bool            `gorm:"not null;default:false" json:"verified"`
	TokenVersion  int             `gorm:"not null;default:0" json:"-"`
	Available     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"available"`
	Pending       decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"pending"`
	TotalEarned   decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"totalEarned"`
	TotalRedeemed decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"totalRedeemed"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return
}

// AfterFind normalizes balances read back from drivers that keep numeric
// columns as floating point.
func (user *User) AfterFind(tx *gorm.DB) (err error) {
	user.Available = user.Available.Round(2)
	user.Pending = user.Pending.Round(2)
	user.TotalEarned = user.TotalEarned.Round(2)
	user.TotalRedeemed = user.TotalRedeemed.Round(2)
	return
}
