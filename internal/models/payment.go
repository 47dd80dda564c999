package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type WithdrawalStatus string

const (
	WithdrawalPending WithdrawalStatus = "pending"
	WithdrawalPaid    WithdrawalStatus = "paid"
	WithdrawalFailed  WithdrawalStatus = "failed"
)

// Withdrawal moves a user's available balance to an external destination.
// Reference is the id handed to the payout provider.
type Withdrawal struct {
	ID          uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	UserID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"user"`
	Amount      decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"amount"`
	Method      string           `gorm:"not null" json:"method"`
	Destination string           `gorm:"not null" json:"destination"`
	Status      WithdrawalStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	Reference   string           `gorm:"not null;uniqueIndex" json:"reference"`
	RequestedAt time.Time        `gorm:"not null" json:"requestedAt"`
	SettledAt   *time.Time       `json:"settledAt"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func (withdrawal *Withdrawal) BeforeCreate(tx *gorm.DB) (err error) {
	if withdrawal.ID == uuid.Nil {
		withdrawal.ID = uuid.New()
	}
	return
}

func (withdrawal *Withdrawal) AfterFind(tx *gorm.DB) (err error) {
	withdrawal.Amount = withdrawal.Amount.Round(2)
	return
}
