package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusPaid      TransactionStatus = "paid"
	StatusRejected  TransactionStatus = "rejected"
)

// CashbackTransaction attributes a cashback reward to a user for a purchase.
// Rows are never deleted; only Status and its dates move forward.
type CashbackTransaction struct {
	ID               uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	UserID           uuid.UUID         `gorm:"type:uuid;not null;index:idx_cashback_user_status,priority:1" json:"user"`
	StoreID          uuid.UUID         `gorm:"type:uuid;not null;index" json:"store"`
	GrossAmount      decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"grossAmount"`
	Rate             decimal.Decimal   `gorm:"type:numeric(6,2);not null" json:"rate"`
	CashbackAmount   decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"cashbackAmount"`
	Status           TransactionStatus `gorm:"type:varchar(16);not null;index:idx_cashback_user_status,priority:2;index:idx_cashback_status_purchase,priority:1" json:"status"`
	PurchaseDate     time.Time         `gorm:"not null;index:idx_cashback_status_purchase,priority:2" json:"purchaseDate"`
	ConfirmationDate *time.Time        `json:"confirmationDate"`
	PaymentDate      *time.Time        `json:"paymentDate"`
	RejectionDate    *time.Time        `json:"rejectionDate,omitempty"`
	CouponUsed       *uuid.UUID        `gorm:"type:uuid" json:"couponUsed,omitempty"`
	OfferID          *uuid.UUID        `gorm:"type:uuid;index" json:"offer,omitempty"`
	ExternalRef      *string           `gorm:"uniqueIndex" json:"externalRef,omitempty"`
	WithdrawalID     *uuid.UUID        `gorm:"type:uuid;index" json:"withdrawalId,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

func (transaction *CashbackTransaction) BeforeCreate(tx *gorm.DB) (err error) {
	if transaction.ID == uuid.Nil {
		transaction.ID = uuid.New()
	}
	return
}

func (transaction *CashbackTransaction) AfterFind(tx *gorm.DB) (err error) {
	transaction.GrossAmount = transaction.GrossAmount.Round(2)
	transaction.Rate = transaction.Rate.Round(2)
	transaction.CashbackAmount = transaction.CashbackAmount.Round(2)
	return
}

// InFlight reports whether the transaction is frozen by a pending withdrawal.
func (transaction *CashbackTransaction) InFlight() bool {
	return transaction.WithdrawalID != nil
}
