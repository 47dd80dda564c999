package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Coupon struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Code        string     `gorm:"not null;uniqueIndex" json:"code"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	StoreID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_coupons_store_active,priority:1" json:"store"`
	Store       *Store     `gorm:"foreignKey:StoreID" json:"storeDetails,omitempty"`
	Discount    float64    `gorm:"not null" json:"discount"`
	ExpiryDate  *time.Time `gorm:"index:idx_coupons_active_expiry,priority:2" json:"expiryDate"`
	IsActive    bool       `gorm:"not null;index:idx_coupons_store_active,priority:2;index:idx_coupons_active_expiry,priority:1" json:"isActive"`
	UsageLimit  *int       `json:"usageLimit"`
	UsageCount  int        `gorm:"not null;default:0" json:"usageCount"`
	Category    string     `gorm:"index" json:"category"`
	CreatedBy   uuid.UUID  `gorm:"type:uuid" json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (coupon *Coupon) BeforeCreate(tx *gorm.DB) (err error) {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	return
}

// Redemption is the (user, coupon) record; the unique pair is what enforces
// one redemption per user.
type Redemption struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_redemptions_user_coupon,priority:1" json:"userId"`
	CouponID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_redemptions_user_coupon,priority:2;index" json:"couponId"`
	RedeemedAt time.Time `gorm:"not null" json:"redeemedAt"`
}

func (Redemption) TableName() string {
	return "redemptions"
}

func (redemption *Redemption) BeforeCreate(tx *gorm.DB) (err error) {
	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}
	return
}
