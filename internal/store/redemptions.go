package store

import (
	"context"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Redemptions struct {
	db *gorm.DB
}

func NewRedemptions(db *gorm.DB) *Redemptions {
	return &Redemptions{db: db}
}

func (r *Redemptions) Exists(ctx context.Context, userID, couponID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Redemption{}).
		Where("user_id = ? AND coupon_id = ?", userID, couponID).Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "redemption exists")
	}
	return n > 0, nil
}

// Insert returns an apperr Conflict when the (user, coupon) pair exists.
func (r *Redemptions) Insert(ctx context.Context, rec *models.Redemption) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.KindConflict, err)
	}
	return translate(err, "insert redemption")
}

type RedemptionView struct {
	models.Redemption
	Coupon *models.Coupon `gorm:"foreignKey:CouponID" json:"coupon"`
}

func (RedemptionView) TableName() string {
	return "redemptions"
}

func (r *Redemptions) ListByUser(ctx context.Context, userID uuid.UUID, p PageRequest) ([]RedemptionView, Page, error) {
	q := r.db.WithContext(ctx).Model(&RedemptionView{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Page{}, errors.Wrap(err, "count redemptions")
	}
	var out []RedemptionView
	err := q.Scopes(paginate(p)).Order("redeemed_at DESC").Preload("Coupon").Find(&out).Error
	if err != nil {
		return nil, Page{}, errors.Wrap(err, "list redemptions")
	}
	return out, p.Info(total), nil
}
