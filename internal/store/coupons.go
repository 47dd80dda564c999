package store

import (
	"context"
	"strings"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type CouponFilter struct {
	Search   string
	Category string
	StoreID  *uuid.UUID
	Active   *bool
	Sort     string
}

var couponSorts = map[string]string{
	"createdAt":  "created_at",
	"expiryDate": "expiry_date",
	"discount":   "discount",
	"title":      "title",
	"usageCount": "usage_count",
	"code":       "code",
}

// CouponSortable reports whether key (optionally prefixed with '-') names a
// sortable coupon field.
func CouponSortable(key string) bool {
	_, ok := couponSorts[trimSort(key)]
	return ok
}

func trimSort(key string) string {
	return strings.TrimPrefix(key, "-")
}

func orderClause(sort string, allowed map[string]string, def string) string {
	desc := strings.HasPrefix(sort, "-")
	col, ok := allowed[trimSort(sort)]
	if !ok {
		return def
	}
	if desc {
		return col + " DESC, id"
	}
	return col + " ASC, id"
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

type Coupons struct {
	db *gorm.DB
}

func NewCoupons(db *gorm.DB) *Coupons {
	return &Coupons{db: db}
}

func (r *Coupons) List(ctx context.Context, f CouponFilter, p PageRequest) ([]models.Coupon, Page, error) {
	q := r.db.WithContext(ctx).Model(&models.Coupon{})
	if f.Search != "" {
		pat := likePattern(f.Search)
		q = q.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(code) LIKE ? ESCAPE '\')`, pat, pat, pat)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.StoreID != nil {
		q = q.Where("store_id = ?", *f.StoreID)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Page{}, errors.Wrap(err, "count coupons")
	}

	var coupons []models.Coupon
	err := q.Scopes(paginate(p)).
		Order(orderClause(f.Sort, couponSorts, "created_at DESC, id")).
		Preload("Store").
		Find(&coupons).Error
	if err != nil {
		return nil, Page{}, errors.Wrap(err, "list coupons")
	}
	return coupons, p.Info(total), nil
}

func (r *Coupons) GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Preload("Store").First(&coupon, "id = ?", id).Error; err != nil {
		return nil, translate(err, "coupon")
	}
	return &coupon, nil
}

func (r *Coupons) Create(ctx context.Context, coupon *models.Coupon) error {
	err := r.db.WithContext(ctx).Omit("Store").Create(coupon).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &apperr.Error{Kind: apperr.KindConflict, Field: "code", Msg: "coupon code already exists"}
	}
	return translate(err, "create coupon")
}

// Update applies column updates and returns the fresh row.
func (r *Coupons) Update(ctx context.Context, id uuid.UUID, cols map[string]interface{}) (*models.Coupon, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var coupon models.Coupon
		if err := tx.Select("id").First(&coupon, "id = ?", id).Error; err != nil {
			return err
		}
		if len(cols) == 0 {
			return nil
		}
		q := tx.Model(&models.Coupon{}).Where("id = ?", id)
		limit, limited := cols["usage_limit"].(int)
		if limited {
			q = q.Where("usage_count <= ?", limit)
		}
		res := q.Updates(cols)
		if res.Error != nil {
			return res.Error
		}
		if limited && res.RowsAffected == 0 {
			return apperr.Validation("usageLimit", "is below the current usage count")
		}
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, translate(err, "coupon")
	}
	return r.GetByID(ctx, id)
}

// Delete removes the coupon, or deactivates it when a redemption references
// it. soft reports which happened.
func (r *Coupons) Delete(ctx context.Context, id uuid.UUID) (soft bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var coupon models.Coupon
		if err := tx.Select("id").First(&coupon, "id = ?", id).Error; err != nil {
			return err
		}
		var refs int64
		if err := tx.Model(&models.Redemption{}).Where("coupon_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			soft = true
			return tx.Model(&models.Coupon{}).Where("id = ?", id).Update("is_active", false).Error
		}
		return tx.Delete(&models.Coupon{}, "id = ?", id).Error
	})
	return soft, translate(err, "coupon")
}

// IncrementUsage adds one use if the coupon still has allowance left. It
// reports false when the limit was already reached at commit time.
func (r *Coupons) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "increment usage")
	}
	return res.RowsAffected == 1, nil
}

func (r *Coupons) DecrementUsage(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ? AND usage_count > 0", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count - 1"))
	if res.Error != nil {
		return errors.Wrap(res.Error, "decrement usage")
	}
	if res.RowsAffected == 0 {
		return errors.New("decrement usage: no row updated")
	}
	return nil
}
