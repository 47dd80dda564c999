// Package catalog manages stores, coupons and cashback offers on behalf of
// admins and lists them for everyone.
package catalog

import (
	"context"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

func (a Actor) requireAdmin() error {
	if a.Role != models.RoleAdmin {
		return apperr.New(apperr.KindForbidden, "admin role required")
	}
	return nil
}

type Service struct {
	coupons *store.Coupons
	stores  *store.Stores
	offers  *store.Offers
	pageMax int
	log     *zap.Logger
}

func NewService(coupons *store.Coupons, stores *store.Stores, offers *store.Offers, pageMax int, log *zap.Logger) *Service {
	return &Service{
		coupons: coupons,
		stores:  stores,
		offers:  offers,
		pageMax: pageMax,
		log:     log,
	}
}

// PageRequest clamps a caller supplied page and limit.
func (s *Service) PageRequest(page, limit int) store.PageRequest {
	return store.NewPageRequest(page, limit, s.pageMax)
}

type CouponQuery struct {
	Search   string
	Category string
	StoreID  *uuid.UUID
	Active   *bool
	Sort     string
	Page     int
	Limit    int
}

func (s *Service) ListCoupons(ctx context.Context, q CouponQuery) ([]models.Coupon, store.Page, error) {
	if q.Sort != "" && !store.CouponSortable(q.Sort) {
		return nil, store.Page{}, apperr.Validation("sort", "unsupported sort field")
	}
	return s.coupons.List(ctx, store.CouponFilter{
		Search:   q.Search,
		Category: q.Category,
		StoreID:  q.StoreID,
		Active:   q.Active,
		Sort:     q.Sort,
	}, s.PageRequest(q.Page, q.Limit))
}

func (s *Service) GetCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	return s.coupons.GetByID(ctx, id)
}

type CouponInput struct {
	Code        string     `json:"code" validate:"required"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	StoreID     uuid.UUID  `json:"store" validate:"required"`
	Discount    *float64   `json:"discount" validate:"required,gte=0,lte=100"`
	ExpiryDate  *time.Time `json:"expiryDate"`
	IsActive    *bool      `json:"isActive"`
	UsageLimit  *int       `json:"usageLimit" validate:"omitempty,gt=0"`
	Category    string     `json:"category" validate:"max=100"`
}

func (s *Service) CreateCoupon(ctx context.Context, in CouponInput, actor Actor) (*models.Coupon, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	code, err := NormalizeCode(in.Code)
	if err != nil {
		return nil, err
	}
	if err := s.requireStore(ctx, in.StoreID); err != nil {
		return nil, err
	}

	coupon := &models.Coupon{
		Code:        code,
		Title:       in.Title,
		Description: in.Description,
		StoreID:     in.StoreID,
		Discount:    *in.Discount,
		IsActive:    in.IsActive == nil || *in.IsActive,
		UsageLimit:  in.UsageLimit,
		Category:    in.Category,
		CreatedBy:   actor.ID,
	}
	if in.ExpiryDate != nil {
		t := in.ExpiryDate.UTC()
		coupon.ExpiryDate = &t
	}
	if err := s.coupons.Create(ctx, coupon); err != nil {
		return nil, err
	}
	s.log.Info("coupon created", zap.String("coupon_id", coupon.ID.String()), zap.String("code", code))
	return s.coupons.GetByID(ctx, coupon.ID)
}

func (s *Service) requireStore(ctx context.Context, id uuid.UUID) error {
	if _, err := s.stores.GetByID(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("store", "unknown store")
		}
		return err
	}
	return nil
}

func (s *Service) UpdateCoupon(ctx context.Context, id uuid.UUID, patch Patch, actor Actor) (*models.Coupon, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	cols, err := patch.columns(map[string]patchField{
		"title":       decodeInto("title", "title", nonEmpty("title")),
		"description": decodeInto[string]("description", "description", nil),
		"store":       uuidField("store", "store_id"),
		"discount": decodeInto("discount", "discount", func(v float64) error {
			if v < 0 || v > 100 {
				return apperr.Validation("discount", "must be between 0 and 100")
			}
			return nil
		}),
		"expiryDate": nullableTime("expiryDate", "expiry_date"),
		"isActive":   decodeInto[bool]("isActive", "is_active", nil),
		"usageLimit": nullableLimit,
		"category":   decodeInto[string]("category", "category", nil),
	}, "code", "id", "usageCount", "createdBy")
	if err != nil {
		return nil, err
	}
	if storeID, ok := cols["store_id"].(uuid.UUID); ok {
		if err := s.requireStore(ctx, storeID); err != nil {
			return nil, err
		}
	}
	return s.coupons.Update(ctx, id, cols)
}

// DeleteCoupon hard-deletes an unreferenced coupon and deactivates one that
// has been redeemed. soft reports which happened.
func (s *Service) DeleteCoupon(ctx context.Context, id uuid.UUID, actor Actor) (soft bool, err error) {
	if err := actor.requireAdmin(); err != nil {
		return false, err
	}
	soft, err = s.coupons.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	s.log.Info("coupon deleted", zap.String("coupon_id", id.String()), zap.Bool("soft", soft))
	return soft, nil
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.stores.Categories(ctx)
}
