package catalog

import (
	"context"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type StoreQuery struct {
	Search   string
	Category string
	Active   *bool
	Sort     string
	Page     int
	Limit    int
}

func (s *Service) ListStores(ctx context.Context, q StoreQuery) ([]models.Store, store.Page, error) {
	if q.Sort != "" && !store.StoreSortable(q.Sort) {
		return nil, store.Page{}, apperr.Validation("sort", "unsupported sort field")
	}
	return s.stores.List(ctx, store.StoreFilter{
		Search:   q.Search,
		Category: q.Category,
		Active:   q.Active,
		Sort:     q.Sort,
	}, s.PageRequest(q.Page, q.Limit))
}

func (s *Service) GetStore(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	return s.stores.GetByID(ctx, id)
}

type StoreInput struct {
	Name                string           `json:"name" validate:"required,max=120"`
	LogoURL             string           `json:"logoUrl" validate:"omitempty,url"`
	WebsiteURL          string           `json:"websiteUrl" validate:"omitempty,url"`
	Categories          []string         `json:"categories" validate:"max=20,dive,required,max=60"`
	IsActive            *bool            `json:"isActive"`
	DefaultCashbackRate *decimal.Decimal `json:"defaultCashbackRate"`
}

func nonNegativeRate(field string) func(decimal.Decimal) error {
	return func(d decimal.Decimal) error {
		if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
			return apperr.Validation(field, "must be between 0 and 100")
		}
		return nil
	}
}

func positiveRate(field string) func(decimal.Decimal) error {
	return func(d decimal.Decimal) error {
		if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(100)) {
			return apperr.Validation(field, "must be greater than 0 and at most 100")
		}
		return nil
	}
}

func (s *Service) CreateStore(ctx context.Context, in StoreInput, actor Actor) (*models.Store, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	rate := decimal.Zero
	if in.DefaultCashbackRate != nil {
		if err := nonNegativeRate("defaultCashbackRate")(*in.DefaultCashbackRate); err != nil {
			return nil, err
		}
		rate = in.DefaultCashbackRate.Round(2)
	}
	categories := in.Categories
	if categories == nil {
		categories = []string{}
	}
	st := &models.Store{
		Name:                in.Name,
		LogoURL:             in.LogoURL,
		WebsiteURL:          in.WebsiteURL,
		Categories:          categories,
		IsActive:            in.IsActive == nil || *in.IsActive,
		DefaultCashbackRate: rate,
	}
	if err := s.stores.Create(ctx, st); err != nil {
		return nil, err
	}
	s.log.Info("store created", zap.String("store_id", st.ID.String()))
	return st, nil
}

func (s *Service) UpdateStore(ctx context.Context, id uuid.UUID, patch Patch, actor Actor) (*models.Store, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	cols, err := patch.columns(map[string]patchField{
		"name":       decodeInto("name", "name", nonEmpty("name")),
		"logoUrl":    decodeInto[string]("logoUrl", "logo_url", nil),
		"websiteUrl": decodeInto[string]("websiteUrl", "website_url", nil),
		"categories": categoriesField,
		"isActive":   decodeInto[bool]("isActive", "is_active", nil),
		"defaultCashbackRate": decimalField("defaultCashbackRate", "default_cashback_rate",
			nonNegativeRate("defaultCashbackRate")),
	}, "id")
	if err != nil {
		return nil, err
	}
	return s.stores.Update(ctx, id, cols)
}

// SetStoreLogo records the public URL of an uploaded logo.
func (s *Service) SetStoreLogo(ctx context.Context, id uuid.UUID, url string, actor Actor) (*models.Store, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	return s.stores.Update(ctx, id, map[string]interface{}{"logo_url": url})
}

func (s *Service) DeleteStore(ctx context.Context, id uuid.UUID, actor Actor) (bool, error) {
	if err := actor.requireAdmin(); err != nil {
		return false, err
	}
	soft, err := s.stores.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	s.log.Info("store deleted", zap.String("store_id", id.String()), zap.Bool("soft", soft))
	return soft, nil
}

func (s *Service) ListOffers(ctx context.Context, storeID uuid.UUID, activeOnly bool) ([]models.CashbackOffer, error) {
	if _, err := s.stores.GetByID(ctx, storeID); err != nil {
		return nil, err
	}
	return s.offers.ListByStore(ctx, storeID, activeOnly)
}

type OfferInput struct {
	StoreID  uuid.UUID       `json:"store" validate:"required"`
	Title    string          `json:"title" validate:"required,max=200"`
	Rate     decimal.Decimal `json:"rate"`
	IsActive *bool           `json:"isActive"`
	StartsAt *time.Time      `json:"startsAt"`
	EndsAt   *time.Time      `json:"endsAt"`
}

func (s *Service) CreateOffer(ctx context.Context, in OfferInput, actor Actor) (*models.CashbackOffer, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := positiveRate("rate")(in.Rate); err != nil {
		return nil, err
	}
	if in.StartsAt != nil && in.EndsAt != nil && !in.EndsAt.After(*in.StartsAt) {
		return nil, apperr.Validation("endsAt", "must be after startsAt")
	}
	if err := s.requireStore(ctx, in.StoreID); err != nil {
		return nil, err
	}
	offer := &models.CashbackOffer{
		StoreID:  in.StoreID,
		Title:    in.Title,
		Rate:     in.Rate.Round(2),
		IsActive: in.IsActive == nil || *in.IsActive,
		StartsAt: utcPtr(in.StartsAt),
		EndsAt:   utcPtr(in.EndsAt),
	}
	if err := s.offers.Create(ctx, offer); err != nil {
		return nil, err
	}
	return offer, nil
}

func (s *Service) UpdateOffer(ctx context.Context, id uuid.UUID, patch Patch, actor Actor) (*models.CashbackOffer, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	cols, err := patch.columns(map[string]patchField{
		"title":    decodeInto("title", "title", nonEmpty("title")),
		"rate":     decimalField("rate", "rate", positiveRate("rate")),
		"isActive": decodeInto[bool]("isActive", "is_active", nil),
		"startsAt": nullableTime("startsAt", "starts_at"),
		"endsAt":   nullableTime("endsAt", "ends_at"),
	}, "id", "store")
	if err != nil {
		return nil, err
	}
	return s.offers.Update(ctx, id, cols)
}

func (s *Service) DeleteOffer(ctx context.Context, id uuid.UUID, actor Actor) (bool, error) {
	if err := actor.requireAdmin(); err != nil {
		return false, err
	}
	return s.offers.Delete(ctx, id)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
