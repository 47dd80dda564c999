package store

import (
	"context"
	"sort"

	"github.com/farellandr/cashback/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type StoreFilter struct {
	Search   string
	Category string
	Active   *bool
	Sort     string
}

var storeSorts = map[string]string{
	"createdAt":           "created_at",
	"name":                "name",
	"defaultCashbackRate": "default_cashback_rate",
}

func StoreSortable(key string) bool {
	_, ok := storeSorts[trimSort(key)]
	return ok
}

type Stores struct {
	db *gorm.DB
}

func NewStores(db *gorm.DB) *Stores {
	return &Stores{db: db}
}

func (r *Stores) List(ctx context.Context, f StoreFilter, p PageRequest) ([]models.Store, Page, error) {
	q := r.db.WithContext(ctx).Model(&models.Store{})
	if f.Search != "" {
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(f.Search))
	}
	if f.Category != "" {
		// categories is a JSON array column; match the quoted element.
		q = q.Where("categories LIKE ?", `%"`+f.Category+`"%`)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Page{}, errors.Wrap(err, "count stores")
	}
	var stores []models.Store
	err := q.Scopes(paginate(p)).Order(orderClause(f.Sort, storeSorts, "name ASC, id")).Find(&stores).Error
	if err != nil {
		return nil, Page{}, errors.Wrap(err, "list stores")
	}
	return stores, p.Info(total), nil
}

func (r *Stores) GetByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var s models.Store
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, translate(err, "store")
	}
	return &s, nil
}

func (r *Stores) Create(ctx context.Context, s *models.Store) error {
	return translate(r.db.WithContext(ctx).Create(s).Error, "create store")
}

func (r *Stores) Update(ctx context.Context, id uuid.UUID, cols map[string]interface{}) (*models.Store, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.Store
		if err := tx.Select("id").First(&s, "id = ?", id).Error; err != nil {
			return err
		}
		// categories goes through the JSON serializer, which only runs for
		// struct updates.
		if cats, ok := cols["categories"].([]string); ok {
			err := tx.Model(&models.Store{ID: id}).Select("categories").
				Updates(&models.Store{Categories: cats}).Error
			if err != nil {
				return err
			}
		}
		rest := make(map[string]interface{}, len(cols))
		for k, v := range cols {
			if k != "categories" {
				rest[k] = v
			}
		}
		if len(rest) == 0 {
			return nil
		}
		return tx.Model(&models.Store{}).Where("id = ?", id).Updates(rest).Error
	})
	if err != nil {
		return nil, translate(err, "store")
	}
	return r.GetByID(ctx, id)
}

// Delete removes the store, or deactivates it when coupons, offers or
// cashback transactions reference it.
func (r *Stores) Delete(ctx context.Context, id uuid.UUID) (soft bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.Store
		if err := tx.Select("id").First(&s, "id = ?", id).Error; err != nil {
			return err
		}
		for _, m := range []interface{}{&models.Coupon{}, &models.CashbackOffer{}, &models.CashbackTransaction{}} {
			var refs int64
			if err := tx.Model(m).Where("store_id = ?", id).Count(&refs).Error; err != nil {
				return err
			}
			if refs > 0 {
				soft = true
				return tx.Model(&models.Store{}).Where("id = ?", id).Update("is_active", false).Error
			}
		}
		return tx.Delete(&models.Store{}, "id = ?", id).Error
	})
	return soft, translate(err, "store")
}

// Categories merges the categories of active stores and of coupons.
func (r *Stores) Categories(ctx context.Context) ([]string, error) {
	var rows []models.Store
	if err := r.db.WithContext(ctx).Select("categories").Where("is_active = ?", true).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "store categories")
	}
	var fromCoupons []string
	err := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("category <> ''").Distinct().Pluck("category", &fromCoupons).Error
	if err != nil {
		return nil, errors.Wrap(err, "coupon categories")
	}

	seen := map[string]struct{}{}
	for _, s := range rows {
		for _, c := range s.Categories {
			seen[c] = struct{}{}
		}
	}
	for _, c := range fromCoupons {
		seen[c] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		if c != "" {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, nil
}
