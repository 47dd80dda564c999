package store

import (
	"context"
	"time"

	"github.com/farellandr/cashback/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Offers struct {
	db *gorm.DB
}

func NewOffers(db *gorm.DB) *Offers {
	return &Offers{db: db}
}

func (r *Offers) ListByStore(ctx context.Context, storeID uuid.UUID, activeOnly bool) ([]models.CashbackOffer, error) {
	q := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var offers []models.CashbackOffer
	err := q.Order("rate DESC, created_at").Find(&offers).Error
	return offers, errors.Wrap(err, "list offers")
}

// BestLive returns the highest-rate offer live at t, or nil.
func (r *Offers) BestLive(ctx context.Context, storeID uuid.UUID, t time.Time) (*models.CashbackOffer, error) {
	offers, err := r.ListByStore(ctx, storeID, true)
	if err != nil {
		return nil, err
	}
	for i := range offers {
		if offers[i].LiveAt(t) {
			return &offers[i], nil
		}
	}
	return nil, nil
}

func (r *Offers) GetByID(ctx context.Context, id uuid.UUID) (*models.CashbackOffer, error) {
	var o models.CashbackOffer
	if err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, translate(err, "offer")
	}
	return &o, nil
}

func (r *Offers) Create(ctx context.Context, o *models.CashbackOffer) error {
	return translate(r.db.WithContext(ctx).Create(o).Error, "create offer")
}

func (r *Offers) Update(ctx context.Context, id uuid.UUID, cols map[string]interface{}) (*models.CashbackOffer, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o models.CashbackOffer
		if err := tx.Select("id").First(&o, "id = ?", id).Error; err != nil {
			return err
		}
		if len(cols) == 0 {
			return nil
		}
		return tx.Model(&models.CashbackOffer{}).Where("id = ?", id).Updates(cols).Error
	})
	if err != nil {
		return nil, translate(err, "offer")
	}
	return r.GetByID(ctx, id)
}

// Delete removes the offer, or deactivates it when a cashback transaction
// was priced from it.
func (r *Offers) Delete(ctx context.Context, id uuid.UUID) (soft bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o models.CashbackOffer
		if err := tx.Select("id").First(&o, "id = ?", id).Error; err != nil {
			return err
		}
		var refs int64
		if err := tx.Model(&models.CashbackTransaction{}).Where("offer_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			soft = true
			return tx.Model(&models.CashbackOffer{}).Where("id = ?", id).Update("is_active", false).Error
		}
		return tx.Delete(&models.CashbackOffer{}, "id = ?", id).Error
	})
	return soft, translate(err, "offer")
}
