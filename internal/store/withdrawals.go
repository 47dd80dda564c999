package store

import (
	"context"
	"time"

	"github.com/farellandr/cashback/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Withdrawals struct {
	db *gorm.DB
}

func NewWithdrawals(db *gorm.DB) *Withdrawals {
	return &Withdrawals{db: db}
}

func (r *Withdrawals) Create(ctx context.Context, w *models.Withdrawal) error {
	return translate(r.db.WithContext(ctx).Create(w).Error, "create withdrawal")
}

func (r *Withdrawals) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, translate(err, "withdrawal")
	}
	return &w, nil
}

func (r *Withdrawals) GetByReference(ctx context.Context, ref string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.db.WithContext(ctx).First(&w, "reference = ?", ref).Error; err != nil {
		return nil, translate(err, "withdrawal")
	}
	return &w, nil
}

func (r *Withdrawals) ListByUser(ctx context.Context, userID uuid.UUID, p PageRequest) ([]models.Withdrawal, Page, error) {
	q := r.db.WithContext(ctx).Model(&models.Withdrawal{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Page{}, errors.Wrap(err, "count withdrawals")
	}
	var out []models.Withdrawal
	err := q.Scopes(paginate(p)).Order("requested_at DESC, id").Find(&out).Error
	if err != nil {
		return nil, Page{}, errors.Wrap(err, "list withdrawals")
	}
	return out, p.Info(total), nil
}

// Settle moves a pending withdrawal to status. It reports false when the
// withdrawal was no longer pending.
func (r *Withdrawals) Settle(ctx context.Context, id uuid.UUID, status models.WithdrawalStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, models.WithdrawalPending).
		Updates(map[string]interface{}{"status": status, "settled_at": at})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "settle withdrawal")
	}
	return res.RowsAffected == 1, nil
}
