package store

import (
	"context"
	"time"

	"github.com/farellandr/cashback/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Transactions struct {
	db *gorm.DB
}

func NewTransactions(db *gorm.DB) *Transactions {
	return &Transactions{db: db}
}

func (r *Transactions) Create(ctx context.Context, t *models.CashbackTransaction) error {
	return translate(r.db.WithContext(ctx).Create(t).Error, "create cashback transaction")
}

func (r *Transactions) GetByID(ctx context.Context, id uuid.UUID) (*models.CashbackTransaction, error) {
	var t models.CashbackTransaction
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(err, "cashback transaction")
	}
	return &t, nil
}

func (r *Transactions) GetByExternalRef(ctx context.Context, ref string) (*models.CashbackTransaction, error) {
	var t models.CashbackTransaction
	if err := r.db.WithContext(ctx).First(&t, "external_ref = ?", ref).Error; err != nil {
		return nil, translate(err, "cashback transaction")
	}
	return &t, nil
}

func (r *Transactions) ListByUser(ctx context.Context, userID uuid.UUID, status string, p PageRequest) ([]models.CashbackTransaction, Page, error) {
	q := r.db.WithContext(ctx).Model(&models.CashbackTransaction{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Page{}, errors.Wrap(err, "count cashback transactions")
	}
	var out []models.CashbackTransaction
	err := q.Scopes(paginate(p)).Order("purchase_date DESC, id").Find(&out).Error
	if err != nil {
		return nil, Page{}, errors.Wrap(err, "list cashback transactions")
	}
	return out, p.Info(total), nil
}

// DueForConfirmation returns up to limit pending transactions purchased at
// or before cutoff, oldest first.
func (r *Transactions) DueForConfirmation(ctx context.Context, cutoff time.Time, limit int) ([]models.CashbackTransaction, error) {
	var out []models.CashbackTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND purchase_date <= ?", models.StatusPending, cutoff).
		Order("purchase_date, id").Limit(limit).Find(&out).Error
	return out, errors.Wrap(err, "due cashback transactions")
}

// Transition moves a transaction from one status to another if it is still
// in from and not frozen by a withdrawal. It reports whether the row moved.
func (r *Transactions) Transition(ctx context.Context, id uuid.UUID, from, to models.TransactionStatus, cols map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range cols {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.CashbackTransaction{}).
		Where("id = ? AND status = ? AND withdrawal_id IS NULL", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "transition cashback transaction")
	}
	return res.RowsAffected == 1, nil
}

// Freeze marks every confirmed, unfrozen transaction of the user as part of
// withdrawalID and returns their total.
func (r *Transactions) Freeze(ctx context.Context, userID, withdrawalID uuid.UUID) (decimal.Decimal, error) {
	err := r.db.WithContext(ctx).Model(&models.CashbackTransaction{}).
		Where("user_id = ? AND status = ? AND withdrawal_id IS NULL", userID, models.StatusConfirmed).
		Update("withdrawal_id", withdrawalID).Error
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "freeze cashback transactions")
	}
	return r.SumByWithdrawal(ctx, withdrawalID)
}

func (r *Transactions) SumByWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.WithContext(ctx).Model(&models.CashbackTransaction{}).
		Select("COALESCE(SUM(cashback_amount), 0)").
		Where("withdrawal_id = ?", withdrawalID).
		Row().Scan(&sum)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "sum withdrawal")
	}
	return sum.Round(2), nil
}

// MarkPaid settles every frozen transaction of the withdrawal.
func (r *Transactions) MarkPaid(ctx context.Context, withdrawalID uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.CashbackTransaction{}).
		Where("withdrawal_id = ? AND status = ?", withdrawalID, models.StatusConfirmed).
		Updates(map[string]interface{}{"status": models.StatusPaid, "payment_date": at}).Error
	return errors.Wrap(err, "mark paid")
}

// Unfreeze returns the withdrawal's transactions to plain confirmed.
func (r *Transactions) Unfreeze(ctx context.Context, withdrawalID uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&models.CashbackTransaction{}).
		Where("withdrawal_id = ? AND status = ?", withdrawalID, models.StatusConfirmed).
		Update("withdrawal_id", nil).Error
	return errors.Wrap(err, "unfreeze")
}

// StatusTotals is the per-user sum of cashback by ledger bucket.
type StatusTotals struct {
	Pending            decimal.Decimal
	ConfirmedAvailable decimal.Decimal
	ConfirmedInFlight  decimal.Decimal
	Paid               decimal.Decimal
	Rejected           decimal.Decimal
}

func (r *Transactions) Totals(ctx context.Context, userID uuid.UUID) (StatusTotals, error) {
	type row struct {
		Status   models.TransactionStatus
		InFlight bool
		Total    decimal.Decimal
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.CashbackTransaction{}).
		Select("status, withdrawal_id IS NOT NULL AS in_flight, COALESCE(SUM(cashback_amount), 0) AS total").
		Where("user_id = ?", userID).
		Group("status, withdrawal_id IS NOT NULL").
		Scan(&rows).Error
	if err != nil {
		return StatusTotals{}, errors.Wrap(err, "cashback totals")
	}

	var t StatusTotals
	for _, r := range rows {
		amt := r.Total.Round(2)
		switch r.Status {
		case models.StatusPending:
			t.Pending = t.Pending.Add(amt)
		case models.StatusConfirmed:
			if r.InFlight {
				t.ConfirmedInFlight = t.ConfirmedInFlight.Add(amt)
			} else {
				t.ConfirmedAvailable = t.ConfirmedAvailable.Add(amt)
			}
		case models.StatusPaid:
			t.Paid = t.Paid.Add(amt)
		case models.StatusRejected:
			t.Rejected = t.Rejected.Add(amt)
		}
	}
	return t, nil
}
