package store

import (
	"context"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (r *Users) Create(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Validation("email", "already registered")
	}
	return translate(err, "create user")
}

func (r *Users) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}

// IncrementTokenVersion bumps the user's token version in place and returns
// the new value.
func (r *Users) IncrementTokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var version int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", id).
			Update("token_version", gorm.Expr("token_version + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.User{}).Where("id = ?", id).Pluck("token_version", &version).Error
	})
	if err != nil {
		return 0, translate(err, "user")
	}
	return version, nil
}

// BalanceDelta is applied to a user's balance columns with SQL increments.
type BalanceDelta struct {
	Available     decimal.Decimal
	Pending       decimal.Decimal
	TotalEarned   decimal.Decimal
	TotalRedeemed decimal.Decimal
}

func (d BalanceDelta) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	add := func(col string, v decimal.Decimal) {
		if !v.IsZero() {
			cols[col] = gorm.Expr(col+" + ?", v)
		}
	}
	add("available", d.Available)
	add("pending", d.Pending)
	add("total_earned", d.TotalEarned)
	add("total_redeemed", d.TotalRedeemed)
	return cols
}

func (r *Users) ApplyBalance(ctx context.Context, id uuid.UUID, delta BalanceDelta) error {
	cols := delta.columns()
	if len(cols) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return errors.Wrap(res.Error, "apply balance")
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	return nil
}

func (r *Users) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
