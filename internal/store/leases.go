package store

import (
	"context"
	"time"

	"github.com/farellandr/cashback/internal/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Leases struct {
	db *gorm.DB
}

func NewLeases(db *gorm.DB) *Leases {
	return &Leases{db: db}
}

// Acquire takes or renews the named lease for holder until now+ttl. It
// reports false when another holder owns an unexpired lease.
func (r *Leases) Acquire(ctx context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error) {
	db := r.db.WithContext(ctx)
	expires := now.Add(ttl)

	res := db.Model(&models.Lease{}).
		Where("name = ? AND (expires_at < ? OR holder = ?)", name, now, holder).
		Updates(map[string]interface{}{"holder": holder, "expires_at": expires})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "renew lease")
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	err := db.Create(&models.Lease{Name: name, Holder: holder, ExpiresAt: expires}).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return false, nil
	}
	return false, errors.Wrap(err, "create lease")
}

// Release gives the lease up early if holder still owns it.
func (r *Leases) Release(ctx context.Context, name, holder string) error {
	err := r.db.WithContext(ctx).Where("name = ? AND holder = ?", name, holder).Delete(&models.Lease{}).Error
	return errors.Wrap(err, "release lease")
}

func (r *Leases) Get(ctx context.Context, name string) (*models.Lease, error) {
	var l models.Lease
	if err := r.db.WithContext(ctx).First(&l, "name = ?", name).Error; err != nil {
		return nil, translate(err, "lease")
	}
	return &l, nil
}
