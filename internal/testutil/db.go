// Package testutil provides database fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/farellandr/cashback/config"
	"github.com/farellandr/cashback/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory sqlite database with every table migrated.
// The single connection serialises access; never use the outer handle inside
// a transaction callback.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(config.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func Logger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// Clock is a settable time source.
type Clock struct {
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

func (c *Clock) Now() time.Time {
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func (c *Clock) Set(t time.Time) {
	c.now = t.UTC()
}

const Password = "correct-horse-battery"

func SeedUser(t testing.TB, db *gorm.DB, email string, role models.Role) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &models.User{Email: email, Password: string(hash), Name: email, Role: role, Verified: true}
	if err := db.WithContext(context.Background()).Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedStore(t testing.TB, db *gorm.DB, name string, rate string) *models.Store {
	t.Helper()
	s := &models.Store{
		Name:                name,
		WebsiteURL:          "https://" + name + ".example",
		Categories:          []string{"fashion"},
		IsActive:            true,
		DefaultCashbackRate: decimal.RequireFromString(rate),
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return s
}

// SeedCoupon inserts c, creating a store for it when none is set. IsActive
// is stored as given.
func SeedCoupon(t testing.TB, db *gorm.DB, c *models.Coupon) *models.Coupon {
	t.Helper()
	if c.StoreID == uuid.Nil {
		c.StoreID = SeedStore(t, db, "store-"+uuid.NewString()[:8], "5").ID
	}
	if c.Title == "" {
		c.Title = c.Code
	}
	if err := db.Omit("Store").Create(c).Error; err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
	return c
}

func IntPtr(n int) *int { return &n }

func TimePtr(t time.Time) *time.Time { return &t }
