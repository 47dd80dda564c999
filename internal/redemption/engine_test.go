package redemption

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/store"
	"github.com/farellandr/cashback/internal/testutil"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	engine *Engine
	clock  *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	engine := NewEngine(store.NewCoupons(db), store.NewRedemptions(db), nil, testutil.Logger(t)).WithClock(clock.Now)
	return &fixture{db: db, engine: engine, clock: clock}
}

func (f *fixture) user(t *testing.T) *models.User {
	return testutil.SeedUser(t, f.db, uuid.NewString()[:8]+"@example.com", models.RoleUser)
}

func (f *fixture) usageCount(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var c models.Coupon
	if err := f.db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatal(err)
	}
	return c.UsageCount
}

func (f *fixture) records(t *testing.T, couponID uuid.UUID) int64 {
	t.Helper()
	var n int64
	f.db.Model(&models.Redemption{}).Where("coupon_id = ?", couponID).Count(&n)
	return n
}

func TestRedeemScenarios(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	userA, userB := f.user(t), f.user(t)

	save20 := testutil.SeedCoupon(t, f.db, &models.Coupon{
		Code: "SAVE20", Discount: 20, IsActive: true,
		ExpiryDate: testutil.TimePtr(now.Add(7 * 24 * time.Hour)), UsageLimit: testutil.IntPtr(100),
	})

	res, err := f.engine.Redeem(ctx, userA.ID, save20.ID)
	if err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if res.Coupon.ID != save20.ID || !res.RedeemedAt.Equal(now) || res.Coupon.UsageCount != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := f.usageCount(t, save20.ID); got != 1 {
		t.Fatalf("usageCount = %d, want 1", got)
	}
	if ok, _ := store.NewRedemptions(f.db).Exists(ctx, userA.ID, save20.ID); !ok {
		t.Fatal("redemption record missing")
	}

	if _, err := f.engine.Redeem(ctx, userA.ID, save20.ID); !errors.Is(err, apperr.ErrAlreadyRedeemed) {
		t.Fatalf("retry err = %v, want AlreadyRedeemed", err)
	}
	if got := f.usageCount(t, save20.ID); got != 1 {
		t.Fatalf("usageCount after retry = %d, want 1", got)
	}

	inactive := testutil.SeedCoupon(t, f.db, &models.Coupon{Code: "OFF10", Discount: 10, IsActive: false})
	if _, err := f.engine.Redeem(ctx, userB.ID, inactive.ID); !errors.Is(err, apperr.ErrInactive) {
		t.Fatalf("inactive err = %v", err)
	}
	if got := f.usageCount(t, inactive.ID); got != 0 {
		t.Fatalf("inactive usageCount = %d", got)
	}

	expired := testutil.SeedCoupon(t, f.db, &models.Coupon{
		Code: "OLD10", Discount: 10, IsActive: true, ExpiryDate: testutil.TimePtr(now.Add(-24 * time.Hour)),
	})
	if _, err := f.engine.Redeem(ctx, userB.ID, expired.ID); !errors.Is(err, apperr.ErrExpired) {
		t.Fatalf("expired err = %v", err)
	}

	full := testutil.SeedCoupon(t, f.db, &models.Coupon{
		Code: "FULL10", Discount: 10, IsActive: true, UsageLimit: testutil.IntPtr(100), UsageCount: 100,
	})
	if _, err := f.engine.Redeem(ctx, userB.ID, full.ID); !errors.Is(err, apperr.ErrLimitReached) {
		t.Fatalf("full err = %v", err)
	}
	if got := f.usageCount(t, full.ID); got != 100 {
		t.Fatalf("full usageCount = %d", got)
	}

	if _, err := f.engine.Redeem(ctx, userB.ID, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestRedeemPredicateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	user := f.user(t)
	past := testutil.TimePtr(now.Add(-time.Hour))

	tests := []struct {
		name   string
		coupon models.Coupon
		prior  bool
		want   error
	}{
		{"inactive beats expired", models.Coupon{IsActive: false, ExpiryDate: past}, false, apperr.ErrInactive},
		{"expired beats limit", models.Coupon{IsActive: true, ExpiryDate: past, UsageLimit: testutil.IntPtr(1), UsageCount: 1}, false, apperr.ErrExpired},
		{"limit beats already redeemed", models.Coupon{IsActive: true, UsageLimit: testutil.IntPtr(1), UsageCount: 1}, true, apperr.ErrLimitReached},
		{"expiry equal to now", models.Coupon{IsActive: true, ExpiryDate: testutil.TimePtr(now)}, false, apperr.ErrExpired},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.coupon
			c.Code = "ORDER" + string(rune('A'+i))
			testutil.SeedCoupon(t, f.db, &c)
			if tt.prior {
				f.db.Create(&models.Redemption{UserID: user.ID, CouponID: c.ID, RedeemedAt: now})
			}
			if _, err := f.engine.Redeem(ctx, user.ID, c.ID); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	// One second before expiry still redeems.
	c := testutil.SeedCoupon(t, f.db, &models.Coupon{Code: "EDGE1", IsActive: true, ExpiryDate: testutil.TimePtr(now.Add(time.Second))})
	if _, err := f.engine.Redeem(ctx, user.ID, c.ID); err != nil {
		t.Fatalf("redeem before expiry: %v", err)
	}
}

func TestConcurrentRedeemLastUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coupon := testutil.SeedCoupon(t, f.db, &models.Coupon{Code: "LAST1", IsActive: true, UsageLimit: testutil.IntPtr(1)})

	const k = 8
	users := make([]*models.User, k)
	for i := range users {
		users[i] = f.user(t)
	}

	var wg sync.WaitGroup
	errs := make([]error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Redeem(ctx, users[i].ID, coupon.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperr.ErrLimitReached):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d redemptions succeeded, want 1", wins)
	}
	if got := f.usageCount(t, coupon.ID); got != 1 {
		t.Fatalf("usageCount = %d, want 1", got)
	}
	if n := f.records(t, coupon.ID); n != 1 {
		t.Fatalf("%d records, want 1", n)
	}
}

func TestConcurrentDoubleClick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t)
	coupon := testutil.SeedCoupon(t, f.db, &models.Coupon{Code: "CLICK2", IsActive: true})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Redeem(ctx, user.ID, coupon.ID)
		}(i)
	}
	wg.Wait()

	ok, already := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrAlreadyRedeemed):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || already != 1 {
		t.Fatalf("ok = %d, already = %d", ok, already)
	}
	if got := f.usageCount(t, coupon.ID); got != 1 {
		t.Fatalf("usageCount = %d, want 1", got)
	}
}

// fakeStore scripts conditional-write outcomes.
type fakeStore struct {
	mu         sync.Mutex
	coupon     models.Coupon
	increments []bool
	insertErrs []error
	decErr     error
	exists     bool

	incCalls, decCalls, insertCalls int
	decCtxErr                       error
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.coupon.ID {
		return nil, apperr.ErrNotFound
	}
	c := s.coupon
	return &c, nil
}

func (s *fakeStore) IncrementUsage(context.Context, uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := true
	if s.incCalls < len(s.increments) {
		ok = s.increments[s.incCalls]
	}
	s.incCalls++
	if ok {
		s.coupon.UsageCount++
	} else if s.coupon.UsageLimit != nil {
		s.coupon.UsageCount = *s.coupon.UsageLimit
	}
	return ok, nil
}

func (s *fakeStore) DecrementUsage(ctx context.Context, _ uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decCalls++
	s.decCtxErr = ctx.Err()
	if s.decErr != nil {
		return s.decErr
	}
	s.coupon.UsageCount--
	return nil
}

func (s *fakeStore) Exists(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists, nil
}

func (s *fakeStore) Insert(context.Context, *models.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.insertCalls < len(s.insertErrs) {
		err = s.insertErrs[s.insertCalls]
	}
	s.insertCalls++
	if errors.Is(err, apperr.ErrConflict) {
		s.exists = true
	}
	return err
}

func newFake(limit *int) *fakeStore {
	return &fakeStore{coupon: models.Coupon{ID: uuid.New(), Code: "FAKE1", IsActive: true, UsageLimit: limit}}
}

func TestRetriesOnceAfterLimitConflict(t *testing.T) {
	fs := newFake(testutil.IntPtr(5))
	fs.increments = []bool{false}
	engine := NewEngine(fs, fs, nil, testutil.Logger(t))

	_, err := engine.Redeem(context.Background(), uuid.New(), fs.coupon.ID)
	if !errors.Is(err, apperr.ErrLimitReached) {
		t.Fatalf("err = %v, want LimitReached", err)
	}
	if fs.incCalls != 1 {
		t.Fatalf("incCalls = %d; the retry should stop at the limit check", fs.incCalls)
	}
}

func TestSecondConflictReportsStoreCondition(t *testing.T) {
	fs := newFake(nil)
	fs.increments = []bool{false, false}
	engine := NewEngine(fs, fs, nil, testutil.Logger(t))

	_, err := engine.Redeem(context.Background(), uuid.New(), fs.coupon.ID)
	if !errors.Is(err, apperr.ErrLimitReached) {
		t.Fatalf("err = %v, want LimitReached", err)
	}
	if fs.incCalls != 2 {
		t.Fatalf("incCalls = %d, want 2", fs.incCalls)
	}
}

func TestDuplicateInsertCompensates(t *testing.T) {
	fs := newFake(nil)
	fs.insertErrs = []error{apperr.Wrap(apperr.KindConflict, errors.New("unique violation"))}
	engine := NewEngine(fs, fs, nil, testutil.Logger(t))

	_, err := engine.Redeem(context.Background(), uuid.New(), fs.coupon.ID)
	if !errors.Is(err, apperr.ErrAlreadyRedeemed) {
		t.Fatalf("err = %v, want AlreadyRedeemed", err)
	}
	if fs.decCalls != 1 || fs.coupon.UsageCount != 0 {
		t.Fatalf("decCalls = %d, usageCount = %d", fs.decCalls, fs.coupon.UsageCount)
	}
}

func TestCompensationRunsAfterDeadline(t *testing.T) {
	fs := newFake(nil)
	ctx, cancel := context.WithCancel(context.Background())
	fs.insertErrs = []error{context.Canceled}
	engine := NewEngine(fs, &cancellingInsert{fakeStore: fs, cancel: cancel}, nil, testutil.Logger(t))

	_, err := engine.Redeem(ctx, uuid.New(), fs.coupon.ID)
	if !errors.Is(err, apperr.ErrUnexpected) {
		t.Fatalf("err = %v, want Unexpected", err)
	}
	if fs.decCalls != 1 || fs.decCtxErr != nil {
		t.Fatalf("decCalls = %d, compensation ctx err = %v", fs.decCalls, fs.decCtxErr)
	}
	if fs.coupon.UsageCount != 0 {
		t.Fatalf("usageCount = %d, want 0", fs.coupon.UsageCount)
	}
}

// cancellingInsert trips the caller's deadline between the two writes.
type cancellingInsert struct {
	*fakeStore
	cancel context.CancelFunc
}

func (c *cancellingInsert) Insert(ctx context.Context, rec *models.Redemption) error {
	c.cancel()
	return c.fakeStore.Insert(ctx, rec)
}

func TestFailedCompensationIsUnexpected(t *testing.T) {
	fs := newFake(nil)
	fs.insertErrs = []error{apperr.Wrap(apperr.KindConflict, errors.New("unique violation"))}
	fs.decErr = errors.New("store unreachable")
	engine := NewEngine(fs, fs, nil, testutil.Logger(t))

	_, err := engine.Redeem(context.Background(), uuid.New(), fs.coupon.ID)
	if !errors.Is(err, apperr.ErrUnexpected) {
		t.Fatalf("err = %v, want Unexpected", err)
	}
}
