package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/farellandr/cashback/internal/ledger"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/store"
	"github.com/farellandr/cashback/internal/testutil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	clock  *testutil.Clock
	ledger *ledger.Ledger
	leases *store.Leases
	users  *store.Users
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock(time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC))
	l := ledger.New(db, ledger.Config{
		ConfirmationWindow: 30 * 24 * time.Hour,
		MinWithdrawal:      decimal.NewFromInt(10),
		PageLimitMax:       100,
	}, nil, nil, testutil.Logger(t)).WithClock(clock.Now)
	return &fixture{db: db, clock: clock, ledger: l, leases: store.NewLeases(db), users: store.NewUsers(db)}
}

func (f *fixture) sweeper(t *testing.T, holder string, batch int) *Sweeper {
	return New(f.ledger, f.leases, f.users, Config{BatchSize: batch, LeaseTTL: 4 * time.Minute}, testutil.Logger(t)).
		WithClock(f.clock.Now).
		WithHolder(holder)
}

func (f *fixture) seedPending(t *testing.T, n int) *models.User {
	t.Helper()
	u := testutil.SeedUser(t, f.db, "sweep@example.com", models.RoleUser)
	st := testutil.SeedStore(t, f.db, "shop", "5")
	for i := 0; i < n; i++ {
		_, _, err := f.ledger.RecordPurchase(context.Background(), ledger.PurchaseInput{
			UserID: u.ID, StoreID: st.ID, GrossAmount: decimal.NewFromInt(100), PurchaseDate: f.clock.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return u
}

func TestTickConfirmsInBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedPending(t, 5)
	f.clock.Advance(31 * 24 * time.Hour)
	s := f.sweeper(t, "a", 2)

	var total int
	for _, want := range []int{2, 2, 1, 0} {
		rep := s.Tick(ctx)
		if rep.Result != ResultOK || rep.Confirmed != want {
			t.Fatalf("tick = %+v, want ok with %d confirmed", rep, want)
		}
		total += rep.Confirmed
	}
	if total != 5 {
		t.Fatalf("confirmed %d, want 5", total)
	}

	c, err := f.ledger.Check(ctx, u.ID)
	if err != nil || !c.Consistent {
		t.Fatalf("check = %+v, %v", c, err)
	}
}

func TestTickSkipsWhenLeaseHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPending(t, 1)
	f.clock.Advance(31 * 24 * time.Hour)

	first, second := f.sweeper(t, "a", 10), f.sweeper(t, "b", 10)
	if rep := first.Tick(ctx); rep.Result != ResultOK {
		t.Fatalf("first tick = %+v", rep)
	}

	rep := second.Tick(ctx)
	if rep.Result != ResultLeaseHeld || rep.Result.ExitCode() != 2 {
		t.Fatalf("second tick = %+v, want lease held", rep)
	}

	f.clock.Advance(5 * time.Minute)
	if rep := second.Tick(ctx); rep.Result != ResultOK {
		t.Fatalf("tick after lease expiry = %+v", rep)
	}
}

func TestReleaseFreesLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, second := f.sweeper(t, "a", 10), f.sweeper(t, "b", 10)

	if rep := first.Tick(ctx); rep.Result != ResultOK {
		t.Fatalf("tick = %+v", rep)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if rep := second.Tick(ctx); rep.Result != ResultOK {
		t.Fatalf("tick after release = %+v", rep)
	}
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestTickUnreachable(t *testing.T) {
	f := newFixture(t)
	s := New(f.ledger, f.leases, downStore{}, Config{BatchSize: 10, LeaseTTL: time.Minute}, testutil.Logger(t))

	rep := s.Tick(context.Background())
	if rep.Result != ResultUnreachable || rep.Result.ExitCode() != 1 {
		t.Fatalf("tick = %+v, want unreachable", rep)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	s := f.sweeper(t, "a", 10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	if _, err := f.leases.Get(context.Background(), LeaseName); err == nil {
		t.Fatal("lease still present after shutdown")
	}
}

type deadlineConfirmer struct {
	remaining time.Duration
	bounded   bool
}

func (c *deadlineConfirmer) ConfirmDue(ctx context.Context, _ int) (int, error) {
	deadline, ok := ctx.Deadline()
	c.bounded = ok
	c.remaining = time.Until(deadline)
	return 0, nil
}

func TestTickBoundsContext(t *testing.T) {
	f := newFixture(t)
	c := &deadlineConfirmer{}
	s := New(c, f.leases, f.users, Config{BatchSize: 1, LeaseTTL: 4 * time.Minute, Timeout: 30 * time.Second}, testutil.Logger(t)).
		WithClock(f.clock.Now)

	if rep := s.Tick(context.Background()); rep.Result != ResultOK {
		t.Fatalf("tick = %+v", rep)
	}
	if !c.bounded || c.remaining <= 0 || c.remaining > 30*time.Second {
		t.Fatalf("confirm ctx bounded = %v, remaining %v", c.bounded, c.remaining)
	}

	*c = deadlineConfirmer{}
	s = New(c, f.leases, f.users, Config{BatchSize: 1, LeaseTTL: 4 * time.Minute}, testutil.Logger(t)).
		WithClock(f.clock.Now).
		WithHolder(s.Holder())
	s.Tick(context.Background())
	if !c.bounded || c.remaining > 4*time.Minute {
		t.Fatalf("default tick bound = %v, remaining %v, want within the lease TTL", c.bounded, c.remaining)
	}
}
