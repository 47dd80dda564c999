// Package ledger keeps cashback transactions and the balances derived from
// them. Every operation runs in its own SQL transaction; status moves are
// compare-and-set updates and balance changes are SQL increments, so the
// stored balances always equal the projection over transactions once the
// operation commits.
package ledger

import (
	"context"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/events"
	"github.com/farellandr/cashback/internal/payout"
	"github.com/farellandr/cashback/internal/store"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Config struct {
	ConfirmationWindow time.Duration
	MinWithdrawal      decimal.Decimal
	PageLimitMax       int
}

type Ledger struct {
	db     *gorm.DB
	cfg    Config
	payout payout.Provider
	events events.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func New(db *gorm.DB, cfg Config, provider payout.Provider, pub events.Publisher, log *zap.Logger) *Ledger {
	return &Ledger{
		db:     db,
		cfg:    cfg,
		payout: provider,
		events: pub,
		log:    log,
		now:    time.Now,
	}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) clock() time.Time {
	return l.now().UTC()
}

// repos binds the repositories to one SQL transaction.
type repos struct {
	users        *store.Users
	transactions *store.Transactions
	withdrawals  *store.Withdrawals
}

func bind(tx *gorm.DB) repos {
	return repos{
		users:        store.NewUsers(tx),
		transactions: store.NewTransactions(tx),
		withdrawals:  store.NewWithdrawals(tx),
	}
}

func (l *Ledger) inTx(ctx context.Context, fn func(r repos) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(bind(tx))
	})
}

func (l *Ledger) page(page, limit int) store.PageRequest {
	return store.NewPageRequest(page, limit, l.cfg.PageLimitMax)
}

func (l *Ledger) emit(ctx context.Context, evt events.Event) {
	events.Emit(ctx, l.events, l.log, evt)
}

// unexpected passes typed errors through and marks everything else.
func unexpected(err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	return apperr.Wrap(apperr.KindUnexpected, err)
}
