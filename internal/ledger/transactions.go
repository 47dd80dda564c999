package ledger

import (
	"context"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/events"
	"github.com/farellandr/cashback/internal/metrics"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/store"
	"github.com/farellandr/cashback/internal/tracing"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// CashbackAmount is gross × rate / 100 rounded half-to-even to cents.
func CashbackAmount(gross, rate decimal.Decimal) decimal.Decimal {
	return gross.Mul(rate).Div(hundred).RoundBank(2)
}

type PurchaseInput struct {
	UserID       uuid.UUID
	StoreID      uuid.UUID
	GrossAmount  decimal.Decimal
	PurchaseDate time.Time
	CouponID     *uuid.UUID
	// ExternalRef is the affiliate order id; a repeated ref returns the
	// transaction recorded the first time.
	ExternalRef string
	// Rate overrides offer and store rates when set.
	Rate *decimal.Decimal
}

// RecordPurchase appends a pending transaction and adds its cashback to the
// user's pending balance. created is false when ExternalRef was seen before.
func (l *Ledger) RecordPurchase(ctx context.Context, in PurchaseInput) (tx *models.CashbackTransaction, created bool, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "ledger.RecordPurchase")
	defer span.End()

	if !in.GrossAmount.IsPositive() {
		return nil, false, apperr.Validation("grossAmount", "must be greater than 0")
	}
	if in.ExternalRef != "" {
		if existing, err := store.NewTransactions(l.db).GetByExternalRef(ctx, in.ExternalRef); err == nil {
			return existing, false, nil
		}
	}

	purchaseDate := in.PurchaseDate.UTC()
	if purchaseDate.IsZero() {
		purchaseDate = l.clock()
	}
	if purchaseDate.After(l.clock()) {
		return nil, false, apperr.Validation("purchaseDate", "must not be in the future")
	}

	rate, offerID, err := l.resolveRate(ctx, in, purchaseDate)
	if err != nil {
		return nil, false, err
	}
	if in.CouponID != nil {
		if _, err := store.NewCoupons(l.db).GetByID(ctx, *in.CouponID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, false, apperr.Validation("couponUsed", "unknown coupon")
			}
			return nil, false, unexpected(err)
		}
	}

	t := &models.CashbackTransaction{
		UserID:         in.UserID,
		StoreID:        in.StoreID,
		GrossAmount:    in.GrossAmount.Round(2),
		Rate:           rate,
		CashbackAmount: CashbackAmount(in.GrossAmount.Round(2), rate),
		Status:         models.StatusPending,
		PurchaseDate:   purchaseDate,
		CouponUsed:     in.CouponID,
		OfferID:        offerID,
	}
	if in.ExternalRef != "" {
		ref := in.ExternalRef
		t.ExternalRef = &ref
	}

	err = l.inTx(ctx, func(r repos) error {
		if _, err := r.users.GetByID(ctx, in.UserID); err != nil {
			return err
		}
		if err := r.transactions.Create(ctx, t); err != nil {
			return err
		}
		return r.users.ApplyBalance(ctx, in.UserID, store.BalanceDelta{Pending: t.CashbackAmount})
	})
	if errors.Is(err, apperr.ErrConflict) && in.ExternalRef != "" {
		existing, lookupErr := store.NewTransactions(l.db).GetByExternalRef(ctx, in.ExternalRef)
		if lookupErr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, unexpected(err)
	}

	span.SetAttributes(attribute.String("cashback.transaction_id", t.ID.String()))
	metrics.LedgerTransitions.WithLabelValues(string(models.StatusPending)).Inc()
	l.log.Info("cashback recorded",
		zap.String("transaction_id", t.ID.String()),
		zap.String("user_id", t.UserID.String()),
		zap.String("amount", t.CashbackAmount.StringFixed(2)),
	)
	l.emit(ctx, events.New(events.CashbackRecorded, t.UserID, l.clock(), map[string]interface{}{
		"transactionId": t.ID,
		"amount":        t.CashbackAmount.StringFixed(2),
	}))
	return t, true, nil
}

// resolveRate picks the explicit rate, else the best offer live at the
// purchase date, else the store default.
func (l *Ledger) resolveRate(ctx context.Context, in PurchaseInput, at time.Time) (decimal.Decimal, *uuid.UUID, error) {
	st, err := store.NewStores(l.db).GetByID(ctx, in.StoreID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return decimal.Zero, nil, apperr.Validation("store", "unknown store")
		}
		return decimal.Zero, nil, unexpected(err)
	}

	var rate decimal.Decimal
	var offerID *uuid.UUID
	switch {
	case in.Rate != nil:
		rate = *in.Rate
	default:
		offer, err := store.NewOffers(l.db).BestLive(ctx, st.ID, at)
		if err != nil {
			return decimal.Zero, nil, unexpected(err)
		}
		if offer != nil {
			rate = offer.Rate
			id := offer.ID
			offerID = &id
		} else {
			rate = st.DefaultCashbackRate
		}
	}
	rate = rate.Round(2)
	if !rate.IsPositive() || rate.GreaterThan(hundred) {
		return decimal.Zero, nil, apperr.Validation("rate", "must be greater than 0 and at most 100")
	}
	return rate, offerID, nil
}

// ConfirmDue confirms up to limit pending transactions whose confirmation
// window has elapsed. Transactions already moved by someone else are
// skipped, so repeated calls are harmless.
func (l *Ledger) ConfirmDue(ctx context.Context, limit int) (int, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ledger.ConfirmDue")
	defer span.End()

	now := l.clock()
	due, err := store.NewTransactions(l.db).DueForConfirmation(ctx, now.Add(-l.cfg.ConfirmationWindow), limit)
	if err != nil {
		return 0, unexpected(err)
	}

	confirmed := 0
	for i := range due {
		t := &due[i]
		moved, err := l.confirm(ctx, t, now)
		if err != nil {
			return confirmed, unexpected(err)
		}
		if !moved {
			continue
		}
		confirmed++
		metrics.LedgerTransitions.WithLabelValues(string(models.StatusConfirmed)).Inc()
		l.emit(ctx, events.New(events.CashbackConfirmed, t.UserID, now, map[string]interface{}{
			"transactionId": t.ID,
			"amount":        t.CashbackAmount.StringFixed(2),
		}))
	}
	span.SetAttributes(attribute.Int("cashback.confirmed", confirmed))
	return confirmed, nil
}

func (l *Ledger) confirm(ctx context.Context, t *models.CashbackTransaction, now time.Time) (bool, error) {
	var moved bool
	err := l.inTx(ctx, func(r repos) error {
		var err error
		moved, err = r.transactions.Transition(ctx, t.ID, models.StatusPending, models.StatusConfirmed,
			map[string]interface{}{"confirmation_date": now})
		if err != nil || !moved {
			return err
		}
		return r.users.ApplyBalance(ctx, t.UserID, store.BalanceDelta{
			Pending:     t.CashbackAmount.Neg(),
			Available:   t.CashbackAmount,
			TotalEarned: t.CashbackAmount,
		})
	})
	return moved, err
}

// Reject moves a pending or confirmed transaction to rejected and removes
// its amount from the bucket it was in. Transactions frozen by a withdrawal
// cannot be rejected.
func (l *Ledger) Reject(ctx context.Context, id uuid.UUID) (*models.CashbackTransaction, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ledger.Reject")
	defer span.End()

	now := l.clock()
	var t *models.CashbackTransaction
	err := l.inTx(ctx, func(r repos) error {
		var err error
		t, err = r.transactions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != models.StatusPending && t.Status != models.StatusConfirmed {
			return apperr.New(apperr.KindInvalidState, "transaction is "+string(t.Status))
		}
		if t.InFlight() {
			return apperr.New(apperr.KindInvalidState, "transaction is part of a pending withdrawal")
		}

		moved, err := r.transactions.Transition(ctx, t.ID, t.Status, models.StatusRejected,
			map[string]interface{}{"rejection_date": now})
		if err != nil {
			return err
		}
		if !moved {
			return apperr.New(apperr.KindConflict, "transaction changed concurrently")
		}

		delta := store.BalanceDelta{Pending: t.CashbackAmount.Neg()}
		if t.Status == models.StatusConfirmed {
			delta = store.BalanceDelta{Available: t.CashbackAmount.Neg(), TotalEarned: t.CashbackAmount.Neg()}
		}
		if err := r.users.ApplyBalance(ctx, t.UserID, delta); err != nil {
			return err
		}
		t.Status = models.StatusRejected
		t.RejectionDate = &now
		return nil
	})
	if err != nil {
		return nil, unexpected(err)
	}

	metrics.LedgerTransitions.WithLabelValues(string(models.StatusRejected)).Inc()
	l.log.Info("cashback rejected", zap.String("transaction_id", id.String()))
	l.emit(ctx, events.New(events.CashbackRejected, t.UserID, now, map[string]interface{}{
		"transactionId": t.ID,
		"amount":        t.CashbackAmount.StringFixed(2),
	}))
	return t, nil
}

func (l *Ledger) ListTransactions(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]models.CashbackTransaction, store.Page, error) {
	switch models.TransactionStatus(status) {
	case "", models.StatusPending, models.StatusConfirmed, models.StatusPaid, models.StatusRejected:
	default:
		return nil, store.Page{}, apperr.Validation("status", "unknown status")
	}
	return store.NewTransactions(l.db).ListByUser(ctx, userID, status, l.page(page, limit))
}
