package ledger

import (
	"context"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/events"
	"github.com/farellandr/cashback/internal/metrics"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/payout"
	"github.com/farellandr/cashback/internal/store"
	"github.com/farellandr/cashback/internal/tracing"
	"github.com/farellandr/cashback/internal/validation"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const settleTimeout = 5 * time.Second

type WithdrawalInput struct {
	Method      string `json:"method" validate:"required,max=40"`
	Destination string `json:"destination" validate:"required,max=64"`
}

// RequestWithdrawal freezes every confirmed transaction not already in a
// withdrawal and requests a payout of their sum. The whole available
// balance is withdrawn; partial withdrawals are not supported.
func (l *Ledger) RequestWithdrawal(ctx context.Context, userID uuid.UUID, in WithdrawalInput) (*models.Withdrawal, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ledger.RequestWithdrawal")
	defer span.End()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	now := l.clock()
	w := &models.Withdrawal{
		ID:          uuid.New(),
		UserID:      userID,
		Method:      in.Method,
		Destination: in.Destination,
		Status:      models.WithdrawalPending,
		Reference:   "wd_" + ksuid.New().String(),
		RequestedAt: now,
	}

	err := l.inTx(ctx, func(r repos) error {
		if _, err := r.users.GetByID(ctx, userID); err != nil {
			return err
		}
		sum, err := r.transactions.Freeze(ctx, userID, w.ID)
		if err != nil {
			return err
		}
		if !sum.IsPositive() || sum.LessThan(l.cfg.MinWithdrawal) {
			return apperr.New(apperr.KindInsufficientFunds,
				"available "+sum.StringFixed(2)+" is below the minimum "+l.cfg.MinWithdrawal.StringFixed(2))
		}
		w.Amount = sum
		if err := r.withdrawals.Create(ctx, w); err != nil {
			return err
		}
		return r.users.ApplyBalance(ctx, userID, store.BalanceDelta{Available: sum.Neg()})
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInsufficientFunds) {
			metrics.Withdrawals.WithLabelValues("insufficient").Inc()
		}
		return nil, unexpected(err)
	}
	span.SetAttributes(attribute.String("withdrawal.reference", w.Reference))

	if err := l.payout.Submit(ctx, w); errors.Is(err, payout.ErrRejected) {
		return nil, l.release(ctx, w, err)
	} else if err != nil {
		// The provider may have accepted the payout; the funds stay frozen
		// until its callback or an operator settles the withdrawal.
		l.log.Warn("payout outcome unknown, withdrawal left pending",
			zap.String("withdrawal_id", w.ID.String()),
			zap.String("reference", w.Reference),
			zap.String("provider", l.payout.Name()),
			zap.Error(err),
		)
		metrics.Withdrawals.WithLabelValues("submit_unknown").Inc()
	}

	metrics.Withdrawals.WithLabelValues("requested").Inc()
	l.log.Info("withdrawal requested",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("amount", w.Amount.StringFixed(2)),
	)
	l.emit(ctx, events.New(events.WithdrawalRequested, userID, now, map[string]interface{}{
		"withdrawalId": w.ID,
		"reference":    w.Reference,
		"amount":       w.Amount.StringFixed(2),
	}))
	return w, nil
}

// release fails a withdrawal the provider rejected, returning its funds.
func (l *Ledger) release(ctx context.Context, w *models.Withdrawal, cause error) error {
	l.log.Error("payout rejected, releasing withdrawal",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("provider", l.payout.Name()),
		zap.Error(cause),
	)
	metrics.Withdrawals.WithLabelValues("submit_failed").Inc()
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if _, err := l.settle(detached, w.ID, false); err != nil {
		l.log.Error("failed to release withdrawal after payout rejection",
			zap.String("withdrawal_id", w.ID.String()),
			zap.Error(err),
		)
		metrics.ReconciliationNeeded.Inc()
	}
	return apperr.Wrap(apperr.KindUnexpected, cause)
}

// SettleWithdrawal records the payout outcome. Success pays out the frozen
// transactions; failure returns them to the available balance. Settling
// twice with the same outcome is a no-op.
func (l *Ledger) SettleWithdrawal(ctx context.Context, id uuid.UUID, success bool) (*models.Withdrawal, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ledger.SettleWithdrawal")
	defer span.End()
	span.SetAttributes(attribute.Bool("withdrawal.success", success))

	w, err := l.settle(ctx, id, success)
	if err != nil {
		return nil, unexpected(err)
	}
	return w, nil
}

// SettleByReference settles the withdrawal carrying the provider reference.
func (l *Ledger) SettleByReference(ctx context.Context, ref string, success bool) (*models.Withdrawal, error) {
	w, err := store.NewWithdrawals(l.db).GetByReference(ctx, ref)
	if err != nil {
		return nil, unexpected(err)
	}
	return l.SettleWithdrawal(ctx, w.ID, success)
}

func (l *Ledger) settle(ctx context.Context, id uuid.UUID, success bool) (*models.Withdrawal, error) {
	target := models.WithdrawalFailed
	if success {
		target = models.WithdrawalPaid
	}

	now := l.clock()
	var w *models.Withdrawal
	var moved bool
	err := l.inTx(ctx, func(r repos) error {
		var err error
		w, err = r.withdrawals.GetByID(ctx, id)
		if err != nil {
			return err
		}
		moved, err = r.withdrawals.Settle(ctx, id, target, now)
		if err != nil {
			return err
		}
		if !moved {
			if w.Status == target {
				return nil
			}
			return apperr.New(apperr.KindInvalidState, "withdrawal is "+string(w.Status))
		}

		if success {
			if err := r.transactions.MarkPaid(ctx, id, now); err != nil {
				return err
			}
			err = r.users.ApplyBalance(ctx, w.UserID, store.BalanceDelta{TotalRedeemed: w.Amount})
		} else {
			if err := r.transactions.Unfreeze(ctx, id); err != nil {
				return err
			}
			err = r.users.ApplyBalance(ctx, w.UserID, store.BalanceDelta{Available: w.Amount})
		}
		if err != nil {
			return err
		}
		w.Status = target
		w.SettledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return w, nil
	}

	metrics.Withdrawals.WithLabelValues(string(target)).Inc()
	if success {
		metrics.LedgerTransitions.WithLabelValues(string(models.StatusPaid)).Inc()
	}
	l.log.Info("withdrawal settled",
		zap.String("withdrawal_id", id.String()),
		zap.String("status", string(target)),
	)
	l.emit(ctx, events.New(events.WithdrawalSettled, w.UserID, now, map[string]interface{}{
		"withdrawalId": w.ID,
		"status":       target,
		"amount":       w.Amount.StringFixed(2),
	}))
	return w, nil
}

func (l *Ledger) ListWithdrawals(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Withdrawal, store.Page, error) {
	return store.NewWithdrawals(l.db).ListByUser(ctx, userID, l.page(page, limit))
}
