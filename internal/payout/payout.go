// Package payout hands withdrawals to the payment provider.
package payout

import (
	"context"
	"net/http"
	"strconv"

	"github.com/farellandr/cashback/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xendit/xendit-go/v6"
	"github.com/xendit/xendit-go/v6/payout"
	"go.uber.org/zap"
)

// ErrRejected marks a payout the provider refused outright, so no money can
// have moved. Any other submission error leaves the outcome unknown until
// the provider calls back.
var ErrRejected = errors.New("payout rejected")

// Provider submits a withdrawal for asynchronous settlement. The outcome
// arrives later through the ledger's settlement entry points.
type Provider interface {
	Submit(ctx context.Context, w *models.Withdrawal) error
	Name() string
}

// Manual leaves withdrawals pending for an operator to settle.
type Manual struct {
	log *zap.Logger
}

func NewManual(log *zap.Logger) *Manual {
	return &Manual{log: log}
}

func (m *Manual) Submit(_ context.Context, w *models.Withdrawal) error {
	m.log.Info("withdrawal awaiting manual settlement",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("reference", w.Reference),
		zap.String("amount", w.Amount.StringFixed(2)),
	)
	return nil
}

func (m *Manual) Name() string { return "manual" }

type Xendit struct {
	client   *xendit.APIClient
	currency string
	log      *zap.Logger
}

func NewXendit(client *xendit.APIClient, currency string, log *zap.Logger) *Xendit {
	return &Xendit{client: client, currency: currency, log: log}
}

// Submit creates a payout whose reference id and idempotency key are both
// the withdrawal reference.
func (x *Xendit) Submit(ctx context.Context, w *models.Withdrawal) (err error) {
	amount, err := Amount(w.Amount, x.currency)
	if err != nil {
		return err
	}
	req := payout.NewCreatePayoutRequest(
		w.Reference,
		w.Method,
		*payout.NewDigitalPayoutChannelProperties(w.Destination),
		amount,
		x.currency,
	)

	// CreatePayoutExecute dereferences a nil response on transport errors.
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("xendit create payout: %v", r)
		}
	}()
	_, resp, sdkErr := x.client.PayoutApi.CreatePayout(ctx).
		IdempotencyKey(w.Reference).
		CreatePayoutRequest(*req).
		Execute()
	if sdkErr != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		} else if n, convErr := strconv.Atoi(sdkErr.Status()); convErr == nil {
			status = n
		}
		return classify(status, sdkErr.ErrorCode(), sdkErr.Error())
	}

	x.log.Info("payout submitted",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("reference", w.Reference),
		zap.String("channel", w.Method),
	)
	return nil
}

// classify treats a 4xx answer as a definitive rejection. Timeouts, rate
// limits, duplicate idempotency keys and server errors may hide an accepted
// payout.
func classify(status int, code, msg string) error {
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests:
	case status >= 400 && status < 500:
		return errors.Wrapf(ErrRejected, "xendit %d %s: %s", status, code, msg)
	}
	return errors.Errorf("xendit create payout: status %d %s: %s", status, code, msg)
}

// Amount converts a ledger amount to the provider's float field. It refuses
// amounts with more precision than the currency's minor unit or that the
// field cannot carry exactly.
func Amount(amount decimal.Decimal, currency string) (float32, error) {
	places := int32(2)
	if currency == "IDR" {
		places = 0
	}
	if !amount.Round(places).Equal(amount) {
		return 0, errors.Wrapf(ErrRejected, "amount %s has sub-unit precision for %s", amount.String(), currency)
	}
	f, _ := amount.Float64()
	out := float32(f)
	if !decimal.NewFromFloat32(out).Equal(amount) {
		return 0, errors.Wrapf(ErrRejected, "amount %s is not representable", amount.String())
	}
	return out, nil
}

func (x *Xendit) Name() string { return "xendit" }

// CallbackStatus maps a provider payout status onto a settlement outcome.
// ok is false for intermediate statuses that settle nothing.
func CallbackStatus(status string) (success, ok bool) {
	switch status {
	case "SUCCEEDED":
		return true, true
	case "FAILED", "CANCELLED", "EXPIRED", "REVERSED":
		return false, true
	}
	return false, false
}
