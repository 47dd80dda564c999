// Package redemption redeems coupons for users.
//
// A redemption is two conditional writes: the coupon's usage counter is
// incremented only while allowance remains, then the (user, coupon) record
// is inserted under a unique index. A failed insert is compensated by
// decrementing the counter.
package redemption

import (
	"context"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/events"
	"github.com/farellandr/cashback/internal/metrics"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/tracing"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type CouponStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error)
	DecrementUsage(ctx context.Context, id uuid.UUID) error
}

type RedemptionStore interface {
	Exists(ctx context.Context, userID, couponID uuid.UUID) (bool, error)
	// Insert reports an apperr Conflict when the pair already exists.
	Insert(ctx context.Context, rec *models.Redemption) error
}

type Result struct {
	Coupon     *models.Coupon `json:"coupon"`
	RedeemedAt time.Time      `json:"redemptionDate"`
}

type Engine struct {
	coupons           CouponStore
	redemptions       RedemptionStore
	events            events.Publisher
	log               *zap.Logger
	now               func() time.Time
	compensateTimeout time.Duration
}

func NewEngine(coupons CouponStore, redemptions RedemptionStore, pub events.Publisher, log *zap.Logger) *Engine {
	return &Engine{
		coupons:           coupons,
		redemptions:       redemptions,
		events:            pub,
		log:               log,
		now:               time.Now,
		compensateTimeout: 5 * time.Second,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// conflict is returned by an attempt whose conditional write lost a race.
type conflict struct {
	kind apperr.Kind
}

func (c *conflict) Error() string { return "redemption conflict: " + string(c.kind) }

// Redeem consumes one use of the coupon for the user. Validity is checked in
// a fixed order: NotFound, Inactive, Expired, LimitReached, AlreadyRedeemed.
func (e *Engine) Redeem(ctx context.Context, userID, couponID uuid.UUID) (*Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "redemption.Redeem")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("coupon.id", couponID.String()),
	)

	res, err := e.attempt(ctx, userID, couponID)
	var c *conflict
	if errors.As(err, &c) {
		span.AddEvent("retry after conflict")
		res, err = e.attempt(ctx, userID, couponID)
		if errors.As(err, &c) {
			err = apperr.New(c.kind, "lost a concurrent redemption")
		}
	}

	outcome := "success"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		span.SetStatus(codes.Error, outcome)
	}
	metrics.Redemptions.WithLabelValues(outcome).Inc()
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, e.events, e.log, events.New(events.CouponRedeemed, userID, res.RedeemedAt, map[string]interface{}{
		"couponId": couponID,
		"code":     res.Coupon.Code,
	}))
	return res, nil
}

func (e *Engine) attempt(ctx context.Context, userID, couponID uuid.UUID) (*Result, error) {
	coupon, err := e.coupons.GetByID(ctx, couponID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, unexpected(err)
	}

	now := e.now().UTC()
	if err := check(coupon, now); err != nil {
		return nil, err
	}

	redeemed, err := e.redemptions.Exists(ctx, userID, couponID)
	if err != nil {
		return nil, unexpected(err)
	}
	if redeemed {
		return nil, apperr.New(apperr.KindAlreadyRedeemed, "coupon already redeemed")
	}

	ok, err := e.coupons.IncrementUsage(ctx, couponID)
	if err != nil {
		return nil, unexpected(err)
	}
	if !ok {
		return nil, &conflict{kind: apperr.KindLimitReached}
	}

	rec := &models.Redemption{UserID: userID, CouponID: couponID, RedeemedAt: now}
	if err := e.redemptions.Insert(ctx, rec); err != nil {
		if cerr := e.compensate(ctx, userID, couponID); cerr != nil {
			return nil, unexpected(err)
		}
		if errors.Is(err, apperr.ErrConflict) {
			return nil, &conflict{kind: apperr.KindAlreadyRedeemed}
		}
		return nil, unexpected(err)
	}

	coupon.UsageCount++
	return &Result{Coupon: coupon, RedeemedAt: now}, nil
}

// check evaluates the coupon-local predicates in order.
func check(c *models.Coupon, now time.Time) error {
	if !c.IsActive {
		return apperr.New(apperr.KindInactive, "coupon is not active")
	}
	if c.ExpiryDate != nil && !now.Before(*c.ExpiryDate) {
		return apperr.New(apperr.KindExpired, "coupon has expired")
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return apperr.New(apperr.KindLimitReached, "coupon usage limit reached")
	}
	return nil
}

// compensate gives back the use taken by a failed redemption. It runs on a
// context detached from the caller so an expired request deadline does not
// skip it.
func (e *Engine) compensate(ctx context.Context, userID, couponID uuid.UUID) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.compensateTimeout)
	defer cancel()

	err := e.coupons.DecrementUsage(cctx, couponID)
	if err != nil {
		metrics.ReconciliationNeeded.Inc()
		e.log.Error("usage compensation failed, reconcile coupon usage count",
			zap.String("coupon_id", couponID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
	return err
}

func unexpected(err error) error {
	return apperr.Wrap(apperr.KindUnexpected, err)
}
