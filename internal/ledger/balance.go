package ledger

import (
	"context"

	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Balance struct {
	Available     decimal.Decimal `json:"available"`
	Pending       decimal.Decimal `json:"pending"`
	TotalEarned   decimal.Decimal `json:"totalEarned"`
	TotalRedeemed decimal.Decimal `json:"totalRedeemed"`
	// InWithdrawal is confirmed cashback frozen by pending withdrawals.
	InWithdrawal decimal.Decimal `json:"inWithdrawal"`
}

func (b Balance) Equal(o Balance) bool {
	return b.Available.Equal(o.Available) &&
		b.Pending.Equal(o.Pending) &&
		b.TotalEarned.Equal(o.TotalEarned) &&
		b.TotalRedeemed.Equal(o.TotalRedeemed)
}

func stored(u *models.User) Balance {
	return Balance{
		Available:     u.Available.Round(2),
		Pending:       u.Pending.Round(2),
		TotalEarned:   u.TotalEarned.Round(2),
		TotalRedeemed: u.TotalRedeemed.Round(2),
	}
}

// Balance returns the user's stored balances plus the amount currently frozen
// by withdrawals.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	user, err := store.NewUsers(l.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	b := stored(user)
	totals, err := store.NewTransactions(l.db).Totals(ctx, userID)
	if err != nil {
		return nil, unexpected(err)
	}
	b.InWithdrawal = totals.ConfirmedInFlight
	return &b, nil
}

// Project recomputes the balances from the user's transactions.
func (l *Ledger) Project(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	totals, err := store.NewTransactions(l.db).Totals(ctx, userID)
	if err != nil {
		return nil, unexpected(err)
	}
	p := projection(totals)
	return &p, nil
}

// projection applies the balance formula: available is confirmed cashback
// outside withdrawals, totalEarned is confirmed plus paid.
func projection(t store.StatusTotals) Balance {
	return Balance{
		Available:     t.ConfirmedAvailable,
		Pending:       t.Pending,
		TotalEarned:   t.ConfirmedAvailable.Add(t.ConfirmedInFlight).Add(t.Paid),
		TotalRedeemed: t.Paid,
		InWithdrawal:  t.ConfirmedInFlight,
	}
}

type BalanceCheck struct {
	Stored     Balance `json:"stored"`
	Projected  Balance `json:"projected"`
	Consistent bool    `json:"consistent"`
}

// Check compares stored balances with the projection.
func (l *Ledger) Check(ctx context.Context, userID uuid.UUID) (*BalanceCheck, error) {
	var out *BalanceCheck
	err := l.inTx(ctx, func(r repos) error {
		user, err := r.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		totals, err := r.transactions.Totals(ctx, userID)
		if err != nil {
			return err
		}
		s := stored(user)
		s.InWithdrawal = totals.ConfirmedInFlight
		p := projection(totals)
		out = &BalanceCheck{Stored: s, Projected: p, Consistent: s.Equal(p)}
		return nil
	})
	if err != nil {
		return nil, unexpected(err)
	}
	return out, nil
}
