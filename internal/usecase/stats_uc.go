// File: internal/usecase/stats_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/repository"
)

var _ StatsUseCase = (*statsUC)(nil)

// StatsUseCase aggregates operator-facing numbers for the admin surface.
type StatsUseCase interface {
	Snapshot(ctx context.Context, revenueSince time.Time) (*Stats, error)
}

type Stats struct {
	OpenObligations     int                                `json:"open_obligations"`
	ActiveSubscriptions int                                `json:"active_subscriptions"`
	SettledRevenue      map[model.Currency]decimal.Decimal `json:"settled_revenue"`
}

type statsUC struct {
	obligations repository.ObligationRepository
	subs        repository.SubscriptionRepository
}

func NewStatsUseCase(obligations repository.ObligationRepository, subs repository.SubscriptionRepository) *statsUC {
	return &statsUC{obligations: obligations, subs: subs}
}

func (u *statsUC) Snapshot(ctx context.Context, revenueSince time.Time) (*Stats, error) {
	open, err := u.obligations.CountOpen(ctx, nil)
	if err != nil {
		return nil, err
	}
	active, err := u.subs.CountActive(ctx, nil, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	revenue := make(map[model.Currency]decimal.Decimal, len(model.AllCurrencies()))
	for _, cur := range model.AllCurrencies() {
		sum, err := u.obligations.SumSettledAmount(ctx, nil, cur, revenueSince)
		if err != nil {
			return nil, err
		}
		revenue[cur] = sum
	}
	return &Stats{OpenObligations: open, ActiveSubscriptions: active, SettledRevenue: revenue}, nil
}
