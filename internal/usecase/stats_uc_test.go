package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain/model"
)

func TestStatsSnapshot(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	obligations := newMemObligationRepo()
	subs := newMemSubscriptionRepo()

	// two open obligations, one settled inside the revenue window, one before it
	open1, _ := model.NewPendingObligation("o1", "u1", model.PlanMonthly, model.CurrencyETH, decimal.RequireFromString("0.02"), "0xdeposit")
	open2, _ := model.NewPendingObligation("o2", "u2", model.PlanWeekly, model.CurrencySOL, decimal.RequireFromString("0.1"), "SolDeposit1111")
	recent, _ := model.NewPendingObligation("o3", "u3", model.PlanMonthly, model.CurrencyETH, decimal.RequireFromString("0.03"), "0xdeposit")
	recentAt := now.Add(-time.Hour)
	recent.SettledAt = &recentAt
	old, _ := model.NewPendingObligation("o4", "u4", model.PlanMonthly, model.CurrencyETH, decimal.RequireFromString("0.05"), "0xdeposit")
	oldAt := now.AddDate(0, -2, 0)
	old.SettledAt = &oldAt
	for _, o := range []*model.PendingObligation{open1, open2, recent, old} {
		if err := obligations.Save(ctx, nil, o); err != nil {
			t.Fatal(err)
		}
	}

	// one active subscriber, one lapsed
	active, _ := model.NewSubscription("s1", "u3", model.PlanMonthly, now.AddDate(0, 0, -1), now.AddDate(0, 0, 29))
	lapsed, _ := model.NewSubscription("s2", "u4", model.PlanWeekly, now.AddDate(0, -3, 0), now.AddDate(0, -3, 7))
	_ = subs.Append(ctx, nil, active)
	_ = subs.Append(ctx, nil, lapsed)

	uc := NewStatsUseCase(obligations, subs)
	snap, err := uc.Snapshot(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.OpenObligations != 2 {
		t.Fatalf("open obligations %d, want 2", snap.OpenObligations)
	}
	if snap.ActiveSubscriptions != 1 {
		t.Fatalf("active subscriptions %d, want 1", snap.ActiveSubscriptions)
	}
	if want := decimal.RequireFromString("0.03"); !snap.SettledRevenue[model.CurrencyETH].Equal(want) {
		t.Fatalf("ETH revenue %s, want %s (settlements before the window excluded)", snap.SettledRevenue[model.CurrencyETH], want)
	}
	if !snap.SettledRevenue[model.CurrencySOL].IsZero() {
		t.Fatalf("SOL revenue %s, want 0", snap.SettledRevenue[model.CurrencySOL])
	}
}
