package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain"
)

func TestParsePlanAndCurrency(t *testing.T) {
	if p, err := ParsePlan(" Monthly "); err != nil || p != PlanMonthly {
		t.Fatalf("ParsePlan: %v %v", p, err)
	}
	if _, err := ParsePlan("gold"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
	if c, err := ParseCurrency("eth"); err != nil || c != CurrencyETH {
		t.Fatalf("ParseCurrency: %v %v", c, err)
	}
	if _, err := ParseCurrency("doge"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestExpiryFrom(t *testing.T) {
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	if got := PlanWeekly.ExpiryFrom(base); !got.Equal(base.Add(7 * 24 * time.Hour)) {
		t.Fatalf("weekly expiry %v", got)
	}
	if got := PlanLifetime.ExpiryFrom(base); !got.Equal(LifetimeExpiry) {
		t.Fatalf("lifetime expiry %v", got)
	}
	// extending from the sentinel must not pass it
	if got := PlanYearly.ExpiryFrom(LifetimeExpiry); !got.Equal(LifetimeExpiry) {
		t.Fatalf("expiry beyond sentinel: %v", got)
	}
}

func TestEffectiveSubscription(t *testing.T) {
	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	rows := []*Subscription{
		{ID: "a", UserID: "u", Plan: PlanDaily, ExpiresAt: now.Add(-time.Hour)},   // expired
		{ID: "b", UserID: "u", Plan: PlanWeekly, ExpiresAt: now.Add(time.Hour)},   // active
		{ID: "c", UserID: "u", Plan: PlanMonthly, ExpiresAt: now.Add(48 * time.Hour)}, // winner
		nil,
	}
	best := EffectiveSubscription(rows, now)
	if best == nil || best.ID != "c" {
		t.Fatalf("effective = %+v, want row c", best)
	}
	if EffectiveSubscription(rows[:1], now) != nil {
		t.Fatal("only expired rows: want nil")
	}
}

func TestObservationActionable(t *testing.T) {
	ob := ChainObservation{Currency: CurrencyETH, Confirmations: CurrencyETH.RequiredConfirmations() - 1}
	if ob.Actionable() {
		t.Fatal("one short of the threshold must not be actionable")
	}
	ob.Confirmations++
	if !ob.Actionable() {
		t.Fatal("at the threshold must be actionable")
	}

	sol := ChainObservation{Currency: CurrencySOL, Confirmations: 1}
	if !sol.Actionable() {
		t.Fatal("SOL is actionable at one confirmation")
	}
}

func TestObservationSatisfies(t *testing.T) {
	ob, err := NewPendingObligation("id1", "u", PlanMonthly, CurrencyETH, decimal.RequireFromString("0.02"), "0xdeposit")
	if err != nil {
		t.Fatal(err)
	}

	base := ChainObservation{
		Recipient: "0xdeposit",
		Amount:    decimal.RequireFromString("0.02"),
		Currency:  CurrencyETH,
	}
	if !base.Satisfies(ob) {
		t.Fatal("exact amount satisfies")
	}

	over := base
	over.Amount = decimal.RequireFromString("0.03")
	if !over.Satisfies(ob) {
		t.Fatal("overpayment satisfies")
	}

	under := base
	under.Amount = decimal.RequireFromString("0.0199")
	if under.Satisfies(ob) {
		t.Fatal("underpayment must not satisfy")
	}

	wrongAddr := base
	wrongAddr.Recipient = "0xother"
	if wrongAddr.Satisfies(ob) {
		t.Fatal("wrong recipient must not satisfy")
	}

	wrongCur := base
	wrongCur.Currency = CurrencySOL
	if wrongCur.Satisfies(ob) {
		t.Fatal("wrong currency must not satisfy")
	}
	if base.Satisfies(nil) {
		t.Fatal("nil obligation must not satisfy")
	}
}

func TestNewPendingObligationValidation(t *testing.T) {
	amount := decimal.RequireFromString("0.02")
	cases := []struct {
		name      string
		id, user  string
		plan      Plan
		currency  Currency
		amount    decimal.Decimal
		recipient string
	}{
		{"empty id", "", "u", PlanDaily, CurrencyETH, amount, "0xd"},
		{"empty user", "i", "", PlanDaily, CurrencyETH, amount, "0xd"},
		{"bad plan", "i", "u", Plan("gold"), CurrencyETH, amount, "0xd"},
		{"bad currency", "i", "u", PlanDaily, Currency("DOGE"), amount, "0xd"},
		{"zero amount", "i", "u", PlanDaily, CurrencyETH, decimal.Zero, "0xd"},
		{"negative amount", "i", "u", PlanDaily, CurrencyETH, amount.Neg(), "0xd"},
		{"empty recipient", "i", "u", PlanDaily, CurrencyETH, amount, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPendingObligation(tc.id, tc.user, tc.plan, tc.currency, tc.amount, tc.recipient); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("want ErrInvalidArgument, got %v", err)
			}
		})
	}
}
