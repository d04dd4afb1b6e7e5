// File: internal/usecase/obligation_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
)

func newObligationFixture(quotes map[model.Currency]decimal.Decimal) (*memObligationRepo, ObligationUseCase) {
	repo := newMemObligationRepo()
	feed := &fakePriceFeed{quotes: quotes}
	recipients := map[model.Currency]string{
		model.CurrencyETH: "0xdeposit",
		model.CurrencySOL: "SolDeposit1111",
	}
	uc := NewObligationUseCase(repo, feed, recipients, testLogger())
	return repo, uc
}

func TestObligationCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("freezes quote at creation price", func(t *testing.T) {
		_, uc := newObligationFixture(map[model.Currency]decimal.Decimal{
			model.CurrencyETH: decimal.NewFromInt(2500),
		})

		o, err := uc.Create(ctx, "42", model.PlanMonthly, model.CurrencyETH)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		// $50 at $2500/ETH
		if want := decimal.RequireFromString("0.02"); !o.ExpectedAmount.Equal(want) {
			t.Fatalf("expected amount %s, got %s", want, o.ExpectedAmount)
		}
		if !o.Open() {
			t.Fatal("new obligation must be open")
		}
		if o.Recipient != "0xdeposit" {
			t.Fatalf("unexpected recipient %q", o.Recipient)
		}
	})

	t.Run("unconfigured currency", func(t *testing.T) {
		repo := newMemObligationRepo()
		feed := &fakePriceFeed{quotes: map[model.Currency]decimal.Decimal{
			model.CurrencySOL: decimal.NewFromInt(150),
		}}
		uc := NewObligationUseCase(repo, feed, map[model.Currency]string{model.CurrencySOL: "SolDeposit1111"}, testLogger())

		_, err := uc.Create(ctx, "42", model.PlanDaily, model.CurrencyETH)
		if !errors.Is(err, domain.ErrCurrencyNotConfigured) {
			t.Fatalf("want ErrCurrencyNotConfigured, got %v", err)
		}
	})

	t.Run("price feed failure aborts creation", func(t *testing.T) {
		repo := newMemObligationRepo()
		feed := &fakePriceFeed{err: domain.ErrObservationUnavailable}
		uc := NewObligationUseCase(repo, feed, map[model.Currency]string{model.CurrencyETH: "0xdeposit"}, testLogger())

		_, err := uc.Create(ctx, "42", model.PlanMonthly, model.CurrencyETH)
		if !errors.Is(err, domain.ErrObservationUnavailable) {
			t.Fatalf("want ErrObservationUnavailable, got %v", err)
		}
		if n, _ := repo.CountOpen(ctx, nil); n != 0 {
			t.Fatalf("no obligation should be persisted, got %d open", n)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		_, uc := newObligationFixture(map[model.Currency]decimal.Decimal{
			model.CurrencyETH: decimal.NewFromInt(2500),
		})
		if _, err := uc.Create(ctx, "", model.PlanMonthly, model.CurrencyETH); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("empty user: want ErrInvalidArgument, got %v", err)
		}
		if _, err := uc.Create(ctx, "42", model.Plan("gold"), model.CurrencyETH); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("bad plan: want ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("multiple open obligations per user are allowed", func(t *testing.T) {
		_, uc := newObligationFixture(map[model.Currency]decimal.Decimal{
			model.CurrencyETH: decimal.NewFromInt(2500),
			model.CurrencySOL: decimal.NewFromInt(150),
		})
		if _, err := uc.Create(ctx, "42", model.PlanMonthly, model.CurrencyETH); err != nil {
			t.Fatalf("first: %v", err)
		}
		if _, err := uc.Create(ctx, "42", model.PlanWeekly, model.CurrencySOL); err != nil {
			t.Fatalf("second: %v", err)
		}
		open, err := uc.ListOpenByUser(ctx, "42")
		if err != nil {
			t.Fatalf("ListOpenByUser: %v", err)
		}
		if len(open) != 2 {
			t.Fatalf("want 2 open obligations, got %d", len(open))
		}
	})
}
