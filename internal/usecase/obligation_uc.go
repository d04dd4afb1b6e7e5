// File: internal/usecase/obligation_uc.go
package usecase

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
	"telegram-crypto-subscription/internal/domain/ports/repository"
)

// Compile-time check
var _ ObligationUseCase = (*obligationUC)(nil)

// quoteScale is the number of decimal places kept on a frozen crypto quote.
const quoteScale = 8

type ObligationUseCase interface {
	// Create quotes the plan in crypto at the current price and records an
	// open obligation. The amount is frozen; settlement never re-prices.
	Create(ctx context.Context, userID string, plan model.Plan, currency model.Currency) (*model.PendingObligation, error)
	ListOpenByUser(ctx context.Context, userID string) ([]*model.PendingObligation, error)
}

type obligationUC struct {
	obligations repository.ObligationRepository
	prices      adapter.PriceFeed
	recipients  map[model.Currency]string // configured deposit address per currency
	log         *zerolog.Logger
}

func NewObligationUseCase(obligations repository.ObligationRepository, prices adapter.PriceFeed, recipients map[model.Currency]string, logger *zerolog.Logger) *obligationUC {
	l := logger.With().Str("component", "ObligationUC").Logger()
	return &obligationUC{obligations: obligations, prices: prices, recipients: recipients, log: &l}
}

func (u *obligationUC) Create(ctx context.Context, userID string, plan model.Plan, currency model.Currency) (*model.PendingObligation, error) {
	if userID == "" || !plan.Valid() || !currency.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	recipient, ok := u.recipients[currency]
	if !ok || recipient == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrCurrencyNotConfigured, currency)
	}

	price, err := u.prices.Price(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", currency, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("quote %s: %w", currency, domain.ErrInvalidArgument)
	}
	expected := plan.PriceUSD().DivRound(price, quoteScale)
	if expected.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidArgument
	}

	o, err := model.NewPendingObligation(ulid.Make().String(), userID, plan, currency, expected, recipient)
	if err != nil {
		return nil, err
	}
	if err := u.obligations.Save(ctx, nil, o); err != nil {
		return nil, err
	}
	u.log.Info().
		Str("obligation", o.ID).
		Str("user", userID).
		Str("plan", string(plan)).
		Str("currency", string(currency)).
		Str("expected", expected.String()).
		Msg("obligation created")
	return o, nil
}

func (u *obligationUC) ListOpenByUser(ctx context.Context, userID string) ([]*model.PendingObligation, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.obligations.ListOpenByUser(ctx, nil, userID)
}
