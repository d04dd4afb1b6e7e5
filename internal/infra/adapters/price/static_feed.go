package price

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
)

var _ adapter.PriceFeed = (*StaticFeed)(nil)

// StaticFeed serves fixed quotes from config. Used in dev and in tests.
type StaticFeed struct {
	quotes map[model.Currency]decimal.Decimal
}

func NewStaticFeed(raw map[string]string) (*StaticFeed, error) {
	quotes := make(map[model.Currency]decimal.Decimal, len(raw))
	for name, value := range raw {
		cur, err := model.ParseCurrency(name)
		if err != nil {
			return nil, fmt.Errorf("static price: unknown currency %q", name)
		}
		d, err := decimal.NewFromString(value)
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("static price %s: bad value %q", name, value)
		}
		quotes[cur] = d
	}
	return &StaticFeed{quotes: quotes}, nil
}

func (f *StaticFeed) Price(_ context.Context, currency model.Currency) (decimal.Decimal, error) {
	d, ok := f.quotes[currency]
	if !ok {
		return decimal.Zero, domain.ErrCurrencyNotConfigured
	}
	return d, nil
}
