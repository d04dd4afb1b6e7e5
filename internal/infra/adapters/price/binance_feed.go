// File: internal/infra/adapters/price/binance_feed.go
package price

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
)

var _ adapter.PriceFeed = (*BinanceFeed)(nil)

// BinanceFeed quotes spot USD prices from the public ticker endpoint.
// No API key is needed for price data.
type BinanceFeed struct {
	client *binance.Client
	log    *zerolog.Logger
}

func NewBinanceFeed(logger *zerolog.Logger) *BinanceFeed {
	l := logger.With().Str("component", "BinanceFeed").Logger()
	return &BinanceFeed{client: binance.NewClient("", ""), log: &l}
}

func (f *BinanceFeed) Price(ctx context.Context, currency model.Currency) (decimal.Decimal, error) {
	if !currency.Valid() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	symbol := currency.TickerSymbol()
	prices, err := f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		f.log.Warn().Err(err).Str("symbol", symbol).Msg("price fetch failed")
		return decimal.Zero, fmt.Errorf("price %s: %w", symbol, domain.ErrObservationUnavailable)
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		d, err := decimal.NewFromString(p.Price)
		if err != nil || !d.IsPositive() {
			return decimal.Zero, fmt.Errorf("price %s: bad quote %q: %w", symbol, p.Price, domain.ErrObservationUnavailable)
		}
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("price %s: no quote: %w", symbol, domain.ErrObservationUnavailable)
}
