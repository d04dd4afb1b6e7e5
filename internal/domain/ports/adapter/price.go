package adapter

import (
	"context"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain/model"
)

// PriceFeed quotes the USD price of one unit of the asset. It is consulted
// exactly once per obligation, at creation time; the resulting crypto amount
// is frozen so the target never moves under the payer.
type PriceFeed interface {
	Price(ctx context.Context, currency model.Currency) (decimal.Decimal, error)
}
