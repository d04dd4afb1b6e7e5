package model

import (
	"strings"

	"telegram-crypto-subscription/internal/domain"
)

// Currency identifies a supported settlement asset. Each currency maps to
// exactly one chain observer implementation.
type Currency string

const (
	CurrencyETH Currency = "ETH"
	CurrencySOL Currency = "SOL"
)

// currencySpec carries the per-currency constants that are protocol facts,
// not deployment choices: confirmation depth before an observation may be
// acted on, and the USD ticker used by the price feed.
var currencySpec = map[Currency]struct {
	confirmations int
	ticker        string
	decimals      int32
}{
	CurrencyETH: {confirmations: 3, ticker: "ETHUSDT", decimals: 18},
	CurrencySOL: {confirmations: 1, ticker: "SOLUSDT", decimals: 9},
}

func AllCurrencies() []Currency {
	return []Currency{CurrencyETH, CurrencySOL}
}

func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", domain.ErrInvalidArgument
	}
	return c, nil
}

func (c Currency) Valid() bool {
	_, ok := currencySpec[c]
	return ok
}

// RequiredConfirmations is the minimum confirmation count before an
// observation is actionable. 1 for fast-finality chains, 3 for
// probabilistic-finality chains.
func (c Currency) RequiredConfirmations() int {
	return currencySpec[c].confirmations
}

// TickerSymbol is the spot market symbol quoting this currency in USD.
func (c Currency) TickerSymbol() string {
	return currencySpec[c].ticker
}

// NativeDecimals is the number of decimal places of the chain's base unit
// (wei, lamports) relative to the display unit.
func (c Currency) NativeDecimals() int32 {
	return currencySpec[c].decimals
}
