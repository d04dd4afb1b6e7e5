package model

import "github.com/shopspring/decimal"

// ChainObservation is a normalized, ephemeral view of one inbound transfer
// as reported by a chain observer. It is never persisted.
type ChainObservation struct {
	Recipient     string
	Sender        string
	Amount        decimal.Decimal
	Currency      Currency
	TxRef         string
	Confirmations int
}

// Actionable reports whether the observation has enough confirmations to be
// reconciled. Observations below the per-currency threshold must be ignored:
// the transaction may still be reorganized out of the canonical chain.
func (o ChainObservation) Actionable() bool {
	return o.Confirmations >= o.Currency.RequiredConfirmations()
}

// Satisfies reports whether the observation can settle the obligation:
// same currency and recipient, and at least the expected amount. At-least
// rather than exact-equal tolerates payers who round up.
func (o ChainObservation) Satisfies(ob *PendingObligation) bool {
	if ob == nil || o.Currency != ob.Currency {
		return false
	}
	if o.Recipient != ob.Recipient {
		return false
	}
	return o.Amount.GreaterThanOrEqual(ob.ExpectedAmount)
}
