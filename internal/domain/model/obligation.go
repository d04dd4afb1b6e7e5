package model

import (
	"time"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain"
)

// PendingObligation records the expectation that a user will pay
// ExpectedAmount of Currency to Recipient to unlock Plan. The quoted amount
// is frozen at creation from the live price feed and never re-priced.
//
// An obligation is open iff SettledAt is nil. Settlement is exactly-once:
// a settled row is immutable and MatchedTxRef is unique across the ledger.
type PendingObligation struct {
	ID             string // ULID, lexicographic order follows creation order
	UserID         string // opaque messaging-layer identifier
	Plan           Plan
	Currency       Currency
	ExpectedAmount decimal.Decimal
	Recipient      string // deposit address quoted to the payer
	TxRef          string // optional payer-supplied transaction reference
	CreatedAt      time.Time
	SettledAt      *time.Time
	MatchedTxRef   *string
}

// NewPendingObligation validates and constructs an open obligation.
func NewPendingObligation(id, userID string, plan Plan, currency Currency, expectedAmount decimal.Decimal, recipient string) (*PendingObligation, error) {
	if id == "" || userID == "" || recipient == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !plan.Valid() || !currency.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if expectedAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidArgument
	}
	return &PendingObligation{
		ID:             id,
		UserID:         userID,
		Plan:           plan,
		Currency:       currency,
		ExpectedAmount: expectedAmount,
		Recipient:      recipient,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (o *PendingObligation) Open() bool {
	return o.SettledAt == nil
}
