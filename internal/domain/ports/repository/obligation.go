package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain/model"
)

// ObligationRepository persists payment obligations. The open/settled
// invariant is enforced at this boundary, not by caller discipline.
type ObligationRepository interface {
	Save(ctx context.Context, tx Tx, o *model.PendingObligation) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PendingObligation, error)

	// ListOpen returns unsettled obligations oldest-first, optionally
	// filtered by currency. Creation order drives FIFO matching.
	ListOpen(ctx context.Context, tx Tx, currency *model.Currency, limit int) ([]*model.PendingObligation, error)
	ListOpenByUser(ctx context.Context, tx Tx, userID string) ([]*model.PendingObligation, error)

	// AttachTxRef records a payer-supplied transaction reference on a still
	// open obligation so later sweeps can use a direct lookup. Returns
	// domain.ErrAlreadySettled when the obligation is no longer open.
	AttachTxRef(ctx context.Context, tx Tx, id, txRef string) error

	// SettleIfOpen atomically transitions an obligation from open to settled
	// iff it is still open. Returns false (not an error) when a concurrent
	// caller settled it first. Returns domain.ErrTxRefConsumed when txRef
	// already settled another obligation.
	SettleIfOpen(ctx context.Context, tx Tx, id, txRef string, settledAt time.Time) (bool, error)

	CountOpen(ctx context.Context, tx Tx) (int, error)
	SumSettledAmount(ctx context.Context, tx Tx, currency model.Currency, since time.Time) (decimal.Decimal, error)
}
