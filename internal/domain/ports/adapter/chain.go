package adapter

import (
	"context"
	"time"

	"telegram-crypto-subscription/internal/domain/model"
)

// ChainObserver queries one external ledger and reports normalized
// observations. Implementations are read-only: they never move funds.
//
// Failure contract: transport, timeout and decode problems surface as
// domain.ErrObservationUnavailable so the reconciler treats them as "not
// yet settled" and retries next cycle. A chain is never authoritative on a
// single failed call.
type ChainObserver interface {
	Currency() model.Currency

	// ScanRecent returns observations for transfers into recipient within
	// the lookback window.
	ScanRecent(ctx context.Context, recipient string, lookback time.Duration) ([]model.ChainObservation, error)

	// Lookup returns the observation for a specific transaction reference,
	// or nil when the reference is unknown or not yet visible.
	Lookup(ctx context.Context, txRef string) (*model.ChainObservation, error)
}
