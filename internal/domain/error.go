package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound                = errors.New("entity not found")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrAlreadySettled          = errors.New("obligation already settled")
	ErrTxRefConsumed           = errors.New("transaction reference already consumed")
	ErrObservationUnavailable  = errors.New("chain observation unavailable")
	ErrCurrencyNotConfigured   = errors.New("currency not configured")
	ErrNoEffectiveSubscription = errors.New("no effective subscription")
	ErrRateLimited             = errors.New("too many verification attempts")
	ErrLockHeld                = errors.New("lock already held")

	// Storage-boundary errors
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
