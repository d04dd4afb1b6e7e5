package repository

import (
	"context"
	"time"

	"telegram-crypto-subscription/internal/domain/model"
)

// SubscriptionRepository stores append-only subscription rows.
type SubscriptionRepository interface {
	// Append inserts a new row; existing rows are never updated.
	Append(ctx context.Context, tx Tx, s *model.Subscription) error

	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)

	// FindEffective returns the unexpired row with the greatest expiry for
	// the user, or domain.ErrNotFound.
	FindEffective(ctx context.Context, tx Tx, userID string, now time.Time) (*model.Subscription, error)

	// ListExpiring returns effective rows whose expiry falls inside the
	// window (now, now+within], used for expiry notifications.
	ListExpiring(ctx context.Context, tx Tx, within time.Duration) ([]*model.Subscription, error)

	CountActive(ctx context.Context, tx Tx, now time.Time) (int, error)
}
