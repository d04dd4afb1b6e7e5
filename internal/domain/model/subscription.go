package model

import (
	"time"

	"telegram-crypto-subscription/internal/domain"
)

// Subscription is one append-only entitlement row. Past rows are never
// mutated; extending a plan appends a new row and the effective subscription
// is the unexpired row with the greatest expiry.
type Subscription struct {
	ID        string // ULID
	UserID    string
	Plan      Plan
	StartedAt time.Time
	ExpiresAt time.Time
}

func NewSubscription(id, userID string, plan Plan, startedAt, expiresAt time.Time) (*Subscription, error) {
	if id == "" || userID == "" || !plan.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if expiresAt.Before(startedAt) {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{ID: id, UserID: userID, Plan: plan, StartedAt: startedAt, ExpiresAt: expiresAt}, nil
}

func (s *Subscription) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// EffectiveSubscription picks the winner among a user's rows: the unexpired
// row with the greatest ExpiresAt, or nil when none is unexpired.
func EffectiveSubscription(rows []*Subscription, now time.Time) *Subscription {
	var best *Subscription
	for _, s := range rows {
		if s == nil || s.Expired(now) {
			continue
		}
		if best == nil || s.ExpiresAt.After(best.ExpiresAt) {
			best = s
		}
	}
	return best
}
