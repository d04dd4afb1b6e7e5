// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
	"telegram-crypto-subscription/internal/domain/ports/repository"
)

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// Extend appends a new subscription row for the user. New expiry is
	// max(existing unexpired expiry, now) + plan duration; expiry never
	// moves backward.
	Extend(ctx context.Context, tx repository.Tx, userID string, plan model.Plan) (*model.Subscription, error)

	// Effective returns the current winner row, or ErrNoEffectiveSubscription.
	Effective(ctx context.Context, userID string) (*model.Subscription, error)

	// NotifyExpiring messages users whose effective subscription expires
	// within the window. Returns the number of notifications sent.
	NotifyExpiring(ctx context.Context, within time.Duration) (int, error)
}

type subscriptionUC struct {
	subs     repository.SubscriptionRepository
	notifier adapter.Notifier
	log      *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, notifier adapter.Notifier, logger *zerolog.Logger) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{subs: subs, notifier: notifier, log: &l}
}

func (u *subscriptionUC) Extend(ctx context.Context, tx repository.Tx, userID string, plan model.Plan) (*model.Subscription, error) {
	if userID == "" || !plan.Valid() {
		return nil, domain.ErrInvalidArgument
	}

	now := time.Now().UTC()
	base := now
	current, err := u.subs.FindEffective(ctx, tx, userID, now)
	switch {
	case err == nil:
		if current.ExpiresAt.After(base) {
			base = current.ExpiresAt
		}
	case errors.Is(err, domain.ErrNotFound):
		// first subscription for this user
	default:
		return nil, err
	}

	s, err := model.NewSubscription(ulid.Make().String(), userID, plan, now, plan.ExpiryFrom(base))
	if err != nil {
		return nil, err
	}
	if err := u.subs.Append(ctx, tx, s); err != nil {
		return nil, err
	}
	u.log.Info().
		Str("user", userID).
		Str("plan", string(plan)).
		Time("expires_at", s.ExpiresAt).
		Msg("subscription extended")
	return s, nil
}

func (u *subscriptionUC) Effective(ctx context.Context, userID string) (*model.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	s, err := u.subs.FindEffective(ctx, nil, userID, time.Now().UTC())
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoEffectiveSubscription
	}
	return s, err
}

func (u *subscriptionUC) NotifyExpiring(ctx context.Context, within time.Duration) (int, error) {
	rows, err := u.subs.ListExpiring(ctx, nil, within)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	sent := 0
	for _, s := range rows {
		msg := fmt.Sprintf("Your %s subscription expires at %s. Renew to keep access.", s.Plan, s.ExpiresAt.Format(time.RFC1123))
		if err := u.notifier.NotifyUser(ctx, s.UserID, msg); err != nil {
			u.log.Warn().Err(err).Str("user", s.UserID).Msg("expiry notification failed")
			continue
		}
		sent++
	}
	return sent, nil
}
