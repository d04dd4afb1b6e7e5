package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-crypto-subscription/internal/infra/metrics"
	"telegram-crypto-subscription/internal/usecase"
)

// ExpiryWorker periodically warns users whose effective subscription is
// about to lapse. Access removal itself needs no worker: expiry is a
// timestamp comparison at read time.
type ExpiryWorker struct {
	subUC    usecase.SubscriptionUseCase
	interval time.Duration
	within   time.Duration
	log      *zerolog.Logger
}

func NewExpiryWorker(subUC usecase.SubscriptionUseCase, interval, within time.Duration, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if within <= 0 {
		within = 48 * time.Hour
	}
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{subUC: subUC, interval: interval, within: within, log: &l}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.subUC.NotifyExpiring(ctx, w.within)
			if err != nil {
				w.log.Error().Err(err).Msg("expiry notification pass failed")
				continue
			}
			if n > 0 {
				metrics.AddExpiryNotifications(n)
				w.log.Info().Int("count", n).Msg("expiry warnings sent")
			}
		}
	}
}
