// File: internal/infra/sched/reconcile_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-crypto-subscription/internal/infra/metrics"
	"telegram-crypto-subscription/internal/usecase"
)

// ReconcileWorker drives the timer sweep: every interval it runs one full
// reconciliation pass over all configured currencies. Sweeps are bounded by
// a per-tick timeout so a stuck RPC endpoint cannot stall the schedule.
type ReconcileWorker struct {
	uc       usecase.ReconcileUseCase
	interval time.Duration
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewReconcileWorker(uc usecase.ReconcileUseCase, interval, timeout time.Duration, logger *zerolog.Logger) *ReconcileWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 || timeout >= interval {
		timeout = interval - interval/10
	}
	l := logger.With().Str("component", "ReconcileWorker").Logger()
	return &ReconcileWorker{uc: uc, interval: interval, timeout: timeout, log: &l}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting reconcile worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping reconcile worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ReconcileWorker) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	metrics.IncSweep("timer")
	counts := w.uc.SweepAll(tickCtx)

	total := 0
	for cur, n := range counts {
		metrics.AddSettlements(string(cur), n)
		total += n
	}
	if total > 0 {
		w.log.Info().Int("settled", total).Msg("sweep settled obligations")
	}
}
