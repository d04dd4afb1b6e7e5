// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
	"telegram-crypto-subscription/internal/domain/ports/repository"
)

var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase closes the loop between observed chain activity and
// ledger state, at most once per settlement. The only transition is
// Open -> Settled; an obligation that never matches simply stays open.
type ReconcileUseCase interface {
	// SweepAll runs one sweep over every configured currency. A failing
	// currency is logged and retried next cycle, never aborting the others.
	SweepAll(ctx context.Context) map[model.Currency]int

	// SweepCurrency sweeps one currency and returns how many obligations
	// were settled.
	SweepCurrency(ctx context.Context, currency model.Currency) (int, error)

	// VerifyNow is the user-triggered "I've paid" path. It funnels through
	// the same settle primitive as the timer sweep. A non-nil subscription
	// means access was granted; (nil, nil) means not yet detected.
	VerifyNow(ctx context.Context, userID, txRef string) (*model.Subscription, error)
}

// SweepLocker keeps concurrent sweeps of the same currency from piling up
// across instances. Implemented by the redis locker.
type SweepLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// VerifyLimiter throttles user-triggered verification so detection windows
// cannot be probed. Implemented by the redis rate limiter.
type VerifyLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type ReconcileConfig struct {
	Lookback     time.Duration // scanRecent window
	SweepLimit   int           // max open obligations per currency per sweep
	LockTTL      time.Duration
	VerifyLimit  int
	VerifyWindow time.Duration
}

func (c *ReconcileConfig) normalize() {
	if c.Lookback <= 0 {
		c.Lookback = time.Hour
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = 200
	}
	if c.LockTTL <= 0 {
		c.LockTTL = time.Minute
	}
	if c.VerifyLimit <= 0 {
		c.VerifyLimit = 3
	}
	if c.VerifyWindow <= 0 {
		c.VerifyWindow = time.Minute
	}
}

type reconcileUC struct {
	obligations repository.ObligationRepository
	subs        SubscriptionUseCase
	tm          repository.TransactionManager
	observers   map[model.Currency]adapter.ChainObserver
	notifier    adapter.Notifier
	locker      SweepLocker
	limiter     VerifyLimiter
	cfg         ReconcileConfig
	log         *zerolog.Logger

	// serializes sweeps per currency in-process; RPC endpoints are
	// rate-limited, so calls for one chain must not interleave.
	serialMu sync.Mutex
	serial   map[model.Currency]*sync.Mutex
}

func NewReconcileUseCase(
	obligations repository.ObligationRepository,
	subs SubscriptionUseCase,
	tm repository.TransactionManager,
	observers map[model.Currency]adapter.ChainObserver,
	notifier adapter.Notifier,
	locker SweepLocker,
	limiter VerifyLimiter,
	cfg ReconcileConfig,
	logger *zerolog.Logger,
) *reconcileUC {
	cfg.normalize()
	l := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		obligations: obligations,
		subs:        subs,
		tm:          tm,
		observers:   observers,
		notifier:    notifier,
		locker:      locker,
		limiter:     limiter,
		cfg:         cfg,
		log:         &l,
		serial:      make(map[model.Currency]*sync.Mutex),
	}
}

func (u *reconcileUC) SweepAll(ctx context.Context) map[model.Currency]int {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[model.Currency]int, len(u.observers))
	)
	// currencies are independent; sweep them concurrently
	for cur := range u.observers {
		wg.Add(1)
		go func(cur model.Currency) {
			defer wg.Done()
			n, err := u.SweepCurrency(ctx, cur)
			if err != nil {
				u.log.Warn().Err(err).Str("currency", string(cur)).Msg("sweep failed; will retry next cycle")
				return
			}
			mu.Lock()
			out[cur] = n
			mu.Unlock()
		}(cur)
	}
	wg.Wait()
	return out
}

func (u *reconcileUC) SweepCurrency(ctx context.Context, currency model.Currency) (int, error) {
	observer, ok := u.observers[currency]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrCurrencyNotConfigured, currency)
	}

	lock := u.currencyMutex(currency)
	lock.Lock()
	defer lock.Unlock()

	if u.locker != nil {
		key := sweepLockKey(currency)
		token, err := u.locker.TryLock(ctx, key, u.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				// another instance is sweeping this currency
				return 0, nil
			}
			return 0, err
		}
		defer func() { _ = u.locker.Unlock(ctx, key, token) }()
	}

	open, err := u.obligations.ListOpen(ctx, nil, &currency, u.cfg.SweepLimit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(open) == 0 {
		return 0, nil
	}

	observations := u.gather(ctx, observer, open)
	return u.match(ctx, open, observations), nil
}

// gather collects deduplicated observations for the open obligations:
// a direct lookup when the payer supplied a reference, one recipient scan
// otherwise. Transport failures mean "no observation yet" and are retried
// next cycle.
func (u *reconcileUC) gather(ctx context.Context, observer adapter.ChainObserver, open []*model.PendingObligation) []model.ChainObservation {
	var out []model.ChainObservation
	seen := make(map[string]bool)
	scanned := make(map[string]bool)

	for _, o := range open {
		if o.TxRef != "" {
			ob, err := observer.Lookup(ctx, o.TxRef)
			if err != nil {
				u.log.Debug().Err(err).Str("tx_ref", o.TxRef).Str("currency", string(o.Currency)).Msg("lookup unavailable")
				continue
			}
			if ob != nil && !seen[ob.TxRef] {
				seen[ob.TxRef] = true
				out = append(out, *ob)
			}
			continue
		}
		if scanned[o.Recipient] {
			continue
		}
		scanned[o.Recipient] = true
		list, err := observer.ScanRecent(ctx, o.Recipient, u.cfg.Lookback)
		if err != nil {
			u.log.Debug().Err(err).Str("recipient", o.Recipient).Str("currency", string(o.Currency)).Msg("scan unavailable")
			continue
		}
		for _, ob := range list {
			if !seen[ob.TxRef] {
				seen[ob.TxRef] = true
				out = append(out, ob)
			}
		}
	}
	return out
}

// match settles observations against open obligations. Obligations arrive
// oldest-first, so the first satisfiable one wins (FIFO): a single large
// payment cannot double-satisfy obligations out of order, and one txRef
// settles at most one obligation.
func (u *reconcileUC) match(ctx context.Context, open []*model.PendingObligation, observations []model.ChainObservation) int {
	settledIDs := make(map[string]bool)
	consumed := make(map[string]bool)
	settled := 0

	for _, ob := range observations {
		if !ob.Actionable() {
			u.log.Debug().
				Str("tx_ref", ob.TxRef).
				Int("confirmations", ob.Confirmations).
				Int("required", ob.Currency.RequiredConfirmations()).
				Msg("observation below confirmation threshold")
			continue
		}
		if consumed[ob.TxRef] {
			continue
		}
		for _, o := range open {
			if settledIDs[o.ID] || !ob.Satisfies(o) {
				continue
			}
			// an obligation pinned to a payer-supplied reference only
			// settles against that reference
			if o.TxRef != "" && o.TxRef != ob.TxRef {
				continue
			}
			sub, ok, err := u.settleAndExtend(ctx, o, ob)
			if err != nil {
				if errors.Is(err, domain.ErrTxRefConsumed) {
					consumed[ob.TxRef] = true
					break
				}
				u.log.Warn().Err(err).Str("obligation", o.ID).Msg("settlement attempt failed")
				continue
			}
			settledIDs[o.ID] = true
			if !ok {
				// settled by a concurrent sweep; no side effects here
				continue
			}
			consumed[ob.TxRef] = true
			settled++
			u.notifyGranted(ctx, o, sub)
			break
		}
	}
	return settled
}

// settleAndExtend performs the exactly-once transition. Settlement and
// extension commit together: if extending fails the settle rolls back and
// the obligation is retried next cycle.
func (u *reconcileUC) settleAndExtend(ctx context.Context, o *model.PendingObligation, ob model.ChainObservation) (*model.Subscription, bool, error) {
	var (
		sub        *model.Subscription
		settledNow bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.obligations.SettleIfOpen(ctx, tx, o.ID, ob.TxRef, time.Now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		settledNow = true
		sub, err = u.subs.Extend(ctx, tx, o.UserID, o.Plan)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if settledNow {
		u.log.Info().
			Str("obligation", o.ID).
			Str("user", o.UserID).
			Str("tx_ref", ob.TxRef).
			Str("amount", ob.Amount.String()).
			Msg("obligation settled")
	}
	return sub, settledNow, nil
}

func (u *reconcileUC) notifyGranted(ctx context.Context, o *model.PendingObligation, sub *model.Subscription) {
	if u.notifier == nil || sub == nil {
		return
	}
	var until string
	if sub.ExpiresAt.Equal(model.LifetimeExpiry) {
		until = "forever"
	} else {
		until = "until " + sub.ExpiresAt.Format(time.RFC1123)
	}
	msg := fmt.Sprintf("Payment received. Your %s plan is active %s.", sub.Plan, until)
	if err := u.notifier.NotifyUser(ctx, o.UserID, msg); err != nil {
		u.log.Warn().Err(err).Str("user", o.UserID).Msg("grant notification failed")
	}
}

func (u *reconcileUC) VerifyNow(ctx context.Context, userID, txRef string) (*model.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if u.limiter != nil {
		allowed, err := u.limiter.Allow(ctx, verifyLimitKey(userID), u.cfg.VerifyLimit, u.cfg.VerifyWindow)
		if err != nil {
			u.log.Warn().Err(err).Msg("verify limiter unavailable; allowing")
		} else if !allowed {
			return nil, domain.ErrRateLimited
		}
	}

	open, err := u.obligations.ListOpenByUser(ctx, nil, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if len(open) == 0 {
		return nil, domain.ErrNotFound
	}

	if txRef != "" {
		u.pinReference(ctx, open, txRef)
	}

	// settle through the shared sweep so matching stays oldest-first across
	// every holder of the deposit address; only this user's outcome is
	// reported back
	waiting := make(map[string]bool, len(open))
	currencies := make(map[model.Currency]bool)
	for _, o := range open {
		waiting[o.ID] = true
		currencies[o.Currency] = true
	}
	for cur := range currencies {
		if _, err := u.SweepCurrency(ctx, cur); err != nil {
			u.log.Debug().Err(err).Str("currency", string(cur)).Msg("verify sweep unavailable")
		}
	}

	stillOpen, err := u.obligations.ListOpenByUser(ctx, nil, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	for _, o := range stillOpen {
		delete(waiting, o.ID)
	}
	if len(waiting) == 0 {
		// intentionally indistinguishable between transient failure and genuine
		// non-payment; the caller renders "not yet detected, retry later"
		return nil, nil
	}
	return u.subs.Effective(ctx, userID)
}

// pinReference records the payer-supplied reference on the oldest open
// obligation without one so sweeps can use a direct lookup from now on.
// When every open obligation already carries a reference the oldest one is
// re-pinned: a mistyped reference must stay correctable.
func (u *reconcileUC) pinReference(ctx context.Context, open []*model.PendingObligation, txRef string) {
	target := open[0]
	for _, o := range open {
		if o.TxRef == "" {
			target = o
			break
		}
	}
	if target.TxRef == txRef {
		return
	}
	if err := u.obligations.AttachTxRef(ctx, nil, target.ID, txRef); err != nil {
		u.log.Warn().Err(err).Str("obligation", target.ID).Msg("attach tx ref failed")
		return
	}
	target.TxRef = txRef
}

func (u *reconcileUC) currencyMutex(cur model.Currency) *sync.Mutex {
	u.serialMu.Lock()
	defer u.serialMu.Unlock()
	m, ok := u.serial[cur]
	if !ok {
		m = &sync.Mutex{}
		u.serial[cur] = m
	}
	return m
}

func sweepLockKey(cur model.Currency) string {
	return "reconcile:sweep:" + string(cur)
}

func verifyLimitKey(userID string) string {
	return "reconcile:verify:" + userID
}
