// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memObligationRepo mirrors the Postgres repo's semantics in memory,
// including the conditional settle and the matched-txref uniqueness.
type memObligationRepo struct {
	mu      sync.Mutex
	store   map[string]*model.PendingObligation
	matched map[string]bool // consumed tx refs

	// beforeSettle lets tests interleave a concurrent settle attempt.
	beforeSettle func(id string)
}

func newMemObligationRepo() *memObligationRepo {
	return &memObligationRepo{
		store:   make(map[string]*model.PendingObligation),
		matched: make(map[string]bool),
	}
}

func (m *memObligationRepo) Save(ctx context.Context, _ repository.Tx, o *model.PendingObligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.store[o.ID] = &cp
	return nil
}

func (m *memObligationRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.PendingObligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memObligationRepo) ListOpen(ctx context.Context, _ repository.Tx, currency *model.Currency, limit int) ([]*model.PendingObligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PendingObligation
	for _, o := range m.store {
		if o.SettledAt != nil {
			continue
		}
		if currency != nil && o.Currency != *currency {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memObligationRepo) ListOpenByUser(ctx context.Context, _ repository.Tx, userID string) ([]*model.PendingObligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PendingObligation
	for _, o := range m.store {
		if o.SettledAt == nil && o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memObligationRepo) AttachTxRef(ctx context.Context, _ repository.Tx, id, txRef string) error {
	if txRef == "" {
		return domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok || o.SettledAt != nil {
		return domain.ErrAlreadySettled
	}
	o.TxRef = txRef
	return nil
}

func (m *memObligationRepo) SettleIfOpen(ctx context.Context, _ repository.Tx, id, txRef string, settledAt time.Time) (bool, error) {
	if hook := m.beforeSettle; hook != nil {
		m.beforeSettle = nil
		hook(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.matched[txRef] {
		return false, domain.ErrTxRefConsumed
	}
	o, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.SettledAt != nil {
		return false, nil
	}
	t := settledAt
	o.SettledAt = &t
	ref := txRef
	o.MatchedTxRef = &ref
	m.matched[txRef] = true
	return true, nil
}

func (m *memObligationRepo) CountOpen(ctx context.Context, _ repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.store {
		if o.SettledAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *memObligationRepo) SumSettledAmount(ctx context.Context, _ repository.Tx, currency model.Currency, since time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, o := range m.store {
		if o.SettledAt == nil || o.Currency != currency || o.SettledAt.Before(since) {
			continue
		}
		sum = sum.Add(o.ExpectedAmount)
	}
	return sum, nil
}

// memSubscriptionRepo stores append-only rows keyed by user.
type memSubscriptionRepo struct {
	mu    sync.Mutex
	store map[string][]*model.Subscription
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{store: make(map[string][]*model.Subscription)}
}

func (m *memSubscriptionRepo) Append(ctx context.Context, _ repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.UserID] = append(m.store[s.UserID], &cp)
	return nil
}

func (m *memSubscriptionRepo) ListByUser(ctx context.Context, _ repository.Tx, userID string) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.store[userID]
	out := make([]*model.Subscription, 0, len(rows))
	for _, s := range rows {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memSubscriptionRepo) FindEffective(ctx context.Context, _ repository.Tx, userID string, now time.Time) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best := model.EffectiveSubscription(m.store[userID], now)
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memSubscriptionRepo) ListExpiring(ctx context.Context, _ repository.Tx, within time.Duration) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(within)
	var out []*model.Subscription
	for _, rows := range m.store {
		best := model.EffectiveSubscription(rows, now)
		if best == nil {
			continue
		}
		if !best.ExpiresAt.After(cutoff) {
			cp := *best
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubscriptionRepo) CountActive(ctx context.Context, _ repository.Tx, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rows := range m.store {
		if model.EffectiveSubscription(rows, now) != nil {
			n++
		}
	}
	return n, nil
}

// memTxManager runs the callback without a real transaction. Mock repos are
// individually consistent, which is what the use case tests exercise.
type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// fakeObserver serves canned observations.
type fakeObserver struct {
	currency model.Currency
	byRef    map[string]*model.ChainObservation
	scans    map[string][]model.ChainObservation
	scanErr  error
	lookErr  error
}

func newFakeObserver(cur model.Currency) *fakeObserver {
	return &fakeObserver{
		currency: cur,
		byRef:    make(map[string]*model.ChainObservation),
		scans:    make(map[string][]model.ChainObservation),
	}
}

func (f *fakeObserver) Currency() model.Currency { return f.currency }

func (f *fakeObserver) ScanRecent(ctx context.Context, recipient string, _ time.Duration) ([]model.ChainObservation, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.scans[recipient], nil
}

func (f *fakeObserver) Lookup(ctx context.Context, txRef string) (*model.ChainObservation, error) {
	if f.lookErr != nil {
		return nil, f.lookErr
	}
	ob, ok := f.byRef[txRef]
	if !ok || ob == nil {
		return nil, nil
	}
	cp := *ob
	return &cp, nil
}

func (f *fakeObserver) addScan(ob model.ChainObservation) {
	f.scans[ob.Recipient] = append(f.scans[ob.Recipient], ob)
	cp := ob
	f.byRef[ob.TxRef] = &cp
}

// fakePriceFeed returns a fixed quote per currency.
type fakePriceFeed struct {
	quotes map[model.Currency]decimal.Decimal
	err    error
}

func (f *fakePriceFeed) Price(ctx context.Context, cur model.Currency) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	q, ok := f.quotes[cur]
	if !ok {
		return decimal.Zero, domain.ErrCurrencyNotConfigured
	}
	return q, nil
}

// fakeNotifier records deliveries.
type fakeNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
	err      error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{messages: make(map[string][]string)}
}

func (f *fakeNotifier) NotifyUser(ctx context.Context, userID, message string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[userID] = append(f.messages[userID], message)
	return nil
}

func (f *fakeNotifier) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[userID])
}

// fakeLocker grants or denies the sweep lock.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	deny bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]bool)} }

func (f *fakeLocker) TryLock(ctx context.Context, key string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny || f.held[key] {
		return "", domain.ErrLockHeld
	}
	f.held[key] = true
	return "tok", nil
}

func (f *fakeLocker) Unlock(ctx context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	return nil
}

// fakeLimiter allows the first n calls per key.
type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeLimiter() *fakeLimiter { return &fakeLimiter{counts: make(map[string]int)} }

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key] <= limit, nil
}
