package price

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
)

var _ adapter.PriceFeed = (*CachedFeed)(nil)

// CachedFeed decorates another feed with a short TTL so obligation creation
// does not hammer the upstream ticker. A stale quote within the TTL is fine:
// matching is at-least, and quotes only set the expected amount at creation.
type CachedFeed struct {
	next adapter.PriceFeed
	ttl  time.Duration

	mu      sync.Mutex
	entries map[model.Currency]cachedQuote
}

type cachedQuote struct {
	value     decimal.Decimal
	fetchedAt time.Time
}

func NewCachedFeed(next adapter.PriceFeed, ttl time.Duration) *CachedFeed {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedFeed{next: next, ttl: ttl, entries: make(map[model.Currency]cachedQuote)}
}

func (f *CachedFeed) Price(ctx context.Context, currency model.Currency) (decimal.Decimal, error) {
	f.mu.Lock()
	if e, ok := f.entries[currency]; ok && time.Since(e.fetchedAt) < f.ttl {
		f.mu.Unlock()
		return e.value, nil
	}
	f.mu.Unlock()

	d, err := f.next.Price(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}

	f.mu.Lock()
	f.entries[currency] = cachedQuote{value: d, fetchedAt: time.Now()}
	f.mu.Unlock()
	return d, nil
}
