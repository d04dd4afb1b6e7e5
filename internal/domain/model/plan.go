package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain"
)

// Plan is a purchasable access tier with a fixed USD price and duration.
type Plan string

const (
	PlanDaily    Plan = "daily"
	PlanWeekly   Plan = "weekly"
	PlanMonthly  Plan = "monthly"
	PlanYearly   Plan = "yearly"
	PlanLifetime Plan = "lifetime"
)

// LifetimeExpiry is the sentinel expiry used for lifetime plans so that
// expiry comparisons stay total-ordered instead of special-casing "never".
var LifetimeExpiry = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)

var planSpec = map[Plan]struct {
	priceUSD decimal.Decimal
	duration time.Duration
	lifetime bool
}{
	PlanDaily:    {priceUSD: decimal.NewFromInt(5), duration: 24 * time.Hour},
	PlanWeekly:   {priceUSD: decimal.NewFromInt(20), duration: 7 * 24 * time.Hour},
	PlanMonthly:  {priceUSD: decimal.NewFromInt(50), duration: 30 * 24 * time.Hour},
	PlanYearly:   {priceUSD: decimal.NewFromInt(500), duration: 365 * 24 * time.Hour},
	PlanLifetime: {priceUSD: decimal.NewFromInt(1000), lifetime: true},
}

func AllPlans() []Plan {
	return []Plan{PlanDaily, PlanWeekly, PlanMonthly, PlanYearly, PlanLifetime}
}

func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", domain.ErrInvalidArgument
	}
	return p, nil
}

func (p Plan) Valid() bool {
	_, ok := planSpec[p]
	return ok
}

func (p Plan) PriceUSD() decimal.Decimal {
	return planSpec[p].priceUSD
}

// Duration returns the plan length and whether the plan is lifetime.
// Lifetime plans have no meaningful duration.
func (p Plan) Duration() (time.Duration, bool) {
	s := planSpec[p]
	return s.duration, s.lifetime
}

// ExpiryFrom computes the expiry of an extension anchored at base.
// The result never exceeds the lifetime sentinel, which keeps expiry
// monotonic when extending an already-lifetime subscription.
func (p Plan) ExpiryFrom(base time.Time) time.Time {
	d, lifetime := p.Duration()
	if lifetime {
		return LifetimeExpiry
	}
	exp := base.Add(d)
	if exp.After(LifetimeExpiry) {
		return LifetimeExpiry
	}
	return exp
}
