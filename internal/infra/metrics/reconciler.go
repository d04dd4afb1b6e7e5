package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		sweepsTotal,
		settlementsTotal,
		verifyRequestsTotal,
	)
}

var (
	sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_sweeps_total",
			Help: "Reconciliation sweeps by trigger (timer/user/admin).",
		},
		[]string{"trigger"},
	)

	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_settlements_total",
			Help: "Obligations settled, labeled by currency.",
		},
		[]string{"currency"},
	)

	verifyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_verify_requests_total",
			Help: "User-triggered verification requests by outcome (granted/pending/rate_limited).",
		},
		[]string{"outcome"},
	)
)

func IncSweep(trigger string) {
	sweepsTotal.WithLabelValues(norm(trigger)).Inc()
}

func AddSettlements(currency string, n int) {
	if n > 0 {
		settlementsTotal.WithLabelValues(norm(currency)).Add(float64(n))
	}
}

func IncVerifyRequest(outcome string) {
	verifyRequestsTotal.WithLabelValues(norm(outcome)).Inc()
}
