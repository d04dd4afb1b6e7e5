package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		chainRPCErrorsTotal,
		chainObservationsTotal,
	)
}

var (
	chainRPCErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_rpc_errors_total",
			Help: "Chain RPC failures treated as 'no observation yet', by currency and operation.",
		},
		[]string{"currency", "op"},
	)

	chainObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_observations_total",
			Help: "Normalized observations returned by observers, by currency.",
		},
		[]string{"currency"},
	)
)

func IncChainRPCError(currency, op string) {
	chainRPCErrorsTotal.WithLabelValues(norm(currency), norm(op)).Inc()
}

func AddChainObservations(currency string, n int) {
	if n > 0 {
		chainObservationsTotal.WithLabelValues(norm(currency)).Add(float64(n))
	}
}
