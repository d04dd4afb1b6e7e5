package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionExtensionsTotal,
		expiryNotificationsTotal,
	)
}

var (
	subscriptionExtensionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_extensions_total",
			Help: "Subscription rows appended after settlement, by plan.",
		},
		[]string{"plan"},
	)

	expiryNotificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_expiry_notifications_total",
			Help: "Expiry warnings sent to users.",
		},
	)
)

func IncSubscriptionExtension(plan string) {
	subscriptionExtensionsTotal.WithLabelValues(norm(plan)).Inc()
}

func AddExpiryNotifications(n int) {
	if n > 0 {
		expiryNotificationsTotal.Add(float64(n))
	}
}
