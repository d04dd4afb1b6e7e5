package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors are enqueued from the init() of each metrics file and handed to
// the default registry in one shot at startup. Importing this package from a
// test therefore never panics on duplicate registration.
var (
	pending      []prometheus.Collector
	registerOnce sync.Once
)

func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister flushes every enqueued collector to Prometheus. Safe to call
// more than once; only the first call registers.
func MustRegister() {
	registerOnce.Do(func() {
		if len(pending) > 0 {
			prometheus.MustRegister(pending...)
		}
	})
}
