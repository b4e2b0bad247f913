package tenant

import "github.com/prometheus/client_golang/prometheus"

var (
	poolsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "homeops",
		Subsystem: "tenant",
		Name:      "pools_open",
		Help:      "Number of house connection pools currently held by the registry.",
	})

	provisionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homeops",
		Subsystem: "tenant",
		Name:      "provisions_total",
		Help:      "House provisioning attempts, labeled by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(poolsOpen, provisionCounter)
}
