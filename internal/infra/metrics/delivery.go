package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(matrixDeliveriesTotal, matrixDeliveryLatencyMs)
}

var (
	matrixDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matrix_deliveries_total",
			Help: "Messages sent to the homeserver, labeled by kind (alert/text) and result.",
		},
		[]string{"kind", "result"},
	)

	matrixDeliveryLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matrix_delivery_latency_ms",
			Help:    "Send-message call latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"kind"},
	)
)

// ObserveDelivery records one send attempt. result is "success" or a failure kind.
func ObserveDelivery(kind, result string, took time.Duration) {
	matrixDeliveriesTotal.WithLabelValues(norm(kind), norm(result)).Inc()
	matrixDeliveryLatencyMs.WithLabelValues(norm(kind)).Observe(float64(took.Milliseconds()))
}
