// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(webhookRequestsTotal)
}

var webhookRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_requests_total",
		Help: "Webhook calls by outcome (success/ignored/no_room/delivery_failed).",
	},
	[]string{"outcome"},
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Webhook helpers --------

func IncWebhook(outcome string) {
	webhookRequestsTotal.WithLabelValues(norm(outcome)).Inc()
}
