package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var stateOnce sync.Once

// RegisterStateGauges exposes live bot state through gauge functions that are
// evaluated at scrape time.
func RegisterStateGauges(enabled func() bool, historySize func() int, loggedIn func() bool) {
	stateOnce.Do(func() {
		prometheus.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "bot_notifications_enabled",
				Help: "1 when webhook notifications are forwarded to Matrix.",
			}, func() float64 { return boolGauge(enabled()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "bot_history_size",
				Help: "Number of webhook payloads currently kept in history.",
			}, func() float64 { return float64(historySize()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "bot_logged_in",
				Help: "1 once the Matrix session holds an access token.",
			}, func() float64 { return boolGauge(loggedIn()) }),
		)
	})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
