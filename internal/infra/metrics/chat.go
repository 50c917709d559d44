package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		chatCommandsReceivedTotal,
		chatAckFailuresTotal,
		chatRateLimitTriggeredTotal,
		matrixSyncRestartsTotal,
	)
}

var (
	chatCommandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_commands_received_total",
			Help: "Counts recognised chat commands.",
		},
		[]string{"command"},
	)

	chatAckFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ack_failures_total",
			Help: "Command acknowledgements that could not be sent.",
		},
	)

	chatRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rate_limit_triggered_total",
			Help: "Total number of times senders have been rate-limited.",
		},
	)

	matrixSyncRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matrix_sync_restarts_total",
			Help: "Times the sync loop ended unexpectedly and was restarted.",
		},
	)
)

func IncChatCommand(command string) {
	chatCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncAckFailure() {
	chatAckFailuresTotal.Inc()
}

func IncRateLimitTriggered() {
	chatRateLimitTriggeredTotal.Inc()
}

func IncSyncRestart() {
	matrixSyncRestartsTotal.Inc()
}
