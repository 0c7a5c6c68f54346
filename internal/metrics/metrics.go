package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_messages_total",
			Help: "Fetched messages by mailbox role and admission result",
		},
		[]string{"role", "result"}, // result: admitted, duplicate, fetch_failed, storage_failed
	)

	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_classifications_total",
			Help: "Classification attempts by outcome",
		},
		[]string{"outcome"}, // outcome: matched, fallback, unavailable, no_categories
	)

	AutoRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_auto_replies_total",
			Help: "Auto-reply decisions by outcome",
		},
		[]string{"outcome"}, // outcome: sent, below_threshold, failed
	)

	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_poll_cycles_total",
			Help: "Completed poll cycles by result",
		},
		[]string{"result"}, // result: ok, error
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailpilot_active_workers",
			Help: "Mailbox workers currently running",
		},
	)

	AgentCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailpilot_agent_call_duration_seconds",
			Help:    "Latency of classification and response-generation calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"endpoint", "status"},
	)
)

func RecordMessage(role, result string) {
	MessagesTotal.WithLabelValues(role, result).Inc()
}

func RecordClassification(outcome string) {
	ClassificationsTotal.WithLabelValues(outcome).Inc()
}

func RecordAutoReply(outcome string) {
	AutoRepliesTotal.WithLabelValues(outcome).Inc()
}

func RecordPollCycle(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PollCyclesTotal.WithLabelValues(result).Inc()
}

// RecordAgentCall records the latency of one capability call.
func RecordAgentCall(endpoint, status string, duration time.Duration) {
	AgentCallDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}
