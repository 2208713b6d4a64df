// Package metrics 汇总 webhook 处理链路的 Prometheus 指标。
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tvhook"

var WebhooksReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_received_total",
		Help:      "Accepted webhooks by broker and alert kind",
	},
	[]string{"broker", "kind"},
)

var WebhookDuplicates = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_duplicates_total",
		Help:      "Webhooks dropped as duplicates of a recent order id",
	},
	[]string{"broker"},
)

// WebhooksRejected counts requests refused before grouping.
// reason: parse_error, unknown_broker, unknown_owner, ip_denied, failed
var WebhooksRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_rejected_total",
		Help:      "Webhooks rejected by broker and reason",
	},
	[]string{"broker", "reason"},
)

var GroupsOpened = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "groups_opened_total",
		Help:      "Trade groups created",
	},
	[]string{"direction", "orphan"},
)

var GroupsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "groups_closed_total",
		Help:      "Trade groups closed by the final exit type",
	},
	[]string{"direction", "exit_type"},
)

var IngestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_duration_seconds",
		Help:      "Time spent handling one webhook",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	},
	[]string{"broker"},
)

var NormalizeWarnings = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "normalize_warnings_total",
		Help:      "Fields that failed to parse during normalization",
	},
	[]string{"field"},
)

func ObserveIngest(broker string, started time.Time) {
	IngestDuration.WithLabelValues(broker).Observe(time.Since(started).Seconds())
}

func GroupOpened(direction string, orphan bool) {
	GroupsOpened.WithLabelValues(direction, strconv.FormatBool(orphan)).Inc()
}

func GroupClosed(direction, exitType string) {
	GroupsClosed.WithLabelValues(direction, exitType).Inc()
}
