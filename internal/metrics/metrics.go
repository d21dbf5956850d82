// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/earnhub/backend/internal/models"
)

var LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "earnhub",
	Subsystem: "ledger",
	Name:      "entries_total",
	Help:      "Ledger rows written, by type and direction.",
}, []string{"type", "direction", "status"})

var LedgerVolume = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "earnhub",
	Subsystem: "ledger",
	Name:      "volume_total",
	Help:      "Sum of ledger amounts written, by type and balance.",
}, []string{"type", "balance"})

var LedgerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "earnhub",
	Subsystem: "ledger",
	Name:      "rejections_total",
	Help:      "Ledger operations refused, by reason.",
}, []string{"reason"})

var SettlementConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "earnhub",
	Subsystem: "settlement",
	Name:      "conflicts_total",
	Help:      "Settlement attempts that lost a status race or repeated a finished step.",
}, []string{"operation"})

var CommissionsPaid = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "earnhub",
	Subsystem: "referral",
	Name:      "commissions_paid_total",
	Help:      "Referral commissions credited.",
})

var NotificationsPushed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "earnhub",
	Subsystem: "realtime",
	Name:      "pushes_total",
	Help:      "Real-time events written to live connections, by result.",
}, []string{"result"})

var OnlineConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "earnhub",
	Subsystem: "realtime",
	Name:      "connections",
	Help:      "Open websocket connections.",
})

// RecordEntry counts a written ledger row.
func RecordEntry(t *models.Transaction) {
	LedgerEntries.WithLabelValues(string(t.Type), string(t.Direction), string(t.Status)).Inc()
	LedgerVolume.WithLabelValues(string(t.Type), string(t.Balance)).Add(t.Amount.InexactFloat64())
}

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "earnhub",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests served, by method, route pattern and status.",
}, []string{"method", "route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "earnhub",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency, by method and route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})
