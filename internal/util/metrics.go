package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_ticks_total",
		Help: "Total number of monitor ticks executed",
	})

	SchedulerTicksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_ticks_skipped_total",
		Help: "Total number of monitor ticks skipped",
	}, []string{"reason"})

	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_tick_duration_seconds",
		Help:    "Duration of a full monitor tick",
		Buckets: prometheus.DefBuckets,
	})

	ProposalsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proposals_expired_total",
		Help: "Total number of proposals transitioned to expirada",
	})

	ProposalsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proposals_created_total",
		Help: "Total number of proposals created",
	})

	RenewalsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proposal_renewals_requested_total",
		Help: "Total number of proposal renewal requests",
	})

	AlertsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_created_total",
		Help: "Total number of alerts created",
	}, []string{"tipo"})

	AlertsDuplicateSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_duplicate_suppressed_total",
		Help: "Total number of alert drafts dropped by the dedup guard",
	})

	BatchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_item_failures_total",
		Help: "Total number of per-item failures inside batch operations",
	}, []string{"stage"})

	AlertsUnread = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alerts_unread",
		Help: "Number of active unread alerts at the last refresh",
	})

	StoreRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "record_store_request_duration_seconds",
		Help:    "Latency of record store requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "collection", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
