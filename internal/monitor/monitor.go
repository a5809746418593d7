package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pool metrics
var (
	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "steel_lb",
		Subsystem: "pool",
		Name:      "size",
		Help:      "Current number of nodes in the pool",
	})

	ScaleEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "steel_lb",
		Subsystem: "pool",
		Name:      "scale_events_total",
		Help:      "Total number of scale_up/scale_down/replace events",
	}, []string{"kind"})

	NodeStartErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "steel_lb",
		Subsystem: "pool",
		Name:      "node_start_errors_total",
		Help:      "Total number of failed Adapter.Start calls",
	})
)

// Health loop metrics
var (
	ScheduledNodeUsedPct = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "steel_lb",
		Subsystem: "health",
		Name:      "scheduled_node_used_pct",
		Help:      "Memory usage percentage of the currently scheduled node",
	})

	FailedNodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "steel_lb",
		Subsystem: "health",
		Name:      "failed_nodes_total",
		Help:      "Total number of nodes observed failed during a health pass",
	})

	HealthPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "steel_lb",
		Subsystem: "health",
		Name:      "pass_duration_seconds",
		Help:      "Duration of a single health/autoscale pass",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
)

// Forwarder metrics
var (
	ForwardRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "steel_lb",
		Subsystem: "forward",
		Name:      "requests_total",
		Help:      "Total number of forwarded requests by outcome",
	}, []string{"outcome"})

	ForwardLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "steel_lb",
		Subsystem: "forward",
		Name:      "latency_seconds",
		Help:      "Latency of a forwarded request, including retries",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)

// Audit metrics
var (
	AuditDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "steel_lb",
		Subsystem: "audit",
		Name:      "degraded_total",
		Help:      "Total number of audit events dropped after queue or store failure",
	})
)
