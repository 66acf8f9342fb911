package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsTotal tracks issued API calls per method
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vkclient_calls_total",
			Help: "Total number of API method calls",
		},
		[]string{"method"},
	)

	// ErrorsTotal tracks classified API errors per method and code
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vkclient_errors_total",
			Help: "Total number of classified API errors",
		},
		[]string{"method", "code"},
	)

	// CallLatency tracks full exchange latency per method
	CallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vkclient_call_latency_seconds",
			Help:    "API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// BackoffWaitsTotal tracks throttle waits per backoff kind
	BackoffWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vkclient_backoff_waits_total",
			Help: "Total number of waits imposed by backoff state",
		},
		[]string{"kind"},
	)

	// ValidationsTotal tracks interactive challenge resolutions by outcome
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vkclient_validations_total",
			Help: "Total number of interactive challenge resolutions",
		},
		[]string{"outcome"},
	)
)
