package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "closeshop",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "closeshop",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	realtimeSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "closeshop",
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Current number of realtime subscribers.",
		},
	)

	realtimeDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "closeshop",
			Subsystem: "realtime",
			Name:      "dropped_events_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		},
	)

	pushDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "closeshop",
			Subsystem: "push",
			Name:      "dispatches_total",
			Help:      "Push dispatch outcomes.",
		},
		[]string{"provider", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		realtimeSubscribers,
		realtimeDropped,
		pushDispatches,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one served request. route should be the mux pattern,
// not the raw path, to keep label cardinality bounded.
func ObserveRequest(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func SubscriberAdded()   { realtimeSubscribers.Inc() }
func SubscriberRemoved() { realtimeSubscribers.Dec() }
func EventDropped()      { realtimeDropped.Inc() }

// Push dispatch results.
const (
	PushSent    = "sent"
	PushSkipped = "skipped"
	PushFailed  = "failed"
	PushExpired = "expired"
)

func PushDispatched(provider, result string) {
	pushDispatches.WithLabelValues(provider, result).Inc()
}
