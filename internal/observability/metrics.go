package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"

	InboundAccepted  = "accepted"
	InboundBlocked   = "blocked"
	InboundMalformed = "malformed"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "globalbehavior",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "globalbehavior",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	propagations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "globalbehavior",
			Subsystem: "engine",
			Name:      "propagations_total",
			Help:      "Propagation calls by kind (origin, up, down, sentinel).",
		},
		[]string{"context", "kind"},
	)
	localFires = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "globalbehavior",
			Subsystem: "engine",
			Name:      "local_fires_total",
			Help:      "Behaviors fired on local documents.",
		},
		[]string{"context"},
	)
	relays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "globalbehavior",
			Subsystem: "transport",
			Name:      "relays_total",
			Help:      "Messages relayed to other contexts by direction.",
		},
		[]string{"context", "direction"},
	)
	inbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "globalbehavior",
			Subsystem: "transport",
			Name:      "inbound_total",
			Help:      "Inbound messages by result.",
		},
		[]string{"context", "result"},
	)
	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "globalbehavior",
			Subsystem: "ticker",
			Name:      "fired_total",
			Help:      "Ticker ticks that fired a behavior.",
		},
		[]string{"context", "behavior"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, propagations, localFires, relays, inbound, ticks)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPropagation(context, kind string) {
	RegisterMetrics()
	propagations.WithLabelValues(context, kind).Inc()
}

func RecordLocalFires(context string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	localFires.WithLabelValues(context).Add(float64(n))
}

func RecordRelay(context, direction string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	relays.WithLabelValues(context, direction).Add(float64(n))
}

func RecordInbound(context, result string) {
	RegisterMetrics()
	inbound.WithLabelValues(context, result).Inc()
}

func RecordTick(context, behavior string) {
	RegisterMetrics()
	ticks.WithLabelValues(context, behavior).Inc()
}
