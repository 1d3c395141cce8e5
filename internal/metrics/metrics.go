// Package metrics exposes Prometheus collectors for the tea-jar client.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the client's metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	sessionState      prometheus.Gauge
	liveSubscriptions prometheus.Gauge
	connects          *prometheus.CounterVec
	memosAppended     *prometheus.CounterVec
	memosDuplicate    *prometheus.CounterVec
	transactions      *prometheus.CounterVec
	txLatency         *prometheus.HistogramVec
	remoteErrors      *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
}

// NewCollector creates a collector under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "teajar"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.sessionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "state",
		Help:      "Controller state (0=disconnected, 1=connecting, 2=ready)",
	})
	c.liveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "live_subscriptions",
		Help:      "Number of open NewMemo subscriptions",
	})
	c.connects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "connects_total",
		Help:      "Connection attempts by result",
	}, []string{"result"})
	c.memosAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "memos",
		Name:      "appended_total",
		Help:      "Memos accepted into the store by source",
	}, []string{"source"})
	c.memosDuplicate = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "memos",
		Name:      "duplicates_total",
		Help:      "Memos dropped as duplicates by source",
	}, []string{"source"})
	c.transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tx",
		Name:      "total",
		Help:      "User transactions by action and result",
	}, []string{"action", "result"})
	c.txLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tx",
		Name:      "confirmation_seconds",
		Help:      "Time from send to confirmation",
		Buckets:   []float64{1, 2, 5, 10, 15, 30, 60, 120, 300},
	}, []string{"action"})
	c.remoteErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "errors_total",
		Help:      "Failed remote calls by operation",
	}, []string{"op"})
	c.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP API requests by route and status",
	}, []string{"route", "status"})

	c.registry.MustRegister(
		c.sessionState,
		c.liveSubscriptions,
		c.connects,
		c.memosAppended,
		c.memosDuplicate,
		c.transactions,
		c.txLatency,
		c.remoteErrors,
		c.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) SetSessionState(state int) {
	if c == nil {
		return
	}
	c.sessionState.Set(float64(state))
}

func (c *Collector) AddLiveSubscriptions(delta int) {
	if c == nil {
		return
	}
	c.liveSubscriptions.Add(float64(delta))
}

func (c *Collector) RecordConnect(result string) {
	if c == nil {
		return
	}
	c.connects.WithLabelValues(result).Inc()
}

func (c *Collector) RecordMemos(source string, added, duplicates int) {
	if c == nil {
		return
	}
	if added > 0 {
		c.memosAppended.WithLabelValues(source).Add(float64(added))
	}
	if duplicates > 0 {
		c.memosDuplicate.WithLabelValues(source).Add(float64(duplicates))
	}
}

// RecordTransaction counts a user transaction outcome. latency is only
// observed for confirmed transactions.
func (c *Collector) RecordTransaction(action, result string, latency time.Duration) {
	if c == nil {
		return
	}
	c.transactions.WithLabelValues(action, result).Inc()
	if result == "confirmed" {
		c.txLatency.WithLabelValues(action).Observe(latency.Seconds())
	}
}

func (c *Collector) RecordRemoteError(op string) {
	if c == nil {
		return
	}
	c.remoteErrors.WithLabelValues(op).Inc()
}

func (c *Collector) RecordHTTPRequest(route string, status int) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, http.StatusText(status)).Inc()
}
