// Package metrics provides Prometheus metrics for the markets service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects and exposes Tyche Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Proxy metrics
	ProxyRequests *prometheus.CounterVec
	ProxyLatency  *prometheus.HistogramVec

	// Cache metrics
	CacheReads  *prometheus.CounterVec
	CacheWrites *prometheus.CounterVec

	// Loader metrics
	LoaderFetches   *prometheus.CounterVec
	StaleDiscarded  *prometheus.CounterVec
	SnapshotMarkets *prometheus.GaugeVec
	RejectedRecords *prometheus.CounterVec

	// Quote metrics
	QuoteRequests       *prometheus.CounterVec
	QuoteStaleDiscarded prometheus.Counter

	// Stream metrics
	WebsocketClients prometheus.Gauge
}

// New creates a metrics collector on its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ProxyRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tyche_proxy_requests_total",
				Help: "Proxy requests by route and response status",
			},
			[]string{"route", "status"},
		),
		ProxyLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tyche_proxy_latency_seconds",
				Help:    "Upstream latency of proxied requests",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~10s
			},
			[]string{"route"},
		),
		CacheReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tyche_cache_reads_total",
				Help: "Market cache reads by result (hit, miss, error)",
			},
			[]string{"result"},
		),
		CacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tyche_cache_writes_total",
				Help: "Market cache writes by result (ok, error)",
			},
			[]string{"result"},
		),
		LoaderFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tyche_loader_fetches_total",
				Help: "Remote market fetches by network and outcome",
			},
			[]string{"network", "outcome"},
		),
		StaleDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tyche_loader_superseded_total",
				Help: "Fetch responses discarded because a newer fetch was issued",
			},
			[]string{"network"},
		),
		SnapshotMarkets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tyche_snapshot_markets",
				Help: "Markets in the current snapshot, futures excluded",
			},
			[]string{"network"},
		),
		RejectedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tyche_snapshot_rejected_records_total",
				Help: "Vendor records dropped at the parse boundary",
			},
			[]string{"network"},
		),
		QuoteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tyche_quote_requests_total",
				Help: "Quote requests by outcome (ready, failed, error)",
			},
			[]string{"outcome"},
		),
		QuoteStaleDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tyche_quote_superseded_total",
				Help: "Quote responses discarded because the input changed",
			},
		),
		WebsocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tyche_websocket_clients",
				Help: "Connected websocket clients",
			},
		),
	}

	m.registry.MustRegister(
		m.ProxyRequests,
		m.ProxyLatency,
		m.CacheReads,
		m.CacheWrites,
		m.LoaderFetches,
		m.StaleDiscarded,
		m.SnapshotMarkets,
		m.RejectedRecords,
		m.QuoteRequests,
		m.QuoteStaleDiscarded,
		m.WebsocketClients,
	)

	return m
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordProxy records a proxied request
func (m *Metrics) RecordProxy(route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.ProxyRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.ProxyLatency.WithLabelValues(route).Observe(latency.Seconds())
}

// RecordCacheRead records a cache lookup result
func (m *Metrics) RecordCacheRead(result string) {
	if m == nil {
		return
	}
	m.CacheReads.WithLabelValues(result).Inc()
}

// RecordCacheWrite records a cache write result
func (m *Metrics) RecordCacheWrite(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.CacheWrites.WithLabelValues(result).Inc()
}

// RecordFetch records a remote market fetch outcome
func (m *Metrics) RecordFetch(networkID int64, outcome string) {
	if m == nil {
		return
	}
	m.LoaderFetches.WithLabelValues(network(networkID), outcome).Inc()
}

// RecordSuperseded records a discarded out-of-date fetch response
func (m *Metrics) RecordSuperseded(networkID int64) {
	if m == nil {
		return
	}
	m.StaleDiscarded.WithLabelValues(network(networkID)).Inc()
}

// UpdateSnapshot records the size of the latest snapshot
func (m *Metrics) UpdateSnapshot(networkID int64, markets, rejected int) {
	if m == nil {
		return
	}
	m.SnapshotMarkets.WithLabelValues(network(networkID)).Set(float64(markets))
	if rejected > 0 {
		m.RejectedRecords.WithLabelValues(network(networkID)).Add(float64(rejected))
	}
}

// RecordQuote records a settled quote
func (m *Metrics) RecordQuote(outcome string) {
	if m == nil {
		return
	}
	m.QuoteRequests.WithLabelValues(outcome).Inc()
}

// RecordQuoteSuperseded records a discarded quote response
func (m *Metrics) RecordQuoteSuperseded() {
	if m == nil {
		return
	}
	m.QuoteStaleDiscarded.Inc()
}

// SetWebsocketClients sets the connected client gauge
func (m *Metrics) SetWebsocketClients(n int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Set(float64(n))
}

func network(id int64) string {
	return strconv.FormatInt(id, 10)
}
