// Package metrics provides vault metrics collection.
// It wraps Prometheus collectors to provide structured telemetry for
// vault state, published events, background workers and the ops API.
package metrics

import (
	"math/big"
	"net/http"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/vault"
)

// Collector provides vault metrics collection.
type Collector struct {
	registry *prometheus.Registry

	// Vault state metrics
	totalAssets *prometheus.GaugeVec
	totalShares *prometheus.GaugeVec
	sharePrice  *prometheus.GaugeVec
	paused      *prometheus.GaugeVec
	queueDepth  *prometheus.GaugeVec
	strategies  *prometheus.GaugeVec
	allocation  *prometheus.GaugeVec

	// Event metrics
	eventsTotal *prometheus.CounterVec

	// Worker metrics
	workerRuns    *prometheus.CounterVec
	workerLatency *prometheus.HistogramVec
	workerItems   *prometheus.CounterVec

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	uptime    prometheus.Gauge
	startTime time.Time

	mu sync.RWMutex
}

// NewCollector creates a new vault metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "shield"
	}

	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	// Vault state metrics
	c.totalAssets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_assets",
			Help:      "Assets under management in base units",
		},
		[]string{"vault"},
	)

	c.totalShares = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_shares",
			Help:      "Outstanding vault shares",
		},
		[]string{"vault"},
	)

	c.sharePrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "share_price",
			Help:      "Asset value of 1e7 shares",
		},
		[]string{"vault"},
	)

	c.paused = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "paused",
			Help:      "Whether the vault is paused (0=active, 1=paused)",
		},
		[]string{"vault"},
	)

	c.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Pending queued withdrawals",
		},
		[]string{"vault"},
	)

	c.strategies = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "registered",
			Help:      "Number of registered strategies",
		},
		[]string{"vault"},
	)

	c.allocation = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "target",
			Help:      "Oracle target allocation per strategy in base units",
		},
		[]string{"vault", "strategy"},
	)

	// Event metrics
	c.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "total",
			Help:      "Total number of published vault events",
		},
		[]string{"type", "severity", "diagnostic"},
	)

	// Worker metrics
	c.workerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "runs_total",
			Help:      "Total number of background worker runs",
		},
		[]string{"worker", "result"},
	)

	c.workerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "run_duration_seconds",
			Help:      "Time taken by a worker run",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"worker"},
	)

	c.workerItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "items_total",
			Help:      "Items handled by background workers",
		},
		[]string{"worker"},
	)

	// HTTP metrics
	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of ops API requests",
		},
		[]string{"method", "route", "status"},
	)

	c.httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Ops API request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the collector was created",
		},
	)

	c.registry.MustRegister(
		c.totalAssets,
		c.totalShares,
		c.sharePrice,
		c.paused,
		c.queueDepth,
		c.strategies,
		c.allocation,
		c.eventsTotal,
		c.workerRuns,
		c.workerLatency,
		c.workerItems,
		c.httpRequests,
		c.httpLatency,
		c.uptime,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordSnapshot publishes a vault snapshot as gauges.
func (c *Collector) RecordSnapshot(s vault.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalAssets.WithLabelValues(s.Name).Set(toFloat(s.TotalAssets))
	c.totalShares.WithLabelValues(s.Name).Set(toFloat(s.TotalShares))
	c.sharePrice.WithLabelValues(s.Name).Set(toFloat(s.SharePrice))
	c.queueDepth.WithLabelValues(s.Name).Set(float64(s.QueuedRequests))
	c.strategies.WithLabelValues(s.Name).Set(float64(s.Strategies))
	paused := 0.0
	if s.Paused {
		paused = 1
	}
	c.paused.WithLabelValues(s.Name).Set(paused)

	// Removed strategies must not linger.
	c.allocation.DeletePartialMatch(prometheus.Labels{"vault": s.Name})
	for _, a := range s.Allocations {
		c.allocation.WithLabelValues(s.Name, a.Strategy.String()).Set(toFloat(a.Target))
	}
}

// ObserveEvent counts a published event. It is an events.EventHandler.
func (c *Collector) ObserveEvent(e events.Event) {
	diagnostic := "false"
	if e.Diagnostic {
		diagnostic = "true"
	}
	severity := string(e.Severity)
	if severity == "" {
		severity = string(events.SeverityInfo)
	}
	c.eventsTotal.WithLabelValues(string(e.Type), severity, diagnostic).Inc()
}

// RecordWorkerRun records a worker run, the items it handled and its outcome.
func (c *Collector) RecordWorkerRun(worker string, duration time.Duration, items int, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.workerRuns.WithLabelValues(worker, result).Inc()
	c.workerLatency.WithLabelValues(worker).Observe(duration.Seconds())
	if items > 0 {
		c.workerItems.WithLabelValues(worker).Add(float64(items))
	}
}

// RecordHTTPRequest records an ops API request.
func (c *Collector) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, status).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// UpdateUptime updates the uptime metric.
func (c *Collector) UpdateUptime() {
	c.uptime.Set(time.Since(c.startTime).Seconds())
}

func toFloat(v sdkmath.Int) float64 {
	if v.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.BigInt()).Float64()
	return f
}

// NoOpCollector is a metrics collector that discards all metrics.
type NoOpCollector struct{}

// NewNoOpCollector creates a no-op metrics collector.
func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (*NoOpCollector) RecordSnapshot(vault.Snapshot)                                    {}
func (*NoOpCollector) ObserveEvent(events.Event)                                        {}
func (*NoOpCollector) RecordWorkerRun(worker string, d time.Duration, n int, err error) {}
func (*NoOpCollector) RecordHTTPRequest(method, route, status string, d time.Duration)  {}
func (*NoOpCollector) UpdateUptime()                                                    {}

// Recorder is the interface for metrics collection.
type Recorder interface {
	RecordSnapshot(s vault.Snapshot)
	ObserveEvent(e events.Event)
	RecordWorkerRun(worker string, duration time.Duration, items int, err error)
	RecordHTTPRequest(method, route, status string, duration time.Duration)
	UpdateUptime()
}

// Verify interface compliance
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = (*NoOpCollector)(nil)
)
