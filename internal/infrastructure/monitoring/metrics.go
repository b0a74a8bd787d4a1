package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Connection change kinds.
const (
	KindConnect    = "connect"
	KindDisconnect = "disconnect"
	KindSwitch     = "switch"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing, so
// components can be built without a collector in tests.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Locator metrics
	BootstrapTotal    *prometheus.CounterVec
	DeathsTotal       *prometheus.CounterVec
	RecoveriesTotal   prometheus.Counter
	ConnectionChanges *prometheus.CounterVec
	PushRejected      *prometheus.CounterVec
	LocatorInstances  prometheus.Gauge

	// Transport metrics
	BinderCalls    *prometheus.CounterVec
	BinderDuration *prometheus.HistogramVec
	BinderDeaths   prometheus.Counter

	// Broker metrics
	BrokerPushes *prometheus.CounterVec

	// Snapshot for the JSON status API
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds running totals for the JSON status API.
type Snapshot struct {
	Bootstraps        int64 `json:"bootstraps"`
	BootstrapFailures int64 `json:"bootstrap_failures"`
	Deaths            int64 `json:"deaths"`
	Recoveries        int64 `json:"recoveries"`
	ConnectionChanges int64 `json:"connection_changes"`
	RejectedPushes    int64 `json:"rejected_pushes"`
	Locators          int64 `json:"locators"`
}

// NewMetrics creates a metrics collector registered with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_http_requests_total",
				Help: "Total number of admin HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admin_http_request_duration_seconds",
				Help:    "Admin HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		// Locator metrics
		BootstrapTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_bootstrap_total",
				Help: "Remote fetches of a proxy layer by outcome",
			},
			[]string{"layer", "outcome"},
		),
		DeathsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_deaths_total",
				Help: "Death notifications that invalidated a cached layer",
			},
			[]string{"layer"},
		),
		RecoveriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "locator_recoveries_total",
				Help: "Service recovered pushes handled",
			},
		),
		ConnectionChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_connection_changes_total",
				Help: "Connection change notifications delivered to listeners",
			},
			[]string{"kind"},
		),
		PushRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_push_rejected_total",
				Help: "Inbound pushes rejected before any state change",
			},
			[]string{"code"},
		),
		LocatorInstances: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "locator_instances",
				Help: "Number of live locator instances",
			},
		),

		// Transport metrics
		BinderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binder_calls_total",
				Help: "Inbound transactions by method and status code",
			},
			[]string{"method", "code"},
		),
		BinderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "binder_call_duration_seconds",
				Help:    "Inbound transaction duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method"},
		),
		BinderDeaths: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "binder_connection_deaths_total",
				Help: "Peer connections declared dead",
			},
		),

		// Broker metrics
		BrokerPushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_push_total",
				Help: "Pushes sent to recover listeners by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
}

// RecordHTTPRequest records an admin HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBootstrap records one remote fetch of a layer
func (m *Metrics) RecordBootstrap(layer, outcome string) {
	if m == nil {
		return
	}
	m.BootstrapTotal.WithLabelValues(layer, outcome).Inc()

	m.mu.Lock()
	if outcome == OutcomeOK {
		m.snapshot.Bootstraps++
	} else {
		m.snapshot.BootstrapFailures++
	}
	m.mu.Unlock()
}

// RecordDeath records a death that invalidated a cached layer
func (m *Metrics) RecordDeath(layer string) {
	if m == nil {
		return
	}
	m.DeathsTotal.WithLabelValues(layer).Inc()
	m.mu.Lock()
	m.snapshot.Deaths++
	m.mu.Unlock()
}

// IncRecoveries increments the recovered counter
func (m *Metrics) IncRecoveries() {
	if m == nil {
		return
	}
	m.RecoveriesTotal.Inc()
	m.mu.Lock()
	m.snapshot.Recoveries++
	m.mu.Unlock()
}

// RecordConnectionChange records a notification delivered to a listener
func (m *Metrics) RecordConnectionChange(kind string) {
	if m == nil {
		return
	}
	m.ConnectionChanges.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.ConnectionChanges++
	m.mu.Unlock()
}

// RecordPushRejected records a malformed or unknown push
func (m *Metrics) RecordPushRejected(code string) {
	if m == nil {
		return
	}
	m.PushRejected.WithLabelValues(code).Inc()
	m.mu.Lock()
	m.snapshot.RejectedPushes++
	m.mu.Unlock()
}

// IncLocators increments the live locator gauge
func (m *Metrics) IncLocators() {
	if m == nil {
		return
	}
	m.LocatorInstances.Inc()
	m.mu.Lock()
	m.snapshot.Locators++
	m.mu.Unlock()
}

// RecordBinderCall records an inbound transaction
func (m *Metrics) RecordBinderCall(method, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BinderCalls.WithLabelValues(method, code).Inc()
	m.BinderDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncBinderDeaths increments the dead connection counter
func (m *Metrics) IncBinderDeaths() {
	if m == nil {
		return
	}
	m.BinderDeaths.Inc()
}

// RecordBrokerPush records one push to a recover listener
func (m *Metrics) RecordBrokerPush(kind, outcome string) {
	if m == nil {
		return
	}
	m.BrokerPushes.WithLabelValues(kind, outcome).Inc()
}

// GetSnapshot returns the running totals
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
