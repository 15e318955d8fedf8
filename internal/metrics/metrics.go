package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe outcomes
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "failed"
)

// Operation results
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics provides observability for the configuration console.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProbesTotal     *prometheus.CounterVec
	LoadsTotal      *prometheus.CounterVec
	LoadDuration    prometheus.Histogram
	OperationsTotal *prometheus.CounterVec
	RegistryEntries prometheus.Gauge
	CacheLookups    *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rekko_console_registry_probes_total",
			Help: "Configuration probes issued while loading the registry, by type and outcome",
		}, []string{"type", "outcome"}),
		LoadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rekko_console_registry_loads_total",
			Help: "Full registry loads, by result",
		}, []string{"result"}),
		LoadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rekko_console_registry_load_duration_seconds",
			Help:    "Duration of a full registry load including every probe",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rekko_console_operations_total",
			Help: "Lifecycle operations, by operation and result",
		}, []string{"operation", "result"}),
		RegistryEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rekko_console_registry_entries",
			Help: "Number of configurations currently held by the registry",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rekko_console_cache_lookups_total",
			Help: "Response cache lookups, by result (hit, miss, error)",
		}, []string{"result"}),
		BackendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rekko_console_backend_request_duration_seconds",
			Help:    "Duration of calls to the configuration service",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "status"}),
	}
}

func (m *Metrics) ObserveProbe(configType, outcome string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(configType, outcome).Inc()
}

// ObserveLoad records a finished registry load started at start.
func (m *Metrics) ObserveLoad(start time.Time, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.LoadsTotal.WithLabelValues(result).Inc()
	m.LoadDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveOperation(operation, result string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) SetRegistryEntries(n int) {
	if m == nil {
		return
	}
	m.RegistryEntries.Set(float64(n))
}

func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveBackend(method, status string, start time.Time) {
	if m == nil {
		return
	}
	m.BackendDuration.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}
