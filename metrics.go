package relaymq

import (
	"bytes"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// DefaultHistogramBuckets are the bucket boundaries used when a
// histogram is created without explicit buckets, per spec.md §4.9.
var DefaultHistogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type metricKind int

const (
	kindCounter metricKind = iota
	kindGauge
	kindHistogram
)

// MetricsCollector is an in-process counter/gauge/histogram store that
// exposes readings in the Prometheus exposition format, per spec.md
// §4.9. It is a thin wrapper over prometheus/client_golang, grounded on
// the teacher's prometheus.Operator: metrics are registered by name on
// first write and redefining an existing name under a different kind
// returns an error instead of silently corrupting the series.
type MetricsCollector struct {
	mu         sync.Mutex
	reg        *prometheus.Registry
	kinds      map[string]metricKind
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewMetricsCollector returns a ready-to-use, empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		reg:        prometheus.NewRegistry(),
		kinds:      make(map[string]metricKind),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

var (
	globalMetrics     *MetricsCollector
	globalMetricsOnce sync.Once
)

// GlobalMetrics returns the process-wide MetricsCollector instance.
// WithMetrics(nil) selects it as a client's collector; the Publisher,
// Subscriber and RpcServer accept a collector in their config but do not
// record any metrics into it.
func GlobalMetrics() *MetricsCollector {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (m *MetricsCollector) checkKind(name string, want metricKind) error {
	if existing, ok := m.kinds[name]; ok && existing != want {
		return NewError(CodeConfigurationErr, "metric "+name+" already registered under a different type")
	}
	m.kinds[name] = want
	return nil
}

// IncCounter increments (or creates, on first use) a counter metric by
// delta, which defaults to 1.
func (m *MetricsCollector) IncCounter(name, help string, labels map[string]string, delta ...float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkKind(name, kindCounter); err != nil {
		return err
	}
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labelNames(labels))
		if err := m.reg.Register(vec); err != nil {
			return WrapError(CodeConfigurationErr, err)
		}
		m.counters[name] = vec
	}
	d := 1.0
	if len(delta) > 0 {
		d = delta[0]
	}
	vec.With(labels).Add(d)
	return nil
}

// SetGauge sets (or creates, on first use) a gauge metric to value.
func (m *MetricsCollector) SetGauge(name, help string, labels map[string]string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkKind(name, kindGauge); err != nil {
		return err
	}
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames(labels))
		if err := m.reg.Register(vec); err != nil {
			return WrapError(CodeConfigurationErr, err)
		}
		m.gauges[name] = vec
	}
	vec.With(labels).Set(value)
	return nil
}

// ObserveHistogram records an observation into a histogram metric,
// creating it (with DefaultHistogramBuckets unless buckets is given) on
// first use.
func (m *MetricsCollector) ObserveHistogram(name, help string, labels map[string]string, value float64, buckets ...float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkKind(name, kindHistogram); err != nil {
		return err
	}
	vec, ok := m.histograms[name]
	if !ok {
		b := buckets
		if len(b) == 0 {
			b = DefaultHistogramBuckets
		}
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: b}, labelNames(labels))
		if err := m.reg.Register(vec); err != nil {
			return WrapError(CodeConfigurationErr, err)
		}
		m.histograms[name] = vec
	}
	vec.With(labels).Observe(value)
	return nil
}

// Reset removes every registered metric from the collector.
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg = prometheus.NewRegistry()
	m.kinds = make(map[string]metricKind)
	m.counters = make(map[string]*prometheus.CounterVec)
	m.gauges = make(map[string]*prometheus.GaugeVec)
	m.histograms = make(map[string]*prometheus.HistogramVec)
}

// Expose renders every registered metric in the Prometheus text
// exposition format. Label pairs within each sample line are sorted
// lexicographically by the underlying expfmt encoder.
func (m *MetricsCollector) Expose() (string, error) {
	m.mu.Lock()
	reg := m.reg
	m.mu.Unlock()

	families, err := reg.Gather()
	if err != nil {
		return "", WrapError(CodeConfigurationErr, err)
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, fam := range families {
		if err := enc.Encode(fam); err != nil {
			return "", WrapError(CodeConfigurationErr, err)
		}
	}
	return buf.String(), nil
}

// Registry exposes the underlying prometheus.Registry so an HTTP
// handler (promhttp.HandlerFor) can be mounted by the caller, e.g. the
// out-of-core-scope health/metrics surface named in spec.md §1.
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.reg
}
