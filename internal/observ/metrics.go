package observ

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// registry lazily creates one prometheus vector per metric name. The label
// keys seen on first use fix the vector's label set; later calls with a
// different key set are dropped and logged.
type registry struct {
	mu       sync.Mutex
	prom     *prometheus.Registry
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	hist     map[string]*prometheus.HistogramVec
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		prom:     prometheus.NewRegistry(),
		counters: map[string]*prometheus.CounterVec{},
		gauges:   map[string]*prometheus.GaugeVec{},
		hist:     map[string]*prometheus.HistogramVec{},
	}
}

func labelKeys(lbl map[string]string) []string {
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func helpFor(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func (r *registry) counter(name string, labels map[string]string) prometheus.Counter {
	r.mu.Lock()
	vec, ok := r.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: helpFor(name)}, labelKeys(labels))
		r.prom.MustRegister(vec)
		r.counters[name] = vec
	}
	r.mu.Unlock()

	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		Warn("metric_label_mismatch", map[string]any{"metric": name, "error": err.Error()})
		return nil
	}
	return c
}

func (r *registry) gauge(name string, labels map[string]string) prometheus.Gauge {
	r.mu.Lock()
	vec, ok := r.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: helpFor(name)}, labelKeys(labels))
		r.prom.MustRegister(vec)
		r.gauges[name] = vec
	}
	r.mu.Unlock()

	g, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		Warn("metric_label_mismatch", map[string]any{"metric": name, "error": err.Error()})
		return nil
	}
	return g
}

func (r *registry) histogram(name string, labels map[string]string) prometheus.Observer {
	r.mu.Lock()
	vec, ok := r.hist[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: helpFor(name)}, labelKeys(labels))
		r.prom.MustRegister(vec)
		r.hist[name] = vec
	}
	r.mu.Unlock()

	o, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		Warn("metric_label_mismatch", map[string]any{"metric": name, "error": err.Error()})
		return nil
	}
	return o
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1.0)
}

func IncCounterBy(name string, labels map[string]string, value float64) {
	if c := reg.counter(name, labels); c != nil {
		c.Add(value)
	}
}

func SetGauge(name string, value float64, labels map[string]string) {
	if g := reg.gauge(name, labels); g != nil {
		g.Set(value)
	}
}

func Observe(name string, value float64, labels map[string]string) {
	if o := reg.histogram(name, labels); o != nil {
		o.Observe(value)
	}
}

// CounterValue reads the current value of a counter; 0 if it was never set.
func CounterValue(name string, labels map[string]string) float64 {
	reg.mu.Lock()
	vec, ok := reg.counters[name]
	reg.mu.Unlock()
	if !ok {
		return 0
	}
	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GaugeValue reads the current value of a gauge; 0 if it was never set.
func GaugeValue(name string, labels map[string]string) float64 {
	reg.mu.Lock()
	vec, ok := reg.gauges[name]
	reg.mu.Unlock()
	if !ok {
		return 0
	}
	g, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(reg.prom, promhttp.HandlerOpts{})
}
