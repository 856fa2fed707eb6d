package prometheus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-authcore/core"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultLabels is the label schema shared by every authcore metric.
var DefaultLabels = []string{"operation", "status", "command_type", "controller_id", "error_code"}

type Option func(*Recorder)

// WithNamespace prefixes every metric name.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitizeName(namespace)
	}
}

// WithLabels replaces the label schema. Tags outside the schema are dropped
// and missing tags are recorded as empty labels.
func WithLabels(labels ...string) Option {
	return func(r *Recorder) {
		out := make([]string, 0, len(labels))
		seen := map[string]struct{}{}
		for _, label := range labels {
			label = sanitizeName(label)
			if label == "" {
				continue
			}
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			out = append(out, label)
		}
		r.labels = out
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// Recorder implements core.MetricsRecorder on client_golang vectors, which
// are registered lazily on first use.
type Recorder struct {
	registerer prometheus.Registerer
	namespace  string
	labels     []string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	errs       []error
}

func NewRecorder(registerer prometheus.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		registerer: registerer,
		labels:     append([]string(nil), DefaultLabels...),
		buckets:    prometheus.DefBuckets,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec := r.counter(name)
	if vec == nil {
		return
	}
	vec.With(r.labelValues(tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec := r.histogram(name)
	if vec == nil {
		return
	}
	vec.With(r.labelValues(tags)).Observe(value)
}

func (r *Recorder) SetGauge(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec := r.gauge(name)
	if vec == nil {
		return
	}
	vec.With(r.labelValues(tags)).Set(value)
}

// Errors returns registration failures seen so far.
func (r *Recorder) Errors() []error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *Recorder) counter(name string) *prometheus.CounterVec {
	fqName := r.metricName(name)
	if fqName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[fqName]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: fqName,
		Help: "authcore counter " + name,
	}, r.labels)
	vec, ok := register(r, vec).(*prometheus.CounterVec)
	if !ok {
		return nil
	}
	r.counters[fqName] = vec
	return vec
}

func (r *Recorder) histogram(name string) *prometheus.HistogramVec {
	fqName := r.metricName(name)
	if fqName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[fqName]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    fqName,
		Help:    "authcore histogram " + name,
		Buckets: r.buckets,
	}, r.labels)
	vec, ok := register(r, vec).(*prometheus.HistogramVec)
	if !ok {
		return nil
	}
	r.histograms[fqName] = vec
	return vec
}

func (r *Recorder) gauge(name string) *prometheus.GaugeVec {
	fqName := r.metricName(name)
	if fqName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.gauges[fqName]; ok {
		return vec
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: fqName,
		Help: "authcore gauge " + name,
	}, r.labels)
	vec, ok := register(r, vec).(*prometheus.GaugeVec)
	if !ok {
		return nil
	}
	r.gauges[fqName] = vec
	return vec
}

// register must be called with r.mu held. A collector registered by another
// recorder on the same registry is reused.
func register(r *Recorder, collector prometheus.Collector) prometheus.Collector {
	if err := r.registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector
		}
		r.errs = append(r.errs, fmt.Errorf("prometheus: register collector: %w", err))
		return nil
	}
	return collector
}

func (r *Recorder) labelValues(tags map[string]string) prometheus.Labels {
	labels := make(prometheus.Labels, len(r.labels))
	for _, label := range r.labels {
		labels[label] = strings.TrimSpace(tags[label])
	}
	return labels
}

func (r *Recorder) metricName(name string) string {
	name = sanitizeName(name)
	if name == "" {
		return ""
	}
	if r.namespace != "" {
		return r.namespace + "_" + name
	}
	return name
}

// sanitizeName maps dotted metric names onto the prometheus charset.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	for i, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_':
			b.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
