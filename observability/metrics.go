// Package observability exposes Ghillie's own Prometheus-compatible
// metrics registry: counters and gauges for ingestion, transformation,
// and reporting activity, served over /metrics in text exposition format.
package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Counter is a monotonically increasing value.
type Counter struct {
	value int64
}

func (c *Counter) Inc()         { atomic.AddInt64(&c.value, 1) }
func (c *Counter) Add(n int64)  { atomic.AddInt64(&c.value, n) }
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.value) }

// Gauge is a value that can go up and down, stored as micros for
// float-like precision under atomic access.
type Gauge struct {
	value int64
}

func (g *Gauge) Set(v float64)  { atomic.StoreInt64(&g.value, int64(v*1e6)) }
func (g *Gauge) Value() float64 { return float64(atomic.LoadInt64(&g.value)) / 1e6 }

// Histogram tracks value distributions over configurable buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

func NewHistogram(buckets []float64) *Histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	return &Histogram{buckets: sorted, counts: make([]int64, len(sorted)+1)}
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.buckets)]++
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return strings.Join(parts, ",")
}

// Metrics is the central Prometheus-compatible metrics registry.
type Metrics struct {
	mu         sync.RWMutex
	logger     zerolog.Logger
	counters   map[string]map[string]*Counter
	gauges     map[string]map[string]*Gauge
	histograms map[string]map[string]*Histogram

	durationBuckets []float64
}

// NewMetrics creates a new metrics registry.
func NewMetrics(logger zerolog.Logger) *Metrics {
	return &Metrics{
		logger:          logger.With().Str("component", "metrics").Logger(),
		counters:        make(map[string]map[string]*Counter),
		gauges:          make(map[string]map[string]*Gauge),
		histograms:      make(map[string]map[string]*Histogram),
		durationBuckets: []float64{10, 50, 100, 500, 1000, 5000, 15000, 30000, 60000},
	}
}

func (m *Metrics) CounterInc(name string, labels map[string]string) { m.getCounter(name, labels).Inc() }

func (m *Metrics) CounterAdd(name string, labels map[string]string, n int64) {
	m.getCounter(name, labels).Add(n)
}

func (m *Metrics) getCounter(name string, labels map[string]string) *Counter {
	key := labelKey(labels)
	m.mu.RLock()
	if byName, ok := m.counters[name]; ok {
		if c, ok := byName[key]; ok {
			m.mu.RUnlock()
			return c
		}
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counters[name]; !ok {
		m.counters[name] = make(map[string]*Counter)
	}
	if _, ok := m.counters[name][key]; !ok {
		m.counters[name][key] = &Counter{}
	}
	return m.counters[name][key]
}

func (m *Metrics) GaugeSet(name string, labels map[string]string, v float64) {
	m.getGauge(name, labels).Set(v)
}

func (m *Metrics) getGauge(name string, labels map[string]string) *Gauge {
	key := labelKey(labels)
	m.mu.RLock()
	if byName, ok := m.gauges[name]; ok {
		if g, ok := byName[key]; ok {
			m.mu.RUnlock()
			return g
		}
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gauges[name]; !ok {
		m.gauges[name] = make(map[string]*Gauge)
	}
	if _, ok := m.gauges[name][key]; !ok {
		m.gauges[name][key] = &Gauge{}
	}
	return m.gauges[name][key]
}

func (m *Metrics) HistogramObserve(name string, labels map[string]string, v float64) {
	m.getHistogram(name, labels).Observe(v)
}

func (m *Metrics) getHistogram(name string, labels map[string]string) *Histogram {
	key := labelKey(labels)
	m.mu.RLock()
	if byName, ok := m.histograms[name]; ok {
		if h, ok := byName[key]; ok {
			m.mu.RUnlock()
			return h
		}
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.histograms[name]; !ok {
		m.histograms[name] = make(map[string]*Histogram)
	}
	if _, ok := m.histograms[name][key]; !ok {
		m.histograms[name][key] = NewHistogram(m.durationBuckets)
	}
	return m.histograms[name][key]
}

// TrackIngestionRun records one completed ingestion pass for a repository.
func (m *Metrics) TrackIngestionRun(repo string, eventsIngested int, durationMs float64, failed bool) {
	labels := map[string]string{"repo": repo}
	m.CounterInc("ghillie_ingestion_runs_total", labels)
	m.CounterAdd("ghillie_ingestion_events_total", labels, int64(eventsIngested))
	m.HistogramObserve("ghillie_ingestion_run_duration_ms", labels, durationMs)
	if failed {
		m.CounterInc("ghillie_ingestion_run_failures_total", labels)
	}
}

// TrackTransform records a Silver transformation batch outcome.
func (m *Metrics) TrackTransform(processed, failed int) {
	m.CounterAdd("ghillie_silver_transforms_total", nil, int64(processed))
	m.CounterAdd("ghillie_silver_transform_failures_total", nil, int64(failed))
}

// TrackReportGenerated records one Gold-layer report, tagged by the
// status-model backend that produced it.
func (m *Metrics) TrackReportGenerated(repo, backend string) {
	m.CounterInc("ghillie_reports_generated_total", map[string]string{"repo": repo, "backend": backend})
}

// TrackStalledRepository records the current count of stalled repositories
// observed by the health service.
func (m *Metrics) TrackStalledRepository(count int) {
	m.GaugeSet("ghillie_stalled_repositories", nil, float64(count))
}

// Handler serves /metrics in Prometheus text exposition format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("# Ghillie metrics - %s\n\n", time.Now().UTC().Format(time.RFC3339)))

		m.mu.RLock()
		defer m.mu.RUnlock()

		for name, byLabel := range m.counters {
			sb.WriteString(fmt.Sprintf("# TYPE %s counter\n", name))
			for lk, c := range byLabel {
				writeSample(&sb, name, lk, fmt.Sprintf("%d", c.Value()))
			}
			sb.WriteString("\n")
		}

		for name, byLabel := range m.gauges {
			sb.WriteString(fmt.Sprintf("# TYPE %s gauge\n", name))
			for lk, g := range byLabel {
				writeSample(&sb, name, lk, fmt.Sprintf("%f", g.Value()))
			}
			sb.WriteString("\n")
		}

		for name, byLabel := range m.histograms {
			sb.WriteString(fmt.Sprintf("# TYPE %s histogram\n", name))
			for lk, h := range byLabel {
				h.mu.Lock()
				cumulative := int64(0)
				for i, b := range h.buckets {
					cumulative += h.counts[i]
					writeBucket(&sb, name, lk, fmt.Sprintf("%g", b), cumulative)
				}
				cumulative += h.counts[len(h.buckets)]
				writeBucket(&sb, name, lk, "+Inf", cumulative)
				prefix := withLabels(name, lk)
				sb.WriteString(fmt.Sprintf("%s_sum %f\n", prefix, h.sum))
				sb.WriteString(fmt.Sprintf("%s_count %d\n", prefix, h.count))
				h.mu.Unlock()
			}
			sb.WriteString("\n")
		}

		_, _ = w.Write([]byte(sb.String()))
	}
}

func withLabels(name, labelSet string) string {
	if labelSet == "" {
		return name
	}
	return fmt.Sprintf("%s{%s}", name, labelSet)
}

func writeSample(sb *strings.Builder, name, labelSet, value string) {
	sb.WriteString(fmt.Sprintf("%s %s\n", withLabels(name, labelSet), value))
}

func writeBucket(sb *strings.Builder, name, labelSet, le string, cumulative int64) {
	if labelSet == "" {
		sb.WriteString(fmt.Sprintf("%s_bucket{le=%q} %d\n", name, le, cumulative))
		return
	}
	sb.WriteString(fmt.Sprintf("%s_bucket{le=%q,%s} %d\n", name, le, labelSet, cumulative))
}
