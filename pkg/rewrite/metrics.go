package rewrite

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/odvcencio/reforge/pkg/cache"
)

// Metrics counts the work of rewrite runs on its own registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	commits  prometheus.Counter
	entries  *prometheus.CounterVec
	lookups  *prometheus.CounterVec
	hooks    *prometheus.CounterVec
	warnings *prometheus.CounterVec
	refs     *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the rewrite metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		commits: f.NewCounter(prometheus.CounterOpts{
			Name: "reforge_commits_rewritten_total",
			Help: "Commits written by the sequential pass",
		}),
		entries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reforge_entries_rewritten_total",
			Help: "Tree entries computed (cache misses), by kind",
		}, []string{"kind"}),
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reforge_cache_lookups_total",
			Help: "Rewrite cache lookups, by cache and outcome",
		}, []string{"cache", "result"}),
		hooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reforge_hook_invocations_total",
			Help: "Plugin hook invocations, by hook",
		}, []string{"hook"}),
		warnings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reforge_warnings_total",
			Help: "Consistency warnings, by kind",
		}, []string{"kind"}),
		refs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reforge_refs_total",
			Help: "Ref updates applied, by action",
		}, []string{"action"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reforge_run_duration_seconds",
			Help:    "Wall time of a rewrite run",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
}

// WriteFile writes all metrics to path in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func (m *Metrics) commit() {
	if m != nil {
		m.commits.Inc()
	}
}

func (m *Metrics) entry(k Kind) {
	if m != nil {
		m.entries.WithLabelValues(k.String()).Inc()
	}
}

func (m *Metrics) cacheStats(name string, s cache.Stats) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(name, "front_hit").Add(float64(s.FrontHits))
	m.lookups.WithLabelValues(name, "back_hit").Add(float64(s.BackHits))
	m.lookups.WithLabelValues(name, "miss").Add(float64(s.Misses))
}

func (m *Metrics) hook(name string) {
	if m != nil {
		m.hooks.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) warn(kind string) {
	if m != nil {
		m.warnings.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ref(action string) {
	if m != nil {
		m.refs.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) observeRun(seconds float64) {
	if m != nil {
		m.duration.Observe(seconds)
	}
}
