// Package metrics records run counters in a private Prometheus registry and
// writes them in the node-exporter textfile format.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "octosurf"

// Repository outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Recorder is safe for concurrent use. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	repos          *prometheus.CounterVec
	patternMatches *prometheus.CounterVec
	searchPages    prometheus.Counter
	searchItems    prometheus.Counter
	rateLimitWaits *prometheus.CounterVec
	repoDuration   prometheus.Histogram
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		// Labels: outcome (succeeded, failed)
		repos: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repos_total",
			Help:      "Repositories processed, by outcome",
		}, []string{"outcome"}),
		patternMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_matches_total",
			Help:      "Whole-word pattern occurrences found in successfully scanned repositories",
		}, []string{"pattern"}),
		searchPages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "pages_total",
			Help:      "Search result pages fetched",
		}),
		searchItems: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "items_total",
			Help:      "Repository descriptors returned by search",
		}),
		// Labels: reason (exhausted, low)
		rateLimitWaits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Deliberate suspensions caused by the search rate limit",
		}, []string{"reason"}),
		repoDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "repo_duration_seconds",
			Help:      "Time to acquire and scan one repository",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}
}

func (r *Recorder) RepoDone(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.repos.WithLabelValues(outcome).Inc()
	r.repoDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) Matches(counts map[string]int) {
	if r == nil {
		return
	}
	for pattern, n := range counts {
		r.patternMatches.WithLabelValues(pattern).Add(float64(n))
	}
}

func (r *Recorder) SearchPage(items int) {
	if r == nil {
		return
	}
	r.searchPages.Inc()
	r.searchItems.Add(float64(items))
}

func (r *Recorder) RateLimitWait(reason string) {
	if r == nil {
		return
	}
	r.rateLimitWaits.WithLabelValues(reason).Inc()
}

// Registry exposes the underlying registry, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteFile writes every metric to path atomically.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return errors.New("metrics: nil recorder")
	}
	if path == "" {
		return errors.New("metrics: output path required")
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
