package runtime

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the engine's run counters on a private registry so tests
// can build as many instances as they like without collisions.
type Metrics struct {
	registry *prometheus.Registry

	unresolvedAliases *prometheus.CounterVec
	storiesBuilt      prometheus.Counter
	noiseArticles     prometheus.Counter
	linksSaved        prometheus.Counter
	runDuration       prometheus.Histogram
}

// NewMetrics builds and registers all engine metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		unresolvedAliases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_unresolved_aliases_total",
			Help: "Entity aliases dropped because no reference candidate matched.",
		}, []string{"kind"}),
		storiesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyline_stories_built_total",
			Help: "Stories created by aggregation runs.",
		}),
		noiseArticles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyline_noise_articles_total",
			Help: "Articles labelled as cluster noise.",
		}),
		linksSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyline_story_links_saved_total",
			Help: "Cross-day story links persisted.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storyline_run_duration_seconds",
			Help:    "Wall time of aggregation runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(m.unresolvedAliases, m.storiesBuilt, m.noiseArticles, m.linksSaved, m.runDuration)
	return m
}

// AddUnresolvedAliases counts aliases dropped during resolution, by kind
// ("location" or "person").
func (m *Metrics) AddUnresolvedAliases(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unresolvedAliases.WithLabelValues(kind).Add(float64(n))
}

// AddStoriesBuilt counts stories produced by one aggregation run.
func (m *Metrics) AddStoriesBuilt(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.storiesBuilt.Add(float64(n))
}

// AddNoiseArticles counts articles that fell outside every cluster.
func (m *Metrics) AddNoiseArticles(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.noiseArticles.Add(float64(n))
}

// AddLinksSaved counts persisted story links.
func (m *Metrics) AddLinksSaved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linksSaved.Add(float64(n))
}

// ObserveRunDuration records one aggregation run's wall time in seconds.
func (m *Metrics) ObserveRunDuration(seconds float64) {
	if m == nil {
		return
	}
	m.runDuration.Observe(seconds)
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
