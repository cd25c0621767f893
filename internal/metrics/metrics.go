package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for outbound traffic and caches.
// A nil *Metrics is valid and records nothing, so components can be
// constructed without a registry in tests.
type Metrics struct {
	remoteCalls    *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec
	tokenRefreshes *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	detections     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardrails",
			Name:      "remote_calls_total",
			Help:      "Outbound calls by remote service and outcome.",
		}, []string{"service", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "guardrails",
			Name:      "remote_call_duration_seconds",
			Help:      "Latency of outbound calls by remote service.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"service"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardrails",
			Name:      "token_refreshes_total",
			Help:      "Bearer credential exchanges by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardrails",
			Name:      "translation_cache_lookups_total",
			Help:      "Translation cache lookups by result.",
		}, []string{"result"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardrails",
			Name:      "detections_total",
			Help:      "Detections reported as triggered, by detector.",
		}, []string{"detector"}),
	}
	reg.MustRegister(m.remoteCalls, m.remoteLatency, m.tokenRefreshes, m.cacheLookups, m.detections)
	return m
}

// ObserveCall records one outbound call. outcome is the HTTP status code
// or "timeout"/"error" when no response arrived.
func (m *Metrics) ObserveCall(service, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(service, outcome).Inc()
	m.remoteLatency.WithLabelValues(service).Observe(d.Seconds())
}

func (m *Metrics) TokenRefresh(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.tokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TranslationCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Detection(detector string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(detector).Inc()
}

// Handler exposes the gathered metrics in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
