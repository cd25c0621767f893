package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCall("iam", "200", time.Second)
	m.TokenRefresh(true)
	m.TranslationCache(false)
	m.Detection("pii")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TokenRefresh(true)
	m.TokenRefresh(false)
	m.TokenRefresh(true)
	m.TranslationCache(true)
	m.TranslationCache(false)
	m.Detection("pii")
	m.Detection("pii")
	m.Detection("harm")

	if got := testutil.ToFloat64(m.tokenRefreshes.WithLabelValues("success")); got != 2 {
		t.Errorf("token refresh successes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.tokenRefreshes.WithLabelValues("failure")); got != 1 {
		t.Errorf("token refresh failures = %v, want 1", got)
	}

	expected := `
# HELP guardrails_detections_total Detections reported as triggered, by detector.
# TYPE guardrails_detections_total counter
guardrails_detections_total{detector="harm"} 1
guardrails_detections_total{detector="pii"} 2
# HELP guardrails_translation_cache_lookups_total Translation cache lookups by result.
# TYPE guardrails_translation_cache_lookups_total counter
guardrails_translation_cache_lookups_total{result="hit"} 1
guardrails_translation_cache_lookups_total{result="miss"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"guardrails_detections_total", "guardrails_translation_cache_lookups_total"); err != nil {
		t.Error(err)
	}
}

func TestObserveCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCall("watsonx", "200", 300*time.Millisecond)
	m.ObserveCall("watsonx", "timeout", 60*time.Second)

	if got := testutil.ToFloat64(m.remoteCalls.WithLabelValues("watsonx", "timeout")); got != 1 {
		t.Errorf("timeouts = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.remoteLatency); n != 1 {
		t.Errorf("latency series = %d, want 1", n)
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).Detection("jailbreak")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `guardrails_detections_total{detector="jailbreak"} 1`) {
		t.Errorf("body:\n%s", rec.Body.String())
	}
}
