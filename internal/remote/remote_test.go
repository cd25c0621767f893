package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/triage-ai/guardrails/internal/metrics"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	status := &StatusError{Code: 500, Body: "boom"}
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrTimeout},
		{"net timeout", timeoutErr{}, ErrTimeout},
		{"refused", errors.New("connection refused"), ErrNetwork},
		{"already parse", ParseError(errors.New("bad json")), ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
	var se *StatusError
	if got := Classify(status); !errors.As(got, &se) || se.Code != 500 {
		t.Errorf("Classify(status) = %v", got)
	}
	if status.Error() != "API Error 500: boom" {
		t.Errorf("StatusError = %q", status.Error())
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(context.DeadlineExceeded) || !IsTimeout(timeoutErr{}) || !IsTimeout(ErrTimeout) {
		t.Error("expected timeouts to be recognised")
	}
	if IsTimeout(errors.New("connection reset")) || IsTimeout(context.Canceled) {
		t.Error("non-timeouts reported as timeouts")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo wörld", 4, "héll"},
		{"日本語テキスト", 3, "日本語"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestNewClient_RecordsOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			time.Sleep(200 * time.Millisecond)
		}
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	c := NewClient("test", metrics.New(reg))

	if _, err := c.R().Get(srv.URL + "/ok"); err != nil {
		t.Fatalf("get ok: %v", err)
	}
	if _, err := c.R().Get(srv.URL + "/missing"); err != nil {
		t.Fatalf("get missing: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.R().SetContext(ctx).Get(srv.URL + "/slow"); !IsTimeout(err) {
		t.Fatalf("slow call err = %v, want timeout", err)
	}
	if _, err := c.R().Get("http://127.0.0.1:1/refused"); err == nil || IsTimeout(err) {
		t.Fatalf("refused call err = %v, want a network error", err)
	}

	expected := `
# HELP guardrails_remote_calls_total Outbound calls by remote service and outcome.
# TYPE guardrails_remote_calls_total counter
guardrails_remote_calls_total{outcome="200",service="test"} 1
guardrails_remote_calls_total{outcome="404",service="test"} 1
guardrails_remote_calls_total{outcome="error",service="test"} 1
guardrails_remote_calls_total{outcome="timeout",service="test"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "guardrails_remote_calls_total"); err != nil {
		t.Error(err)
	}
}

func TestNewClient_NilMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	resp, err := NewClient("test", nil).R().Get(srv.URL)
	if err != nil || resp.StatusCode() != http.StatusOK {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
}
