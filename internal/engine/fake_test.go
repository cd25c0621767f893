package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/triage-ai/guardrails/internal/storage"
	"go.uber.org/zap"
)

// stubRegistry is a minimal two-direction catalog.
type stubRegistry struct{}

var stubSpecs = []DetectorSpec{
	{ID: "pii", Applicability: AppliesBoth},
	{ID: "topic_relevance", RequiredParams: []string{"system_prompt"},
		DefaultParams: map[string]any{"system_prompt": "You are a helpful AI assistant."}, Applicability: AppliesInput},
	{ID: "harm", Applicability: AppliesBoth},
	{ID: "profanity", Applicability: AppliesBoth},
	{ID: "violence", Applicability: AppliesBoth},
	{ID: "sexual_content", Applicability: AppliesBoth},
	{ID: "social_bias", Applicability: AppliesBoth},
	{ID: "groundedness", RequiredParams: []string{"context_type", "context"},
		DefaultParams: map[string]any{"context_type": "docs", "context": []any{}}, Applicability: AppliesOutput},
}

func (stubRegistry) Specs(d Direction) []DetectorSpec {
	var out []DetectorSpec
	for _, s := range stubSpecs {
		if s.AppliesTo(d) {
			out = append(out, s)
		}
	}
	return out
}

func (r stubRegistry) Lookup(d Direction, id string) (DetectorSpec, bool) {
	for _, s := range r.Specs(d) {
		if s.ID == id {
			return s, true
		}
	}
	return DetectorSpec{}, false
}

// staticTokens is a TokenSource returning a fixed token or error.
type staticTokens struct {
	token string
	err   error
	calls atomic.Int32
}

func (s *staticTokens) Token(context.Context) (string, error) {
	s.calls.Add(1)
	return s.token, s.err
}

// capturedRequest is one request seen by fakeGuardrails.
type capturedRequest struct {
	Path       string
	Query      string
	Auth       string
	Governance string
	Body       enforceRequest
}

// fakeGuardrails records requests and answers through respond.
type fakeGuardrails struct {
	mu       sync.Mutex
	requests []capturedRequest
	respond  func(w http.ResponseWriter, req capturedRequest)
}

func (f *fakeGuardrails) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body enforceRequest
	_ = json.Unmarshal(raw, &body)

	req := capturedRequest{
		Path:       r.URL.Path,
		Query:      r.URL.RawQuery,
		Auth:       r.Header.Get("Authorization"),
		Governance: r.Header.Get("x-governance-instance-id"),
		Body:       body,
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	f.respond(w, req)
}

func (f *fakeGuardrails) captured() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedRequest(nil), f.requests...)
}

// onlyDetector returns the single detector id of an individual request.
func onlyDetector(req capturedRequest) string {
	for id := range req.Body.DetectorsProperties {
		return id
	}
	return ""
}

func writeJSONBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// recordingWriter collects audit events.
type recordingWriter struct {
	mu     sync.Mutex
	events []*storage.EnforcementEvent
}

func (w *recordingWriter) Write(e *storage.EnforcementEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
}

func (w *recordingWriter) Close() {}

func newTestClient(t *testing.T, f *fakeGuardrails, tokens *staticTokens, mutate func(*ClientConfig)) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	cfg := ClientConfig{
		BaseURL:              srv.URL,
		InventoryID:          "inv-1",
		GovernanceInstanceID: "gov-1",
		Policies:             &PolicyResolver{Default: "default-policy"},
		Concurrency:          DefaultConcurrency,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if tokens == nil {
		tokens = &staticTokens{token: "tok"}
	}
	return NewClient(cfg, tokens, stubRegistry{}, nil, nil, zap.NewNop()), srv
}

var errDenied = errors.New("denied")

func hasErrorDetail(r DetectionRecord, substr string) bool {
	for _, d := range r.Details {
		if msg, ok := d["error"].(string); ok && strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
