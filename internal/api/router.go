package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/triage-ai/guardrails/internal/auth"
	"github.com/triage-ai/guardrails/internal/engine"
	"github.com/triage-ai/guardrails/internal/engine/detectors"
	"github.com/triage-ai/guardrails/internal/metrics"
	"go.uber.org/zap"
)

// TokenReporter exposes the state of the cached credential.
type TokenReporter interface {
	Info() auth.TokenInfo
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Analyzer   *engine.Analyzer
	Catalog    *detectors.Catalog
	Translator engine.Translator // nil when no watsonx project is configured
	Tokens     TokenReporter
	Gatherer   prometheus.Gatherer // nil disables /metrics
	Logger     *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Enforcement
	mux.HandleFunc("POST /v1/enforce", deps.handleEnforce)
	mux.HandleFunc("POST /v1/enforce/individual", deps.handleIndividual)

	// Translation
	mux.HandleFunc("POST /v1/translate", deps.handleTranslate)

	// Catalog and credential state
	mux.HandleFunc("GET /v1/detectors", deps.handleListDetectors)
	mux.HandleFunc("GET /v1/token", deps.handleTokenInfo)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(deps.Gatherer))
	}

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
