package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/triage-ai/guardrails/internal/auth"
	"github.com/triage-ai/guardrails/internal/config"
	"github.com/triage-ai/guardrails/internal/engine"
	"github.com/triage-ai/guardrails/internal/engine/detectors"
	"github.com/triage-ai/guardrails/internal/metrics"
	"github.com/triage-ai/guardrails/internal/storage"
	"github.com/triage-ai/guardrails/internal/translate"
	"go.uber.org/zap"
)

// app is the fully wired client stack shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	tokens   *auth.KeySource
	catalog  *detectors.Catalog
	client   *engine.Client
	gate     *translate.Gate
	analyzer *engine.Analyzer
	writer   storage.EventWriter
}

// newApp wires every component. It fails only on configuration errors;
// remote services are not contacted.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, fmt.Errorf("%w: set IBM_API_KEY or api_key in the config file", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	tokens := auth.NewTokenCache(cfg.TokenCache(), m, logger).ForKey(cfg.APIKey)

	// Catalog wired up here to avoid an import cycle
	catalog := detectors.NewCatalog()
	writer := storage.NewAsyncWriter(storage.NewLogWriter(logger), logger)
	client := engine.NewClient(cfg.Client(), tokens, catalog, writer, m, logger)

	gate, err := translate.NewGate(cfg.Translation(), tokens, m, logger)
	if err != nil {
		writer.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		tokens:   tokens,
		catalog:  catalog,
		client:   client,
		gate:     gate,
		analyzer: engine.NewAnalyzer(client, gate, logger),
		writer:   writer,
	}, nil
}

// Close drains pending audit events and flushes the logger.
func (a *app) Close() {
	a.writer.Close()
	_ = a.logger.Sync()
}
