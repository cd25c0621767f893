package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/triage-ai/guardrails/internal/api"
	"github.com/triage-ai/guardrails/internal/config"
	"github.com/triage-ai/guardrails/internal/engine"
	"github.com/triage-ai/guardrails/internal/engine/detectors"
	"github.com/triage-ai/guardrails/internal/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	writeSlack      = 5 * time.Second
)

func (c *cli) serveCmd() *cobra.Command {
	var checkInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and, with GUARDRAILS_GRPC_PORT set, the gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := mustBuildLogger(c.cfg.LogLevel, "stdout")
			a, err := newApp(c.cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a, checkInterval)
		},
	}
	cmd.Flags().DurationVar(&checkInterval, "check-interval", server.DefaultCheckInterval, "How often the gRPC health service re-checks the credential")
	return cmd
}

// writeTimeout bounds the slowest request the API can serve: one token
// exchange, one translation, then either a bulk call or an individual
// batch over the whole catalog run in waves of cfg.Concurrency.
func writeTimeout(cfg *config.Config, catalogSize int) time.Duration {
	concurrency := max(cfg.Concurrency, 1)
	waves := (max(catalogSize, 1) + concurrency - 1) / concurrency
	detection := max(cfg.BulkTimeout, time.Duration(waves)*cfg.DetectorTimeout)
	return cfg.TokenTimeout + cfg.TranslationTimeout + detection + writeSlack
}

func largestCatalog(c *detectors.Catalog) int {
	return max(len(c.Specs(engine.DirectionInput)), len(c.Specs(engine.DirectionOutput)))
}

// serve runs until ctx is cancelled, then shuts both servers down.
func serve(ctx context.Context, a *app, checkInterval time.Duration) error {
	logger := a.logger
	logger.Info("starting guardrails server",
		zap.String("http_port", a.cfg.HTTPPort),
		zap.String("grpc_port", a.cfg.GRPCPort),
		zap.String("guardrails_api_url", a.cfg.GuardrailsURL),
		zap.String("policy_id", a.cfg.PolicyID),
		zap.Int("concurrency", a.cfg.Concurrency),
	)

	httpServer := &http.Server{
		Addr: ":" + a.cfg.HTTPPort,
		Handler: api.NewRouter(&api.Dependencies{
			Analyzer:   a.analyzer,
			Catalog:    a.catalog,
			Translator: a.gate,
			Tokens:     a.tokens,
			Gatherer:   a.registry,
			Logger:     logger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout(a.cfg, largestCatalog(a.catalog)),
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.cfg.GRPCPort != "" {
		health := server.NewHealthReporter(a.tokens, checkInterval, logger)
		grpcServer := server.NewGRPCServer(health)
		lis, err := net.Listen("tcp", ":"+a.cfg.GRPCPort)
		if err != nil {
			_ = httpServer.Close()
			return err
		}

		g.Go(func() error {
			health.Run(ctx)
			return nil
		})
		g.Go(func() error {
			logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			health.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	logger.Info("guardrails server stopped")
	return err
}
