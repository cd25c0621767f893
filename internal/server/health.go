package server

import (
	"context"
	"sync"
	"time"

	"github.com/triage-ai/guardrails/internal/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service. The overall ("") status
// mirrors it.
const ServiceName = "guardrails.v1.GuardrailsClient"

const (
	DefaultCheckInterval = 30 * time.Second
	checkTimeout         = 10 * time.Second
)

// HealthReporter publishes SERVING while a bearer credential can be
// obtained and NOT_SERVING otherwise.
type HealthReporter struct {
	health   *health.Server
	tokens   auth.TokenSource
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

// NewHealthReporter creates a reporter that starts out NOT_SERVING until
// the first check succeeds.
func NewHealthReporter(tokens auth.TokenSource, interval time.Duration, logger *zap.Logger) *HealthReporter {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	h := &HealthReporter{
		health:   health.NewServer(),
		tokens:   tokens,
		interval: interval,
		logger:   logger,
		last:     healthpb.HealthCheckResponse_NOT_SERVING,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewGRPCServer returns a server with the health service and reflection
// registered.
func NewGRPCServer(h *HealthReporter) *grpc.Server {
	s := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 10 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	healthpb.RegisterHealthServer(s, h.health)

	// Enable reflection for debugging with grpcurl
	reflection.Register(s)
	return s
}

// Check asks the token source for a credential once and publishes the
// resulting status.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if _, err := h.tokens.Token(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Debug("health check failed", zap.Error(err))
	}

	h.mu.Lock()
	changed := status != h.last
	h.last = status
	h.mu.Unlock()
	if changed {
		h.logger.Info("health status changed", zap.String("status", status.String()))
	}

	h.set(status)
	return status
}

// Run checks immediately and then on every interval until ctx is done,
// at which point the service is marked NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING; later checks are ignored.
func (h *HealthReporter) Shutdown() {
	h.health.Shutdown()
}

func (h *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus(ServiceName, status)
	h.health.SetServingStatus("", status)
}
