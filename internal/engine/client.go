package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/triage-ai/guardrails/internal/auth"
	"github.com/triage-ai/guardrails/internal/metrics"
	"github.com/triage-ai/guardrails/internal/remote"
	"github.com/triage-ai/guardrails/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultBulkTimeout     = 60 * time.Second
	DefaultDetectorTimeout = 30 * time.Second
	DefaultConcurrency     = 4

	governanceHeader = "x-governance-instance-id"
	serviceName      = "guardrails"
)

// ClientConfig holds the addressing and budgets for enforcement calls.
type ClientConfig struct {
	BaseURL              string
	InventoryID          string
	GovernanceInstanceID string
	Policies             *PolicyResolver

	BulkTimeout     time.Duration
	DetectorTimeout time.Duration
	Concurrency     int // parallel calls in individual mode
}

// Client runs texts through the remote enforcement endpoint, either as
// one bulk call per text or as one call per selected detector.
type Client struct {
	cfg      ClientConfig
	tokens   auth.TokenSource
	registry Registry
	http     *resty.Client
	writer   storage.EventWriter
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewClient creates an enforcement client. writer and m may be nil.
func NewClient(cfg ClientConfig, tokens auth.TokenSource, registry Registry, writer storage.EventWriter, m *metrics.Metrics, logger *zap.Logger) *Client {
	if cfg.BulkTimeout <= 0 {
		cfg.BulkTimeout = DefaultBulkTimeout
	}
	if cfg.DetectorTimeout <= 0 {
		cfg.DetectorTimeout = DefaultDetectorTimeout
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Policies == nil {
		cfg.Policies = &PolicyResolver{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:      cfg,
		tokens:   tokens,
		registry: registry,
		http:     remote.NewClient(serviceName, m),
		writer:   writer,
		metrics:  m,
		logger:   logger,
	}
}

// Endpoint returns the enforcement URL for policyID.
func (c *Client) Endpoint(policyID string) string {
	return fmt.Sprintf("%s/guardrails-manager/v1/enforce/%s", c.cfg.BaseURL, policyID)
}

// Enforce posts text once under the default policy with every detector
// known for dir. Entries in overrides replace the defaults of the same
// detector. Remote failures are reported in the result, never returned.
func (c *Client) Enforce(ctx context.Context, text string, dir Direction, overrides map[string]map[string]any) EnforcementResult {
	start := time.Now()
	res := EnforcementResult{
		RequestID:     uuid.NewString(),
		OriginalText:  text,
		ProcessedText: text,
		Direction:     dir,
		Detections:    []DetectionRecord{},
	}
	defer func() {
		c.emit("bulk", res.RequestID, dir, text, res.Detections, res.Success, res.ErrorMessage, start)
	}()

	payload := enforceRequest{
		Text:                text,
		Direction:           dir,
		DetectorsProperties: c.bulkProperties(dir, overrides),
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		res.ErrorMessage = "Authentication failed: " + err.Error()
		c.logger.Warn("bulk enforcement skipped, no credential", zap.Error(err))
		return res
	}

	policyID := c.cfg.Policies.Default
	resp, err := c.post(ctx, c.cfg.BulkTimeout, c.Endpoint(policyID), token, payload)
	if err != nil {
		res.ErrorMessage = failureMessage(err)
		c.logger.Warn("bulk enforcement failed",
			zap.String("policy_id", policyID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return res
	}
	if resp.StatusCode() != http.StatusOK {
		res.ErrorMessage = (&remote.StatusError{Code: resp.StatusCode(), Body: resp.String()}).Error()
		c.logger.Warn("bulk enforcement rejected",
			zap.String("policy_id", policyID),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)
		return res
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		res.ErrorMessage = "Failed to parse response: " + err.Error()
		return res
	}

	processed := firstNonEmpty(lookupString(body, "text"), lookupString(body, "entity", "text"), text)
	detections := Normalize(body, text, processed, c.order(dir))
	total, succeeded, failed := summaryCounts(body, len(detections))

	res.Success = true
	res.ProcessedText = processed
	res.Detections = detections
	res.HasViolations = anyDetected(detections)
	res.TotalDetectors = total
	res.SucceededDetectors = succeeded
	res.FailedDetectors = failed
	res.RawResponse = body

	for _, d := range detections {
		if d.Detected {
			c.metrics.Detection(d.DetectorID)
		}
	}
	c.logger.Debug("bulk enforcement complete",
		zap.String("request_id", res.RequestID),
		zap.String("policy_id", policyID),
		zap.Int("status", resp.StatusCode()),
		zap.Bool("has_violations", res.HasViolations),
		zap.Duration("duration", time.Since(start)),
	)
	return res
}

// CheckInput enforces text as a prompt.
func (c *Client) CheckInput(ctx context.Context, text string, overrides map[string]map[string]any) EnforcementResult {
	return c.Enforce(ctx, text, DirectionInput, overrides)
}

// CheckOutput enforces text as a model response.
func (c *Client) CheckOutput(ctx context.Context, text string, overrides map[string]map[string]any) EnforcementResult {
	return c.Enforce(ctx, text, DirectionOutput, overrides)
}

func (c *Client) bulkProperties(dir Direction, overrides map[string]map[string]any) map[string]map[string]any {
	props := make(map[string]map[string]any)
	for _, spec := range c.registry.Specs(dir) {
		props[spec.ID] = spec.Defaults()
	}
	for id, params := range overrides {
		p := make(map[string]any, len(params))
		for k, v := range params {
			p[k] = v
		}
		props[id] = p
	}
	return props
}

// defaultsFor returns the catalog defaults for id in either direction.
func (c *Client) defaultsFor(dir Direction, id string) map[string]any {
	if spec, ok := c.registry.Lookup(dir, id); ok {
		return spec.Defaults()
	}
	for _, other := range []Direction{DirectionInput, DirectionOutput} {
		if spec, ok := c.registry.Lookup(other, id); ok {
			return spec.Defaults()
		}
	}
	return map[string]any{}
}

func (c *Client) order(dir Direction) []string {
	specs := c.registry.Specs(dir)
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.ID
	}
	return ids
}

func (c *Client) post(ctx context.Context, timeout time.Duration, endpoint, token string, payload enforceRequest) (*resty.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader(governanceHeader, c.cfg.GovernanceInstanceID).
		SetQueryParam("inventory_id", c.cfg.InventoryID).
		SetBody(payload).
		Post(endpoint)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) emit(mode, requestID string, dir Direction, text string, records []DetectionRecord, success bool, errMsg string, start time.Time) {
	if c.writer == nil {
		return
	}

	names := make([]string, len(records))
	triggered := make([]bool, len(records))
	scores := make([]float64, len(records))
	for i, r := range records {
		names[i] = r.DetectorID
		triggered[i] = r.Detected
		scores[i] = r.Score
	}

	c.writer.Write(&storage.EnforcementEvent{
		RequestID:         requestID,
		Timestamp:         start.UTC(),
		Mode:              mode,
		Direction:         string(dir),
		PayloadPreview:    storage.TruncatePayload(text, storage.PayloadPreviewLength),
		PayloadHash:       storage.HashPayload(text),
		PayloadSize:       uint32(len(text)),
		Success:           success,
		HasViolations:     anyDetected(records),
		Reason:            Summarize(records).Reason,
		DetectorNames:     names,
		DetectorTriggered: triggered,
		DetectorScores:    scores,
		LatencyMs:         float64(time.Since(start).Microseconds()) / 1000,
		Error:             errMsg,
	})
}

// failureMessage renders a transport failure for display.
func failureMessage(err error) string {
	if remote.IsTimeout(err) {
		return "Request timed out. Please try again."
	}
	return "Request failed: " + err.Error()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
