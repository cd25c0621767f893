package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/guardrails/internal/remote"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultSelection is tested when the caller selects no detectors.
var DefaultSelection = []string{"pii", "harm", "profanity", "violence", "sexual_content", "social_bias"}

const (
	originalPreviewLength = 100
	errorBodyLength       = 200
)

// CallRecord is the log entry for one per-detector call.
type CallRecord struct {
	CallID        string         `json:"call_id"`
	Detector      string         `json:"detector"`
	PolicyID      string         `json:"policy_id"`
	Endpoint      string         `json:"endpoint"`
	Payload       enforceRequest `json:"payload"`
	StatusCode    int            `json:"status_code,omitempty"`
	Response      any            `json:"response,omitempty"`
	Blocked       bool           `json:"blocked"`
	Redacted      bool           `json:"redacted"`
	ProcessedText string         `json:"processed_text,omitempty"`
	Error         string         `json:"error,omitempty"`
	DurationMs    float64        `json:"duration_ms"`
}

// IndividualResult is the outcome of testing detectors one call each.
// Records and Calls are in selection order.
type IndividualResult struct {
	RequestID          string            `json:"request_id"`
	Text               string            `json:"text"`
	Direction          Direction         `json:"direction"`
	Records            []DetectionRecord `json:"records"`
	Calls              []CallRecord      `json:"calls"`
	TotalCalls         int               `json:"total_calls"`
	DetectorsTriggered []string          `json:"detectors_triggered"`
	ErrorMessage       string            `json:"error_message,omitempty"`
}

// DefaultConfigs returns the default selection with empty params.
func DefaultConfigs() []DetectorConfig {
	out := make([]DetectorConfig, len(DefaultSelection))
	for i, id := range DefaultSelection {
		out[i] = DetectorConfig{ID: id}
	}
	return out
}

// TestIndividually issues one independent call per selected detector,
// each under the detector's own policy. A failing call is recorded on its
// own DetectionRecord and does not affect the others.
//
// Detection is inferred from the processed text alone: the detector
// triggered when the text came back changed or carries a "blocked" or
// "redacted" marker.
func (c *Client) TestIndividually(ctx context.Context, text string, dir Direction, selection []DetectorConfig) IndividualResult {
	if len(selection) == 0 {
		selection = DefaultConfigs()
	}

	start := time.Now()
	res := IndividualResult{
		RequestID:          uuid.NewString(),
		Text:               text,
		Direction:          dir,
		Records:            make([]DetectionRecord, len(selection)),
		Calls:              make([]CallRecord, len(selection)),
		TotalCalls:         len(selection),
		DetectorsTriggered: []string{},
	}

	// Resolve the credential once; per-call lookups are cache hits unless
	// it expires mid-batch.
	if _, err := c.tokens.Token(ctx); err != nil {
		msg := "Authentication failed: " + err.Error()
		res.ErrorMessage = msg
		for i, sel := range selection {
			res.Calls[i] = c.newCall(text, dir, sel)
			res.Calls[i].Error = msg
			res.Records[i] = errorRecord(sel.ID, msg)
		}
		c.logger.Warn("individual run skipped, no credential", zap.Error(err))
		c.emit("individual", res.RequestID, dir, text, res.Records, false, msg, start)
		return res
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, sel := range selection {
		g.Go(func() error {
			res.Records[i], res.Calls[i] = c.callDetector(ctx, text, dir, sel)
			return nil
		})
	}
	_ = g.Wait() // calls never return errors

	if names := Summarize(res.Records).TriggeredNames; names != nil {
		res.DetectorsTriggered = names
	}

	c.logger.Debug("individual run complete",
		zap.String("request_id", res.RequestID),
		zap.Int("total_calls", res.TotalCalls),
		zap.Strings("triggered", res.DetectorsTriggered),
		zap.Duration("duration", time.Since(start)),
	)
	c.emit("individual", res.RequestID, dir, text, res.Records, true, "", start)
	return res
}

func (c *Client) newCall(text string, dir Direction, sel DetectorConfig) CallRecord {
	params := sel.Params
	if len(params) == 0 {
		params = c.defaultsFor(dir, sel.ID)
	}
	policyID := c.cfg.Policies.PolicyFor(sel.ID)

	return CallRecord{
		CallID:   uuid.NewString(),
		Detector: sel.ID,
		PolicyID: policyID,
		Endpoint: c.Endpoint(policyID),
		Payload: enforceRequest{
			Text:                text,
			Direction:           dir,
			DetectorsProperties: map[string]map[string]any{sel.ID: params},
		},
	}
}

func (c *Client) callDetector(ctx context.Context, text string, dir Direction, sel DetectorConfig) (DetectionRecord, CallRecord) {
	call := c.newCall(text, dir, sel)
	start := time.Now()
	finish := func() { call.DurationMs = float64(time.Since(start).Microseconds()) / 1000 }

	token, err := c.tokens.Token(ctx)
	if err != nil {
		finish()
		call.Error = "Authentication failed: " + err.Error()
		return errorRecord(sel.ID, call.Error), call
	}

	resp, err := c.post(ctx, c.cfg.DetectorTimeout, call.Endpoint, token, call.Payload)
	finish()
	if err != nil {
		call.Error = failureMessage(err)
		c.logger.Warn("detector call failed",
			zap.String("detector", sel.ID),
			zap.String("policy_id", call.PolicyID),
			zap.Float64("duration_ms", call.DurationMs),
			zap.Error(err),
		)
		return errorRecord(sel.ID, call.Error), call
	}

	call.StatusCode = resp.StatusCode()
	var decoded any
	decodeErr := json.Unmarshal(resp.Body(), &decoded)
	if decodeErr == nil {
		call.Response = decoded
	} else {
		call.Response = resp.String()
	}

	if resp.StatusCode() != http.StatusOK {
		msg := resp.String()
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode())
		}
		c.logger.Warn("detector call rejected",
			zap.String("detector", sel.ID),
			zap.String("policy_id", call.PolicyID),
			zap.Int("status", resp.StatusCode()),
			zap.Float64("duration_ms", call.DurationMs),
		)
		return errorRecord(sel.ID, remote.Truncate(msg, errorBodyLength)), call
	}
	if decodeErr != nil {
		call.Error = "Failed to parse response: " + decodeErr.Error()
		return errorRecord(sel.ID, call.Error), call
	}

	data, _ := decoded.(map[string]any)
	processed := firstNonEmpty(lookupString(data, "entity", "text"), lookupString(data, "text"), text)
	call.Blocked, call.Redacted = intervention(text, processed)
	call.ProcessedText = processed

	c.logger.Debug("detector call complete",
		zap.String("detector", sel.ID),
		zap.String("policy_id", call.PolicyID),
		zap.Int("status", resp.StatusCode()),
		zap.Float64("duration_ms", call.DurationMs),
	)

	if !call.Blocked && !call.Redacted {
		return DetectionRecord{
			DetectorID: sel.ID,
			Score:      0,
			Details:    []Detail{{"triggered": false, "processed_text": processed}},
		}, call
	}

	action := "redacted"
	if call.Blocked {
		action = "blocked"
	}
	c.metrics.Detection(sel.ID)
	return DetectionRecord{
		DetectorID: sel.ID,
		Detected:   true,
		Score:      1.0,
		Details: []Detail{{
			"triggered":      true,
			"action":         action,
			"original_text":  previewText(text),
			"processed_text": processed,
		}},
	}, call
}

// intervention classifies how the service treated the text. A "blocked"
// marker wins; any other change or a "redacted" marker counts as a
// redaction.
func intervention(original, processed string) (blocked, redacted bool) {
	lower := strings.ToLower(processed)
	if strings.Contains(lower, "blocked") {
		return true, false
	}
	return false, processed != original || strings.Contains(lower, "redacted")
}

func previewText(s string) string {
	if len([]rune(s)) > originalPreviewLength {
		return remote.Truncate(s, originalPreviewLength) + "..."
	}
	return s
}

func errorRecord(id, msg string) DetectionRecord {
	return DetectionRecord{
		DetectorID: id,
		Score:      0,
		Details:    []Detail{{"error": msg}},
	}
}
