package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventWriter is the interface for writing enforcement events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *EnforcementEvent)
	Close()
}

// EnforcementEvent records the outcome of one guardrail evaluation.
type EnforcementEvent struct {
	RequestID         string
	Timestamp         time.Time
	Mode              string // "bulk" or "individual"
	Direction         string
	PayloadPreview    string // First 500 chars
	PayloadHash       string // SHA256 of full payload
	PayloadSize       uint32
	Success           bool
	HasViolations     bool
	Reason            string
	DetectorNames     []string
	DetectorTriggered []bool
	DetectorScores    []float64
	LatencyMs         float64
	Error             string
}

// PayloadPreviewLength is the max chars stored in payload_preview.
const PayloadPreviewLength = 500

// TruncatePayload returns the first N characters (runes) of a payload for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncatePayload(payload string, maxLen int) string {
	runes := []rune(payload)
	if len(runes) <= maxLen {
		return payload
	}
	return string(runes[:maxLen])
}

// HashPayload returns the hex SHA256 of payload.
func HashPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
