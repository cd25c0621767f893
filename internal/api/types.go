package api

import (
	"github.com/triage-ai/guardrails/internal/engine"
)

// ErrorResp is the body of every non-2xx response.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// --- POST /v1/enforce ---

// EnforceReq is the JSON body for POST /v1/enforce. Detectors replaces the
// catalog defaults of the detectors it names.
type EnforceReq struct {
	Text         string                    `json:"text"`
	Direction    string                    `json:"direction,omitempty"`
	Detectors    map[string]map[string]any `json:"detectors,omitempty"`
	Multilingual bool                      `json:"multilingual,omitempty"`
}

// --- POST /v1/enforce/individual ---

// IndividualReq is the JSON body for POST /v1/enforce/individual. An empty
// detector list tests the default selection.
type IndividualReq struct {
	Text         string                  `json:"text"`
	Direction    string                  `json:"direction,omitempty"`
	Detectors    []engine.DetectorConfig `json:"detectors,omitempty"`
	Inputs       engine.Inputs           `json:"inputs"`
	Multilingual bool                    `json:"multilingual,omitempty"`
}

// --- POST /v1/translate ---

type TranslateReq struct {
	Text string `json:"text"`
}

// --- GET /v1/detectors ---

// DetectorListResp splits the catalog for one direction into detectors
// that run as-is and those that take parameters.
type DetectorListResp struct {
	Direction engine.Direction      `json:"direction"`
	Basic     []engine.DetectorSpec `json:"basic"`
	Advanced  []engine.DetectorSpec `json:"advanced"`
	Defaults  []string              `json:"default_selection"`
}
