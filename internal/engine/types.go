package engine

import (
	"fmt"
	"strings"
)

// Direction says whether text is checked before or after generation.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// ParseDirection accepts "input" or "output" (case-insensitive). An empty
// string means input.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "input":
		return DirectionInput, nil
	case "output":
		return DirectionOutput, nil
	default:
		return "", fmt.Errorf("invalid direction %q: must be input or output", s)
	}
}

// Detail is one structured entry attached to a detection.
type Detail map[string]any

// DetectionRecord is the normalized outcome of one detector.
type DetectionRecord struct {
	DetectorID string   `json:"detector_id"`
	Detected   bool     `json:"detected"`
	Score      float64  `json:"score"`
	Details    []Detail `json:"details"`
}

// failed reports whether the record carries an error entry.
func (r DetectionRecord) failed() bool {
	for _, d := range r.Details {
		if _, ok := d["error"]; ok {
			return true
		}
	}
	return false
}

// EnforcementResult is the outcome of one bulk enforcement call.
type EnforcementResult struct {
	RequestID          string            `json:"request_id"`
	Success            bool              `json:"success"`
	OriginalText       string            `json:"original_text"`
	ProcessedText      string            `json:"processed_text"`
	Direction          Direction         `json:"direction"`
	Detections         []DetectionRecord `json:"detections"`
	HasViolations      bool              `json:"has_violations"`
	TotalDetectors     int               `json:"total_detectors"`
	SucceededDetectors int               `json:"succeeded_detectors"`
	FailedDetectors    int               `json:"failed_detectors"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	RawResponse        map[string]any    `json:"raw_response,omitempty"`
}

// DetectorConfig selects one detector and the parameters sent with it.
type DetectorConfig struct {
	ID     string         `json:"id"`
	Params map[string]any `json:"params,omitempty"`
}

// enforceRequest is the JSON body of the enforcement endpoint.
type enforceRequest struct {
	Text                string                    `json:"text"`
	Direction           Direction                 `json:"direction"`
	DetectorsProperties map[string]map[string]any `json:"detectors_properties"`
}

func anyDetected(records []DetectionRecord) bool {
	for _, r := range records {
		if r.Detected {
			return true
		}
	}
	return false
}
