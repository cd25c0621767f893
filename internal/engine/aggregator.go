package engine

import "strings"

// Summary is the roll-up of a set of detection records.
type Summary struct {
	Total          int      `json:"total"`
	Triggered      int      `json:"triggered"`
	Failed         int      `json:"failed"`
	TriggeredNames []string `json:"triggered_names,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// Summarize counts detections and builds a human-readable reason.
//
// A record counts as failed when it carries an error detail; failed
// records are never counted as triggered.
func Summarize(records []DetectionRecord) Summary {
	s := Summary{Total: len(records)}

	for _, r := range records {
		if r.failed() {
			s.Failed++
			continue
		}
		if !r.Detected {
			continue
		}
		s.Triggered++
		s.TriggeredNames = append(s.TriggeredNames, r.DetectorID)
	}

	if len(s.TriggeredNames) > 0 {
		s.Reason = "triggered: " + strings.Join(s.TriggeredNames, ", ")
	}
	return s
}
