package engine

import "testing"

func TestSummarize_AllClear(t *testing.T) {
	records := []DetectionRecord{
		{DetectorID: "pii"},
		{DetectorID: "harm"},
		{DetectorID: "jailbreak"},
	}

	s := Summarize(records)
	if s.Total != 3 || s.Triggered != 0 || s.Failed != 0 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.Reason != "" {
		t.Errorf("expected empty reason, got: %s", s.Reason)
	}
}

func TestSummarize_SingleTrigger(t *testing.T) {
	records := []DetectionRecord{
		{DetectorID: "pii", Detected: true, Score: 0.95},
		{DetectorID: "harm"},
	}

	s := Summarize(records)
	if s.Triggered != 1 {
		t.Errorf("expected 1 triggered, got %d", s.Triggered)
	}
	if s.Reason != "triggered: pii" {
		t.Errorf("unexpected reason: %s", s.Reason)
	}
}

func TestSummarize_ReasonKeepsRecordOrder(t *testing.T) {
	records := []DetectionRecord{
		{DetectorID: "profanity", Detected: true, Score: 1},
		{DetectorID: "harm"},
		{DetectorID: "pii", Detected: true, Score: 1},
	}

	s := Summarize(records)
	if s.Reason != "triggered: profanity, pii" {
		t.Errorf("unexpected reason: %s", s.Reason)
	}
}

func TestSummarize_FailedNotTriggered(t *testing.T) {
	records := []DetectionRecord{
		{DetectorID: "pii", Details: []Detail{{"error": "Request timed out"}}},
		{DetectorID: "harm", Detected: true, Score: 1},
	}

	s := Summarize(records)
	if s.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", s.Failed)
	}
	if s.Triggered != 1 || s.TriggeredNames[0] != "harm" {
		t.Errorf("unexpected triggered: %+v", s)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.Reason != "" {
		t.Errorf("unexpected summary for no records: %+v", s)
	}
}
