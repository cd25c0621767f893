package storage

import (
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingWriter struct {
	mu     sync.Mutex
	events []*EnforcementEvent
	closed bool
}

func (r *recordingWriter) Write(e *EnforcementEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingWriter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recordingWriter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestLogWriter_EmitsStructuredEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := NewLogWriter(zap.New(core))

	w.Write(&EnforcementEvent{
		RequestID:         "req-1",
		Mode:              "bulk",
		Direction:         "input",
		HasViolations:     true,
		DetectorNames:     []string{"pii", "harm"},
		DetectorTriggered: []bool{true, false},
		DetectorScores:    []float64{0.9, 0},
	})

	entries := logs.FilterMessage("enforcement_event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Errorf("unexpected request_id: %v", fields["request_id"])
	}
	if fields["has_violations"] != true {
		t.Errorf("expected has_violations=true, got %v", fields["has_violations"])
	}
}

func TestAsyncWriter_FlushesOnClose(t *testing.T) {
	sink := &recordingWriter{}
	w := NewAsyncWriter(sink, zap.NewNop())

	for i := 0; i < 10; i++ {
		w.Write(&EnforcementEvent{RequestID: "r"})
	}
	w.Close()

	if got := sink.count(); got != 10 {
		t.Errorf("expected 10 events after Close, got %d", got)
	}
	if !sink.closed {
		t.Error("expected sink to be closed")
	}

	// Second Close is a no-op.
	w.Close()
}

func TestAsyncWriter_FlushesOnTicker(t *testing.T) {
	sink := &recordingWriter{}
	w := NewAsyncWriter(sink, zap.NewNop())
	defer w.Close()

	w.Write(&EnforcementEvent{RequestID: "r"})

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatal("expected event to be flushed by the ticker")
	}
}

func TestTruncatePayload(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 5, "hello"},
		{"multibyte", "héllo wörld", 4, "héll"},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncatePayload(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("TruncatePayload(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestHashPayload(t *testing.T) {
	h := HashPayload("hello")
	if len(h) != 64 || strings.ToLower(h) != h {
		t.Errorf("expected 64 lowercase hex chars, got %q", h)
	}
	if h != HashPayload("hello") {
		t.Error("hash must be deterministic")
	}
	if h == HashPayload("hello!") {
		t.Error("different payloads must hash differently")
	}
}
