package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/triage-ai/guardrails/internal/auth"
	"github.com/triage-ai/guardrails/internal/engine"
)

// fakeIBM serves the IAM token endpoint and the enforcement endpoint.
type fakeIBM struct {
	enforceBody   string
	enforceStatus int // 0 means 200
	exchanges   atomic.Int32
	enforces    atomic.Int32
}

func (f *fakeIBM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/identity/token":
		f.exchanges.Add(1)
		_, _ = io.WriteString(w, `{"access_token":"tok","expires_in":3600}`)
	case strings.HasPrefix(r.URL.Path, "/guardrails-manager/v1/enforce/"):
		f.enforces.Add(1)
		if f.enforceStatus != 0 {
			w.WriteHeader(f.enforceStatus)
		}
		_, _ = io.WriteString(w, f.enforceBody)
	default:
		http.NotFound(w, r)
	}
}

// setEnv points the CLI at srv and blanks settings that could leak in
// from the host.
func setEnv(t *testing.T, srv *httptest.Server) {
	t.Helper()
	for _, k := range []string{"WATSONX_PROJECT_ID", "GUARDRAILS_GRPC_PORT", "GUARDRAILS_LOG_LEVEL", "POLICY_ID_PII"} {
		t.Setenv(k, "")
	}
	t.Setenv("IBM_API_KEY", "test-key")
	t.Setenv("IAM_TOKEN_URL", srv.URL+"/identity/token")
	t.Setenv("GUARDRAILS_API_URL", srv.URL)
	t.Setenv("GUARDRAILS_LOG_LEVEL", "error")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDetectorsCommand(t *testing.T) {
	t.Setenv("IBM_API_KEY", "")

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "", "detectors", "--direction", "output")
		if err != nil {
			t.Fatalf("detectors: %v", err)
		}
		var got struct {
			Direction string                `json:"direction"`
			Advanced  []engine.DetectorSpec `json:"advanced"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decode %q: %v", out, err)
		}
		if got.Direction != "output" || len(got.Advanced) != 3 {
			t.Errorf("direction = %q, advanced = %d", got.Direction, len(got.Advanced))
		}
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := run(t, "", "detectors", "-o", "yaml")
		if err != nil {
			t.Fatalf("detectors: %v", err)
		}
		if !strings.Contains(out, "direction: input") || !strings.Contains(out, "- id: topic_relevance") {
			t.Errorf("unexpected yaml:\n%s", out)
		}
	})

	t.Run("bad format", func(t *testing.T) {
		if _, err := run(t, "", "detectors", "-o", "xml"); err == nil {
			t.Error("expected an error for an unsupported format")
		}
	})

	t.Run("bad direction", func(t *testing.T) {
		if _, err := run(t, "", "detectors", "-d", "sideways"); err == nil {
			t.Error("expected an error for an invalid direction")
		}
	})
}

func TestEnforceCommand(t *testing.T) {
	fake := &fakeIBM{enforceBody: `{"text":"[REDACTED]","detections":{"pii":{"detected":true,"score":0.9}}}`}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	setEnv(t, srv)

	t.Run("argument", func(t *testing.T) {
		out, err := run(t, "", "enforce", "my", "ssn", "is", "123-45-6789")
		if err != nil {
			t.Fatalf("enforce: %v", err)
		}
		var got engine.Analysis
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.AnalyzedText != "my ssn is 123-45-6789" {
			t.Errorf("analyzed_text = %q", got.AnalyzedText)
		}
		if !got.Enforcement.Success || !got.Enforcement.HasViolations {
			t.Errorf("enforcement = %+v", got.Enforcement)
		}
	})

	t.Run("stdin", func(t *testing.T) {
		out, err := run(t, "from stdin\n", "enforce", "-")
		if err != nil {
			t.Fatalf("enforce: %v", err)
		}
		if !strings.Contains(out, `"original_text": "from stdin"`) {
			t.Errorf("stdin text not used:\n%s", out)
		}
	})

	t.Run("fail on violation", func(t *testing.T) {
		_, err := run(t, "", "enforce", "--fail-on-violation", "hello")
		if !errors.Is(err, errViolations) {
			t.Errorf("err = %v, want errViolations", err)
		}
	})

	t.Run("bad params", func(t *testing.T) {
		if _, err := run(t, "", "enforce", "--params", "[1]", "hello"); err == nil {
			t.Error("expected an error for malformed --params")
		}
	})

	t.Run("empty text", func(t *testing.T) {
		if _, err := run(t, "  \n", "enforce"); err == nil {
			t.Error("expected an error for empty text")
		}
	})

	if fake.exchanges.Load() == 0 || fake.enforces.Load() == 0 {
		t.Errorf("exchanges = %d, enforces = %d", fake.exchanges.Load(), fake.enforces.Load())
	}
}

func TestEnforceCommand_RemoteFailure(t *testing.T) {
	fake := &fakeIBM{enforceBody: `not json`}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	setEnv(t, srv)

	out, err := run(t, "", "enforce", "hello")
	if err == nil || !strings.Contains(err.Error(), "Failed to parse response") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(out, `"success": false`) {
		t.Errorf("result should still be printed:\n%s", out)
	}
}

func TestEnforceCommand_MissingAPIKey(t *testing.T) {
	t.Setenv("IBM_API_KEY", "")
	_, err := run(t, "", "enforce", "hello")
	if !errors.Is(err, auth.ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestTestCommand(t *testing.T) {
	fake := &fakeIBM{enforceBody: `{"entity":{"text":"[REDACTED]"}}`}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	setEnv(t, srv)

	out, err := run(t, "", "test", "--detector", "pii,harm", "--detector", "jailbreak", "call 555-0100")
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	var got engine.Analysis
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Individual == nil || got.Individual.TotalCalls != 3 {
		t.Fatalf("individual = %+v", got.Individual)
	}
	if strings.Join(got.Individual.DetectorsTriggered, ",") != "pii,harm,jailbreak" {
		t.Errorf("detectors_triggered = %v", got.Individual.DetectorsTriggered)
	}
	if fake.enforces.Load() != 3 {
		t.Errorf("enforce calls = %d, want 3", fake.enforces.Load())
	}
}

func TestTestCommand_FailedCalls(t *testing.T) {
	fake := &fakeIBM{enforceStatus: http.StatusServiceUnavailable, enforceBody: `{"error":"busy"}`}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	setEnv(t, srv)

	out, err := run(t, "", "test", "--detector", "pii,harm", "hello")
	if err == nil || !strings.Contains(err.Error(), "2 of 2 detector calls failed") {
		t.Errorf("err = %v, want both calls reported as failed", err)
	}
	if !strings.Contains(out, `"detector_id": "pii"`) {
		t.Errorf("result should still be printed:\n%s", out)
	}
}

func TestTokenCommand(t *testing.T) {
	fake := &fakeIBM{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	setEnv(t, srv)

	out, err := run(t, "", "token")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	var info auth.TokenInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !info.Valid || info.ExpiresInMinutes < 59 {
		t.Errorf("info = %+v", info)
	}
	if strings.Contains(out, `"tok"`) {
		t.Error("token value must not be printed")
	}
}

func TestReadText(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
		err   bool
	}{
		{"args joined", []string{"a", "b"}, "", "a b", false},
		{"stdin", nil, "line one\nline two\n", "line one\nline two", false},
		{"dash reads stdin", []string{"-"}, "x", "x", false},
		{"blank", nil, " \n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			cmd.SetIn(strings.NewReader(tt.stdin))
			got, err := readText(cmd, tt.args)
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, want error %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	v := map[string]any{
		"flag":  "true",
		"text":  "multi\nline",
		"score": 0.5,
		"ids":   []string{"pii", "harm"},
	}
	if err := render(&buf, formatYAML, v); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`flag: "true"`, "score: 0.5", "- pii", "text: |-"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "{") {
		t.Errorf("output should use block style:\n%s", out)
	}
}
