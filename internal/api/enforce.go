package api

import (
	"net/http"
	"strings"

	"github.com/triage-ai/guardrails/internal/engine"
	"go.uber.org/zap"
)

// handleEnforce implements POST /v1/enforce. Remote failures are reported
// inside the 200 response; only malformed requests get a 4xx.
func (d *Dependencies) handleEnforce(w http.ResponseWriter, r *http.Request) {
	var req EnforceReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "text is required"})
		return
	}
	dir, err := engine.ParseDirection(req.Direction)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	res := d.Analyzer.AnalyzeBulk(r.Context(), req.Text, dir, req.Detectors, req.Multilingual)
	if !res.Enforcement.Success {
		d.Logger.Warn("enforcement failed",
			zap.String("request_id", res.Enforcement.RequestID),
			zap.String("error", res.Enforcement.ErrorMessage),
		)
	}
	writeJSON(w, http.StatusOK, res)
}

// handleIndividual implements POST /v1/enforce/individual.
func (d *Dependencies) handleIndividual(w http.ResponseWriter, r *http.Request) {
	var req IndividualReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "text is required"})
		return
	}
	dir, err := engine.ParseDirection(req.Direction)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}
	for _, sel := range req.Detectors {
		if sel.ID == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "detector id is required"})
			return
		}
	}

	res := d.Analyzer.Analyze(r.Context(), req.Text, dir, req.Detectors, req.Inputs, req.Multilingual)
	writeJSON(w, http.StatusOK, res)
}
