package api

import (
	"net/http"

	"github.com/triage-ai/guardrails/internal/engine"
)

// handleListDetectors implements GET /v1/detectors?direction=input|output.
func (d *Dependencies) handleListDetectors(w http.ResponseWriter, r *http.Request) {
	dir, err := engine.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, DetectorListResp{
		Direction: dir,
		Basic:     orEmpty(d.Catalog.Basic(dir)),
		Advanced:  orEmpty(d.Catalog.Advanced(dir)),
		Defaults:  engine.DefaultSelection,
	})
}

// handleTokenInfo implements GET /v1/token. It never triggers an exchange.
func (d *Dependencies) handleTokenInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Tokens.Info())
}

func orEmpty(specs []engine.DetectorSpec) []engine.DetectorSpec {
	if specs == nil {
		return []engine.DetectorSpec{}
	}
	return specs
}
