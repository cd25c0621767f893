package api

import (
	"net/http"
)

// handleTranslate implements POST /v1/translate.
func (d *Dependencies) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if d.Translator == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "translation is not configured"})
		return
	}

	var req TranslateReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	writeJSON(w, http.StatusOK, d.Translator.DetectAndTranslate(r.Context(), req.Text))
}
