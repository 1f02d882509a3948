package api

import (
	"net/http"

	"github.com/myasobot/myasobot/internal/phone"
)

func handleProfile(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", false, nil)
		return
	}

	raw := r.URL.Query().Get("phone")
	if !phone.Valid(raw) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PHONE", "Invalid phone number", false, nil)
		return
	}

	writeJSON(w, http.StatusOK, deps.Assistant.Profile(r.Context(), phone.Normalize(raw)))
}
