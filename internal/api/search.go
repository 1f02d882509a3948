package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

type searchRequest struct {
	Conditions string `json:"conditions"`
	Topic      string `json:"topic"`
	Limit      int    `json:"limit"`
}

func handleSearch(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", false, nil)
		return
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req searchRequest
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid search request body", false, map[string]any{"details": err.Error()})
		return
	}
	conditions := strings.TrimSpace(req.Conditions)
	if conditions == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "CONDITIONS_REQUIRED", "conditions are required", false, nil)
		return
	}

	result, err := deps.Assistant.Search(r.Context(), conditions, strings.TrimSpace(req.Topic), req.Limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "SEARCH_FAILED", "catalog search failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
