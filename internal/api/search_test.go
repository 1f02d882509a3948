package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/myasobot/myasobot/internal/assistant"
)

func TestSearchEndpointReturnsCatalogResult(t *testing.T) {
	stub := &stubAssistant{
		searchResult: assistant.SearchResult{
			Reply:      "1. Стейк рибай - 1200.00 руб/кг",
			ProductIDs: []int64{5},
			HasMore:    true,
			Query:      "SELECT * FROM products WHERE category = 'говядина'",
			Attempts:   1,
		},
	}
	h := newTestHandler(t, stub)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/search",
		strings.NewReader(`{"conditions": "category = 'говядина'", "topic": "говядина", "limit": 5}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["text"] != "1. Стейк рибай - 1200.00 руб/кг" {
		t.Fatalf("text = %v", body["text"])
	}
	if body["has_more"] != true {
		t.Fatalf("has_more = %v", body["has_more"])
	}
	if body["attempts"] != float64(1) {
		t.Fatalf("attempts = %v", body["attempts"])
	}

	if len(stub.searchCalls) != 1 {
		t.Fatalf("search calls = %d", len(stub.searchCalls))
	}
	call := stub.searchCalls[0]
	if call.conditions != "category = 'говядина'" || call.topic != "говядина" || call.limit != 5 {
		t.Fatalf("search call = %#v", call)
	}
}

func TestSearchEndpointRequiresConditions(t *testing.T) {
	stub := &stubAssistant{}
	h := newTestHandler(t, stub)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/search",
		strings.NewReader(`{"conditions": "  "}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["error_code"] != "CONDITIONS_REQUIRED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	if len(stub.searchCalls) != 0 {
		t.Fatalf("search invoked without conditions")
	}
}

func TestSearchEndpointReportsPipelineFailure(t *testing.T) {
	stub := &stubAssistant{searchErr: errors.New("generate sql after 3 attempts: chat completion: boom")}
	h := newTestHandler(t, stub)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/search",
		strings.NewReader(`{"conditions": "category = 'курица'"}`)))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["error_code"] != "SEARCH_FAILED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	if body["retryable"] != true {
		t.Fatalf("retryable = %v", body["retryable"])
	}
}
