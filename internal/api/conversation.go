package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/myasobot/myasobot/internal/observability"
	"github.com/myasobot/myasobot/internal/phone"
)

type processConversationRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Topic   string `json:"topic"`
}

type initConversationRequest struct {
	Phone string `json:"phone"`
	Topic string `json:"topic"`
}

type resetConversationRequest struct {
	Phone string `json:"phone"`
}

func handleProcessConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", false, nil)
		return
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req processConversationRequest
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid conversation request body", false, map[string]any{"details": err.Error()})
		return
	}
	if !phone.Valid(req.Phone) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PHONE", "Invalid phone number", false, nil)
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message is required", false, nil)
		return
	}

	recipient := phone.Normalize(req.Phone)
	topic := strings.TrimSpace(req.Topic)
	startBackground(deps, r, "process", recipient, func(ctx context.Context) error {
		_, err := deps.Assistant.ProcessMessage(ctx, recipient, message, topic)
		return err
	})

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func handleInitConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", false, nil)
		return
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req initConversationRequest
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid conversation request body", false, map[string]any{"details": err.Error()})
		return
	}
	if !phone.Valid(req.Phone) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PHONE", "Invalid phone number", false, nil)
		return
	}

	recipient := phone.Normalize(req.Phone)
	topic := strings.TrimSpace(req.Topic)
	startBackground(deps, r, "init", recipient, func(ctx context.Context) error {
		_, err := deps.Assistant.InitConversation(ctx, recipient, topic)
		return err
	})

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func handleResetConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", false, nil)
		return
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req resetConversationRequest
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid conversation request body", false, map[string]any{"details": err.Error()})
		return
	}
	if !phone.Valid(req.Phone) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PHONE", "Invalid phone number", false, nil)
		return
	}

	if err := deps.Assistant.Reset(r.Context(), phone.Normalize(req.Phone)); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RESET_FAILED", "failed to clear conversation history", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

// startBackground acknowledges the webhook immediately and runs the
// conversation flow detached from the request, with its own deadline.
// The recipient still hears back on failure via NotifyTrouble.
func startBackground(deps Dependencies, r *http.Request, operation, recipient string, run func(ctx context.Context) error) {
	// WithoutCancel keeps request values, trace ID included, while
	// detaching from the webhook's lifetime.
	detached := context.WithoutCancel(r.Context())
	timeout := deps.BackgroundTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	spawn := deps.Spawn
	if spawn == nil {
		spawn = func(fn func()) { go fn() }
	}

	spawn(func() {
		ctx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()
		if err := run(ctx); err != nil {
			if deps.Logger != nil {
				deps.Logger.Error("conversation flow failed",
					slog.String("operation", operation),
					slog.String("trace_id", observability.TraceIDFromContext(ctx)),
					slog.String("recipient", recipient),
					slog.String("error", err.Error()),
				)
			}
			deps.Assistant.NotifyTrouble(ctx, recipient)
		}
	})
}
