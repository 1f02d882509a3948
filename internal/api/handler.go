package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/myasobot/myasobot/internal/assistant"
	"github.com/myasobot/myasobot/internal/config"
	"github.com/myasobot/myasobot/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// ConversationService is the assistant surface the API exposes.
type ConversationService interface {
	ProcessMessage(ctx context.Context, phone, message, topic string) (string, error)
	InitConversation(ctx context.Context, phone, topic string) (string, error)
	Search(ctx context.Context, conditions, topic string, limit int) (assistant.SearchResult, error)
	Reset(ctx context.Context, phone string) error
	Profile(ctx context.Context, phone string) assistant.ProfileInfo
	NotifyTrouble(ctx context.Context, phone string)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         ConversationService
	BackgroundTimeout time.Duration

	// Spawn runs accepted conversation work after the 202 reply.
	// Defaults to a plain goroutine; tests swap in a synchronous runner.
	Spawn func(func())
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/conversation/process", func(w http.ResponseWriter, r *http.Request) {
		handleProcessConversation(deps, w, r)
	})
	protected.HandleFunc("POST /v1/conversation/init", func(w http.ResponseWriter, r *http.Request) {
		handleInitConversation(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/conversation", func(w http.ResponseWriter, r *http.Request) {
		handleResetConversation(deps, w, r)
	})
	protected.HandleFunc("POST /v1/search", func(w http.ResponseWriter, r *http.Request) {
		handleSearch(deps, w, r)
	})
	protected.HandleFunc("GET /v1/profile", func(w http.ResponseWriter, r *http.Request) {
		handleProfile(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/conversation/process", protectedHandler)
	mux.Handle("POST /v1/conversation/init", protectedHandler)
	mux.Handle("DELETE /v1/conversation", protectedHandler)
	mux.Handle("POST /v1/search", protectedHandler)
	mux.Handle("GET /v1/profile", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckWhatsAppConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.WhatsApp.BaseURL == "" {
			return errors.New("whatsapp gateway is not configured")
		}
		return nil
	}
}

func CheckLLMConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.LLM.APIKey == "" {
			return errors.New("llm api key is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
