package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/myasobot/myasobot/internal/api"
	"github.com/myasobot/myasobot/internal/assistant"
	"github.com/myasobot/myasobot/internal/auth"
	"github.com/myasobot/myasobot/internal/clients"
	"github.com/myasobot/myasobot/internal/config"
	"github.com/myasobot/myasobot/internal/llm"
	"github.com/myasobot/myasobot/internal/memory"
	"github.com/myasobot/myasobot/internal/nlsql"
	"github.com/myasobot/myasobot/internal/observability"
	productspostgres "github.com/myasobot/myasobot/internal/products/postgres"
	"github.com/myasobot/myasobot/internal/prompts"
	"github.com/myasobot/myasobot/internal/schema"
	schemapostgres "github.com/myasobot/myasobot/internal/schema/postgres"
	"github.com/myasobot/myasobot/internal/sqlguard"
	"github.com/myasobot/myasobot/internal/whatsapp"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("myasobot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	// An empty DSN leaves the pool nil; the stores degrade and readiness
	// reports the missing database instead of the process crashing.
	var db *sql.DB
	if cfg.Database.DSN != "" {
		db, err = productspostgres.Open(context.Background(), productspostgres.DBConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open catalog db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
	} else {
		logger.Warn("database dsn is empty; catalog flows will answer with the unconfigured reply")
	}

	historyStore := memory.NewStore(db, cfg.Database.QueryTimeout)
	clientStore := clients.NewStore(db, cfg.Database.QueryTimeout)
	promptStore := prompts.NewStore(db, cfg.Database.QueryTimeout)
	schemaService := schema.NewService(schemapostgres.NewIntrospector(db, cfg.Database.QueryTimeout))
	catalogRepo := productspostgres.NewRepository(db, productspostgres.Options{
		QueryTimeout: cfg.Database.QueryTimeout,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	})
	guard := sqlguard.New(nil)
	messenger := whatsapp.New(whatsapp.Config{
		BaseURL:         cfg.WhatsApp.BaseURL,
		SendMessagePath: cfg.WhatsApp.SendMessagePath,
		SendImagePath:   cfg.WhatsApp.SendImagePath,
		Timeout:         cfg.WhatsApp.Timeout,
	}, logger)

	var chat *llm.Client
	if cfg.LLM.APIKey != "" {
		chat, err = llm.New(llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize llm client", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("llm api key is empty; conversation endpoints will report the assistant as unconfigured")
	}

	deps := api.Dependencies{
		Logger: logger,
		Readiness: api.CombineReadinessChecks(
			catalogRepo.HealthCheck,
			api.CheckWhatsAppConfig(cfg),
			api.CheckLLMConfig(cfg),
		),
		DependencyTimeout: time.Second,
		BackgroundTimeout: cfg.Conversation.BackgroundTimeout,
	}
	if chat != nil {
		generator := nlsql.NewGenerator(chat, schemaService, promptStore, guard, logger)
		generator.SetTemperature(cfg.LLM.SQLTemperature)
		deps.Assistant = &assistant.Service{
			Generator: generator,
			Catalog:   catalogRepo,
			Guard:     guard,
			Schema:    schemaService,
			Prompts:   promptStore,
			History:   historyStore,
			Clients:   clientStore,
			Chat:      chat,
			Messenger: messenger,
			Config: assistant.Config{
				SearchLimit:      cfg.Search.DefaultLimit,
				FallbackLimit:    cfg.Search.FallbackLimit,
				MaxAttempts:      cfg.Search.MaxAttempts,
				RetryBackoff:     cfg.Search.RetryBackoff,
				HistoryWindow:    cfg.Conversation.HistoryLimit,
				ReplyTemperature: cfg.LLM.ReplyTemperature,
			},
			Logger: logger,
		}
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
