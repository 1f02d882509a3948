// Package assistant orchestrates the conversation flows: guarded
// catalog search over generated SQL, reply composition, history, photo
// delivery, and client profiles.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/myasobot/myasobot/internal/clients"
	"github.com/myasobot/myasobot/internal/llm"
	"github.com/myasobot/myasobot/internal/memory"
	"github.com/myasobot/myasobot/internal/nlsql"
	"github.com/myasobot/myasobot/internal/observability"
	"github.com/myasobot/myasobot/internal/products"
	"github.com/myasobot/myasobot/internal/sqlguard"
)

// SQLGenerator turns natural-language conditions into normalized SQL.
type SQLGenerator interface {
	Generate(ctx context.Context, conditions, topic string) (nlsql.GeneratedQuery, error)
}

// ChatClient runs one chat completion over the given messages.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// SchemaDescriber renders one table's column list for repair hints.
type SchemaDescriber interface {
	Describe(ctx context.Context, tableName string) (string, error)
}

// PromptStore resolves operator-managed templates and system variables.
type PromptStore interface {
	Lookup(ctx context.Context, topic string) (text string, found bool, err error)
	SystemValues(ctx context.Context) (map[string]string, error)
}

// HistoryStore persists the per-phone conversation transcript.
type HistoryStore interface {
	Append(ctx context.Context, clientPhone string, messages ...memory.Message) error
	Recent(ctx context.Context, clientPhone string, limit int) ([]memory.Message, error)
	Count(ctx context.Context, clientPhone string) (int, error)
	Clear(ctx context.Context, clientPhone string) error
}

// ClientDirectory reads customer profiles and order history.
type ClientDirectory interface {
	ByPhone(ctx context.Context, phone string) (clients.Profile, error)
	LastOrder(ctx context.Context, phone string) (clients.Order, error)
}

// Messenger delivers outbound texts and images to the customer.
type Messenger interface {
	Enabled() bool
	SendMessage(ctx context.Context, recipient, message string) error
	SendImage(ctx context.Context, recipient, fileURL, caption string) error
}

type Config struct {
	SearchLimit      int           // rows returned per catalog search
	FallbackLimit    int           // rows in the random fallback sample
	MaxAttempts      int           // SQL generation attempts per search
	RetryBackoff     time.Duration // first retry wait, doubled per attempt
	HistoryWindow    int           // messages replayed into prompts
	ReplyTemperature float64       // temperature for conversational replies
}

type Service struct {
	Generator SQLGenerator
	Catalog   products.Repository
	Guard     *sqlguard.Guard
	Schema    SchemaDescriber
	Prompts   PromptStore
	History   HistoryStore
	Clients   ClientDirectory
	Chat      ChatClient
	Messenger Messenger
	Config    Config
	Logger    *slog.Logger

	// Sleep is the retry wait hook; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (s *Service) ensureDefaults() {
	if s.Config.SearchLimit <= 0 {
		s.Config.SearchLimit = 15
	}
	if s.Config.FallbackLimit <= 0 {
		s.Config.FallbackLimit = 10
	}
	if s.Config.MaxAttempts <= 0 {
		s.Config.MaxAttempts = 3
	}
	if s.Config.RetryBackoff <= 0 {
		s.Config.RetryBackoff = time.Second
	}
	if s.Config.HistoryWindow <= 0 {
		s.Config.HistoryWindow = 10
	}
	if s.Config.ReplyTemperature <= 0 {
		s.Config.ReplyTemperature = 0.7
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Guard == nil {
		s.Guard = sqlguard.New(nil)
	}
	if s.Sleep == nil {
		s.Sleep = sleepContext
	}
}

// Reset clears the stored conversation for the phone.
func (s *Service) Reset(ctx context.Context, phone string) error {
	s.ensureDefaults()
	observability.ObserveConversation("reset")
	return s.History.Clear(ctx, phone)
}

// ProfileInfo is the operator-facing view of one client.
type ProfileInfo struct {
	Phone        string         `json:"client_phone"`
	Profile      string         `json:"profile"`
	MessageCount int            `json:"message_count"`
	LastOrder    *clients.Order `json:"last_order,omitempty"`
	Status       string         `json:"status"`
}

// Profile assembles the client summary: profile text, stored message
// count, and the latest order. Missing pieces degrade to their fixed
// fallbacks instead of failing the whole summary.
func (s *Service) Profile(ctx context.Context, phone string) ProfileInfo {
	s.ensureDefaults()

	info := ProfileInfo{Phone: phone, Profile: clients.ProfileMissingText}
	profile, err := s.Clients.ByPhone(ctx, phone)
	switch {
	case err == nil:
		info.Profile = profile.Text()
	case !errors.Is(err, clients.ErrNotFound):
		s.Logger.Warn("client profile lookup failed", "phone", phone, "error", err)
	}

	count, err := s.History.Count(ctx, phone)
	if err != nil {
		s.Logger.Warn("conversation history count failed", "phone", phone, "error", err)
	} else {
		info.MessageCount = count
	}

	order, err := s.Clients.LastOrder(ctx, phone)
	switch {
	case err == nil:
		info.LastOrder = &order
	case !errors.Is(err, clients.ErrNotFound):
		s.Logger.Warn("last order lookup failed", "phone", phone, "error", err)
	}

	info.Status = "new"
	if info.MessageCount > 0 || info.LastOrder != nil {
		info.Status = "active"
	}
	return info
}

// systemVariables loads operator-managed variables, degrading to an
// empty set so pricing falls back to raw prices.
func (s *Service) systemVariables(ctx context.Context) map[string]string {
	vars, err := s.Prompts.SystemValues(ctx)
	if err != nil {
		s.Logger.Warn("system variables load failed", "error", err)
		return map[string]string{}
	}
	return vars
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
