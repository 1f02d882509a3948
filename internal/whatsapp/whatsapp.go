// Package whatsapp delivers assistant replies and product photos
// through the WhatsApp gateway service.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/myasobot/myasobot/internal/observability"
)

// ErrNotConfigured means no gateway base URL was set. Conversations
// still run; delivery is skipped and the caller decides how loudly to
// complain.
var ErrNotConfigured = errors.New("whatsapp: api base url is not configured")

const defaultImageExtension = "png"

const (
	kindMessage = "message"
	kindImage   = "image"
)

type Config struct {
	BaseURL         string
	SendMessagePath string
	SendImagePath   string
	Timeout         time.Duration
}

type Client struct {
	baseURL     string
	messagePath string
	imagePath   string
	httpClient  *http.Client
	logger      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.SendMessagePath == "" {
		cfg.SendMessagePath = "/send-message"
	}
	if cfg.SendImagePath == "" {
		cfg.SendImagePath = "/sendFile"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		messagePath: cfg.SendMessagePath,
		imagePath:   cfg.SendImagePath,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

// Enabled reports whether a gateway is configured at all.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type messagePayload struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type imagePayload struct {
	Recipient string `json:"recipient"`
	FileURL   string `json:"file_url"`
	Caption   string `json:"caption"`
	Extension string `json:"extension"`
}

func (c *Client) SendMessage(ctx context.Context, recipient, message string) error {
	err := c.post(ctx, c.messagePath, messagePayload{
		Recipient: recipient,
		Message:   message,
	})
	observability.ObserveWhatsAppSend(kindMessage, err)
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

func (c *Client) SendImage(ctx context.Context, recipient, fileURL, caption string) error {
	err := c.post(ctx, c.imagePath, imagePayload{
		Recipient: recipient,
		FileURL:   fileURL,
		Caption:   caption,
		Extension: defaultImageExtension,
	})
	observability.ObserveWhatsAppSend(kindImage, err)
	if err != nil {
		return fmt.Errorf("send whatsapp image: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
