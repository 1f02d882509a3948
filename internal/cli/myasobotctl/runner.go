// Package myasobotctl implements the operator command line: quick
// health probes plus the conversation and catalog endpoints, so a
// dialog can be exercised without a WhatsApp gateway in the loop.
package myasobotctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("myasobotctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	phone := fs.String("phone", "", "client phone number (profile, reset, init, send)")
	topic := fs.String("topic", "", "conversation or search topic")
	limit := fs.Int("limit", 0, "search result limit; 0 means the server default")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]

	method := ""
	path := ""
	var payload any
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "search":
		conditions := strings.TrimSpace(strings.Join(rest, " "))
		if conditions == "" {
			_, _ = fmt.Fprintln(stderr, "search requires SQL conditions, e.g.: myasobotctl search \"order_price_kg < 500\"")
			return 2
		}
		method, path = http.MethodPost, "/v1/search"
		payload = map[string]any{"conditions": conditions, "topic": *topic, "limit": *limit}
	case "profile":
		if strings.TrimSpace(*phone) == "" {
			_, _ = fmt.Fprintln(stderr, "profile requires -phone")
			return 2
		}
		method, path = http.MethodGet, "/v1/profile?phone="+url.QueryEscape(strings.TrimSpace(*phone))
	case "reset":
		if strings.TrimSpace(*phone) == "" {
			_, _ = fmt.Fprintln(stderr, "reset requires -phone")
			return 2
		}
		method, path = http.MethodDelete, "/v1/conversation"
		payload = map[string]any{"phone": strings.TrimSpace(*phone)}
	case "init":
		if strings.TrimSpace(*phone) == "" {
			_, _ = fmt.Fprintln(stderr, "init requires -phone")
			return 2
		}
		method, path = http.MethodPost, "/v1/conversation/init"
		payload = map[string]any{"phone": strings.TrimSpace(*phone), "topic": *topic}
	case "send":
		message := strings.TrimSpace(strings.Join(rest, " "))
		if strings.TrimSpace(*phone) == "" || message == "" {
			_, _ = fmt.Fprintln(stderr, "send requires -phone and a message, e.g.: myasobotctl -phone 79991234567 send \"есть стейки?\"")
			return 2
		}
		method, path = http.MethodPost, "/v1/conversation/process"
		payload = map[string]any{"phone": strings.TrimSpace(*phone), "message": message, "topic": *topic}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, payload)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: myasobotctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                     GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                      GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  search <conditions>        POST /v1/search")
	_, _ = fmt.Fprintln(w, "  profile -phone <number>    GET /v1/profile")
	_, _ = fmt.Fprintln(w, "  reset -phone <number>      DELETE /v1/conversation")
	_, _ = fmt.Fprintln(w, "  init -phone <number>       POST /v1/conversation/init")
	_, _ = fmt.Fprintln(w, "  send -phone <number> <msg> POST /v1/conversation/process")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
