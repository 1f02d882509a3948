package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendMessagePostsPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Timeout: time.Second}, nil)
	if err := client.SendMessage(context.Background(), "+79991234567", "Здравствуйте!"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if gotPath != "/send-message" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["recipient"] != "+79991234567" || gotBody["message"] != "Здравствуйте!" {
		t.Fatalf("payload = %v", gotBody)
	}
}

func TestSendImagePostsPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Timeout: time.Second}, nil)
	err := client.SendImage(context.Background(), "+79991234567", "https://cdn.example/7.jpg", "Грудинка Премиум")
	if err != nil {
		t.Fatalf("SendImage: %v", err)
	}

	if gotPath != "/sendFile" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["file_url"] != "https://cdn.example/7.jpg" {
		t.Fatalf("file_url = %v", gotBody["file_url"])
	}
	if gotBody["caption"] != "Грудинка Премиум" {
		t.Fatalf("caption = %v", gotBody["caption"])
	}
	if gotBody["extension"] != "png" {
		t.Fatalf("extension = %v", gotBody["extension"])
	}
}

func TestSendMessageFailsOnGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "session not started", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Timeout: time.Second}, nil)
	err := client.SendMessage(context.Background(), "+79991234567", "текст")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSendWithoutConfiguredGateway(t *testing.T) {
	client := New(Config{}, nil)
	if client.Enabled() {
		t.Fatal("client without base url must report disabled")
	}
	err := client.SendMessage(context.Background(), "+79991234567", "текст")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
