package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kaiwa-labs/kaiwa/pkg/relay/chat"
)

func TestClient_StreamChat_RequestShape(t *testing.T) {
	var got chatRequest
	var auth, accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	body, err := c.StreamChat(context.Background(), []chat.Turn{
		{Role: "system", Content: "あなたは親切なアシスタントです。"},
		{Role: "user", Content: "Hello"},
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	_, _ = io.ReadAll(body)
	_ = body.Close()

	if auth != "Bearer sk-test" {
		t.Fatalf("authorization=%q", auth)
	}
	if accept != "text/event-stream" {
		t.Fatalf("accept=%q", accept)
	}
	if got.Model != DefaultModel {
		t.Fatalf("model=%q", got.Model)
	}
	if !got.Stream {
		t.Fatal("stream=false, want true")
	}
	if got.Temperature != 0.7 {
		t.Fatalf("temperature=%v", got.Temperature)
	}
	if got.MaxTokens != 150 {
		t.Fatalf("max_tokens=%d", got.MaxTokens)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("messages=%+v", got.Messages)
	}
}

func TestClient_StreamChat_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	_, err := c.StreamChat(context.Background(), []chat.Turn{{Role: "user", Content: "hi"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v, want *APIError", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("status=%d", apiErr.Status)
	}
}
