package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kaiwa-labs/kaiwa/pkg/relay/chat"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/config"
)

type streamFunc func(ctx context.Context, hist []chat.Turn) (io.ReadCloser, error)

func (f streamFunc) StreamChat(ctx context.Context, hist []chat.Turn) (io.ReadCloser, error) {
	return f(ctx, hist)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	return New(cfg, opts)
}

func TestServer_TwiMLRoute(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook/twiml/faq", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "<ConversationRelay") {
		t.Fatalf("body=%q", body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestServer_InfoAndNotFoundRoutes(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for path, want := range map[string]int{
		"/faq":              http.StatusOK,
		"/translator-en-jp": http.StatusOK,
		"/translator-jp-en": http.StatusOK,
		"/order":            http.StatusNotFound,
		"/booking":          http.StatusNotFound,
		"/nope":             http.StatusNotFound,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("GET %s status=%d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestServer_WebSocketTurnThroughMiddlewareChain(t *testing.T) {
	sse := "data: {\"choices\":[{\"delta\":{\"content\":\"はい。\"}}]}\n\ndata: [DONE]\n\n"
	s := newTestServer(t, Options{
		Streamer: streamFunc(func(context.Context, []chat.Turn) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(sse)), nil
		}),
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/translator-jp-en"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "prompt", "voicePrompt": "やあ"}); err != nil {
		t.Fatalf("write prompt: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame["type"] != "text" || frame["token"] != "はい。" {
		t.Fatalf("frame=%v", frame)
	}
}

func TestServer_DrainCancelsLiveSessions(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/faq"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Sessions().Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if ok := s.Drain(ctx); !ok {
		t.Fatal("expected drain to complete")
	}

	// new upgrades are refused while draining
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail while draining")
	}
	if resp == nil || resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("resp=%+v", resp)
	}
}
