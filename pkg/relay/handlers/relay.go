package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kaiwa-labs/kaiwa/pkg/relay/apierror"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/calllog"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/config"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/mw"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/session"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/sessions"
)

// RelayHandler serves one WebSocket endpoint. Upgrade requests become live
// sessions; plain GETs on public endpoints return a short description.
type RelayHandler struct {
	Config       config.Config
	Logger       *slog.Logger
	Streamer     session.Streamer // nil when no API key is configured
	Recorder     calllog.Recorder
	Sessions     *sessions.Tracker
	Draining     func() bool
	Path         string
	SystemPrompt string
	Public       bool
}

func (h RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.serveWS(w, r)
		return
	}
	if r.Method == http.MethodGet && h.Public {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "WebSocket endpoint: %s\nConnect via WebSocket for interactive chat.", h.Path)
		return
	}
	NotFoundHandler{}.ServeHTTP(w, r)
}

func (h RelayHandler) serveWS(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if h.Draining != nil && h.Draining() {
		apierror.Write(w, &apierror.Error{
			Type:      apierror.ErrAPI,
			Message:   "server is draining",
			RequestID: reqID,
		})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		return
	}
	defer conn.Close()

	s, err := session.New(session.Dependencies{
		Conn:         conn,
		Logger:       logger,
		Streamer:     h.Streamer,
		Recorder:     h.Recorder,
		SystemPrompt: h.SystemPrompt,
		Path:         h.Path,
		RequestID:    reqID,
		Config: session.Config{
			MaxMessageBytes:    h.Config.WSMaxMessageBytes,
			PingInterval:       h.Config.WSPingInterval,
			WriteTimeout:       h.Config.WSWriteTimeout,
			MaxSessionDuration: h.Config.WSMaxSessionDur,
			TurnTimeout:        h.Config.TurnTimeout,
			OutboundQueueSize:  h.Config.OutboundQueueSize,
		},
	})
	if err != nil {
		logger.Error("failed to initialize relay session", "path", h.Path, "request_id", reqID, "error", err)
		return
	}

	connID := "sess_" + randHex(8)
	unregister := func() {}
	if h.Sessions != nil {
		unregister = h.Sessions.Register(connID, s.Cancel)
	}
	defer unregister()

	start := time.Now()
	logger.Info("relay session opened", "conn_id", connID, "path", h.Path, "request_id", reqID)
	if err := s.Run(); err != nil {
		logger.Warn("relay session ended with error", "conn_id", connID, "path", h.Path, "request_id", reqID, "error", err)
	}
	logger.Info("relay session closed", "conn_id", connID, "path", h.Path, "duration_ms", time.Since(start).Milliseconds())
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
