// Package server wires the relay's HTTP surface: the TwiML webhook, the
// WebSocket endpoints, and the middleware chain.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kaiwa-labs/kaiwa/pkg/relay/calllog"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/config"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/handlers"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/mw"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/openai"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/session"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/sessions"
)

type Options struct {
	Logger   *slog.Logger
	Recorder calllog.Recorder
	// Streamer overrides the OpenAI client built from config. Used in tests.
	Streamer session.Streamer
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	streamer session.Streamer
	recorder calllog.Recorder
	tracker  *sessions.Tracker
	draining atomic.Bool
}

func New(cfg config.Config, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	streamer := opts.Streamer
	if streamer == nil && cfg.OpenAIAPIKey != "" {
		streamer = openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			HTTPClient: &http.Client{
				Transport: &http.Transport{
					Proxy: http.ProxyFromEnvironment,
					DialContext: (&net.Dialer{
						Timeout: 10 * time.Second,
					}).DialContext,
					ForceAttemptHTTP2:   true,
					MaxIdleConns:        100,
					IdleConnTimeout:     90 * time.Second,
					TLSHandshakeTimeout: 10 * time.Second,
				},
			},
		})
	}
	if streamer == nil {
		logger.Warn("no backend api key configured; turns will fail until OPENAI_API_KEY is set")
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = calllog.Nop{}
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		streamer: streamer,
		recorder: recorder,
		tracker:  sessions.NewTracker(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	twiml := handlers.TwiMLHandler{Logger: s.logger}
	s.mux.Handle("/webhook/twiml", twiml)
	s.mux.Handle("/webhook/twiml/", twiml)

	public := make(map[string]bool, len(config.PublicPaths()))
	for _, path := range config.PublicPaths() {
		public[path] = true
	}
	for _, path := range config.RelayPaths() {
		prompt, ok := s.cfg.SystemPromptFor(path)
		if !ok {
			continue
		}
		s.mux.Handle(path, handlers.RelayHandler{
			Config:       s.cfg,
			Logger:       s.logger,
			Streamer:     s.streamer,
			Recorder:     s.recorder,
			Sessions:     s.tracker,
			Draining:     s.draining.Load,
			Path:         path,
			SystemPrompt: prompt,
			Public:       public[path],
		})
	}

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Sessions exposes the live-session tracker for shutdown coordination.
func (s *Server) Sessions() *sessions.Tracker {
	return s.tracker
}

// Drain stops accepting new sessions, cancels live ones, and waits for them
// to unwind or for ctx to expire.
func (s *Server) Drain(ctx context.Context) bool {
	s.draining.Store(true)
	canceled := s.tracker.CancelAll()
	if canceled > 0 {
		s.logger.Info("canceling live sessions", "count", canceled)
	}
	return s.tracker.Wait(ctx)
}
