// Package config loads and validates the relay's process-environment
// configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultSystemPrompt is used for any endpoint whose prompt variable is
// unset.
const DefaultSystemPrompt = "あなたは親切なアシスタントです。"

// promptRoutes is the explicit route→environment mapping for system prompts.
// Validated once at load time; no dynamic lookup by path string elsewhere.
var promptRoutes = []struct {
	Path   string
	EnvKey string
	Public bool // served as an informational GET as well
}{
	{Path: "/faq", EnvKey: "SYSTEM_PROMPT_FAQ", Public: true},
	{Path: "/translator-en-jp", EnvKey: "SYSTEM_PROMPT_TRANSLATOR_EN_JP", Public: true},
	{Path: "/translator-jp-en", EnvKey: "SYSTEM_PROMPT_TRANSLATOR_JP_EN", Public: true},
	{Path: "/order", EnvKey: "SYSTEM_PROMPT_ORDER", Public: false},
	{Path: "/booking", EnvKey: "SYSTEM_PROMPT_BOOKING", Public: false},
}

type Config struct {
	Addr string

	// Backend (chat completions).
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Route → system prompt, fully populated for every relay endpoint.
	SystemPrompts map[string]string

	// Optional turn log database. Empty disables the call log.
	DatabaseURL string

	// WebSocket session settings.
	WSMaxMessageBytes  int64
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSMaxSessionDur    time.Duration
	TurnTimeout        time.Duration
	OutboundQueueSize  int

	// HTTP server settings.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("KAIWA_ADDR", ":8080"),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:       envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:         envOr("OPENAI_MODEL", "gpt-4o-mini"),
		SystemPrompts:       make(map[string]string, len(promptRoutes)),
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		WSMaxMessageBytes:   envInt64Or("KAIWA_WS_MAX_MESSAGE_BYTES", 64*1024),
		WSPingInterval:      envDurationOr("KAIWA_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("KAIWA_WS_WRITE_TIMEOUT", 5*time.Second),
		WSMaxSessionDur:     envDurationOr("KAIWA_WS_MAX_DURATION", 2*time.Hour),
		TurnTimeout:         envDurationOr("KAIWA_TURN_TIMEOUT", 30*time.Second),
		OutboundQueueSize:   envIntOr("KAIWA_OUTBOUND_QUEUE_SIZE", 64),
		ReadHeaderTimeout:   envDurationOr("KAIWA_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("KAIWA_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("KAIWA_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, route := range promptRoutes {
		cfg.SystemPrompts[route.Path] = envOr(route.EnvKey, DefaultSystemPrompt)
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("KAIWA_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.OpenAIBaseURL) == "" {
		return Config{}, fmt.Errorf("OPENAI_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.OpenAIModel) == "" {
		return Config{}, fmt.Errorf("OPENAI_MODEL must not be empty")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("KAIWA_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("KAIWA_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("KAIWA_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSMaxSessionDur <= 0 {
		return Config{}, fmt.Errorf("KAIWA_WS_MAX_DURATION must be > 0")
	}
	if cfg.TurnTimeout < 0 {
		return Config{}, fmt.Errorf("KAIWA_TURN_TIMEOUT must be >= 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("KAIWA_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("KAIWA_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("KAIWA_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("KAIWA_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	// API key absence is deliberately not a startup error: the relay keeps
	// serving and reports the missing credential per turn, so fixing the
	// environment does not require dropping live calls.
	return cfg, nil
}

// SystemPromptFor returns the prompt bound to a relay endpoint path.
func (c Config) SystemPromptFor(path string) (string, bool) {
	prompt, ok := c.SystemPrompts[path]
	return prompt, ok
}

// RelayPaths lists every WebSocket endpoint path.
func RelayPaths() []string {
	out := make([]string, 0, len(promptRoutes))
	for _, route := range promptRoutes {
		out = append(out, route.Path)
	}
	return out
}

// PublicPaths lists the endpoints that also answer informational GETs.
func PublicPaths() []string {
	out := make([]string, 0, len(promptRoutes))
	for _, route := range promptRoutes {
		if route.Public {
			out = append(out, route.Path)
		}
	}
	return out
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
