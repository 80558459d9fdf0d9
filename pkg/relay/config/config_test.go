package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Fatalf("model=%q", cfg.OpenAIModel)
	}
	if cfg.WSPingInterval != 20*time.Second {
		t.Fatalf("ping interval=%v", cfg.WSPingInterval)
	}
	for _, path := range RelayPaths() {
		prompt, ok := cfg.SystemPromptFor(path)
		if !ok {
			t.Fatalf("no prompt for %q", path)
		}
		if prompt != DefaultSystemPrompt {
			t.Fatalf("prompt for %q=%q, want default", path, prompt)
		}
	}
}

func TestLoadFromEnv_PromptOverride(t *testing.T) {
	t.Setenv("SYSTEM_PROMPT_FAQ", "よくある質問に答えてください。")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	prompt, _ := cfg.SystemPromptFor("/faq")
	if prompt != "よくある質問に答えてください。" {
		t.Fatalf("prompt=%q", prompt)
	}
	other, _ := cfg.SystemPromptFor("/order")
	if other != DefaultSystemPrompt {
		t.Fatalf("order prompt=%q, want default", other)
	}
}

func TestLoadFromEnv_MissingAPIKeyIsNotFatal(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.OpenAIAPIKey != "" {
		t.Fatalf("api key=%q, want empty", cfg.OpenAIAPIKey)
	}
}

func TestLoadFromEnv_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("KAIWA_WS_PING_INTERVAL", "not-a-duration")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.WSPingInterval != 20*time.Second {
		t.Fatalf("ping interval=%v, want default", cfg.WSPingInterval)
	}
}

func TestLoadFromEnv_WhitespaceAddrFallsBack(t *testing.T) {
	t.Setenv("KAIWA_ADDR", "   ")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr=%q, want default", cfg.Addr)
	}
}

func TestRelayPaths_CoverAllEndpoints(t *testing.T) {
	want := map[string]bool{
		"/faq":              true,
		"/translator-en-jp": true,
		"/translator-jp-en": true,
		"/order":            true,
		"/booking":          true,
	}
	paths := RelayPaths()
	if len(paths) != len(want) {
		t.Fatalf("paths=%v", paths)
	}
	for _, p := range paths {
		if !want[p] {
			t.Fatalf("unexpected path %q", p)
		}
	}
	pub := PublicPaths()
	if len(pub) != 3 {
		t.Fatalf("public paths=%v", pub)
	}
}
