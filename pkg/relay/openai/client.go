// Package openai implements the chat-completions streaming backend: a thin
// HTTP client plus the incremental SSE decoder that turns response bytes into
// content-delta tokens.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kaiwa-labs/kaiwa/pkg/relay/chat"
)

const (
	// DefaultBaseURL is the default chat-completions API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when the config does not name one.
	DefaultModel = "gpt-4o-mini"

	defaultTemperature = 0.7
	defaultMaxTokens   = 150

	maxErrorBodyBytes = 4 << 10
)

type chatRequest struct {
	Model       string      `json:"model"`
	Messages    []chat.Turn `json:"messages"`
	Stream      bool        `json:"stream"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens"`
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: api error: status %d", e.Status)
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

func NewClient(cfg Config) *Client {
	c := &Client{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.temperature == 0 {
		c.temperature = defaultTemperature
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// StreamChat opens a streaming completion over the given history and returns
// the raw response body. The caller owns the body and feeds it to a Decoder.
// A non-2xx status is returned as *APIError and the body is closed.
func (c *Client) StreamChat(ctx context.Context, history []chat.Turn) (io.ReadCloser, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    history,
		Stream:      true,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatCompletionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &APIError{Status: resp.StatusCode, Body: string(errBody)}
	}

	return resp.Body, nil
}

func (c *Client) chatCompletionsURL() string {
	return strings.TrimRight(c.baseURL, "/") + "/chat/completions"
}
