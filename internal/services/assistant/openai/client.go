// Package openai is an HTTP client for the OpenAI chat-completions and
// moderations endpoints, scoped to what the assistant consumes.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/perriault/chatrelay/internal/services/assistant"
)

const defaultBaseURL = "https://api.openai.com"

// Config configures endpoint location, credentials, and HTTP behavior.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client calls the completion and moderation endpoints. It implements the
// assistant's CompletionClient and ModerationClient interfaces.
type Client struct {
	cfg Config
}

// New builds a configured Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Client{cfg: cfg}, nil
}

type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []assistant.Message `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatCompletion returns the top completion's text for the trimmed message
// list. Server-side failures (HTTP 5xx) are classified as transient and
// wrapped with assistant.ErrServiceUnavailable.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []assistant.Message, maxTokens int, temperature float64) (string, error) {
	body, err := c.post(ctx, "/v1/chat/completions", chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	var payload chatCompletionResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return payload.Choices[0].Message.Content, nil
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

// Moderation returns the category flags for the first moderation result.
func (c *Client) Moderation(ctx context.Context, input string) (map[string]bool, error) {
	body, err := c.post(ctx, "/v1/moderations", moderationRequest{Input: input})
	if err != nil {
		return nil, err
	}

	var payload moderationResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode moderation response: %w", err)
	}
	if len(payload.Results) == 0 {
		return nil, fmt.Errorf("moderation response has no results")
	}
	return payload.Results[0].Categories, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Credential material is sent only as an Authorization header and is
	// never echoed in errors or response payloads.
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("request %s status %d: %s: %w", path, res.StatusCode, strings.TrimSpace(string(body)), assistant.ErrServiceUnavailable)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return nil, fmt.Errorf("read error body: %w", err)
		}
		return nil, fmt.Errorf("request %s status %d: %s", path, res.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
