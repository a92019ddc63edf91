// Package insights asks a chat-completions provider for a short, friendly
// read of the household's shower habits.
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/waterhq/internal/analytics"
)

const (
	DefaultURL   = "https://api.openai.com/v1/chat/completions"
	DefaultModel = "gpt-4o-mini"

	maxTokens = 400
)

var (
	ErrNotConfigured = errors.New("insights provider not configured")
	ErrEmptyAnswer   = errors.New("insights provider returned no answer")
)

const systemPrompt = `You look at a household's shower statistics and reply with three to five short, ` +
	`light-hearted observations and one practical tip for sharing the bathroom. ` +
	`Plain text, one observation per line, no markdown headings.`

type Config struct {
	URL    string
	APIKey string
	Model  string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Ask sends the rendered summary and returns the provider's answer.
func (c *Client) Ask(ctx context.Context, summary *analytics.Summary) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	prompt, err := Prompt(summary)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("insights request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("insights: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var res completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	answer := strings.TrimSpace(res.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

// Prompt renders a summary as the user message. Only aggregates are sent,
// never individual log entries.
func Prompt(s *analytics.Summary) (string, error) {
	if s == nil {
		return "", errors.New("no showers to describe")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return fmt.Sprintf("Shower statistics for the last %d days. Hours are 0-23, weekdays 0 (Sunday) to 6.\n\n%s", s.Days, data), nil
}
