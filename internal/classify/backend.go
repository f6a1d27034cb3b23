package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenRouterConfig configures the chat-completions backend. The API is
// OpenAI-compatible, so this also covers vLLM and OpenAI itself.
type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string        // default: https://openrouter.ai/api/v1
	Timeout time.Duration // per-call HTTP timeout, default: 60s
	Referer string        // optional HTTP-Referer attribution header
	Title   string        // optional X-Title attribution header
}

func (c *OpenRouterConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Model == "" {
		c.Model = "meta-llama/llama-3.2-3b-instruct"
	}
}

// OpenRouter is the production Backend over the OpenRouter HTTP API.
type OpenRouter struct {
	cfg    OpenRouterConfig
	client *http.Client
}

// NewOpenRouter creates the backend client.
func NewOpenRouter(cfg OpenRouterConfig) *OpenRouter {
	cfg.defaults()
	return &OpenRouter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Submit posts one chat completion and returns the first choice's text.
func (o *OpenRouter) Submit(ctx context.Context, prompt, system string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("classify: marshal request: %w", err)
	}

	url := strings.TrimRight(o.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	if o.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", o.cfg.Referer)
	}
	if o.cfg.Title != "" {
		req.Header.Set("X-Title", o.cfg.Title)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classify: HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("classify: HTTP %d from %s: %s", resp.StatusCode, url, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("classify: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("classify: no choices returned from %s", url)
	}
	return result.Choices[0].Message.Content, nil
}
