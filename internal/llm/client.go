// Package llm talks to OpenAI-style chat-completion endpoints and layers
// caching, circuit breaking, and primary/secondary fallback on top. All
// outbound prompt text is PII-scrubbed before it leaves the process.
package llm

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
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls a single chat-completions endpoint with one model.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	hc      *http.Client
}

// NewClient builds a client for one model behind one base URL.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		hc:      &http.Client{},
	}
}

// Model returns the model name this client requests.
func (c *Client) Model() string { return c.model }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat request and returns the first choice's content.
// Transport-level failures are retried once; HTTP and API errors are not.
func (c *Client) Complete(ctx context.Context, msgs []Message, maxTokens int, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	text, err := c.send(ctx, body)
	if err != nil && isTransport(err) && ctx.Err() == nil {
		text, err = c.send(ctx, body)
	}
	return text, err
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", &transportError{err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat status %d for model %s", resp.StatusCode, c.model)
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("chat api error (%s): %s", cr.Error.Type, cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

// transportError marks a failure that happened before any HTTP response
// arrived, making a single retry safe.
type transportError struct{ err error }

func (e *transportError) Error() string { return "chat request: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransport(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}
