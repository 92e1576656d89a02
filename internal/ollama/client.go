package ollama

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

const DefaultBaseURL = "http://localhost:11434"

// Client calls the Ollama HTTP API. Only non-streaming calls are used.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Stats records latency of chat and generate calls.
	Stats *CallStats
}

// NewClient creates a client for the Ollama server at baseURL. A zero
// timeout leaves calls bounded only by the caller's context.
func NewClient(baseURL string, timeout time.Duration, stats *CallStats) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if stats == nil {
		stats = NewCallStats(time.Hour)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		Stats:      stats,
	}
}

// Model is one entry of the local model list.
type Model struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the model parameters this service sets.
type Options struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

// ChatResponse is the final (non-streamed) chat reply. Message is nil when
// the server omitted it.
type ChatResponse struct {
	Model      string   `json:"model"`
	Message    *Message `json:"message"`
	Done       bool     `json:"done"`
	DoneReason string   `json:"done_reason,omitempty"`
}

// Content returns the reply text and whether any was present.
func (r *ChatResponse) Content() (string, bool) {
	if r == nil || r.Message == nil || r.Message.Content == "" {
		return "", false
	}
	return r.Message.Content, true
}

type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	System  string   `json:"system,omitempty"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// CreateRequest registers a model derived from a base model with a fixed
// system prompt.
type CreateRequest struct {
	Model  string `json:"model"`
	From   string `json:"from"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

// StatusError is a non-2xx reply from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama status %d", e.StatusCode)
	}
	return fmt.Sprintf("ollama status %d: %s", e.StatusCode, truncate(e.Message, 200))
}

// ListModels returns the models registered on the server.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var resp struct {
		Models []Model `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return resp.Models, nil
}

// Chat sends a message history and returns the reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	start := time.Now()
	var resp ChatResponse
	err := c.do(ctx, http.MethodPost, "/api/chat", req, &resp)
	c.Stats.Record(time.Since(start), err != nil)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return &resp, nil
}

// Generate completes a single prompt with an optional system message.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false
	start := time.Now()
	var resp GenerateResponse
	err := c.do(ctx, http.MethodPost, "/api/generate", req, &resp)
	c.Stats.Record(time.Since(start), err != nil)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return &resp, nil
}

// Create registers a model on the server.
func (c *Client) Create(ctx context.Context, req CreateRequest) error {
	req.Stream = false
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/create", req, &resp); err != nil {
		return fmt.Errorf("create model %s: %w", req.Model, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls {"error": "..."} out of a reply, falling back to the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
