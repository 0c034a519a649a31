// Package completion provides the HTTP client for the language-model
// completion service.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/parleylabs/parley/logger"
	"github.com/parleylabs/parley/metrics"
	perrors "github.com/parleylabs/parley/pkg/errors"
	"github.com/parleylabs/parley/pkg/httputil"
	"github.com/parleylabs/parley/types"
)

// HTTP constants
const (
	chatCompletionsPath = "/chat/completions"
	contentTypeHeader   = "Content-Type"
	applicationJSON     = "application/json"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// Request defaults.
const (
	defaultModel       = "gpt-4o-mini"
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultTemperature = 0.7
	defaultMaxTokens   = 150
)

// Client produces an assistant reply for a validated message history.
type Client interface {
	Complete(ctx context.Context, messages []types.Message) (string, error)
}

// HTTPClient implements Client against an OpenAI-compatible
// chat-completions endpoint.
type HTTPClient struct {
	model      string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithModel sets the completion model. Default is gpt-4o-mini.
func WithModel(model string) HTTPOption {
	return func(c *HTTPClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL sets the API base URL. Default is the OpenAI endpoint.
func WithBaseURL(baseURL string) HTTPOption {
	return func(c *HTTPClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithAPIKey sets the API key. Default is the COMPLETION_API_KEY
// environment variable.
func WithAPIKey(key string) HTTPOption {
	return func(c *HTTPClient) {
		if key != "" {
			c.apiKey = key
		}
	}
}

// WithTimeout sets the HTTP timeout for completion calls.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.httpClient = httputil.NewHTTPClient(d)
		}
	}
}

// NewHTTPClient creates a completion client.
func NewHTTPClient(opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		apiKey:     os.Getenv("COMPLETION_API_KEY"),
		httpClient: httputil.NewHTTPClient(httputil.DefaultCompletionTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Complete sends the message history to the completion service and returns
// the assistant reply text.
func (c *HTTPClient) Complete(ctx context.Context, messages []types.Message) (string, error) {
	start := time.Now()
	reply, err := c.complete(ctx, messages)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordCompletionRequest(c.model, status, time.Since(start).Seconds())
	return reply, err
}

func (c *HTTPClient) complete(ctx context.Context, messages []types.Message) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    make([]chatMessage, 0, len(messages)),
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	data, err := json.Marshal(&reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	logger.CompletionCall(c.model, len(messages))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+chatCompletionsPath, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set(contentTypeHeader, applicationJSON)
	req.Header.Set(authorizationHeader, bearerPrefix+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.CompletionError(c.model, err)
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse completion response (status %d): %w", resp.StatusCode, err)
	}

	if parsed.Error != nil {
		err := perrors.Upstream("completion", "Complete", resp.StatusCode,
			fmt.Errorf("completion API error (%s): %s", parsed.Error.Type, parsed.Error.Message))
		logger.CompletionError(c.model, err)
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		err := perrors.Upstream("completion", "Complete", resp.StatusCode, nil)
		logger.CompletionError(c.model, err)
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response contained no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
