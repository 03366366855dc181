package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crucible/internal/services"
)

const (
	defaultBaseURL     = "https://api.deepseek.com"
	defaultModel       = "deepseek-chat"
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 90 * time.Second
)

// Client wraps a chat-completions style reasoning API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Client) {
		model = strings.TrimSpace(model)
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs a reasoning API client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// Request is one chat completion exchange. When JSONResponse is set the API
// is asked to return a single JSON object.
type Request struct {
	System       string
	User         string
	JSONResponse bool
}

// Complete sends the exchange and returns the assistant's message content.
// Failures carry the services error markers so callers can tell transient
// conditions (retryable) from permanent ones.
func (c *Client) Complete(ctx context.Context, request Request) (string, error) {
	if strings.TrimSpace(request.User) == "" {
		return "", services.Wrap(services.ErrValidation, "", "reasoner complete", "user prompt required", nil)
	}
	if c.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "", "reasoner complete", "api key required", nil)
	}

	endpoint, err := url.JoinPath(c.baseURL, "/chat/completions")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "", "reasoner complete", "build url", err)
	}
	encoded, err := json.Marshal(buildChatRequest(c.model, request))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "", "reasoner complete", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "", "reasoner complete", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "", "reasoner complete", "read body", err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return "", err
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "reasoner complete", "decode response", err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "reasoner complete",
			fmt.Sprintf("api error: %s", strings.TrimSpace(completion.Error.Message)), nil)
	}
	if len(completion.Choices) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "", "reasoner complete", "empty choices", nil)
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", services.Wrap(services.ErrExternalTool, "", "reasoner complete", "empty content", nil)
	}
	return content, nil
}

// classifyTransportError separates timeouts from other transport failures.
// Both are retryable.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "", "reasoner complete", "request timed out", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "", "reasoner complete", "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "", "reasoner complete", "request failed", err)
}

// classifyStatus maps HTTP status codes to error markers: 429 and 5xx are
// transient, everything else in 4xx is permanent.
func classifyStatus(status int, body []byte) error {
	if status < http.StatusMultipleChoices {
		return nil
	}
	detail := fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body)))
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return services.Wrap(services.ErrTransient, "", "reasoner complete", detail, nil)
	}
	return services.Wrap(services.ErrExternalTool, "", "reasoner complete", detail, nil)
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func buildChatRequest(model string, request Request) chatCompletionRequest {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(request.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: request.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: request.User})
	out := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0,
	}
	if request.JSONResponse {
		out.ResponseFormat = map[string]string{"type": jsonResponseType}
	}
	return out
}
