package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"time"
)

const (
	defaultBaseURL    = "https://api.anthropic.com"
	messagesPath      = "/v1/messages"
	defaultAPIVersion = "2023-06-01"
	defaultTimeout    = 90 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = 1 * time.Second
	maxRetryDelay     = 30 * time.Second
)

// Sender issues one Messages API call. Both the HTTP Client and the Bedrock
// backend satisfy it, and the Conversation engine depends on nothing else.
type Sender interface {
	Messages(ctx context.Context, req *CreateMessageRequest) (*Response, error)
}

// SendFunc is the signature for the core send call and middleware next functions.
type SendFunc func(ctx context.Context, req *CreateMessageRequest) (*Response, error)

// Middleware wraps a Messages call.
type Middleware func(ctx context.Context, req *CreateMessageRequest, next SendFunc) (*Response, error)

// Client talks to the Anthropic Messages API over HTTP.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	oauth      bool
	headers    map[string]string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	middleware []Middleware
}

var _ Sender = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint, useful for proxies and tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithAPIVersion overrides the anthropic-version header value.
func WithAPIVersion(version string) ClientOption {
	return func(c *Client) { c.apiVersion = version }
}

// WithTimeout sets the per-request timeout. Ignored when WithHTTPClient is
// also given.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient supplies a custom *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets how many times a retryable failure is retried after the
// initial attempt.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryDelay sets the initial backoff delay. The delay doubles per
// attempt with jitter, capped at 30s.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = d }
}

// WithOAuth switches authentication from the x-api-key header to an
// Authorization Bearer token. The token is the value passed to NewClient.
func WithOAuth() ClientOption {
	return func(c *Client) { c.oauth = true }
}

// WithHeader adds a custom header to every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.headers[key] = value }
}

// WithHeaders adds multiple custom headers to every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithMiddleware adds middleware to the client. The first registered
// middleware is outermost; retries happen inside the chain.
func WithMiddleware(m ...Middleware) ClientOption {
	return func(c *Client) { c.middleware = append(c.middleware, m...) }
}

// NewClient creates a Client with the given API key (or Bearer token when
// combined with WithOAuth) and options.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		apiVersion: defaultAPIVersion,
		headers:    make(map[string]string),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return c
}

// Messages sends a request and returns the response. Rate limits, server
// errors, and transport failures are retried with exponential backoff up to
// the configured bound; every other error surfaces immediately.
func (c *Client) Messages(ctx context.Context, req *CreateMessageRequest) (*Response, error) {
	if c.apiKey == "" {
		return nil, &Error{Kind: ErrConfig, Message: "api key is required"}
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// Wrap with middleware (first registered = outermost)
	fn := c.sendWithRetry
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := fn
		fn = func(ctx context.Context, req *CreateMessageRequest) (*Response, error) {
			return mw(ctx, req, next)
		}
	}

	return fn(ctx, req)
}

func validateRequest(req *CreateMessageRequest) error {
	if req.Model == "" {
		return callerError("model is required")
	}
	if req.MaxTokens <= 0 {
		return callerError("max_tokens must be positive")
	}
	return nil
}

func (c *Client) sendWithRetry(ctx context.Context, req *CreateMessageRequest) (*Response, error) {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &Error{Kind: ErrTransport, Message: "retry canceled", Cause: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			delay += time.Duration(rand.Int63n(int64(delay)/10 + 1))
		}

		resp, err := c.sendOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var apiErr *Error
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) sendOnce(ctx context.Context, req *CreateMessageRequest) (*Response, error) {
	// Streaming is not supported; never let it leak onto the wire.
	if req.Stream {
		plain := *req
		plain.Stream = false
		req = &plain
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: ErrCaller, Message: "encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrConfig, Message: "build request", Cause: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Anthropic-Version", c.apiVersion)
	if c.oauth {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	} else {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "http request failed", Cause: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "read response body", Cause: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, classifyStatus(httpResp.StatusCode, data)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &Error{Kind: ErrDecode, Message: "decode response", Cause: err, Raw: data}
	}
	return &resp, nil
}

// SendSimpleMessage sends a one-off text prompt and returns the concatenated
// text of the reply. A reply without any text block is a decode error.
func (c *Client) SendSimpleMessage(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	resp, err := c.Messages(ctx, NewSimpleRequest(model, prompt, maxTokens))
	if err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == BlockTypeText {
			return resp.Text(), nil
		}
	}
	return "", &Error{Kind: ErrDecode, Message: "response contains no text content"}
}
