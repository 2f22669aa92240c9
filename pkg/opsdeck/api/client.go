// Package api is the typed REST client for the management API. It covers
// the imperative actions of the console (bots, repo slots, dream pods,
// blog) and the one-shot force-refresh fetch that bypasses the live
// channel.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/wire"
)

// Error is a failed management API call.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Client talks to the management API. Build one with NewClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
	logger     *zap.Logger
}

// PostDraft is the request body for creating or updating a blog post.
type PostDraft struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// StartBot starts a managed bot process.
func (c *Client) StartBot(ctx context.Context, name string) error {
	return c.post(ctx, "/api/bots/"+url.PathEscape(name)+"/start", nil)
}

// StopBot stops a managed bot process.
func (c *Client) StopBot(ctx context.Context, name string) error {
	return c.post(ctx, "/api/bots/"+url.PathEscape(name)+"/stop", nil)
}

// RestartBot restarts a managed bot process.
func (c *Client) RestartBot(ctx context.Context, name string) error {
	return c.post(ctx, "/api/bots/"+url.PathEscape(name)+"/restart", nil)
}

// FetchSlot runs git fetch for a repository slot.
func (c *Client) FetchSlot(ctx context.Context, slot string) error {
	return c.post(ctx, "/api/repos/"+url.PathEscape(slot)+"/fetch", nil)
}

// PullSlot runs git pull for a repository slot.
func (c *Client) PullSlot(ctx context.Context, slot string) error {
	return c.post(ctx, "/api/repos/"+url.PathEscape(slot)+"/pull", nil)
}

// CheckoutSlot checks out a ref in a repository slot.
func (c *Client) CheckoutSlot(ctx context.Context, slot, ref string) error {
	body := map[string]string{"ref": ref}
	return c.post(ctx, "/api/repos/"+url.PathEscape(slot)+"/checkout", body)
}

// StartDream starts a GPU worker pod.
func (c *Client) StartDream(ctx context.Context, name string) error {
	return c.post(ctx, "/api/dreams/"+url.PathEscape(name)+"/start", nil)
}

// StopDream stops a GPU worker pod.
func (c *Client) StopDream(ctx context.Context, name string) error {
	return c.post(ctx, "/api/dreams/"+url.PathEscape(name)+"/stop", nil)
}

// CreateDraft creates a new unpublished blog post.
func (c *Client) CreateDraft(ctx context.Context, draft PostDraft) error {
	return c.post(ctx, "/api/blog/posts", draft)
}

// UpdatePost updates an existing blog post.
func (c *Client) UpdatePost(ctx context.Context, slug string, draft PostDraft) error {
	return c.do(ctx, http.MethodPut, "/api/blog/posts/"+url.PathEscape(slug), draft, nil)
}

// PublishPost publishes a blog post.
func (c *Client) PublishPost(ctx context.Context, slug string) error {
	return c.post(ctx, "/api/blog/posts/"+url.PathEscape(slug)+"/publish", nil)
}

// Refresh fetches the current state of a topic directly, bypassing the
// live channel. The response body has the same shape as a push frame.
func (c *Client) Refresh(ctx context.Context, topic string) (wire.Update, error) {
	var frame json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/refresh/"+url.PathEscape(topic), nil, &frame); err != nil {
		return nil, err
	}
	update, err := wire.Decode(topic, frame)
	if err != nil {
		return nil, fmt.Errorf("refresh for topic %q returned an undecodable body: %w", topic, err)
	}
	return update, nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// do performs one request. A non-2xx response is returned as *Error with
// the server-provided message when the body carries one.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	c.logger.Debug("Management API request",
		zap.String("method", method),
		zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFrom(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

func (c *Client) errorFrom(resp *http.Response) error {
	apiErr := &Error{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	}

	c.logger.Warn("Management API call failed",
		zap.Int("status", apiErr.StatusCode),
		zap.String("message", apiErr.Message))
	return apiErr
}

// ClientBuilder provides a fluent interface for building API clients.
type ClientBuilder struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
	logger     *zap.Logger
}

// NewClient creates a new API client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		logger: zap.NewNop(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithBaseURL sets the management API base URL.
func (b *ClientBuilder) WithBaseURL(baseURL string) *ClientBuilder {
	b.baseURL = strings.TrimSuffix(baseURL, "/")
	return b
}

// WithHTTPClient sets a custom HTTP client.
func (b *ClientBuilder) WithHTTPClient(client *http.Client) *ClientBuilder {
	if client != nil {
		b.httpClient = client
	}
	return b
}

// WithAuthToken sets the bearer token sent with every request.
func (b *ClientBuilder) WithAuthToken(token string) *ClientBuilder {
	b.authToken = token
	return b
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// IsValid checks that all required configuration is present.
func (b *ClientBuilder) IsValid() error {
	if b.baseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	return nil
}

// Build creates the API client.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    b.baseURL,
		httpClient: b.httpClient,
		authToken:  b.authToken,
		logger:     b.logger,
	}, nil
}
