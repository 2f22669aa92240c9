package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/wire"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   []byte
}

// newTestServer records every request and replies with the given status and
// body.
func newTestServer(t *testing.T, status int, responseBody string) (*httptest.Server, *recordedRequest) {
	t.Helper()

	recorded := &recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorded.method = r.Method
		recorded.path = r.URL.Path
		recorded.auth = r.Header.Get("Authorization")
		recorded.body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(responseBody))
	}))
	t.Cleanup(server.Close)
	return server, recorded
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := NewClient().
		WithBaseURL(baseURL).
		WithAuthToken("sekrit").
		Build()
	require.NoError(t, err)
	return client
}

func TestActionsHitTheRightEndpoints(t *testing.T) {
	for _, tc := range []struct {
		name   string
		call   func(ctx context.Context, c *Client) error
		method string
		path   string
	}{
		{"start bot", func(ctx context.Context, c *Client) error { return c.StartBot(ctx, "greeter") }, http.MethodPost, "/api/bots/greeter/start"},
		{"stop bot", func(ctx context.Context, c *Client) error { return c.StopBot(ctx, "greeter") }, http.MethodPost, "/api/bots/greeter/stop"},
		{"restart bot", func(ctx context.Context, c *Client) error { return c.RestartBot(ctx, "greeter") }, http.MethodPost, "/api/bots/greeter/restart"},
		{"fetch slot", func(ctx context.Context, c *Client) error { return c.FetchSlot(ctx, "main") }, http.MethodPost, "/api/repos/main/fetch"},
		{"pull slot", func(ctx context.Context, c *Client) error { return c.PullSlot(ctx, "main") }, http.MethodPost, "/api/repos/main/pull"},
		{"start dream", func(ctx context.Context, c *Client) error { return c.StartDream(ctx, "sd-xl") }, http.MethodPost, "/api/dreams/sd-xl/start"},
		{"stop dream", func(ctx context.Context, c *Client) error { return c.StopDream(ctx, "sd-xl") }, http.MethodPost, "/api/dreams/sd-xl/stop"},
		{"publish post", func(ctx context.Context, c *Client) error { return c.PublishPost(ctx, "hello") }, http.MethodPost, "/api/blog/posts/hello/publish"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			server, recorded := newTestServer(t, http.StatusOK, `{}`)
			client := newTestClient(t, server.URL)

			require.NoError(t, tc.call(context.Background(), client))
			assert.Equal(t, tc.method, recorded.method)
			assert.Equal(t, tc.path, recorded.path)
			assert.Equal(t, "Bearer sekrit", recorded.auth)
		})
	}
}

func TestCheckoutSendsRef(t *testing.T) {
	server, recorded := newTestServer(t, http.StatusOK, `{}`)
	client := newTestClient(t, server.URL)

	require.NoError(t, client.CheckoutSlot(context.Background(), "main", "release/1.2"))

	assert.Equal(t, http.MethodPost, recorded.method)
	assert.Equal(t, "/api/repos/main/checkout", recorded.path)

	var body map[string]string
	require.NoError(t, json.Unmarshal(recorded.body, &body))
	assert.Equal(t, map[string]string{"ref": "release/1.2"}, body)
}

func TestCreateAndUpdatePost(t *testing.T) {
	draft := PostDraft{Slug: "hello", Title: "Hello", Body: "# Hi\n"}

	t.Run("create", func(t *testing.T) {
		server, recorded := newTestServer(t, http.StatusCreated, `{}`)
		client := newTestClient(t, server.URL)

		require.NoError(t, client.CreateDraft(context.Background(), draft))
		assert.Equal(t, http.MethodPost, recorded.method)
		assert.Equal(t, "/api/blog/posts", recorded.path)

		var sent PostDraft
		require.NoError(t, json.Unmarshal(recorded.body, &sent))
		assert.Equal(t, draft, sent)
	})

	t.Run("update", func(t *testing.T) {
		server, recorded := newTestServer(t, http.StatusOK, `{}`)
		client := newTestClient(t, server.URL)

		require.NoError(t, client.UpdatePost(context.Background(), "hello", draft))
		assert.Equal(t, http.MethodPut, recorded.method)
		assert.Equal(t, "/api/blog/posts/hello", recorded.path)
	})
}

func TestErrorResponsesBecomeTypedErrors(t *testing.T) {
	server, _ := newTestServer(t, http.StatusNotFound, `{"error":"no such bot"}`)
	client := newTestClient(t, server.URL)

	err := client.StartBot(context.Background(), "ghost")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "no such bot", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "no such bot")
}

func TestErrorWithoutBodyUsesStatusText(t *testing.T) {
	server, _ := newTestServer(t, http.StatusServiceUnavailable, ``)
	client := newTestClient(t, server.URL)

	err := client.StopBot(context.Background(), "greeter")

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), apiErr.Message)
}

func TestRefreshDecodesTopicPayload(t *testing.T) {
	server, recorded := newTestServer(t, http.StatusOK, `{"hostname":"atlas","cpu_pct":12.5}`)
	client := newTestClient(t, server.URL)

	update, err := client.Refresh(context.Background(), "server")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, recorded.method)
	assert.Equal(t, "/api/refresh/server", recorded.path)

	serverUpdate, ok := update.(wire.ServerUpdate)
	require.True(t, ok, "expected a ServerUpdate, got %T", update)
	assert.Equal(t, "atlas", serverUpdate.Hostname)
}

func TestRefreshRejectsUndecodableBody(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `"just a string"`)
	client := newTestClient(t, server.URL)

	_, err := client.Refresh(context.Background(), "server")
	require.Error(t, err)

	var parseErr *wire.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestClientBuilderValidation(t *testing.T) {
	_, err := NewClient().Build()
	assert.ErrorContains(t, err, "base URL is required")

	client, err := NewClient().WithBaseURL("https://ops.example.net/").Build()
	require.NoError(t, err)
	assert.Equal(t, "https://ops.example.net", client.baseURL)
}
