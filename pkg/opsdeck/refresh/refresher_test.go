package refresh

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/api"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/wire"
)

func newTestRefresher(t *testing.T, baseURL string, handler Handler) *Refresher {
	t.Helper()

	client, err := api.NewClient().WithBaseURL(baseURL).Build()
	require.NoError(t, err)

	refresher, err := NewRefresher().
		WithClient(client).
		WithHandler(handler).
		WithTimeout(2 * time.Second).
		Build()
	require.NoError(t, err)
	return refresher
}

func TestRefresherBuilderValidation(t *testing.T) {
	_, err := NewRefresher().Build()
	assert.ErrorContains(t, err, "API client is required")

	client, err := api.NewClient().WithBaseURL("https://ops.example.net").Build()
	require.NoError(t, err)

	_, err = NewRefresher().WithClient(client).Build()
	assert.ErrorContains(t, err, "handler is required")
}

func TestAddRejectsBadInput(t *testing.T) {
	refresher := newTestRefresher(t, "https://ops.example.net", func(wire.Update) {})

	assert.ErrorContains(t, refresher.Add("", "@every 1s"), "topic is required")
	assert.ErrorContains(t, refresher.Add("server", "not a schedule"), "invalid schedule")
}

func TestAddReplacesExistingSchedule(t *testing.T) {
	refresher := newTestRefresher(t, "https://ops.example.net", func(wire.Update) {})

	require.NoError(t, refresher.Add("server", "@every 1h"))
	require.NoError(t, refresher.Add("server", "@every 2h"))
	assert.Len(t, refresher.entries, 1)
	assert.Len(t, refresher.cron.Entries(), 1)

	refresher.Remove("server")
	refresher.Remove("server") // double remove is fine
	assert.Empty(t, refresher.entries)
	assert.Empty(t, refresher.cron.Entries())
}

func TestScheduledFetchDeliversUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/refresh/server", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hostname":"atlas","cpu_pct":12.5}`))
	}))
	defer server.Close()

	updates := make(chan wire.Update, 16)
	refresher := newTestRefresher(t, server.URL, func(update wire.Update) {
		updates <- update
	})

	require.NoError(t, refresher.Add("server", "@every 1s"))
	refresher.Start()
	defer refresher.Stop()

	select {
	case update := <-updates:
		serverUpdate, ok := update.(wire.ServerUpdate)
		require.True(t, ok, "expected a ServerUpdate, got %T", update)
		assert.Equal(t, "atlas", serverUpdate.Hostname)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a scheduled fetch")
	}
}

func TestFailedFetchKeepsScheduleRunning(t *testing.T) {
	calls := make(chan struct{}, 16)
	fail := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
		if fail {
			fail = false
			http.Error(w, `{"error":"backend down"}`, http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"hostname":"atlas"}`))
	}))
	defer server.Close()

	updates := make(chan wire.Update, 16)
	refresher := newTestRefresher(t, server.URL, func(update wire.Update) {
		updates <- update
	})

	require.NoError(t, refresher.Add("server", "@every 1s"))
	refresher.Start()
	defer refresher.Stop()

	// First fetch fails, the schedule survives, the second succeeds.
	select {
	case <-updates:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an update after a failed fetch")
	}
	assert.GreaterOrEqual(t, len(calls), 1)
}
