package wachat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/logging"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.PlatformConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Instance:   "main",
		TimeoutMs:  2000,
		MaxRetries: 2,
	}, logging.New(nil, "silent"))
}

func TestSendText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status":"PENDING"}`))
	}))

	err := c.SendText(context.Background(), "5491122334455", "Hola!")
	require.NoError(t, err)
	assert.Equal(t, "/message/sendText/main", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "5491122334455", gotBody["number"])
	assert.Equal(t, "Hola!", gotBody["text"])
}

func TestSendImage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))

	err := c.SendImage(context.Background(), "549111", "https://x/ps5.jpg", "PlayStation 5")
	require.NoError(t, err)
	assert.Equal(t, "/message/sendMedia/main", gotPath)
	assert.Equal(t, "image", gotBody["mediatype"])
	assert.Equal(t, "https://x/ps5.jpg", gotBody["media"])
	assert.Equal(t, "PlayStation 5", gotBody["caption"])
}

func TestSendPresence(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))

	err := c.SendPresence(context.Background(), "549111", PresenceComposing, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "/chat/sendPresence/main", gotPath)
	assert.Equal(t, "composing", gotBody["presence"])
	assert.Equal(t, float64(3000), gotBody["delay"])
}

func TestSendText_RetriesOn5xx(t *testing.T) {
	calls := 0
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))

	err := c.SendText(context.Background(), "549111", "retry me")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSendText_NoRetryOn4xx(t *testing.T) {
	calls := 0
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"number is required"}`))
	}))

	err := c.SendText(context.Background(), "", "no number")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "number is required")
	assert.Equal(t, 1, calls)
}

func TestCreateInstance(t *testing.T) {
	var gotBody map[string]any
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instance/create", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"instance":{"state":"created"}}`))
	}))

	data, err := c.CreateInstance(context.Background(), "https://bot.example.com/webhooks/wa", "s3cret", true)
	require.NoError(t, err)
	assert.NotNil(t, data["instance"])

	assert.Equal(t, "main", gotBody["instanceName"])
	webhook, ok := gotBody["webhook"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://bot.example.com/webhooks/wa", webhook["url"])
	headers, ok := webhook["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "s3cret", headers["x-bot-secret"])
}

func TestConnect(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/instance/connect/main", r.URL.Path)
		w.Write([]byte(`{"state":"open"}`))
	}))

	data, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "open", data["state"])
}
