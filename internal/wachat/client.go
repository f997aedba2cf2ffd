// Package wachat is the REST client for the WhatsApp gateway that
// actually delivers messages (sendText, sendMedia, sendPresence).
package wachat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/logging"
)

// Presence mirrors the gateway's presence enum.
type Presence string

const (
	PresenceComposing   Presence = "composing"
	PresencePaused      Presence = "paused"
	PresenceAvailable   Presence = "available"
	PresenceUnavailable Presence = "unavailable"
)

// Sender is the delivery surface the scheduler needs.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
	SendImage(ctx context.Context, to, imageURL, caption string) error
	SendPresence(ctx context.Context, to string, presence Presence, delay time.Duration) error
}

// Client talks to one gateway instance. Transient failures (429, 5xx)
// retry with backoff; 4xx fails immediately.
type Client struct {
	baseURL  string
	apiKey   string
	instance string
	http     *retryablehttp.Client
	log      *logging.Logger
}

func NewClient(cfg config.PlatformConfig, log *logging.Logger) *Client {
	sub := log.Sub("wachat")

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 350 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	rc.Logger = &retryLogger{log: sub}

	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		instance: cfg.Instance,
		http:     rc,
		log:      sub,
	}
}

// Instance returns the gateway instance name this client sends through.
func (c *Client) Instance() string { return c.instance }

func (c *Client) SendText(ctx context.Context, to, text string) error {
	body := map[string]any{"number": to, "text": text}
	_, err := c.post(ctx, "/message/sendText/"+url.PathEscape(c.instance), body)
	if err != nil {
		return fmt.Errorf("sendText: %w", err)
	}
	return nil
}

func (c *Client) SendImage(ctx context.Context, to, imageURL, caption string) error {
	body := map[string]any{
		"number":    to,
		"mediatype": "image",
		"media":     imageURL,
	}
	if caption != "" {
		body["caption"] = caption
	}
	_, err := c.post(ctx, "/message/sendMedia/"+url.PathEscape(c.instance), body)
	if err != nil {
		return fmt.Errorf("sendMedia: %w", err)
	}
	return nil
}

// SendPresence sets typing state on the conversation. Callers treat
// this as best effort.
func (c *Client) SendPresence(ctx context.Context, to string, presence Presence, delay time.Duration) error {
	body := map[string]any{
		"number":   to,
		"presence": string(presence),
		"delay":    max(0, delay.Milliseconds()),
	}
	_, err := c.post(ctx, "/chat/sendPresence/"+url.PathEscape(c.instance), body)
	if err != nil {
		return fmt.Errorf("sendPresence: %w", err)
	}
	return nil
}

// CreateInstance registers the instance on the gateway with the webhook
// pointed back at us, subscribed to message upserts only.
func (c *Client) CreateInstance(ctx context.Context, webhookURL, webhookSecret string, withQR bool) (map[string]any, error) {
	body := map[string]any{
		"instanceName": c.instance,
		"integration":  "WHATSAPP-BAILEYS",
		"qrcode":       withQR,
		"groupsIgnore": true,
		"readMessages": true,
		"webhook": map[string]any{
			"enabled":  true,
			"url":      webhookURL,
			"events":   []string{"MESSAGES_UPSERT"},
			"headers":  map[string]string{"x-bot-secret": webhookSecret},
			"byEvents": false,
			"base64":   false,
		},
	}
	data, err := c.post(ctx, "/instance/create", body)
	if err != nil {
		return nil, fmt.Errorf("createInstance: %w", err)
	}
	return data, nil
}

// Connect asks the gateway for the instance connection state (and QR
// payload while pairing).
func (c *Client) Connect(ctx context.Context) (map[string]any, error) {
	req, err := retryablehttp.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+"/instance/connect/"+url.PathEscape(c.instance), nil,
	)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	data, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *retryablehttp.Request) (map[string]any, error) {
	req.Header.Set("content-type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var data map[string]any
	if len(raw) > 0 {
		// Non-JSON bodies are tolerated, the status code decides.
		_ = json.Unmarshal(raw, &data)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, apiMessage(data, raw))
	}
	return data, nil
}

func apiMessage(data map[string]any, raw []byte) string {
	if msg, ok := data["message"].(string); ok && msg != "" {
		return msg
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}

// retryLogger adapts the retry client's leveled logging onto ours.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, kv ...any) { l.log.Error().Fields(kv).Msg(msg) }
func (l *retryLogger) Warn(msg string, kv ...any)  { l.log.Warn().Fields(kv).Msg(msg) }
func (l *retryLogger) Info(msg string, kv ...any)  { l.log.Debug().Fields(kv).Msg(msg) }
func (l *retryLogger) Debug(msg string, kv ...any) { l.log.Debug().Fields(kv).Msg(msg) }
