// Package config loads and validates the wa-pro configuration.
package config

import "time"

// Config is the root configuration, loaded from YAML with WAPRO_* overrides.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Platform  PlatformConfig  `yaml:"platform,omitempty"`
	Humanizer HumanizerConfig `yaml:"humanizer,omitempty"`
	Bot       BotConfig       `yaml:"bot,omitempty"`
	Catalog   CatalogConfig   `yaml:"catalog,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// ServerConfig controls the webhook/admin HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	WebhookSecret  string   `yaml:"webhookSecret,omitempty"` // supports ${ENV} references
	AdminToken     string   `yaml:"adminToken,omitempty"`    // supports ${ENV} references
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// PlatformConfig points at the chat platform's REST API.
type PlatformConfig struct {
	BaseURL    string `yaml:"baseUrl"`
	APIKey     string `yaml:"apiKey,omitempty"` // supports ${ENV} references
	Instance   string `yaml:"instance"`
	TimeoutMs  int    `yaml:"timeoutMs,omitempty"`
	MaxRetries int    `yaml:"maxRetries,omitempty"`
}

// HumanizerConfig tunes the debounce window and the simulated typing delay.
// All values are milliseconds.
type HumanizerConfig struct {
	DebounceMinMs     int `yaml:"debounceMinMs,omitempty"`
	DebounceMaxMs     int `yaml:"debounceMaxMs,omitempty"`
	DelayBaseMinMs    int `yaml:"delayBaseMinMs,omitempty"`
	DelayBaseMaxMs    int `yaml:"delayBaseMaxMs,omitempty"`
	DelayPerCharMinMs int `yaml:"delayPerCharMinMs,omitempty"`
	DelayPerCharMaxMs int `yaml:"delayPerCharMaxMs,omitempty"`
}

// BotConfig tunes reply policy.
type BotConfig struct {
	CooldownMs         int      `yaml:"cooldownMs,omitempty"`
	FallbackCooldownMs int      `yaml:"fallbackCooldownMs,omitempty"`
	TestNumbers        []string `yaml:"testNumbers,omitempty"`    // discarded silently
	PrivateNumbers     []string `yaml:"privateNumbers,omitempty"` // hard HUMAN_ONLY
	SplitReplies       bool     `yaml:"splitReplies,omitempty"`
	SplitRepliesProb   float64  `yaml:"splitRepliesProb,omitempty"`
}

// CatalogConfig selects the catalog source. URL wins over Path; with
// neither set a built-in sample catalog is served.
type CatalogConfig struct {
	URL            string `yaml:"url,omitempty"`
	Path           string `yaml:"path,omitempty"`
	CacheTTLMs     int    `yaml:"cacheTtlMs,omitempty"`
	FetchTimeoutMs int    `yaml:"fetchTimeoutMs,omitempty"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Cooldown returns the reply cooldown as a duration.
func (b BotConfig) Cooldown() time.Duration {
	return time.Duration(b.CooldownMs) * time.Millisecond
}

// FallbackCooldown returns the anti-repeat/fallback window as a duration.
func (b BotConfig) FallbackCooldown() time.Duration {
	return time.Duration(b.FallbackCooldownMs) * time.Millisecond
}
