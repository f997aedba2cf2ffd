package config

import (
	"fmt"
	"strings"
)

// Issue is a single validation problem with a dotted config path.
type Issue struct {
	Path    string
	Message string
}

// Validate checks the config for problems that would break the engine at
// runtime. It returns all issues found rather than stopping at the first.
func Validate(cfg *Config) []Issue {
	var issues []Issue

	if cfg.Server.WebhookSecret == "" {
		issues = append(issues, Issue{"server.webhookSecret", "webhook secret is required"})
	} else if len(cfg.Server.WebhookSecret) < 6 {
		issues = append(issues, Issue{"server.webhookSecret", "webhook secret must be at least 6 characters"})
	}
	if strings.Contains(cfg.Server.WebhookSecret, "${") {
		issues = append(issues, Issue{"server.webhookSecret", "unresolved ${ENV} reference"})
	}
	if cfg.Server.AdminToken != "" && len(cfg.Server.AdminToken) < 6 {
		issues = append(issues, Issue{"server.adminToken", "admin token must be at least 6 characters"})
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		issues = append(issues, Issue{"server.port", fmt.Sprintf("invalid port %d", cfg.Server.Port)})
	}

	if cfg.Platform.BaseURL == "" {
		issues = append(issues, Issue{"platform.baseUrl", "platform base URL is required"})
	} else if !strings.HasPrefix(cfg.Platform.BaseURL, "http://") && !strings.HasPrefix(cfg.Platform.BaseURL, "https://") {
		issues = append(issues, Issue{"platform.baseUrl", "platform base URL must be http(s)"})
	}
	if cfg.Platform.APIKey == "" {
		issues = append(issues, Issue{"platform.apiKey", "platform API key is required"})
	}
	if cfg.Platform.Instance == "" {
		issues = append(issues, Issue{"platform.instance", "platform instance name is required"})
	}

	if cfg.Humanizer.DebounceMinMs > cfg.Humanizer.DebounceMaxMs {
		issues = append(issues, Issue{"humanizer.debounceMinMs", "debounce min exceeds max"})
	}
	if cfg.Humanizer.DelayBaseMinMs > cfg.Humanizer.DelayBaseMaxMs {
		issues = append(issues, Issue{"humanizer.delayBaseMinMs", "base delay min exceeds max"})
	}
	if cfg.Humanizer.DelayPerCharMinMs > cfg.Humanizer.DelayPerCharMaxMs {
		issues = append(issues, Issue{"humanizer.delayPerCharMinMs", "per-char delay min exceeds max"})
	}

	if cfg.Bot.SplitRepliesProb < 0 || cfg.Bot.SplitRepliesProb > 1 {
		issues = append(issues, Issue{"bot.splitRepliesProb", "probability must be in [0,1]"})
	}

	if cfg.Catalog.URL != "" && cfg.Catalog.Path != "" {
		issues = append(issues, Issue{"catalog", "set either url or path, not both"})
	}

	return issues
}
