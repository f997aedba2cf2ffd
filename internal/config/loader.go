package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} references in credential fields.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} references with environment values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields resolves ${ENV} references so secrets never have to
// live in the config file itself.
func expandSensitiveFields(cfg *Config) {
	cfg.Server.WebhookSecret = expandEnvVars(cfg.Server.WebhookSecret)
	cfg.Server.AdminToken = expandEnvVars(cfg.Server.AdminToken)
	cfg.Platform.APIKey = expandEnvVars(cfg.Platform.APIKey)
}

// Load reads the config file, fills defaults, and applies environment
// overrides. A missing file yields defaults plus overrides only.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(&cfg)
			applyEnvOverrides(&cfg)
			expandSensitiveFields(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &Error{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Platform.TimeoutMs == 0 {
		cfg.Platform.TimeoutMs = 8000
	}
	if cfg.Platform.MaxRetries == 0 {
		cfg.Platform.MaxRetries = 3
	}
	if cfg.Humanizer.DebounceMinMs == 0 {
		cfg.Humanizer.DebounceMinMs = 2500
	}
	if cfg.Humanizer.DebounceMaxMs == 0 {
		cfg.Humanizer.DebounceMaxMs = 4000
	}
	if cfg.Humanizer.DelayBaseMinMs == 0 {
		cfg.Humanizer.DelayBaseMinMs = 800
	}
	if cfg.Humanizer.DelayBaseMaxMs == 0 {
		cfg.Humanizer.DelayBaseMaxMs = 2500
	}
	if cfg.Humanizer.DelayPerCharMinMs == 0 {
		cfg.Humanizer.DelayPerCharMinMs = 20
	}
	if cfg.Humanizer.DelayPerCharMaxMs == 0 {
		cfg.Humanizer.DelayPerCharMaxMs = 60
	}
	if cfg.Bot.CooldownMs == 0 {
		cfg.Bot.CooldownMs = 1000
	}
	if cfg.Bot.FallbackCooldownMs == 0 {
		cfg.Bot.FallbackCooldownMs = 5 * 60 * 1000
	}
	if cfg.Bot.SplitRepliesProb == 0 {
		cfg.Bot.SplitRepliesProb = 0.25
	}
	if cfg.Catalog.CacheTTLMs == 0 {
		cfg.Catalog.CacheTTLMs = 5 * 60 * 1000
	}
	if cfg.Catalog.FetchTimeoutMs == 0 {
		cfg.Catalog.FetchTimeoutMs = 4000
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "wapro.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides reads WAPRO_* environment variables over config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WAPRO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WAPRO_WEBHOOK_SECRET"); v != "" {
		cfg.Server.WebhookSecret = v
	}
	if v := os.Getenv("WAPRO_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("WAPRO_PLATFORM_URL"); v != "" {
		cfg.Platform.BaseURL = v
	}
	if v := os.Getenv("WAPRO_PLATFORM_API_KEY"); v != "" {
		cfg.Platform.APIKey = v
	}
	if v := os.Getenv("WAPRO_PLATFORM_INSTANCE"); v != "" {
		cfg.Platform.Instance = v
	}
	if v := os.Getenv("WAPRO_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("WAPRO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("WAPRO_TEST_NUMBERS"); v != "" {
		cfg.Bot.TestNumbers = splitList(v)
	}
	if v := os.Getenv("WAPRO_PRIVATE_NUMBERS"); v != "" {
		cfg.Bot.PrivateNumbers = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Error is a configuration loading/validation error.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }
