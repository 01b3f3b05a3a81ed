// Package config loads and validates runtime configuration for the relay.
//
// Configuration is read from environment variables (preferred for serverless
// hosts and containers) or from a config.yaml file in the working directory.
// A .env file, when present, is loaded into the process environment first.
// Environment variables take precedence over the YAML file.
//
// Naming convention: env vars use UPPER_SNAKE_CASE; the YAML file uses the
// same names in lower_snake_case. For example MINIMAX_API_KEY becomes
// minimax_api_key in YAML.
//
// A missing upstream credential is NOT a load error: the relay still starts
// and answers every prompt with a 500 "API key not configured" envelope.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	defaultBaseURL    = "https://api.minimax.io/anthropic"
	defaultModel      = "MiniMax-M2.5"
	defaultMaxTokens  = 4096
	defaultAPIVersion = "2023-06-01"
	defaultMarker     = "USER INPUTS:"
	defaultRelayPath  = "/api/ai"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string

	// LogFormat is json (default) or text.
	LogFormat string

	Upstream  UpstreamConfig
	Relay     RelayConfig
	CORS      CORSConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// UpstreamConfig describes the Messages endpoint the relay calls.
type UpstreamConfig struct {
	// APIKey is the credential. Empty means "not configured".
	APIKey string

	// KeySource names the variable APIKey was read from, for startup logs.
	KeySource string

	// BaseURL is the API root; "/v1/messages" is appended to it.
	BaseURL string

	Model      string
	MaxTokens  int
	APIVersion string

	// Timeout bounds each upstream call. 0 leaves it to the host.
	Timeout time.Duration
}

// RelayConfig controls the relay handler.
type RelayConfig struct {
	// Path is the route the server mounts the relay on. Default: /api/ai.
	Path string

	// Marker separates the system instruction from user content.
	Marker string

	// RequireMarker rejects prompts that do not contain Marker.
	RequireMarker bool
}

// CORSConfig is the cross-origin policy.
type CORSConfig struct {
	// Origins allowed; ["*"] allows any origin (default).
	Origins []string
	Methods string
	Headers string
}

// RedisConfig holds the Redis connection used by the rate limiter.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// RateLimitConfig controls the global request rate limit.
type RateLimitConfig struct {
	// RPMLimit is the maximum requests per minute. 0 disables limiting.
	RPMLimit int
}

// Load reads configuration from the environment, .env and config.yaml.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPSTREAM_MODEL", defaultModel)
	v.SetDefault("UPSTREAM_MAX_TOKENS", defaultMaxTokens)
	v.SetDefault("UPSTREAM_API_VERSION", defaultAPIVersion)
	v.SetDefault("UPSTREAM_TIMEOUT", "0s")

	v.SetDefault("RELAY_PATH", defaultRelayPath)
	v.SetDefault("RELAY_MARKER", defaultMarker)
	v.SetDefault("RELAY_REQUIRE_MARKER", false)

	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("CORS_METHODS", "POST, OPTIONS")
	v.SetDefault("CORS_HEADERS", "Content-Type")

	// Rate limit: 0 = disabled.
	v.SetDefault("RPM_LIMIT", 0)

	// ── Build config ──────────────────────────────────────────────────────────
	key, source := firstSet(v, "MINIMAX_API_KEY", "ANTHROPIC_API_KEY")
	baseURL, _ := firstSet(v, "MINIMAX_BASE_URL", "ANTHROPIC_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	cfg := &Config{
		Port:      v.GetInt("PORT"),
		LogLevel:  strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),

		Upstream: UpstreamConfig{
			APIKey:     key,
			KeySource:  source,
			BaseURL:    baseURL,
			Model:      v.GetString("UPSTREAM_MODEL"),
			MaxTokens:  v.GetInt("UPSTREAM_MAX_TOKENS"),
			APIVersion: v.GetString("UPSTREAM_API_VERSION"),
			Timeout:    v.GetDuration("UPSTREAM_TIMEOUT"),
		},

		Relay: RelayConfig{
			Path:          v.GetString("RELAY_PATH"),
			Marker:        v.GetString("RELAY_MARKER"),
			RequireMarker: v.GetBool("RELAY_REQUIRE_MARKER"),
		},

		CORS: CORSConfig{
			Origins: splitList(v.GetString("CORS_ORIGINS")),
			Methods: v.GetString("CORS_METHODS"),
			Headers: v.GetString("CORS_HEADERS"),
		},

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		RateLimit: RateLimitConfig{
			RPMLimit: v.GetInt("RPM_LIMIT"),
		},
	}

	// ── Validation ────────────────────────────────────────────────────────────
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: invalid LOG_FORMAT %q; must be json or text", c.LogFormat)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be in 1..65535, got %d", c.Port)
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: upstream base URL %q must be an absolute http(s) URL", c.Upstream.BaseURL)
	}

	if c.Upstream.Model == "" {
		return errors.New("config: UPSTREAM_MODEL must not be empty")
	}
	if c.Upstream.MaxTokens < 1 {
		return fmt.Errorf("config: UPSTREAM_MAX_TOKENS must be ≥ 1, got %d", c.Upstream.MaxTokens)
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("config: UPSTREAM_TIMEOUT must not be negative")
	}

	if !strings.HasPrefix(c.Relay.Path, "/") {
		return fmt.Errorf("config: RELAY_PATH must start with '/', got %q", c.Relay.Path)
	}
	if c.Relay.Marker == "" {
		return errors.New("config: RELAY_MARKER must not be empty")
	}

	if c.RateLimit.RPMLimit < 0 {
		return fmt.Errorf("config: RPM_LIMIT must be ≥ 0, got %d", c.RateLimit.RPMLimit)
	}
	if c.RateLimit.RPMLimit > 0 && c.Redis.URL == "" {
		return fmt.Errorf("config: REDIS_URL is required when RPM_LIMIT > 0")
	}

	return nil
}

// CredentialConfigured reports whether an upstream API key is present.
func (c *Config) CredentialConfigured() bool {
	return c.Upstream.APIKey != ""
}

// firstSet returns the first non-empty value among keys and the key it came
// from.
func firstSet(v *viper.Viper, keys ...string) (string, string) {
	for _, k := range keys {
		if s := strings.TrimSpace(v.GetString(k)); s != "" {
			return s, k
		}
	}
	return "", ""
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
