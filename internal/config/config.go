// ABOUTME: Configuration loading and validation for coven-relay
// ABOUTME: Reads TOML or YAML with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the complete coven-relay configuration.
type Config struct {
	Matrix      MatrixConfig      `toml:"matrix" yaml:"matrix"`
	Backend     BackendConfig     `toml:"backend" yaml:"backend"`
	Accounts    []AccountConfig   `toml:"accounts" yaml:"accounts"`
	Credentials CredentialsConfig `toml:"credentials" yaml:"credentials"`
	Relay       RelayConfig       `toml:"relay" yaml:"relay"`
	Logging     LoggingConfig     `toml:"logging" yaml:"logging"`
}

// MatrixConfig holds the Matrix transport settings. Either access_token
// with user_id, or username with password, must be set.
type MatrixConfig struct {
	Homeserver     string   `toml:"homeserver" yaml:"homeserver"`
	UserID         string   `toml:"user_id" yaml:"user_id"`
	AccessToken    string   `toml:"access_token" yaml:"access_token"`
	Username       string   `toml:"username" yaml:"username"`
	Password       string   `toml:"password" yaml:"password"`
	RecoveryKey    string   `toml:"recovery_key" yaml:"recovery_key"`
	AllowedRooms   []string `toml:"allowed_rooms" yaml:"allowed_rooms"`
	RespondToSelf  bool     `toml:"respond_to_self" yaml:"respond_to_self"`
	RenderMarkdown bool     `toml:"render_markdown" yaml:"render_markdown"`
}

// BackendConfig points at the conversational backend.
type BackendConfig struct {
	URL     string        `toml:"url" yaml:"url"`
	Timeout time.Duration `toml:"-" yaml:"-"`

	TimeoutRaw string `toml:"timeout" yaml:"timeout"`
}

// AccountConfig is one backend account. SessionToken, when set, is used as is.
type AccountConfig struct {
	Email        string `toml:"email" yaml:"email"`
	Password     string `toml:"password" yaml:"password"`
	SessionToken string `toml:"session_token" yaml:"session_token"`
}

// ID identifies the account in logs and the token cache.
func (a AccountConfig) ID() string {
	if a.Email != "" {
		return a.Email
	}
	return "token:" + tokenFingerprint(a.SessionToken)
}

// CredentialsConfig configures how session tokens are obtained and cached.
type CredentialsConfig struct {
	Command     []string      `toml:"command" yaml:"command"`
	CachePath   string        `toml:"cache_path" yaml:"cache_path"`
	CacheSecret string        `toml:"cache_secret" yaml:"cache_secret"`
	Timeout     time.Duration `toml:"-" yaml:"-"`

	TimeoutRaw string `toml:"timeout" yaml:"timeout"`
}

// RelayConfig holds the trigger protocol and retry policy.
type RelayConfig struct {
	Trigger        string        `toml:"trigger" yaml:"trigger"`
	ResetKeyword   string        `toml:"reset_keyword" yaml:"reset_keyword"`
	PingKeyword    string        `toml:"ping_keyword" yaml:"ping_keyword"`
	QuoteDelimiter string        `toml:"quote_delimiter" yaml:"quote_delimiter"`
	Separator      string        `toml:"separator" yaml:"separator"`
	MaxAttempts    int           `toml:"max_attempts" yaml:"max_attempts"`
	Backoff        time.Duration `toml:"-" yaml:"-"`
	DedupeWindow   time.Duration `toml:"-" yaml:"-"`

	BackoffRaw      string `toml:"backoff" yaml:"backoff"`
	DedupeWindowRaw string `toml:"dedupe_window" yaml:"dedupe_window"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Defaults applied to empty fields after decoding.
const (
	DefaultBackendTimeout    = 2 * time.Minute
	DefaultCredentialTimeout = 2 * time.Minute
	DefaultMaxAttempts       = 2
	DefaultBackoff           = time.Second
	DefaultDedupeWindow      = 10 * time.Minute
	DefaultTrigger           = "archer"
	DefaultCacheFile         = "relay-tokens.db"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}

	if cfg.Credentials.CachePath == "" {
		cfg.Credentials.CachePath = filepath.Join(DataDir(), DefaultCacheFile)
	}
	return cfg, nil
}

// Parse decodes data, using the extension of name to pick the format.
// Defaults are applied and the result validated.
func Parse(name string, data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case ".toml", "":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with the environment value, or "" if unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Credentials.Timeout == 0 {
		c.Credentials.Timeout = DefaultCredentialTimeout
	}
	if c.Relay.Trigger == "" {
		c.Relay.Trigger = DefaultTrigger
	}
	if c.Relay.MaxAttempts == 0 {
		c.Relay.MaxAttempts = DefaultMaxAttempts
	}
	if c.Relay.Backoff == 0 {
		c.Relay.Backoff = DefaultBackoff
	}
	if c.Relay.DedupeWindow == 0 {
		c.Relay.DedupeWindow = DefaultDedupeWindow
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks required fields. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if err := checkHTTPURL(c.Matrix.Homeserver); err != nil {
		return fmt.Errorf("matrix.homeserver: %w", err)
	}
	switch {
	case c.Matrix.AccessToken != "":
		if c.Matrix.UserID == "" {
			return fmt.Errorf("matrix.user_id is required with matrix.access_token")
		}
	case c.Matrix.Username != "":
		if c.Matrix.Password == "" {
			return fmt.Errorf("matrix.password is required with matrix.username")
		}
	default:
		return fmt.Errorf("matrix.access_token or matrix.username is required")
	}

	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if err := checkHTTPURL(c.Backend.URL); err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one [[accounts]] entry is required")
	}
	for i, acct := range c.Accounts {
		if acct.SessionToken != "" {
			continue
		}
		if acct.Email == "" || acct.Password == "" {
			return fmt.Errorf("accounts[%d]: session_token or email and password are required", i)
		}
		if len(c.Credentials.Command) == 0 {
			return fmt.Errorf("accounts[%d]: credentials.command is required for email/password accounts", i)
		}
	}

	if c.Relay.MaxAttempts < 1 {
		return fmt.Errorf("relay.max_attempts must be at least 1")
	}
	if c.Relay.Backoff < 0 {
		return fmt.Errorf("relay.backoff must not be negative")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json")
	}
	return nil
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"backend.timeout", cfg.Backend.TimeoutRaw, &cfg.Backend.Timeout},
		{"credentials.timeout", cfg.Credentials.TimeoutRaw, &cfg.Credentials.Timeout},
		{"relay.backoff", cfg.Relay.BackoffRaw, &cfg.Relay.Backoff},
		{"relay.dedupe_window", cfg.Relay.DedupeWindowRaw, &cfg.Relay.DedupeWindow},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// tokenFingerprint keeps a short, non-secret suffix of a token for display.
func tokenFingerprint(token string) string {
	if len(token) <= 6 {
		return strings.Repeat("*", len(token))
	}
	return "..." + token[len(token)-6:]
}
