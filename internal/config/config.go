package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort          = 8080
	DefaultCheckInterval     = 60 * time.Second
	DefaultHistoryTTL        = time.Hour
	DefaultHistoryCap        = 200
	DefaultBroadcastInterval = 5 * time.Second
	DefaultPostgresURLEnv    = "COLDSNAP_POSTGRES_URL"
)

// Config holds the configuration parsed from the `server:` section of
// config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all settings for the alerting server.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// CheckInterval is the rule evaluation period. Default: 60s.
	CheckInterval time.Duration `yaml:"check_interval"`

	// Auth configures how incoming REST and WebSocket clients authenticate.
	Auth AuthConfig `yaml:"auth"`

	// Database configures the relational store for rules, readings and history.
	Database DatabaseConfig `yaml:"database"`

	// Redis configures the optional latest-reading cache. Empty addr disables it.
	Redis RedisConfig `yaml:"redis"`

	// Push configures the push relay provider. Empty base_url disables it.
	Push PushConfig `yaml:"push"`

	// MQTT configures the broker provider. Empty broker_url disables it.
	MQTT MQTTConfig `yaml:"mqtt"`

	// History controls the in-memory recent-alert buffer behind the live feed.
	History HistoryConfig `yaml:"history"`

	// BroadcastInterval is how often the WebSocket hub pushes updates. Default: 5s.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// AuthConfig controls client authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected
	// API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// DatabaseConfig names the environment variable holding the Postgres URL.
type DatabaseConfig struct {
	// URLEnv defaults to COLDSNAP_POSTGRES_URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the database URL resolved from the environment.
func (d DatabaseConfig) URL() string {
	env := d.URLEnv
	if env == "" {
		env = DefaultPostgresURLEnv
	}
	return os.Getenv(env)
}

// RedisConfig configures the latest-reading cache.
type RedisConfig struct {
	// Addr is the host:port of the Redis server. Empty disables caching.
	Addr string `yaml:"addr"`
}

// PushConfig configures the push relay provider.
type PushConfig struct {
	// BaseURL is the relay server base URL, e.g. "https://ntfy.sh".
	BaseURL string `yaml:"base_url"`

	// TokenEnv is the name of the environment variable that holds the relay
	// access token. Empty means unauthenticated publishing.
	TokenEnv string `yaml:"token_env"`
}

// Token returns the relay access token resolved from the environment.
func (p PushConfig) Token() string {
	if p.TokenEnv == "" {
		return ""
	}
	return os.Getenv(p.TokenEnv)
}

// MQTTConfig configures the broker provider.
type MQTTConfig struct {
	// BrokerURL is e.g. "tcp://mosquitto:1883". Empty disables the provider.
	BrokerURL string `yaml:"broker_url"`

	// ClientID defaults to "coldsnap-server".
	ClientID string `yaml:"client_id"`

	// TopicPrefix defaults to "coldsnap/alerts".
	TopicPrefix string `yaml:"topic_prefix"`
}

// HistoryConfig controls the in-memory recent-alert buffer.
type HistoryConfig struct {
	// TTL is how long an entry stays visible in the live feed. Default: 1h.
	TTL time.Duration `yaml:"ttl"`

	// Cap bounds the buffer size. Default: 200.
	Cap int `yaml:"cap"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:      DefaultHTTPPort,
			CheckInterval: DefaultCheckInterval,
			History: HistoryConfig{
				TTL: DefaultHistoryTTL,
				Cap: DefaultHistoryCap,
			},
			BroadcastInterval: DefaultBroadcastInterval,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.CheckInterval < time.Second {
		return fmt.Errorf("server.check_interval %v is below the 1s minimum", s.CheckInterval)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.History.TTL <= 0 {
		return fmt.Errorf("server.history.ttl must be positive")
	}
	if s.History.Cap <= 0 {
		return fmt.Errorf("server.history.cap must be positive")
	}
	if s.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	return nil
}
