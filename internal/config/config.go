// Package config loads the kondate service configuration from a YAML file
// with environment variable expansion, applies defaults, and validates the
// values the service cannot start without.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for kondate.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	Tools    ToolsConfig    `yaml:"tools"`
	Sessions SessionsConfig `yaml:"sessions"`
	History  HistoryConfig  `yaml:"history"`
	Classify ClassifyConfig `yaml:"classify"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic | openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// ToolsConfig describes the backend tool servers and dispatch limits.
type ToolsConfig struct {
	Servers        map[string]ToolServerConfig `yaml:"servers"`
	CallTimeout    time.Duration               `yaml:"call_timeout"`
	MaxConcurrency int                         `yaml:"max_concurrency"`
}

// ToolServerConfig is one backend server owning a group of tools.
type ToolServerConfig struct {
	URL string `yaml:"url"`
}

type SessionsConfig struct {
	// Backend selects the store: memory | sqlite.
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	TTL     time.Duration `yaml:"ttl"`
	// SweepSchedule is a cron expression for the idle-session sweeper.
	SweepSchedule string `yaml:"sweep_schedule"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

// ClassifyConfig exposes the trigger-token tables the classifier matches on.
// The additional-proposal markers are language specific, so deployments can
// override them.
type ClassifyConfig struct {
	AdditionalMarkers []string `yaml:"additional_markers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig points span export at an OTLP collector. An empty endpoint
// disables export.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads and parses the configuration file, expanding ${ENV} references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds a configuration purely from process environment variables.
// Used when no config file is given.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	cfg.Auth.JWTSecret = os.Getenv("KONDATE_JWT_SECRET")
	cfg.LLM.Provider = os.Getenv("KONDATE_LLM_PROVIDER")
	cfg.LLM.APIKey = os.Getenv("KONDATE_LLM_API_KEY")
	cfg.LLM.Model = os.Getenv("KONDATE_LLM_MODEL")
	if url := os.Getenv("KONDATE_TOOL_SERVER_URL"); url != "" {
		cfg.Tools.Servers = map[string]ToolServerConfig{
			"default": {URL: url},
		}
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing mandatory value. The process aborts
// startup on error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be anthropic or openai, got %q", c.LLM.Provider)
	}
	if len(c.Tools.Servers) == 0 {
		return fmt.Errorf("at least one tools.servers entry is required")
	}
	for name, server := range c.Tools.Servers {
		if strings.TrimSpace(server.URL) == "" {
			return fmt.Errorf("tools.servers.%s.url is required", name)
		}
	}
	switch c.Sessions.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("sessions.backend must be memory or sqlite, got %q", c.Sessions.Backend)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.RetryDelay == 0 {
		cfg.LLM.RetryDelay = time.Second
	}
	if cfg.Tools.CallTimeout == 0 {
		cfg.Tools.CallTimeout = 120 * time.Second
	}
	if cfg.Tools.MaxConcurrency == 0 {
		cfg.Tools.MaxConcurrency = 4
	}
	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = "memory"
	}
	if cfg.Sessions.TTL == 0 {
		cfg.Sessions.TTL = 60 * time.Minute
	}
	if cfg.Sessions.SweepSchedule == "" {
		cfg.Sessions.SweepSchedule = "@every 5m"
	}
	if cfg.History.Path == "" {
		cfg.History.Path = "kondate_history.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
