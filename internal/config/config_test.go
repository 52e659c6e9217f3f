package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kondate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
auth:
  jwt_secret: shhh
llm:
  provider: anthropic
  api_key: test-key
tools:
  servers:
    default:
      url: http://localhost:9000
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("http port = %d, want default 8080", cfg.Server.HTTPPort)
	}
	if cfg.Tools.CallTimeout != 120*time.Second {
		t.Fatalf("call timeout = %s, want default 120s", cfg.Tools.CallTimeout)
	}
	if cfg.Tools.MaxConcurrency != 4 {
		t.Fatalf("max concurrency = %d, want default 4", cfg.Tools.MaxConcurrency)
	}
	if cfg.Sessions.Backend != "memory" || cfg.Sessions.TTL != 60*time.Minute {
		t.Fatalf("sessions defaults = %+v", cfg.Sessions)
	}
	if cfg.Sessions.SweepSchedule != "@every 5m" {
		t.Fatalf("sweep schedule = %q", cfg.Sessions.SweepSchedule)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("logging defaults = %+v", cfg.Logging)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("KONDATE_TEST_API_KEY", "expanded-key")

	cfg, err := Load(writeConfig(t, strings.Replace(minimalConfig,
		"api_key: test-key", "api_key: ${KONDATE_TEST_API_KEY}", 1)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "expanded-key" {
		t.Fatalf("api key = %q, want expanded value", cfg.LLM.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = " " },
			wantErr: "jwt_secret",
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.LLM.APIKey = "" },
			wantErr: "api_key",
		},
		{
			name:    "bad provider",
			mutate:  func(c *Config) { c.LLM.Provider = "bedrock" },
			wantErr: "provider",
		},
		{
			name:    "no tool servers",
			mutate:  func(c *Config) { c.Tools.Servers = nil },
			wantErr: "tools.servers",
		},
		{
			name:    "server missing url",
			mutate:  func(c *Config) { c.Tools.Servers["default"] = ToolServerConfig{} },
			wantErr: "url",
		},
		{
			name:    "bad session backend",
			mutate:  func(c *Config) { c.Sessions.Backend = "redis" },
			wantErr: "backend",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("KONDATE_JWT_SECRET", "shhh")
	t.Setenv("KONDATE_LLM_PROVIDER", "openai")
	t.Setenv("KONDATE_LLM_API_KEY", "env-key")
	t.Setenv("KONDATE_LLM_MODEL", "gpt-4o")
	t.Setenv("KONDATE_TOOL_SERVER_URL", "http://localhost:9000")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o" {
		t.Fatalf("llm config = %+v", cfg.LLM)
	}
	if cfg.Tools.Servers["default"].URL != "http://localhost:9000" {
		t.Fatalf("tool servers = %+v", cfg.Tools.Servers)
	}
}
