package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Auth.TokenSecret = "test-secret"
	return cfg
}

func TestDefaultConfig_ValidExceptSecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("Defaults must not validate without a token secret")
	}

	cfg.Auth.TokenSecret = "test-secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults with a secret should validate: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero database timeout", func(c *Config) { c.Database.Timeout = 0 }},
		{"port too low", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"read timeout below ping interval", func(c *Config) {
			c.WebSocket.PingInterval = time.Minute
			c.WebSocket.ReadTimeout = 30 * time.Second
		}},
		{"zero buffer size", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"missing auth secret", func(c *Config) { c.Auth.TokenSecret = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation failure")
			}
		})
	}
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http:
  host: 127.0.0.1
  port: 9090
database:
  path: /tmp/test.db
auth:
  token_secret: from-file
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.HTTP.Host != "127.0.0.1" || cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP overrides not applied: %+v", cfg.HTTP)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database path not applied: %q", cfg.Database.Path)
	}
	// Untouched fields keep their defaults.
	if cfg.WebSocket.PingInterval != 30*time.Second {
		t.Errorf("Unset fields must keep defaults: %v", cfg.WebSocket.PingInterval)
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("PROCTORBOARD_HTTP_PORT", "7070")
	t.Setenv("PROCTORBOARD_TOKEN_SECRET", "from-env")
	t.Setenv("PROCTORBOARD_WS_PING_INTERVAL", "45s")
	t.Setenv("PROCTORBOARD_WS_BUFFER_SIZE", "250")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.HTTP.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.HTTP.Port)
	}
	if cfg.Auth.TokenSecret != "from-env" {
		t.Errorf("TokenSecret = %q", cfg.Auth.TokenSecret)
	}
	if cfg.WebSocket.PingInterval != 45*time.Second {
		t.Errorf("PingInterval = %v", cfg.WebSocket.PingInterval)
	}
	if cfg.WebSocket.BufferSize != 250 {
		t.Errorf("BufferSize = %d", cfg.WebSocket.BufferSize)
	}
}

func TestApplyEnv_UnparseableValuesIgnored(t *testing.T) {
	t.Setenv("PROCTORBOARD_HTTP_PORT", "not-a-number")
	t.Setenv("PROCTORBOARD_WS_READ_TIMEOUT", "soon")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.HTTP.Port != 8080 {
		t.Errorf("Unparseable port must keep the default, got %d", cfg.HTTP.Port)
	}
	if cfg.WebSocket.ReadTimeout != 60*time.Second {
		t.Errorf("Unparseable duration must keep the default, got %v", cfg.WebSocket.ReadTimeout)
	}
}

func TestLoad_PrecedenceFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http:
  port: 9090
auth:
  token_secret: from-file
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PROCTORBOARD_TOKEN_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("File value should apply, got %d", cfg.HTTP.Port)
	}
	if cfg.Auth.TokenSecret != "from-env" {
		t.Errorf("Environment must win over file, got %q", cfg.Auth.TokenSecret)
	}
}
