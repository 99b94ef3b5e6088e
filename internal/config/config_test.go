package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.ServerURL != "ws://localhost:5001/ws" {
		t.Errorf("ServerURL = %s", cfg.ServerURL)
	}
	if cfg.ReconnectBaseDelay != 2*time.Second || cfg.ReconnectBackoffFactor != 1.5 || cfg.MaxReconnectAttempts != 5 {
		t.Errorf("reconnect defaults = %s/%v/%d", cfg.ReconnectBaseDelay, cfg.ReconnectBackoffFactor, cfg.MaxReconnectAttempts)
	}
	if cfg.BatchDelay != 50*time.Millisecond || cfg.BatchMaxSize != 5 {
		t.Errorf("batch defaults = %s/%d", cfg.BatchDelay, cfg.BatchMaxSize)
	}
	if !cfg.CompressionEnabled || cfg.CompressionThreshold != 1024 {
		t.Errorf("compression defaults = %v/%d", cfg.CompressionEnabled, cfg.CompressionThreshold)
	}
	if !cfg.PersistentReconnect || cfg.PersistentReconnectInterval != 30*time.Second {
		t.Errorf("persistent reconnect defaults = %v/%s", cfg.PersistentReconnect, cfg.PersistentReconnectInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MCP_SERVER_URL", "ws://mcp.internal:9000/ws")
	t.Setenv("MCP_DEFAULT_TIMEOUT", "45s")
	t.Setenv("MCP_RECONNECT_BACKOFF_FACTOR", "2.0")
	t.Setenv("MCP_COMPRESSION_ENABLED", "false")
	t.Setenv("MCP_BATCH_MAX_SIZE", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "ws://mcp.internal:9000/ws" {
		t.Errorf("ServerURL = %s", cfg.ServerURL)
	}
	if cfg.DefaultTimeout != 45*time.Second {
		t.Errorf("DefaultTimeout = %s", cfg.DefaultTimeout)
	}
	if cfg.ReconnectBackoffFactor != 2.0 {
		t.Errorf("ReconnectBackoffFactor = %v", cfg.ReconnectBackoffFactor)
	}
	if cfg.CompressionEnabled {
		t.Error("CompressionEnabled not overridden")
	}
	if cfg.BatchMaxSize != 8 {
		t.Errorf("BatchMaxSize = %d", cfg.BatchMaxSize)
	}
	// untouched keys keep their defaults
	if cfg.HeartbeatInterval != 15*time.Second {
		t.Errorf("HeartbeatInterval = %s", cfg.HeartbeatInterval)
	}
}

func TestFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.yaml")
	body := []byte(`
server_url: ws://file.example:7000/ws
max_reconnect_attempts: 9
message_timeouts:
  suggestion: 90s
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MCP_CONFIG_FILE", path)
	t.Setenv("MCP_SERVER_URL", "ws://env.example:8000/ws")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "ws://file.example:7000/ws" {
		t.Errorf("file should win over env, got %s", cfg.ServerURL)
	}
	if cfg.MaxReconnectAttempts != 9 {
		t.Errorf("MaxReconnectAttempts = %d", cfg.MaxReconnectAttempts)
	}
	if cfg.TimeoutFor("suggestion") != 90*time.Second {
		t.Errorf("TimeoutFor(suggestion) = %s", cfg.TimeoutFor("suggestion"))
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MCP_CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
}

func TestLoadClampsInvalidValues(t *testing.T) {
	t.Setenv("MCP_BATCH_MAX_SIZE", "0")
	t.Setenv("MCP_RECONNECT_BACKOFF_FACTOR", "0.5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BatchMaxSize != 1 {
		t.Errorf("BatchMaxSize = %d, want clamp to 1", cfg.BatchMaxSize)
	}
	if cfg.ReconnectBackoffFactor != 1 {
		t.Errorf("ReconnectBackoffFactor = %v, want clamp to 1", cfg.ReconnectBackoffFactor)
	}
}

func TestTimeoutFor(t *testing.T) {
	cfg := Default()
	cfg.DefaultTimeout = 30 * time.Second
	cfg.MessageTimeouts = map[string]time.Duration{
		"tdd_request": 2 * time.Minute,
		"zeroed":      0,
	}
	if got := cfg.TimeoutFor("tdd_request"); got != 2*time.Minute {
		t.Errorf("TimeoutFor(tdd_request) = %s", got)
	}
	if got := cfg.TimeoutFor("suggestion"); got != 30*time.Second {
		t.Errorf("TimeoutFor(suggestion) = %s", got)
	}
	// a zero per-type entry falls back to the default
	if got := cfg.TimeoutFor("zeroed"); got != 30*time.Second {
		t.Errorf("TimeoutFor(zeroed) = %s", got)
	}
}
