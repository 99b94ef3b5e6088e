package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every transport tunable. Values come from defaults,
// overridden by MCP_* environment variables, overridden in turn by an
// optional YAML file named in MCP_CONFIG_FILE.
type Config struct {
	// ServerURL is the WebSocket endpoint without the client id segment,
	// e.g. ws://localhost:5001/ws. The client id is appended to the path.
	ServerURL string `yaml:"server_url"`
	ClientID  string `yaml:"client_id"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`

	// DefaultTimeout bounds a request awaiting its correlated response.
	// MessageTimeouts overrides it per message type.
	DefaultTimeout  time.Duration            `yaml:"default_timeout"`
	MessageTimeouts map[string]time.Duration `yaml:"message_timeouts"`

	MaxReconnectAttempts        int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay          time.Duration `yaml:"reconnect_base_delay"`
	ReconnectBackoffFactor      float64       `yaml:"reconnect_backoff_factor"`
	PersistentReconnect         bool          `yaml:"persistent_reconnect"`
	PersistentReconnectInterval time.Duration `yaml:"persistent_reconnect_interval"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// HeartbeatTimeout is the liveness window: no traffic for this long
	// and the connection is treated as dead.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`

	BatchDelay        time.Duration `yaml:"batch_delay"`
	BatchMaxSize      int           `yaml:"batch_max_size"`
	MaxQueuedMessages int           `yaml:"max_queued_messages"`
	// KeepQueuedOnDisconnect flushes the batch queue on disconnect
	// instead of discarding it.
	KeepQueuedOnDisconnect bool `yaml:"keep_queued_on_disconnect"`

	CompressionEnabled   bool `yaml:"compression_enabled"`
	CompressionThreshold int  `yaml:"compression_threshold"`

	MaxFrameSize int `yaml:"max_frame_size"`
}

// Default returns the baseline configuration before env or file overrides.
func Default() *Config {
	return &Config{
		ServerURL:                   "ws://localhost:5001/ws",
		ConnectTimeout:              10 * time.Second,
		WriteTimeout:                10 * time.Second,
		DefaultTimeout:              30 * time.Second,
		MessageTimeouts:             map[string]time.Duration{},
		MaxReconnectAttempts:        5,
		ReconnectBaseDelay:          2 * time.Second,
		ReconnectBackoffFactor:      1.5,
		PersistentReconnect:         true,
		PersistentReconnectInterval: 30 * time.Second,
		HeartbeatInterval:           15 * time.Second,
		HeartbeatTimeout:            30 * time.Second,
		BatchDelay:                  50 * time.Millisecond,
		BatchMaxSize:                5,
		MaxQueuedMessages:           100,
		KeepQueuedOnDisconnect:      true,
		CompressionEnabled:          true,
		CompressionThreshold:        1024,
		MaxFrameSize:                1 << 20,
	}
}

// Load builds the effective configuration: Default, then environment,
// then the YAML file named in MCP_CONFIG_FILE when set.
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if path := os.Getenv("MCP_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if cfg.BatchMaxSize <= 0 {
		cfg.BatchMaxSize = 1
	}
	if cfg.ReconnectBackoffFactor < 1 {
		cfg.ReconnectBackoffFactor = 1
	}
	return cfg, nil
}

// TimeoutFor returns the pending-request timeout for a message type.
func (c *Config) TimeoutFor(messageType string) time.Duration {
	if d, ok := c.MessageTimeouts[messageType]; ok && d > 0 {
		return d
	}
	return c.DefaultTimeout
}

func (c *Config) applyEnv() {
	c.ServerURL = getEnv("MCP_SERVER_URL", c.ServerURL)
	c.ClientID = getEnv("MCP_CLIENT_ID", c.ClientID)
	c.ConnectTimeout = getEnvDuration("MCP_CONNECT_TIMEOUT", c.ConnectTimeout)
	c.WriteTimeout = getEnvDuration("MCP_WRITE_TIMEOUT", c.WriteTimeout)
	c.DefaultTimeout = getEnvDuration("MCP_DEFAULT_TIMEOUT", c.DefaultTimeout)
	c.MaxReconnectAttempts = getEnvInt("MCP_MAX_RECONNECT_ATTEMPTS", c.MaxReconnectAttempts)
	c.ReconnectBaseDelay = getEnvDuration("MCP_RECONNECT_BASE_DELAY", c.ReconnectBaseDelay)
	c.ReconnectBackoffFactor = getEnvFloat("MCP_RECONNECT_BACKOFF_FACTOR", c.ReconnectBackoffFactor)
	c.PersistentReconnect = getEnvBool("MCP_PERSISTENT_RECONNECT", c.PersistentReconnect)
	c.PersistentReconnectInterval = getEnvDuration("MCP_PERSISTENT_RECONNECT_INTERVAL", c.PersistentReconnectInterval)
	c.HeartbeatInterval = getEnvDuration("MCP_HEARTBEAT_INTERVAL", c.HeartbeatInterval)
	c.HeartbeatTimeout = getEnvDuration("MCP_HEARTBEAT_TIMEOUT", c.HeartbeatTimeout)
	c.BatchDelay = getEnvDuration("MCP_BATCH_DELAY", c.BatchDelay)
	c.BatchMaxSize = getEnvInt("MCP_BATCH_MAX_SIZE", c.BatchMaxSize)
	c.MaxQueuedMessages = getEnvInt("MCP_MAX_QUEUED_MESSAGES", c.MaxQueuedMessages)
	c.KeepQueuedOnDisconnect = getEnvBool("MCP_KEEP_QUEUED_ON_DISCONNECT", c.KeepQueuedOnDisconnect)
	c.CompressionEnabled = getEnvBool("MCP_COMPRESSION_ENABLED", c.CompressionEnabled)
	c.CompressionThreshold = getEnvInt("MCP_COMPRESSION_THRESHOLD", c.CompressionThreshold)
	c.MaxFrameSize = getEnvInt("MCP_MAX_FRAME_SIZE", c.MaxFrameSize)
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
