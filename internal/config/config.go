package config

import "time"

// Config is the root configuration for a live-updates client.
type Config struct {
	Endpoints []string        `yaml:"endpoints"` // Priority order, best first
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// ReconnectConfig holds the retry/failover policy.
type ReconnectConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`   // Consecutive failures per endpoint before failover
	RetryDelay    time.Duration `yaml:"retry_delay"`    // Wait before retrying the same endpoint
	FailoverDelay time.Duration `yaml:"failover_delay"` // Wait before dialing the next endpoint
}

// TransportConfig holds per-connection WebSocket settings.
type TransportConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	ReadLimit        int64         `yaml:"read_limit"`
	BufferSize       int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"` // nil means enabled
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// IsEnabled reports whether the metrics endpoint should be served.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
