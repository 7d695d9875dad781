package config

import (
	"errors"
	"fmt"

	"github.com/pezkuwi/liveupdates/internal/endpoint"
)

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"text": true, "json": true}
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("endpoints must list at least one url")
	}
	if _, err := endpoint.NewTable(c.Endpoints); err != nil {
		return fmt.Errorf("endpoints: %w", err)
	}

	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}
	if c.Reconnect.RetryDelay < 0 {
		return fmt.Errorf("reconnect.retry_delay must be >= 0, got %v", c.Reconnect.RetryDelay)
	}
	if c.Reconnect.FailoverDelay < 0 {
		return fmt.Errorf("reconnect.failover_delay must be >= 0, got %v", c.Reconnect.FailoverDelay)
	}

	if err := c.Transport.validate("transport"); err != nil {
		return err
	}

	if c.Metrics.IsEnabled() && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (t *TransportConfig) validate(prefix string) error {
	if t.HandshakeTimeout < 0 {
		return fmt.Errorf("%s.handshake_timeout must be >= 0", prefix)
	}
	if t.WriteTimeout < 0 {
		return fmt.Errorf("%s.write_timeout must be >= 0", prefix)
	}
	if t.PingInterval < 0 {
		return fmt.Errorf("%s.ping_interval must be >= 0", prefix)
	}
	if t.PongTimeout < 0 {
		return fmt.Errorf("%s.pong_timeout must be >= 0", prefix)
	}
	if t.PingInterval > 0 && t.PongTimeout > 0 && t.PongTimeout < t.PingInterval {
		return fmt.Errorf("%s.pong_timeout (%v) cannot be shorter than ping_interval (%v)", prefix, t.PongTimeout, t.PingInterval)
	}
	if t.ReadLimit < 0 {
		return fmt.Errorf("%s.read_limit must be >= 0", prefix)
	}
	if t.BufferSize < 1 {
		return fmt.Errorf("%s.buffer_size must be >= 1", prefix)
	}
	return nil
}
