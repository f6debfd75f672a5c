// Package config loads client settings with the precedence file > environment
// > defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"posfeed/internal/transport"
)

// Config is the full client configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Transport TransportConfig `yaml:"transport"`
}

// ServerConfig locates the POS backend's notification feed.
type ServerConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig carries the login token and, for development setups, the
// shared secret used to mint one locally.
type AuthConfig struct {
	Token  string `yaml:"token"`
	Secret string `yaml:"secret"`
}

// TransportConfig tunes the WebSocket transport.
type TransportConfig struct {
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	EventBuffer        int           `yaml:"event_buffer"`
}

// Options converts the transport section into transport options.
func (t TransportConfig) Options() transport.Options {
	return transport.Options{
		DialTimeout:        t.DialTimeout,
		WriteTimeout:       t.WriteTimeout,
		PingInterval:       t.PingInterval,
		PongTimeout:        t.PongTimeout,
		ReconnectBaseDelay: t.ReconnectBaseDelay,
		ReconnectMaxDelay:  t.ReconnectMaxDelay,
		EventBuffer:        t.EventBuffer,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "ws://localhost:8080/ws/notifications",
		},
		Transport: TransportConfig{
			DialTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			PingInterval:       30 * time.Second,
			PongTimeout:        60 * time.Second,
			ReconnectBaseDelay: time.Second,
			ReconnectMaxDelay:  30 * time.Second,
			EventBuffer:        64,
		},
	}
}

// Load builds the configuration: defaults, then environment overrides, then
// the file at path if one is given and exists.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			// Missing file falls through to env/defaults.
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POSFEED_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("POSFEED_AUTH_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv("POSFEED_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	for env, dst := range map[string]*time.Duration{
		"POSFEED_DIAL_TIMEOUT":         &c.Transport.DialTimeout,
		"POSFEED_WRITE_TIMEOUT":        &c.Transport.WriteTimeout,
		"POSFEED_PING_INTERVAL":        &c.Transport.PingInterval,
		"POSFEED_PONG_TIMEOUT":         &c.Transport.PongTimeout,
		"POSFEED_RECONNECT_BASE_DELAY": &c.Transport.ReconnectBaseDelay,
		"POSFEED_RECONNECT_MAX_DELAY":  &c.Transport.ReconnectMaxDelay,
	} {
		if v := os.Getenv(env); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server url scheme must be ws or wss, got %q", u.Scheme)
	}

	t := c.Transport
	for name, d := range map[string]time.Duration{
		"dial_timeout":         t.DialTimeout,
		"write_timeout":        t.WriteTimeout,
		"ping_interval":        t.PingInterval,
		"pong_timeout":         t.PongTimeout,
		"reconnect_base_delay": t.ReconnectBaseDelay,
		"reconnect_max_delay":  t.ReconnectMaxDelay,
	} {
		if d <= 0 {
			return fmt.Errorf("transport %s must be positive", name)
		}
	}
	if t.ReconnectMaxDelay < t.ReconnectBaseDelay {
		return fmt.Errorf("reconnect_max_delay must be >= reconnect_base_delay")
	}
	if t.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive")
	}
	return nil
}
