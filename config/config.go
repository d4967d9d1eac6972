// Package config loads the opensheikh YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sheikhcoders/opensheikh/logging"
)

// Environment overrides.
const (
	EnvServer = "OPENSHEIKH_SERVER"
	EnvModel  = "OPENSHEIKH_MODEL"
)

const (
	defaultServerURL      = "http://127.0.0.1:4096"
	defaultMode           = "build"
	defaultLogLevel       = "info"
	defaultEventBuffer    = 256
	defaultRequestTimeout = "5m"
)

// ServerConfig locates the conversation server.
type ServerConfig struct {
	URL       string `yaml:"url"`
	EventsURL string `yaml:"events_url"`
}

// Config holds ~/.opensheikh/config.yaml.
type Config struct {
	Models         map[string]string `yaml:"models"`
	Server         ServerConfig      `yaml:"server"`
	Model          string            `yaml:"model"`
	Provider       string            `yaml:"provider"`
	Mode           string            `yaml:"mode"`
	LogLevel       string            `yaml:"log_level"`
	RequestTimeout string            `yaml:"request_timeout"`
	EventBuffer    int               `yaml:"event_buffer"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server:         ServerConfig{URL: defaultServerURL},
		Mode:           defaultMode,
		LogLevel:       defaultLogLevel,
		EventBuffer:    defaultEventBuffer,
		RequestTimeout: defaultRequestTimeout,
	}
}

// DefaultPath returns ~/.opensheikh/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".opensheikh", "config.yaml")
	}
	return filepath.Join(home, ".opensheikh", "config.yaml")
}

// Load reads the config at path. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvServer); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model = v
	}
}

// fillDefaults restores defaults for keys a file left empty.
func (c *Config) fillDefaults() {
	if c.Server.URL == "" {
		c.Server.URL = defaultServerURL
	}
	if c.Mode == "" {
		c.Mode = defaultMode
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = defaultRequestTimeout
	}
}

// EventsURL returns the WebSocket feed URL, derived from the server URL
// when not set explicitly.
func (c *Config) EventsURL() (string, error) {
	if c.Server.EventsURL != "" {
		return c.Server.EventsURL, nil
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/event"
	return u.String(), nil
}

// Timeout returns the request timeout, or 5m when unparsable.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if u, err := url.Parse(c.Server.URL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.url %q is not an absolute URL", c.Server.URL))
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("request_timeout: %w", err))
	}
	return errors.Join(errs...)
}
