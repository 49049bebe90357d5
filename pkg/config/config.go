// Package config loads and validates dispatchd's server configuration.
// YAML-first, grounded on
// _examples/getmockd-mockd/pkg/config/types.go's field set and
// Default*Configuration()+Validate() idiom, narrowed down from the
// teacher's full workspace/deployment configuration surface to the
// fields spec.md §6 actually names.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dispatchd/dispatchd/pkg/audit"
)

// ProxyConfiguration is the optional upstream proxy outbound requests
// are routed through, generalized from
// _examples/getmockd-mockd/pkg/config/proxy.go's session-recording
// ProxyConfiguration into the forwarding-proxy config spec.md §6 calls
// for.
type ProxyConfiguration struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Config is the top-level server configuration (spec.md §6).
type Config struct {
	EnableCORSForAPI           bool   `yaml:"enableCORSForAPI"`
	EnableCORSForAllResponses  bool   `yaml:"enableCORSForAllResponses"`
	SocketConnectionTimeout    string `yaml:"socketConnectionTimeout"`

	ProxyConfiguration *ProxyConfiguration `yaml:"proxyConfiguration,omitempty"`

	// LocalAddresses lists hosts the dispatcher treats as itself for
	// loop/locality decisions (spec.md §4.4). Entries may be exact
	// hostnames or doublestar glob patterns (e.g. "*.internal.example.com").
	LocalAddresses []string `yaml:"localAddresses,omitempty"`

	Audit *audit.Config `yaml:"audit,omitempty"`
}

// ValidationError reports a single field failing Validate, matching
// _examples/getmockd-mockd/pkg/config/proxy.go's ValidationError idiom.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Default returns the zero-risk default configuration.
func Default() *Config {
	return &Config{
		EnableCORSForAPI:          false,
		EnableCORSForAllResponses: false,
		SocketConnectionTimeout:   "30s",
		Audit:                     audit.DefaultConfig(),
	}
}

// SocketTimeout parses SocketConnectionTimeout into a time.Duration.
func (c *Config) SocketTimeout() (time.Duration, error) {
	if c.SocketConnectionTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.SocketConnectionTimeout)
	if err != nil {
		return 0, &ValidationError{Field: "socketConnectionTimeout", Message: err.Error()}
	}
	return d, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if _, err := c.SocketTimeout(); err != nil {
		return err
	}
	if c.ProxyConfiguration != nil {
		if c.ProxyConfiguration.Host == "" {
			return &ValidationError{Field: "proxyConfiguration.host", Message: "must not be empty when proxyConfiguration is set"}
		}
		if c.ProxyConfiguration.Port <= 0 || c.ProxyConfiguration.Port > 65535 {
			return &ValidationError{Field: "proxyConfiguration.port", Message: "must be between 1 and 65535"}
		}
	}
	if c.Audit != nil {
		if err := c.Audit.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads and parses a YAML configuration file at path, applying
// Default() for any field the file leaves unset, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
