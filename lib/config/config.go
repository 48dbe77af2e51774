// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for a Tensorlink node.
type Config struct {
	// Node identifies this node and the topic it participates in.
	Node NodeConfig `yaml:"node"`

	// Listen is the address the node advertises to peers.
	Listen ListenConfig `yaml:"listen"`

	// Connect optionally names a peer to dial at startup. A node with
	// no connect section waits for peers to dial in.
	Connect *ConnectConfig `yaml:"connect,omitempty"`

	// Transport configures socket behavior.
	Transport TransportConfig `yaml:"transport"`

	// Capture configures the local stream capture store. A node with
	// capture disabled forwards data without recording it.
	Capture CaptureConfig `yaml:"capture"`
}

// NodeConfig identifies the node.
type NodeConfig struct {
	// ID is the unique node identifier. Required.
	ID string `yaml:"id"`

	// Topic is the stream topic this node participates in. Required.
	Topic string `yaml:"topic"`

	// Caps lists the capability fragments advertised to connecting
	// peers, concatenated in order into the capability string.
	Caps []string `yaml:"caps"`
}

// ListenConfig is the advertised listen address.
type ListenConfig struct {
	// IP is the address peers use to reach this node.
	// Default: localhost
	IP string `yaml:"ip"`

	// Port is the listen port. Zero picks an ephemeral port.
	Port int `yaml:"port"`
}

// ConnectConfig names a peer to dial at startup.
type ConnectConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

// TransportConfig configures socket behavior.
type TransportConfig struct {
	// Timeout bounds each individual socket operation, as a Go
	// duration string. Default: 10s
	Timeout string `yaml:"timeout"`
}

// CaptureConfig configures the local stream capture store.
type CaptureConfig struct {
	// Enabled turns capture on.
	Enabled bool `yaml:"enabled"`

	// Dir is the directory holding captured payloads and manifests.
	// Default: ${HOME}/.cache/tensorlink/capture
	Dir string `yaml:"dir"`

	// Compression selects the payload compression: "none", "lz4",
	// "zstd", or "bg4_lz4" (byte-grouped, for float32 tensor data).
	// Default: zstd
	Compression string `yaml:"compression"`
}

// Default returns the default configuration. These defaults are a base
// for loading a config file; the file's node id and topic are still
// required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Listen: ListenConfig{
			IP:   "localhost",
			Port: 0,
		},
		Transport: TransportConfig{
			Timeout: "10s",
		},
		Capture: CaptureConfig{
			Enabled:     false,
			Dir:         filepath.Join(homeDir, ".cache", "tensorlink", "capture"),
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the TENSORLINK_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if TENSORLINK_CONFIG is not
// set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("TENSORLINK_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("TENSORLINK_CONFIG environment variable not set; " +
			"set it to the path of your tensorlink.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values. The only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Capture.Dir = expandVars(c.Capture.Dir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Node.ID == "" {
		errs = append(errs, fmt.Errorf("node.id is required"))
	}
	if c.Node.Topic == "" {
		errs = append(errs, fmt.Errorf("node.topic is required"))
	}

	if c.Listen.IP == "" {
		errs = append(errs, fmt.Errorf("listen.ip is required"))
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port must be in 0-65535, got %d", c.Listen.Port))
	}

	if c.Connect != nil {
		if c.Connect.IP == "" {
			errs = append(errs, fmt.Errorf("connect.ip is required when a connect section is present"))
		}
		if c.Connect.Port <= 0 || c.Connect.Port > 65535 {
			errs = append(errs, fmt.Errorf("connect.port must be in 1-65535, got %d", c.Connect.Port))
		}
	}

	if _, err := time.ParseDuration(c.Transport.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("transport.timeout: %w", err))
	}

	if c.Capture.Enabled {
		if c.Capture.Dir == "" {
			errs = append(errs, fmt.Errorf("capture.dir is required when capture is enabled"))
		}
		compressions := []string{"none", "lz4", "zstd", "bg4_lz4"}
		if !contains(compressions, c.Capture.Compression) {
			errs = append(errs, fmt.Errorf("capture.compression must be one of: %v", compressions))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Timeout returns the parsed socket timeout. Call Validate first; an
// unparseable value falls back to the default.
func (c *Config) Timeout() time.Duration {
	timeout, err := time.ParseDuration(c.Transport.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return timeout
}

// CapsString concatenates the configured capability fragments into the
// single string advertised during the handshake.
func (c *Config) CapsString() string {
	return strings.Join(c.Node.Caps, "")
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// EnsureCaptureDir creates the capture directory if capture is
// enabled.
func (c *Config) EnsureCaptureDir() error {
	if !c.Capture.Enabled {
		return nil
	}
	if err := os.MkdirAll(c.Capture.Dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Capture.Dir, err)
	}
	return nil
}
