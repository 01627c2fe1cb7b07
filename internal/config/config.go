// Package config loads the collector's device configuration: an ordered
// list of capture peripherals with their serial paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hujon/ble-monitoring-probe/internal/seriallink"
)

// DefaultPath is where the collector looks when -config is not given.
const DefaultPath = "collector.yaml"

// maxFileSize bounds the config read; anything larger is a mistake.
const maxFileSize = 1 * 1024 * 1024

// Device describes one capture peripheral section.
type Device struct {
	Name string `yaml:"name"`

	// Enabled defaults to true when omitted; disabled sections spawn no
	// session.
	Enabled *bool `yaml:"enabled"`

	// Path is the serial device path, e.g. /dev/ttyUSB0.
	Path string `yaml:"path"`

	// Baud defaults to the firmware's 115200 when omitted.
	Baud int `yaml:"baud"`
}

// IsEnabled reports whether the section should spawn a capture session.
func (d Device) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// BaudRate returns the configured baud rate or the default.
func (d Device) BaudRate() int {
	if d.Baud <= 0 {
		return seriallink.DefaultBaudRate
	}
	return d.Baud
}

// Label is the name used in log lines and timing rows; sections without an
// explicit name fall back to the serial path.
func (d Device) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Path
}

// Config is the root collector configuration.
type Config struct {
	Devices []Device `yaml:"devices"`
}

// Load reads and validates a YAML config file. Fields omitted from a section
// keep their defaults, so partial sections are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)

	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must be .yaml or .yml, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that every enabled section is usable.
func (c *Config) Validate() error {
	for i, d := range c.Devices {
		if !d.IsEnabled() {
			continue
		}
		if d.Path == "" {
			return fmt.Errorf("device %d (%s): path is required", i, d.Label())
		}
		if d.Baud < 0 {
			return fmt.Errorf("device %d (%s): baud must be positive, got %d", i, d.Label(), d.Baud)
		}
	}
	return nil
}

// EnabledDevices returns the sections that should spawn sessions, in file
// order.
func (c *Config) EnabledDevices() []Device {
	var enabled []Device
	for _, d := range c.Devices {
		if d.IsEnabled() {
			enabled = append(enabled, d)
		}
	}
	return enabled
}
