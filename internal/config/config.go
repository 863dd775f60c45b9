// Package config loads the YAML configuration of the ustack harness.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/ustack/internal/logging"
)

// Driver names accepted in DeviceConfig.Driver.
const (
	DriverDummy    = "dummy"
	DriverLoopback = "loopback"
)

// Config is the top-level configuration document.
type Config struct {
	Log        LogConfig       `yaml:"log"`
	Interrupts InterruptConfig `yaml:"interrupts"`
	Devices    []DeviceConfig  `yaml:"devices"`
	Capture    CaptureConfig   `yaml:"capture"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Traffic    TrafficConfig   `yaml:"traffic"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// InterruptConfig selects how virtual interrupt lines are delivered.
type InterruptConfig struct {
	// Signals routes lines through POSIX signals instead of the in-process
	// queue.
	Signals bool `yaml:"signals"`
	// LateRegistration allows drivers to register after the stack runs.
	LateRegistration bool `yaml:"lateRegistration"`
}

type DeviceConfig struct {
	Driver string `yaml:"driver"`
}

// CaptureConfig enables pcap capture of all device traffic when Path is set.
type CaptureConfig struct {
	Path    string `yaml:"path"`
	SnapLen uint32 `yaml:"snapLen"`
}

// MetricsConfig exposes Prometheus metrics when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// TrafficConfig drives the periodic test output.
type TrafficConfig struct {
	Interval  time.Duration `yaml:"interval"`
	EtherType uint16        `yaml:"etherType"`
	// Device is the name of the output device; empty selects net0.
	Device string `yaml:"device"`
}

// Default returns the configuration used when no file is given: a single
// loopback device receiving one IPv4 test packet per second.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: string(logging.FormatAuto),
		},
		Devices: []DeviceConfig{{Driver: DriverLoopback}},
		Traffic: TrafficConfig{
			Interval:  time.Second,
			EtherType: 0x0800,
		},
	}
}

// Load reads and validates the file at path, filling unset fields from
// Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("devices: at least one device is required")
	}
	for i, dev := range c.Devices {
		switch dev.Driver {
		case DriverDummy, DriverLoopback:
		default:
			return fmt.Errorf("devices[%d].driver: unknown driver %q", i, dev.Driver)
		}
	}
	if c.Traffic.Interval <= 0 {
		return fmt.Errorf("traffic.interval: must be positive, got %s", c.Traffic.Interval)
	}
	return nil
}
