package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"hints/internal/wire"
)

// Config is the top-level YAML configuration for the hintsd daemon.
//
// The config file is the primary configuration surface; flags exist for small
// overrides and for environments where a file is awkward. Defaults and
// validation are centralized here so the rest of the code can assume a
// well-formed config.
type Config struct {
	// Socket the daemon listens on
	Socket SocketConfig `yaml:"socket"`

	// Injection device and pacing
	Device DeviceConfig `yaml:"device"`

	// Known display bounds for absolute coordinate validation
	Display DisplayConfig `yaml:"display"`

	// Status/metrics HTTP server
	Status StatusConfig `yaml:"status"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type SocketConfig struct {
	Path string `yaml:"path"`
}

type DeviceConfig struct {
	// Path to the uinput control node.
	Path string `yaml:"path"`

	// Pacing between injected events, in milliseconds. Zero disables the
	// corresponding delay (useful for tests, jarring for real compositors).
	WritePauseMS  int `yaml:"write_pause_ms"`
	ButtonPauseMS int `yaml:"button_pause_ms"`
	SettleMS      int `yaml:"settle_ms"`
}

type DisplayConfig struct {
	// Width/Height in pixels. Zero means bounds are not tracked: absolute
	// coordinates are never rejected and the absolute axes use the default
	// range.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type StatusConfig struct {
	// Port for /healthz and /metrics. Zero disables the server.
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Socket: SocketConfig{
			Path: wire.DefaultSocketPath,
		},
		Device: DeviceConfig{
			Path:          defaultUinputPath,
			WritePauseMS:  defaultWritePauseMS,
			ButtonPauseMS: defaultButtonPauseMS,
			SettleMS:      defaultSettleMS,
		},
		Display: DisplayConfig{},
		Status: StatusConfig{
			Port: 0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
// Flags pass pointers; each override is only applied if the pointer is
// non-nil. main.go decides which flags exist.
type FlagOverrides struct {
	SocketPath *string
	DevicePath *string
	StatusPort *int
	LogLevel   *string
}

// Apply merges the overrides into cfg. Nil pointers are ignored.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.SocketPath != nil {
		cfg.Socket.Path = *o.SocketPath
	}
	if o.DevicePath != nil {
		cfg.Device.Path = *o.DevicePath
	}
	if o.StatusPort != nil {
		cfg.Status.Port = *o.StatusPort
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if c.Socket.Path == "" {
		return errors.New("socket.path must not be empty")
	}
	if c.Device.Path == "" {
		return errors.New("device.path must not be empty")
	}
	if c.Device.WritePauseMS < 0 || c.Device.ButtonPauseMS < 0 || c.Device.SettleMS < 0 {
		return errors.New("device pacing values must be >= 0")
	}
	if c.Display.Width < 0 || c.Display.Height < 0 {
		return errors.New("display.width and display.height must be >= 0")
	}
	if (c.Display.Width == 0) != (c.Display.Height == 0) {
		return errors.New("display.width and display.height must be set together")
	}
	if c.Status.Port < 0 || c.Status.Port > 65535 {
		return errors.New("status.port must be between 0 and 65535")
	}
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	return nil
}

// toPacing converts the millisecond knobs into executor pacing.
func (c *Config) toPacing() pacing {
	return pacing{
		writePause:  time.Duration(c.Device.WritePauseMS) * time.Millisecond,
		buttonPause: time.Duration(c.Device.ButtonPauseMS) * time.Millisecond,
		settle:      time.Duration(c.Device.SettleMS) * time.Millisecond,
	}
}

// toBounds converts the display config into executor bounds.
func (c *Config) toBounds() displayBounds {
	return displayBounds{
		width:  int32(c.Display.Width),
		height: int32(c.Display.Height),
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
