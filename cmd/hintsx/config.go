package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"hints/internal/wire"
)

// Config is the top-level YAML configuration for the hintsx engine.
//
// The config file is the primary configuration surface; flags exist for small
// overrides. Defaults and validation are centralized here so the rest of the
// code can assume a well-formed config.
type Config struct {
	// Hint label generation
	Hints HintsConfig `yaml:"hints"`

	// What region to scan: the focused window or the whole screen
	OverlayTarget string `yaml:"overlay_target"`

	// Scanning backends, run in order
	Backends []BackendConfig `yaml:"backends"`

	// Pointer movement from direction keys
	Mouse MouseConfig `yaml:"mouse"`

	// Where keystrokes come from: "bridge" or "tty"
	Keys string `yaml:"keys"`

	// Overlay bridge websocket server
	Bridge BridgeConfig `yaml:"bridge"`

	// Daemon socket
	Socket SocketConfig `yaml:"socket"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type HintsConfig struct {
	// Alphabet the labels are spelled in. Home-row-ish ordering by default
	// so the most reachable characters come first.
	Alphabet string `yaml:"alphabet"`

	// Label length bounds. MinLength pads short sessions to a consistent
	// width; MaxLength caps how many elements one session can label.
	MinLength int `yaml:"min_length"`
	MaxLength int `yaml:"max_length"`
}

type BackendConfig struct {
	// Name identifies the backend in logs.
	Name string `yaml:"name"`

	// Command is the argv of the backend executable. It receives the scan
	// region as JSON on stdin and must print a JSON array of elements on
	// stdout.
	Command []string `yaml:"command"`
}

type MouseConfig struct {
	// Direction key bindings, one character each.
	MoveLeft  string `yaml:"move_left"`
	MoveDown  string `yaml:"move_down"`
	MoveUp    string `yaml:"move_up"`
	MoveRight string `yaml:"move_right"`

	// ExitKey cancels the session in addition to Escape. Empty disables it.
	ExitKey string `yaml:"exit_key"`

	// MovePixels is the base nudge distance of one direction keystroke.
	MovePixels int `yaml:"move_pixels"`

	// Velocity ramp-up: once VelocityThreshold nudges in the same direction
	// land within VelocityWindowMS, each further nudge moves
	// MovePixels * VelocityMultiplier.
	VelocityWindowMS   int `yaml:"velocity_window_ms"`
	VelocityThreshold  int `yaml:"velocity_threshold"`
	VelocityMultiplier int `yaml:"velocity_multiplier"`
}

type BridgeConfig struct {
	// Port for the overlay websocket endpoint. Zero disables the bridge,
	// which also rules out the "bridge" key source.
	Port int `yaml:"port"`

	// Per-client outbound queue and hub broadcast queue sizes.
	SendBuf      int `yaml:"send_buf"`
	BroadcastBuf int `yaml:"broadcast_buf"`

	// Minimum interval between pending_changed pushes; bursts coalesce,
	// latest wins.
	PushIntervalMS int `yaml:"push_interval_ms"`
}

type SocketConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Hints: HintsConfig{
			Alphabet:  "asdfgqwertzxcvbhjklyuiopnm",
			MinLength: 1,
			MaxLength: 3,
		},
		OverlayTarget: "window",
		Backends:      nil,
		Mouse: MouseConfig{
			MoveLeft:           "h",
			MoveDown:           "j",
			MoveUp:             "k",
			MoveRight:          "l",
			ExitKey:            "",
			MovePixels:         10,
			VelocityWindowMS:   300,
			VelocityThreshold:  5,
			VelocityMultiplier: 4,
		},
		Keys: "bridge",
		Bridge: BridgeConfig{
			Port:           9311,
			SendBuf:        32,
			BroadcastBuf:   128,
			PushIntervalMS: 50,
		},
		Socket: SocketConfig{
			Path: wire.DefaultSocketPath,
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
	Keys       *string
	SocketPath *string
	BridgePort *int
	Target     *string
	LogLevel   *string
}

// Apply merges the overrides into cfg. Nil pointers are ignored.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Keys != nil {
		cfg.Keys = *o.Keys
	}
	if o.SocketPath != nil {
		cfg.Socket.Path = *o.SocketPath
	}
	if o.BridgePort != nil {
		cfg.Bridge.Port = *o.BridgePort
	}
	if o.Target != nil {
		cfg.OverlayTarget = *o.Target
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if err := validateAlphabet(c.Hints.Alphabet); err != nil {
		return err
	}
	if c.Hints.MinLength < 1 {
		return errors.New("hints.min_length must be >= 1")
	}
	if c.Hints.MaxLength < c.Hints.MinLength {
		return errors.New("hints.max_length must be >= hints.min_length")
	}
	if c.OverlayTarget != "window" && c.OverlayTarget != "screen" {
		return fmt.Errorf("overlay_target must be \"window\" or \"screen\", got %q", c.OverlayTarget)
	}
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backends[%d].name must not be empty", i)
		}
		if len(b.Command) == 0 {
			return fmt.Errorf("backend %q has an empty command", b.Name)
		}
	}
	for _, k := range []struct {
		name, val string
	}{
		{"mouse.move_left", c.Mouse.MoveLeft},
		{"mouse.move_down", c.Mouse.MoveDown},
		{"mouse.move_up", c.Mouse.MoveUp},
		{"mouse.move_right", c.Mouse.MoveRight},
	} {
		if utf8.RuneCountInString(k.val) != 1 {
			return fmt.Errorf("%s must be exactly one character, got %q", k.name, k.val)
		}
	}
	if c.Mouse.ExitKey != "" && utf8.RuneCountInString(c.Mouse.ExitKey) != 1 {
		return fmt.Errorf("mouse.exit_key must be empty or one character, got %q", c.Mouse.ExitKey)
	}
	if c.Mouse.MovePixels < 1 {
		return errors.New("mouse.move_pixels must be >= 1")
	}
	if c.Mouse.VelocityWindowMS < 0 || c.Mouse.VelocityThreshold < 0 {
		return errors.New("mouse velocity window and threshold must be >= 0")
	}
	if c.Mouse.VelocityMultiplier < 1 {
		return errors.New("mouse.velocity_multiplier must be >= 1")
	}
	if c.Keys != "bridge" && c.Keys != "tty" {
		return fmt.Errorf("keys must be \"bridge\" or \"tty\", got %q", c.Keys)
	}
	if c.Bridge.Port < 0 || c.Bridge.Port > 65535 {
		return errors.New("bridge.port must be between 0 and 65535")
	}
	if c.Keys == "bridge" && c.Bridge.Port == 0 {
		return errors.New("keys=bridge requires bridge.port to be set")
	}
	if c.Bridge.PushIntervalMS < 0 {
		return errors.New("bridge.push_interval_ms must be >= 0")
	}
	if c.Socket.Path == "" {
		return errors.New("socket.path must not be empty")
	}
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	return nil
}

// validateAlphabet rejects alphabets the allocator or matcher cannot use:
// too short, duplicate characters, or characters that collide with the
// digit and escape handling.
func validateAlphabet(alphabet string) error {
	runes := []rune(alphabet)
	if len(runes) < 2 {
		return errors.New("hints.alphabet must have at least 2 characters")
	}
	seen := make(map[rune]bool, len(runes))
	for _, r := range runes {
		if r >= '0' && r <= '9' {
			return fmt.Errorf("hints.alphabet must not contain digits (%q)", r)
		}
		if r == keyEscape {
			return errors.New("hints.alphabet must not contain the escape character")
		}
		if seen[r] {
			return fmt.Errorf("hints.alphabet has duplicate character %q", r)
		}
		seen[r] = true
	}
	return nil
}

// bindings converts the configured key names into matcher bindings.
func (c *Config) bindings() directionBindings {
	b := directionBindings{
		left:  firstRune(c.Mouse.MoveLeft),
		down:  firstRune(c.Mouse.MoveDown),
		up:    firstRune(c.Mouse.MoveUp),
		right: firstRune(c.Mouse.MoveRight),
	}
	if c.Mouse.ExitKey != "" {
		b.exit = firstRune(c.Mouse.ExitKey)
	}
	return b
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
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
