// Package config holds the on-disk configuration of the bridge: the driver
// endpoint and capabilities, the planner choice and the loop timings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where commands look for the configuration file.
const DefaultPath = "config/appium.yaml"

// Config is the full configuration file.
type Config struct {
	ServerURL            string                 `yaml:"server_url"`
	Capabilities         map[string]interface{} `yaml:"capabilities"`
	ADBBinary            string                 `yaml:"adb_binary"`
	UseAccessibilityDump bool                   `yaml:"use_accessibility_dump"`
	Planner              PlannerConfig          `yaml:"planner"`
	Loop                 LoopConfig             `yaml:"loop"`
	Appium               AppiumConfig           `yaml:"appium"`
	Store                StoreConfig            `yaml:"store"`
}

// PlannerConfig selects and tunes the planning strategy.
type PlannerConfig struct {
	Provider          string        `yaml:"provider"` // heuristic or anthropic
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	Endpoint          string        `yaml:"endpoint"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	RequestsPerMinute int           `yaml:"requests_per_minute"` // 0 = unlimited
	Timeout           time.Duration `yaml:"timeout"`
}

// LoopConfig bounds the control loop and the executor's pauses.
type LoopConfig struct {
	MaxTurns        int           `yaml:"max_turns"`
	HistorySize     int           `yaml:"history_size"`
	NodeLimit       int           `yaml:"node_limit"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	ConnectDelay    time.Duration `yaml:"connect_delay"`
	ElementWait     time.Duration `yaml:"element_wait"`
	KeyboardSettle  time.Duration `yaml:"keyboard_settle"`
	InputSettle     time.Duration `yaml:"input_settle"`
}

// AppiumConfig describes the local automation server managed by the tool.
type AppiumConfig struct {
	Binary       string        `yaml:"binary"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	LogFile      string        `yaml:"log_file"`
	StartTimeout time.Duration `yaml:"start_timeout"`
}

// StoreConfig locates the run history database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns a configuration with every default filled in.
func Default() Config {
	return Config{
		ServerURL:    "http://127.0.0.1:4723",
		Capabilities: map[string]interface{}{},
		ADBBinary:    "adb",
		Planner: PlannerConfig{
			Provider:          "heuristic",
			Model:             "claude-3-5-sonnet-20240620",
			MaxTokens:         1000,
			Endpoint:          "https://api.anthropic.com",
			APIKeyEnv:         "ANTHROPIC_API_KEY",
			RequestsPerMinute: 30,
			Timeout:           60 * time.Second,
		},
		Loop: LoopConfig{
			MaxTurns:        4,
			HistorySize:     6,
			NodeLimit:       40,
			ConnectAttempts: 3,
			ConnectDelay:    2 * time.Second,
			KeyboardSettle:  500 * time.Millisecond,
			InputSettle:     300 * time.Millisecond,
		},
		Appium: AppiumConfig{
			Binary:       "appium",
			Host:         "127.0.0.1",
			Port:         4723,
			StartTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path: "appium-bridge.db",
		},
	}
}

// Load reads the file at path on top of Default. JSON files are accepted
// as YAML.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault is Load, except a missing file yields Default.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes a configuration document on top of Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = map[string]interface{}{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the loop cannot run with.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.Loop.MaxTurns < 1 {
		return fmt.Errorf("loop.max_turns must be >= 1, got %d", c.Loop.MaxTurns)
	}
	if c.Loop.ConnectAttempts < 1 {
		return fmt.Errorf("loop.connect_attempts must be >= 1, got %d", c.Loop.ConnectAttempts)
	}
	if c.Loop.HistorySize < 0 || c.Loop.NodeLimit < 0 {
		return fmt.Errorf("loop.history_size and loop.node_limit must not be negative")
	}
	if c.Appium.Port < 0 || c.Appium.Port > 65535 {
		return fmt.Errorf("appium.port out of range: %d", c.Appium.Port)
	}
	return nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// PlatformName returns the platformName capability, with or without the
// vendor prefix.
func (c Config) PlatformName() string {
	return CapabilityString(c.Capabilities, "platformName")
}

// UDID returns the udid capability.
func (c Config) UDID() string {
	return CapabilityString(c.Capabilities, "udid")
}

// CapabilityString reads a string capability by its plain or "appium:"
// prefixed name.
func CapabilityString(caps map[string]interface{}, name string) string {
	for _, k := range []string{name, "appium:" + name} {
		if v, ok := caps[k].(string); ok {
			return v
		}
	}
	return ""
}

// AndroidCapabilities are the capabilities written by setup for a
// detected device.
func AndroidCapabilities(udid, deviceName string) map[string]interface{} {
	return map[string]interface{}{
		"platformName":             "Android",
		"automationName":           "UiAutomator2",
		"deviceName":               deviceName,
		"udid":                     udid,
		"noReset":                  true,
		"dontStopAppOnReset":       true,
		"skipDeviceInitialization": false,
		"skipServerInstallation":   false,
		"newCommandTimeout":        300,
	}
}
