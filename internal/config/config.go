package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/lightfade/internal/fade"
)

// Config represents the application configuration
type Config struct {
	Hue             HueConfig      `yaml:"hue"`
	Session         SessionConfig  `yaml:"session"`
	Log             LogConfig      `yaml:"log"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // Time allowed to flush events on exit
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge       string   `yaml:"bridge"`
	Token        string   `yaml:"token"`
	Light        string   `yaml:"light"`          // Light ID on the bridge (v1 numeric id)
	Timeout      Duration `yaml:"timeout"`        // HTTP timeout for Hue API requests
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Max commands per second sent to the bridge
}

// SessionConfig describes the fade to run
type SessionConfig struct {
	Duration           Duration      `yaml:"duration"`
	StartBrightness    int           `yaml:"start_brightness"`
	EndBrightness      int           `yaml:"end_brightness"`
	StartFromCurrent   bool          `yaml:"start_from_current"` // Use the light's current brightness as start
	Easing             bool          `yaml:"easing"`
	HardwareTransition bool          `yaml:"hardware_transition"`
	ColorMode          bool          `yaml:"color_mode"`
	CurveScript        string        `yaml:"curve_script"` // Optional Lua easing curve
	Palette            PaletteConfig `yaml:"palette"`
}

// PaletteConfig contains the sun mode color endpoints
type PaletteConfig struct {
	Deep    fade.Color `yaml:"deep"`
	Warm    fade.Color `yaml:"warm"`
	HuePath string     `yaml:"hue_path"` // linear (default) or shortest
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains session history settings
type LedgerConfig struct {
	Enabled       *bool `yaml:"enabled"`
	RetentionDays int   `yaml:"retention_days"`
}

// IsEnabled returns whether the ledger is enabled (default: true)
func (c *LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Retention returns the retention window
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 1, keeps events ordered)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 1024)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 1024
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	// Boolean switches default to on, so they are set before decoding
	cfg := Config{
		Session: SessionConfig{
			StartBrightness:    100,
			EndBrightness:      0,
			Easing:             true,
			HardwareTransition: true,
			ColorMode:          true,
			Palette: PaletteConfig{
				Deep: fade.DefaultPalette().Deep,
				Warm: fade.DefaultPalette().Warm,
			},
		},
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lightfade.sqlite"
	}

	// Hue defaults
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(10 * time.Second)
	}
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 10.0 // 10 requests per second
	}

	// Session defaults
	if cfg.Session.Duration == 0 {
		cfg.Session.Duration = Duration(4 * time.Minute)
	}
	if cfg.Session.Palette.HuePath == "" {
		cfg.Session.Palette.HuePath = string(fade.HuePathLinear)
	}

	// Ledger defaults
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// Validate checks settings that cannot be defaulted.
// The Hue section is only required when a real light is driven.
func (c *Config) Validate(dryRun bool) error {
	if !dryRun {
		if c.Hue.Bridge == "" {
			return fmt.Errorf("hue.bridge is required")
		}
		if c.Hue.Token == "" {
			return fmt.Errorf("hue.token is required")
		}
		if c.Hue.Light == "" {
			return fmt.Errorf("hue.light is required")
		}
	}

	switch fade.HuePath(c.Session.Palette.HuePath) {
	case fade.HuePathLinear, fade.HuePathShortest:
	default:
		return fmt.Errorf("session.palette.hue_path must be %q or %q, got %q",
			fade.HuePathLinear, fade.HuePathShortest, c.Session.Palette.HuePath)
	}

	return c.FadeConfig().Validate()
}

// FadeConfig builds the immutable fade description from the session section.
// The curve override is attached by the caller when a script is configured.
func (c *Config) FadeConfig() fade.Config {
	s := c.Session
	return fade.Config{
		Duration:           s.Duration.Duration(),
		StartBrightness:    s.StartBrightness,
		EndBrightness:      s.EndBrightness,
		Easing:             s.Easing,
		HardwareTransition: s.HardwareTransition,
		ColorEnabled:       s.ColorMode,
		Palette: fade.Palette{
			Deep:    s.Palette.Deep,
			Warm:    s.Palette.Warm,
			HuePath: fade.HuePath(s.Palette.HuePath),
		},
	}
}

// GetShutdownTimeout returns the shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
