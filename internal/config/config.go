// Package config loads and watches the bot's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the on-disk configuration. All duration fields are Go duration
// strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Reminders RemindersConfig `yaml:"reminders"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	PollTimeout string `yaml:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `yaml:"level,omitempty"`
	Console *bool      `yaml:"console,omitempty"` // default true
	File    FileConfig `yaml:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout,omitempty"`
}

type RemindersConfig struct {
	// Timezone is the IANA zone commands and cron fields are interpreted
	// in, e.g. "Europe/Berlin".
	Timezone string `yaml:"timezone,omitempty"`
	// Tick is the scheduler wake granularity.
	Tick string `yaml:"tick,omitempty"`
	// AlarmRepeatInterval is how often a fired alarm re-sounds.
	AlarmRepeatInterval string `yaml:"alarm_repeat_interval,omitempty"`
	// CreateGrace is how far in the past a first fire may land before a
	// create command is rejected.
	CreateGrace string `yaml:"create_grace,omitempty"`
	// RatePerSec caps outbound notifications.
	RatePerSec int `yaml:"rate_per_sec,omitempty"`
}

// Load reads and validates the config file. Unknown keys are rejected so
// typos surface at startup instead of silently using defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if tz := strings.TrimSpace(c.Reminders.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminders.timezone: %w", err)
		}
	}
	for path, raw := range map[string]string{
		"telegram.poll_timeout":           c.Telegram.PollTimeout,
		"storage.busy_timeout":            c.Storage.BusyTimeout,
		"reminders.tick":                  c.Reminders.Tick,
		"reminders.alarm_repeat_interval": c.Reminders.AlarmRepeatInterval,
		"reminders.create_grace":          c.Reminders.CreateGrace,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}

// ParseDurationField parses an optional Go duration string; empty means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// Duration resolves an already-validated duration field with a default.
func Duration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d == 0 {
		return def
	}
	return d
}

// ConsoleEnabled defaults console logging to on.
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}
