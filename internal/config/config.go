// Package config loads the daemon settings: a YAML file, then STARLANE_*
// environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	JournalDir   string        `yaml:"journal_dir" env:"STARLANE_JOURNAL_DIR"`
	DataDir      string        `yaml:"data_dir" env:"STARLANE_DATA_DIR"`
	Listen       string        `yaml:"listen" env:"STARLANE_LISTEN"`
	AllowRemote  bool          `yaml:"allow_remote" env:"STARLANE_ALLOW_REMOTE"`
	PollInterval time.Duration `yaml:"poll_interval" env:"STARLANE_POLL_INTERVAL"`
	SkipReplay   bool          `yaml:"skip_replay" env:"STARLANE_SKIP_REPLAY"`

	HomeSystem        string `yaml:"home_system" env:"STARLANE_HOME_SYSTEM"`
	DestinationSystem string `yaml:"destination_system" env:"STARLANE_DESTINATION_SYSTEM"`

	Profile   ProfileConfig   `yaml:"profile"`
	EDSM      EDSMConfig      `yaml:"edsm"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	KeepAliveAttempts int  `yaml:"keep_alive_attempts" env:"STARLANE_KEEP_ALIVE_ATTEMPTS"`
	Archive           bool `yaml:"archive" env:"STARLANE_ARCHIVE"`
}

type ProfileConfig struct {
	BaseURL string        `yaml:"base_url" env:"STARLANE_PROFILE_BASE_URL"`
	Token   string        `yaml:"token" env:"STARLANE_PROFILE_TOKEN"`
	Rate    float64       `yaml:"rate" env:"STARLANE_PROFILE_RATE"`
	Timeout time.Duration `yaml:"timeout" env:"STARLANE_PROFILE_TIMEOUT"`
}

type EDSMConfig struct {
	Enabled bool          `yaml:"enabled" env:"STARLANE_EDSM_ENABLED"`
	BaseURL string        `yaml:"base_url" env:"STARLANE_EDSM_BASE_URL"`
	Rate    float64       `yaml:"rate" env:"STARLANE_EDSM_RATE"`
	Timeout time.Duration `yaml:"timeout" env:"STARLANE_EDSM_TIMEOUT"`
}

type RefreshConfig struct {
	Attempts int           `yaml:"attempts" env:"STARLANE_REFRESH_ATTEMPTS"`
	Interval time.Duration `yaml:"interval" env:"STARLANE_REFRESH_INTERVAL"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"STARLANE_OTEL_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"STARLANE_OTEL_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"STARLANE_OTEL_SERVICE_NAME"`
}

// Load reads path (optional), applies environment overrides, then
// normalizes and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		JournalDir:   defaultJournalDir(),
		DataDir:      "./data",
		Listen:       "127.0.0.1:8420",
		PollInterval: time.Second,
		Profile: ProfileConfig{
			Rate:    0.5,
			Timeout: 20 * time.Second,
		},
		EDSM: EDSMConfig{
			Enabled: true,
			BaseURL: "https://www.edsm.net",
			Rate:    1,
			Timeout: 15 * time.Second,
		},
		Refresh: RefreshConfig{
			Attempts: 6,
			Interval: 15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "starlane",
		},
		KeepAliveAttempts: 5,
		Archive:           true,
	}
}

func defaultJournalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Saved Games", "Frontier Developments", "Elite Dangerous")
}

func (c *Config) Normalize() {
	c.JournalDir = expandHome(strings.TrimSpace(c.JournalDir))
	c.DataDir = expandHome(strings.TrimSpace(c.DataDir))
	c.Listen = strings.TrimSpace(c.Listen)
	c.HomeSystem = strings.TrimSpace(c.HomeSystem)
	c.DestinationSystem = strings.TrimSpace(c.DestinationSystem)
	c.Profile.BaseURL = strings.TrimRight(strings.TrimSpace(c.Profile.BaseURL), "/")
	c.Profile.Token = strings.TrimSpace(c.Profile.Token)
	c.EDSM.BaseURL = strings.TrimRight(strings.TrimSpace(c.EDSM.BaseURL), "/")
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "starlane"
	}
	if c.PollInterval < 50*time.Millisecond {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.Refresh.Attempts <= 0 {
		c.Refresh.Attempts = 6
	}
	if c.Refresh.Interval <= 0 {
		c.Refresh.Interval = 15 * time.Second
	}
	if c.KeepAliveAttempts <= 0 {
		c.KeepAliveAttempts = 5
	}
}

func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Listen != "" && !strings.Contains(c.Listen, ":") {
		return fmt.Errorf("listen %q: want host:port", c.Listen)
	}
	for name, raw := range map[string]string{"profile.base_url": c.Profile.BaseURL, "edsm.base_url": c.EDSM.BaseURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s %q: want an http(s) URL", name, raw)
		}
	}
	if c.Profile.Rate < 0 || c.EDSM.Rate < 0 {
		return fmt.Errorf("rates must not be negative")
	}
	if c.Refresh.Attempts > 100 {
		return fmt.Errorf("refresh.attempts %d: at most 100", c.Refresh.Attempts)
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
