// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Player backends.
const (
	BackendLocal   = "local"
	BackendSpotify = "spotify"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Service ServiceConfig `yaml:"service"`
	Player  PlayerConfig  `yaml:"player"`
	Spotify SpotifyConfig `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr       string      `yaml:"addr" default:":8080"`
	Token      string      `yaml:"token"`        // Empty disables authentication
	ExitOnStop bool        `yaml:"exit_on_stop"` // Exit when the service stops itself
	Hooks      HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ServiceConfig represents playback service configuration.
type ServiceConfig struct {
	TickIntervalMs int                `yaml:"tick_interval_ms" default:"1000" validate:"gte=100,lte=60000"`
	EventBuffer    int                `yaml:"event_buffer" default:"32" validate:"gte=1,lte=4096"`
	Notification   NotificationConfig `yaml:"notification"`
	HeadlessTask   HeadlessTaskConfig `yaml:"headless_task"`
}

// NotificationConfig represents the placeholder notification used for foreground promotion.
type NotificationConfig struct {
	ID        int    `yaml:"id" default:"1" validate:"gte=1"`
	ChannelID string `yaml:"channel_id" default:"trackd" validate:"required"`
}

// HeadlessTaskConfig represents the bridge task started with the service.
type HeadlessTaskConfig struct {
	Name                string `yaml:"name" default:"TrackPlayer" validate:"required"`
	TimeoutMs           int    `yaml:"timeout_ms" validate:"gte=0"`
	AllowedInForeground *bool  `yaml:"allowed_in_foreground"`
}

// PlayerConfig represents player configuration.
type PlayerConfig struct {
	Backend         string `yaml:"backend" default:"local" validate:"oneof=local spotify"`
	StopWithApp     bool   `yaml:"stop_with_app"`
	JumpIntervalSec int    `yaml:"jump_interval_sec" default:"15" validate:"gte=1,lte=3600"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	RefreshToken     string `yaml:"refresh_token"`
	DeviceID         string `yaml:"device_id"`
	Market           string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms" default:"10000" validate:"gte=100"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("TRACKD_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateBackend(); err != nil {
		return err
	}

	return nil
}

// validateBackend checks that the selected backend has its credentials.
func (c *Config) validateBackend() error {
	if c.Player.Backend != BackendSpotify {
		return nil
	}

	missing := make([]string, 0, 3)
	if c.Spotify.ClientID == "" {
		missing = append(missing, "ClientID")
	}
	if c.Spotify.ClientSecret == "" {
		missing = append(missing, "ClientSecret")
	}
	if c.Spotify.RefreshToken == "" {
		missing = append(missing, "RefreshToken")
	}
	if len(missing) > 0 {
		return errors.Newf("spotify backend requires credentials: missing %v", missing)
	}
	return nil
}

// TickInterval returns the tick timer interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Service.TickIntervalMs) * time.Millisecond
}

// JumpInterval returns the jump interval reported with remote jump events.
func (c *Config) JumpInterval() time.Duration {
	return time.Duration(c.Player.JumpIntervalSec) * time.Second
}

// HeadlessTaskTimeout returns the bridge task timeout. Zero means no timeout.
func (c *Config) HeadlessTaskTimeout() time.Duration {
	return time.Duration(c.Service.HeadlessTask.TimeoutMs) * time.Millisecond
}

// HeadlessTaskAllowedInForeground reports whether the bridge task may run
// while a UI is in the foreground. Unset means allowed.
func (c *Config) HeadlessTaskAllowedInForeground() bool {
	if c.Service.HeadlessTask.AllowedInForeground == nil {
		return true
	}
	return *c.Service.HeadlessTask.AllowedInForeground
}

// SpotifyRequestTimeout returns the timeout for a single Spotify Web API call.
func (c *Config) SpotifyRequestTimeout() time.Duration {
	return time.Duration(c.Spotify.RequestTimeoutMs) * time.Millisecond
}
