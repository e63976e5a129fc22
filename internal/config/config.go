// Package config provides configuration loading for go-posture commands.
//
// Values are layered: built-in defaults, then an optional TOML file, then a
// .env file and POSTURE_* environment variables. Command-line flags are
// applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultAPIBase     = "http://localhost:5000"
	DefaultInterval    = time.Second
	DefaultLockAfter   = 10 * time.Second
	DefaultTickTimeout = 5 * time.Second
	DefaultWebAddr     = ":8080"
	DefaultTopic       = "posture/{session_id}/lockout"
	DefaultClientID    = "go-posture"
)

// Config holds all configuration for the posture agent.
type Config struct {
	// APIBase is the inference service base URL, without trailing slash.
	APIBase string `toml:"api_base"`

	// PingOnStart checks GET {APIBase}/ping before starting the loop.
	PingOnStart bool `toml:"ping_on_start"`

	Interval    time.Duration `toml:"interval"`
	LockAfter   time.Duration `toml:"lock_after"`
	TickTimeout time.Duration `toml:"tick_timeout"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // "text", "json" or "auto"

	Camera CameraConfig `toml:"camera"`
	Web    WebConfig    `toml:"web"`
	Alarm  AlarmConfig  `toml:"alarm"`
	MQTT   MQTTConfig   `toml:"mqtt"`
}

// CameraConfig selects and shapes the capture device.
type CameraConfig struct {
	Device  string `toml:"device"` // empty = first enumerated device
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
	Quality int    `toml:"quality"`
}

// WebConfig controls the local lockout page.
type WebConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// AlarmConfig controls the local alarm player. Sound is a WAV path or
// "tone" for the built-in beep; empty disables the local player.
type AlarmConfig struct {
	Sound  string `toml:"sound"`
	Player string `toml:"player"` // command line, empty = auto-detect
}

// MQTTConfig controls lockout event publishing. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Topic    string `toml:"topic"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIBase:     DefaultAPIBase,
		PingOnStart: true,
		Interval:    DefaultInterval,
		LockAfter:   DefaultLockAfter,
		TickTimeout: DefaultTickTimeout,
		LogLevel:    "info",
		LogFormat:   "auto",
		Camera: CameraConfig{
			Width:   224,
			Height:  224,
			Quality: 85,
		},
		Web: WebConfig{
			Enabled: true,
			Addr:    DefaultWebAddr,
		},
		MQTT: MQTTConfig{
			ClientID: DefaultClientID,
			Topic:    DefaultTopic,
		},
	}
}

// Load builds a Config from defaults, the TOML file at path (if non-empty),
// the .env file at envFile (if it exists) and the process environment.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return cfg, fmt.Errorf("load %s: %w", envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("stat %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	cfg.APIBase = strings.TrimSuffix(cfg.APIBase, "/")
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("POSTURE_API_BASE"); v != "" {
		c.APIBase = v
	}
	if v := os.Getenv("POSTURE_PING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("POSTURE_PING: %w", err)
		}
		c.PingOnStart = b
	}
	if v := os.Getenv("POSTURE_LOCK_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("POSTURE_LOCK_AFTER: %w", err)
		}
		c.LockAfter = d
	}
	if v := os.Getenv("POSTURE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("POSTURE_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("POSTURE_CAMERA"); v != "" {
		c.Camera.Device = v
	}
	if v := os.Getenv("POSTURE_WEB_ADDR"); v != "" {
		c.Web.Addr = v
	}
	if v := os.Getenv("POSTURE_ALARM_SOUND"); v != "" {
		c.Alarm.Sound = v
	}
	if v := os.Getenv("POSTURE_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("POSTURE_MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("POSTURE_MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.APIBase == "" {
		return errors.New("api_base is required")
	}
	if !strings.HasPrefix(c.APIBase, "http://") && !strings.HasPrefix(c.APIBase, "https://") {
		return fmt.Errorf("api_base must be an http(s) URL, got %q", c.APIBase)
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.LockAfter <= 0 {
		return errors.New("lock_after must be positive")
	}
	if c.TickTimeout <= 0 {
		return errors.New("tick_timeout must be positive")
	}
	switch c.LogFormat {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("log_format must be text, json or auto, got %q", c.LogFormat)
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		return errors.New("camera.quality must be between 1 and 100")
	}
	if c.Web.Enabled && c.Web.Addr == "" {
		return errors.New("web.addr is required when the web page is enabled")
	}
	return nil
}
