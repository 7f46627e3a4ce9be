// Package config loads the physiopal YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/physiopal/internal/detector"
	"github.com/ayusman/physiopal/internal/session"
	"github.com/ayusman/physiopal/internal/smoothing"
)

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Store    StoreConfig     `yaml:"store"`
	Camera   CameraConfig    `yaml:"camera"`
	Detector detector.Config `yaml:"detector"`
	Tuning   Tuning          `yaml:"tuning"`
	Log      LogConfig       `yaml:"log"`
}

// ServerConfig contains HTTP settings.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// StoreConfig points at the profile database. An empty path means
// ~/.physiopal/physiopal.db.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// CameraConfig contains capture settings.
type CameraConfig struct {
	DeviceID        int     `yaml:"device_id"`
	Video           string  `yaml:"video"` // play back a file instead of the device
	FPS             int     `yaml:"fps"`
	IdleFPS         int     `yaml:"idle_fps"`
	IdleAfter       string  `yaml:"idle_after"`
	MotionThreshold float64 `yaml:"motion_threshold"` // percent of changed pixels
}

// IdleWindow parses IdleAfter; empty means 2s.
func (c CameraConfig) IdleWindow() (time.Duration, error) {
	if c.IdleAfter == "" {
		return 2 * time.Second, nil
	}
	d, err := time.ParseDuration(c.IdleAfter)
	if err != nil {
		return 0, fmt.Errorf("invalid camera.idle_after '%s': %w", c.IdleAfter, err)
	}
	return d, nil
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Tuning holds the analysis parameters shared by every session.
type Tuning struct {
	Exercise          string           `yaml:"exercise"`
	Level             string           `yaml:"level"`
	BufferCapacity    int              `yaml:"buffer_capacity"`
	WarmupFrames      int              `yaml:"warmup_frames"`
	DwellFrames       int              `yaml:"dwell_frames"`
	MinConfidence     float64          `yaml:"min_confidence"`
	InactivityTimeout string           `yaml:"inactivity_timeout"`
	Smoothing         smoothing.Config `yaml:"smoothing"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := session.DefaultOptions()
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Camera:   CameraConfig{DeviceID: 0, FPS: 15, IdleFPS: 5, IdleAfter: "2s", MotionThreshold: 1.0},
		Detector: detector.DefaultConfig(),
		Tuning: Tuning{
			Exercise:          "squat",
			Level:             "beginner",
			BufferCapacity:    opts.BufferCapacity,
			WarmupFrames:      opts.Warmup,
			DwellFrames:       opts.Dwell,
			MinConfidence:     opts.MinConfidence,
			InactivityTimeout: opts.InactivityTimeout.String(),
			Smoothing:         opts.Smoothing,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be positive, got %d", c.Camera.FPS)
	}
	if c.Camera.IdleFPS < 0 || c.Camera.IdleFPS > c.Camera.FPS {
		return fmt.Errorf("camera.idle_fps must be between 0 and fps, got %d", c.Camera.IdleFPS)
	}
	if _, err := c.Camera.IdleWindow(); err != nil {
		return err
	}
	if c.Camera.MotionThreshold < 0 || c.Camera.MotionThreshold > 100 {
		return fmt.Errorf("camera.motion_threshold must be between 0 and 100, got %f", c.Camera.MotionThreshold)
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return fmt.Errorf("detector.min_confidence must be between 0 and 1, got %f", c.Detector.MinConfidence)
	}
	if c.Detector.IdleTimeout != "" {
		if _, err := time.ParseDuration(c.Detector.IdleTimeout); err != nil {
			return fmt.Errorf("invalid detector.idle_timeout '%s': %w", c.Detector.IdleTimeout, err)
		}
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	if _, err := c.Tuning.SessionOptions(); err != nil {
		return err
	}
	return nil
}

// SessionOptions converts the tuning into session options.
func (t Tuning) SessionOptions() (session.Options, error) {
	if t.BufferCapacity < 0 || t.WarmupFrames < 0 || t.DwellFrames < 0 {
		return session.Options{}, fmt.Errorf("tuning frame counts must be non-negative")
	}
	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		return session.Options{}, fmt.Errorf("tuning.min_confidence must be between 0 and 1, got %f", t.MinConfidence)
	}
	opts := session.Options{
		BufferCapacity: t.BufferCapacity,
		Warmup:         t.WarmupFrames,
		Dwell:          t.DwellFrames,
		MinConfidence:  t.MinConfidence,
		Smoothing:      t.Smoothing,
	}
	if t.InactivityTimeout != "" {
		d, err := time.ParseDuration(t.InactivityTimeout)
		if err != nil {
			return session.Options{}, fmt.Errorf("invalid tuning.inactivity_timeout '%s': %w", t.InactivityTimeout, err)
		}
		opts.InactivityTimeout = d
	}
	if err := opts.Validate(); err != nil {
		return session.Options{}, fmt.Errorf("tuning: %w", err)
	}
	return opts, nil
}
