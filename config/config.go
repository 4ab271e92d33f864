package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultBackendURL      = "http://localhost:5000"
	defaultBackendTimeout  = 2 * time.Minute
	defaultSampleRate      = 44100
	defaultChannels        = 1
	defaultFramesPerBuffer = 1024
	defaultDevice          = -1
	defaultMaxDuration     = 2 * time.Minute
	defaultMaxBytes        = 32 * 1024 * 1024
	defaultViewAddr        = "localhost:8444"
	defaultInboxDir        = "inbox"
	defaultInboxWorkers    = 1
	defaultInboxQueueSize  = 100
)

// Config is the complete client configuration
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Audio   AudioConfig   `yaml:"audio"`
	Chat    ChatConfig    `yaml:"chat"`
	View    ViewConfig    `yaml:"view"`
	Inbox   InboxConfig   `yaml:"inbox"`
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig points at the PDF chat backend
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AudioConfig controls microphone capture
type AudioConfig struct {
	SampleRate      int           `yaml:"sample_rate"`
	Channels        int           `yaml:"channels"`
	FramesPerBuffer int           `yaml:"frames_per_buffer"`
	Device          int           `yaml:"device"` // PortAudio index from -list-devices, -1 for the default
	MaxDuration     time.Duration `yaml:"max_duration"`
	MaxBytes        int           `yaml:"max_bytes"`
}

// ChatConfig controls chat turn behavior
type ChatConfig struct {
	Autoplay            bool `yaml:"autoplay"`
	SendEmptyRecordings bool `yaml:"send_empty_recordings"`
}

// ViewConfig controls the local web view
type ViewConfig struct {
	Address string `yaml:"address"`
}

// InboxConfig controls the PDF drop directory
type InboxConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
}

// LoggingConfig controls the slog handler
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every field set to its default
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: defaultBackendURL,
			Timeout: defaultBackendTimeout,
		},
		Audio: AudioConfig{
			SampleRate:      defaultSampleRate,
			Channels:        defaultChannels,
			FramesPerBuffer: defaultFramesPerBuffer,
			Device:          defaultDevice,
			MaxDuration:     defaultMaxDuration,
			MaxBytes:        defaultMaxBytes,
		},
		Chat: ChatConfig{
			SendEmptyRecordings: true,
		},
		View: ViewConfig{
			Address: defaultViewAddr,
		},
		Inbox: InboxConfig{
			Dir:       defaultInboxDir,
			Workers:   defaultInboxWorkers,
			QueueSize: defaultInboxQueueSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error; an empty path skips the file entirely.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("Config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PDFCHAT_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("PDFCHAT_VIEW_ADDR"); v != "" {
		c.View.Address = v
	}
	if v := os.Getenv("PDFCHAT_INBOX_DIR"); v != "" {
		c.Inbox.Dir = v
		c.Inbox.Enabled = true
	}
	if v := os.Getenv("PDFCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.View.Validate(); err != nil {
		return fmt.Errorf("view config: %w", err)
	}
	if err := c.Inbox.Validate(); err != nil {
		return fmt.Errorf("inbox config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (b *BackendConfig) Validate() error {
	if b.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	u, err := url.Parse(b.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", b.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https, got %q", u.Scheme)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", b.Timeout)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", a.SampleRate)
	}
	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}
	if a.FramesPerBuffer < 64 {
		return fmt.Errorf("frames_per_buffer must be at least 64, got %d", a.FramesPerBuffer)
	}
	if a.Device < defaultDevice {
		return fmt.Errorf("device must be -1 (default) or a device index, got %d", a.Device)
	}
	if a.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be positive, got %s", a.MaxDuration)
	}
	if a.MaxBytes <= 0 {
		return fmt.Errorf("max_bytes must be positive, got %d", a.MaxBytes)
	}
	return nil
}

// RecordingLimit is the buffer cap in bytes implied by both max_duration and
// max_bytes, whichever is smaller.
func (a *AudioConfig) RecordingLimit() int {
	bytesPerSecond := a.SampleRate * a.Channels * 2
	byDuration := int(a.MaxDuration.Seconds() * float64(bytesPerSecond))
	if byDuration < a.MaxBytes {
		return byDuration
	}
	return a.MaxBytes
}

func (v *ViewConfig) Validate() error {
	if v.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	return nil
}

func (i *InboxConfig) Validate() error {
	if !i.Enabled {
		return nil
	}
	if i.Dir == "" {
		return fmt.Errorf("dir cannot be empty when the inbox is enabled")
	}
	if i.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", i.Workers)
	}
	if i.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", i.QueueSize)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}

// SlogLevel maps the configured level name onto slog
func (l *LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
