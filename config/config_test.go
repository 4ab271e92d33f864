package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, defaultBackendURL, cfg.Backend.BaseURL)
	assert.Equal(t, defaultSampleRate, cfg.Audio.SampleRate)
	assert.True(t, cfg.Chat.SendEmptyRecordings)
	assert.False(t, cfg.Inbox.Enabled)
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: https://chat.example.com
  timeout: 45s
audio:
  sample_rate: 16000
  channels: 1
  frames_per_buffer: 512
  max_duration: 30s
  max_bytes: 1048576
chat:
  autoplay: true
  send_empty_recordings: false
view:
  address: 127.0.0.1:9000
inbox:
  enabled: true
  dir: /tmp/pdfs
  workers: 2
  queue_size: 10
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 30*time.Second, cfg.Audio.MaxDuration)
	assert.True(t, cfg.Chat.Autoplay)
	assert.False(t, cfg.Chat.SendEmptyRecordings)
	assert.Equal(t, "127.0.0.1:9000", cfg.View.Address)
	assert.Equal(t, 2, cfg.Inbox.Workers)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PDFCHAT_BACKEND_URL", "http://backend:8080")
	t.Setenv("PDFCHAT_INBOX_DIR", "/srv/inbox")
	t.Setenv("PDFCHAT_LOG_LEVEL", "WARN")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8080", cfg.Backend.BaseURL)
	assert.True(t, cfg.Inbox.Enabled)
	assert.Equal(t, "/srv/inbox", cfg.Inbox.Dir)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "backend: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:     "backend url without scheme",
			mutate:   func(c *Config) { c.Backend.BaseURL = "localhost:5000" },
			errorMsg: "base_url must use http or https",
		},
		{
			name:     "zero timeout",
			mutate:   func(c *Config) { c.Backend.Timeout = 0 },
			errorMsg: "timeout must be positive",
		},
		{
			name:     "sample rate too low",
			mutate:   func(c *Config) { c.Audio.SampleRate = 4000 },
			errorMsg: "sample_rate must be between",
		},
		{
			name:     "three channels",
			mutate:   func(c *Config) { c.Audio.Channels = 3 },
			errorMsg: "channels must be 1 or 2",
		},
		{
			name:     "unbounded recording",
			mutate:   func(c *Config) { c.Audio.MaxBytes = 0 },
			errorMsg: "max_bytes must be positive",
		},
		{
			name:     "empty view address",
			mutate:   func(c *Config) { c.View.Address = "" },
			errorMsg: "address cannot be empty",
		},
		{
			name: "enabled inbox without dir",
			mutate: func(c *Config) {
				c.Inbox.Enabled = true
				c.Inbox.Dir = ""
			},
			errorMsg: "dir cannot be empty",
		},
		{
			name: "disabled inbox ignores workers",
			mutate: func(c *Config) {
				c.Inbox.Workers = 0
			},
		},
		{
			name:   "device zero is a real device",
			mutate: func(c *Config) { c.Audio.Device = 0 },
		},
		{
			name:     "device below default",
			mutate:   func(c *Config) { c.Audio.Device = -2 },
			errorMsg: "device must be -1",
		},
		{
			name:     "unknown log level",
			mutate:   func(c *Config) { c.Logging.Level = "trace" },
			errorMsg: "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestDefaultDeviceIsSystemDefault(t *testing.T) {
	assert.Equal(t, -1, Default().Audio.Device)
}

func TestRecordingLimit(t *testing.T) {
	a := AudioConfig{SampleRate: 16000, Channels: 1, MaxDuration: 10 * time.Second, MaxBytes: 1 << 30}
	assert.Equal(t, 16000*2*10, a.RecordingLimit())

	a.MaxBytes = 1000
	assert.Equal(t, 1000, a.RecordingLimit())
}
