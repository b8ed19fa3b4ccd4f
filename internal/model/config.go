package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds the connection settings for the service-desk backend.
type ServerConfig struct {
	// BaseURL is the root URL of the REST API
	// (e.g., https://desk.corp.example.com/api).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// RealtimePath is the websocket endpoint path, resolved against
	// BaseURL with the scheme switched to ws/wss.
	RealtimePath string `mapstructure:"realtime_path" yaml:"realtime_path"`

	// ReconnectDelaySec is the fixed delay between websocket
	// reconnection attempts.
	ReconnectDelaySec int `mapstructure:"reconnect_delay_sec" yaml:"reconnect_delay_sec"`

	// MaxReconnectAttempts caps consecutive reconnection attempts before
	// the client settles into polling-only mode.
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
}

// PollConfig holds settings for the unread-count fallback poller.
type PollConfig struct {
	// IntervalSec is how often the poller checks the server's unread
	// count while the terminal is focused.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`

	// ToastSec is how long transient toasts stay on screen.
	ToastSec int `mapstructure:"toast_sec" yaml:"toast_sec"`
}

// HistoryConfig controls the local notification history cache.
type HistoryConfig struct {
	// RetentionDays is how long cached notifications are kept before
	// being pruned on startup. Zero disables pruning.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Poll    PollConfig    `mapstructure:"poll" yaml:"poll"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

// Configured reports whether the config names a backend to talk to.
func (c *AppConfig) Configured() bool {
	return c.Server.BaseURL != ""
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/deskwatch/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "deskwatch", "config.yaml")
}

// DefaultStateDir returns the directory used for the history cache and
// log file, located at ~/.local/state/deskwatch.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "state", "deskwatch")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			RealtimePath:         "/ws",
			ReconnectDelaySec:    3,
			MaxReconnectAttempts: 5,
		},
		Poll: PollConfig{
			IntervalSec: 12,
		},
		Display: DisplayConfig{
			Theme:    "default",
			ToastSec: 4,
		},
		History: HistoryConfig{
			RetentionDays: 30,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("server.realtime_path", "/ws")
	v.SetDefault("server.reconnect_delay_sec", 3)
	v.SetDefault("server.max_reconnect_attempts", 5)
	v.SetDefault("poll.interval_sec", 12)
	v.SetDefault("display.theme", "default")
	v.SetDefault("display.toast_sec", 4)
	v.SetDefault("history.retention_days", 30)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("poll", cfg.Poll)
	v.Set("display", cfg.Display)
	v.Set("history", cfg.History)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
