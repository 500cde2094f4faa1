package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all gmailvault configuration.
type Config struct {
	Gmail GmailConfig `toml:"gmail"`
	Sync  SyncConfig  `toml:"sync"`
	Cache CacheConfig `toml:"cache"`
	Rate  RateConfig  `toml:"rate"`
	Auth  AuthConfig  `toml:"auth"`
}

// GmailConfig holds Gmail OAuth credentials. No credentials are embedded in
// the binary; users supply their own via the config file or the
// GMAIL_CLIENT_ID / GMAIL_CLIENT_SECRET environment variables.
type GmailConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// SyncConfig holds synchronization settings.
type SyncConfig struct {
	Interval     string `toml:"interval"`
	InitialCount int    `toml:"initial_count"`
}

// CacheConfig bounds the local message cache.
type CacheConfig struct {
	MaxEntries int `toml:"max_entries"`
	EvictBatch int `toml:"evict_batch"`
}

// RateConfig bounds outbound API calls per one-minute window, by endpoint
// class.
type RateConfig struct {
	ReadPerMinute  int    `toml:"read_per_minute"`
	WritePerMinute int    `toml:"write_per_minute"`
	BatchPerMinute int    `toml:"batch_per_minute"`
	MaxWait        string `toml:"max_wait"`
}

// AuthConfig configures the local OAuth callback receiver.
type AuthConfig struct {
	CallbackPorts []int  `toml:"callback_ports"`
	Timeout       string `toml:"timeout"`
}

func defaults() Config {
	return Config{
		Sync: SyncConfig{
			Interval:     "5m",
			InitialCount: 500,
		},
		Cache: CacheConfig{
			MaxEntries: 100,
			EvictBatch: 20,
		},
		Rate: RateConfig{
			ReadPerMinute:  250,
			WritePerMinute: 50,
			BatchPerMinute: 25,
			MaxWait:        "30s",
		},
		Auth: AuthConfig{
			CallbackPorts: []int{8365, 8366, 8367},
			Timeout:       "10m",
		},
	}
}

// Load reads config from path, applying environment overrides for Gmail
// credentials. If path is empty or missing, returns defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if v := os.Getenv("GMAIL_CLIENT_ID"); v != "" {
		cfg.Gmail.ClientID = v
	}
	if v := os.Getenv("GMAIL_CLIENT_SECRET"); v != "" {
		cfg.Gmail.ClientSecret = v
	}

	return &cfg, nil
}

// HasCredentials reports whether OAuth credentials have been configured.
// Without them the Gmail subsystem stays inert rather than crashing.
func (c *Config) HasCredentials() bool {
	return c.Gmail.ClientID != "" && c.Gmail.ClientSecret != ""
}

// ConfigDir returns the gmailvault config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gmailvault")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gmailvault")
}

// DataDir returns the gmailvault data directory path.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "gmailvault")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "gmailvault")
}
