package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for adb-sync.
type Config struct {
	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// ADBPath is the adb executable, looked up in PATH when not absolute.
	ADBPath string `env:"ADB_PATH" envDefault:"adb"`

	// ADBSerial pins the device to use. Empty selects the first online
	// device.
	ADBSerial string `env:"ADB_SERIAL"`

	// Per-command timeouts for the adb transport.
	CommandTimeout  time.Duration `env:"ADB_COMMAND_TIMEOUT" envDefault:"10s"`
	ListTimeout     time.Duration `env:"ADB_LIST_TIMEOUT" envDefault:"30s"`
	TransferTimeout time.Duration `env:"ADB_TRANSFER_TIMEOUT" envDefault:"60s"`

	// StateDir holds the state database and the run lock. Defaults to
	// ~/.adb-sync.
	StateDir string `env:"STATE_DIR"`

	// PipelinesFile is the YAML pipeline list. Defaults to
	// <StateDir>/pipelines.yaml.
	PipelinesFile string `env:"PIPELINES_FILE"`

	// Daemon settings.
	DevicePollInterval time.Duration `env:"DEVICE_POLL_INTERVAL" envDefault:"5s"`
	WatchDebounce      time.Duration `env:"WATCH_DEBOUNCE" envDefault:"2s"`
	AutoSyncCooldown   time.Duration `env:"AUTO_SYNC_COOLDOWN" envDefault:"30m"`

	// MCPListenAddr serves the MCP control endpoint from the daemon, for
	// example 127.0.0.1:8765. Empty disables it.
	MCPListenAddr string `env:"MCP_LISTEN_ADDR"`

	// HistoryLimit caps the number of runs kept in the state database.
	HistoryLimit int `env:"HISTORY_LIMIT" envDefault:"500"`
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.StateDir == "" {
		dir, err := DefaultStateDir()
		if err != nil {
			return nil, err
		}

		cfg.StateDir = dir
	}

	if cfg.PipelinesFile == "" {
		cfg.PipelinesFile = filepath.Join(cfg.StateDir, "pipelines.yaml")
	}

	// The state dir and pipelines file are resolved once so a later chdir
	// cannot move them.
	for _, p := range []*string{&cfg.StateDir, &cfg.PipelinesFile} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s to absolute path: %w", *p, err)
		}

		*p = abs
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ADBPath == "" {
		return fmt.Errorf("ADB_PATH must not be empty")
	}

	for name, d := range map[string]time.Duration{
		"ADB_COMMAND_TIMEOUT":  c.CommandTimeout,
		"ADB_LIST_TIMEOUT":     c.ListTimeout,
		"ADB_TRANSFER_TIMEOUT": c.TransferTimeout,
		"DEVICE_POLL_INTERVAL": c.DevicePollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.WatchDebounce < 0 {
		return fmt.Errorf("WATCH_DEBOUNCE must not be negative, got %s", c.WatchDebounce)
	}

	if c.AutoSyncCooldown < 0 {
		return fmt.Errorf("AUTO_SYNC_COOLDOWN must not be negative, got %s", c.AutoSyncCooldown)
	}

	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}

	return nil
}

// DefaultStateDir returns ~/.adb-sync.
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".adb-sync"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
