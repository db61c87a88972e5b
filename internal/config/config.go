package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".vtyscan"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".vtyscan/vtyscan.db"
	DefaultArchiveDir = ".vtyscan/archive"
)

// Load reads the config file (creating it with defaults if absent) and returns
// a populated Config. The configPath flag may override the default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("VTYSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file exists but is malformed.
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
		// No config yet — defaults apply until the first Save.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// EnsureDir creates ~/.vtyscan if it doesn't exist.
func EnsureDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(home, DefaultConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

// CommandTimeout returns the per-command timeout as a duration.
func (a AuditConfig) CommandTimeout() time.Duration {
	if a.CommandTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(a.CommandTimeoutSec) * time.Second
}

// DialTimeout returns the per-device dial timeout as a duration.
func (a AuditConfig) DialTimeout() time.Duration {
	if a.DialTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(a.DialTimeoutSec) * time.Second
}

// SettleDelay returns the pre-collection pacing pause as a duration.
func (a AuditConfig) SettleDelay() time.Duration {
	if a.SettleDelaySec < 0 {
		return 0
	}
	if a.SettleDelaySec == 0 {
		return 2 * time.Second
	}
	return time.Duration(a.SettleDelaySec) * time.Second
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("tunnel.connect_timeout_sec", 15)

	v.SetDefault("audit.workers", 5)
	v.SetDefault("audit.command_timeout_sec", 60)
	v.SetDefault("audit.dial_timeout_sec", 15)
	v.SetDefault("audit.settle_delay_sec", 2)
	v.SetDefault("audit.dial_retries", 3)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.path", filepath.Join(home, DefaultArchiveDir))
	v.SetDefault("archive.author", "vtyscan")
	v.SetDefault("archive.email", "vtyscan@localhost")

	v.SetDefault("gateway.port", 6180)
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Archive.Path = expandHome(cfg.Archive.Path, home)
	cfg.Tunnel.KeyFile = expandHome(cfg.Tunnel.KeyFile, home)
	cfg.Tunnel.KnownHostsFile = expandHome(cfg.Tunnel.KnownHostsFile, home)
	cfg.Devices.Inventory = expandHome(cfg.Devices.Inventory, home)
	cfg.Audit.Policy = expandHome(cfg.Audit.Policy, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
