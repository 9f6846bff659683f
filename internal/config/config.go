// Package config loads fieldsync settings from defaults, an optional config
// file (TOML or YAML), FIELDSYNC_* environment variables and command flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides (FIELDSYNC_REMOTE_URL, ...).
const EnvPrefix = "FIELDSYNC"

// Keys.
const (
	KeyDBPath            = "db_path"
	KeyRemoteURL         = "remote_url"
	KeyRemoteTimeout     = "remote_timeout"
	KeySyncInterval      = "sync_interval"
	KeyContinueOnFailure = "continue_on_failure"
	KeySeedPath          = "seed_path"
	KeyDashboardPort     = "dashboard_port"
	KeyLogFile           = "log_file"
	KeyLogMaxSizeMB      = "log_max_size_mb"
	KeyLogMaxBackups     = "log_max_backups"
)

// Config holds fieldsync settings.
type Config struct {
	DBPath            string        `mapstructure:"db_path"`
	RemoteURL         string        `mapstructure:"remote_url"`
	RemoteTimeout     time.Duration `mapstructure:"remote_timeout"`
	SyncInterval      time.Duration `mapstructure:"sync_interval"`
	ContinueOnFailure bool          `mapstructure:"continue_on_failure"`
	SeedPath          string        `mapstructure:"seed_path"`      // empty: embedded seed
	DashboardPort     int           `mapstructure:"dashboard_port"` // 0: no dashboard
	LogFile           string        `mapstructure:"log_file"`       // empty: stderr
	LogMaxSizeMB      int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups     int           `mapstructure:"log_max_backups"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		DBPath:        DefaultDBPath(),
		RemoteURL:     "http://localhost:3000",
		RemoteTimeout: 5 * time.Second,
		SyncInterval:  15 * time.Minute,
		DashboardPort: 0,
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
	}
}

// DefaultDir is the directory searched for fieldsync.toml / fieldsync.yaml.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "fieldsync")
	}
	return ".fieldsync"
}

// DefaultDBPath is where the shipment cache lives unless configured.
func DefaultDBPath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "fieldsync", "fieldsync.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "fieldsync", "fieldsync.db")
	}
	return filepath.Join(".fieldsync", "fieldsync.db")
}

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault(KeyDBPath, d.DBPath)
	v.SetDefault(KeyRemoteURL, d.RemoteURL)
	v.SetDefault(KeyRemoteTimeout, d.RemoteTimeout)
	v.SetDefault(KeySyncInterval, d.SyncInterval)
	v.SetDefault(KeyContinueOnFailure, d.ContinueOnFailure)
	v.SetDefault(KeySeedPath, d.SeedPath)
	v.SetDefault(KeyDashboardPort, d.DashboardPort)
	v.SetDefault(KeyLogFile, d.LogFile)
	v.SetDefault(KeyLogMaxSizeMB, d.LogMaxSizeMB)
	v.SetDefault(KeyLogMaxBackups, d.LogMaxBackups)
}

// NewViper creates a viper instance with defaults and environment binding and
// reads cfgFile, or fieldsync.{toml,yaml} from DefaultDir and the working
// directory when cfgFile is empty. A missing default file is not an error.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("fieldsync")
		v.AddConfigPath(DefaultDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DBPath = expandHome(cfg.DBPath)
	cfg.SeedPath = expandHome(cfg.SeedPath)
	cfg.LogFile = expandHome(cfg.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%s is required", KeyDBPath)
	}
	u, err := url.Parse(c.RemoteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q must be an http(s) URL", KeyRemoteURL, c.RemoteURL)
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("%s must be positive (got %v)", KeyRemoteTimeout, c.RemoteTimeout)
	}
	if c.SyncInterval < time.Second {
		return fmt.Errorf("%s must be at least 1s (got %v)", KeySyncInterval, c.SyncInterval)
	}
	if c.DashboardPort < 0 || c.DashboardPort > 65535 {
		return fmt.Errorf("%s %d out of range", KeyDashboardPort, c.DashboardPort)
	}
	if c.LogMaxSizeMB < 0 || c.LogMaxBackups < 0 {
		return fmt.Errorf("%s and %s must not be negative", KeyLogMaxSizeMB, KeyLogMaxBackups)
	}
	return nil
}

// Watch reloads the config file on change and passes each valid result to
// onChange. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, logger *log.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(v)
		if err != nil {
			if logger != nil {
				logger.Printf("WARNING: ignoring config change in %s: %v", e.Name, err)
			}
			return
		}
		if logger != nil {
			logger.Printf("Config reloaded from %s", e.Name)
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// fileConfig is the on-disk shape. Durations are strings ("5s", "15m").
type fileConfig struct {
	DBPath            string `toml:"db_path" yaml:"db_path"`
	RemoteURL         string `toml:"remote_url" yaml:"remote_url"`
	RemoteTimeout     string `toml:"remote_timeout" yaml:"remote_timeout"`
	SyncInterval      string `toml:"sync_interval" yaml:"sync_interval"`
	ContinueOnFailure bool   `toml:"continue_on_failure" yaml:"continue_on_failure"`
	SeedPath          string `toml:"seed_path" yaml:"seed_path"`
	DashboardPort     int    `toml:"dashboard_port" yaml:"dashboard_port"`
	LogFile           string `toml:"log_file" yaml:"log_file"`
	LogMaxSizeMB      int    `toml:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups     int    `toml:"log_max_backups" yaml:"log_max_backups"`
}

func (c *Config) toFile() fileConfig {
	return fileConfig{
		DBPath:            c.DBPath,
		RemoteURL:         c.RemoteURL,
		RemoteTimeout:     c.RemoteTimeout.String(),
		SyncInterval:      c.SyncInterval.String(),
		ContinueOnFailure: c.ContinueOnFailure,
		SeedPath:          c.SeedPath,
		DashboardPort:     c.DashboardPort,
		LogFile:           c.LogFile,
		LogMaxSizeMB:      c.LogMaxSizeMB,
		LogMaxBackups:     c.LogMaxBackups,
	}
}

// WriteTOML writes c to path. An existing file is only replaced when force is set.
func WriteTOML(path string, c *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// #nosec G304 - controlled path from CLI
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c.toFile()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	return f.Close()
}

// YAML renders c for display.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.toFile())
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
