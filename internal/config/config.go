package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/fampp/internal/env"
	"github.com/loykin/fampp/internal/logger"
	"github.com/spf13/viper"
)

// FileName is the settings file kept in the fampp root.
const FileName = "config.toml"

// EnvPrefix prefixes environment overrides, e.g. FAMPP_PORTS_PHP=8080.
const EnvPrefix = "FAMPP"

// Config represents the top-level TOML structure.
type Config struct {
	Language    string         `toml:"language" mapstructure:"language"`
	Host        string         `toml:"host" mapstructure:"host"`
	Ports       Ports          `toml:"ports" mapstructure:"ports"`
	Grace       time.Duration  `toml:"grace" mapstructure:"grace"`
	StopTimeout time.Duration  `toml:"stop_timeout" mapstructure:"stop_timeout"`
	Env         []string       `toml:"env" mapstructure:"env"`
	EnvFiles    []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv    bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	Log         LogConfig      `toml:"log" mapstructure:"log"`
	History     HistoryConfig  `toml:"history" mapstructure:"history"`
	Metrics     MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	Download    DownloadConfig `toml:"download" mapstructure:"download"`
}

type Ports struct {
	PHP   int `toml:"php" mapstructure:"php"`
	MySQL int `toml:"mysql" mapstructure:"mysql"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// HistoryConfig lists sink DSNs (sqlite://, postgres://, clickhouse://, opensearch://).
// With no DSN, events go to data/history.db. Disabled turns history off.
type HistoryConfig struct {
	DSN      []string `toml:"dsn" mapstructure:"dsn"`
	Disabled bool     `toml:"disabled" mapstructure:"disabled"`
}

type MetricsConfig struct {
	Textfile string `toml:"textfile" mapstructure:"textfile"`
}

type DownloadConfig struct {
	Retries int           `toml:"retries" mapstructure:"retries"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

const defaultTOML = `# fampp settings
language = "en"
host = "127.0.0.1"

[ports]
php = 8000
mysql = 3306
`

func setDefaults(v *viper.Viper) {
	v.SetDefault("language", "en")
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("ports.php", 8000)
	v.SetDefault("ports.mysql", 3306)
	v.SetDefault("grace", "100ms")
	v.SetDefault("stop_timeout", "5s")
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})
	v.SetDefault("use_os_env", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("history.dsn", []string{})
	v.SetDefault("history.disabled", false)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("download.retries", 3)
	v.SetDefault("download.timeout", "10m")
}

// Default returns the built-in settings without reading any file.
func Default() *Config {
	c, err := decode(newViper())
	if err != nil {
		panic(err)
	}
	return c
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, creating it with defaults when it does not exist.
// FAMPP_* environment variables override file values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeDefault(path); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	c, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := f.WriteString(defaultTOML); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Validate rejects settings the launcher cannot act on.
func (c *Config) Validate() error {
	for name, p := range map[string]int{"ports.php": c.Ports.PHP, "ports.mysql": c.Ports.MySQL} {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%s out of range: %d", name, p)
		}
	}
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Grace < 0 || c.StopTimeout < 0 || c.Download.Timeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Download.Retries < 0 {
		return fmt.Errorf("download.retries must not be negative")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Logger maps the log section onto a logger.Config writing under dir.
func (c *Config) Logger(dir string) logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Dir:        dir,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// Environ builds the service environment: optional OS base, then env_files
// in order, then the env list.
func (c *Config) Environ() (*env.Env, error) {
	e := env.New()
	e.UseOS = c.UseOSEnv
	for _, p := range c.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, err
		}
		e.SetAll(pairs)
	}
	e.SetAll(c.Env)
	return e, nil
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries in file order.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out = append(out, strings.TrimSpace(k)+"="+strings.TrimSpace(v))
	}
	return out, nil
}
