package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/facecue/internal/feature"
)

// EnvPrefix prefixes every environment override, e.g. FACECUE_SERVER_ADDR.
const EnvPrefix = "FACECUE"

// Config is the on-disk application configuration.
type Config struct {
	Server    ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Store     StoreConfig    `mapstructure:"store" yaml:"store" json:"store"`
	Log       LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	Sinks     SinksConfig    `mapstructure:"sinks" yaml:"sinks" json:"sinks"`
	Layout    feature.Layout `mapstructure:"layout" yaml:"layout" json:"layout"`
	Detection Detection      `mapstructure:"detection" yaml:"detection" json:"detection"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr      string  `mapstructure:"addr" yaml:"addr" json:"addr"`
	StaticDir string  `mapstructure:"static_dir" yaml:"static_dir" json:"static_dir"`
	MaxFPS    float64 `mapstructure:"max_fps" yaml:"max_fps" json:"max_fps"`
}

// StoreConfig configures the sqlite database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level" json:"level"`
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	JSON       bool   `mapstructure:"json" yaml:"json" json:"json"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
}

// SinksConfig configures where gesture events are delivered.
type SinksConfig struct {
	QueueSize int          `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
	EventLog  string       `mapstructure:"event_log" yaml:"event_log" json:"event_log"`
	Redis     RedisConfig  `mapstructure:"redis" yaml:"redis" json:"redis"`
	Hooks     []HookConfig `mapstructure:"hooks" yaml:"hooks" json:"hooks"`
}

// RedisConfig enables publishing events on a redis channel when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr" json:"addr"`
	Password string `mapstructure:"password" yaml:"password" json:"-"`
	DB       int    `mapstructure:"db" yaml:"db" json:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel" json:"channel"`
}

// HookConfig runs an external command for matching events.
type HookConfig struct {
	Name    string        `mapstructure:"name" yaml:"name" json:"name"`
	Command string        `mapstructure:"command" yaml:"command" json:"command"`
	Args    []string      `mapstructure:"args" yaml:"args" json:"args"`
	Types   []string      `mapstructure:"types" yaml:"types" json:"types"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// DataDir returns the default data directory (~/.facecue).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".facecue"
	}
	return filepath.Join(home, ".facecue")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// Default returns the default configuration.
func Default() *Config {
	dir := DataDir()
	return &Config{
		Server: ServerConfig{
			Addr:      "127.0.0.1:8080",
			StaticDir: "web",
			MaxFPS:    30,
		},
		Store: StoreConfig{
			Path: filepath.Join(dir, "facecue.db"),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Sinks: SinksConfig{
			QueueSize: 64,
			EventLog:  filepath.Join(dir, "events.log"),
			Redis: RedisConfig{
				Channel: "facecue:gestures",
			},
		},
		Layout:    feature.DefaultLayout(),
		Detection: DefaultDetection(),
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Server.MaxFPS < 0 {
		return fmt.Errorf("%w: server.max_fps cannot be negative", ErrInvalidConfig)
	}
	if c.Sinks.QueueSize < 1 {
		return fmt.Errorf("%w: sinks.queue_size must be at least 1", ErrInvalidConfig)
	}
	for i, h := range c.Sinks.Hooks {
		if h.Command == "" {
			return fmt.Errorf("%w: sinks.hooks[%d].command cannot be empty", ErrInvalidConfig, i)
		}
	}
	return nil
}

// Load reads path on top of the defaults and applies FACECUE_ environment
// overrides. A missing file is created with the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	path = expandPath(path)

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := Default().SaveToPath(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}
	return read(path)
}

func read(path string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Path = expandPath(cfg.Store.Path)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Sinks.EventLog = expandPath(cfg.Sinks.EventLog)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newViper seeds a viper instance with every default key so that environment
// overrides work for keys absent from the file.
func newViper() (*viper.Viper, error) {
	base, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	return v, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files are
// ignored; existing variables are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// SaveToPath writes the configuration as YAML.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
