// Package config loads afterword settings from defaults, a YAML file, a
// .env file and AFTERWORD_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration.
type Config struct {
	APIBaseURL     string        `yaml:"api_base_url"`
	DataDir        string        `yaml:"data_dir"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst      int           `yaml:"rate_burst"`

	Storage StorageConfig `yaml:"storage"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
	Bridge  BridgeConfig  `yaml:"bridge"`
}

type StorageConfig struct {
	Backend  string `yaml:"backend"` // file, redis or memory
	RedisURL string `yaml:"redis_url"`
}

type SessionConfig struct {
	AutoSaveDelay     time.Duration `yaml:"auto_save_delay"`
	LockRetryInterval time.Duration `yaml:"lock_retry_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	// MaxFiles bounds the editor's log files in the data dir.
	MaxFiles int `yaml:"max_files"`
}

type BridgeConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		APIBaseURL:     "http://localhost:8000",
		DataDir:        defaultDataDir(),
		RequestTimeout: 30 * time.Second,
		RateLimit:      10,
		RateBurst:      20,
		Storage:        StorageConfig{Backend: "file"},
		Session: SessionConfig{
			AutoSaveDelay:     3 * time.Second,
			LockRetryInterval: 5 * time.Second,
		},
		Log:    LogConfig{Level: "info", Format: "text", MaxFiles: 5},
		Bridge: BridgeConfig{Addr: "127.0.0.1:7420"},
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".afterword"
	}
	return filepath.Join(dir, "afterword")
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load resolves the configuration. An empty path reads DefaultPath if it
// exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	return load(path, ".env")
}

func load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// .env never overrides variables already set in the environment.
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.APIBaseURL = envString("AFTERWORD_API_URL", c.APIBaseURL)
	c.DataDir = envString("AFTERWORD_DATA_DIR", c.DataDir)
	c.RequestTimeout = envDuration("AFTERWORD_REQUEST_TIMEOUT", c.RequestTimeout)
	c.RateLimit = envFloat("AFTERWORD_RATE_LIMIT", c.RateLimit)
	c.RateBurst = envInt("AFTERWORD_RATE_BURST", c.RateBurst)
	c.Storage.Backend = envString("AFTERWORD_STORAGE", c.Storage.Backend)
	c.Storage.RedisURL = envString("AFTERWORD_REDIS_URL", c.Storage.RedisURL)
	c.Session.AutoSaveDelay = envDuration("AFTERWORD_AUTOSAVE_DELAY", c.Session.AutoSaveDelay)
	c.Session.LockRetryInterval = envDuration("AFTERWORD_LOCK_RETRY", c.Session.LockRetryInterval)
	c.Log.Level = envString("AFTERWORD_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("AFTERWORD_LOG_FORMAT", c.Log.Format)
	c.Bridge.Addr = envString("AFTERWORD_BRIDGE_ADDR", c.Bridge.Addr)
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIBaseURL, validation.Required),
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.RequestTimeout, validation.Min(time.Second)),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.Storage),
		validation.Field(&c.Session),
		validation.Field(&c.Log),
	)
}

func (s StorageConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.Required, validation.In("file", "redis", "memory")),
		validation.Field(&s.RedisURL, validation.When(s.Backend == "redis", validation.Required)),
	)
}

func (s SessionConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.AutoSaveDelay, validation.Min(100*time.Millisecond)),
		validation.Field(&s.LockRetryInterval, validation.Min(time.Second)),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("text", "json")),
	)
}

// StatePath is the file backing the local key-value store.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.json")
}

// LogDir holds the editor's log files.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}
