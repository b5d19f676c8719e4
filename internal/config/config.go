package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obplatform/obplatform-go/client/download"
	"github.com/obplatform/obplatform-go/client/export"
	"github.com/obplatform/obplatform-go/client/throttle"
	"github.com/obplatform/obplatform-go/connector"
	"github.com/obplatform/obplatform-go/internal/validate"
)

const envPrefix = "OBPLATFORM_"

// Config defines configuration for the obplatform CLI.
type Config struct {
	Endpoint     string          `yaml:"endpoint"      validate:"required,url"`
	Timeout      time.Duration   `yaml:"timeout"       validate:"gte=0"`
	PollInterval time.Duration   `yaml:"poll_interval" validate:"gte=0"`
	ChunkSize    int64           `yaml:"chunk_size"    validate:"gte=0"`
	Progress     bool            `yaml:"progress"`
	Bucket       string          `yaml:"bucket"        validate:"omitempty,url"`
	UserAgent    string          `yaml:"user_agent"`
	LogLevel     string          `yaml:"log_level"     validate:"omitempty,oneof=debug info warn error"`
	Throttle     throttle.Config `yaml:"throttle"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Endpoint:     connector.DefaultEndpoint,
		PollInterval: export.DefaultInterval,
		ChunkSize:    download.DefaultChunkSize,
		LogLevel:     "info",
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	Endpoint     string          `yaml:"endpoint"`
	Timeout      string          `yaml:"timeout"`
	PollInterval string          `yaml:"poll_interval"`
	ChunkSize    string          `yaml:"chunk_size"`
	Progress     *bool           `yaml:"progress"`
	Bucket       string          `yaml:"bucket"`
	UserAgent    string          `yaml:"user_agent"`
	LogLevel     string          `yaml:"log_level"`
	Throttle     throttle.Config `yaml:"throttle"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Endpoint != "" {
		cfg.Endpoint = yc.Endpoint
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.PollInterval != "" {
		d, err := time.ParseDuration(yc.PollInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.PollInterval = d
	}
	if yc.ChunkSize != "" {
		size, err := download.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	if yc.Progress != nil {
		cfg.Progress = *yc.Progress
	}
	if yc.Bucket != "" {
		cfg.Bucket = yc.Bucket
	}
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(yc.LogLevel)
	}
	cfg.Throttle = yc.Throttle

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the OBPLATFORM_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := getenv("ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := getenv("TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sTIMEOUT: %w", envPrefix, err)
		}
		c.Timeout = d
	}
	if v := getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sPOLL_INTERVAL: %w", envPrefix, err)
		}
		c.PollInterval = d
	}
	if v := getenv("CHUNK_SIZE"); v != "" {
		size, err := download.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse %sCHUNK_SIZE: %w", envPrefix, err)
		}
		c.ChunkSize = size
	}
	if v := getenv("PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := getenv("BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := getenv("USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := getenv("THROTTLE_RPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sTHROTTLE_RPS: %w", envPrefix, err)
		}
		c.Throttle.RPS = n
	}
	if v := getenv("THROTTLE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sTHROTTLE_BURST: %w", envPrefix, err)
		}
		c.Throttle.Burst = n
	}

	return nil
}

// Validate checks the configuration against its field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Endpoint != "" {
		c.Endpoint = override.Endpoint
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.PollInterval != 0 {
		c.PollInterval = override.PollInterval
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.Throttle.RPS != 0 {
		c.Throttle.RPS = override.Throttle.RPS
	}
	if override.Throttle.Burst != 0 {
		c.Throttle.Burst = override.Throttle.Burst
	}
	return c
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}
