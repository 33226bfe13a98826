// Package config loads the textcat YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// EnvJWTSecret overrides auth.secret when set.
const EnvJWTSecret = "TEXTCAT_JWT_SECRET"

// Rate limit backends.
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// DefaultMaxLength is the tokenizer sequence length.
const DefaultMaxLength = 512

type Config struct {
	Model      ModelConfig     `yaml:"model"`
	Categories []string        `yaml:"categories"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Server     ServerConfig    `yaml:"server"`
	Auth       AuthConfig      `yaml:"auth"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	Store      StoreConfig     `yaml:"store"`
	Log        LogConfig       `yaml:"log"`
}

type ModelConfig struct {
	// Checkpoint is the safetensors weights file.
	Checkpoint string `yaml:"checkpoint"`
	// Config is the HuggingFace config.json.
	Config string `yaml:"config"`
	// Tokenizer is a tokenizer.json or vocab.txt.
	Tokenizer string `yaml:"tokenizer"`
	Version   string `yaml:"version"`
	MaxLength int    `yaml:"max_length"`
	// Head forces "cls" or "pooled"; empty detects from tensor names.
	Head string `yaml:"head"`
}

type PipelineConfig struct {
	Workers        int      `yaml:"workers"`
	ExtraStopwords []string `yaml:"extra_stopwords"`
}

type ServerConfig struct {
	Address        string        `yaml:"address"`
	MaxBatchSize   int           `yaml:"max_batch_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	BodyLimitBytes int64         `yaml:"body_limit_bytes"`
}

type AuthConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// RateLimitConfig caps requests per authenticated subject. Each subject gets
// a fixed one-minute window opened by its first request; at most
// RequestsPerMinute requests are admitted until the window closes.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// Backend is "memory" (per process) or "redis" (shared by replicas).
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type StoreConfig struct {
	// Path is the SQLite prediction log; empty disables logging.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file sets a value.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Version:   "1.0.0",
			MaxLength: DefaultMaxLength,
		},
		Server: ServerConfig{
			Address:        ":8000",
			MaxBatchSize:   64,
			RequestTimeout: 30 * time.Second,
			BodyLimitBytes: 1 << 20,
		},
		Auth: AuthConfig{
			Enabled:  true,
			Issuer:   "textcat",
			TokenTTL: 30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Backend:           RateLimitMemory,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/textcat/config.yaml (or the platform
// equivalent). It returns "" when no config directory can be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "textcat", "config.yaml")
}

// Load reads path over Default(). An empty path falls back to DefaultPath,
// and a missing default file is not an error. Relative model and store
// paths are resolved against the directory of the file.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			cfg.ApplyEnv()
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() {
	if s := strings.TrimSpace(os.Getenv(EnvJWTSecret)); s != "" {
		c.Auth.Secret = s
	}
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.Model.Checkpoint, &c.Model.Config, &c.Model.Tokenizer, &c.Store.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate reports every problem at once, joined and wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	req := func(v, key string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	req(c.Model.Checkpoint, "model.checkpoint")
	req(c.Model.Config, "model.config")
	req(c.Model.Tokenizer, "model.tokenizer")

	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("categories must not be empty"))
	}
	seen := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		switch {
		case strings.TrimSpace(cat) == "":
			errs = append(errs, fmt.Errorf("categories[%d] is empty", i))
		case seen[cat]:
			errs = append(errs, fmt.Errorf("categories[%d] %q is duplicated", i, cat))
		}
		seen[cat] = true
	}
	if c.Model.MaxLength < 2 {
		errs = append(errs, fmt.Errorf("model.max_length must be at least 2, got %d", c.Model.MaxLength))
	}
	switch c.Model.Head {
	case "", "cls", "pooled":
	default:
		errs = append(errs, fmt.Errorf("model.head must be cls or pooled, got %q", c.Model.Head))
	}
	if c.Pipeline.Workers < 0 {
		errs = append(errs, errors.New("pipeline.workers must not be negative"))
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		errs = append(errs, fmt.Errorf("auth.secret is required when auth is enabled (or set %s)", EnvJWTSecret))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_minute must not be negative"))
	}
	switch c.RateLimit.Backend {
	case "", RateLimitMemory:
	case RateLimitRedis:
		req(c.RateLimit.Redis.Addr, "rate_limit.redis.addr")
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend must be memory or redis, got %q", c.RateLimit.Backend))
	}
	if c.Server.MaxBatchSize < 0 {
		errs = append(errs, errors.New("server.max_batch_size must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
