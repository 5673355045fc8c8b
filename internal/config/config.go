package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type ProviderConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	LegacyBaseURL  string        `yaml:"legacy_base_url"`
	CandidatePaths []string      `yaml:"candidate_paths"`
	Timeout        time.Duration `yaml:"timeout"`
}

type GenerationConfig struct {
	PollAttempts  int           `yaml:"poll_attempts"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Retention     time.Duration `yaml:"retention"` // 0 keeps jobs and files forever
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type WorkerConfig struct {
	Count     int `yaml:"count"`
	QueueSize int `yaml:"queue_size"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"` // memory|redis|postgres
	PostgresDSN   string `yaml:"postgres_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Provider   ProviderConfig   `yaml:"provider"`
	Generation GenerationConfig `yaml:"generation"`
	Worker     WorkerConfig     `yaml:"worker"`
	Storage    StorageConfig    `yaml:"storage"`
	Store      StoreConfig      `yaml:"store"`
}

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Load reads .env (if present), then the optional YAML file at path, then
// environment overrides, and finally applies defaults and validation.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// file is optional, env alone is enough
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Addr = envOr("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ReadTimeout = envDurationOr("HTTP_READ_TIMEOUT", cfg.HTTP.ReadTimeout)
	cfg.HTTP.WriteTimeout = envDurationOr("HTTP_WRITE_TIMEOUT", cfg.HTTP.WriteTimeout)
	cfg.HTTP.CORSOrigins = envListOr("CORS_ORIGINS", cfg.HTTP.CORSOrigins)

	cfg.Log.Level = envOr("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("LOG_FORMAT", cfg.Log.Format)

	cfg.Provider.APIKey = envOr("GAMMA_API_KEY", cfg.Provider.APIKey)
	cfg.Provider.BaseURL = envOr("GAMMA_API_URL", cfg.Provider.BaseURL)
	cfg.Provider.LegacyBaseURL = envOr("GAMMA_BASE_URL", cfg.Provider.LegacyBaseURL)
	cfg.Provider.CandidatePaths = envListOr("GAMMA_CANDIDATE_PATHS", cfg.Provider.CandidatePaths)
	cfg.Provider.Timeout = envDurationOr("GAMMA_TIMEOUT", cfg.Provider.Timeout)

	cfg.Generation.PollAttempts = envIntOr("POLL_ATTEMPTS", cfg.Generation.PollAttempts)
	cfg.Generation.PollInterval = envDurationOr("POLL_INTERVAL", cfg.Generation.PollInterval)
	cfg.Generation.Retention = envDurationOr("JOB_RETENTION", cfg.Generation.Retention)
	cfg.Generation.SweepInterval = envDurationOr("SWEEP_INTERVAL", cfg.Generation.SweepInterval)

	cfg.Worker.Count = envIntOr("WORKERS", cfg.Worker.Count)
	cfg.Worker.QueueSize = envIntOr("WORKER_QUEUE_SIZE", cfg.Worker.QueueSize)

	cfg.Storage.Dir = envOr("DOWNLOAD_DIR", cfg.Storage.Dir)

	cfg.Store.Driver = envOr("JOB_STORE", cfg.Store.Driver)
	cfg.Store.PostgresDSN = envOr("POSTGRES_DSN", cfg.Store.PostgresDSN)
	cfg.Store.RedisAddr = envOr("REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.RedisPassword = envOr("REDIS_PASSWORD", cfg.Store.RedisPassword)
	cfg.Store.RedisDB = envIntOr("REDIS_DB", cfg.Store.RedisDB)
	cfg.Store.RedisPrefix = envOr("REDIS_PREFIX", cfg.Store.RedisPrefix)
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8000"
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if len(cfg.HTTP.CORSOrigins) == 0 {
		cfg.HTTP.CORSOrigins = []string{"*"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://public-api.gamma.app/v0.2"
	}
	if cfg.Provider.LegacyBaseURL == "" {
		cfg.Provider.LegacyBaseURL = "https://gamma.app/api"
	}
	if len(cfg.Provider.CandidatePaths) == 0 {
		cfg.Provider.CandidatePaths = []string{"/content", "/documents", "/create"}
	}
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = 60 * time.Second
	}
	if cfg.Generation.PollAttempts <= 0 {
		cfg.Generation.PollAttempts = 15
	}
	if cfg.Generation.PollInterval <= 0 {
		cfg.Generation.PollInterval = 5 * time.Second
	}
	if cfg.Generation.SweepInterval <= 0 {
		cfg.Generation.SweepInterval = 10 * time.Minute
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = cfg.WorstCaseGeneration() + 30*time.Second
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 8
	}
	if cfg.Worker.QueueSize <= 0 {
		cfg.Worker.QueueSize = cfg.Worker.Count * 8
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "./downloads"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverMemory
	}
	if cfg.Store.RedisPrefix == "" {
		cfg.Store.RedisPrefix = "presentation:job:"
	}
}

// WorstCaseGeneration is the longest a synchronous generation may block,
// ignoring provider request latency.
func (c *Config) WorstCaseGeneration() time.Duration {
	return time.Duration(c.Generation.PollAttempts) * c.Generation.PollInterval
}

func (c *Config) Validate() error {
	if c.Provider.APIKey == "" {
		return errors.New("GAMMA_API_KEY is required")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis store")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Generation.Retention < 0 {
		return errors.New("generation.retention must not be negative")
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envListOr(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
