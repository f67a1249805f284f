package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Engine     EngineConfig     `yaml:"engine"`
	Netio      NetioConfig      `yaml:"netio"`
	Prefetch   PrefetchConfig   `yaml:"prefetch"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the local API server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// BackendConfig describes the upstream REST backend the engine polls.
type BackendConfig struct {
	BaseURL        string            `yaml:"base_url"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	HTTPProxy      string            `yaml:"http_proxy"`
}

// EngineConfig holds polling cadences and command timeouts for the
// reconciliation engine.
type EngineConfig struct {
	CaptureIntervalSeconds int           `yaml:"capture_interval_seconds"`
	StatusIntervalSeconds  int           `yaml:"status_interval_seconds"`
	StatusThresholdSeconds int           `yaml:"status_threshold_seconds"`
	RetakePollSeconds      int           `yaml:"retake_poll_seconds"`
	RetakeTimeoutSeconds   int           `yaml:"retake_timeout_seconds"`
	DefaultPageSize        int           `yaml:"default_page_size"`
	CaptureInterval        time.Duration `yaml:"-"`
	StatusInterval         time.Duration `yaml:"-"`
	RetakePoll             time.Duration `yaml:"-"`
	RetakeTimeout          time.Duration `yaml:"-"`
}

// NetioConfig holds the outlet sub-engine cadences and timeouts.
type NetioConfig struct {
	PollSeconds          int           `yaml:"poll_seconds"`
	ConfirmIntervalMs    int           `yaml:"confirm_interval_ms"`
	ToggleTimeoutSeconds int           `yaml:"toggle_timeout_seconds"`
	CycleTimeoutSeconds  int           `yaml:"cycle_timeout_seconds"`
	Poll                 time.Duration `yaml:"-"`
	ConfirmInterval      time.Duration `yaml:"-"`
	ToggleTimeout        time.Duration `yaml:"-"`
	CycleTimeout         time.Duration `yaml:"-"`
}

// PrefetchConfig bounds the speculative client warm-up.
type PrefetchConfig struct {
	TTLSeconds int           `yaml:"ttl_seconds"`
	SweepLimit int           `yaml:"sweep_limit"`
	SweepRate  float64       `yaml:"sweep_per_sec"`
	TTL        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// DatabaseConfig holds the local store connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults and derives the
// time.Duration fields from the second/millisecond settings.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:8000"
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 30
	}

	if cfg.Engine.CaptureIntervalSeconds <= 0 {
		cfg.Engine.CaptureIntervalSeconds = 10
	}
	if cfg.Engine.StatusIntervalSeconds <= 0 {
		cfg.Engine.StatusIntervalSeconds = 3
	}
	if cfg.Engine.StatusThresholdSeconds <= 0 {
		cfg.Engine.StatusThresholdSeconds = 20
	}
	if cfg.Engine.RetakePollSeconds <= 0 {
		cfg.Engine.RetakePollSeconds = 2
	}
	if cfg.Engine.RetakeTimeoutSeconds <= 0 {
		cfg.Engine.RetakeTimeoutSeconds = 60
	}
	if cfg.Engine.DefaultPageSize <= 0 {
		cfg.Engine.DefaultPageSize = 15
	}
	cfg.Engine.CaptureInterval = time.Duration(cfg.Engine.CaptureIntervalSeconds) * time.Second
	cfg.Engine.StatusInterval = time.Duration(cfg.Engine.StatusIntervalSeconds) * time.Second
	cfg.Engine.RetakePoll = time.Duration(cfg.Engine.RetakePollSeconds) * time.Second
	cfg.Engine.RetakeTimeout = time.Duration(cfg.Engine.RetakeTimeoutSeconds) * time.Second

	if cfg.Netio.PollSeconds <= 0 {
		cfg.Netio.PollSeconds = 1
	}
	if cfg.Netio.ConfirmIntervalMs <= 0 {
		cfg.Netio.ConfirmIntervalMs = 400
	}
	if cfg.Netio.ToggleTimeoutSeconds <= 0 {
		cfg.Netio.ToggleTimeoutSeconds = 25
	}
	if cfg.Netio.CycleTimeoutSeconds <= 0 {
		cfg.Netio.CycleTimeoutSeconds = 30
	}
	cfg.Netio.Poll = time.Duration(cfg.Netio.PollSeconds) * time.Second
	cfg.Netio.ConfirmInterval = time.Duration(cfg.Netio.ConfirmIntervalMs) * time.Millisecond
	cfg.Netio.ToggleTimeout = time.Duration(cfg.Netio.ToggleTimeoutSeconds) * time.Second
	cfg.Netio.CycleTimeout = time.Duration(cfg.Netio.CycleTimeoutSeconds) * time.Second

	if cfg.Prefetch.TTLSeconds <= 0 {
		cfg.Prefetch.TTLSeconds = 10
	}
	if cfg.Prefetch.SweepLimit <= 0 {
		cfg.Prefetch.SweepLimit = 4
	}
	if cfg.Prefetch.SweepRate <= 0 {
		cfg.Prefetch.SweepRate = 15 // roughly one warm-up every ~60ms
	}
	cfg.Prefetch.TTL = time.Duration(cfg.Prefetch.TTLSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "centros-monitor.db"
	}
}
