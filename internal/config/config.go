// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`           // primary postgres DSN
	FallbackPath string `yaml:"fallback_path"` // embedded sqlite file
	MaxConns     int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AdmissionConfig struct {
	Capacity int64 `yaml:"capacity"` // max jobs processing at once
}

type WatchdogConfig struct {
	Interval          time.Duration `yaml:"interval"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	HeartbeatGrace    time.Duration `yaml:"heartbeat_grace"`
	BatchSize         int           `yaml:"batch_size"`
}

type ResultsConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"` // bounded fan-out per batch
	MinPoll     time.Duration `yaml:"min_poll"`
	MaxPoll     time.Duration `yaml:"max_poll"` // backoff cap on empty batches
}

type CallbackConfig struct {
	MaxAttempts int             `yaml:"max_attempts"`
	Timeout     time.Duration   `yaml:"timeout"`
	Backoff     []time.Duration `yaml:"backoff"` // index clamped to last entry
	ScanEvery   time.Duration   `yaml:"scan_every"`
	ScanLimit   int             `yaml:"scan_limit"`
}

type DedupConfig struct {
	Threshold int `yaml:"threshold"`
}

type RulesConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type FailoverConfig struct {
	HealthInterval  time.Duration `yaml:"health_interval"`
	PromoteAfter    int           `yaml:"promote_after"` // consecutive healthy probes
	ReplayBatchSize int           `yaml:"replay_batch_size"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type EngineConfig struct {
	URL     string        `yaml:"url"` // empty means the built-in noop engine
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Admission AdmissionConfig `yaml:"admission"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Results   ResultsConfig   `yaml:"results"`
	Callback  CallbackConfig  `yaml:"callback"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Rules     RulesConfig     `yaml:"rules"`
	Failover  FailoverConfig  `yaml:"failover"`
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.FallbackPath == "" {
		cfg.Database.FallbackPath = "data/fallback.db"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Admission.Capacity <= 0 {
		cfg.Admission.Capacity = 12
	}
	if cfg.Watchdog.Interval <= 0 {
		cfg.Watchdog.Interval = 30 * time.Second
	}
	if cfg.Watchdog.ProcessingTimeout <= 0 {
		cfg.Watchdog.ProcessingTimeout = 10 * time.Minute
	}
	if cfg.Watchdog.MaxRetries <= 0 {
		cfg.Watchdog.MaxRetries = 3
	}
	if cfg.Watchdog.HeartbeatGrace <= 0 {
		cfg.Watchdog.HeartbeatGrace = 30 * time.Second
	}
	if cfg.Watchdog.BatchSize <= 0 {
		cfg.Watchdog.BatchSize = 200
	}
	if cfg.Results.BatchSize <= 0 {
		cfg.Results.BatchSize = 20
	}
	if cfg.Results.Concurrency <= 0 {
		cfg.Results.Concurrency = 4
	}
	if cfg.Results.MinPoll <= 0 {
		cfg.Results.MinPoll = 500 * time.Millisecond
	}
	if cfg.Results.MaxPoll <= 0 {
		cfg.Results.MaxPoll = 15 * time.Second
	}
	if cfg.Callback.MaxAttempts <= 0 {
		cfg.Callback.MaxAttempts = 5
	}
	if cfg.Callback.Timeout <= 0 {
		cfg.Callback.Timeout = 15 * time.Second
	}
	if len(cfg.Callback.Backoff) == 0 {
		cfg.Callback.Backoff = []time.Duration{
			time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour, 3 * time.Hour,
		}
	}
	if cfg.Callback.ScanEvery <= 0 {
		cfg.Callback.ScanEvery = time.Minute
	}
	if cfg.Callback.ScanLimit <= 0 {
		cfg.Callback.ScanLimit = 100
	}
	if cfg.Dedup.Threshold <= 0 {
		cfg.Dedup.Threshold = 3
	}
	if cfg.Rules.CacheTTL <= 0 {
		cfg.Rules.CacheTTL = 5 * time.Minute
	}
	if cfg.Failover.HealthInterval <= 0 {
		cfg.Failover.HealthInterval = 10 * time.Second
	}
	if cfg.Failover.PromoteAfter <= 0 {
		cfg.Failover.PromoteAfter = 3
	}
	if cfg.Failover.ReplayBatchSize <= 0 {
		cfg.Failover.ReplayBatchSize = 100
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 9080
	}
	if cfg.Engine.Timeout <= 0 {
		cfg.Engine.Timeout = 2 * time.Minute
	}
}
