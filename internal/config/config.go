package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Store       string `envconfig:"STORE" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"8"`

	RedisURL      string        `envconfig:"REDIS_URL"`
	AssignLock    string        `envconfig:"ASSIGN_LOCK" default:"local"`
	AssignLockTTL time.Duration `envconfig:"ASSIGN_LOCK_TTL" default:"10s"`

	SimilarityThreshold float64       `envconfig:"SIMILARITY_THRESHOLD" default:"0.7"`
	CandidateWindow     time.Duration `envconfig:"CANDIDATE_WINDOW" default:"24h"`
	ClusterTTL          time.Duration `envconfig:"CLUSTER_TTL" default:"24h"`

	FeedCandidates int           `envconfig:"FEED_CANDIDATES" default:"50"`
	FeedSize       int           `envconfig:"FEED_SIZE" default:"20"`
	FeedCacheTTL   time.Duration `envconfig:"FEED_CACHE_TTL" default:"30m"`

	StoreTimeout   time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"15m"`
	SweepBatchSize int           `envconfig:"SWEEP_BATCH_SIZE" default:"500"`

	LanguageDetection bool `envconfig:"LANGUAGE_DETECTION" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.AssignLock = strings.ToLower(strings.TrimSpace(cfg.AssignLock))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	switch c.AssignLock {
	case "none", "local":
	case "redis":
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when ASSIGN_LOCK=redis")
		}
	default:
		return fmt.Errorf("ASSIGN_LOCK must be none, local or redis, got %q", c.AssignLock)
	}
	if c.AssignLockTTL <= 0 {
		return fmt.Errorf("ASSIGN_LOCK_TTL must be > 0")
	}

	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0,1], got %v", c.SimilarityThreshold)
	}
	if c.CandidateWindow <= 0 {
		return fmt.Errorf("CANDIDATE_WINDOW must be > 0")
	}
	if c.ClusterTTL <= 0 {
		return fmt.Errorf("CLUSTER_TTL must be > 0")
	}
	if c.FeedSize < 1 {
		return fmt.Errorf("FEED_SIZE must be >= 1")
	}
	if c.FeedCandidates < c.FeedSize {
		return fmt.Errorf("FEED_CANDIDATES (%d) cannot be below FEED_SIZE (%d)", c.FeedCandidates, c.FeedSize)
	}
	if c.FeedCacheTTL <= 0 {
		return fmt.Errorf("FEED_CACHE_TTL must be > 0")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.SweepBatchSize < 1 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be >= 1")
	}
	return nil
}
