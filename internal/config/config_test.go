package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:         "local",
		LogLevel:            "info",
		Store:               StoreMemory,
		DBMinConns:          1,
		DBMaxConns:          8,
		AssignLock:          "local",
		AssignLockTTL:       10 * time.Second,
		SimilarityThreshold: 0.7,
		CandidateWindow:     24 * time.Hour,
		ClusterTTL:          24 * time.Hour,
		FeedCandidates:      50,
		FeedSize:            20,
		FeedCacheTTL:        30 * time.Minute,
		StoreTimeout:        5 * time.Second,
		SweepInterval:       15 * time.Minute,
		SweepBatchSize:      500,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"postgres without url": {func(c *Config) { c.Store = StorePostgres }, "DATABASE_URL"},
		"unknown store":        {func(c *Config) { c.Store = "sqlite" }, "STORE"},
		"redis without url":    {func(c *Config) { c.AssignLock = "redis" }, "REDIS_URL"},
		"unknown lock":         {func(c *Config) { c.AssignLock = "etcd" }, "ASSIGN_LOCK"},
		"threshold zero":       {func(c *Config) { c.SimilarityThreshold = 0 }, "SIMILARITY_THRESHOLD"},
		"threshold above one":  {func(c *Config) { c.SimilarityThreshold = 1.2 }, "SIMILARITY_THRESHOLD"},
		"min above max":        {func(c *Config) { c.DBMinConns = 9 }, "DB_MIN_CONNS"},
		"few candidates":       {func(c *Config) { c.FeedCandidates = 10 }, "FEED_CANDIDATES"},
		"zero timeout":         {func(c *Config) { c.StoreTimeout = 0 }, "STORE_TIMEOUT"},
		"zero batch":           {func(c *Config) { c.SweepBatchSize = 0 }, "SWEEP_BATCH_SIZE"},
	}
	for name, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error mentioning %s, got %v", name, tc.want, err)
		}
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STORE", " Memory ")
	t.Setenv("FEED_SIZE", "5")
	t.Setenv("FEED_CANDIDATES", "25")
	t.Setenv("STORE_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreMemory || cfg.FeedSize != 5 || cfg.FeedCandidates != 25 || cfg.StoreTimeout != 2*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.SimilarityThreshold != 0.7 || cfg.ClusterTTL != 24*time.Hour {
		t.Fatalf("expected defaults to apply, got %+v", cfg)
	}
}
