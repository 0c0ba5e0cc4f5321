package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/cli"
	"horse.fit/newsfeed/internal/clustering"
	"horse.fit/newsfeed/internal/config"
	"horse.fit/newsfeed/internal/db"
	"horse.fit/newsfeed/internal/feed"
	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/httpapi"
	"horse.fit/newsfeed/internal/lock"
	"horse.fit/newsfeed/internal/logging"
	"horse.fit/newsfeed/internal/memstore"
	"horse.fit/newsfeed/internal/pipeline"
	"horse.fit/newsfeed/internal/reaper"
	"horse.fit/newsfeed/internal/scoring"
	"horse.fit/newsfeed/internal/sources"
	"horse.fit/newsfeed/internal/tracking"
)

// store is everything the commands need from a backend. db.Pool and
// memstore.Store both satisfy it.
type store interface {
	pipeline.Store
	clustering.Store
	scoring.Store
	feed.Store
	tracking.Store
	reaper.Store
	sources.Store
	httpapi.ClusterReader
	Close() error
}

const defaultCommandTimeout = 30 * time.Second

var (
	_ store = (*db.Pool)(nil)
	_ store = (*memstore.Store)(nil)
)

type commonFlags struct {
	envLoader *cli.EnvLoader
	store     *string
	timeout   *time.Duration
}

func addCommonFlags(fs *flag.FlagSet, defaultTimeout time.Duration) commonFlags {
	return commonFlags{
		envLoader: cli.AddEnvFlag(fs, ".env", "Path to the .env file"),
		store:     fs.String("store", "", "Store backend override: postgres or memory (default from STORE)"),
		timeout:   fs.Duration("timeout", defaultTimeout, "Command timeout"),
	}
}

// load reads .env, configuration and the logger in that order.
func (f commonFlags) load() (*config.Config, zerolog.Logger, error) {
	if f.envLoader != nil {
		if _, err := f.envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	if f.store != nil {
		if override := strings.TrimSpace(*f.store); override != "" {
			if err := os.Setenv("STORE", override); err != nil {
				return nil, zerolog.Nop(), fmt.Errorf("apply --store: %w", err)
			}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

type backend struct {
	store   store
	locker  clustering.Locker
	closers []func() error
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	b := &backend{}

	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store; data is lost when the process exits")
		b.store = memstore.New()
	default:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		b.store = pool
	}
	b.closers = append(b.closers, b.store.Close)

	mode, err := lock.ParseMode(cfg.AssignLock)
	if err != nil {
		b.Close()
		return nil, err
	}
	switch mode {
	case lock.ModeLocal:
		b.locker = lock.NewLocal()
	case lock.ModeRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		b.closers = append(b.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		b.locker = lock.NewRedis(client, cfg.AssignLockTTL)
	}

	return b, nil
}

func (b *backend) Close() {
	if b == nil {
		return
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
	b.closers = nil
}

type services struct {
	pipeline *pipeline.Service
	scorer   *scoring.Scorer
	ranker   *feed.Ranker
	tracking *tracking.Service
	reaper   *reaper.Reaper
}

func newServices(cfg *config.Config, b *backend, logger zerolog.Logger) services {
	clock := globaltime.System()

	assigner := clustering.NewAssigner(b.store, b.locker, clock, logger, clustering.Options{
		Threshold:       cfg.SimilarityThreshold,
		CandidateWindow: cfg.CandidateWindow,
		ClusterTTL:      cfg.ClusterTTL,
		StoreTimeout:    cfg.StoreTimeout,
	})
	scorer := scoring.NewScorer(b.store, clock, logger, scoring.Options{
		ClusterTTL:   cfg.ClusterTTL,
		StoreTimeout: cfg.StoreTimeout,
	})

	return services{
		pipeline: pipeline.NewService(b.store, assigner, scorer, clock, logger, pipeline.Options{
			DetectLanguage:  cfg.LanguageDetection,
			StoreTimeout:    cfg.StoreTimeout,
			ReclusterWindow: cfg.CandidateWindow,
		}),
		scorer: scorer,
		ranker: feed.NewRanker(b.store, clock, logger, feed.Options{
			CandidateLimit:  cfg.FeedCandidates,
			FeedSize:        cfg.FeedSize,
			CacheTTL:        cfg.FeedCacheTTL,
			CandidateWindow: cfg.CandidateWindow,
			StoreTimeout:    cfg.StoreTimeout,
		}),
		tracking: tracking.NewService(b.store, clock, logger, tracking.Options{StoreTimeout: cfg.StoreTimeout}),
		reaper: reaper.New(b.store, clock, logger, reaper.Options{
			BatchSize:    cfg.SweepBatchSize,
			StoreTimeout: cfg.StoreTimeout,
		}),
	}
}

// connect is the common prologue for commands that talk to a store.
func connect(f commonFlags) (context.Context, context.CancelFunc, *config.Config, zerolog.Logger, *backend, error) {
	cfg, logger, err := f.load()
	if err != nil {
		return nil, nil, nil, zerolog.Nop(), nil, err
	}

	timeout := defaultCommandTimeout
	if f.timeout != nil && *f.timeout > 0 {
		timeout = *f.timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		cancel()
		logger.Error().Err(err).Str("store", cfg.Store).Msg("backend setup failed")
		return nil, nil, nil, zerolog.Nop(), nil, err
	}
	return ctx, cancel, cfg, logger, b, nil
}
