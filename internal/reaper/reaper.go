package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/news"
)

const (
	DefaultBatchSize        = 500
	DefaultInterval         = 15 * time.Minute
	ArticleRetention        = 7 * 24 * time.Hour
	ClusterRetention        = 7 * 24 * time.Hour
	ReadingHistoryRetention = 30 * 24 * time.Hour
)

// Store methods each touch at most limit rows and return how many changed.
// All predicates are time based, so a re-run skips rows already handled.
type Store interface {
	MarkExpiredClustersStale(ctx context.Context, now time.Time, limit int) (int64, error)
	ArchiveArticlesPublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	DeleteExpiredFeedEntries(ctx context.Context, now time.Time, limit int) (int64, error)
	ArchiveClustersCreatedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	DeleteInteractionsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type Options struct {
	BatchSize    int
	StoreTimeout time.Duration
}

// Counts is the number of rows affected per cleanup category.
type Counts struct {
	StaleClusters      int64 `json:"stale_clusters"`
	ArchivedArticles   int64 `json:"archived_articles"`
	ExpiredFeedEntries int64 `json:"expired_feed_entries"`
	ArchivedClusters   int64 `json:"archived_clusters"`
	PurgedHistory      int64 `json:"purged_reading_history"`
}

func (c Counts) ByCategory() map[string]int64 {
	return map[string]int64{
		"stale_clusters":         c.StaleClusters,
		"archived_articles":      c.ArchivedArticles,
		"expired_feed_entries":   c.ExpiredFeedEntries,
		"archived_clusters":      c.ArchivedClusters,
		"purged_reading_history": c.PurgedHistory,
	}
}

func (c Counts) Total() int64 {
	return c.StaleClusters + c.ArchivedArticles + c.ExpiredFeedEntries + c.ArchivedClusters + c.PurgedHistory
}

type Reaper struct {
	store  Store
	clock  globaltime.Clock
	logger zerolog.Logger
	opts   Options
}

func New(store Store, clock globaltime.Clock, logger zerolog.Logger, opts Options) *Reaper {
	if clock == nil {
		clock = globaltime.System()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Reaper{store: store, clock: clock, logger: logger, opts: opts}
}

type step struct {
	name string
	run  func(ctx context.Context, now time.Time, limit int) (int64, error)
	into *int64
}

// Sweep runs every cleanup step once. A failing step does not stop the
// others; their errors are joined. Cancelling ctx stops between batches.
func (r *Reaper) Sweep(ctx context.Context) (Counts, error) {
	if r == nil || r.store == nil {
		return Counts{}, fmt.Errorf("reaper is not initialized")
	}

	now := globaltime.NowUTC(r.clock)
	var counts Counts
	steps := []step{
		{name: "stale_clusters", into: &counts.StaleClusters, run: r.store.MarkExpiredClustersStale},
		{name: "archived_articles", into: &counts.ArchivedArticles, run: func(ctx context.Context, now time.Time, limit int) (int64, error) {
			return r.store.ArchiveArticlesPublishedBefore(ctx, now.Add(-ArticleRetention), limit)
		}},
		{name: "expired_feed_entries", into: &counts.ExpiredFeedEntries, run: r.store.DeleteExpiredFeedEntries},
		{name: "archived_clusters", into: &counts.ArchivedClusters, run: func(ctx context.Context, now time.Time, limit int) (int64, error) {
			return r.store.ArchiveClustersCreatedBefore(ctx, now.Add(-ClusterRetention), limit)
		}},
		{name: "purged_reading_history", into: &counts.PurgedHistory, run: func(ctx context.Context, now time.Time, limit int) (int64, error) {
			return r.store.DeleteInteractionsBefore(ctx, now.Add(-ReadingHistoryRetention), limit)
		}},
	}

	var errs []error
	for _, s := range steps {
		affected, err := r.drain(ctx, s, now)
		*s.into = affected
		if err != nil {
			r.logger.Error().Err(err).Str("step", s.name).Int64("affected", affected).Msg("sweep step failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			if ctx.Err() != nil {
				break
			}
		}
	}

	r.logger.Info().
		Int64("stale_clusters", counts.StaleClusters).
		Int64("archived_articles", counts.ArchivedArticles).
		Int64("expired_feed_entries", counts.ExpiredFeedEntries).
		Int64("archived_clusters", counts.ArchivedClusters).
		Int64("purged_reading_history", counts.PurgedHistory).
		Msg("stale data sweep finished")

	return counts, errors.Join(errs...)
}

// drain repeats one step until a batch comes back short.
func (r *Reaper) drain(ctx context.Context, s step, now time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batchCtx, cancel := news.WithTimeout(ctx, r.opts.StoreTimeout)
		affected, err := s.run(batchCtx, now, r.opts.BatchSize)
		cancel()
		if err != nil {
			return total, err
		}
		total += affected
		if affected < int64(r.opts.BatchSize) {
			return total, nil
		}
	}
}

// Run sweeps immediately and then every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("sweep finished with errors")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
