package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/news"
)

const (
	DefaultCandidateLimit  = 50
	DefaultFeedSize        = 20
	DefaultCacheTTL        = 30 * time.Minute
	DefaultCandidateWindow = 24 * time.Hour
	DefaultHistoryWindow   = 7 * 24 * time.Hour
	DefaultHistoryLimit    = 50
)

type Store interface {
	// CachedFeed returns every cache row for the user, expired or not.
	CachedFeed(ctx context.Context, userID string) ([]news.CachedFeedItem, error)
	TopClusters(ctx context.Context, since time.Time, limit int) ([]news.StoryCluster, error)
	// UserProfile returns news.ErrNotFound for unknown users.
	UserProfile(ctx context.Context, userID string) (news.UserProfile, error)
	RecentInteractions(ctx context.Context, userID string, since time.Time, limit int) ([]news.Interaction, error)
	TopicPreferences(ctx context.Context, userID string) ([]news.TopicPreference, error)
	// ReplaceFeed swaps the user's cache rows for entries in one transaction.
	ReplaceFeed(ctx context.Context, userID string, entries []news.FeedEntry) error
}

// Status separates a populated feed from a genuinely empty one.
type Status string

const (
	StatusReady Status = "ready"
	StatusEmpty Status = "empty"
)

// Source tells where the returned items came from.
type Source string

const (
	SourceCache      Source = "cache"
	SourceFresh      Source = "fresh"
	SourceStaleCache Source = "stale_cache"
)

type Options struct {
	CandidateLimit  int
	FeedSize        int
	CacheTTL        time.Duration
	CandidateWindow time.Duration
	HistoryWindow   time.Duration
	HistoryLimit    int
	StoreTimeout    time.Duration
}

// LocationHint overrides the stored profile location for one request.
type LocationHint struct {
	Country string
	City    string
}

type Item struct {
	Cluster         news.StoryCluster `json:"cluster"`
	Score           float64           `json:"personalized_score"`
	RankPosition    int               `json:"rank_position"`
	Personalization *float64          `json:"personalization_score,omitempty"`
}

type Result struct {
	UserID      string    `json:"user_id"`
	Status      Status    `json:"status"`
	Source      Source    `json:"source"`
	Items       []Item    `json:"items"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

type Ranker struct {
	store  Store
	clock  globaltime.Clock
	logger zerolog.Logger
	opts   Options
}

func NewRanker(store Store, clock globaltime.Clock, logger zerolog.Logger, opts Options) *Ranker {
	if clock == nil {
		clock = globaltime.System()
	}
	return &Ranker{store: store, clock: clock, logger: logger, opts: normalizeOptions(opts)}
}

func normalizeOptions(opts Options) Options {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = DefaultCandidateLimit
	}
	if opts.FeedSize <= 0 {
		opts.FeedSize = DefaultFeedSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CandidateWindow <= 0 {
		opts.CandidateWindow = DefaultCandidateWindow
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return opts
}

// GetFeed returns the user's ranked feed, served from cache when a complete
// unexpired cache exists. hint only affects a recompute: a cache hit returns
// the ranking built with whatever location was in effect at refresh time.
func (r *Ranker) GetFeed(ctx context.Context, userID string, hint *LocationHint) (Result, error) {
	if r == nil || r.store == nil {
		return Result{}, fmt.Errorf("feed ranker is not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Result{}, fmt.Errorf("user id is required")
	}

	now := globaltime.NowUTC(r.clock)
	storeCtx, cancel := news.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()

	cached, cacheErr := r.store.CachedFeed(storeCtx, userID)
	if cacheErr != nil {
		r.logger.Warn().Err(cacheErr).Str("user_id", userID).Msg("feed cache read failed")
		cached = nil
	}
	cacheValid := validCache(cached, r.opts.FeedSize)
	if !cacheValid && len(cached) > 0 {
		r.logger.Warn().Str("user_id", userID).Int("rows", len(cached)).Msg("feed cache invalid, recomputing")
	}
	if cacheValid && !cacheExpired(cached, now) {
		return cachedResult(userID, cached, SourceCache, now), nil
	}

	result, err := r.refresh(storeCtx, userID, hint, now)
	if err != nil {
		if cacheValid {
			r.logger.Warn().Err(err).Str("user_id", userID).Msg("feed refresh failed, serving stale cache")
			return cachedResult(userID, cached, SourceStaleCache, now), nil
		}
		return Result{}, fmt.Errorf("rank feed user_id=%s: %w", userID, err)
	}
	return result, nil
}

func (r *Ranker) refresh(ctx context.Context, userID string, hint *LocationHint, now time.Time) (Result, error) {
	clusters, err := r.store.TopClusters(ctx, now.Add(-r.opts.CandidateWindow), r.opts.CandidateLimit)
	if err != nil {
		return Result{}, news.Retryable("load top clusters", err)
	}

	if len(clusters) == 0 {
		if err := r.store.ReplaceFeed(ctx, userID, nil); err != nil {
			r.logger.Warn().Err(err).Str("user_id", userID).Msg("clear feed cache failed")
		}
		r.logger.Info().Str("user_id", userID).Msg("feed empty: no active clusters")
		return Result{UserID: userID, Status: StatusEmpty, Source: SourceFresh, Items: []Item{}, GeneratedAt: now}, nil
	}

	in, err := r.loadSignals(ctx, userID, hint, now)
	if err != nil {
		return Result{}, err
	}

	items := make([]Item, 0, len(clusters))
	for _, cluster := range clusters {
		personalization := personalizationScore(in, cluster)
		items = append(items, Item{
			Cluster:         cluster,
			Score:           rankScore(cluster.Scores.Base, personalization),
			Personalization: &personalization,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		left, right := items[i], items[j]
		if left.Score != right.Score {
			return left.Score > right.Score
		}
		if left.Cluster.Scores.Base != right.Cluster.Scores.Base {
			return left.Cluster.Scores.Base > right.Cluster.Scores.Base
		}
		if !left.Cluster.LatestPublishedAt.Equal(right.Cluster.LatestPublishedAt) {
			return left.Cluster.LatestPublishedAt.After(right.Cluster.LatestPublishedAt)
		}
		return left.Cluster.ID < right.Cluster.ID
	})
	if len(items) > r.opts.FeedSize {
		items = items[:r.opts.FeedSize]
	}

	expiresAt := now.Add(r.opts.CacheTTL)
	entries := make([]news.FeedEntry, 0, len(items))
	for i := range items {
		items[i].RankPosition = i + 1
		entries = append(entries, news.FeedEntry{
			UserID:            userID,
			ClusterID:         items[i].Cluster.ID,
			PersonalizedScore: items[i].Score,
			RankPosition:      i + 1,
			ExpiresAt:         expiresAt,
			CreatedAt:         now,
		})
	}

	if err := r.store.ReplaceFeed(ctx, userID, entries); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("feed cache write failed")
	}

	r.logger.Info().
		Str("user_id", userID).
		Int("candidates", len(clusters)).
		Int("items", len(items)).
		Msg("feed generated")

	return Result{
		UserID:      userID,
		Status:      StatusReady,
		Source:      SourceFresh,
		Items:       items,
		GeneratedAt: now,
		ExpiresAt:   expiresAt,
	}, nil
}

func (r *Ranker) loadSignals(ctx context.Context, userID string, hint *LocationHint, now time.Time) (signals, error) {
	profile, err := r.store.UserProfile(ctx, userID)
	switch {
	case errors.Is(err, news.ErrNotFound):
		profile = news.UserProfile{ID: userID}
	case err != nil:
		return signals{}, news.Retryable("load user profile", err)
	}
	if hint != nil {
		if country := strings.TrimSpace(hint.Country); country != "" {
			profile.LocationCountry = country
		}
		if city := strings.TrimSpace(hint.City); city != "" {
			profile.LocationCity = city
		}
	}

	interactions, err := r.store.RecentInteractions(ctx, userID, now.Add(-r.opts.HistoryWindow), r.opts.HistoryLimit)
	if err != nil {
		return signals{}, news.Retryable("load recent interactions", err)
	}
	topics, err := r.store.TopicPreferences(ctx, userID)
	if err != nil {
		return signals{}, news.Retryable("load topic preferences", err)
	}
	return signals{profile: profile, interactions: interactions, topics: topics}, nil
}

// validCache reports whether rows form one complete ranking: ranks 1..n with
// no gaps or duplicates and no more rows than a feed holds.
func validCache(rows []news.CachedFeedItem, feedSize int) bool {
	if len(rows) == 0 || len(rows) > feedSize {
		return false
	}
	seen := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		rank := row.Entry.RankPosition
		if rank < 1 || rank > len(rows) {
			return false
		}
		if _, dup := seen[rank]; dup {
			return false
		}
		seen[rank] = struct{}{}
	}
	return true
}

func cacheExpired(rows []news.CachedFeedItem, now time.Time) bool {
	for _, row := range rows {
		if !row.Entry.ExpiresAt.After(now) {
			return true
		}
	}
	return false
}

func cachedResult(userID string, rows []news.CachedFeedItem, source Source, now time.Time) Result {
	ordered := append([]news.CachedFeedItem(nil), rows...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Entry.RankPosition < ordered[j].Entry.RankPosition
	})

	items := make([]Item, 0, len(ordered))
	generatedAt := now
	expiresAt := time.Time{}
	for _, row := range ordered {
		items = append(items, Item{
			Cluster:      row.Cluster,
			Score:        row.Entry.PersonalizedScore,
			RankPosition: row.Entry.RankPosition,
		})
		if !row.Entry.CreatedAt.IsZero() && row.Entry.CreatedAt.Before(generatedAt) {
			generatedAt = row.Entry.CreatedAt
		}
		if expiresAt.IsZero() || row.Entry.ExpiresAt.Before(expiresAt) {
			expiresAt = row.Entry.ExpiresAt
		}
	}
	return Result{
		UserID:      userID,
		Status:      StatusReady,
		Source:      source,
		Items:       items,
		GeneratedAt: generatedAt,
		ExpiresAt:   expiresAt,
	}
}
