package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/news"
)

// Base score weights. They sum to 1.
const (
	WeightFreshness      = 0.25
	WeightNewsworthiness = 0.20
	WeightAuthority      = 0.20
	WeightOriginality    = 0.15
	WeightQuality        = 0.20
)

const (
	freshnessWindowHours      = 48.0
	originalityFullHours      = 6.0
	originalityZeroHours      = 24.0
	newsworthinessSourceCap   = 5.0
	neutralScore              = 0.5
	trendingRegionMinMentions = 2

	DefaultClusterTTL = 24 * time.Hour
)

var ErrNoMembers = errors.New("cluster has no members")

type Store interface {
	ClusterMembers(ctx context.Context, clusterID string) ([]news.MemberSnapshot, error)
	UpdateClusterScores(ctx context.Context, update news.ScoreUpdate) error
}

type Options struct {
	ClusterTTL   time.Duration
	StoreTimeout time.Duration
}

type Scorer struct {
	store  Store
	clock  globaltime.Clock
	logger zerolog.Logger
	opts   Options
}

func NewScorer(store Store, clock globaltime.Clock, logger zerolog.Logger, opts Options) *Scorer {
	if clock == nil {
		clock = globaltime.System()
	}
	if opts.ClusterTTL <= 0 {
		opts.ClusterTTL = DefaultClusterTTL
	}
	return &Scorer{store: store, clock: clock, logger: logger, opts: opts}
}

// Rescore recomputes and persists the scores of one cluster from its members.
func (s *Scorer) Rescore(ctx context.Context, clusterID string) (news.ScoreUpdate, error) {
	if s == nil || s.store == nil {
		return news.ScoreUpdate{}, fmt.Errorf("cluster scorer is not initialized")
	}
	clusterID = strings.TrimSpace(clusterID)
	if clusterID == "" {
		return news.ScoreUpdate{}, fmt.Errorf("cluster id is required")
	}

	storeCtx, cancel := news.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	members, err := s.store.ClusterMembers(storeCtx, clusterID)
	if err != nil {
		return news.ScoreUpdate{}, news.Retryable("load cluster members", fmt.Errorf("cluster_id=%s: %w", clusterID, err))
	}

	now := globaltime.NowUTC(s.clock)
	update, err := Compute(members, now)
	if err != nil {
		return news.ScoreUpdate{}, fmt.Errorf("score cluster_id=%s: %w", clusterID, err)
	}
	update.ClusterID = clusterID
	update.ExpiresAt = now.Add(s.opts.ClusterTTL)
	update.UpdatedAt = now

	if err := s.store.UpdateClusterScores(storeCtx, update); err != nil {
		return news.ScoreUpdate{}, news.Retryable("update cluster scores", fmt.Errorf("cluster_id=%s: %w", clusterID, err))
	}

	s.logger.Info().
		Str("cluster_id", clusterID).
		Int("article_count", update.ArticleCount).
		Float64("base_score", update.Scores.Base).
		Float64("freshness", update.Scores.Freshness).
		Float64("newsworthiness", update.Scores.Newsworthiness).
		Float64("authority", update.Scores.Authority).
		Float64("originality", update.Scores.Originality).
		Float64("quality", update.Scores.Quality).
		Msg("cluster rescored")
	return update, nil
}

// Compute is the pure scoring function over a membership snapshot. It fills
// everything except ClusterID, ExpiresAt and UpdatedAt.
func Compute(members []news.MemberSnapshot, now time.Time) (news.ScoreUpdate, error) {
	if len(members) == 0 {
		return news.ScoreUpdate{}, ErrNoMembers
	}

	ordered := append([]news.MemberSnapshot(nil), members...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].PublishedAt.Equal(ordered[j].PublishedAt) {
			return ordered[i].PublishedAt.Before(ordered[j].PublishedAt)
		}
		return ordered[i].ArticleID < ordered[j].ArticleID
	})

	earliest := ordered[0].PublishedAt.UTC()
	latest := ordered[len(ordered)-1].PublishedAt.UTC()

	sources := make(map[string]struct{}, len(ordered))
	var trustSum, qualitySum float64
	for _, member := range ordered {
		if id := strings.TrimSpace(member.SourceID); id != "" {
			sources[id] = struct{}{}
		}
		trustSum += valueOrNeutral(member.TrustScore)
		qualitySum += valueOrNeutral(member.QualityScore)
	}
	count := float64(len(ordered))

	scores := news.Scores{
		Freshness:      Freshness(hoursBetween(latest, now)),
		Newsworthiness: clamp01(float64(len(sources)) / newsworthinessSourceCap),
		Authority:      clamp01(trustSum / count),
		Originality:    Originality(hoursBetween(earliest, now)),
		Quality:        clamp01(qualitySum / count),
	}
	scores.Base = BaseScore(scores)

	regionTags, trending := regions(ordered)
	return news.ScoreUpdate{
		Scores:              scores,
		ArticleCount:        len(ordered),
		EarliestPublishedAt: earliest,
		LatestPublishedAt:   latest,
		RegionTags:          regionTags,
		TrendingRegions:     trending,
	}, nil
}

// Freshness decays linearly from 1 at publish time to 0 at 48 hours.
func Freshness(hoursSinceLatest float64) float64 {
	return clamp01(1 - hoursSinceLatest/freshnessWindowHours)
}

// Originality is 1 up to 6 hours after the earliest publish, then decays
// linearly to 0 at 24 hours.
func Originality(hoursSinceEarliest float64) float64 {
	if hoursSinceEarliest <= originalityFullHours {
		return 1
	}
	return clamp01(1 - (hoursSinceEarliest-originalityFullHours)/(originalityZeroHours-originalityFullHours))
}

// BaseScore is the fixed weighted sum of the sub-scores on a 0-100 scale.
func BaseScore(s news.Scores) float64 {
	weighted := WeightFreshness*s.Freshness +
		WeightNewsworthiness*s.Newsworthiness +
		WeightAuthority*s.Authority +
		WeightOriginality*s.Originality +
		WeightQuality*s.Quality
	return math.Max(0, math.Min(100, 100*weighted))
}

// regions unions member locations in first-seen order and reports the ones
// mentioned by at least two members.
func regions(members []news.MemberSnapshot) ([]string, []string) {
	mentions := make(map[string]int)
	spelling := make(map[string]string)
	var order []string
	for _, member := range members {
		seen := make(map[string]struct{}, len(member.Locations))
		for _, raw := range member.Locations {
			name := strings.TrimSpace(raw)
			key := strings.ToLower(name)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if _, known := spelling[key]; !known {
				spelling[key] = name
				order = append(order, key)
			}
			mentions[key]++
		}
	}

	tags := make([]string, 0, len(order))
	var trending []string
	for _, key := range order {
		tags = append(tags, spelling[key])
		if mentions[key] >= trendingRegionMinMentions {
			trending = append(trending, spelling[key])
		}
	}
	return tags, trending
}

func hoursBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}

func valueOrNeutral(v *float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return neutralScore
	}
	return clamp01(*v)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
