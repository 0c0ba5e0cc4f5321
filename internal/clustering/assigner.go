package clustering

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/features"
	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/news"
)

const (
	DefaultThreshold       = 0.7
	DefaultCandidateWindow = 24 * time.Hour
	DefaultClusterTTL      = 24 * time.Hour

	// Cosines closer than this are treated as ambiguous and settled by title overlap.
	ambiguousCosineBand = 0.01
	founderSimilarity   = 1.0
)

type Store interface {
	CandidateClusters(ctx context.Context, since time.Time) ([]news.ClusterCandidate, error)
	// CreateCluster inserts the cluster and its representative link atomically.
	CreateCluster(ctx context.Context, cluster news.StoryCluster, founder news.ClusterArticle) error
	// AddClusterMember inserts link, increments article_count and moves
	// expires_at forward in one transaction.
	AddClusterMember(ctx context.Context, link news.ClusterArticle, expiresAt time.Time) error
}

// Locker serializes assignment for one bucket key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Options struct {
	Threshold       float64
	CandidateWindow time.Duration
	ClusterTTL      time.Duration
	StoreTimeout    time.Duration
}

// Assignment reports which path Assign took. Unassignable is set, with no
// cluster, when the article embedding cannot be compared.
type Assignment struct {
	ClusterID    string
	Similarity   float64
	TitleOverlap float64
	IsNewCluster bool
	Unassignable bool
	Reason       string
}

type Assigner struct {
	store  Store
	locker Locker
	clock  globaltime.Clock
	logger zerolog.Logger
	opts   Options
}

type scoredCandidate struct {
	candidate news.ClusterCandidate
	cosine    float64
	overlap   float64
}

func NewAssigner(store Store, locker Locker, clock globaltime.Clock, logger zerolog.Logger, opts Options) *Assigner {
	if clock == nil {
		clock = globaltime.System()
	}
	return &Assigner{
		store:  store,
		locker: locker,
		clock:  clock,
		logger: logger,
		opts:   normalizeOptions(opts),
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.CandidateWindow <= 0 {
		opts.CandidateWindow = DefaultCandidateWindow
	}
	if opts.ClusterTTL <= 0 {
		opts.ClusterTTL = DefaultClusterTTL
	}
	return opts
}

// Assign joins article to the most similar active cluster or founds a new one.
func (a *Assigner) Assign(ctx context.Context, article news.Article) (Assignment, error) {
	if a == nil || a.store == nil {
		return Assignment{}, fmt.Errorf("cluster assigner is not initialized")
	}
	if strings.TrimSpace(article.ID) == "" {
		return Assignment{}, fmt.Errorf("article id is required")
	}

	if features.IsDegenerate(article.ContentEmbedding) {
		a.logger.Warn().
			Str("article_id", article.ID).
			Msg("article skipped clustering: degenerate embedding")
		return Assignment{Unassignable: true, Reason: "degenerate_embedding"}, nil
	}

	now := globaltime.NowUTC(a.clock)
	if a.locker != nil {
		unlock, err := a.locker.Lock(ctx, bucketKey(article.Category, now))
		if err != nil {
			return Assignment{}, news.Retryable("acquire assignment lock", err)
		}
		defer unlock()
	}

	storeCtx, cancel := news.WithTimeout(ctx, a.opts.StoreTimeout)
	defer cancel()

	candidates, err := a.store.CandidateClusters(storeCtx, now.Add(-a.opts.CandidateWindow))
	if err != nil {
		return Assignment{}, news.Retryable("load candidate clusters", fmt.Errorf("article_id=%s: %w", article.ID, err))
	}

	best, ok := selectCandidate(article, candidates, a.opts.Threshold)
	if ok {
		link := news.ClusterArticle{
			ClusterID:        best.candidate.ClusterID,
			ArticleID:        article.ID,
			SimilarityScore:  clamp01(best.cosine),
			IsRepresentative: false,
			AddedAt:          now,
		}
		if err := a.store.AddClusterMember(storeCtx, link, now.Add(a.opts.ClusterTTL)); err != nil {
			return Assignment{}, news.Retryable("add cluster member", fmt.Errorf("cluster_id=%s article_id=%s: %w", link.ClusterID, article.ID, err))
		}
		a.logger.Info().
			Str("cluster_id", link.ClusterID).
			Str("article_id", article.ID).
			Float64("similarity", link.SimilarityScore).
			Float64("title_overlap", best.overlap).
			Int("candidates", len(candidates)).
			Bool("is_new_cluster", false).
			Msg("article joined cluster")
		return Assignment{
			ClusterID:    link.ClusterID,
			Similarity:   link.SimilarityScore,
			TitleOverlap: best.overlap,
		}, nil
	}

	cluster := newClusterFromArticle(article, now, a.opts.ClusterTTL)
	founder := news.ClusterArticle{
		ClusterID:        cluster.ID,
		ArticleID:        article.ID,
		SimilarityScore:  founderSimilarity,
		IsRepresentative: true,
		AddedAt:          now,
	}
	if err := a.store.CreateCluster(storeCtx, cluster, founder); err != nil {
		return Assignment{}, news.Retryable("create cluster", fmt.Errorf("article_id=%s: %w", article.ID, err))
	}

	a.logger.Info().
		Str("cluster_id", cluster.ID).
		Str("article_id", article.ID).
		Int("candidates", len(candidates)).
		Bool("is_new_cluster", true).
		Msg("article founded cluster")
	return Assignment{
		ClusterID:    cluster.ID,
		Similarity:   founderSimilarity,
		TitleOverlap: 1,
		IsNewCluster: true,
	}, nil
}

// selectCandidate keeps candidates that share a significant title word and
// clear the threshold, then picks the highest cosine. Cosines within the
// ambiguous band of the best are settled by title overlap, then by the most
// recently updated cluster.
func selectCandidate(article news.Article, candidates []news.ClusterCandidate, threshold float64) (scoredCandidate, bool) {
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		overlap := titleOverlap(article.Title, candidate.RepresentativeTitle)
		if overlap <= 0 {
			continue
		}
		if features.IsDegenerate(candidate.Embedding) {
			continue
		}
		cosine := features.Cosine(article.ContentEmbedding, candidate.Embedding)
		if cosine <= threshold {
			continue
		}
		scored = append(scored, scoredCandidate{candidate: candidate, cosine: cosine, overlap: overlap})
	}
	if len(scored) == 0 {
		return scoredCandidate{}, false
	}

	topCosine := math.Inf(-1)
	for _, item := range scored {
		topCosine = math.Max(topCosine, item.cosine)
	}

	contenders := scored[:0]
	for _, item := range scored {
		if topCosine-item.cosine <= ambiguousCosineBand {
			contenders = append(contenders, item)
		}
	}

	sort.SliceStable(contenders, func(i, j int) bool {
		left, right := contenders[i], contenders[j]
		if left.overlap != right.overlap {
			return left.overlap > right.overlap
		}
		if !left.candidate.UpdatedAt.Equal(right.candidate.UpdatedAt) {
			return left.candidate.UpdatedAt.After(right.candidate.UpdatedAt)
		}
		if left.cosine != right.cosine {
			return left.cosine > right.cosine
		}
		return left.candidate.ClusterID < right.candidate.ClusterID
	})
	return contenders[0], true
}

func newClusterFromArticle(article news.Article, now time.Time, ttl time.Duration) news.StoryCluster {
	publishedAt := article.PublishedAt.UTC()
	if publishedAt.IsZero() {
		publishedAt = now
	}

	description := strings.TrimSpace(article.Description)
	if description == "" && len(article.Keywords) > 0 {
		description = "Coverage of " + strings.Join(article.Keywords[:min(3, len(article.Keywords))], ", ")
	}

	return news.StoryCluster{
		ID:                  uuid.NewString(),
		Title:               strings.TrimSpace(article.Title),
		Description:         description,
		Category:            strings.TrimSpace(article.Category),
		ImageURL:            strings.TrimSpace(article.ImageURL),
		RepresentativeURL:   strings.TrimSpace(article.URL),
		Status:              news.ClusterActive,
		ArticleCount:        1,
		EarliestPublishedAt: publishedAt,
		LatestPublishedAt:   publishedAt,
		ExpiresAt:           now.Add(ttl),
		RegionTags:          append([]string(nil), article.Locations...),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// bucketKey groups assignments that could race to found the same story.
func bucketKey(category string, now time.Time) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = "uncategorized"
	}
	return fmt.Sprintf("assign:%s:%s", category, now.UTC().Truncate(time.Hour).Format("2006010215"))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
