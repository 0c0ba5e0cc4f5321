package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/clustering"
	"horse.fit/newsfeed/internal/features"
	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/langdetect"
	"horse.fit/newsfeed/internal/news"
)

const (
	DefaultReclusterWindow = 24 * time.Hour
	DefaultReclusterLimit  = 200
	defaultSourceTrust     = 0.5
)

// ErrMalformedArticle rejects a RawArticle at the boundary. It is not retried.
var ErrMalformedArticle = errors.New("malformed article")

type Store interface {
	ArticleExistsByURL(ctx context.Context, url string) (bool, error)
	// EnsureSource returns the source for source.Domain, creating it when absent.
	EnsureSource(ctx context.Context, source news.NewsSource) (news.NewsSource, error)
	// InsertArticle reports false when an article with the same URL already exists.
	InsertArticle(ctx context.Context, article news.Article) (bool, error)
	// UnclusteredArticles lists active articles without a cluster link.
	UnclusteredArticles(ctx context.Context, since time.Time, limit int) ([]news.Article, error)
	// UpdateArticleFeatures overwrites the content embedding, keywords and
	// locations of a stored article. It returns news.ErrNotFound for unknown ids.
	UpdateArticleFeatures(ctx context.Context, articleID string, embedding []float64, keywords, locations []string) error
}

type Assigner interface {
	Assign(ctx context.Context, article news.Article) (clustering.Assignment, error)
}

type Rescorer interface {
	Rescore(ctx context.Context, clusterID string) (news.ScoreUpdate, error)
}

type Options struct {
	DetectLanguage  bool
	StoreTimeout    time.Duration
	ReclusterWindow time.Duration
}

type Service struct {
	store    Store
	assigner Assigner
	scorer   Rescorer
	clock    globaltime.Clock
	logger   zerolog.Logger
	opts     Options
}

type Result struct {
	ArticleID  string
	URL        string
	Duplicate  bool
	Assignment clustering.Assignment
	Scores     *news.ScoreUpdate
}

type BatchResult struct {
	Processed    int
	Inserted     int
	Duplicates   int
	Rejected     int
	Unassignable int
	NewClusters  int
	Joined       int
	Failed       int
}

type ReclusterResult struct {
	Processed    int
	NewClusters  int
	Joined       int
	Unassignable int
	Failed       int
}

func NewService(store Store, assigner Assigner, scorer Rescorer, clock globaltime.Clock, logger zerolog.Logger, opts Options) *Service {
	if clock == nil {
		clock = globaltime.System()
	}
	if opts.ReclusterWindow <= 0 {
		opts.ReclusterWindow = DefaultReclusterWindow
	}
	return &Service{
		store:    store,
		assigner: assigner,
		scorer:   scorer,
		clock:    clock,
		logger:   logger,
		opts:     opts,
	}
}

// Ingest stores one RawArticle and runs clustering and rescoring for it.
// Duplicate URLs are a no-op. When assignment or scoring fails the article
// stays stored without a cluster and Recluster picks it up later.
func (s *Service) Ingest(ctx context.Context, raw news.RawArticle) (Result, error) {
	if s == nil || s.store == nil || s.assigner == nil || s.scorer == nil {
		return Result{}, fmt.Errorf("pipeline service is not initialized")
	}

	now := globaltime.NowUTC(s.clock)
	article, domain, err := s.prepare(raw, now)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", strings.TrimSpace(raw.URL)).Msg("article rejected")
		return Result{}, err
	}
	result := Result{ArticleID: article.ID, URL: article.URL}

	storeCtx, cancel := news.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	exists, err := s.store.ArticleExistsByURL(storeCtx, article.URL)
	if err != nil {
		return Result{}, news.Retryable("check article url", fmt.Errorf("url=%s: %w", article.URL, err))
	}
	if exists {
		result.Duplicate = true
		s.logger.Debug().Str("url", article.URL).Msg("duplicate article skipped")
		return result, nil
	}

	sourceName := strings.TrimSpace(raw.SourceName)
	if sourceName == "" {
		sourceName = domain
	}
	source, err := s.store.EnsureSource(storeCtx, news.NewsSource{
		ID:         uuid.NewString(),
		Name:       sourceName,
		Domain:     domain,
		TrustScore: defaultSourceTrust,
		TrustLevel: news.TrustMedium,
		IsActive:   true,
	})
	if err != nil {
		return Result{}, news.Retryable("ensure source", fmt.Errorf("domain=%s: %w", domain, err))
	}
	article.SourceID = source.ID

	inserted, err := s.store.InsertArticle(storeCtx, article)
	if err != nil {
		return Result{}, news.Retryable("insert article", fmt.Errorf("url=%s: %w", article.URL, err))
	}
	if !inserted {
		result.Duplicate = true
		return result, nil
	}

	assignment, scores, err := s.cluster(ctx, article)
	result.Assignment = assignment
	result.Scores = scores
	return result, err
}

// IngestBatch ingests every record, counting outcomes instead of stopping at
// the first bad one. Only cancellation aborts the batch.
func (s *Service) IngestBatch(ctx context.Context, raws []news.RawArticle) (BatchResult, error) {
	var out BatchResult
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Processed++

		result, err := s.Ingest(ctx, raw)
		switch {
		case errors.Is(err, ErrMalformedArticle):
			out.Rejected++
			continue
		case err != nil && result.ArticleID == "":
			out.Failed++
			s.logger.Error().Err(err).Str("url", strings.TrimSpace(raw.URL)).Msg("article ingest failed")
			continue
		case result.Duplicate:
			out.Duplicates++
			continue
		}

		out.Inserted++
		if err != nil {
			out.Failed++
			s.logger.Error().Err(err).Str("article_id", result.ArticleID).Msg("article stored but clustering failed")
			continue
		}
		switch {
		case result.Assignment.Unassignable:
			out.Unassignable++
		case result.Assignment.IsNewCluster:
			out.NewClusters++
		default:
			out.Joined++
		}
	}
	return out, nil
}

// Recluster retries clustering for stored articles that have no cluster yet.
func (s *Service) Recluster(ctx context.Context, limit int) (ReclusterResult, error) {
	if s == nil || s.store == nil {
		return ReclusterResult{}, fmt.Errorf("pipeline service is not initialized")
	}
	if limit <= 0 {
		limit = DefaultReclusterLimit
	}

	now := globaltime.NowUTC(s.clock)
	storeCtx, cancel := news.WithTimeout(ctx, s.opts.StoreTimeout)
	articles, err := s.store.UnclusteredArticles(storeCtx, now.Add(-s.opts.ReclusterWindow), limit)
	cancel()
	if err != nil {
		return ReclusterResult{}, news.Retryable("list unclustered articles", err)
	}

	var out ReclusterResult
	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Processed++

		if features.IsDegenerate(article.ContentEmbedding) {
			extracted := features.Extract(featureText(article.Title, article.Description, article.Content))
			article.ContentEmbedding = extracted.Embedding
			article.Keywords = extracted.Keywords
			article.Locations = features.Locations(extracted.Entities)

			storeCtx, cancel := news.WithTimeout(ctx, s.opts.StoreTimeout)
			err := s.store.UpdateArticleFeatures(storeCtx, article.ID, article.ContentEmbedding, article.Keywords, article.Locations)
			cancel()
			if err != nil {
				out.Failed++
				s.logger.Error().Err(err).Str("article_id", article.ID).Msg("recluster failed to store refreshed features")
				continue
			}
		}

		assignment, _, err := s.cluster(ctx, article)
		switch {
		case err != nil:
			out.Failed++
			s.logger.Error().Err(err).Str("article_id", article.ID).Msg("recluster failed")
		case assignment.Unassignable:
			out.Unassignable++
		case assignment.IsNewCluster:
			out.NewClusters++
		default:
			out.Joined++
		}
	}

	s.logger.Info().
		Int("processed", out.Processed).
		Int("new_clusters", out.NewClusters).
		Int("joined", out.Joined).
		Int("unassignable", out.Unassignable).
		Int("failed", out.Failed).
		Msg("recluster finished")
	return out, nil
}

func (s *Service) cluster(ctx context.Context, article news.Article) (clustering.Assignment, *news.ScoreUpdate, error) {
	assignment, err := s.assigner.Assign(ctx, article)
	if err != nil {
		return clustering.Assignment{}, nil, fmt.Errorf("assign article_id=%s: %w", article.ID, err)
	}
	if assignment.Unassignable {
		return assignment, nil, nil
	}

	update, err := s.scorer.Rescore(ctx, assignment.ClusterID)
	if err != nil {
		return assignment, nil, fmt.Errorf("rescore cluster_id=%s: %w", assignment.ClusterID, err)
	}
	return assignment, &update, nil
}

// prepare validates raw and builds the stored article with its features.
func (s *Service) prepare(raw news.RawArticle, now time.Time) (news.Article, string, error) {
	title := stripMarkup(raw.Title)
	if title == "" {
		return news.Article{}, "", fmt.Errorf("%w: title is required", ErrMalformedArticle)
	}
	canonicalURL, host := normalizeURL(raw.URL)
	if canonicalURL == "" {
		return news.Article{}, "", fmt.Errorf("%w: url %q is not an absolute http(s) URL", ErrMalformedArticle, strings.TrimSpace(raw.URL))
	}
	domain := sourceDomain(host)

	description := stripMarkup(raw.Description)
	content := stripMarkup(raw.Content)
	author := collapseSpace(raw.Author)

	id := strings.TrimSpace(raw.ID)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	publishedAt := raw.PublishedAt.UTC()
	if raw.PublishedAt.IsZero() {
		publishedAt = now
	}

	text := featureText(title, description, content)
	extracted := features.Extract(text)

	article := news.Article{
		ID:               id,
		SourceName:       strings.TrimSpace(raw.SourceName),
		Title:            title,
		Description:      description,
		Content:          content,
		URL:              canonicalURL,
		ImageURL:         strings.TrimSpace(raw.ImageURL),
		Author:           author,
		Category:         strings.ToLower(strings.TrimSpace(raw.Category)),
		PublishedAt:      publishedAt,
		TitleEmbedding:   features.Embed(title),
		ContentEmbedding: extracted.Embedding,
		Keywords:         extracted.Keywords,
		Locations:        features.Locations(extracted.Entities),
		QualityScore:     qualityScore(title, content, author),
		Status:           news.ArticleActive,
		ContentHash:      contentHash(title, canonicalURL),
		CreatedAt:        now,
	}
	if s.opts.DetectLanguage {
		article.Language = langdetect.DetectISO6391(text)
	}
	return article, domain, nil
}
