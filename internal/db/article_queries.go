package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"horse.fit/newsfeed/internal/news"
)

func (p *Pool) ArticleExistsByURL(ctx context.Context, url string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM feed.articles WHERE url = $1)`
	var exists bool
	if err := p.QueryRow(ctx, q, strings.TrimSpace(url)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check article url: %w", err)
	}
	return exists, nil
}

// EnsureSource inserts source when its domain is unknown and returns the
// stored row either way.
func (p *Pool) EnsureSource(ctx context.Context, source news.NewsSource) (news.NewsSource, error) {
	domain := strings.ToLower(strings.TrimSpace(source.Domain))
	if domain == "" {
		return news.NewsSource{}, fmt.Errorf("source domain is required")
	}

	const insert = `
INSERT INTO feed.sources (source_id, name, domain, trust_score, trust_level, is_active)
VALUES ($1::uuid, $2, $3, $4, $5, $6)
ON CONFLICT (domain) DO NOTHING
`
	if _, err := p.Exec(ctx, insert, source.ID, source.Name, domain, source.TrustScore, string(source.TrustLevel), source.IsActive); err != nil {
		return news.NewsSource{}, fmt.Errorf("insert source: %w", err)
	}

	const q = `
SELECT source_id::text, name, domain, trust_score, trust_level, is_active
FROM feed.sources
WHERE domain = $1
`
	var (
		out   news.NewsSource
		level string
	)
	if err := p.QueryRow(ctx, q, domain).Scan(&out.ID, &out.Name, &out.Domain, &out.TrustScore, &level, &out.IsActive); err != nil {
		return news.NewsSource{}, fmt.Errorf("load source domain=%s: %w", domain, err)
	}
	out.TrustLevel = news.TrustLevel(level)
	return out, nil
}

// ApplySourceTrust upserts the trust fields of a domain. A new domain gets a
// generated id and the domain as its name when none is given.
func (p *Pool) ApplySourceTrust(ctx context.Context, trust news.SourceTrust) (bool, error) {
	domain := strings.ToLower(strings.TrimSpace(trust.Domain))
	if domain == "" {
		return false, fmt.Errorf("source domain is required")
	}
	name := strings.TrimSpace(trust.Name)

	const q = `
INSERT INTO feed.sources (source_id, name, domain, trust_score, trust_level, is_active, created_at, updated_at)
VALUES (gen_random_uuid(), COALESCE(NULLIF($2, ''), $1), $1, $3, $4, $5, now(), now())
ON CONFLICT (domain) DO UPDATE
SET
	name = COALESCE(NULLIF($2, ''), feed.sources.name),
	trust_score = EXCLUDED.trust_score,
	trust_level = EXCLUDED.trust_level,
	is_active = EXCLUDED.is_active,
	updated_at = now()
RETURNING (xmax = 0) AS inserted
`
	var inserted bool
	if err := p.QueryRow(ctx, q, domain, name, trust.TrustScore, string(trust.TrustLevel), trust.IsActive).Scan(&inserted); err != nil {
		return false, fmt.Errorf("apply source trust domain=%s: %w", domain, err)
	}
	return inserted, nil
}

// InsertArticle reports false when the URL is already stored.
func (p *Pool) InsertArticle(ctx context.Context, article news.Article) (bool, error) {
	const q = `
INSERT INTO feed.articles (
	article_id,
	source_id,
	title,
	description,
	content,
	url,
	image_url,
	author,
	category,
	language,
	published_at,
	title_embedding,
	content_embedding,
	keywords,
	locations,
	quality_score,
	status,
	content_hash,
	created_at
)
VALUES (
	$1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11,
	$12::vector, $13::vector, $14, $15, $16, $17, $18, $19
)
ON CONFLICT (url) DO NOTHING
`
	status := article.Status
	if status == "" {
		status = news.ArticleActive
	}
	tag, err := p.Exec(ctx, q,
		article.ID,
		article.SourceID,
		article.Title,
		article.Description,
		article.Content,
		article.URL,
		article.ImageURL,
		article.Author,
		article.Category,
		article.Language,
		article.PublishedAt.UTC(),
		nullableVectorLiteral(article.TitleEmbedding),
		nullableVectorLiteral(article.ContentEmbedding),
		pq.StringArray(nonNilStrings(article.Keywords)),
		pq.StringArray(nonNilStrings(article.Locations)),
		article.QualityScore,
		string(status),
		article.ContentHash,
		article.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert article url=%s: %w", article.URL, err)
	}
	return tag.RowsAffected() == 1, nil
}

const articleColumns = `
	a.article_id::text,
	a.source_id::text,
	COALESCE(s.name, ''),
	a.title,
	a.description,
	a.content,
	a.url,
	a.image_url,
	a.author,
	a.category,
	a.language,
	a.published_at,
	a.title_embedding::text,
	a.content_embedding::text,
	a.keywords,
	a.locations,
	a.quality_score,
	a.status,
	a.content_hash,
	a.trust_score,
	a.story_nature,
	a.analysis_confidence,
	a.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (news.Article, error) {
	var (
		out              news.Article
		titleEmbedding   *string
		contentEmbedding *string
		keywords         pq.StringArray
		locations        pq.StringArray
		status           string
		nature           *string
	)
	if err := row.Scan(
		&out.ID,
		&out.SourceID,
		&out.SourceName,
		&out.Title,
		&out.Description,
		&out.Content,
		&out.URL,
		&out.ImageURL,
		&out.Author,
		&out.Category,
		&out.Language,
		&out.PublishedAt,
		&titleEmbedding,
		&contentEmbedding,
		&keywords,
		&locations,
		&out.QualityScore,
		&status,
		&out.ContentHash,
		&out.TrustScore,
		&nature,
		&out.AnalysisConfidence,
		&out.CreatedAt,
	); err != nil {
		return news.Article{}, err
	}

	var err error
	if out.TitleEmbedding, err = parseNullableVector(titleEmbedding); err != nil {
		return news.Article{}, fmt.Errorf("article_id=%s title embedding: %w", out.ID, err)
	}
	if out.ContentEmbedding, err = parseNullableVector(contentEmbedding); err != nil {
		return news.Article{}, fmt.Errorf("article_id=%s content embedding: %w", out.ID, err)
	}
	out.Keywords = []string(keywords)
	out.Locations = []string(locations)
	out.Status = news.ArticleStatus(status)
	if nature != nil {
		if parsed, err := news.ParseStoryNature(*nature); err == nil {
			out.StoryNature = &parsed
		}
	}
	return out, nil
}

func (p *Pool) UnclusteredArticles(ctx context.Context, since time.Time, limit int) ([]news.Article, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	q := `
SELECT` + articleColumns + `
FROM feed.articles a
LEFT JOIN feed.sources s
	ON s.source_id = a.source_id
WHERE a.status = 'active'
  AND a.created_at >= $1
  AND NOT EXISTS (
	SELECT 1 FROM feed.cluster_articles ca WHERE ca.article_id = a.article_id
  )
ORDER BY a.created_at ASC, a.article_id ASC
LIMIT $2
`
	rows, err := p.Query(ctx, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query unclustered articles: %w", err)
	}
	defer rows.Close()

	items := make([]news.Article, 0, limit)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unclustered article: %w", err)
		}
		items = append(items, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unclustered articles: %w", err)
	}
	return items, nil
}

func (p *Pool) UpdateArticleFeatures(ctx context.Context, articleID string, embedding []float64, keywords, locations []string) error {
	const q = `
UPDATE feed.articles
SET content_embedding = $2::vector,
	keywords = $3,
	locations = $4
WHERE article_id = $1::uuid
`
	tag, err := p.Exec(ctx, q,
		articleID,
		nullableVectorLiteral(embedding),
		pq.StringArray(nonNilStrings(keywords)),
		pq.StringArray(nonNilStrings(locations)),
	)
	if err != nil {
		return fmt.Errorf("update article features article_id=%s: %w", articleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article_id=%s: %w", articleID, news.ErrNotFound)
	}
	return nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
