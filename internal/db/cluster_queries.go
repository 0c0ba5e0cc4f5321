package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"horse.fit/newsfeed/internal/news"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const clusterColumns = `
	c.cluster_id::text,
	c.title,
	c.description,
	c.category,
	c.image_url,
	c.representative_url,
	c.status,
	c.freshness_score,
	c.newsworthiness_score,
	c.authority_score,
	c.originality_score,
	c.quality_score,
	c.base_score,
	c.article_count,
	c.earliest_published_at,
	c.latest_published_at,
	c.expires_at,
	c.region_tags,
	c.trending_regions,
	c.created_at,
	c.updated_at`

func clusterColumnList() []string {
	fields := strings.Split(clusterColumns, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		out = append(out, strings.TrimSpace(field))
	}
	return out
}

func scanCluster(row rowScanner) (news.StoryCluster, error) {
	var (
		out      news.StoryCluster
		status   string
		regions  pq.StringArray
		trending pq.StringArray
	)
	if err := row.Scan(
		&out.ID,
		&out.Title,
		&out.Description,
		&out.Category,
		&out.ImageURL,
		&out.RepresentativeURL,
		&status,
		&out.Scores.Freshness,
		&out.Scores.Newsworthiness,
		&out.Scores.Authority,
		&out.Scores.Originality,
		&out.Scores.Quality,
		&out.Scores.Base,
		&out.ArticleCount,
		&out.EarliestPublishedAt,
		&out.LatestPublishedAt,
		&out.ExpiresAt,
		&regions,
		&trending,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return news.StoryCluster{}, err
	}
	out.Status = news.ClusterStatus(status)
	out.RegionTags = []string(regions)
	out.TrendingRegions = []string(trending)
	return out, nil
}

func (p *Pool) CandidateClusters(ctx context.Context, since time.Time) ([]news.ClusterCandidate, error) {
	const q = `
SELECT
	c.cluster_id::text,
	c.category,
	a.title,
	a.content_embedding::text,
	c.created_at,
	c.updated_at
FROM feed.story_clusters c
JOIN feed.cluster_articles ca
	ON ca.cluster_id = c.cluster_id
   AND ca.is_representative
JOIN feed.articles a
	ON a.article_id = ca.article_id
WHERE c.status = 'active'
  AND c.created_at >= $1
ORDER BY c.updated_at DESC, c.cluster_id ASC
`
	rows, err := p.Query(ctx, q, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query candidate clusters: %w", err)
	}
	defer rows.Close()

	var items []news.ClusterCandidate
	for rows.Next() {
		var (
			item      news.ClusterCandidate
			embedding *string
		)
		if err := rows.Scan(&item.ClusterID, &item.Category, &item.RepresentativeTitle, &embedding, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan candidate cluster: %w", err)
		}
		if item.Embedding, err = parseNullableVector(embedding); err != nil {
			return nil, fmt.Errorf("cluster_id=%s representative embedding: %w", item.ClusterID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate clusters: %w", err)
	}
	return items, nil
}

func (p *Pool) CreateCluster(ctx context.Context, cluster news.StoryCluster, founder news.ClusterArticle) error {
	tx, err := p.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const insertCluster = `
INSERT INTO feed.story_clusters (
	cluster_id,
	title,
	description,
	category,
	image_url,
	representative_url,
	status,
	article_count,
	earliest_published_at,
	latest_published_at,
	expires_at,
	region_tags,
	trending_regions,
	created_at,
	updated_at
)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10, $11, $12, $13, $13)
`
	if _, err := tx.Exec(ctx, insertCluster,
		cluster.ID,
		cluster.Title,
		cluster.Description,
		cluster.Category,
		cluster.ImageURL,
		cluster.RepresentativeURL,
		string(cluster.Status),
		cluster.EarliestPublishedAt.UTC(),
		cluster.LatestPublishedAt.UTC(),
		cluster.ExpiresAt.UTC(),
		pq.StringArray(nonNilStrings(cluster.RegionTags)),
		pq.StringArray(nonNilStrings(cluster.TrendingRegions)),
		cluster.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert cluster_id=%s: %w", cluster.ID, err)
	}

	const insertLink = `
INSERT INTO feed.cluster_articles (cluster_id, article_id, similarity_score, is_representative, added_at)
VALUES ($1::uuid, $2::uuid, $3, TRUE, $4)
`
	if _, err := tx.Exec(ctx, insertLink, cluster.ID, founder.ArticleID, founder.SimilarityScore, founder.AddedAt.UTC()); err != nil {
		return fmt.Errorf("insert founder link cluster_id=%s article_id=%s: %w", cluster.ID, founder.ArticleID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (p *Pool) AddClusterMember(ctx context.Context, link news.ClusterArticle, expiresAt time.Time) error {
	tx, err := p.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const insertLink = `
INSERT INTO feed.cluster_articles (cluster_id, article_id, similarity_score, is_representative, added_at)
VALUES ($1::uuid, $2::uuid, $3, FALSE, $4)
`
	if _, err := tx.Exec(ctx, insertLink, link.ClusterID, link.ArticleID, link.SimilarityScore, link.AddedAt.UTC()); err != nil {
		return fmt.Errorf("insert link cluster_id=%s article_id=%s: %w", link.ClusterID, link.ArticleID, err)
	}

	const bump = `
UPDATE feed.story_clusters
SET
	article_count = (SELECT COUNT(*) FROM feed.cluster_articles WHERE cluster_id = $1::uuid),
	expires_at = GREATEST(expires_at, $2),
	updated_at = GREATEST(updated_at, $3)
WHERE cluster_id = $1::uuid
`
	tag, err := tx.Exec(ctx, bump, link.ClusterID, expiresAt.UTC(), link.AddedAt.UTC())
	if err != nil {
		return fmt.Errorf("update cluster_id=%s counters: %w", link.ClusterID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cluster_id=%s: %w", link.ClusterID, news.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (p *Pool) ClusterMembers(ctx context.Context, clusterID string) ([]news.MemberSnapshot, error) {
	const q = `
SELECT
	a.article_id::text,
	a.source_id::text,
	a.published_at,
	a.quality_score,
	s.trust_score,
	a.locations
FROM feed.cluster_articles ca
JOIN feed.articles a
	ON a.article_id = ca.article_id
LEFT JOIN feed.sources s
	ON s.source_id = a.source_id
WHERE ca.cluster_id = $1::uuid
ORDER BY a.published_at ASC, a.article_id ASC
`
	rows, err := p.Query(ctx, q, strings.TrimSpace(clusterID))
	if err != nil {
		return nil, fmt.Errorf("query cluster members: %w", err)
	}
	defer rows.Close()

	var items []news.MemberSnapshot
	for rows.Next() {
		var (
			item      news.MemberSnapshot
			locations pq.StringArray
		)
		if err := rows.Scan(&item.ArticleID, &item.SourceID, &item.PublishedAt, &item.QualityScore, &item.TrustScore, &locations); err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}
		item.Locations = []string(locations)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster members: %w", err)
	}
	if len(items) == 0 {
		var exists bool
		if err := p.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM feed.story_clusters WHERE cluster_id = $1::uuid)`, clusterID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check cluster exists: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("cluster_id=%s: %w", clusterID, news.ErrNotFound)
		}
	}
	return items, nil
}

func (p *Pool) UpdateClusterScores(ctx context.Context, update news.ScoreUpdate) error {
	const q = `
UPDATE feed.story_clusters
SET
	freshness_score = $2,
	newsworthiness_score = $3,
	authority_score = $4,
	originality_score = $5,
	quality_score = $6,
	base_score = $7,
	article_count = $8,
	earliest_published_at = $9,
	latest_published_at = $10,
	expires_at = $11,
	region_tags = $12,
	trending_regions = $13,
	updated_at = $14
WHERE cluster_id = $1::uuid
`
	tag, err := p.Exec(ctx, q,
		update.ClusterID,
		update.Scores.Freshness,
		update.Scores.Newsworthiness,
		update.Scores.Authority,
		update.Scores.Originality,
		update.Scores.Quality,
		update.Scores.Base,
		update.ArticleCount,
		update.EarliestPublishedAt.UTC(),
		update.LatestPublishedAt.UTC(),
		update.ExpiresAt.UTC(),
		pq.StringArray(nonNilStrings(update.RegionTags)),
		pq.StringArray(nonNilStrings(update.TrendingRegions)),
		update.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update cluster_id=%s scores: %w", update.ClusterID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cluster_id=%s: %w", update.ClusterID, news.ErrNotFound)
	}
	return nil
}

func (p *Pool) TopClusters(ctx context.Context, since time.Time, limit int) ([]news.StoryCluster, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	q := `
SELECT` + clusterColumns + `
FROM feed.story_clusters c
WHERE c.status = 'active'
  AND c.created_at >= $1
ORDER BY c.base_score DESC, c.cluster_id ASC
LIMIT $2
`
	rows, err := p.Query(ctx, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query top clusters: %w", err)
	}
	defer rows.Close()
	return collectClusters(rows, limit)
}

// ListClusters serves read-only listings with optional filters.
func (p *Pool) ListClusters(ctx context.Context, filter news.ClusterFilter) ([]news.StoryCluster, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	builder := psql.Select(clusterColumnList()...).
		From("feed.story_clusters c").
		OrderBy("c.base_score DESC", "c.cluster_id ASC").
		Limit(uint64(limit))
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"c.status": string(filter.Status)})
	}
	if category := strings.ToLower(strings.TrimSpace(filter.Category)); category != "" {
		builder = builder.Where(sq.Eq{"c.category": category})
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		pattern := "%" + escapeLike(query) + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"c.title": pattern},
			sq.ILike{"c.description": pattern},
		})
	}

	q, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cluster list query: %w", err)
	}
	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()
	return collectClusters(rows, limit)
}

func (p *Pool) ClusterDetail(ctx context.Context, clusterID string) (news.ClusterDetail, error) {
	q := `
SELECT` + clusterColumns + `
FROM feed.story_clusters c
WHERE c.cluster_id = $1::uuid
`
	cluster, err := scanCluster(p.QueryRow(ctx, q, strings.TrimSpace(clusterID)))
	if IsNoRows(err) {
		return news.ClusterDetail{}, fmt.Errorf("cluster_id=%s: %w", clusterID, news.ErrNotFound)
	}
	if err != nil {
		return news.ClusterDetail{}, fmt.Errorf("load cluster_id=%s: %w", clusterID, err)
	}

	members := `
SELECT` + articleColumns + `,
	ca.similarity_score,
	ca.is_representative,
	ca.added_at
FROM feed.cluster_articles ca
JOIN feed.articles a
	ON a.article_id = ca.article_id
LEFT JOIN feed.sources s
	ON s.source_id = a.source_id
WHERE ca.cluster_id = $1::uuid
ORDER BY ca.added_at ASC, a.article_id ASC
`
	rows, err := p.Query(ctx, members, cluster.ID)
	if err != nil {
		return news.ClusterDetail{}, fmt.Errorf("query cluster members: %w", err)
	}
	defer rows.Close()

	detail := news.ClusterDetail{Cluster: cluster}
	for rows.Next() {
		link := news.ClusterArticle{ClusterID: cluster.ID}
		article, err := scanArticle(scanWithExtra{rows: rows, extra: []any{&link.SimilarityScore, &link.IsRepresentative, &link.AddedAt}})
		if err != nil {
			return news.ClusterDetail{}, fmt.Errorf("scan cluster member: %w", err)
		}
		link.ArticleID = article.ID
		detail.Members = append(detail.Members, news.ClusterMember{Link: link, Article: article})
	}
	if err := rows.Err(); err != nil {
		return news.ClusterDetail{}, fmt.Errorf("iterate cluster members: %w", err)
	}
	return detail, nil
}

// scanWithExtra appends trailing destinations to a scanArticle call.
type scanWithExtra struct {
	rows  *Rows
	extra []any
}

func (s scanWithExtra) Scan(dest ...any) error {
	return s.rows.Scan(append(dest, s.extra...)...)
}

func collectClusters(rows *Rows, capacity int) ([]news.StoryCluster, error) {
	items := make([]news.StoryCluster, 0, capacity)
	for rows.Next() {
		cluster, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		items = append(items, cluster)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}
	return items, nil
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
