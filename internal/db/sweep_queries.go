package db

import (
	"context"
	"fmt"
	"time"
)

// Each sweep statement touches at most limit rows so one call holds short
// locks; the reaper repeats it until a batch comes back short.

func (p *Pool) MarkExpiredClustersStale(ctx context.Context, now time.Time, limit int) (int64, error) {
	const q = `
UPDATE feed.story_clusters
SET status = 'stale', updated_at = $1
WHERE cluster_id IN (
	SELECT cluster_id
	FROM feed.story_clusters
	WHERE status = 'active'
	  AND expires_at < $1
	ORDER BY expires_at ASC
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
`
	return p.sweepExec(ctx, "mark expired clusters stale", q, now.UTC(), limit)
}

func (p *Pool) ArchiveArticlesPublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	const q = `
UPDATE feed.articles
SET status = 'archived'
WHERE article_id IN (
	SELECT article_id
	FROM feed.articles
	WHERE status IN ('active', 'stale')
	  AND published_at < $1
	ORDER BY published_at ASC
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
`
	return p.sweepExec(ctx, "archive old articles", q, cutoff.UTC(), limit)
}

func (p *Pool) DeleteExpiredFeedEntries(ctx context.Context, now time.Time, limit int) (int64, error) {
	const q = `
DELETE FROM feed.personalized_feeds
WHERE feed_entry_id IN (
	SELECT feed_entry_id
	FROM feed.personalized_feeds
	WHERE expires_at < $1
	ORDER BY feed_entry_id ASC
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
`
	return p.sweepExec(ctx, "delete expired feed entries", q, now.UTC(), limit)
}

func (p *Pool) ArchiveClustersCreatedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	const q = `
UPDATE feed.story_clusters
SET status = 'archived', updated_at = now()
WHERE cluster_id IN (
	SELECT cluster_id
	FROM feed.story_clusters
	WHERE status IN ('active', 'trending', 'stale')
	  AND created_at < $1
	ORDER BY created_at ASC
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
`
	return p.sweepExec(ctx, "archive old clusters", q, cutoff.UTC(), limit)
}

func (p *Pool) DeleteInteractionsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	const q = `
DELETE FROM feed.user_reading_history
WHERE interaction_id IN (
	SELECT interaction_id
	FROM feed.user_reading_history
	WHERE read_at < $1
	ORDER BY read_at ASC
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
`
	return p.sweepExec(ctx, "delete old interactions", q, cutoff.UTC(), limit)
}

func (p *Pool) sweepExec(ctx context.Context, label, q string, at time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("%s: limit must be > 0", label)
	}
	tag, err := p.Exec(ctx, q, at, limit)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", label, err)
	}
	return tag.RowsAffected(), nil
}
