package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"horse.fit/newsfeed/internal/news"
)

func (p *Pool) CachedFeed(ctx context.Context, userID string) ([]news.CachedFeedItem, error) {
	q := `
SELECT
	pf.user_id,
	pf.cluster_id::text,
	pf.personalized_score,
	pf.rank_position,
	pf.expires_at,
	pf.created_at,` + clusterColumns + `
FROM feed.personalized_feeds pf
JOIN feed.story_clusters c
	ON c.cluster_id = pf.cluster_id
WHERE pf.user_id = $1
ORDER BY pf.rank_position ASC
`
	rows, err := p.Query(ctx, q, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("query cached feed: %w", err)
	}
	defer rows.Close()

	var items []news.CachedFeedItem
	for rows.Next() {
		var entry news.FeedEntry
		cluster, err := scanCluster(prefixScan{rows: rows, prefix: []any{
			&entry.UserID,
			&entry.ClusterID,
			&entry.PersonalizedScore,
			&entry.RankPosition,
			&entry.ExpiresAt,
			&entry.CreatedAt,
		}})
		if err != nil {
			return nil, fmt.Errorf("scan cached feed row: %w", err)
		}
		items = append(items, news.CachedFeedItem{Entry: entry, Cluster: cluster})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached feed: %w", err)
	}
	return items, nil
}

// prefixScan puts leading destinations ahead of a scanCluster call.
type prefixScan struct {
	rows   *Rows
	prefix []any
}

func (s prefixScan) Scan(dest ...any) error {
	return s.rows.Scan(append(append([]any{}, s.prefix...), dest...)...)
}

// ReplaceFeed deletes and reinserts the user's rows in one transaction so a
// reader sees either the old ranking or the new one.
func (p *Pool) ReplaceFeed(ctx context.Context, userID string, entries []news.FeedEntry) error {
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return fmt.Errorf("user id is required")
	}

	tx, err := p.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM feed.personalized_feeds WHERE user_id = $1`, trimmedUserID); err != nil {
		return fmt.Errorf("delete feed user_id=%s: %w", trimmedUserID, err)
	}

	const insert = `
INSERT INTO feed.personalized_feeds (user_id, cluster_id, personalized_score, rank_position, expires_at, created_at)
VALUES ($1, $2::uuid, $3, $4, $5, $6)
`
	for _, entry := range entries {
		if _, err := tx.Exec(ctx, insert,
			trimmedUserID,
			entry.ClusterID,
			entry.PersonalizedScore,
			entry.RankPosition,
			entry.ExpiresAt.UTC(),
			entry.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert feed entry user_id=%s rank=%d: %w", trimmedUserID, entry.RankPosition, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (p *Pool) UserProfile(ctx context.Context, userID string) (news.UserProfile, error) {
	const q = `
SELECT
	user_id,
	location_country,
	location_city,
	location_region,
	preferred_categories,
	content_preferences,
	subscription_status
FROM feed.user_profiles
WHERE user_id = $1
`
	var (
		out        news.UserProfile
		categories pq.StringArray
		prefs      []byte
	)
	err := p.QueryRow(ctx, q, strings.TrimSpace(userID)).Scan(
		&out.ID,
		&out.LocationCountry,
		&out.LocationCity,
		&out.LocationRegion,
		&categories,
		&prefs,
		&out.SubscriptionStatus,
	)
	if IsNoRows(err) {
		return news.UserProfile{}, fmt.Errorf("user_id=%s: %w", userID, news.ErrNotFound)
	}
	if err != nil {
		return news.UserProfile{}, fmt.Errorf("load user profile: %w", err)
	}
	out.PreferredCategories = []string(categories)
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &out.ContentPreferences); err != nil {
			return news.UserProfile{}, fmt.Errorf("decode content preferences user_id=%s: %w", userID, err)
		}
	}
	return out, nil
}

// UpsertUserProfile writes the profile. A nil ContentPreferences leaves the
// stored counters untouched.
func (p *Pool) UpsertUserProfile(ctx context.Context, profile news.UserProfile) error {
	var prefs *string
	if profile.ContentPreferences != nil {
		raw, err := json.Marshal(profile.ContentPreferences)
		if err != nil {
			return fmt.Errorf("encode content preferences: %w", err)
		}
		encoded := string(raw)
		prefs = &encoded
	}

	const q = `
INSERT INTO feed.user_profiles (
	user_id,
	location_country,
	location_city,
	location_region,
	preferred_categories,
	content_preferences,
	subscription_status,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, COALESCE($6::jsonb, '{}'::jsonb), $7, now(), now())
ON CONFLICT (user_id) DO UPDATE
SET
	location_country = EXCLUDED.location_country,
	location_city = EXCLUDED.location_city,
	location_region = EXCLUDED.location_region,
	preferred_categories = EXCLUDED.preferred_categories,
	content_preferences = COALESCE($6::jsonb, feed.user_profiles.content_preferences),
	subscription_status = EXCLUDED.subscription_status,
	updated_at = now()
`
	if _, err := p.Exec(ctx, q,
		profile.ID,
		profile.LocationCountry,
		profile.LocationCity,
		profile.LocationRegion,
		pq.StringArray(nonNilStrings(profile.PreferredCategories)),
		prefs,
		profile.SubscriptionStatus,
	); err != nil {
		return fmt.Errorf("upsert user profile user_id=%s: %w", profile.ID, err)
	}
	return nil
}

func (p *Pool) RecentInteractions(ctx context.Context, userID string, since time.Time, limit int) ([]news.Interaction, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	const q = `
SELECT
	h.interaction_id::text,
	h.user_id,
	h.cluster_id::text,
	COALESCE(h.article_id::text, ''),
	h.interaction_type,
	h.read_duration_seconds,
	h.read_at,
	COALESCE(c.category, '')
FROM feed.user_reading_history h
LEFT JOIN feed.story_clusters c
	ON c.cluster_id = h.cluster_id
WHERE h.user_id = $1
  AND h.read_at >= $2
ORDER BY h.read_at DESC
LIMIT $3
`
	rows, err := p.Query(ctx, q, strings.TrimSpace(userID), since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent interactions: %w", err)
	}
	defer rows.Close()

	items := make([]news.Interaction, 0, limit)
	for rows.Next() {
		var (
			item news.Interaction
			kind string
		)
		if err := rows.Scan(&item.ID, &item.UserID, &item.ClusterID, &item.ArticleID, &kind, &item.ReadDurationSeconds, &item.ReadAt, &item.Category); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		item.Type = news.InteractionType(kind)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return items, nil
}

// RecordInteraction appends history and, for views, increments the profile's
// counter for the cluster category in the same transaction.
func (p *Pool) RecordInteraction(ctx context.Context, interaction news.Interaction) error {
	tx, err := p.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var category string
	err = tx.QueryRow(ctx, `SELECT category FROM feed.story_clusters WHERE cluster_id = $1::uuid`, interaction.ClusterID).Scan(&category)
	if IsNoRows(err) {
		return fmt.Errorf("cluster_id=%s: %w", interaction.ClusterID, news.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load cluster category: %w", err)
	}

	var articleID *string
	if trimmed := strings.TrimSpace(interaction.ArticleID); trimmed != "" {
		articleID = &trimmed
	}
	const insert = `
INSERT INTO feed.user_reading_history (interaction_id, user_id, cluster_id, article_id, interaction_type, read_duration_seconds, read_at)
VALUES ($1::uuid, $2, $3::uuid, $4::uuid, $5, $6, $7)
`
	if _, err := tx.Exec(ctx, insert,
		interaction.ID,
		interaction.UserID,
		interaction.ClusterID,
		articleID,
		string(interaction.Type),
		interaction.ReadDurationSeconds,
		interaction.ReadAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}

	if interaction.Type == news.InteractionView && strings.TrimSpace(category) != "" {
		const bump = `
INSERT INTO feed.user_profiles (user_id, content_preferences, created_at, updated_at)
VALUES ($1, jsonb_build_object($2::text, 1), now(), now())
ON CONFLICT (user_id) DO UPDATE
SET
	content_preferences = jsonb_set(
		feed.user_profiles.content_preferences,
		ARRAY[$2::text],
		to_jsonb(COALESCE((feed.user_profiles.content_preferences ->> $2::text)::int, 0) + 1)
	),
	updated_at = now()
`
		if _, err := tx.Exec(ctx, bump, interaction.UserID, category); err != nil {
			return fmt.Errorf("increment content preference user_id=%s category=%s: %w", interaction.UserID, category, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (p *Pool) TopicPreferences(ctx context.Context, userID string) ([]news.TopicPreference, error) {
	const q = `
SELECT user_id, keyword, preference_score
FROM feed.user_topic_preferences
WHERE user_id = $1
ORDER BY keyword ASC
`
	rows, err := p.Query(ctx, q, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("query topic preferences: %w", err)
	}
	defer rows.Close()

	var items []news.TopicPreference
	for rows.Next() {
		var item news.TopicPreference
		if err := rows.Scan(&item.UserID, &item.Keyword, &item.PreferenceScore); err != nil {
			return nil, fmt.Errorf("scan topic preference: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topic preferences: %w", err)
	}
	return items, nil
}

func (p *Pool) SetTopicPreference(ctx context.Context, pref news.TopicPreference) error {
	const q = `
INSERT INTO feed.user_topic_preferences (user_id, keyword, preference_score, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (user_id, keyword) DO UPDATE
SET
	preference_score = EXCLUDED.preference_score,
	updated_at = now()
`
	if _, err := p.Exec(ctx, q, pref.UserID, strings.ToLower(strings.TrimSpace(pref.Keyword)), pref.PreferenceScore); err != nil {
		return fmt.Errorf("set topic preference user_id=%s: %w", pref.UserID, err)
	}
	return nil
}
