package httpapi

import (
	"time"

	"horse.fit/newsfeed/internal/feed"
	"horse.fit/newsfeed/internal/news"
	"horse.fit/newsfeed/internal/pipeline"
	"horse.fit/newsfeed/internal/reaper"
)

type clusterView struct {
	ClusterID           string      `json:"cluster_id"`
	Title               string      `json:"title"`
	Description         string      `json:"description,omitempty"`
	Category            string      `json:"category"`
	ImageURL            string      `json:"image_url,omitempty"`
	RepresentativeURL   string      `json:"representative_url,omitempty"`
	Status              string      `json:"status"`
	Scores              news.Scores `json:"scores"`
	ArticleCount        int         `json:"article_count"`
	EarliestPublishedAt time.Time   `json:"earliest_published_at"`
	LatestPublishedAt   time.Time   `json:"latest_published_at"`
	ExpiresAt           time.Time   `json:"expires_at"`
	RegionTags          []string    `json:"region_tags"`
	TrendingRegions     []string    `json:"trending_regions"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

type memberView struct {
	ArticleID        string    `json:"article_id"`
	Title            string    `json:"title"`
	URL              string    `json:"url"`
	SourceName       string    `json:"source_name,omitempty"`
	Author           string    `json:"author,omitempty"`
	Language         string    `json:"language,omitempty"`
	PublishedAt      time.Time `json:"published_at"`
	QualityScore     float64   `json:"quality_score"`
	Keywords         []string  `json:"keywords"`
	Locations        []string  `json:"locations"`
	SimilarityScore  float64   `json:"similarity_score"`
	IsRepresentative bool      `json:"is_representative"`
	AddedAt          time.Time `json:"added_at"`
}

type clusterDetailView struct {
	Cluster clusterView  `json:"cluster"`
	Members []memberView `json:"members"`
}

type feedItemView struct {
	RankPosition    int         `json:"rank_position"`
	Score           float64     `json:"personalized_score"`
	Personalization *float64    `json:"personalization_score,omitempty"`
	Cluster         clusterView `json:"cluster"`
}

type feedView struct {
	UserID      string         `json:"user_id"`
	Status      feed.Status    `json:"status"`
	Source      feed.Source    `json:"source"`
	GeneratedAt time.Time      `json:"generated_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Items       []feedItemView `json:"items"`
}

type ingestItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type ingestView struct {
	Received     int               `json:"received"`
	Processed    int               `json:"processed"`
	Inserted     int               `json:"inserted"`
	Duplicates   int               `json:"duplicates"`
	Rejected     int               `json:"rejected"`
	Unassignable int               `json:"unassignable"`
	NewClusters  int               `json:"new_clusters"`
	Joined       int               `json:"joined"`
	Failed       int               `json:"failed"`
	Errors       []ingestItemError `json:"errors,omitempty"`
}

type interactionView struct {
	InteractionID       string    `json:"interaction_id"`
	UserID              string    `json:"user_id"`
	ClusterID           string    `json:"cluster_id"`
	ArticleID           string    `json:"article_id,omitempty"`
	Type                string    `json:"interaction_type"`
	ReadDurationSeconds int       `json:"read_duration_seconds"`
	ReadAt              time.Time `json:"read_at"`
}

type profileView struct {
	UserID              string   `json:"user_id"`
	LocationCountry     string   `json:"location_country,omitempty"`
	LocationCity        string   `json:"location_city,omitempty"`
	LocationRegion      string   `json:"location_region,omitempty"`
	PreferredCategories []string `json:"preferred_categories"`
	SubscriptionStatus  string   `json:"subscription_status"`
}

type sweepView struct {
	Counts reaper.Counts `json:"counts"`
	Total  int64         `json:"total"`
}

func buildClusterView(c news.StoryCluster) clusterView {
	return clusterView{
		ClusterID:           c.ID,
		Title:               c.Title,
		Description:         c.Description,
		Category:            c.Category,
		ImageURL:            c.ImageURL,
		RepresentativeURL:   c.RepresentativeURL,
		Status:              string(c.Status),
		Scores:              c.Scores,
		ArticleCount:        c.ArticleCount,
		EarliestPublishedAt: c.EarliestPublishedAt,
		LatestPublishedAt:   c.LatestPublishedAt,
		ExpiresAt:           c.ExpiresAt,
		RegionTags:          nonNil(c.RegionTags),
		TrendingRegions:     nonNil(c.TrendingRegions),
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func buildClusterDetailView(d news.ClusterDetail) clusterDetailView {
	members := make([]memberView, 0, len(d.Members))
	for _, m := range d.Members {
		members = append(members, memberView{
			ArticleID:        m.Article.ID,
			Title:            m.Article.Title,
			URL:              m.Article.URL,
			SourceName:       m.Article.SourceName,
			Author:           m.Article.Author,
			Language:         m.Article.Language,
			PublishedAt:      m.Article.PublishedAt,
			QualityScore:     m.Article.QualityScore,
			Keywords:         nonNil(m.Article.Keywords),
			Locations:        nonNil(m.Article.Locations),
			SimilarityScore:  m.Link.SimilarityScore,
			IsRepresentative: m.Link.IsRepresentative,
			AddedAt:          m.Link.AddedAt,
		})
	}
	return clusterDetailView{Cluster: buildClusterView(d.Cluster), Members: members}
}

func buildFeedView(r feed.Result) feedView {
	items := make([]feedItemView, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, feedItemView{
			RankPosition:    item.RankPosition,
			Score:           item.Score,
			Personalization: item.Personalization,
			Cluster:         buildClusterView(item.Cluster),
		})
	}
	view := feedView{
		UserID:      r.UserID,
		Status:      r.Status,
		Source:      r.Source,
		GeneratedAt: r.GeneratedAt,
		Items:       items,
	}
	if !r.ExpiresAt.IsZero() {
		expires := r.ExpiresAt
		view.ExpiresAt = &expires
	}
	return view
}

func buildIngestView(received int, r pipeline.BatchResult, itemErrors []ingestItemError) ingestView {
	return ingestView{
		Received:     received,
		Processed:    r.Processed,
		Inserted:     r.Inserted,
		Duplicates:   r.Duplicates,
		Rejected:     r.Rejected + len(itemErrors),
		Unassignable: r.Unassignable,
		NewClusters:  r.NewClusters,
		Joined:       r.Joined,
		Failed:       r.Failed,
		Errors:       itemErrors,
	}
}

func buildInteractionView(i news.Interaction) interactionView {
	return interactionView{
		InteractionID:       i.ID,
		UserID:              i.UserID,
		ClusterID:           i.ClusterID,
		ArticleID:           i.ArticleID,
		Type:                string(i.Type),
		ReadDurationSeconds: i.ReadDurationSeconds,
		ReadAt:              i.ReadAt,
	}
}

func buildProfileView(p news.UserProfile) profileView {
	return profileView{
		UserID:              p.ID,
		LocationCountry:     p.LocationCountry,
		LocationCity:        p.LocationCity,
		LocationRegion:      p.LocationRegion,
		PreferredCategories: nonNil(p.PreferredCategories),
		SubscriptionStatus:  p.SubscriptionStatus,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
