package db

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Source maps feed.sources.
type Source struct {
	SourceID   string    `gorm:"column:source_id;type:uuid;primaryKey"`
	Name       string    `gorm:"column:name;type:text;not null"`
	Domain     string    `gorm:"column:domain;type:text;not null;unique"`
	TrustScore float64   `gorm:"column:trust_score;type:double precision;not null;default:0.5"`
	TrustLevel string    `gorm:"column:trust_level;type:text;not null;default:medium"`
	IsActive   bool      `gorm:"column:is_active;type:boolean;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Source) TableName() string { return "feed.sources" }

// Article maps feed.articles.
type Article struct {
	ArticleID          string         `gorm:"column:article_id;type:uuid;primaryKey"`
	SourceID           string         `gorm:"column:source_id;type:uuid;not null;index"`
	Title              string         `gorm:"column:title;type:text;not null"`
	Description        string         `gorm:"column:description;type:text;not null;default:''"`
	Content            string         `gorm:"column:content;type:text;not null;default:''"`
	URL                string         `gorm:"column:url;type:text;not null;unique"`
	ImageURL           string         `gorm:"column:image_url;type:text;not null;default:''"`
	Author             string         `gorm:"column:author;type:text;not null;default:''"`
	Category           string         `gorm:"column:category;type:text;not null;default:''"`
	Language           string         `gorm:"column:language;type:text;not null;default:''"`
	PublishedAt        time.Time      `gorm:"column:published_at;type:timestamptz;not null"`
	TitleEmbedding     *string        `gorm:"column:title_embedding;type:vector(384)"`
	ContentEmbedding   *string        `gorm:"column:content_embedding;type:vector(384)"`
	Keywords           pq.StringArray `gorm:"column:keywords;type:text[];not null;default:'{}'"`
	Locations          pq.StringArray `gorm:"column:locations;type:text[];not null;default:'{}'"`
	QualityScore       float64        `gorm:"column:quality_score;type:double precision;not null;default:0.5"`
	Status             string         `gorm:"column:status;type:text;not null;default:active"`
	ContentHash        string         `gorm:"column:content_hash;type:text;not null"`
	TrustScore         *float64       `gorm:"column:trust_score;type:double precision"`
	StoryNature        *string        `gorm:"column:story_nature;type:text"`
	AnalysisConfidence *float64       `gorm:"column:analysis_confidence;type:double precision"`
	CreatedAt          time.Time      `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "feed.articles" }

// StoryCluster maps feed.story_clusters.
type StoryCluster struct {
	ClusterID           string         `gorm:"column:cluster_id;type:uuid;primaryKey"`
	Title               string         `gorm:"column:title;type:text;not null"`
	Description         string         `gorm:"column:description;type:text;not null;default:''"`
	Category            string         `gorm:"column:category;type:text;not null;default:''"`
	ImageURL            string         `gorm:"column:image_url;type:text;not null;default:''"`
	RepresentativeURL   string         `gorm:"column:representative_url;type:text;not null;default:''"`
	Status              string         `gorm:"column:status;type:text;not null;default:active"`
	FreshnessScore      float64        `gorm:"column:freshness_score;type:double precision;not null;default:0"`
	NewsworthinessScore float64        `gorm:"column:newsworthiness_score;type:double precision;not null;default:0"`
	AuthorityScore      float64        `gorm:"column:authority_score;type:double precision;not null;default:0"`
	OriginalityScore    float64        `gorm:"column:originality_score;type:double precision;not null;default:0"`
	QualityScore        float64        `gorm:"column:quality_score;type:double precision;not null;default:0"`
	BaseScore           float64        `gorm:"column:base_score;type:double precision;not null;default:0"`
	ArticleCount        int            `gorm:"column:article_count;type:integer;not null;default:0"`
	EarliestPublishedAt time.Time      `gorm:"column:earliest_published_at;type:timestamptz;not null"`
	LatestPublishedAt   time.Time      `gorm:"column:latest_published_at;type:timestamptz;not null"`
	ExpiresAt           time.Time      `gorm:"column:expires_at;type:timestamptz;not null"`
	RegionTags          pq.StringArray `gorm:"column:region_tags;type:text[];not null;default:'{}'"`
	TrendingRegions     pq.StringArray `gorm:"column:trending_regions;type:text[];not null;default:'{}'"`
	CreatedAt           time.Time      `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (StoryCluster) TableName() string { return "feed.story_clusters" }

// ClusterArticle maps feed.cluster_articles.
type ClusterArticle struct {
	ClusterID        string    `gorm:"column:cluster_id;type:uuid;primaryKey"`
	ArticleID        string    `gorm:"column:article_id;type:uuid;primaryKey"`
	SimilarityScore  float64   `gorm:"column:similarity_score;type:double precision;not null"`
	IsRepresentative bool      `gorm:"column:is_representative;type:boolean;not null;default:false"`
	AddedAt          time.Time `gorm:"column:added_at;type:timestamptz;not null;default:now()"`
}

func (ClusterArticle) TableName() string { return "feed.cluster_articles" }

// UserProfile maps feed.user_profiles.
type UserProfile struct {
	UserID              string          `gorm:"column:user_id;type:text;primaryKey"`
	LocationCountry     string          `gorm:"column:location_country;type:text;not null;default:''"`
	LocationCity        string          `gorm:"column:location_city;type:text;not null;default:''"`
	LocationRegion      string          `gorm:"column:location_region;type:text;not null;default:''"`
	PreferredCategories pq.StringArray  `gorm:"column:preferred_categories;type:text[];not null;default:'{}'"`
	ContentPreferences  json.RawMessage `gorm:"column:content_preferences;type:jsonb;not null;default:'{}'"`
	SubscriptionStatus  string          `gorm:"column:subscription_status;type:text;not null;default:free"`
	CreatedAt           time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (UserProfile) TableName() string { return "feed.user_profiles" }

// PersonalizedFeed maps feed.personalized_feeds.
type PersonalizedFeed struct {
	FeedEntryID       int64     `gorm:"column:feed_entry_id;primaryKey;autoIncrement"`
	UserID            string    `gorm:"column:user_id;type:text;not null"`
	ClusterID         string    `gorm:"column:cluster_id;type:uuid;not null"`
	PersonalizedScore float64   `gorm:"column:personalized_score;type:double precision;not null"`
	RankPosition      int       `gorm:"column:rank_position;type:integer;not null"`
	ExpiresAt         time.Time `gorm:"column:expires_at;type:timestamptz;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (PersonalizedFeed) TableName() string { return "feed.personalized_feeds" }

// ReadingHistory maps feed.user_reading_history.
type ReadingHistory struct {
	InteractionID       string    `gorm:"column:interaction_id;type:uuid;primaryKey"`
	UserID              string    `gorm:"column:user_id;type:text;not null"`
	ClusterID           string    `gorm:"column:cluster_id;type:uuid;not null"`
	ArticleID           *string   `gorm:"column:article_id;type:uuid"`
	InteractionType     string    `gorm:"column:interaction_type;type:text;not null"`
	ReadDurationSeconds int       `gorm:"column:read_duration_seconds;type:integer;not null;default:0"`
	ReadAt              time.Time `gorm:"column:read_at;type:timestamptz;not null"`
}

func (ReadingHistory) TableName() string { return "feed.user_reading_history" }

// TopicPreference maps feed.user_topic_preferences.
type TopicPreference struct {
	UserID          string    `gorm:"column:user_id;type:text;primaryKey"`
	Keyword         string    `gorm:"column:keyword;type:text;primaryKey"`
	PreferenceScore float64   `gorm:"column:preference_score;type:double precision;not null;default:0.5"`
	UpdatedAt       time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (TopicPreference) TableName() string { return "feed.user_topic_preferences" }

func autoMigrateModels() []any {
	return []any{
		&Source{},
		&Article{},
		&StoryCluster{},
		&ClusterArticle{},
		&UserProfile{},
		&PersonalizedFeed{},
		&ReadingHistory{},
		&TopicPreference{},
	}
}
