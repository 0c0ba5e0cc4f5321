package news

import (
	"time"
)

// EmbeddingDimensions is the fixed length of every article embedding.
const EmbeddingDimensions = 384

// Article is the stored, enriched form of a RawArticle.
type Article struct {
	ID               string
	SourceID         string
	SourceName       string
	Title            string
	Description      string
	Content          string
	URL              string
	ImageURL         string
	Author           string
	Category         string
	Language         string
	PublishedAt      time.Time
	TitleEmbedding   []float64
	ContentEmbedding []float64
	Keywords         []string
	Locations        []string
	QualityScore     float64
	Status           ArticleStatus
	ContentHash      string

	// Written asynchronously by the enrichment pipeline; nil until then.
	TrustScore         *float64
	StoryNature        *StoryNature
	AnalysisConfidence *float64

	CreatedAt time.Time
}

type NewsSource struct {
	ID         string
	Name       string
	Domain     string
	TrustScore float64
	TrustLevel TrustLevel
	IsActive   bool
}

// Scores holds the five cluster sub-scores and the weighted base score.
type Scores struct {
	Freshness      float64 `json:"freshness_score"`
	Newsworthiness float64 `json:"newsworthiness_score"`
	Authority      float64 `json:"authority_score"`
	Originality    float64 `json:"originality_score"`
	Quality        float64 `json:"quality_score"`
	Base           float64 `json:"base_score"`
}

type StoryCluster struct {
	ID                  string
	Title               string
	Description         string
	Category            string
	ImageURL            string
	RepresentativeURL   string
	Status              ClusterStatus
	Scores              Scores
	ArticleCount        int
	EarliestPublishedAt time.Time
	LatestPublishedAt   time.Time
	ExpiresAt           time.Time
	RegionTags          []string
	TrendingRegions     []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ClusterArticle joins one article to one cluster. Rows are insert-only.
type ClusterArticle struct {
	ClusterID        string
	ArticleID        string
	SimilarityScore  float64
	IsRepresentative bool
	AddedAt          time.Time
}

// ClusterCandidate is an active cluster with its representative article's
// title and content embedding, as read by the assigner.
type ClusterCandidate struct {
	ClusterID           string
	Category            string
	RepresentativeTitle string
	Embedding           []float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MemberSnapshot is the per-member input to cluster scoring.
type MemberSnapshot struct {
	ArticleID    string
	SourceID     string
	PublishedAt  time.Time
	QualityScore *float64
	TrustScore   *float64
	Locations    []string
}

// ScoreUpdate is the full set of fields a rescore writes back to a cluster.
type ScoreUpdate struct {
	ClusterID           string
	Scores              Scores
	ArticleCount        int
	EarliestPublishedAt time.Time
	LatestPublishedAt   time.Time
	ExpiresAt           time.Time
	RegionTags          []string
	TrendingRegions     []string
	UpdatedAt           time.Time
}

type UserProfile struct {
	ID                  string
	LocationCountry     string
	LocationCity        string
	LocationRegion      string
	PreferredCategories []string
	ContentPreferences  map[string]int
	SubscriptionStatus  string
}

// FeedEntry is one cached row of a user's personalized feed.
type FeedEntry struct {
	UserID            string
	ClusterID         string
	PersonalizedScore float64
	RankPosition      int
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// CachedFeedItem is a feed cache row joined with its cluster.
type CachedFeedItem struct {
	Entry   FeedEntry
	Cluster StoryCluster
}

type Interaction struct {
	ID                  string
	UserID              string
	ClusterID           string
	ArticleID           string
	Type                InteractionType
	ReadDurationSeconds int
	ReadAt              time.Time

	// Category of the interacted cluster; filled by the store on reads.
	Category string
}

type TopicPreference struct {
	UserID          string
	Keyword         string
	PreferenceScore float64
}

// SourceTrust is an admin trust adjustment for one domain.
type SourceTrust struct {
	Domain     string
	Name       string
	TrustScore float64
	TrustLevel TrustLevel
	IsActive   bool
}

// ClusterFilter narrows cluster listings for read-only consumers.
type ClusterFilter struct {
	Status   ClusterStatus
	Category string
	Query    string
	Limit    int
}

// ClusterDetail is a cluster with its member articles in join order.
type ClusterDetail struct {
	Cluster StoryCluster
	Members []ClusterMember
}

type ClusterMember struct {
	Link    ClusterArticle
	Article Article
}
