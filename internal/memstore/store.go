package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"horse.fit/newsfeed/internal/news"
)

// Store keeps every record in process memory behind one lock. It implements
// the same store interfaces as the Postgres pool.
type Store struct {
	mu sync.RWMutex

	sourcesByDomain map[string]news.NewsSource
	sourcesByID     map[string]string

	articles     map[string]news.Article
	articleByURL map[string]string

	clusters map[string]news.StoryCluster
	links    map[string][]news.ClusterArticle
	linked   map[string]string

	profiles     map[string]news.UserProfile
	feeds        map[string][]news.FeedEntry
	interactions []news.Interaction
	topics       map[string]map[string]news.TopicPreference
}

func New() *Store {
	return &Store{
		sourcesByDomain: make(map[string]news.NewsSource),
		sourcesByID:     make(map[string]string),
		articles:        make(map[string]news.Article),
		articleByURL:    make(map[string]string),
		clusters:        make(map[string]news.StoryCluster),
		links:           make(map[string][]news.ClusterArticle),
		linked:          make(map[string]string),
		profiles:        make(map[string]news.UserProfile),
		feeds:           make(map[string][]news.FeedEntry),
		topics:          make(map[string]map[string]news.TopicPreference),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) ArticleExistsByURL(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.articleByURL[url]
	return ok, nil
}

func (s *Store) EnsureSource(_ context.Context, source news.NewsSource) (news.NewsSource, error) {
	domain := strings.ToLower(strings.TrimSpace(source.Domain))
	if domain == "" {
		return news.NewsSource{}, fmt.Errorf("source domain is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sourcesByDomain[domain]; ok {
		return existing, nil
	}
	source.Domain = domain
	s.sourcesByDomain[domain] = source
	s.sourcesByID[source.ID] = domain
	return source, nil
}

func (s *Store) ApplySourceTrust(_ context.Context, trust news.SourceTrust) (bool, error) {
	domain := strings.ToLower(strings.TrimSpace(trust.Domain))
	if domain == "" {
		return false, fmt.Errorf("source domain is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sourcesByDomain[domain]
	if !ok {
		existing = news.NewsSource{ID: fmt.Sprintf("src-%s", domain), Domain: domain, Name: domain}
		s.sourcesByID[existing.ID] = domain
	}
	if name := strings.TrimSpace(trust.Name); name != "" {
		existing.Name = name
	}
	existing.TrustScore = trust.TrustScore
	existing.TrustLevel = trust.TrustLevel
	existing.IsActive = trust.IsActive
	s.sourcesByDomain[domain] = existing
	return !ok, nil
}

// Source looks up a source by domain.
func (s *Store) Source(domain string) (news.NewsSource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	source, ok := s.sourcesByDomain[strings.ToLower(strings.TrimSpace(domain))]
	return source, ok
}

func (s *Store) InsertArticle(_ context.Context, article news.Article) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.articleByURL[article.URL]; dup {
		return false, nil
	}
	if _, dup := s.articles[article.ID]; dup {
		return false, fmt.Errorf("article id %s already exists", article.ID)
	}
	s.articles[article.ID] = cloneArticle(article)
	s.articleByURL[article.URL] = article.ID
	return true, nil
}

func (s *Store) UnclusteredArticles(_ context.Context, since time.Time, limit int) ([]news.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []news.Article
	for _, article := range s.articles {
		if _, ok := s.linked[article.ID]; ok {
			continue
		}
		if article.Status != news.ArticleActive || article.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneArticle(article))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateArticleFeatures(_ context.Context, articleID string, embedding []float64, keywords, locations []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	article, ok := s.articles[articleID]
	if !ok {
		return fmt.Errorf("article_id=%s: %w", articleID, news.ErrNotFound)
	}
	article.ContentEmbedding = embedding
	article.Keywords = keywords
	article.Locations = locations
	s.articles[articleID] = cloneArticle(article)
	return nil
}

// Article returns a stored article by id.
func (s *Store) Article(id string) (news.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	article, ok := s.articles[id]
	return cloneArticle(article), ok
}

func (s *Store) CandidateClusters(_ context.Context, since time.Time) ([]news.ClusterCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []news.ClusterCandidate
	for _, cluster := range s.clusters {
		if cluster.Status != news.ClusterActive || cluster.CreatedAt.Before(since) {
			continue
		}
		rep, ok := s.representative(cluster.ID)
		if !ok {
			continue
		}
		article := s.articles[rep.ArticleID]
		out = append(out, news.ClusterCandidate{
			ClusterID:           cluster.ID,
			Category:            cluster.Category,
			RepresentativeTitle: article.Title,
			Embedding:           append([]float64(nil), article.ContentEmbedding...),
			CreatedAt:           cluster.CreatedAt,
			UpdatedAt:           cluster.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClusterID < out[j].ClusterID })
	return out, nil
}

func (s *Store) representative(clusterID string) (news.ClusterArticle, bool) {
	for _, link := range s.links[clusterID] {
		if link.IsRepresentative {
			return link, true
		}
	}
	return news.ClusterArticle{}, false
}

func (s *Store) CreateCluster(_ context.Context, cluster news.StoryCluster, founder news.ClusterArticle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.clusters[cluster.ID]; dup {
		return fmt.Errorf("cluster %s already exists", cluster.ID)
	}
	if _, ok := s.articles[founder.ArticleID]; !ok {
		return fmt.Errorf("article_id=%s: %w", founder.ArticleID, news.ErrNotFound)
	}
	if !founder.IsRepresentative || founder.ClusterID != cluster.ID {
		return fmt.Errorf("founder link must be the representative of cluster %s", cluster.ID)
	}
	cluster.ArticleCount = 1
	s.clusters[cluster.ID] = cloneCluster(cluster)
	s.links[cluster.ID] = []news.ClusterArticle{founder}
	s.linked[founder.ArticleID] = cluster.ID
	return nil
}

func (s *Store) AddClusterMember(_ context.Context, link news.ClusterArticle, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cluster, ok := s.clusters[link.ClusterID]
	if !ok {
		return fmt.Errorf("cluster_id=%s: %w", link.ClusterID, news.ErrNotFound)
	}
	if _, ok := s.articles[link.ArticleID]; !ok {
		return fmt.Errorf("article_id=%s: %w", link.ArticleID, news.ErrNotFound)
	}
	for _, existing := range s.links[link.ClusterID] {
		if existing.ArticleID == link.ArticleID {
			return fmt.Errorf("article_id=%s already in cluster_id=%s", link.ArticleID, link.ClusterID)
		}
	}
	link.IsRepresentative = false
	s.links[link.ClusterID] = append(s.links[link.ClusterID], link)
	s.linked[link.ArticleID] = link.ClusterID

	cluster.ArticleCount = len(s.links[link.ClusterID])
	if expiresAt.After(cluster.ExpiresAt) {
		cluster.ExpiresAt = expiresAt
	}
	if link.AddedAt.After(cluster.UpdatedAt) {
		cluster.UpdatedAt = link.AddedAt
	}
	s.clusters[cluster.ID] = cluster
	return nil
}

func (s *Store) ClusterMembers(_ context.Context, clusterID string) ([]news.MemberSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clusters[clusterID]; !ok {
		return nil, fmt.Errorf("cluster_id=%s: %w", clusterID, news.ErrNotFound)
	}
	links := s.links[clusterID]
	out := make([]news.MemberSnapshot, 0, len(links))
	for _, link := range links {
		article := s.articles[link.ArticleID]
		quality := article.QualityScore
		snapshot := news.MemberSnapshot{
			ArticleID:    article.ID,
			SourceID:     article.SourceID,
			PublishedAt:  article.PublishedAt,
			QualityScore: &quality,
			Locations:    append([]string(nil), article.Locations...),
		}
		if domain, ok := s.sourcesByID[article.SourceID]; ok {
			trust := s.sourcesByDomain[domain].TrustScore
			snapshot.TrustScore = &trust
		}
		out = append(out, snapshot)
	}
	return out, nil
}

func (s *Store) UpdateClusterScores(_ context.Context, update news.ScoreUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cluster, ok := s.clusters[update.ClusterID]
	if !ok {
		return fmt.Errorf("cluster_id=%s: %w", update.ClusterID, news.ErrNotFound)
	}
	cluster.Scores = update.Scores
	cluster.ArticleCount = update.ArticleCount
	cluster.EarliestPublishedAt = update.EarliestPublishedAt
	cluster.LatestPublishedAt = update.LatestPublishedAt
	cluster.ExpiresAt = update.ExpiresAt
	cluster.RegionTags = append([]string(nil), update.RegionTags...)
	cluster.TrendingRegions = append([]string(nil), update.TrendingRegions...)
	cluster.UpdatedAt = update.UpdatedAt
	s.clusters[cluster.ID] = cluster
	return nil
}

// PutCluster stores cluster as-is. Used to seed fixtures.
func (s *Store) PutCluster(cluster news.StoryCluster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[cluster.ID] = cloneCluster(cluster)
}

// Clusters returns every cluster ordered by creation time.
func (s *Store) Clusters() []news.StoryCluster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]news.StoryCluster, 0, len(s.clusters))
	for _, cluster := range s.clusters {
		out = append(out, cloneCluster(cluster))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Links returns the join rows of one cluster in insertion order.
func (s *Store) Links(clusterID string) []news.ClusterArticle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]news.ClusterArticle(nil), s.links[clusterID]...)
}

func (s *Store) ListClusters(_ context.Context, filter news.ClusterFilter) ([]news.StoryCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	var out []news.StoryCluster
	for _, cluster := range s.clusters {
		if filter.Status != "" && cluster.Status != filter.Status {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(cluster.Category, filter.Category) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(cluster.Title), query) &&
			!strings.Contains(strings.ToLower(cluster.Description), query) {
			continue
		}
		out = append(out, cloneCluster(cluster))
	}
	sortByBaseScore(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) ClusterDetail(_ context.Context, clusterID string) (news.ClusterDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cluster, ok := s.clusters[clusterID]
	if !ok {
		return news.ClusterDetail{}, fmt.Errorf("cluster_id=%s: %w", clusterID, news.ErrNotFound)
	}
	detail := news.ClusterDetail{Cluster: cloneCluster(cluster)}
	for _, link := range s.links[clusterID] {
		detail.Members = append(detail.Members, news.ClusterMember{Link: link, Article: cloneArticle(s.articles[link.ArticleID])})
	}
	return detail, nil
}

func (s *Store) TopClusters(_ context.Context, since time.Time, limit int) ([]news.StoryCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []news.StoryCluster
	for _, cluster := range s.clusters {
		if cluster.Status != news.ClusterActive || cluster.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneCluster(cluster))
	}
	sortByBaseScore(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CachedFeed(_ context.Context, userID string) ([]news.CachedFeedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.feeds[userID]
	out := make([]news.CachedFeedItem, 0, len(entries))
	for _, entry := range entries {
		cluster, ok := s.clusters[entry.ClusterID]
		if !ok {
			continue
		}
		out = append(out, news.CachedFeedItem{Entry: entry, Cluster: cloneCluster(cluster)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry.RankPosition < out[j].Entry.RankPosition })
	return out, nil
}

// ReplaceFeed swaps the whole entry set under the write lock so readers see
// either the old ranking or the new one.
func (s *Store) ReplaceFeed(_ context.Context, userID string, entries []news.FeedEntry) error {
	seen := make(map[int]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.RankPosition]; dup {
			return fmt.Errorf("duplicate rank_position %d for user_id=%s", entry.RankPosition, userID)
		}
		seen[entry.RankPosition] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) == 0 {
		delete(s.feeds, userID)
		return nil
	}
	s.feeds[userID] = append([]news.FeedEntry(nil), entries...)
	return nil
}

func (s *Store) UserProfile(_ context.Context, userID string) (news.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return news.UserProfile{}, fmt.Errorf("user_id=%s: %w", userID, news.ErrNotFound)
	}
	return cloneProfile(profile), nil
}

func (s *Store) UpsertUserProfile(_ context.Context, profile news.UserProfile) error {
	if strings.TrimSpace(profile.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.profiles[profile.ID]
	if ok && profile.ContentPreferences == nil {
		profile.ContentPreferences = existing.ContentPreferences
	}
	s.profiles[profile.ID] = cloneProfile(profile)
	return nil
}

func (s *Store) RecentInteractions(_ context.Context, userID string, since time.Time, limit int) ([]news.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []news.Interaction
	for _, interaction := range s.interactions {
		if interaction.UserID != userID || interaction.ReadAt.Before(since) {
			continue
		}
		interaction.Category = s.clusters[interaction.ClusterID].Category
		out = append(out, interaction)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReadAt.After(out[j].ReadAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RecordInteraction(_ context.Context, interaction news.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cluster, ok := s.clusters[interaction.ClusterID]
	if !ok {
		return fmt.Errorf("cluster_id=%s: %w", interaction.ClusterID, news.ErrNotFound)
	}
	interaction.Category = ""
	s.interactions = append(s.interactions, interaction)

	if interaction.Type != news.InteractionView || strings.TrimSpace(cluster.Category) == "" {
		return nil
	}
	profile, ok := s.profiles[interaction.UserID]
	if !ok {
		profile = news.UserProfile{ID: interaction.UserID}
	}
	profile = cloneProfile(profile)
	if profile.ContentPreferences == nil {
		profile.ContentPreferences = make(map[string]int)
	}
	profile.ContentPreferences[cluster.Category]++
	s.profiles[interaction.UserID] = profile
	return nil
}

func (s *Store) TopicPreferences(_ context.Context, userID string) ([]news.TopicPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefs := s.topics[userID]
	out := make([]news.TopicPreference, 0, len(prefs))
	for _, pref := range prefs {
		out = append(out, pref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keyword < out[j].Keyword })
	return out, nil
}

func (s *Store) SetTopicPreference(_ context.Context, pref news.TopicPreference) error {
	keyword := strings.ToLower(strings.TrimSpace(pref.Keyword))
	if keyword == "" {
		return fmt.Errorf("topic keyword is required")
	}
	pref.Keyword = keyword
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topics[pref.UserID] == nil {
		s.topics[pref.UserID] = make(map[string]news.TopicPreference)
	}
	s.topics[pref.UserID][keyword] = pref
	return nil
}

func sortByBaseScore(clusters []news.StoryCluster) {
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Scores.Base != clusters[j].Scores.Base {
			return clusters[i].Scores.Base > clusters[j].Scores.Base
		}
		return clusters[i].ID < clusters[j].ID
	})
}

func cloneArticle(a news.Article) news.Article {
	a.TitleEmbedding = append([]float64(nil), a.TitleEmbedding...)
	a.ContentEmbedding = append([]float64(nil), a.ContentEmbedding...)
	a.Keywords = append([]string(nil), a.Keywords...)
	a.Locations = append([]string(nil), a.Locations...)
	return a
}

func cloneCluster(c news.StoryCluster) news.StoryCluster {
	c.RegionTags = append([]string(nil), c.RegionTags...)
	c.TrendingRegions = append([]string(nil), c.TrendingRegions...)
	return c
}

func cloneProfile(p news.UserProfile) news.UserProfile {
	p.PreferredCategories = append([]string(nil), p.PreferredCategories...)
	if p.ContentPreferences != nil {
		prefs := make(map[string]int, len(p.ContentPreferences))
		for k, v := range p.ContentPreferences {
			prefs[k] = v
		}
		p.ContentPreferences = prefs
	}
	return p
}
