package memstore

import (
	"context"
	"sort"
	"time"

	"horse.fit/newsfeed/internal/news"
)

func (s *Store) MarkExpiredClustersStale(_ context.Context, now time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionClusters(limit, news.ClusterStale, func(c news.StoryCluster) bool {
		return c.Status == news.ClusterActive && c.ExpiresAt.Before(now)
	}), nil
}

func (s *Store) ArchiveClustersCreatedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionClusters(limit, news.ClusterArchived, func(c news.StoryCluster) bool {
		return c.Status != news.ClusterArchived && c.CreatedAt.Before(cutoff)
	}), nil
}

func (s *Store) transitionClusters(limit int, next news.ClusterStatus, match func(news.StoryCluster) bool) int64 {
	ids := make([]string, 0)
	for id, cluster := range s.clusters {
		if match(cluster) && cluster.Status.CanTransitionTo(next) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		cluster := s.clusters[id]
		cluster.Status = next
		s.clusters[id] = cluster
	}
	return int64(len(ids))
}

func (s *Store) ArchiveArticlesPublishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0)
	for id, article := range s.articles {
		if article.PublishedAt.Before(cutoff) && article.Status.CanTransitionTo(news.ArticleArchived) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		article := s.articles[id]
		article.Status = news.ArticleArchived
		s.articles[id] = article
	}
	return int64(len(ids)), nil
}

// DeleteExpiredFeedEntries drops up to limit expired feed rows, users in id
// order. The limit can stop inside one user's feed; the rows left behind are
// already expired, so the ranker recomputes that feed on its next read.
func (s *Store) DeleteExpiredFeedEntries(_ context.Context, now time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.feeds))
	for userID := range s.feeds {
		users = append(users, userID)
	}
	sort.Strings(users)

	var deleted int64
	for _, userID := range users {
		kept := s.feeds[userID][:0]
		for _, entry := range s.feeds[userID] {
			if entry.ExpiresAt.Before(now) && (limit <= 0 || deleted < int64(limit)) {
				deleted++
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			delete(s.feeds, userID)
		} else {
			s.feeds[userID] = kept
		}
	}
	return deleted, nil
}

func (s *Store) DeleteInteractionsBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	kept := s.interactions[:0]
	for _, interaction := range s.interactions {
		if interaction.ReadAt.Before(cutoff) && (limit <= 0 || deleted < int64(limit)) {
			deleted++
			continue
		}
		kept = append(kept, interaction)
	}
	s.interactions = kept
	return deleted, nil
}

// PutFeedEntries stores entries without validation. Used to seed fixtures.
func (s *Store) PutFeedEntries(userID string, entries []news.FeedEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[userID] = append([]news.FeedEntry(nil), entries...)
}

// PutInteraction appends a history row without side effects. Used to seed fixtures.
func (s *Store) PutInteraction(interaction news.Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, interaction)
}
