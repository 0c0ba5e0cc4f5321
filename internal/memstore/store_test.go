package memstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"horse.fit/newsfeed/internal/news"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func seedCluster(t *testing.T, s *Store, clusterID, articleID string) {
	t.Helper()

	ctx := context.Background()
	if _, err := s.InsertArticle(ctx, news.Article{ID: articleID, URL: "https://example.com/" + articleID, Status: news.ArticleActive, CreatedAt: testNow}); err != nil {
		t.Fatalf("insert article: %v", err)
	}
	cluster := news.StoryCluster{ID: clusterID, Status: news.ClusterActive, Category: "politics", CreatedAt: testNow, UpdatedAt: testNow, ExpiresAt: testNow.Add(time.Hour)}
	founder := news.ClusterArticle{ClusterID: clusterID, ArticleID: articleID, SimilarityScore: 1, IsRepresentative: true, AddedAt: testNow}
	if err := s.CreateCluster(ctx, cluster, founder); err != nil {
		t.Fatalf("create cluster: %v", err)
	}
}

func TestInsertArticleDeduplicatesURL(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	inserted, err := s.InsertArticle(ctx, news.Article{ID: "a1", URL: "https://example.com/x"})
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.InsertArticle(ctx, news.Article{ID: "a2", URL: "https://example.com/x"})
	if err != nil || inserted {
		t.Fatalf("second insert: inserted=%v err=%v", inserted, err)
	}
	exists, _ := s.ArticleExistsByURL(ctx, "https://example.com/x")
	if !exists {
		t.Fatalf("expected url to exist")
	}
}

func TestAddClusterMemberKeepsCountAndExpiry(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seedCluster(t, s, "c1", "a1")
	if _, err := s.InsertArticle(ctx, news.Article{ID: "a2", URL: "https://example.com/a2"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	later := testNow.Add(2 * time.Hour)
	if err := s.AddClusterMember(ctx, news.ClusterArticle{ClusterID: "c1", ArticleID: "a2", IsRepresentative: true, AddedAt: testNow.Add(time.Minute)}, later); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := s.AddClusterMember(ctx, news.ClusterArticle{ClusterID: "c1", ArticleID: "a2"}, later); err == nil {
		t.Fatalf("expected duplicate pair to fail")
	}

	detail, err := s.ClusterDetail(ctx, "c1")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Cluster.ArticleCount != 2 || len(detail.Members) != 2 {
		t.Fatalf("expected 2 members, got count=%d members=%d", detail.Cluster.ArticleCount, len(detail.Members))
	}
	if !detail.Cluster.ExpiresAt.Equal(later) {
		t.Fatalf("expected expiry to move forward, got %s", detail.Cluster.ExpiresAt)
	}
	representatives := 0
	for _, member := range detail.Members {
		if member.Link.IsRepresentative {
			representatives++
		}
	}
	if representatives != 1 {
		t.Fatalf("expected one representative, got %d", representatives)
	}

	if err := s.AddClusterMember(ctx, news.ClusterArticle{ClusterID: "missing", ArticleID: "a2"}, later); !errors.Is(err, news.ErrNotFound) {
		t.Fatalf("expected not found for unknown cluster, got %v", err)
	}
}

func TestCandidateClustersUsesRepresentative(t *testing.T) {
	t.Parallel()

	s := New()
	seedCluster(t, s, "c1", "a1")
	s.PutCluster(news.StoryCluster{ID: "old", Status: news.ClusterActive, CreatedAt: testNow.Add(-48 * time.Hour)})

	candidates, err := s.CandidateClusters(context.Background(), testNow.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ClusterID != "c1" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
}

func TestReplaceFeedRejectsDuplicateRanks(t *testing.T) {
	t.Parallel()

	s := New()
	seedCluster(t, s, "c1", "a1")
	ctx := context.Background()
	good := []news.FeedEntry{{UserID: "u1", ClusterID: "c1", RankPosition: 1, ExpiresAt: testNow.Add(time.Hour)}}
	if err := s.ReplaceFeed(ctx, "u1", good); err != nil {
		t.Fatalf("replace: %v", err)
	}
	bad := []news.FeedEntry{{UserID: "u1", ClusterID: "c1", RankPosition: 1}, {UserID: "u1", ClusterID: "c1", RankPosition: 1}}
	if err := s.ReplaceFeed(ctx, "u1", bad); err == nil {
		t.Fatalf("expected duplicate rank error")
	}

	rows, err := s.CachedFeed(ctx, "u1")
	if err != nil {
		t.Fatalf("cached feed: %v", err)
	}
	if len(rows) != 1 || rows[0].Cluster.ID != "c1" {
		t.Fatalf("expected previous feed to survive a rejected replace, got %+v", rows)
	}
}

func TestRecordInteractionCountsViews(t *testing.T) {
	t.Parallel()

	s := New()
	seedCluster(t, s, "c1", "a1")
	ctx := context.Background()
	for _, kind := range []news.InteractionType{news.InteractionView, news.InteractionClick, news.InteractionView} {
		if err := s.RecordInteraction(ctx, news.Interaction{UserID: "u1", ClusterID: "c1", Type: kind, ReadAt: testNow}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	profile, err := s.UserProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.ContentPreferences["politics"] != 2 {
		t.Fatalf("expected two politics views, got %v", profile.ContentPreferences)
	}
	history, _ := s.RecentInteractions(ctx, "u1", testNow.Add(-time.Hour), 10)
	if len(history) != 3 || history[0].Category != "politics" {
		t.Fatalf("unexpected history: %+v", history)
	}

	if err := s.RecordInteraction(ctx, news.Interaction{UserID: "u1", ClusterID: "missing"}); !errors.Is(err, news.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSweepHelpersRespectLimit(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for _, id := range []string{"c1", "c2", "c3"} {
		s.PutCluster(news.StoryCluster{ID: id, Status: news.ClusterActive, CreatedAt: testNow, ExpiresAt: testNow.Add(-time.Minute)})
	}
	n, err := s.MarkExpiredClustersStale(ctx, testNow, 2)
	if err != nil || n != 2 {
		t.Fatalf("first batch: n=%d err=%v", n, err)
	}
	n, _ = s.MarkExpiredClustersStale(ctx, testNow, 2)
	if n != 1 {
		t.Fatalf("second batch: expected 1, got %d", n)
	}
	n, _ = s.MarkExpiredClustersStale(ctx, testNow, 2)
	if n != 0 {
		t.Fatalf("third batch: expected 0, got %d", n)
	}

	n, _ = s.ArchiveClustersCreatedBefore(ctx, testNow.Add(time.Second), 0)
	if n != 3 {
		t.Fatalf("expected 3 archived clusters, got %d", n)
	}
	for _, cluster := range s.Clusters() {
		if cluster.Status != news.ClusterArchived {
			t.Fatalf("cluster %s: expected archived, got %s", cluster.ID, cluster.Status)
		}
	}
}

func TestApplySourceTrust(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	created, err := s.ApplySourceTrust(ctx, news.SourceTrust{Domain: "NDTV.com", Name: "NDTV", TrustScore: 0.8, TrustLevel: news.TrustHigh, IsActive: true})
	if err != nil || !created {
		t.Fatalf("apply: created=%v err=%v", created, err)
	}
	created, err = s.ApplySourceTrust(ctx, news.SourceTrust{Domain: "ndtv.com", TrustScore: 0.95, TrustLevel: news.TrustVerified, IsActive: true})
	if err != nil || created {
		t.Fatalf("reapply: created=%v err=%v", created, err)
	}
	source, ok := s.Source("ndtv.com")
	if !ok || source.Name != "NDTV" || source.TrustScore != 0.95 || source.TrustLevel != news.TrustVerified {
		t.Fatalf("unexpected source: %+v", source)
	}
}

func TestUpdateArticleFeaturesFeedsCandidates(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seedCluster(t, s, "c1", "a1")

	embedding := make([]float64, news.EmbeddingDimensions)
	embedding[0] = 1
	if err := s.UpdateArticleFeatures(ctx, "a1", embedding, []string{"tax"}, []string{"Delhi"}); err != nil {
		t.Fatalf("update features: %v", err)
	}

	candidates, err := s.CandidateClusters(ctx, testNow.Add(-time.Hour))
	if err != nil || len(candidates) != 1 {
		t.Fatalf("candidates: %v %v", candidates, err)
	}
	if len(candidates[0].Embedding) != news.EmbeddingDimensions || candidates[0].Embedding[0] != 1 {
		t.Fatalf("expected updated representative embedding")
	}
	members, err := s.ClusterMembers(ctx, "c1")
	if err != nil || len(members) != 1 || len(members[0].Locations) != 1 || members[0].Locations[0] != "Delhi" {
		t.Fatalf("expected updated locations on members: %+v %v", members, err)
	}

	if err := s.UpdateArticleFeatures(ctx, "missing", embedding, nil, nil); !errors.Is(err, news.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteExpiredFeedEntriesHonorsLimitAcrossUsers(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	expired := testNow.Add(-time.Minute)
	rows := func(userID string, n int) []news.FeedEntry {
		out := make([]news.FeedEntry, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, news.FeedEntry{UserID: userID, ClusterID: fmt.Sprintf("c%d", i), RankPosition: i, ExpiresAt: expired})
		}
		return out
	}
	s.PutFeedEntries("u-a", rows("u-a", 3))
	s.PutFeedEntries("u-b", rows("u-b", 2))
	s.PutFeedEntries("u-c", []news.FeedEntry{{UserID: "u-c", ClusterID: "c1", RankPosition: 1, ExpiresAt: testNow.Add(time.Hour)}})

	for i, want := range []int64{4, 1, 0} {
		deleted, err := s.DeleteExpiredFeedEntries(ctx, testNow, 4)
		if err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
		if deleted != want {
			t.Fatalf("pass %d: expected %d deleted, got %d", i, want, deleted)
		}
	}
	if remaining := len(s.feeds["u-c"]); remaining != 1 {
		t.Fatalf("unexpired feed must stay, got %d rows", remaining)
	}
}
