package scoring

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/news"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	members []news.MemberSnapshot
	err     error
	updates []news.ScoreUpdate
}

func (f *fakeStore) ClusterMembers(context.Context, string) ([]news.MemberSnapshot, error) {
	return f.members, f.err
}

func (f *fakeStore) UpdateClusterScores(_ context.Context, update news.ScoreUpdate) error {
	f.updates = append(f.updates, update)
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func TestFreshnessBoundaries(t *testing.T) {
	t.Parallel()

	cases := map[float64]float64{0: 1, 24: 0.5, 48: 0, 72: 0, -3: 1}
	for hours, want := range cases {
		if got := Freshness(hours); math.Abs(got-want) > 1e-12 {
			t.Fatalf("freshness(%v): got %f want %f", hours, got, want)
		}
	}
}

func TestOriginalityBoundaries(t *testing.T) {
	t.Parallel()

	cases := map[float64]float64{0: 1, 6: 1, 15: 0.5, 24: 0, 30: 0}
	for hours, want := range cases {
		if got := Originality(hours); math.Abs(got-want) > 1e-12 {
			t.Fatalf("originality(%v): got %f want %f", hours, got, want)
		}
	}
}

func TestComputeScoresAndBounds(t *testing.T) {
	t.Parallel()

	members := []news.MemberSnapshot{
		{ArticleID: "a1", SourceID: "s1", PublishedAt: testNow.Add(-24 * time.Hour), QualityScore: floatPtr(0.8), TrustScore: floatPtr(0.9), Locations: []string{"India", "Delhi"}},
		{ArticleID: "a2", SourceID: "s2", PublishedAt: testNow, QualityScore: floatPtr(0.4), Locations: []string{"india"}},
		{ArticleID: "a3", SourceID: "s1", PublishedAt: testNow.Add(-12 * time.Hour)},
	}

	update, err := Compute(members, testNow)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	s := update.Scores
	if s.Freshness != 1 {
		t.Fatalf("unexpected freshness: %f", s.Freshness)
	}
	if math.Abs(s.Newsworthiness-0.4) > 1e-12 {
		t.Fatalf("unexpected newsworthiness: %f", s.Newsworthiness)
	}
	if math.Abs(s.Authority-(0.9+0.5+0.5)/3) > 1e-12 {
		t.Fatalf("unexpected authority: %f", s.Authority)
	}
	if s.Originality != 0 {
		t.Fatalf("unexpected originality: %f", s.Originality)
	}
	if math.Abs(s.Quality-(0.8+0.4+0.5)/3) > 1e-12 {
		t.Fatalf("unexpected quality: %f", s.Quality)
	}
	for name, v := range map[string]float64{"freshness": s.Freshness, "newsworthiness": s.Newsworthiness, "authority": s.Authority, "originality": s.Originality, "quality": s.Quality} {
		if v < 0 || v > 1 {
			t.Fatalf("%s out of bounds: %f", name, v)
		}
	}
	want := 100 * (0.25*s.Freshness + 0.20*s.Newsworthiness + 0.20*s.Authority + 0.15*s.Originality + 0.20*s.Quality)
	if math.Abs(s.Base-want) > 1e-9 {
		t.Fatalf("base score %f does not reproduce weighted sum %f", s.Base, want)
	}
	if update.ArticleCount != 3 {
		t.Fatalf("unexpected article count: %d", update.ArticleCount)
	}
	if !update.EarliestPublishedAt.Equal(testNow.Add(-24*time.Hour)) || !update.LatestPublishedAt.Equal(testNow) {
		t.Fatalf("unexpected publish range: %s..%s", update.EarliestPublishedAt, update.LatestPublishedAt)
	}
	if !reflect.DeepEqual(update.RegionTags, []string{"India", "Delhi"}) {
		t.Fatalf("unexpected region tags: %#v", update.RegionTags)
	}
	if !reflect.DeepEqual(update.TrendingRegions, []string{"India"}) {
		t.Fatalf("unexpected trending regions: %#v", update.TrendingRegions)
	}
}

func TestWeightsSumToOne(t *testing.T) {
	t.Parallel()

	sum := WeightFreshness + WeightNewsworthiness + WeightAuthority + WeightOriginality + WeightQuality
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("weights sum to %f", sum)
	}
	if got := BaseScore(news.Scores{Freshness: 1, Newsworthiness: 1, Authority: 1, Originality: 1, Quality: 1}); math.Abs(got-100) > 1e-9 {
		t.Fatalf("expected maximal base score 100, got %f", got)
	}
}

func TestComputeSaturatesNewsworthiness(t *testing.T) {
	t.Parallel()

	var members []news.MemberSnapshot
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"} {
		members = append(members, news.MemberSnapshot{ArticleID: "a-" + id, SourceID: id, PublishedAt: testNow})
	}
	update, err := Compute(members, testNow)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if update.Scores.Newsworthiness != 1 {
		t.Fatalf("expected saturated newsworthiness, got %f", update.Scores.Newsworthiness)
	}
}

func TestComputeRejectsEmptyMembership(t *testing.T) {
	t.Parallel()

	if _, err := Compute(nil, testNow); !errors.Is(err, ErrNoMembers) {
		t.Fatalf("expected ErrNoMembers, got %v", err)
	}
}

func TestRescoreIsIdempotent(t *testing.T) {
	t.Parallel()

	store := &fakeStore{members: []news.MemberSnapshot{
		{ArticleID: "a1", SourceID: "s1", PublishedAt: testNow.Add(-2 * time.Hour), QualityScore: floatPtr(0.7), TrustScore: floatPtr(0.6)},
		{ArticleID: "a2", SourceID: "s2", PublishedAt: testNow.Add(-time.Hour), QualityScore: floatPtr(0.5), TrustScore: floatPtr(0.8)},
	}}
	scorer := NewScorer(store, globaltime.Fixed(testNow), zerolog.Nop(), Options{})

	first, err := scorer.Rescore(context.Background(), "c1")
	if err != nil {
		t.Fatalf("first rescore: %v", err)
	}
	second, err := scorer.Rescore(context.Background(), "c1")
	if err != nil {
		t.Fatalf("second rescore: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rescore not idempotent:\n%+v\n%+v", first, second)
	}
	if len(store.updates) != 2 || store.updates[0].ClusterID != "c1" {
		t.Fatalf("unexpected persisted updates: %+v", store.updates)
	}
	if !first.ExpiresAt.Equal(testNow.Add(DefaultClusterTTL)) {
		t.Fatalf("expected expires_at reset to now+ttl, got %s", first.ExpiresAt)
	}
}

func TestRescoreStoreFailureIsRetryable(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("timeout")}
	scorer := NewScorer(store, globaltime.Fixed(testNow), zerolog.Nop(), Options{})
	if _, err := scorer.Rescore(context.Background(), "c1"); !news.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
