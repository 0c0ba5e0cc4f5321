package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/memstore"
	"horse.fit/newsfeed/internal/news"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type errStore struct{ err error }

func (e errStore) RecordInteraction(context.Context, news.Interaction) error { return e.err }
func (e errStore) UpsertUserProfile(context.Context, news.UserProfile) error { return e.err }
func (e errStore) SetTopicPreference(context.Context, news.TopicPreference) error { return e.err }

func newSeededStore(t *testing.T) *memstore.Store {
	t.Helper()

	store := memstore.New()
	store.PutCluster(news.StoryCluster{ID: "c1", Category: "politics", Status: news.ClusterActive, CreatedAt: testNow})
	return store
}

func TestTrackRecordsViewAndBumpsCategory(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	svc := NewService(store, globaltime.Fixed(testNow), zerolog.Nop(), Options{})

	interaction, err := svc.Track(context.Background(), TrackInput{UserID: "u1", ClusterID: "c1", Type: "VIEW", ReadDurationSeconds: 45})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if interaction.ID == "" || interaction.Type != news.InteractionView || !interaction.ReadAt.Equal(testNow) {
		t.Fatalf("unexpected interaction: %+v", interaction)
	}

	profile, err := store.UserProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.ContentPreferences["politics"] != 1 {
		t.Fatalf("expected politics counter 1, got %v", profile.ContentPreferences)
	}
}

func TestTrackValidatesInput(t *testing.T) {
	t.Parallel()

	svc := NewService(newSeededStore(t), globaltime.Fixed(testNow), zerolog.Nop(), Options{})
	cases := []TrackInput{
		{ClusterID: "c1", Type: "view"},
		{UserID: "u1", Type: "view"},
		{UserID: "u1", ClusterID: "c1", Type: "bookmark"},
		{UserID: "u1", ClusterID: "c1", Type: "view", ReadDurationSeconds: -1},
	}
	for _, in := range cases {
		if _, err := svc.Track(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", in, err)
		}
	}
}

func TestTrackUnknownClusterIsNotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(newSeededStore(t), globaltime.Fixed(testNow), zerolog.Nop(), Options{})
	_, err := svc.Track(context.Background(), TrackInput{UserID: "u1", ClusterID: "missing", Type: "click"})
	if !errors.Is(err, news.ErrNotFound) || news.IsRetryable(err) {
		t.Fatalf("expected plain not found, got %v", err)
	}
}

func TestTrackStoreFailureIsRetryable(t *testing.T) {
	t.Parallel()

	svc := NewService(errStore{err: errors.New("connection refused")}, globaltime.Fixed(testNow), zerolog.Nop(), Options{})
	_, err := svc.Track(context.Background(), TrackInput{UserID: "u1", ClusterID: "c1", Type: "share"})
	if !news.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestUpdateProfileNormalizesAndKeepsCounters(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	svc := NewService(store, globaltime.Fixed(testNow), zerolog.Nop(), Options{})
	ctx := context.Background()
	if _, err := svc.Track(ctx, TrackInput{UserID: "u1", ClusterID: "c1", Type: "view"}); err != nil {
		t.Fatalf("track: %v", err)
	}

	profile, err := svc.UpdateProfile(ctx, news.UserProfile{
		ID:                  " u1 ",
		LocationCountry:     " India ",
		LocationCity:        "Mumbai",
		PreferredCategories: []string{"Politics", "politics", " ", "Business"},
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if profile.SubscriptionStatus != "free" || len(profile.PreferredCategories) != 2 {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	stored, err := store.UserProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("stored profile: %v", err)
	}
	if stored.LocationCountry != "India" || stored.ContentPreferences["politics"] != 1 {
		t.Fatalf("unexpected stored profile: %+v", stored)
	}

	if _, err := svc.UpdateProfile(ctx, news.UserProfile{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty id, got %v", err)
	}
}

func TestSetTopic(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	svc := NewService(store, globaltime.Fixed(testNow), zerolog.Nop(), Options{})
	ctx := context.Background()

	pref, err := svc.SetTopic(ctx, "u1", " Budget ", 0.9)
	if err != nil {
		t.Fatalf("set topic: %v", err)
	}
	if pref.Keyword != "budget" {
		t.Fatalf("expected lowercased keyword, got %q", pref.Keyword)
	}
	prefs, _ := store.TopicPreferences(ctx, "u1")
	if len(prefs) != 1 || prefs[0].PreferenceScore != 0.9 {
		t.Fatalf("unexpected prefs: %+v", prefs)
	}

	for _, score := range []float64{-0.1, 1.1} {
		if _, err := svc.SetTopic(ctx, "u1", "budget", score); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input for score %f, got %v", score, err)
		}
	}
}
