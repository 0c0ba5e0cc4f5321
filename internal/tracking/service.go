package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/news"
)

var ErrInvalidInput = errors.New("invalid input")

type Store interface {
	// RecordInteraction appends history and, for views, bumps the profile's
	// per-category counter in the same transaction.
	RecordInteraction(ctx context.Context, interaction news.Interaction) error
	UpsertUserProfile(ctx context.Context, profile news.UserProfile) error
	SetTopicPreference(ctx context.Context, pref news.TopicPreference) error
}

type Options struct {
	StoreTimeout time.Duration
}

type Service struct {
	store  Store
	clock  globaltime.Clock
	logger zerolog.Logger
	opts   Options
}

// TrackInput is one user interaction as reported by a client.
type TrackInput struct {
	UserID              string
	ClusterID           string
	ArticleID           string
	Type                string
	ReadDurationSeconds int
	ReadAt              time.Time
}

func NewService(store Store, clock globaltime.Clock, logger zerolog.Logger, opts Options) *Service {
	if clock == nil {
		clock = globaltime.System()
	}
	return &Service{store: store, clock: clock, logger: logger, opts: opts}
}

func (s *Service) Track(ctx context.Context, in TrackInput) (news.Interaction, error) {
	if s == nil || s.store == nil {
		return news.Interaction{}, fmt.Errorf("tracking service is not initialized")
	}
	userID := strings.TrimSpace(in.UserID)
	clusterID := strings.TrimSpace(in.ClusterID)
	if userID == "" || clusterID == "" {
		return news.Interaction{}, fmt.Errorf("%w: user_id and cluster_id are required", ErrInvalidInput)
	}
	kind, err := news.ParseInteractionType(in.Type)
	if err != nil {
		return news.Interaction{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.ReadDurationSeconds < 0 {
		return news.Interaction{}, fmt.Errorf("%w: read_duration_seconds must not be negative", ErrInvalidInput)
	}

	readAt := in.ReadAt.UTC()
	if in.ReadAt.IsZero() {
		readAt = globaltime.NowUTC(s.clock)
	}
	interaction := news.Interaction{
		ID:                  uuid.NewString(),
		UserID:              userID,
		ClusterID:           clusterID,
		ArticleID:           strings.TrimSpace(in.ArticleID),
		Type:                kind,
		ReadDurationSeconds: in.ReadDurationSeconds,
		ReadAt:              readAt,
	}

	storeCtx, cancel := news.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.store.RecordInteraction(storeCtx, interaction); err != nil {
		if errors.Is(err, news.ErrNotFound) {
			return news.Interaction{}, err
		}
		return news.Interaction{}, news.Retryable("record interaction", fmt.Errorf("user_id=%s cluster_id=%s: %w", userID, clusterID, err))
	}

	s.logger.Debug().
		Str("user_id", userID).
		Str("cluster_id", clusterID).
		Str("type", string(kind)).
		Msg("interaction recorded")
	return interaction, nil
}

// UpdateProfile writes location and category preferences. A nil
// ContentPreferences keeps the stored counters.
func (s *Service) UpdateProfile(ctx context.Context, profile news.UserProfile) (news.UserProfile, error) {
	if s == nil || s.store == nil {
		return news.UserProfile{}, fmt.Errorf("tracking service is not initialized")
	}
	profile.ID = strings.TrimSpace(profile.ID)
	if profile.ID == "" {
		return news.UserProfile{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	profile.LocationCountry = strings.TrimSpace(profile.LocationCountry)
	profile.LocationCity = strings.TrimSpace(profile.LocationCity)
	profile.LocationRegion = strings.TrimSpace(profile.LocationRegion)
	profile.SubscriptionStatus = strings.TrimSpace(profile.SubscriptionStatus)
	if profile.SubscriptionStatus == "" {
		profile.SubscriptionStatus = "free"
	}
	profile.PreferredCategories = normalizeCategories(profile.PreferredCategories)

	storeCtx, cancel := news.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.store.UpsertUserProfile(storeCtx, profile); err != nil {
		return news.UserProfile{}, news.Retryable("upsert user profile", fmt.Errorf("user_id=%s: %w", profile.ID, err))
	}
	return profile, nil
}

// SetTopic stores a keyword preference in [0,1]; 0.5 is neutral.
func (s *Service) SetTopic(ctx context.Context, userID, keyword string, score float64) (news.TopicPreference, error) {
	if s == nil || s.store == nil {
		return news.TopicPreference{}, fmt.Errorf("tracking service is not initialized")
	}
	pref := news.TopicPreference{
		UserID:          strings.TrimSpace(userID),
		Keyword:         strings.ToLower(strings.TrimSpace(keyword)),
		PreferenceScore: score,
	}
	if pref.UserID == "" || pref.Keyword == "" {
		return news.TopicPreference{}, fmt.Errorf("%w: user id and keyword are required", ErrInvalidInput)
	}
	if score < 0 || score > 1 {
		return news.TopicPreference{}, fmt.Errorf("%w: preference score %.3f outside [0,1]", ErrInvalidInput, score)
	}

	storeCtx, cancel := news.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.store.SetTopicPreference(storeCtx, pref); err != nil {
		return news.TopicPreference{}, news.Retryable("set topic preference", fmt.Errorf("user_id=%s keyword=%s: %w", pref.UserID, pref.Keyword, err))
	}
	return pref, nil
}

func normalizeCategories(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, value := range raw {
		category := strings.ToLower(strings.TrimSpace(value))
		if category == "" {
			continue
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, category)
	}
	return out
}
