package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/newsfeed/internal/feed"
	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/news"
	"horse.fit/newsfeed/internal/tracking"
	payloadschema "horse.fit/newsfeed/schema"
)

type trackRequest struct {
	ClusterID           string     `json:"cluster_id"`
	ArticleID           string     `json:"article_id"`
	InteractionType     string     `json:"interaction_type"`
	ReadDurationSeconds int        `json:"read_duration_seconds"`
	ReadAt              *time.Time `json:"read_at"`
}

type profileRequest struct {
	LocationCountry     string   `json:"location_country"`
	LocationCity        string   `json:"location_city"`
	LocationRegion      string   `json:"location_region"`
	PreferredCategories []string `json:"preferred_categories"`
	SubscriptionStatus  string   `json:"subscription_status"`
}

type topicRequest struct {
	Keyword         string   `json:"keyword"`
	PreferenceScore *float64 `json:"preference_score"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.deps.Clusters.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check failed")
		return unavailable(c, "Store unavailable")
	}
	return success(c, map[string]any{
		"service": "newsfeed",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleIngest(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return failValidation(c, map[string]string{"body": "could not read request body"})
	}

	batch, err := payloadschema.ValidateBatch(body)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	itemErrors := make([]ingestItemError, 0, len(batch.Errors))
	for _, itemErr := range batch.Errors {
		itemErrors = append(itemErrors, ingestItemError{Index: itemErr.Index, Error: itemErr.Err.Error()})
	}
	received := len(batch.Articles) + len(batch.Errors)
	if len(batch.Articles) == 0 {
		return fail(c, http.StatusBadRequest, "No valid articles in payload", map[string]any{"errors": itemErrors})
	}

	result, err := s.deps.Ingest.IngestBatch(c.Request().Context(), batch.Articles)
	if err != nil {
		s.logger.Error().Err(err).Int("articles", len(batch.Articles)).Msg("ingest batch failed")
		return s.storeFailure(c, err, "Failed to ingest articles")
	}

	return success(c, buildIngestView(received, result, itemErrors))
}

func (s *Server) handleClusters(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultClusterLimit, 1, maxClusterLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	filter := news.ClusterFilter{
		Category: strings.ToLower(strings.TrimSpace(c.QueryParam("category"))),
		Query:    strings.TrimSpace(c.QueryParam("q")),
		Limit:    limit,
	}
	if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
		status, err := news.ParseClusterStatus(raw)
		if err != nil {
			return failValidation(c, map[string]string{"status": "must be active, trending, stale or archived"})
		}
		filter.Status = status
	}

	clusters, err := s.deps.Clusters.ListClusters(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("list clusters failed")
		return s.storeFailure(c, err, "Failed to load clusters")
	}

	items := make([]clusterView, 0, len(clusters))
	for _, cluster := range clusters {
		items = append(items, buildClusterView(cluster))
	}
	return success(c, map[string]any{
		"items": items,
		"filters": map[string]any{
			"status":   filter.Status,
			"category": filter.Category,
			"q":        filter.Query,
			"limit":    filter.Limit,
		},
	})
}

func (s *Server) handleClusterDetail(c echo.Context) error {
	clusterID := strings.TrimSpace(c.Param("cluster_id"))
	if clusterID == "" {
		return failValidation(c, map[string]string{"cluster_id": "is required"})
	}

	detail, err := s.deps.Clusters.ClusterDetail(c.Request().Context(), clusterID)
	if err != nil {
		if errors.Is(err, news.ErrNotFound) {
			return failNotFound(c, "Cluster not found")
		}
		s.logger.Error().Err(err).Str("cluster_id", clusterID).Msg("load cluster detail failed")
		return s.storeFailure(c, err, "Failed to load cluster")
	}
	return success(c, buildClusterDetailView(detail))
}

func (s *Server) handleFeed(c echo.Context) error {
	result, written, err := s.rankFeed(c)
	if written {
		return err
	}
	return success(c, buildFeedView(result))
}

// rankFeed reports written=true when it already sent an error response.
func (s *Server) rankFeed(c echo.Context) (feed.Result, bool, error) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		return feed.Result{}, true, failValidation(c, map[string]string{"user_id": "is required"})
	}

	var hint *feed.LocationHint
	country := strings.TrimSpace(c.QueryParam("country"))
	city := strings.TrimSpace(c.QueryParam("city"))
	if country != "" || city != "" {
		hint = &feed.LocationHint{Country: country, City: city}
	}

	result, err := s.deps.Feed.GetFeed(c.Request().Context(), userID, hint)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("rank feed failed")
		return feed.Result{}, true, s.storeFailure(c, err, "Failed to load feed")
	}
	return result, false, nil
}

func (s *Server) handleTrack(c echo.Context) error {
	userID := strings.TrimSpace(c.Param("user_id"))

	var req trackRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	in := tracking.TrackInput{
		UserID:              userID,
		ClusterID:           req.ClusterID,
		ArticleID:           req.ArticleID,
		Type:                req.InteractionType,
		ReadDurationSeconds: req.ReadDurationSeconds,
	}
	if req.ReadAt != nil {
		in.ReadAt = *req.ReadAt
	}

	interaction, err := s.deps.Tracking.Track(c.Request().Context(), in)
	switch {
	case errors.Is(err, tracking.ErrInvalidInput):
		return failValidation(c, map[string]string{"body": err.Error()})
	case errors.Is(err, news.ErrNotFound):
		return failNotFound(c, "Cluster not found")
	case err != nil:
		s.logger.Error().Err(err).Str("user_id", userID).Str("cluster_id", req.ClusterID).Msg("track interaction failed")
		return s.storeFailure(c, err, "Failed to record interaction")
	}
	return successWithStatus(c, http.StatusCreated, buildInteractionView(interaction))
}

func (s *Server) handleProfile(c echo.Context) error {
	userID := strings.TrimSpace(c.Param("user_id"))

	var req profileRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	profile, err := s.deps.Tracking.UpdateProfile(c.Request().Context(), news.UserProfile{
		ID:                  userID,
		LocationCountry:     req.LocationCountry,
		LocationCity:        req.LocationCity,
		LocationRegion:      req.LocationRegion,
		PreferredCategories: req.PreferredCategories,
		SubscriptionStatus:  req.SubscriptionStatus,
	})
	switch {
	case errors.Is(err, tracking.ErrInvalidInput):
		return failValidation(c, map[string]string{"body": err.Error()})
	case err != nil:
		s.logger.Error().Err(err).Str("user_id", userID).Msg("update profile failed")
		return s.storeFailure(c, err, "Failed to update profile")
	}
	return success(c, buildProfileView(profile))
}

func (s *Server) handleTopic(c echo.Context) error {
	userID := strings.TrimSpace(c.Param("user_id"))

	var req topicRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if req.PreferenceScore == nil {
		return failValidation(c, map[string]string{"preference_score": "is required"})
	}

	pref, err := s.deps.Tracking.SetTopic(c.Request().Context(), userID, req.Keyword, *req.PreferenceScore)
	switch {
	case errors.Is(err, tracking.ErrInvalidInput):
		return failValidation(c, map[string]string{"body": err.Error()})
	case err != nil:
		s.logger.Error().Err(err).Str("user_id", userID).Msg("set topic preference failed")
		return s.storeFailure(c, err, "Failed to store topic preference")
	}
	return success(c, map[string]any{
		"user_id":          pref.UserID,
		"keyword":          pref.Keyword,
		"preference_score": pref.PreferenceScore,
	})
}

func (s *Server) handleSweep(c echo.Context) error {
	counts, err := s.deps.Reaper.Sweep(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep failed")
		return s.storeFailure(c, err, "Sweep failed")
	}
	return success(c, sweepView{Counts: counts, Total: counts.Total()})
}

func decodeJSONBody(c echo.Context, dest any) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("request body contains trailing content")
	}
	return nil
}
