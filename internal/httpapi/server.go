package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/feed"
	"horse.fit/newsfeed/internal/news"
	"horse.fit/newsfeed/internal/pipeline"
	"horse.fit/newsfeed/internal/reaper"
	"horse.fit/newsfeed/internal/tracking"
)

const (
	defaultClusterLimit = 50
	maxClusterLimit     = 200
	maxBodyBytes        = "4M"
)

type Ingester interface {
	IngestBatch(ctx context.Context, raws []news.RawArticle) (pipeline.BatchResult, error)
}

type FeedRanker interface {
	GetFeed(ctx context.Context, userID string, hint *feed.LocationHint) (feed.Result, error)
}

type Tracker interface {
	Track(ctx context.Context, in tracking.TrackInput) (news.Interaction, error)
	UpdateProfile(ctx context.Context, profile news.UserProfile) (news.UserProfile, error)
	SetTopic(ctx context.Context, userID, keyword string, score float64) (news.TopicPreference, error)
}

type ClusterReader interface {
	Ping(ctx context.Context) error
	ListClusters(ctx context.Context, filter news.ClusterFilter) ([]news.StoryCluster, error)
	ClusterDetail(ctx context.Context, clusterID string) (news.ClusterDetail, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (reaper.Counts, error)
}

// Deps are the services behind the API. Every field is required.
type Deps struct {
	Ingest   Ingester
	Feed     FeedRanker
	Tracking Tracker
	Clusters ClusterReader
	Reaper   Sweeper
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	deps   Deps
	logger zerolog.Logger
	opts   Options
}

func NewServer(deps Deps, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		deps:   deps,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (d Deps) validate() error {
	switch {
	case d.Ingest == nil:
		return fmt.Errorf("ingest service is required")
	case d.Feed == nil:
		return fmt.Errorf("feed ranker is required")
	case d.Tracking == nil:
		return fmt.Errorf("tracking service is required")
	case d.Clusters == nil:
		return fmt.Errorf("cluster reader is required")
	case d.Reaper == nil:
		return fmt.Errorf("reaper is required")
	}
	return nil
}

// Handler builds the echo router without binding a listener.
func (s *Server) Handler() (http.Handler, error) {
	if s == nil {
		return nil, fmt.Errorf("server is not initialized")
	}
	if err := s.deps.validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.POST("/articles", s.handleIngest)
	api.GET("/clusters", s.handleClusters)
	api.GET("/clusters/:cluster_id", s.handleClusterDetail)
	api.GET("/users/:user_id/feed", s.handleFeed)
	api.GET("/users/:user_id/feed.atom", s.handleFeedAtom)
	api.POST("/users/:user_id/interactions", s.handleTrack)
	api.PUT("/users/:user_id/profile", s.handleProfile)
	api.PUT("/users/:user_id/topics", s.handleTopic)
	api.POST("/sweep", s.handleSweep)

	return e, nil
}

func (s *Server) Start(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	e := handler.(*echo.Echo)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("newsfeed api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("newsfeed api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		if status >= 500 {
			_ = internalError(c, "Internal server error")
			return
		}
		_ = fail(c, status, message, nil)
		return
	}

	_ = c.String(status, message)
}

// storeFailure answers 503 for retryable service errors and 500 otherwise.
func (s *Server) storeFailure(c echo.Context, err error, message string) error {
	if news.IsRetryable(err) {
		return unavailable(c, message)
	}
	return internalError(c, message)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
