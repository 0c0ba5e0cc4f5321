package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/clustering"
	"horse.fit/newsfeed/internal/feed"
	"horse.fit/newsfeed/internal/globaltime"
	"horse.fit/newsfeed/internal/lock"
	"horse.fit/newsfeed/internal/memstore"
	"horse.fit/newsfeed/internal/news"
	"horse.fit/newsfeed/internal/pipeline"
	"horse.fit/newsfeed/internal/reaper"
	"horse.fit/newsfeed/internal/scoring"
	"horse.fit/newsfeed/internal/tracking"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

const taxBatch = `[
	{"title":"Government announces new tax policy for 2026","description":"Finance ministry in Delhi publishes the draft tax policy","url":"https://www.ndtv.com/india/tax-policy","source_name":"NDTV","category":"politics"},
	{"title":"","url":"https://example.com/empty-title"},
	{"title":"New tax policy announced by government","description":"Delhi finance ministry releases tax policy draft","url":"https://www.thehindu.com/news/tax-policy","source_name":"The Hindu","category":"politics"}
]`

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
}

type fakeRanker struct {
	err error
}

func (f fakeRanker) GetFeed(context.Context, string, *feed.LocationHint) (feed.Result, error) {
	return feed.Result{}, f.err
}

func newTestDeps(store *memstore.Store) Deps {
	clock := globaltime.Fixed(testNow)
	logger := zerolog.Nop()
	assigner := clustering.NewAssigner(store, lock.NewLocal(), clock, logger, clustering.Options{})
	scorer := scoring.NewScorer(store, clock, logger, scoring.Options{})
	return Deps{
		Ingest:   pipeline.NewService(store, assigner, scorer, clock, logger, pipeline.Options{}),
		Feed:     feed.NewRanker(store, clock, logger, feed.Options{}),
		Tracking: tracking.NewService(store, clock, logger, tracking.Options{}),
		Clusters: store,
		Reaper:   reaper.New(store, clock, logger, reaper.Options{}),
	}
}

func newTestHandler(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	handler, err := NewServer(deps, zerolog.Nop(), Options{}).Handler()
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return handler
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %s %s: %v (body=%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

func ingestTaxBatch(t *testing.T, handler http.Handler) ingestView {
	t.Helper()
	rec, env := doRequest(t, handler, http.MethodPost, "/api/v1/articles", taxBatch)
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("unexpected ingest response: %d %s", rec.Code, rec.Body.String())
	}
	var view ingestView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode ingest view: %v", err)
	}
	return view
}

func firstClusterID(t *testing.T, handler http.Handler) string {
	t.Helper()
	_, env := doRequest(t, handler, http.MethodGet, "/api/v1/clusters", "")
	var list struct {
		Items []clusterView `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode cluster list: %v", err)
	}
	if len(list.Items) == 0 {
		t.Fatalf("expected at least one cluster")
	}
	return list.Items[0].ClusterID
}

func TestHandlerRequiresEveryDependency(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(memstore.New())
	deps.Reaper = nil
	if _, err := NewServer(deps, zerolog.Nop(), Options{}).Handler(); err == nil {
		t.Fatalf("expected missing reaper to be rejected")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, newTestDeps(memstore.New()))
	rec, env := doRequest(t, handler, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestIngestCountsSchemaRejections(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	handler := newTestHandler(t, newTestDeps(store))

	view := ingestTaxBatch(t, handler)
	if view.Received != 3 || view.Processed != 2 || view.Inserted != 2 || view.Rejected != 1 {
		t.Fatalf("unexpected ingest counts: %+v", view)
	}
	if len(view.Errors) != 1 || view.Errors[0].Index != 1 {
		t.Fatalf("expected item 1 to be reported, got %+v", view.Errors)
	}
	if view.NewClusters+view.Joined+view.Unassignable != 2 {
		t.Fatalf("expected both stored articles to be clustered, got %+v", view)
	}
	if len(store.Clusters()) == 0 {
		t.Fatalf("expected clusters in store")
	}
}

func TestIngestRejectsPayloadWithoutValidArticles(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, newTestDeps(memstore.New()))

	rec, env := doRequest(t, handler, http.MethodPost, "/api/v1/articles", `{"title":"No url"}`)
	if rec.Code != http.StatusBadRequest || env.Status != "fail" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}

	rec, env = doRequest(t, handler, http.MethodPost, "/api/v1/articles", `{"title":`)
	if rec.Code != http.StatusBadRequest || env.Status != "fail" {
		t.Fatalf("unexpected response for malformed JSON: %d %s", rec.Code, rec.Body.String())
	}
}

func TestClustersValidatesQuery(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, newTestDeps(memstore.New()))
	for _, path := range []string{"/api/v1/clusters?status=hot", "/api/v1/clusters?limit=0", "/api/v1/clusters?limit=abc"} {
		rec, env := doRequest(t, handler, http.MethodGet, path, "")
		if rec.Code != http.StatusBadRequest || env.Status != "fail" {
			t.Fatalf("%s: unexpected response %d %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestClusterDetail(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, newTestDeps(memstore.New()))

	rec, _ := doRequest(t, handler, http.MethodGet, "/api/v1/clusters/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown cluster, got %d", rec.Code)
	}

	ingestTaxBatch(t, handler)
	clusterID := firstClusterID(t, handler)

	rec, env := doRequest(t, handler, http.MethodGet, "/api/v1/clusters/"+clusterID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected detail response: %d %s", rec.Code, rec.Body.String())
	}
	var detail clusterDetailView
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Cluster.ClusterID != clusterID || len(detail.Members) != detail.Cluster.ArticleCount {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	representatives := 0
	for _, member := range detail.Members {
		if member.IsRepresentative {
			representatives++
		}
	}
	if representatives != 1 {
		t.Fatalf("expected exactly one representative, got %d", representatives)
	}
}

func TestFeedIsCachedAfterFirstRequest(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, newTestDeps(memstore.New()))
	ingestTaxBatch(t, handler)

	for i, want := range []feed.Source{feed.SourceFresh, feed.SourceCache} {
		rec, env := doRequest(t, handler, http.MethodGet, "/api/v1/users/u-1/feed?country=India", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: unexpected status %d %s", i, rec.Code, rec.Body.String())
		}
		var view feedView
		if err := json.Unmarshal(env.Data, &view); err != nil {
			t.Fatalf("decode feed: %v", err)
		}
		if view.Source != want || view.Status != feed.StatusReady || len(view.Items) == 0 {
			t.Fatalf("request %d: unexpected feed %+v", i, view)
		}
		if view.Items[0].RankPosition != 1 {
			t.Fatalf("expected rank 1 first, got %d", view.Items[0].RankPosition)
		}
	}
}

func TestFeedEmptyWithoutClusters(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, newTestDeps(memstore.New()))
	_, env := doRequest(t, handler, http.MethodGet, "/api/v1/users/u-1/feed", "")
	var view feedView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if view.Status != feed.StatusEmpty || len(view.Items) != 0 {
		t.Fatalf("expected empty feed, got %+v", view)
	}
}

func TestFeedRetryableFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(memstore.New())
	deps.Feed = fakeRanker{err: news.Retryable("load top clusters", errors.New("connection refused"))}
	handler := newTestHandler(t, deps)

	rec, env := doRequest(t, handler, http.MethodGet, "/api/v1/users/u-1/feed", "")
	if rec.Code != http.StatusServiceUnavailable || env.Status != "error" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}

	deps.Feed = fakeRanker{err: errors.New("boom")}
	handler = newTestHandler(t, deps)
	rec, _ = doRequest(t, handler, http.MethodGet, "/api/v1/users/u-1/feed", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for permanent failure, got %d", rec.Code)
	}
}

func TestFeedAtom(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, newTestDeps(memstore.New()))
	ingestTaxBatch(t, handler)

	rec, _ := doRequest(t, handler, http.MethodGet, "/api/v1/users/u-1/feed.atom", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != atomContentType {
		t.Fatalf("unexpected content type: %q", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<feed") || !strings.Contains(body, "tax policy") {
		t.Fatalf("unexpected atom body: %s", body)
	}
}

func TestTrackInteraction(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	handler := newTestHandler(t, newTestDeps(store))
	ingestTaxBatch(t, handler)
	clusterID := firstClusterID(t, handler)

	rec, _ := doRequest(t, handler, http.MethodPost, "/api/v1/users/u-1/interactions", `{"cluster_id":"missing","interaction_type":"view"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown cluster, got %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = doRequest(t, handler, http.MethodPost, "/api/v1/users/u-1/interactions", `{"cluster_id":"`+clusterID+`","interaction_type":"bookmark"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rec.Code)
	}

	rec, _ = doRequest(t, handler, http.MethodPost, "/api/v1/users/u-1/interactions", `{"cluster_id":"`+clusterID+`","interaction_type":"view","extra":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}

	rec, env := doRequest(t, handler, http.MethodPost, "/api/v1/users/u-1/interactions", `{"cluster_id":"`+clusterID+`","interaction_type":"VIEW","read_duration_seconds":42}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	var view interactionView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode interaction: %v", err)
	}
	if view.InteractionID == "" || view.Type != "view" || !view.ReadAt.Equal(testNow) {
		t.Fatalf("unexpected interaction: %+v", view)
	}

	history, err := store.RecentInteractions(context.Background(), "u-1", testNow.Add(-time.Hour), 10)
	if err != nil || len(history) != 1 || history[0].Category != "politics" {
		t.Fatalf("unexpected history: %+v err=%v", history, err)
	}
}

func TestProfileAndTopic(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	handler := newTestHandler(t, newTestDeps(store))

	rec, env := doRequest(t, handler, http.MethodPut, "/api/v1/users/u-2/profile", `{"location_country":" India ","location_city":"Delhi","preferred_categories":["Politics","politics","sports"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected profile status: %d %s", rec.Code, rec.Body.String())
	}
	var profile profileView
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.LocationCountry != "India" || profile.SubscriptionStatus != "free" || len(profile.PreferredCategories) != 2 {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	rec, _ = doRequest(t, handler, http.MethodPut, "/api/v1/users/u-2/topics", `{"keyword":"Tax","preference_score":1.5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range score, got %d", rec.Code)
	}
	rec, _ = doRequest(t, handler, http.MethodPut, "/api/v1/users/u-2/topics", `{"keyword":"Tax"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing score, got %d", rec.Code)
	}
	rec, _ = doRequest(t, handler, http.MethodPut, "/api/v1/users/u-2/topics", `{"keyword":"Tax","preference_score":0.9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected topic status: %d %s", rec.Code, rec.Body.String())
	}

	topics, err := store.TopicPreferences(context.Background(), "u-2")
	if err != nil || len(topics) != 1 || topics[0].Keyword != "tax" {
		t.Fatalf("unexpected topics: %+v err=%v", topics, err)
	}
}

func TestSweepReportsCounts(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	store.PutCluster(news.StoryCluster{
		ID:        "expired",
		Title:     "Old story",
		Status:    news.ClusterActive,
		ExpiresAt: testNow.Add(-time.Hour),
		CreatedAt: testNow.Add(-2 * time.Hour),
		UpdatedAt: testNow.Add(-2 * time.Hour),
	})
	handler := newTestHandler(t, newTestDeps(store))

	rec, env := doRequest(t, handler, http.MethodPost, "/api/v1/sweep", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	var view sweepView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode sweep: %v", err)
	}
	if view.Counts.StaleClusters != 1 || view.Total != 1 {
		t.Fatalf("unexpected sweep counts: %+v", view)
	}
}
