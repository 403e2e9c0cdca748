package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/api"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/api/apitest"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/auth"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/config"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/db"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/metrics"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/server/ratelimit"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

func seed() []types.DomainRecord {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []types.DomainRecord{
		{ID: "d1", ProjectID: "p1", Domain: "alpha.com", QualificationStatus: types.StatusPending, CreatedAt: now, UpdatedAt: now},
		{ID: "d2", ProjectID: "p1", Domain: "beta.com", QualificationStatus: types.StatusHighQuality, CreatedAt: now.Add(time.Hour), UpdatedAt: now},
		{ID: "d3", ProjectID: "p1", Domain: "gamma.com", QualificationStatus: types.StatusDisqualified, Notes: `He said "ok"`, CreatedAt: now.Add(2 * time.Hour), UpdatedAt: now},
	}
}

type fixture struct {
	backend *apitest.Backend
	server  *Server
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	backend := apitest.New(seed()...)
	t.Cleanup(backend.Close)

	opts := api.DefaultOptions(backend.URL())
	opts.RequestsPerSecond = 0
	client, err := api.NewClient(opts)
	require.NoError(t, err)

	cfg := Config{
		DefaultUserID: "u1",
		RateLimit:     &ratelimit.Config{Enabled: false},
		Sessions: func(projectID, clientID, userID string, onProgress bulkjob.ProgressCallback) (*workflow.Controller, error) {
			return workflow.New(client, workflow.Options{
				ProjectID:    projectID,
				ClientID:     clientID,
				UserID:       userID,
				PollInterval: 5 * time.Millisecond,
				OnProgress:   onProgress,
			})
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return &fixture{backend: backend, server: s}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Metrics = metrics.New() })

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["journal"])

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodOptions, "/projects/p1/domains", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestListDomains(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/projects/p1/domains", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[workflow.Page](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Domains, 3)

	rec = f.do(t, http.MethodGet, "/projects/p1/domains?status=high_quality,disqualified&sort=qualificationStatus&order=asc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[workflow.Page](t, rec)
	require.Len(t, page.Domains, 2)
	assert.Equal(t, "d2", page.Domains[0].ID)
	assert.Equal(t, "d3", page.Domains[1].ID)

	rec = f.do(t, http.MethodGet, "/projects/p1/domains", nil)
	assert.Len(t, decodeBody[workflow.Page](t, rec).Domains, 2, "a bare GET keeps the filters")

	assert.Equal(t, 1, f.backend.Count(apitest.RouteList), "the session loads once")
}

func TestListDomains_BadQuery(t *testing.T) {
	f := newFixture(t, nil)
	for _, q := range []string{"status=great", "workflow=sometimes", "sort=size", "order=up"} {
		rec := f.do(t, http.MethodGet, "/projects/p1/domains?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestSessionLoadFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.Fail(apitest.RouteList, http.StatusInternalServerError, "database unavailable")

	rec := f.do(t, http.MethodGet, "/projects/p1/domains", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "database unavailable", decodeBody[map[string]string](t, rec)["error"])
	assert.Empty(t, f.server.sessions.projects())
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPut, "/projects/p1/domains/d1/status", StatusRequest{Status: "good-quality", Notes: "fine"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[types.DomainRecord](t, rec)
	assert.Equal(t, types.StatusGoodQuality, got.QualificationStatus)

	updates := f.backend.Requests()
	last := updates[len(updates)-1]
	assert.Equal(t, apitest.RouteUpdate, last.Route)
	assert.Contains(t, string(last.Body), `"userId":"u1"`)

	rec = f.do(t, http.MethodPut, "/projects/p1/domains/d1/status", StatusRequest{Status: "great"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.backend.Fail(apitest.RouteUpdate, http.StatusInternalServerError, "write failed")
	rec = f.do(t, http.MethodPut, "/projects/p1/domains/d1/status", StatusRequest{Status: "disqualified"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSelectionAndBulk(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/projects/p1/bulk/status", StatusRequest{Status: "disqualified"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "nothing selected")

	rec = f.do(t, http.MethodPost, "/projects/p1/selection", SelectRequest{IDs: []string{"d1", "d2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	sel := decodeBody[SelectionResponse](t, rec)
	assert.Equal(t, []string{"d1", "d2"}, sel.IDs)

	rec = f.do(t, http.MethodPost, "/projects/p1/selection", SelectRequest{IDs: []string{"d2"}, Mode: "toggle"})
	assert.Equal(t, []string{"d1"}, decodeBody[SelectionResponse](t, rec).IDs)

	rec = f.do(t, http.MethodPost, "/projects/p1/selection", SelectRequest{Mode: "everything"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/projects/p1/bulk/status", StatusRequest{Status: "marginal_quality"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[CountResponse](t, rec).Count)

	rec = f.do(t, http.MethodGet, "/projects/p1/selection", nil)
	assert.Empty(t, decodeBody[SelectionResponse](t, rec).IDs)

	f.do(t, http.MethodPost, "/projects/p1/selection", SelectRequest{Mode: "visible"})
	rec = f.do(t, http.MethodDelete, "/projects/p1/selection", nil)
	assert.Empty(t, decodeBody[SelectionResponse](t, rec).IDs)
}

func TestSmartSelect(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.SetSmartFilters(types.SmartFilters{AllPendingAI: []string{"d1", "d3"}})

	rec := f.do(t, http.MethodPost, "/projects/p1/selection/smart", SmartSelectRequest{Preset: "pending_ai"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"d1", "d3"}, decodeBody[SelectionResponse](t, rec).IDs)

	rec = f.do(t, http.MethodPost, "/projects/p1/selection/smart", SmartSelectRequest{Preset: "all"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisJob(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.QueueJob(
		types.BulkJob{Status: types.JobStatusProcessing, ProcessedDomains: 1, TotalDomains: 2},
		types.BulkJob{Status: types.JobStatusCompleted, ProcessedDomains: 2, TotalDomains: 2},
	)

	rec := f.do(t, http.MethodPost, "/projects/p1/jobs/analysis", AnalysisRequest{DomainIDs: []string{"d1", "d2"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "keywords are required")

	rec = f.do(t, http.MethodPost, "/projects/p1/jobs/analysis", AnalysisRequest{DomainIDs: []string{"d1", "d2"}, Keywords: []string{"guest post"}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/projects/p1/jobs/current", nil)
		return decodeBody[bulkjob.Snapshot](t, rec).State == bulkjob.StateCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAnalysisJob_SecondStartConflicts(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.QueueJob(types.BulkJob{Status: types.JobStatusProcessing, TotalDomains: 1})

	rec := f.do(t, http.MethodPost, "/projects/p1/jobs/analysis", AnalysisRequest{DomainIDs: []string{"d1"}, Keywords: []string{"seo"}})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/projects/p1/jobs/qualification", QualificationRequest{DomainIDs: []string{"d2"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodDelete, "/projects/p1/jobs/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bulkjob.StateFailed, decodeBody[bulkjob.Snapshot](t, rec).State)
}

func TestAddDomainsAndResolve(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.SetDuplicates(types.CheckDuplicatesResponse{
		AlreadyInProject: []string{"alpha.com"},
		Duplicates:       []types.DuplicateDomain{{Domain: "b.com", ExistingDomainID: "x1", ExistingProjectID: "p9"}},
	})

	rec := f.do(t, http.MethodPost, "/projects/p1/domains", workflow.AddRequest{Domains: []string{"alpha.com", "b.com", "c.com"}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/projects/p1/duplicates", nil)
	pending := decodeBody[PendingResponse](t, rec)
	assert.Equal(t, "awaiting_resolution", pending.State)
	require.Len(t, pending.Duplicates, 1)

	rec = f.do(t, http.MethodPost, "/projects/p1/duplicates/resolve", ResolveRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "every duplicate needs a decision")

	rec = f.do(t, http.MethodPost, "/projects/p1/duplicates/resolve", ResolveRequest{
		Resolutions: []types.Resolution{{Domain: "b.com", Resolution: types.ResolutionKeepBoth}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/projects/p1/duplicates/resolve", ResolveRequest{
		Resolutions: []types.Resolution{{Domain: "b.com", Resolution: types.ResolutionKeepBoth}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code, "the pending payload is cleared")

	rec = f.do(t, http.MethodPost, "/projects/p1/duplicates/cancel", nil)
	assert.Equal(t, map[string]bool{"cancelled": false}, decodeBody[map[string]bool](t, rec))
}

func TestExport(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/projects/p1/selection", SelectRequest{IDs: []string{"d3"}})

	rec := f.do(t, http.MethodGet, "/projects/p1/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "bulk-analysis-p1-")
	assert.Contains(t, rec.Body.String(), `"He said ""ok"""`)

	rec = f.do(t, http.MethodGet, "/projects/p1/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestTriage(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/projects/p1/triage", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/projects/p1/triage", TriageRequest{IDs: []string{"d1", "d2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "d1", decodeBody[TriageResponse](t, rec).Current)

	rec = f.do(t, http.MethodPost, "/projects/p1/triage/next", nil)
	assert.Equal(t, 2, decodeBody[TriageResponse](t, rec).Position)

	rec = f.do(t, http.MethodPost, "/projects/p1/triage/status", StatusRequest{Status: "disqualified"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.StatusDisqualified, decodeBody[TriageResponse](t, rec).Record.QualificationStatus)

	rec = f.do(t, http.MethodPost, "/projects/p1/triage/sideways", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	lists := f.backend.Count(apitest.RouteList)
	rec = f.do(t, http.MethodDelete, "/projects/p1/triage", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, lists+1, f.backend.Count(apitest.RouteList), "closing triage reloads")
}

func TestCloseSession(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodDelete, "/projects/p1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.do(t, http.MethodGet, "/projects/p1/domains", nil)
	rec = f.do(t, http.MethodGet, "/projects", nil)
	assert.Equal(t, []string{"p1"}, decodeBody[map[string][]string](t, rec)["projects"])

	rec = f.do(t, http.MethodDelete, "/projects/p1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.server.sessions.projects())
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.server.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/projects/p1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitFor := func(match func(string) bool) string {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream ended early")
				if match(line) {
					return line
				}
			case <-timeout:
				t.Fatal("expected line never arrived")
			}
		}
	}

	first := waitFor(func(line string) bool { return strings.HasPrefix(line, "event:") })
	assert.Equal(t, "event: job", first)

	rec := f.do(t, http.MethodPut, "/projects/p1/domains/d1/status", StatusRequest{Status: "high_quality"})
	require.Equal(t, http.StatusOK, rec.Code)
	waitFor(func(line string) bool {
		return strings.HasPrefix(line, "data:") && strings.Contains(line, "Marked alpha.com as High Quality")
	})

	rec = f.do(t, http.MethodDelete, "/projects/p1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("closing the session did not end the stream")
		}
	}
}

// fakeHistory serves canned journal rows.
type fakeHistory struct {
	jobs    []db.Job
	filters db.JobFilters
}

func (h *fakeHistory) RecordStart(context.Context, string, string, string, int) error { return nil }
func (h *fakeHistory) RecordProgress(context.Context, string, int, int) error        { return nil }
func (h *fakeHistory) RecordFinish(context.Context, string, string, string) error    { return nil }

func (h *fakeHistory) ListJobs(_ context.Context, filters db.JobFilters) ([]db.Job, error) {
	h.filters = filters
	return h.jobs, nil
}

func (h *fakeHistory) GetJob(_ context.Context, jobID string) (*db.Job, error) {
	for i := range h.jobs {
		if h.jobs[i].JobID == jobID {
			return &h.jobs[i], nil
		}
	}
	return nil, db.ErrJobNotFound
}

func TestJobHistory(t *testing.T) {
	t.Run("without a journal", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(t, http.MethodGet, "/jobs/history", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("with a journal", func(t *testing.T) {
		history := &fakeHistory{jobs: []db.Job{{JobID: "job-1", ProjectID: "p1", Kind: "analysis", Status: db.JobStatusCompleted}}}
		f := newFixture(t, func(c *Config) { c.History = history })

		rec := f.do(t, http.MethodGet, "/jobs/history?project_id=p1&status=completed&limit=5", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, db.JobFilters{ProjectID: "p1", Status: "completed", Limit: 5}, history.filters)
		assert.Len(t, decodeBody[map[string][]db.Job](t, rec)["jobs"], 1)

		rec = f.do(t, http.MethodGet, "/jobs/history?limit=0", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.do(t, http.MethodGet, "/jobs/history/job-1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = f.do(t, http.MethodGet, "/jobs/history/job-2", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAuth(t *testing.T) {
	jwtService := auth.NewJWTService(&config.JWTConfig{
		Secret:          "test-secret-key-for-jwt-signing-minimum-32-bytes",
		ExpirationHours: 1,
		Issuer:          "bulk-analysis",
	})
	f := newFixture(t, func(c *Config) { c.JWT = jwtService })

	rec := f.do(t, http.MethodGet, "/projects/p1/domains", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	token, err := jwtService.GenerateToken("reviewer-7")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/projects/p1/domains/d1/status", strings.NewReader(`{"status":"high_quality"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	reqs := f.backend.Requests()
	assert.Contains(t, string(reqs[len(reqs)-1].Body), `"userId":"reviewer-7"`, "the token's user is recorded")
}

func TestAuth_EachCallerCreditedOnSharedSession(t *testing.T) {
	jwtService := auth.NewJWTService(&config.JWTConfig{
		Secret:          "test-secret-key-for-jwt-signing-minimum-32-bytes",
		ExpirationHours: 1,
		Issuer:          "bulk-analysis",
	})
	f := newFixture(t, func(c *Config) { c.JWT = jwtService })

	tests := []struct {
		user     string
		domainID string
	}{
		{user: "alice", domainID: "d1"},
		{user: "bob", domainID: "d2"},
		{user: "alice", domainID: "d3"},
	}
	for _, tt := range tests {
		token, err := jwtService.GenerateToken(tt.user)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPut, "/projects/p1/domains/"+tt.domainID+"/status", strings.NewReader(`{"status":"good_quality"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		reqs := f.backend.Requests()
		last := reqs[len(reqs)-1]
		assert.Equal(t, apitest.RouteUpdate, last.Route)
		assert.Equal(t, "/bulk-analysis/"+tt.domainID, last.Path)
		assert.Contains(t, string(last.Body), `"userId":"`+tt.user+`"`)
	}
	assert.Equal(t, []string{"p1"}, f.server.sessions.projects())
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.RateLimit = &ratelimit.Config{
			Enabled:       true,
			DefaultLimit:  100,
			DefaultWindow: time.Minute,
			EndpointConfigs: []ratelimit.EndpointConfig{
				{Pattern: "/projects/*/export.*", Method: "GET", Limit: 1, Window: time.Hour, Burst: 1},
			},
		}
	})

	rec := f.do(t, http.MethodGet, "/projects/p1/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = f.do(t, http.MethodGet, "/projects/p2/export.xlsx", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
