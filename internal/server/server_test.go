package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/execution"
	"github.com/mohammadumar-dev/resumeagent/internal/generation"
	"github.com/mohammadumar-dev/resumeagent/internal/notify"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
	"github.com/mohammadumar-dev/resumeagent/internal/quota"
	"github.com/mohammadumar-dev/resumeagent/internal/types"
)

const validJD = "Senior Go engineer building payment services on PostgreSQL."

type stubGenerations struct {
	submitErr  error
	submitted  []string
	result     *generation.Result
	generation *db.Generation
	usage      []db.AgentUsage
	resumes    []db.Resume
	listed     [2]int
}

func (s *stubGenerations) Submit(_ context.Context, _ uuid.UUID, jd string) (*generation.Result, error) {
	s.submitted = append(s.submitted, jd)
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return s.result, nil
}

func (s *stubGenerations) Get(_ context.Context, userID, id uuid.UUID) (*db.Generation, error) {
	if s.generation == nil || s.generation.ID != id || s.generation.UserID != userID {
		return nil, fmt.Errorf("generation %s: %w", id, db.ErrNotFound)
	}
	return s.generation, nil
}

func (s *stubGenerations) AgentUsage(context.Context, uuid.UUID) ([]db.AgentUsage, error) {
	return s.usage, nil
}

func (s *stubGenerations) GetResume(_ context.Context, userID, id uuid.UUID) (*db.Resume, error) {
	for i := range s.resumes {
		if s.resumes[i].ID == id && s.resumes[i].UserID == userID {
			return &s.resumes[i], nil
		}
	}
	return nil, fmt.Errorf("resume %s: %w", id, db.ErrNotFound)
}

func (s *stubGenerations) ListResumes(_ context.Context, userID uuid.UUID, limit, offset int) ([]db.Resume, int, error) {
	s.listed = [2]int{limit, offset}
	var mine []db.Resume
	for _, r := range s.resumes {
		if r.UserID == userID {
			mine = append(mine, r)
		}
	}
	if offset >= len(mine) {
		return nil, len(mine), nil
	}
	return mine[offset:min(offset+limit, len(mine))], len(mine), nil
}

type stubSubscriber struct {
	messages []notify.Message
}

func (s *stubSubscriber) Subscribe(ctx context.Context, _ uuid.UUID, onMsg func(notify.Message)) error {
	for _, m := range s.messages {
		onMsg(m)
	}
	<-ctx.Done()
	return nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	*Server
	gens   *stubGenerations
	userID uuid.UUID
	token  string
}

func newTestServer(t *testing.T, deps Deps) *testServer {
	t.Helper()
	jwtService := setupTestJWTService(t, 1)
	userID := uuid.New()
	token, err := jwtService.GenerateToken(userID)
	require.NoError(t, err)

	gens, _ := deps.Generations.(*stubGenerations)
	if gens == nil {
		gens = &stubGenerations{}
		deps.Generations = gens
	}
	deps.JWT = jwtService
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}
	return &testServer{Server: New(":0", deps), gens: gens, userID: userID, token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["error"]
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, Deps{Health: stubPinger{}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	down := newTestServer(t, Deps{Health: stubPinger{err: errors.New("connection refused")}})
	w = httptest.NewRecorder()
	down.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSubmitGeneration_Created(t *testing.T) {
	genID, resumeID := uuid.New(), uuid.New()
	ts := newTestServer(t, Deps{Generations: &stubGenerations{
		result: &generation.Result{Message: generation.SuccessMessage, GenerationID: genID, ResumeID: resumeID},
	}})

	w := ts.do(t, http.MethodPost, "/generations", types.SubmitGenerationRequest{JobDescription: "  " + validJD + "\n"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp types.SubmitGenerationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, generation.SuccessMessage, resp.Message)
	assert.Equal(t, genID, resp.GenerationID)
	assert.Equal(t, resumeID, resp.ResumeID)
	assert.Equal(t, []string{validJD}, ts.gens.submitted, "job description is trimmed before submission")
}

func TestSubmitGeneration_RequestErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{name: "not json", body: "{jobDescription", wantStatus: http.StatusBadRequest},
		{name: "missing field", body: map[string]string{}, wantStatus: http.StatusBadRequest},
		{name: "too short", body: types.SubmitGenerationRequest{JobDescription: "Go dev"}, wantStatus: http.StatusBadRequest},
		{name: "too long", body: types.SubmitGenerationRequest{JobDescription: strings.Repeat("a", types.MaxJobDescriptionLength+1)}, wantStatus: http.StatusBadRequest},
		{name: "body over limit", body: `{"jobDescription":"` + strings.Repeat("a", maxSubmitBodyBytes) + `"}`, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Deps{})
			w := ts.do(t, http.MethodPost, "/generations", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotEmpty(t, decodeError(t, w))
			assert.Empty(t, ts.gens.submitted)
		})
	}
}

func TestSubmitGeneration_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "quota exceeded",
			err:         fmt.Errorf("admission: %w", quota.ErrQuotaExceeded),
			wantStatus:  http.StatusPaymentRequired,
			wantMessage: QuotaExceededMessage,
		},
		{
			name:       "transient exhaustion",
			err:        execution.NewTransient("ResumeRewriteAgent", context.DeadlineExceeded),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "fatal",
			err:        execution.NewFatal("ResumeGeneration", generation.ErrMasterResumeNotFound),
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:        "unexpected",
			err:         errors.New("connection reset by peer"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Deps{Generations: &stubGenerations{submitErr: tt.err}})
			w := ts.do(t, http.MethodPost, "/generations", types.SubmitGenerationRequest{JobDescription: validJD})
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, decodeError(t, w))
			}
		})
	}
}

func TestSubmitGeneration_RequiresBearerToken(t *testing.T) {
	ts := newTestServer(t, Deps{})
	req := httptest.NewRequest(http.MethodPost, "/generations", strings.NewReader(`{"jobDescription":"x"}`))
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, ts.gens.submitted)
}

func TestGetGeneration(t *testing.T) {
	ts := newTestServer(t, Deps{})
	title, reason := "Backend Engineer", "fatal failure in agent MatchingAgent: refused"
	ts.gens.generation = &db.Generation{
		ID:               uuid.New(),
		UserID:           ts.userID,
		Status:           db.GenerationFailed,
		JobTitleTargeted: &title,
		FailureReason:    &reason,
	}

	w := ts.do(t, http.MethodGet, "/generations/"+ts.gens.generation.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view types.GenerationView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "FAILED", view.Status)
	assert.Equal(t, title, view.JobTitleTargeted)
	assert.Equal(t, reason, view.FailureReason)
	assert.Empty(t, view.CompanyTargeted)

	w = ts.do(t, http.MethodGet, "/generations/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/generations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentUsage(t *testing.T) {
	ts := newTestServer(t, Deps{Generations: &stubGenerations{usage: []db.AgentUsage{
		{AgentName: "MatchingAgent", Executions: 3, TotalTokens: 4200, AvgExecutionTimeMs: 812.5},
	}}})

	w := ts.do(t, http.MethodGet, "/usage/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`[{"agentName":"MatchingAgent","executions":3,"totalTokens":4200,"avgExecutionTimeMs":812.5}]`,
		w.Body.String())
}

func TestGenerationEvents_StreamsStatusMessages(t *testing.T) {
	sub := &stubSubscriber{messages: []notify.Message{
		{AgentName: "ResumeGeneration", Status: notify.StatusStarted},
		{AgentName: "JobDescriptionAnalyzerAgent", Status: notify.StatusSuccess},
	}}
	ts := newTestServer(t, Deps{Subscriber: sub})
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/generations/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ts.token)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var data []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() && len(data) < 2 {
		if line, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			data = append(data, line)
		}
	}
	require.Len(t, data, 2)
	assert.JSONEq(t, `{"agentName":"ResumeGeneration","status":"STARTED"}`, data[0])
	assert.JSONEq(t, `{"agentName":"JobDescriptionAnalyzerAgent","status":"SUCCESS"}`, data[1])
}

func TestGenerationEvents_DisabledWithoutSubscriber(t *testing.T) {
	ts := newTestServer(t, Deps{})
	w := ts.do(t, http.MethodGet, "/generations/events", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	m.GenerationFinished("completed")

	ts := newTestServer(t, Deps{Gatherer: reg})
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `resumeagent_generations_total{result="completed"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Deps{})
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/generations", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t, Deps{})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- ts.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestSubmitGeneration_RateLimitedPerUser(t *testing.T) {
	metrics := observability.NewMetrics(nil)
	ts := newTestServer(t, Deps{
		Generations: &stubGenerations{result: &generation.Result{Message: generation.SuccessMessage}},
		RateLimiter: NewRateLimiter(2, 0),
		Metrics:     metrics,
	})

	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodPost, "/generations", types.SubmitGenerationRequest{JobDescription: validJD})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := ts.do(t, http.MethodPost, "/generations", types.SubmitGenerationRequest{JobDescription: validJD})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Len(t, ts.gens.submitted, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedRequests().WithLabelValues("POST /generations")))

	usage := ts.do(t, http.MethodGet, "/usage/agents", nil)
	assert.Equal(t, http.StatusOK, usage.Code, "other routes are unlimited when perMinute is zero")
}

func TestGetResume(t *testing.T) {
	ts := newTestServer(t, Deps{})
	title := "Backend Engineer"
	resume := db.Resume{
		ID:               uuid.New(),
		UserID:           ts.userID,
		GenerationID:     uuid.New(),
		JobTitleTargeted: &title,
		Content:          json.RawMessage(`{"fullName":"Ada Lovelace","headline":"Backend Engineer (Go)"}`),
		JDAnalysis:       json.RawMessage(`{"jobIdentity":{"title":"Backend Engineer"}}`),
		CreatedAt:        time.Date(2026, 5, 14, 10, 0, 0, 0, time.UTC),
	}
	foreign := db.Resume{ID: uuid.New(), UserID: uuid.New(), Content: json.RawMessage(`{}`)}
	ts.gens.resumes = []db.Resume{resume, foreign}

	w := ts.do(t, http.MethodGet, "/resumes/"+resume.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view types.ResumeView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, resume.ID, view.ID)
	assert.Equal(t, resume.GenerationID, view.GenerationID)
	assert.Equal(t, title, view.JobTitleTargeted)
	assert.Empty(t, view.CompanyTargeted)
	assert.JSONEq(t, string(resume.Content), string(view.Content))
	assert.JSONEq(t, string(resume.JDAnalysis), string(view.JDAnalysis))

	w = ts.do(t, http.MethodGet, "/resumes/"+foreign.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "other users' résumés are not visible")

	w = ts.do(t, http.MethodGet, "/resumes/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/resumes/"+resume.ID.String(), nil)
	w = httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListResumes(t *testing.T) {
	ts := newTestServer(t, Deps{})
	for i := 0; i < 3; i++ {
		ts.gens.resumes = append(ts.gens.resumes, db.Resume{
			ID:           uuid.New(),
			UserID:       ts.userID,
			GenerationID: uuid.New(),
			Content:      json.RawMessage(`{"fullName":"Ada"}`),
		})
	}

	w := ts.do(t, http.MethodGet, "/resumes", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page types.ResumeListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, types.DefaultPageSize, page.Limit)
	assert.Equal(t, 0, page.Offset)
	require.Len(t, page.Items, 3)
	assert.Equal(t, ts.gens.resumes[0].ID, page.Items[0].ID)
	assert.NotContains(t, w.Body.String(), `"content"`, "list entries omit the résumé body")

	w = ts.do(t, http.MethodGet, "/resumes?limit=2&offset=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, [2]int{2, 2}, ts.gens.listed)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ts.gens.resumes[2].ID, page.Items[0].ID)

	empty := newTestServer(t, Deps{})
	w = empty.do(t, http.MethodGet, "/resumes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"total":0,"limit":20,"offset":0}`, w.Body.String())
}

func TestListResumes_InvalidPaging(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{name: "limit not a number", query: "limit=ten", field: "limit"},
		{name: "limit zero", query: "limit=0", field: "limit"},
		{name: "limit over max", query: "limit=101", field: "limit"},
		{name: "negative offset", query: "offset=-1", field: "offset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Deps{})
			w := ts.do(t, http.MethodGet, "/resumes?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decodeError(t, w), tt.field)
			assert.Equal(t, [2]int{}, ts.gens.listed, "service is not called")
		})
	}
}
