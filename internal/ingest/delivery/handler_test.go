package delivery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	grantdomain "mailatlas-backend/internal/grant/domain"
	"mailatlas-backend/internal/ingest/domain"
	"mailatlas-backend/internal/ingest/repository"
	"mailatlas-backend/internal/ingest/usecase"
	"mailatlas-backend/pkg/queue"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGrants struct {
	mu     sync.Mutex
	grants map[string]*grantdomain.Grant
}

func (s *stubGrants) FindByID(id string) (*grantdomain.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grants[id], nil
}

func (s *stubGrants) Save(grant *grantdomain.Grant) error { return nil }

func (s *stubGrants) UpdateTokens(id, accessToken, refreshToken string) error { return nil }

func setupRouter(t *testing.T, defaultMax int) (*gin.Engine, *repository.MemoryJobs, *queue.MemoryQueue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jobs := repository.NewMemoryJobs()
	q := queue.NewMemoryQueue()
	scheduler := usecase.NewScheduler(repository.NewMemoryCheckpoints(), jobs, q, 30, zerolog.Nop())
	grants := &stubGrants{grants: map[string]*grantdomain.Grant{
		"g1": {ID: "g1", Email: "g1@example.com", Provider: grantdomain.ProviderGmail},
	}}

	r := gin.New()
	handler := NewIngestHandler(scheduler, jobs, grants, defaultMax)
	r.POST("/api/grants/:id/sync", handler.StartSync)
	r.GET("/api/jobs/:id", handler.GetJob)
	return r, jobs, q
}

func TestStartSync_EnqueuesJob(t *testing.T) {
	r, jobs, q := setupRouter(t, 1000)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/grants/g1/sync", strings.NewReader(`{"max":250}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	jobID, _ := body["jobId"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, float64(250), body["max"])

	rec, err := jobs.GetByID(jobID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "g1", rec.GrantID)

	require.Len(t, q.Published, 1)
	page, err := domain.ParsePageJob(q.Published[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "g1", page.GrantID)
	assert.Equal(t, 250, page.Max)
}

func TestStartSync_DefaultsMaxWithEmptyBody(t *testing.T) {
	r, _, q := setupRouter(t, 1000)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/grants/g1/sync", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	page, err := domain.ParsePageJob(q.Published[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, 1000, page.Max)
}

func TestStartSync_UsesConfiguredDefaultMax(t *testing.T) {
	r, _, q := setupRouter(t, 500)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/grants/g1/sync", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	page, err := domain.ParsePageJob(q.Published[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, 500, page.Max)
}

func TestStartSync_UnknownGrant(t *testing.T) {
	r, _, q := setupRouter(t, 1000)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/grants/missing/sync", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, q.Published)
}

func TestStartSync_MalformedBody(t *testing.T) {
	r, _, _ := setupRouter(t, 1000)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/grants/g1/sync", strings.NewReader(`{"max":`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJob(t *testing.T) {
	r, jobs, _ := setupRouter(t, 1000)
	require.NoError(t, jobs.Create(&domain.SyncJob{
		ID: "j1", GrantID: "g1", Type: domain.JobTypeDelta,
		Status: domain.JobStatusRunning, Processed: 400, Max: 1000,
	}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/j1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, float64(400), body["processed"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
