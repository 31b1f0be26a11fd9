package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/auscope/vgljobs/internal/errors"
	"github.com/auscope/vgljobs/internal/server/handlers"
	"github.com/auscope/vgljobs/pkg/jobstore"
)

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestServer_Port(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"default port", 8080},
		{"custom port", 9000},
		{"zero port", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New("127.0.0.1", tt.port)
			assert.Equal(t, tt.port, srv.Port())
		})
	}
	assert.Equal(t, "127.0.0.1:9000", New("127.0.0.1", 9000).Addr())
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/version", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestServer_RoutesRegistered(t *testing.T) {
	srv := New("127.0.0.1", 0, WithVersion(handlers.VersionInfo{Version: "test"}))

	endpoints := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/health/live", http.StatusOK},
		{"GET", "/health/ready", http.StatusOK},
		{"GET", "/version", http.StatusOK},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(ep.method, ep.path, nil))
			assert.Equal(t, ep.want, rec.Code)
		})
	}
}

func TestServer_JobRoutesRequireHandler(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/1/register", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubRegistrar struct{}

func (stubRegistrar) RegisterJob(ctx context.Context, jobID int64) (string, error) {
	return "http://catalog.example.org/srv/eng/catalog.search#/metadata/abc", nil
}

type stubJobs struct{}

func (stubJobs) GetJobByID(ctx context.Context, id int64) (*jobstore.Job, error) {
	return &jobstore.Job{ID: id, Status: jobstore.StatusActive}, nil
}

type stubReactor struct{}

func (stubReactor) HandleStatusChange(ctx context.Context, job *jobstore.Job, newStatus, oldStatus string) error {
	job.SetStatus(newStatus)
	return nil
}

func TestServer_JobRoutes(t *testing.T) {
	jobs := handlers.NewJobsHandler(stubRegistrar{}, stubJobs{}, stubReactor{}, nil)
	srv := New("127.0.0.1", 0, WithJobsHandler(jobs))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/5/register", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/5/status", strings.NewReader(`{"status":"Done"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"Done"`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/5/register", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_FileSelection(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := httptest.NewRecorder()
	body := `<files><fileUrl>http://example.org/a</fileUrl></files>`
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/files/selected", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://example.org/a")
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	srv := New("127.0.0.1", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, srv.Start(ctx, time.Second))
}
