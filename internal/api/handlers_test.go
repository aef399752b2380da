package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hospitalops/shiftsolver/internal/metrics"
	"github.com/hospitalops/shiftsolver/internal/orchestrator"
	"github.com/hospitalops/shiftsolver/internal/repository/memory"
)

type noopEnqueuer struct{}

func (noopEnqueuer) EnqueueContext(context.Context, *asynq.Task, ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: "test"}, nil
}

type noopInspector struct{}

func (noopInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return &asynq.QueueInfo{}, nil }
func (noopInspector) ListPendingTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}
func (noopInspector) DeleteTask(string, string) error { return nil }

func newTestRouter(t *testing.T) *echo.Echo {
	t.Helper()
	catalog := memory.NewCatalogStore()
	reg := memory.NewRunRegistry()
	o := orchestrator.New(catalog, reg, noopEnqueuer{}, noopInspector{}, zap.NewNop().Sugar(),
		metrics.NewWithRegistry(prometheus.NewRegistry()), 0)
	h := NewHandlers(o, catalog, nil, nil)
	return NewRouter(h, nil)
}

func TestCreateRun_RejectsMalformedHorizonStart(t *testing.T) {
	e := newTestRouter(t)
	body := `{"horizon_start":"not-a-date","horizon_days":7,"solver_time_limit":30,"max_consecutive_days":3}`
	req := httptest.NewRequest(http.MethodPost, "/api/schedule-runs", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRun_RejectsOutOfRangeHorizonDays(t *testing.T) {
	e := newTestRouter(t)
	body := `{"horizon_start":"2025-12-01","horizon_days":0,"solver_time_limit":30,"max_consecutive_days":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/schedule-runs", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRun_ThenGetRun_ReturnsQueued(t *testing.T) {
	e := newTestRouter(t)
	body := `{"horizon_start":"2025-12-01","horizon_days":7,"solver_time_limit":30,"max_consecutive_days":3,"min_rest_hours":10}`
	req := httptest.NewRequest(http.MethodPost, "/api/schedule-runs", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	data := created.Data.(map[string]any)
	runID := data["run_id"].(string)
	assert.Equal(t, "QUEUED", data["status"])

	getReq := httptest.NewRequest(http.MethodGet, "/api/schedule-runs/"+runID, nil)
	getRec := httptest.NewRecorder()
	e.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)

	var got Response
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	assert.Equal(t, "QUEUED", got.Data.(map[string]any)["status"])
}

func TestGetRun_UnknownIDReturns404(t *testing.T) {
	e := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/schedule-runs/does-not-exist", nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns_EmptyRegistry(t *testing.T) {
	e := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/schedule-runs", nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSeedCatalog(t *testing.T) {
	e := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/catalog/seed", nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestRouter(t)
	for _, path := range []string{"/api/health", "/api/health/db", "/api/health/redis"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
