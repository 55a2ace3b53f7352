package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/calendar2youtube/internal/models"
	"github.com/noah-isme/calendar2youtube/internal/service"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
)

type dispatcherStub struct {
	dryRuns []bool
	err     error
	last    *models.RunReport
}

func (d *dispatcherStub) Trigger(trigger models.SyncTrigger, dryRun bool) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.dryRuns = append(d.dryRuns, dryRun)
	return "job-1", nil
}

func (d *dispatcherStub) Pending() int { return len(d.dryRuns) }

func (d *dispatcherStub) LastReport() *models.RunReport { return d.last }

type historyStub struct {
	filter  models.SyncRunFilter
	format  string
	latest  *models.SyncRun
	listErr error
}

func (h *historyStub) List(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, *models.Pagination, error) {
	h.filter = filter
	if h.listErr != nil {
		return nil, nil, h.listErr
	}
	return []models.SyncRun{{ID: "run-1"}}, &models.Pagination{Page: 1, PageSize: 50, TotalCount: 1}, nil
}

func (h *historyStub) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	if id != "run-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "sync run not found")
	}
	return &models.SyncRun{ID: id}, nil
}

func (h *historyStub) Latest(ctx context.Context) (*models.SyncRun, error) {
	return h.latest, nil
}

func (h *historyStub) Export(ctx context.Context, format string, filter models.SyncRunFilter) (*service.ExportFile, error) {
	h.format, h.filter = format, filter
	return &service.ExportFile{Filename: "sync-runs.csv", ContentType: "text/csv", Body: []byte("id\nrun-1\n")}, nil
}

type statusStub struct{}

func (statusStub) Snapshot() models.StatusSnapshot {
	return models.StatusSnapshot{RunsTotal: 3}
}

func newSyncRouter(h *SyncHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sync", h.Trigger)
	r.GET("/status", h.Status)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/export", h.ExportRuns)
	r.GET("/runs/:id", h.GetRun)
	return r
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSyncHandlerTrigger(t *testing.T) {
	dispatcher := &dispatcherStub{}
	router := newSyncRouter(NewSyncHandler(dispatcher, &historyStub{}, nil, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync", nil))
	require.Equal(t, http.StatusAccepted, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "job-1", data["job_id"])
	assert.Equal(t, "api", data["trigger"])

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync", bytes.NewBufferString(`{"dry_run":true}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []bool{false, true}, dispatcher.dryRuns)
}

func TestSyncHandlerTriggerErrors(t *testing.T) {
	router := newSyncRouter(NewSyncHandler(&dispatcherStub{err: appErrors.Clone(appErrors.ErrSyncBusy, "busy")}, &historyStub{}, nil, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SYNC_BUSY", decodeEnvelope(t, w)["error"].(map[string]interface{})["code"])

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync", bytes.NewBufferString(`{"dry_run":`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncHandlerListRuns(t *testing.T) {
	history := &historyStub{}
	router := newSyncRouter(NewSyncHandler(&dispatcherStub{}, history, nil, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs?status=partial&page=2&page_size=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SyncRunFilter{Status: models.SyncStatusPartial, Page: 2, PageSize: 10}, history.filter)
	assert.NotNil(t, decodeEnvelope(t, w)["pagination"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs?status=exploded", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs?page=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncHandlerListRunsDisabled(t *testing.T) {
	history := &historyStub{listErr: appErrors.Clone(appErrors.ErrUnavailable, "run history is disabled")}
	router := newSyncRouter(NewSyncHandler(&dispatcherStub{}, history, nil, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestSyncHandlerGetRun(t *testing.T) {
	router := newSyncRouter(NewSyncHandler(&dispatcherStub{}, &historyStub{}, nil, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/run-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/other", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncHandlerExportRuns(t *testing.T) {
	history := &historyStub{}
	router := newSyncRouter(NewSyncHandler(&dispatcherStub{}, history, nil, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/export?format=csv&trigger=schedule", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "sync-runs.csv")
	assert.Equal(t, "csv", history.format)
	assert.Equal(t, models.SyncTriggerSchedule, history.filter.Trigger)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/export?format=xlsx", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncHandlerStatus(t *testing.T) {
	dispatcher := &dispatcherStub{last: &models.RunReport{Warnings: []string{"broadcast delete_skipped b-1: live"}}}
	history := &historyStub{latest: &models.SyncRun{ID: "run-9"}}
	schedule := func() (string, string) { return "*/15 * * * *", "2024-03-04T08:15:00Z" }
	router := newSyncRouter(NewSyncHandler(dispatcher, history, statusStub{}, schedule))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["runs_total"])
	assert.Equal(t, "run-9", data["last_run"].(map[string]interface{})["id"])
	assert.Equal(t, "*/15 * * * *", data["schedule"])
	assert.NotNil(t, data["last_report"])
}

func TestHealthHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(nil, map[string]ReadinessCheck{
		"token": func(context.Context) error { return nil },
		"db":    func(context.Context) error { return errors.New("connection refused") },
	})
	r := gin.New()
	r.GET("/ready", h.Ready)
	r.GET("/health", h.Health)
	r.GET("/metrics", h.Prometheus)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := decodeEnvelope(t, w)["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["token"])
	assert.Equal(t, "connection refused", checks["db"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
