package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/calendar2youtube/internal/dto"
	"github.com/noah-isme/calendar2youtube/internal/models"
	"github.com/noah-isme/calendar2youtube/internal/service"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
	"github.com/noah-isme/calendar2youtube/pkg/response"
)

type syncDispatcher interface {
	Trigger(trigger models.SyncTrigger, dryRun bool) (string, error)
	Pending() int
	LastReport() *models.RunReport
}

type runHistory interface {
	List(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.SyncRun, error)
	Latest(ctx context.Context) (*models.SyncRun, error)
	Export(ctx context.Context, format string, filter models.SyncRunFilter) (*service.ExportFile, error)
}

type statusSource interface {
	Snapshot() models.StatusSnapshot
}

// ScheduleInfo reports the serve-mode schedule for the status endpoint.
type ScheduleInfo func() (spec string, next string)

// SyncHandler exposes the run trigger and history endpoints.
type SyncHandler struct {
	dispatcher syncDispatcher
	history    runHistory
	status     statusSource
	schedule   ScheduleInfo
	validator  *validator.Validate
}

// NewSyncHandler constructs the handler. status and schedule may be nil.
func NewSyncHandler(dispatcher syncDispatcher, history runHistory, status statusSource, schedule ScheduleInfo) *SyncHandler {
	return &SyncHandler{
		dispatcher: dispatcher,
		history:    history,
		status:     status,
		schedule:   schedule,
		validator:  validator.New(),
	}
}

// Trigger godoc
// @Summary Queue a sync run
// @Description Queues one reconciliation pass. Only one run may wait behind the active one.
// @Tags Sync
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.TriggerSyncRequest false "Run options"
// @Success 202 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sync [post]
func (h *SyncHandler) Trigger(c *gin.Context) {
	var req dto.TriggerSyncRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sync payload"))
			return
		}
	}

	id, err := h.dispatcher.Trigger(models.SyncTriggerAPI, req.DryRun)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.TriggerSyncResponse{
		JobID:   id,
		Trigger: string(models.SyncTriggerAPI),
		DryRun:  req.DryRun,
		Pending: h.dispatcher.Pending(),
	})
}

// Status godoc
// @Summary Serving process status
// @Tags Sync
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	var res dto.StatusResponse
	if h.status != nil {
		res.StatusSnapshot = h.status.Snapshot()
	}
	if res.LastRun == nil && h.history != nil {
		if latest, err := h.history.Latest(c.Request.Context()); err == nil {
			res.LastRun = latest
		}
	}
	res.Pending = h.dispatcher.Pending()
	res.LastReport = h.dispatcher.LastReport()
	if h.schedule != nil {
		res.Schedule, res.NextRun = h.schedule()
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ListRuns godoc
// @Summary List sync runs
// @Tags Sync
// @Produce json
// @Security BearerAuth
// @Param status query string false "succeeded, partial or failed"
// @Param trigger query string false "cli, schedule or api"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 501 {object} response.Envelope
// @Router /runs [get]
func (h *SyncHandler) ListRuns(c *gin.Context) {
	var query dto.ListRunsQuery
	if !h.bindQuery(c, &query) {
		return
	}
	runs, pagination, err := h.history.List(c.Request.Context(), query.Filter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// GetRun godoc
// @Summary Get a sync run
// @Tags Sync
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /runs/{id} [get]
func (h *SyncHandler) GetRun(c *gin.Context) {
	run, err := h.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// ExportRuns godoc
// @Summary Export sync runs
// @Tags Sync
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Param status query string false "succeeded, partial or failed"
// @Param trigger query string false "cli, schedule or api"
// @Success 200 {file} file
// @Router /runs/export [get]
func (h *SyncHandler) ExportRuns(c *gin.Context) {
	var query dto.ExportRunsQuery
	if !h.bindQuery(c, &query) {
		return
	}
	file, err := h.history.Export(c.Request.Context(), query.Format, query.Filter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

func (h *SyncHandler) bindQuery(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindQuery(target); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return false
	}
	return true
}
