package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/calendar2youtube/internal/models"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
	"github.com/noah-isme/calendar2youtube/pkg/export"
)

type syncRunRepository interface {
	List(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, int, error)
	Get(ctx context.Context, id string) (*models.SyncRun, error)
	Latest(ctx context.Context) (*models.SyncRun, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// Export formats accepted by HistoryService.Export.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// maxExportRows bounds a single export.
const maxExportRows = 1000

// ExportFile is a rendered history export.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

var historyHeaders = []string{
	"id", "trigger", "status", "dry_run", "started_at", "duration",
	"ledger_created", "ledger_updated", "ledger_deleted", "ledger_failed",
	"broadcast_action", "broadcast_result", "error",
}

// HistoryService reads persisted runs. A nil repository disables every call.
type HistoryService struct {
	repo   syncRunRepository
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewHistoryService constructs a HistoryService. csv and pdf default to pkg/export.
func NewHistoryService(repo syncRunRepository, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &HistoryService{repo: repo, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Enabled reports whether a history store is configured.
func (s *HistoryService) Enabled() bool {
	return s != nil && s.repo != nil
}

// List returns a page of runs.
func (s *HistoryService) List(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, *models.Pagination, error) {
	if !s.Enabled() {
		return nil, nil, appErrors.Clone(appErrors.ErrUnavailable, "run history is disabled")
	}
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	filter.Page, filter.PageSize = page, size

	runs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sync runs")
	}
	return runs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single run.
func (s *HistoryService) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "run history is disabled")
	}
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "run id is required")
	}
	run, err := s.repo.Get(ctx, id)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotFound) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sync run")
	}
	return run, nil
}

// Latest returns the newest run, or nil when history is disabled or empty.
func (s *HistoryService) Latest(ctx context.Context) (*models.SyncRun, error) {
	if !s.Enabled() {
		return nil, nil
	}
	return s.repo.Latest(ctx)
}

// Export renders matching runs, newest first, as CSV or PDF.
func (s *HistoryService) Export(ctx context.Context, format string, filter models.SyncRunFilter) (*ExportFile, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "run history is disabled")
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	filter.Page, filter.PageSize = 1, 200
	var runs []models.SyncRun
	for len(runs) < maxExportRows {
		page, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sync runs")
		}
		runs = append(runs, page...)
		if len(page) == 0 || len(runs) >= total {
			break
		}
		filter.Page++
	}
	if len(runs) > maxExportRows {
		runs = runs[:maxExportRows]
	}

	data := historyDataset(runs)
	stamp := s.now().UTC().Format("20060102-150405")
	var (
		body []byte
		err  error
		file = &ExportFile{}
	)
	switch format {
	case ExportFormatPDF:
		body, err = s.pdf.Render(data, "Sync runs")
		file.Filename, file.ContentType = "sync-runs-"+stamp+".pdf", "application/pdf"
	default:
		body, err = s.csv.Render(data)
		file.Filename, file.ContentType = "sync-runs-"+stamp+".csv", "text/csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to render %s export", format))
	}
	file.Body = body
	s.logger.Info("sync run history exported", zap.String("format", format), zap.Int("rows", len(runs)))
	return file, nil
}

func historyDataset(runs []models.SyncRun) export.Dataset {
	rows := make([]map[string]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, map[string]string{
			"id":               run.ID,
			"trigger":          string(run.Trigger),
			"status":           string(run.Status),
			"dry_run":          strconv.FormatBool(run.DryRun),
			"started_at":       run.StartedAt.UTC().Format(time.RFC3339),
			"duration":         run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String(),
			"ledger_created":   strconv.Itoa(run.LedgerCreated),
			"ledger_updated":   strconv.Itoa(run.LedgerUpdated),
			"ledger_deleted":   strconv.Itoa(run.LedgerDeleted),
			"ledger_failed":    strconv.Itoa(run.LedgerFailed),
			"broadcast_action": string(run.BroadcastAction),
			"broadcast_result": string(run.BroadcastResult),
			"error":            run.Error,
		})
	}
	return export.Dataset{Headers: historyHeaders, Rows: rows}
}
