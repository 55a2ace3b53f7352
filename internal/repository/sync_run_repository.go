package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/calendar2youtube/internal/models"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
)

const syncRunSchema = `CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	trigger TEXT NOT NULL,
	status TEXT NOT NULL,
	dry_run BOOLEAN NOT NULL DEFAULT FALSE,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	ledger_created INTEGER NOT NULL DEFAULT 0,
	ledger_updated INTEGER NOT NULL DEFAULT 0,
	ledger_deleted INTEGER NOT NULL DEFAULT 0,
	ledger_failed INTEGER NOT NULL DEFAULT 0,
	broadcast_action TEXT NOT NULL DEFAULT '',
	broadcast_result TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sync_runs_started_at_idx ON sync_runs (started_at DESC)`

const syncRunColumns = `id, trigger, status, dry_run, started_at, finished_at, ledger_created, ledger_updated, ledger_deleted, ledger_failed, broadcast_action, broadcast_result, error`

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// SyncRunRepository persists run history in Postgres.
type SyncRunRepository struct {
	db      *sqlx.DB
	metrics queryObserver
}

// NewSyncRunRepository constructs the repository. metrics may be nil.
func NewSyncRunRepository(db *sqlx.DB, metrics queryObserver) *SyncRunRepository {
	return &SyncRunRepository{db: db, metrics: metrics}
}

// EnsureSchema creates the history table when it does not exist.
func (r *SyncRunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, syncRunSchema); err != nil {
		return fmt.Errorf("ensure sync_runs schema: %w", err)
	}
	return nil
}

// Create inserts a finished run.
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	defer r.observe("sync_runs_create", time.Now())
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	query := `INSERT INTO sync_runs (` + syncRunColumns + `)
VALUES (:id, :trigger, :status, :dry_run, :started_at, :finished_at, :ledger_created, :ledger_updated, :ledger_deleted, :ledger_failed, :broadcast_action, :broadcast_result, :error)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create sync run: %w", err)
	}
	return nil
}

// List returns runs newest first together with the total matching count.
func (r *SyncRunRepository) List(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, int, error) {
	defer r.observe("sync_runs_list", time.Now())
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Trigger != "" {
		where = append(where, fmt.Sprintf("trigger = $%d", len(args)+1))
		args = append(args, filter.Trigger)
	}
	whereClause := strings.Join(where, " AND ")

	page, size := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM sync_runs WHERE %s ORDER BY started_at DESC LIMIT %d OFFSET %d", syncRunColumns, whereClause, size, offset)
	var runs []models.SyncRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sync runs: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sync_runs WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count sync runs: %w", err)
	}
	return runs, total, nil
}

// Get fetches a run by id.
func (r *SyncRunRepository) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	defer r.observe("sync_runs_get", time.Now())
	var run models.SyncRun
	if err := r.db.GetContext(ctx, &run, "SELECT "+syncRunColumns+" FROM sync_runs WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sync run not found")
		}
		return nil, fmt.Errorf("get sync run: %w", err)
	}
	return &run, nil
}

// Latest returns the most recent run or nil when none exist.
func (r *SyncRunRepository) Latest(ctx context.Context) (*models.SyncRun, error) {
	defer r.observe("sync_runs_latest", time.Now())
	var run models.SyncRun
	if err := r.db.GetContext(ctx, &run, "SELECT "+syncRunColumns+" FROM sync_runs ORDER BY started_at DESC LIMIT 1"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest sync run: %w", err)
	}
	return &run, nil
}

func (r *SyncRunRepository) observe(label string, started time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveDBQuery(label, time.Since(started))
	}
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	return page, size
}
