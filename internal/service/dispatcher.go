package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/calendar2youtube/internal/models"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
	"github.com/noah-isme/calendar2youtube/pkg/jobs"
)

const syncJobType = "sync_run"

type syncRunner interface {
	Run(ctx context.Context, trigger models.SyncTrigger, dryRun bool) (*models.RunReport, error)
}

// SyncRequest is the payload of a queued run.
type SyncRequest struct {
	Trigger models.SyncTrigger
	DryRun  bool
}

// DispatcherConfig tunes the run queue.
type DispatcherConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// SyncDispatcher serialises every run through a single worker so scheduled and
// manual triggers never overlap. At most one run waits behind the active one.
type SyncDispatcher struct {
	runner syncRunner
	queue  *jobs.Queue
	logger *zap.Logger

	mu   sync.RWMutex
	last *models.RunReport
}

// NewSyncDispatcher constructs the dispatcher. Call Start before Trigger.
func NewSyncDispatcher(runner syncRunner, cfg DispatcherConfig, logger *zap.Logger) *SyncDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &SyncDispatcher{runner: runner, logger: logger}
	d.queue = jobs.NewQueue("sync", d.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return d
}

// Start launches the worker.
func (d *SyncDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop cancels the active run and waits for the worker.
func (d *SyncDispatcher) Stop() {
	d.queue.Stop()
}

// Trigger queues a run and returns its job id. A full queue yields ErrSyncBusy.
func (d *SyncDispatcher) Trigger(trigger models.SyncTrigger, dryRun bool) (string, error) {
	id, err := d.queue.TryEnqueue(jobs.Job{Type: syncJobType, Payload: SyncRequest{Trigger: trigger, DryRun: dryRun}})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			return "", appErrors.Clone(appErrors.ErrSyncBusy, "a sync run is already queued")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue sync run")
	}
	d.logger.Info("sync run queued", zap.String("job_id", id), zap.String("trigger", string(trigger)), zap.Bool("dry_run", dryRun))
	return id, nil
}

// Pending reports the queued plus running jobs.
func (d *SyncDispatcher) Pending() int {
	return d.queue.Pending()
}

// LastReport returns the report of the most recent finished run, or nil.
func (d *SyncDispatcher) LastReport() *models.RunReport {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// handle runs one queued pass. Partial runs are returned as errors so the queue
// retries them; a pass is idempotent.
func (d *SyncDispatcher) handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(SyncRequest)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	report, err := d.runner.Run(ctx, req.Trigger, req.DryRun)
	if report != nil {
		d.mu.Lock()
		d.last = report
		d.mu.Unlock()
	}
	if err != nil {
		return err
	}
	if report != nil && report.Run.Status == models.SyncStatusPartial {
		return fmt.Errorf("sync run %s partial: %s", report.Run.ID, report.Run.Error)
	}
	return nil
}
