package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/calendar2youtube/internal/models"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
)

// SourceCalendar lists the classroom's scheduled sessions.
type SourceCalendar interface {
	ListSourceEvents(ctx context.Context, window models.TimeWindow, maxResults int) ([]models.SourceEvent, error)
}

// SyncRunWriter persists finished runs.
type SyncRunWriter interface {
	Create(ctx context.Context, run *models.SyncRun) error
}

// SyncOptions carries the run parameters resolved from configuration.
type SyncOptions struct {
	StreamTitle   string
	PreviousDays  int
	FutureDays    int
	MaxResults    int
	NextEventDays int
}

// SyncService runs one full reconciliation pass: ledger first, then the broadcast.
type SyncService struct {
	source     SourceCalendar
	streams    StreamResolver
	classifier *EventClassifier
	ledger     *LedgerService
	broadcasts *BroadcastService
	history    SyncRunWriter
	metrics    *MetricsService
	opts       SyncOptions
	logger     *zap.Logger
	now        func() time.Time
}

// NewSyncService wires the run orchestration. history and metrics may be nil.
func NewSyncService(
	source SourceCalendar,
	streams StreamResolver,
	classifier *EventClassifier,
	ledger *LedgerService,
	broadcasts *BroadcastService,
	history SyncRunWriter,
	metrics *MetricsService,
	opts SyncOptions,
	logger *zap.Logger,
) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = NewEventClassifier(nil, nil)
	}
	return &SyncService{
		source:     source,
		streams:    streams,
		classifier: classifier,
		ledger:     ledger,
		broadcasts: broadcasts,
		history:    history,
		metrics:    metrics,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source.
func (s *SyncService) WithClock(now func() time.Time) *SyncService {
	if now != nil {
		s.now = now
	}
	return s
}

// Run executes one pass. The returned error is non-nil only when the run failed
// before reconciliation could take place; partial passes are reported through
// the run status.
func (s *SyncService) Run(ctx context.Context, trigger models.SyncTrigger, dryRun bool) (*models.RunReport, error) {
	run := models.SyncRun{
		ID:              uuid.NewString(),
		Trigger:         trigger,
		DryRun:          dryRun,
		StartedAt:       s.now().UTC(),
		BroadcastAction: models.BroadcastActionNone,
		BroadcastResult: models.BroadcastResultNoop,
	}
	logger := s.logger.With(zap.String("run_id", run.ID), zap.String("trigger", string(trigger)), zap.Bool("dry_run", dryRun))
	recorder := NewRunRecorder()
	reporter := NewMultiReporter(NewZapReporter(logger), recorder, s.metrics.Reporter())
	report := &models.RunReport{}

	logger.Info("sync run started")
	partial, fatal := s.execute(ctx, &run, report, reporter)

	run.FinishedAt = s.now().UTC()
	switch {
	case fatal != nil:
		run.Status = models.SyncStatusFailed
		run.Error = fatal.Error()
	case partial != nil:
		run.Status = models.SyncStatusPartial
		run.Error = partial.Error()
	default:
		run.Status = models.SyncStatusSucceeded
	}
	report.Run = run
	report.Warnings = recorder.Warnings()

	s.metrics.ObserveSyncRun(run)
	if s.history != nil {
		if err := s.history.Create(ctx, &run); err != nil {
			logger.Warn("failed to record sync run", zap.Error(err))
		}
	}
	logger.Info("sync run finished",
		zap.String("status", string(run.Status)),
		zap.Int("ledger_created", run.LedgerCreated),
		zap.Int("ledger_updated", run.LedgerUpdated),
		zap.Int("ledger_deleted", run.LedgerDeleted),
		zap.Int("ledger_failed", run.LedgerFailed),
		zap.String("broadcast_action", string(run.BroadcastAction)),
		zap.String("broadcast_result", string(run.BroadcastResult)),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)),
	)
	if fatal != nil {
		return report, fatal
	}
	return report, nil
}

func (s *SyncService) execute(ctx context.Context, run *models.SyncRun, report *models.RunReport, reporter Reporter) (partial error, fatal error) {
	if s.opts.StreamTitle == "" {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "live stream title is required")
	}
	streamID, err := s.streams.ResolveStreamID(ctx, s.opts.StreamTitle)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "failed to resolve live stream")
	}
	if streamID == "" {
		return nil, appErrors.Clone(appErrors.ErrStreamNotFound, "no live stream titled "+s.opts.StreamTitle)
	}

	now := s.now()
	window := models.WindowAround(now, s.opts.PreviousDays, s.opts.FutureDays)
	events, err := s.source.ListSourceEvents(ctx, window, s.opts.MaxResults)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "failed to list source events")
	}
	eligible := s.classifier.FilterStreaming(events)
	next := NextStreamingEvent(eligible, now, s.opts.NextEventDays)
	reporter.Report(Outcome{
		Level:     LevelDebug,
		Component: ComponentSync,
		Action:    "list",
		Message:   "source events listed",
	})

	if run.DryRun {
		return nil, s.plan(ctx, run, report, eligible, next, reporter)
	}

	var errs []error
	tally, err := s.ledger.Synchronize(ctx, eligible, reporter)
	run.LedgerCreated, run.LedgerUpdated, run.LedgerDeleted, run.LedgerFailed = tally.Created, tally.Updated, tally.Deleted, tally.Failed
	if err != nil {
		errs = append(errs, err)
	}

	current, err := s.broadcasts.CurrentBroadcast(ctx, reporter)
	if err != nil {
		run.BroadcastResult = models.BroadcastResultFailed
		return errors.Join(append(errs, err)...), nil
	}
	outcome, err := s.broadcasts.Reconcile(ctx, next, current, streamID, reporter)
	run.BroadcastAction, run.BroadcastResult = outcome.Action, outcome.Result
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...), nil
}

func (s *SyncService) plan(ctx context.Context, run *models.SyncRun, report *models.RunReport, eligible []models.SourceEvent, next *models.SourceEvent, reporter Reporter) error {
	actions, err := s.ledger.Plan(ctx, eligible, reporter)
	if err != nil {
		return err
	}
	report.LedgerActions = actions

	current, extras, err := s.broadcasts.Inspect(ctx)
	if err != nil {
		return err
	}
	if len(extras) > 0 {
		reporter.Report(Outcome{
			Level:     LevelInfo,
			Component: ComponentBroadcast,
			Action:    "self_heal",
			Message:   "several open broadcasts would be deleted",
		})
	}
	plan := s.broadcasts.Plan(next, current)
	report.Broadcast = &plan
	run.BroadcastAction = plan.Action
	run.BroadcastResult = models.BroadcastResultPlanned
	return nil
}

// NextStreamingEvent returns the earliest-starting event that has not ended by now
// and starts within the horizon. Ties keep input order.
func NextStreamingEvent(events []models.SourceEvent, now time.Time, horizonDays int) *models.SourceEvent {
	limit := now.AddDate(0, 0, horizonDays)
	var next *models.SourceEvent
	for i := range events {
		event := events[i]
		if !event.End.After(now) || event.Start.After(limit) {
			continue
		}
		if next == nil || event.Start.Before(next.Start) {
			next = &event
		}
	}
	return next
}
