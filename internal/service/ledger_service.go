package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/calendar2youtube/internal/models"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
)

// LedgerStore is the registration calendar as seen by the synchronizer.
type LedgerStore interface {
	ListLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error)
	CreateLedgerEntry(ctx context.Context, fields models.LedgerFields) (string, error)
	UpdateLedgerEntry(ctx context.Context, ledgerID string, fields models.LedgerFields) error
	DeleteLedgerEntry(ctx context.Context, ledgerID string) error
}

// LedgerAnomaly is an entry or event the planner refused to act on.
type LedgerAnomaly struct {
	Subject string
	Message string
}

// LedgerService mirrors source events into the registration calendar.
type LedgerService struct {
	store  LedgerStore
	logger *zap.Logger
}

// NewLedgerService constructs the service.
func NewLedgerService(store LedgerStore, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{store: store, logger: logger}
}

type ledgerIndexEntry struct {
	entry     models.LedgerEntry
	processed bool
}

// PlanLedger computes the ledger mutations that bring snapshot in line with events.
// Creates and updates follow event order; deletes follow snapshot order.
func PlanLedger(snapshot []models.LedgerEntry, events []models.SourceEvent) ([]models.LedgerAction, []LedgerAnomaly) {
	var (
		actions   []models.LedgerAction
		anomalies []LedgerAnomaly
	)

	index := make(map[string]*ledgerIndexEntry, len(snapshot))
	order := make([]string, 0, len(snapshot))
	for _, entry := range snapshot {
		if entry.OriginalID == "" {
			anomalies = append(anomalies, LedgerAnomaly{Subject: entry.LedgerID, Message: "ledger entry without original id left untouched"})
			continue
		}
		if _, exists := index[entry.OriginalID]; exists {
			actions = append(actions, models.LedgerAction{
				Kind:       models.LedgerActionDelete,
				OriginalID: entry.OriginalID,
				LedgerID:   entry.LedgerID,
				Title:      entry.Title,
				Reason:     "duplicate ledger entry",
			})
			continue
		}
		index[entry.OriginalID] = &ledgerIndexEntry{entry: entry}
		order = append(order, entry.OriginalID)
	}

	seen := make(map[string]struct{}, len(events))
	for _, event := range events {
		if _, dup := seen[event.ID]; dup {
			anomalies = append(anomalies, LedgerAnomaly{Subject: event.ID, Message: "duplicate source event ignored"})
			continue
		}
		seen[event.ID] = struct{}{}

		fields := models.LedgerFieldsFor(event)
		current, ok := index[event.ID]
		switch {
		case !ok:
			actions = append(actions, models.LedgerAction{
				Kind:       models.LedgerActionCreate,
				OriginalID: event.ID,
				Title:      event.Title,
				Reason:     "new source event",
				Fields:     &fields,
			})
		case !current.entry.LastUpdate.Equal(event.Updated):
			current.processed = true
			actions = append(actions, models.LedgerAction{
				Kind:       models.LedgerActionUpdate,
				OriginalID: event.ID,
				LedgerID:   current.entry.LedgerID,
				Title:      event.Title,
				Reason:     "source event changed",
				Fields:     &fields,
			})
		default:
			current.processed = true
		}
	}

	for _, originalID := range order {
		current := index[originalID]
		if current.processed {
			continue
		}
		actions = append(actions, models.LedgerAction{
			Kind:       models.LedgerActionDelete,
			OriginalID: originalID,
			LedgerID:   current.entry.LedgerID,
			Title:      current.entry.Title,
			Reason:     "source event no longer listed",
		})
	}
	return actions, anomalies
}

// Plan fetches the ledger once and returns the mutations a pass would apply.
func (s *LedgerService) Plan(ctx context.Context, events []models.SourceEvent, reporter Reporter) ([]models.LedgerAction, error) {
	reporter = reporterOrNop(reporter)
	snapshot, err := s.store.ListLedgerEntries(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "failed to list ledger entries")
	}
	actions, anomalies := PlanLedger(snapshot, events)
	for _, anomaly := range anomalies {
		reporter.Report(Outcome{
			Level:     LevelWarn,
			Component: ComponentLedger,
			Action:    "skip",
			Subject:   anomaly.Subject,
			Message:   anomaly.Message,
		})
	}
	s.logger.Debug("ledger plan computed",
		zap.Int("entries", len(snapshot)),
		zap.Int("events", len(events)),
		zap.Int("actions", len(actions)),
	)
	return actions, nil
}

// Synchronize reconciles events against the ledger. Each mutation is attempted
// independently; failures are reported and returned joined once the pass ends.
func (s *LedgerService) Synchronize(ctx context.Context, events []models.SourceEvent, reporter Reporter) (models.LedgerTally, error) {
	reporter = reporterOrNop(reporter)
	var tally models.LedgerTally

	actions, err := s.Plan(ctx, events, reporter)
	if err != nil {
		return tally, err
	}

	var errs []error
	for i, action := range actions {
		if ctxErr := ctx.Err(); ctxErr != nil {
			tally.Failed += len(actions) - i
			errs = append(errs, ctxErr)
			break
		}
		if err := s.apply(ctx, action); err != nil {
			tally.Failed++
			errs = append(errs, err)
			reporter.Report(Outcome{
				Level:     LevelError,
				Component: ComponentLedger,
				Action:    string(action.Kind),
				Subject:   action.OriginalID,
				Message:   "ledger mutation failed",
				Err:       err,
			})
			continue
		}
		switch action.Kind {
		case models.LedgerActionCreate:
			tally.Created++
		case models.LedgerActionUpdate:
			tally.Updated++
		case models.LedgerActionDelete:
			tally.Deleted++
		}
		reporter.Report(Outcome{
			Level:     LevelInfo,
			Component: ComponentLedger,
			Action:    string(action.Kind),
			Subject:   action.OriginalID,
			Message:   action.Reason,
		})
	}
	return tally, errors.Join(errs...)
}

func (s *LedgerService) apply(ctx context.Context, action models.LedgerAction) error {
	switch action.Kind {
	case models.LedgerActionCreate:
		if _, err := s.store.CreateLedgerEntry(ctx, *action.Fields); err != nil {
			return fmt.Errorf("create ledger entry for %s: %w", action.OriginalID, err)
		}
	case models.LedgerActionUpdate:
		if err := s.store.UpdateLedgerEntry(ctx, action.LedgerID, *action.Fields); err != nil {
			return fmt.Errorf("update ledger entry %s: %w", action.LedgerID, err)
		}
	case models.LedgerActionDelete:
		if err := s.store.DeleteLedgerEntry(ctx, action.LedgerID); err != nil {
			return fmt.Errorf("delete ledger entry %s: %w", action.LedgerID, err)
		}
	default:
		return fmt.Errorf("unknown ledger action %q", action.Kind)
	}
	return nil
}
