package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/calendar2youtube/internal/models"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
)

// BroadcastStore is the destination platform's broadcast API.
type BroadcastStore interface {
	ListBroadcasts(ctx context.Context) ([]models.Broadcast, error)
	CreateBroadcast(ctx context.Context, title string, start, end time.Time, privacy models.PrivacyStatus) (string, error)
	DeleteBroadcast(ctx context.Context, broadcastID string) error
	BindBroadcast(ctx context.Context, broadcastID, streamID string) (string, error)
}

// StreamResolver looks up the ingest stream by title. An empty id means no match.
type StreamResolver interface {
	ResolveStreamID(ctx context.Context, title string) (string, error)
}

// BroadcastOutcome is the action taken against the destination and how it ended.
type BroadcastOutcome struct {
	Action      models.BroadcastAction `json:"action"`
	Result      models.BroadcastResult `json:"result"`
	BroadcastID string                 `json:"broadcast_id,omitempty"`
}

// BroadcastService keeps a single destination broadcast in line with the next source event.
type BroadcastService struct {
	store      BroadcastStore
	classifier *EventClassifier
	logger     *zap.Logger
}

// NewBroadcastService constructs the service.
func NewBroadcastService(store BroadcastStore, classifier *EventClassifier, logger *zap.Logger) *BroadcastService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = NewEventClassifier(nil, nil)
	}
	return &BroadcastService{store: store, classifier: classifier, logger: logger}
}

// Decide picks the corrective action for a source event and destination broadcast,
// either of which may be absent.
func Decide(source *models.SourceEvent, destination *models.Broadcast) models.BroadcastAction {
	switch {
	case source == nil && destination == nil:
		return models.BroadcastActionNone
	case source == nil:
		return models.BroadcastActionDelete
	case destination == nil:
		return models.BroadcastActionCreate
	case matches(*source, *destination):
		return models.BroadcastActionNone
	default:
		return models.BroadcastActionRecreate
	}
}

func matches(source models.SourceEvent, destination models.Broadcast) bool {
	return source.Title == destination.Title &&
		source.Start.Equal(destination.ScheduledStart) &&
		source.End.Equal(destination.ScheduledEnd)
}

// Inspect lists the non-complete broadcasts without mutating anything. When more
// than one exists the current broadcast is nil and every candidate is returned as extra.
func (s *BroadcastService) Inspect(ctx context.Context) (*models.Broadcast, []models.Broadcast, error) {
	broadcasts, err := s.store.ListBroadcasts(ctx)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "failed to list broadcasts")
	}
	open := make([]models.Broadcast, 0, len(broadcasts))
	for _, b := range broadcasts {
		if b.Lifecycle != models.LifecycleComplete {
			open = append(open, b)
		}
	}
	switch len(open) {
	case 0:
		return nil, nil, nil
	case 1:
		current := open[0]
		return &current, nil, nil
	default:
		return nil, open, nil
	}
}

// CurrentBroadcast returns the single non-complete broadcast. When several are found
// all of them are deleted, each subject to the lifecycle guard, and nil is returned.
func (s *BroadcastService) CurrentBroadcast(ctx context.Context, reporter Reporter) (*models.Broadcast, error) {
	reporter = reporterOrNop(reporter)
	current, extras, err := s.Inspect(ctx)
	if err != nil || len(extras) == 0 {
		return current, err
	}

	reporter.Report(Outcome{
		Level:     LevelInfo,
		Component: ComponentBroadcast,
		Action:    "self_heal",
		Message:   fmt.Sprintf("%d open broadcasts found, deleting all", len(extras)),
	})
	var errs []error
	for _, b := range extras {
		if _, err := s.guardedDelete(ctx, b, reporter); err != nil {
			errs = append(errs, err)
		}
	}
	return nil, errors.Join(errs...)
}

// Plan reports what Reconcile would do without mutating anything.
func (s *BroadcastService) Plan(source *models.SourceEvent, destination *models.Broadcast) models.BroadcastPlan {
	plan := models.BroadcastPlan{
		Action:      Decide(source, destination),
		Source:      source,
		Destination: destination,
	}
	if source != nil {
		plan.Privacy = models.PrivacyFor(s.classifier.Classify(*source))
	}
	return plan
}

// Reconcile decides and executes the corrective action. Transport failures are
// reported and returned; a refused delete is reported and is not an error.
func (s *BroadcastService) Reconcile(ctx context.Context, source *models.SourceEvent, destination *models.Broadcast, streamID string, reporter Reporter) (BroadcastOutcome, error) {
	reporter = reporterOrNop(reporter)
	action := Decide(source, destination)
	outcome := BroadcastOutcome{Action: action, Result: models.BroadcastResultNoop}

	switch action {
	case models.BroadcastActionNone:
		if destination != nil {
			outcome.BroadcastID = destination.ID
		}
		reporter.Report(Outcome{Level: LevelDebug, Component: ComponentBroadcast, Action: string(action), Message: "destination up to date"})
		return outcome, nil

	case models.BroadcastActionDelete:
		deleted, err := s.guardedDelete(ctx, *destination, reporter)
		outcome.Result = deleteResult(deleted, err)
		return outcome, err

	case models.BroadcastActionCreate:
		id, err := s.create(ctx, *source, streamID, reporter)
		outcome.BroadcastID = id
		outcome.Result = createResult(err)
		return outcome, err

	case models.BroadcastActionRecreate:
		deleted, err := s.guardedDelete(ctx, *destination, reporter)
		if err != nil || !deleted {
			outcome.Result = deleteResult(deleted, err)
			if err == nil {
				reporter.Report(Outcome{
					Level:     LevelWarn,
					Component: ComponentBroadcast,
					Action:    string(models.BroadcastActionCreate),
					Subject:   source.ID,
					Message:   "create skipped because the existing broadcast was kept",
				})
			}
			return outcome, err
		}
		id, err := s.create(ctx, *source, streamID, reporter)
		outcome.BroadcastID = id
		outcome.Result = createResult(err)
		return outcome, err
	}
	return outcome, fmt.Errorf("unknown broadcast action %q", action)
}

func (s *BroadcastService) guardedDelete(ctx context.Context, b models.Broadcast, reporter Reporter) (bool, error) {
	if !IsDeletable(b.Lifecycle) {
		msg := fmt.Sprintf("broadcast in %s state is not deletable", b.Lifecycle)
		if !b.Lifecycle.Known() {
			msg = fmt.Sprintf("unexpected lifecycle state %q, broadcast kept", b.Lifecycle)
		}
		reporter.Report(Outcome{
			Level:     LevelWarn,
			Component: ComponentBroadcast,
			Action:    "delete_skipped",
			Subject:   b.ID,
			Message:   msg,
		})
		return false, nil
	}
	if err := s.store.DeleteBroadcast(ctx, b.ID); err != nil {
		wrapped := appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "failed to delete broadcast "+b.ID)
		reporter.Report(Outcome{
			Level:     LevelError,
			Component: ComponentBroadcast,
			Action:    string(models.BroadcastActionDelete),
			Subject:   b.ID,
			Message:   "delete failed",
			Err:       err,
		})
		return false, wrapped
	}
	reporter.Report(Outcome{
		Level:     LevelInfo,
		Component: ComponentBroadcast,
		Action:    string(models.BroadcastActionDelete),
		Subject:   b.ID,
		Message:   "broadcast deleted",
	})
	return true, nil
}

func (s *BroadcastService) create(ctx context.Context, source models.SourceEvent, streamID string, reporter Reporter) (string, error) {
	privacy := models.PrivacyFor(s.classifier.Classify(source))
	id, err := s.store.CreateBroadcast(ctx, source.Title, source.Start, source.End, privacy)
	if err == nil && id == "" {
		err = errors.New("provider returned no broadcast id")
	}
	if err != nil {
		reporter.Report(Outcome{
			Level:     LevelError,
			Component: ComponentBroadcast,
			Action:    string(models.BroadcastActionCreate),
			Subject:   source.ID,
			Message:   "create failed, bind skipped",
			Err:       err,
		})
		return "", appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "failed to create broadcast")
	}
	reporter.Report(Outcome{
		Level:     LevelInfo,
		Component: ComponentBroadcast,
		Action:    string(models.BroadcastActionCreate),
		Subject:   id,
		Message:   fmt.Sprintf("broadcast %q created as %s", source.Title, privacy),
	})

	bindID, err := s.store.BindBroadcast(ctx, id, streamID)
	if err == nil && bindID == "" {
		err = errors.New("provider returned no bind id")
	}
	if err != nil {
		reporter.Report(Outcome{
			Level:     LevelError,
			Component: ComponentBroadcast,
			Action:    "bind",
			Subject:   id,
			Message:   "bind to stream failed",
			Err:       err,
		})
		return id, appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "failed to bind broadcast "+id)
	}
	reporter.Report(Outcome{
		Level:     LevelInfo,
		Component: ComponentBroadcast,
		Action:    "bind",
		Subject:   id,
		Message:   "bound to stream " + streamID,
	})
	return id, nil
}

func deleteResult(deleted bool, err error) models.BroadcastResult {
	switch {
	case err != nil:
		return models.BroadcastResultFailed
	case !deleted:
		return models.BroadcastResultDeleteSkipped
	default:
		return models.BroadcastResultApplied
	}
}

func createResult(err error) models.BroadcastResult {
	if err != nil {
		return models.BroadcastResultFailed
	}
	return models.BroadcastResultApplied
}
