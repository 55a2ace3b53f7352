package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/calendar2youtube/internal/models"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
)

type syncFixture struct {
	source     *sourceCalendarStub
	streams    *streamResolverStub
	ledger     *ledgerStoreStub
	broadcasts *broadcastStoreStub
	history    *syncRunWriterStub
	metrics    *MetricsService
	svc        *SyncService
}

var fixtureNow = mustTime("2024-03-04T08:00:00Z")

func newSyncFixture(events []models.SourceEvent) *syncFixture {
	f := &syncFixture{
		source:     &sourceCalendarStub{events: events},
		streams:    &streamResolverStub{id: "stream-1"},
		ledger:     &ledgerStoreStub{},
		broadcasts: &broadcastStoreStub{createID: "bc-new", bindID: "bind-1"},
		history:    &syncRunWriterStub{},
		metrics:    NewMetricsService(),
	}
	classifier := NewEventClassifier([]string{"[streaming]"}, []string{"[private]"})
	f.svc = NewSyncService(
		f.source,
		f.streams,
		classifier,
		NewLedgerService(f.ledger, nil),
		NewBroadcastService(f.broadcasts, classifier, nil),
		f.history,
		f.metrics,
		SyncOptions{StreamTitle: "Classroom", PreviousDays: 1, FutureDays: 30, MaxResults: 50, NextEventDays: 7},
		nil,
	).WithClock(func() time.Time { return fixtureNow })
	return f
}

func streamingEvents() []models.SourceEvent {
	return []models.SourceEvent{
		{ID: "later", Title: "Chemistry", Start: fixtureNow.Add(48 * time.Hour), End: fixtureNow.Add(49 * time.Hour), Updated: fixtureNow, Notes: "[streaming]"},
		{ID: "soon", Title: "Physics", Start: fixtureNow.Add(time.Hour), End: fixtureNow.Add(2 * time.Hour), Updated: fixtureNow, Notes: "[streaming] [private]"},
		{ID: "offline", Title: "Lab", Start: fixtureNow.Add(30 * time.Minute), End: fixtureNow.Add(time.Hour), Updated: fixtureNow},
	}
}

func TestSyncRunHappyPath(t *testing.T) {
	f := newSyncFixture(streamingEvents())

	report, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, false)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSucceeded, report.Run.Status)
	assert.Equal(t, 2, report.Run.LedgerCreated)
	assert.Equal(t, models.BroadcastActionCreate, report.Run.BroadcastAction)
	assert.Equal(t, models.BroadcastResultApplied, report.Run.BroadcastResult)

	assert.Equal(t, "Classroom", f.streams.title)
	assert.Equal(t, 50, f.source.maxResults)
	assert.True(t, f.source.window.Min.Equal(fixtureNow.AddDate(0, 0, -1)))
	assert.True(t, f.source.window.Max.Equal(fixtureNow.AddDate(0, 0, 30)))

	require.Len(t, f.broadcasts.creates, 1)
	assert.Equal(t, "Physics", f.broadcasts.creates[0].Title)
	assert.Equal(t, models.PrivacyUnlisted, f.broadcasts.creates[0].Privacy)

	require.Len(t, f.history.runs, 1)
	assert.Equal(t, report.Run.ID, f.history.runs[0].ID)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().RunsTotal)
}

func TestSyncRunSecondPassIsQuiet(t *testing.T) {
	f := newSyncFixture(streamingEvents())

	_, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, false)
	require.NoError(t, err)

	f.broadcasts.broadcasts = []models.Broadcast{{
		ID:             "bc-new",
		Title:          "Physics",
		ScheduledStart: fixtureNow.Add(time.Hour),
		ScheduledEnd:   fixtureNow.Add(2 * time.Hour),
		Lifecycle:      models.LifecycleReady,
	}}
	mutations := f.ledger.mutations()

	report, err := f.svc.Run(context.Background(), models.SyncTriggerSchedule, false)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSucceeded, report.Run.Status)
	assert.Equal(t, mutations, f.ledger.mutations())
	assert.Equal(t, models.BroadcastActionNone, report.Run.BroadcastAction)
	assert.Len(t, f.broadcasts.creates, 1)
}

func TestSyncRunStreamNotFoundIsFatal(t *testing.T) {
	f := newSyncFixture(streamingEvents())
	f.streams.id = ""

	report, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, false)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrStreamNotFound))
	assert.Equal(t, models.SyncStatusFailed, report.Run.Status)
	assert.Zero(t, f.ledger.listCalls)
	assert.Empty(t, f.broadcasts.calls)
	require.Len(t, f.history.runs, 1)
	assert.Equal(t, models.SyncStatusFailed, f.history.runs[0].Status)
}

func TestSyncRunMissingTitleIsConfigurationError(t *testing.T) {
	f := newSyncFixture(nil)
	f.svc.opts.StreamTitle = ""

	_, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, false)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConfiguration))
}

func TestSyncRunSourceFailureIsFatal(t *testing.T) {
	f := newSyncFixture(nil)
	f.source.err = errors.New("calendar down")

	report, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, false)
	require.Error(t, err)
	assert.Equal(t, models.SyncStatusFailed, report.Run.Status)
	assert.Zero(t, f.ledger.listCalls)
}

func TestSyncRunLedgerFailureIsPartial(t *testing.T) {
	f := newSyncFixture(streamingEvents())
	f.ledger.listErr = errors.New("ledger calendar unavailable")

	report, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, false)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPartial, report.Run.Status)
	assert.NotEmpty(t, report.Run.Error)
	assert.Equal(t, models.BroadcastActionCreate, report.Run.BroadcastAction)
}

func TestSyncRunBroadcastListFailureSkipsReconcile(t *testing.T) {
	f := newSyncFixture(streamingEvents())
	f.broadcasts.listErr = errors.New("youtube down")

	report, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, false)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPartial, report.Run.Status)
	assert.Equal(t, models.BroadcastResultFailed, report.Run.BroadcastResult)
	assert.Equal(t, []string{"list"}, f.broadcasts.calls)
}

func TestSyncRunSelfHealFailureSkipsReconcile(t *testing.T) {
	f := newSyncFixture(streamingEvents())
	f.broadcasts.broadcasts = []models.Broadcast{
		{ID: "bc-1", Lifecycle: models.LifecycleReady},
		{ID: "bc-2", Lifecycle: models.LifecycleReady},
	}
	f.broadcasts.deleteErr = errors.New("quota exceeded")

	report, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, false)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPartial, report.Run.Status)
	assert.Equal(t, models.BroadcastResultFailed, report.Run.BroadcastResult)
	assert.Equal(t, models.BroadcastActionNone, report.Run.BroadcastAction)
	assert.Equal(t, []string{"list", "delete", "delete"}, f.broadcasts.calls)
	assert.Empty(t, f.broadcasts.creates)
	assert.Equal(t, 2, report.Run.LedgerCreated)
}

func TestSyncRunDeletesWhenNoUpcomingEvent(t *testing.T) {
	f := newSyncFixture(nil)
	f.broadcasts.broadcasts = []models.Broadcast{{ID: "bc-old", Lifecycle: models.LifecycleReady}}

	report, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, false)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastActionDelete, report.Run.BroadcastAction)
	assert.Equal(t, []string{"bc-old"}, f.broadcasts.deletes)
}

func TestSyncRunDryRun(t *testing.T) {
	f := newSyncFixture(streamingEvents())
	f.broadcasts.broadcasts = []models.Broadcast{
		{ID: "bc-1", Lifecycle: models.LifecycleReady},
		{ID: "bc-2", Lifecycle: models.LifecycleReady},
	}

	report, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, true)
	require.NoError(t, err)
	assert.True(t, report.Run.DryRun)
	assert.Len(t, report.LedgerActions, 2)
	require.NotNil(t, report.Broadcast)
	assert.Equal(t, models.BroadcastActionCreate, report.Broadcast.Action)
	assert.Equal(t, models.BroadcastResultPlanned, report.Run.BroadcastResult)
	assert.Zero(t, f.ledger.mutations())
	assert.Equal(t, []string{"list"}, f.broadcasts.calls)
}

func TestSyncRunDryRunListFailureIsFailed(t *testing.T) {
	f := newSyncFixture(streamingEvents())
	f.ledger.listErr = errors.New("calendar down")

	report, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, true)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, models.SyncStatusFailed, report.Run.Status)

	f = newSyncFixture(streamingEvents())
	f.broadcasts.listErr = errors.New("youtube down")

	report, err = f.svc.Run(context.Background(), models.SyncTriggerCLI, true)
	require.Error(t, err)
	assert.Equal(t, models.SyncStatusFailed, report.Run.Status)
	assert.Zero(t, f.ledger.mutations())
}

func TestSyncRunHistoryFailureDoesNotFailRun(t *testing.T) {
	f := newSyncFixture(streamingEvents())
	f.history.err = errors.New("db down")

	report, err := f.svc.Run(context.Background(), models.SyncTriggerCLI, false)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSucceeded, report.Run.Status)
}

func TestNextStreamingEvent(t *testing.T) {
	now := fixtureNow
	events := []models.SourceEvent{
		{ID: "ended", Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour)},
		{ID: "far", Start: now.AddDate(0, 0, 8), End: now.AddDate(0, 0, 8).Add(time.Hour)},
		{ID: "later", Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour)},
		{ID: "ongoing", Start: now.Add(-30 * time.Minute), End: now.Add(30 * time.Minute)},
	}

	next := NextStreamingEvent(events, now, 7)
	require.NotNil(t, next)
	assert.Equal(t, "ongoing", next.ID)

	assert.Nil(t, NextStreamingEvent(events[:2], now, 7))
}
