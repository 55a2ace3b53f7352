package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/calendar2youtube/internal/models"
)

func sampleEvents() []models.SourceEvent {
	return []models.SourceEvent{
		{
			ID:             "evt-1",
			Title:          "Algebra",
			Start:          mustTime("2024-03-04T09:00:00Z"),
			End:            mustTime("2024-03-04T10:00:00Z"),
			Updated:        mustTime("2024-03-01T12:00:00Z"),
			Notes:          "[streaming]",
			OrganizerEmail: "instructor@example.com",
		},
		{
			ID:             "evt-2",
			Title:          "Geometry",
			Start:          mustTime("2024-03-05T09:00:00Z"),
			End:            mustTime("2024-03-05T10:00:00Z"),
			Updated:        mustTime("2024-03-01T13:00:00Z"),
			Notes:          "[streaming] [private]",
			OrganizerEmail: "instructor@example.com",
		},
	}
}

func TestPlanLedgerCreatesUpdatesDeletes(t *testing.T) {
	events := sampleEvents()
	snapshot := []models.LedgerEntry{
		{LedgerID: "l-2", OriginalID: "evt-2", LastUpdate: mustTime("2024-02-01T00:00:00Z")},
		{LedgerID: "l-gone", OriginalID: "evt-gone", LastUpdate: mustTime("2024-02-01T00:00:00Z")},
	}

	actions, anomalies := PlanLedger(snapshot, events)
	require.Len(t, actions, 3)
	assert.Empty(t, anomalies)

	assert.Equal(t, models.LedgerActionCreate, actions[0].Kind)
	assert.Equal(t, "evt-1", actions[0].OriginalID)
	require.NotNil(t, actions[0].Fields)
	assert.Equal(t, "instructor@example.com", actions[0].Fields.Fingerprint.Creator)
	assert.True(t, actions[0].Fields.Fingerprint.LastUpdate.Equal(events[0].Updated))

	assert.Equal(t, models.LedgerActionUpdate, actions[1].Kind)
	assert.Equal(t, "l-2", actions[1].LedgerID)

	assert.Equal(t, models.LedgerActionDelete, actions[2].Kind)
	assert.Equal(t, "l-gone", actions[2].LedgerID)
}

func TestPlanLedgerFingerprintComparedAsInstant(t *testing.T) {
	events := sampleEvents()[:1]
	jakarta := time.FixedZone("WIB", 7*3600)
	snapshot := []models.LedgerEntry{
		{LedgerID: "l-1", OriginalID: "evt-1", LastUpdate: events[0].Updated.In(jakarta)},
	}

	actions, _ := PlanLedger(snapshot, events)
	assert.Empty(t, actions)
}

func TestPlanLedgerUnreadableStampUpdatesInPlace(t *testing.T) {
	events := sampleEvents()[:1]
	fp, err := models.ParseFingerprint(`{"original-id":"evt-1","last-update":"yesterday"}`)
	require.ErrorIs(t, err, models.ErrInvalidLastUpdate)
	snapshot := []models.LedgerEntry{
		{LedgerID: "l-1", OriginalID: fp.OriginalID, LastUpdate: fp.LastUpdate},
	}

	actions, anomalies := PlanLedger(snapshot, events)
	assert.Empty(t, anomalies)
	require.Len(t, actions, 1)
	assert.Equal(t, models.LedgerActionUpdate, actions[0].Kind)
	assert.Equal(t, "l-1", actions[0].LedgerID)
}

func TestPlanLedgerAnomalies(t *testing.T) {
	events := append(sampleEvents()[:1], sampleEvents()[0])
	snapshot := []models.LedgerEntry{
		{LedgerID: "foreign"},
		{LedgerID: "l-1", OriginalID: "evt-1", LastUpdate: events[0].Updated},
		{LedgerID: "l-1b", OriginalID: "evt-1", LastUpdate: events[0].Updated},
	}

	actions, anomalies := PlanLedger(snapshot, events)
	require.Len(t, actions, 1)
	assert.Equal(t, models.LedgerActionDelete, actions[0].Kind)
	assert.Equal(t, "l-1b", actions[0].LedgerID)
	require.Len(t, anomalies, 2)
	assert.Equal(t, "foreign", anomalies[0].Subject)
	assert.Equal(t, "evt-1", anomalies[1].Subject)
}

func TestLedgerSynchronizeIdempotent(t *testing.T) {
	store := &ledgerStoreStub{}
	svc := NewLedgerService(store, nil)
	events := sampleEvents()

	tally, err := svc.Synchronize(context.Background(), events, nil)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerTally{Created: 2}, tally)
	assert.Equal(t, 1, store.listCalls)

	before := store.mutations()
	tally, err = svc.Synchronize(context.Background(), events, nil)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerTally{}, tally)
	assert.Equal(t, before, store.mutations())
}

func TestLedgerSynchronizeConvergesOnRemovedEvent(t *testing.T) {
	store := &ledgerStoreStub{}
	svc := NewLedgerService(store, nil)
	events := sampleEvents()

	_, err := svc.Synchronize(context.Background(), events, nil)
	require.NoError(t, err)

	tally, err := svc.Synchronize(context.Background(), events[:1], nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Deleted)
	require.Len(t, store.deleted, 1)
	assert.Equal(t, "ledger-2", store.deleted[0])

	tally, err = svc.Synchronize(context.Background(), events[:1], nil)
	require.NoError(t, err)
	assert.Equal(t, 0, tally.Deleted)
	assert.Len(t, store.deleted, 1)
}

func TestLedgerSynchronizeUpdatesChangedEvent(t *testing.T) {
	store := &ledgerStoreStub{}
	svc := NewLedgerService(store, nil)
	events := sampleEvents()
	_, err := svc.Synchronize(context.Background(), events, nil)
	require.NoError(t, err)

	events[0].Title = "Algebra II"
	events[0].Updated = events[0].Updated.Add(time.Hour)
	tally, err := svc.Synchronize(context.Background(), events, nil)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerTally{Updated: 1}, tally)
	assert.Equal(t, []string{"ledger-1"}, store.updated)
	assert.Equal(t, "Algebra II", store.entries[0].Title)
}

func TestLedgerSynchronizeContinuesAfterFailure(t *testing.T) {
	boom := errors.New("backend unavailable")
	store := &ledgerStoreStub{createErr: map[string]error{"evt-1": boom}}
	svc := NewLedgerService(store, nil)
	recorder := NewRunRecorder()

	tally, err := svc.Synchronize(context.Background(), sampleEvents(), recorder)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, tally.Created)
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, 1, recorder.Count(ComponentLedger, "create", LevelError))
	assert.Len(t, recorder.Warnings(), 1)

	store.createErr = nil
	tally, err = svc.Synchronize(context.Background(), sampleEvents(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerTally{Created: 1}, tally)
}

func TestLedgerSynchronizeListFailure(t *testing.T) {
	store := &ledgerStoreStub{listErr: errors.New("timeout")}
	svc := NewLedgerService(store, nil)

	_, err := svc.Synchronize(context.Background(), sampleEvents(), nil)
	require.Error(t, err)
	assert.Zero(t, store.mutations())
}

func TestLedgerPlanDoesNotMutate(t *testing.T) {
	store := &ledgerStoreStub{}
	svc := NewLedgerService(store, nil)

	actions, err := svc.Plan(context.Background(), sampleEvents(), nil)
	require.NoError(t, err)
	assert.Len(t, actions, 2)
	assert.Zero(t, store.mutations())
}
