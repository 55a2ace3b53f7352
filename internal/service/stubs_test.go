package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/calendar2youtube/internal/models"
)

type ledgerStoreStub struct {
	entries   []models.LedgerEntry
	listErr   error
	createErr map[string]error
	updateErr map[string]error
	deleteErr map[string]error

	listCalls int
	created   []models.LedgerFields
	updated   []string
	deleted   []string
	nextID    int
}

func (s *ledgerStoreStub) ListLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.LedgerEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *ledgerStoreStub) CreateLedgerEntry(ctx context.Context, fields models.LedgerFields) (string, error) {
	if err := s.createErr[fields.Fingerprint.OriginalID]; err != nil {
		return "", err
	}
	s.nextID++
	id := fmt.Sprintf("ledger-%d", s.nextID)
	s.created = append(s.created, fields)
	s.entries = append(s.entries, models.LedgerEntry{
		LedgerID:     id,
		OriginalID:   fields.Fingerprint.OriginalID,
		LastUpdate:   fields.Fingerprint.LastUpdate,
		CreatorEmail: fields.Fingerprint.Creator,
		Title:        fields.Title,
		Start:        fields.Start,
		End:          fields.End,
	})
	return id, nil
}

func (s *ledgerStoreStub) UpdateLedgerEntry(ctx context.Context, ledgerID string, fields models.LedgerFields) error {
	if err := s.updateErr[ledgerID]; err != nil {
		return err
	}
	s.updated = append(s.updated, ledgerID)
	for i := range s.entries {
		if s.entries[i].LedgerID == ledgerID {
			s.entries[i].LastUpdate = fields.Fingerprint.LastUpdate
			s.entries[i].Title = fields.Title
			s.entries[i].Start = fields.Start
			s.entries[i].End = fields.End
		}
	}
	return nil
}

func (s *ledgerStoreStub) DeleteLedgerEntry(ctx context.Context, ledgerID string) error {
	if err := s.deleteErr[ledgerID]; err != nil {
		return err
	}
	s.deleted = append(s.deleted, ledgerID)
	kept := s.entries[:0]
	for _, entry := range s.entries {
		if entry.LedgerID != ledgerID {
			kept = append(kept, entry)
		}
	}
	s.entries = kept
	return nil
}

func (s *ledgerStoreStub) mutations() int {
	return len(s.created) + len(s.updated) + len(s.deleted)
}

type createCall struct {
	Title   string
	Start   time.Time
	End     time.Time
	Privacy models.PrivacyStatus
}

type broadcastStoreStub struct {
	broadcasts []models.Broadcast
	listErr    error
	createID   string
	createErr  error
	deleteErr  error
	bindID     string
	bindErr    error

	calls   []string
	creates []createCall
	deletes []string
	binds   [][2]string
}

func (s *broadcastStoreStub) ListBroadcasts(ctx context.Context) ([]models.Broadcast, error) {
	s.calls = append(s.calls, "list")
	return s.broadcasts, s.listErr
}

func (s *broadcastStoreStub) CreateBroadcast(ctx context.Context, title string, start, end time.Time, privacy models.PrivacyStatus) (string, error) {
	s.calls = append(s.calls, "create")
	s.creates = append(s.creates, createCall{Title: title, Start: start, End: end, Privacy: privacy})
	return s.createID, s.createErr
}

func (s *broadcastStoreStub) DeleteBroadcast(ctx context.Context, broadcastID string) error {
	s.calls = append(s.calls, "delete")
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes = append(s.deletes, broadcastID)
	return nil
}

func (s *broadcastStoreStub) BindBroadcast(ctx context.Context, broadcastID, streamID string) (string, error) {
	s.calls = append(s.calls, "bind")
	s.binds = append(s.binds, [2]string{broadcastID, streamID})
	return s.bindID, s.bindErr
}

type streamResolverStub struct {
	id    string
	err   error
	title string
}

func (s *streamResolverStub) ResolveStreamID(ctx context.Context, title string) (string, error) {
	s.title = title
	return s.id, s.err
}

type sourceCalendarStub struct {
	events     []models.SourceEvent
	err        error
	window     models.TimeWindow
	maxResults int
}

func (s *sourceCalendarStub) ListSourceEvents(ctx context.Context, window models.TimeWindow, maxResults int) ([]models.SourceEvent, error) {
	s.window = window
	s.maxResults = maxResults
	return s.events, s.err
}

type syncRunWriterStub struct {
	runs []models.SyncRun
	err  error
}

func (s *syncRunWriterStub) Create(ctx context.Context, run *models.SyncRun) error {
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, *run)
	return nil
}

func mustTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}
