package google

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"

	"github.com/noah-isme/calendar2youtube/internal/models"
)

const calendarPageSize = 250

// SourceCalendar reads the classroom calendar.
type SourceCalendar struct {
	svc        *calendar.Service
	calendarID string
	logger     *zap.Logger
}

// NewSourceCalendar constructs a reader for calendarID.
func NewSourceCalendar(svc *calendar.Service, calendarID string, logger *zap.Logger) *SourceCalendar {
	return &SourceCalendar{svc: svc, calendarID: calendarID, logger: loggerOrNop(logger)}
}

// ListSourceEvents returns timed events overlapping the window, ordered by start.
// All-day events are skipped. At most maxResults events are returned.
func (c *SourceCalendar) ListSourceEvents(ctx context.Context, window models.TimeWindow, maxResults int) ([]models.SourceEvent, error) {
	pageSize := int64(calendarPageSize)
	if maxResults > 0 && maxResults < calendarPageSize {
		pageSize = int64(maxResults)
	}

	var (
		events    []models.SourceEvent
		pageToken string
	)
	for {
		call := c.svc.Events.List(c.calendarID).
			TimeMin(formatTime(window.Min)).
			TimeMax(formatTime(window.Max)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list events in %s: %w", c.calendarID, err)
		}
		for _, item := range page.Items {
			event, ok, err := sourceEventFrom(item)
			if err != nil {
				return nil, err
			}
			if !ok {
				c.logger.Debug("skipping all-day event", zap.String("event_id", item.Id))
				continue
			}
			events = append(events, event)
			if maxResults > 0 && len(events) >= maxResults {
				return events, nil
			}
		}
		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

func sourceEventFrom(item *calendar.Event) (models.SourceEvent, bool, error) {
	if item.Start == nil || item.End == nil || item.Start.DateTime == "" || item.End.DateTime == "" {
		return models.SourceEvent{}, false, nil
	}
	start, err := parseTime(item.Start.DateTime)
	if err != nil {
		return models.SourceEvent{}, false, fmt.Errorf("parse start of %s: %w", item.Id, err)
	}
	end, err := parseTime(item.End.DateTime)
	if err != nil {
		return models.SourceEvent{}, false, fmt.Errorf("parse end of %s: %w", item.Id, err)
	}
	updated, err := parseTime(item.Updated)
	if err != nil {
		return models.SourceEvent{}, false, fmt.Errorf("parse updated of %s: %w", item.Id, err)
	}
	event := models.SourceEvent{
		ID:      item.Id,
		Title:   item.Summary,
		Start:   start,
		End:     end,
		Updated: updated,
		Notes:   item.Description,
	}
	if item.Organizer != nil {
		event.OrganizerEmail = item.Organizer.Email
	}
	return event, true, nil
}

// LedgerCalendar stores fingerprinted mirrors of source events.
type LedgerCalendar struct {
	svc        *calendar.Service
	calendarID string
	logger     *zap.Logger
}

// NewLedgerCalendar constructs a ledger store over calendarID.
func NewLedgerCalendar(svc *calendar.Service, calendarID string, logger *zap.Logger) *LedgerCalendar {
	return &LedgerCalendar{svc: svc, calendarID: calendarID, logger: loggerOrNop(logger)}
}

// ListLedgerEntries returns every ledger event. Entries whose description holds
// no usable fingerprint come back with an empty OriginalID.
func (l *LedgerCalendar) ListLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	var (
		entries   []models.LedgerEntry
		pageToken string
	)
	for {
		call := l.svc.Events.List(l.calendarID).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(calendarPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list ledger events in %s: %w", l.calendarID, err)
		}
		for _, item := range page.Items {
			entries = append(entries, l.entryFrom(item))
		}
		if page.NextPageToken == "" {
			return entries, nil
		}
		pageToken = page.NextPageToken
	}
}

func (l *LedgerCalendar) entryFrom(item *calendar.Event) models.LedgerEntry {
	entry := models.LedgerEntry{LedgerID: item.Id, Title: item.Summary}
	if item.Start != nil {
		entry.Start, _ = parseTime(item.Start.DateTime)
	}
	if item.End != nil {
		entry.End, _ = parseTime(item.End.DateTime)
	}
	fp, err := models.ParseFingerprint(item.Description)
	if errors.Is(err, models.ErrInvalidLastUpdate) {
		l.logger.Warn("ledger fingerprint with unreadable last-update", zap.String("ledger_id", item.Id), zap.Error(err))
		err = nil
	}
	if err != nil {
		l.logger.Debug("ledger event without fingerprint", zap.String("ledger_id", item.Id), zap.Error(err))
		return entry
	}
	entry.OriginalID = fp.OriginalID
	entry.LastUpdate = fp.LastUpdate
	entry.CreatorEmail = fp.Creator
	return entry
}

// CreateLedgerEntry inserts a ledger event and returns its id.
func (l *LedgerCalendar) CreateLedgerEntry(ctx context.Context, fields models.LedgerFields) (string, error) {
	body, err := ledgerEvent(fields)
	if err != nil {
		return "", err
	}
	created, err := l.svc.Events.Insert(l.calendarID, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert ledger event for %s: %w", fields.Fingerprint.OriginalID, err)
	}
	return created.Id, nil
}

// UpdateLedgerEntry replaces the ledger event in place.
func (l *LedgerCalendar) UpdateLedgerEntry(ctx context.Context, ledgerID string, fields models.LedgerFields) error {
	body, err := ledgerEvent(fields)
	if err != nil {
		return err
	}
	if _, err := l.svc.Events.Update(l.calendarID, ledgerID, body).Context(ctx).Do(); err != nil {
		return fmt.Errorf("update ledger event %s: %w", ledgerID, err)
	}
	return nil
}

// DeleteLedgerEntry removes the ledger event. An already removed event is not an error.
func (l *LedgerCalendar) DeleteLedgerEntry(ctx context.Context, ledgerID string) error {
	if err := l.svc.Events.Delete(l.calendarID, ledgerID).Context(ctx).Do(); err != nil {
		if isGone(err) {
			l.logger.Debug("ledger event already gone", zap.String("ledger_id", ledgerID))
			return nil
		}
		return fmt.Errorf("delete ledger event %s: %w", ledgerID, err)
	}
	return nil
}

func ledgerEvent(fields models.LedgerFields) (*calendar.Event, error) {
	description, err := fields.Fingerprint.Description()
	if err != nil {
		return nil, err
	}
	return &calendar.Event{
		Summary:     fields.Title,
		Description: description,
		Start:       &calendar.EventDateTime{DateTime: formatTime(fields.Start)},
		End:         &calendar.EventDateTime{DateTime: formatTime(fields.End)},
	}, nil
}
