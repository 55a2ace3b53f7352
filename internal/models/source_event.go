package models

import "time"

// SourceEvent is a scheduled session read from the classroom calendar.
type SourceEvent struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Updated        time.Time `json:"updated"`
	Notes          string    `json:"notes,omitempty"`
	OrganizerEmail string    `json:"organizer_email"`
}

// EventClass holds the flags derived from an event's notes.
type EventClass struct {
	Streaming bool `json:"streaming"`
	Private   bool `json:"private"`
}

// TimeWindow bounds a source calendar listing.
type TimeWindow struct {
	Min time.Time
	Max time.Time
}

// WindowAround returns the window [now-before, now+after] in whole days.
func WindowAround(now time.Time, beforeDays, afterDays int) TimeWindow {
	return TimeWindow{
		Min: now.AddDate(0, 0, -beforeDays),
		Max: now.AddDate(0, 0, afterDays),
	}
}
