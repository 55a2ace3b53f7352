package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrForeignLedgerEntry marks a ledger event that carries no fingerprint.
var ErrForeignLedgerEntry = errors.New("ledger entry has no original id")

// ErrInvalidLastUpdate marks a fingerprint whose original id is usable but whose
// last-update stamp is not. ParseFingerprint still returns the fingerprint, with a
// zero LastUpdate, so the entry is refreshed in place.
var ErrInvalidLastUpdate = errors.New("fingerprint last-update is not a timestamp")

// LedgerEntry mirrors one registered source event in the registration calendar.
type LedgerEntry struct {
	LedgerID     string    `json:"ledger_id"`
	OriginalID   string    `json:"original_id"`
	LastUpdate   time.Time `json:"last_update"`
	CreatorEmail string    `json:"creator_email"`
	Title        string    `json:"title"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

// Fingerprint is the change-tracking payload stored in a ledger event description.
type Fingerprint struct {
	OriginalID string    `json:"original-id"`
	LastUpdate time.Time `json:"last-update"`
	Creator    string    `json:"creator"`
}

// LedgerFields is the body written to the ledger for create and update.
type LedgerFields struct {
	Title       string
	Start       time.Time
	End         time.Time
	Fingerprint Fingerprint
}

// LedgerFieldsFor mirrors a source event into ledger fields.
func LedgerFieldsFor(event SourceEvent) LedgerFields {
	return LedgerFields{
		Title: event.Title,
		Start: event.Start,
		End:   event.End,
		Fingerprint: Fingerprint{
			OriginalID: event.ID,
			LastUpdate: event.Updated,
			Creator:    event.OrganizerEmail,
		},
	}
}

// Description encodes the fingerprint as the ledger event description.
func (f Fingerprint) Description() (string, error) {
	raw, err := json.Marshal(struct {
		OriginalID string `json:"original-id"`
		LastUpdate string `json:"last-update"`
		Creator    string `json:"creator"`
	}{
		OriginalID: f.OriginalID,
		LastUpdate: f.LastUpdate.UTC().Format(time.RFC3339Nano),
		Creator:    f.Creator,
	})
	if err != nil {
		return "", fmt.Errorf("encode fingerprint: %w", err)
	}
	return string(raw), nil
}

// ParseFingerprint decodes a ledger event description. Entries written by older
// releases used the "last_update" key, which is still accepted.
func ParseFingerprint(description string) (Fingerprint, error) {
	if description == "" {
		return Fingerprint{}, ErrForeignLedgerEntry
	}
	var raw struct {
		OriginalID       string `json:"original-id"`
		LastUpdate       string `json:"last-update"`
		LegacyLastUpdate string `json:"last_update"`
		Creator          string `json:"creator"`
	}
	if err := json.Unmarshal([]byte(description), &raw); err != nil {
		return Fingerprint{}, fmt.Errorf("decode fingerprint: %w", err)
	}
	if raw.OriginalID == "" {
		return Fingerprint{}, ErrForeignLedgerEntry
	}
	fp := Fingerprint{OriginalID: raw.OriginalID, Creator: raw.Creator}
	stamp := raw.LastUpdate
	if stamp == "" {
		stamp = raw.LegacyLastUpdate
	}
	if stamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return fp, fmt.Errorf("%w: %q", ErrInvalidLastUpdate, stamp)
		}
		fp.LastUpdate = ts
	}
	return fp, nil
}

// LedgerActionKind enumerates ledger mutations.
type LedgerActionKind string

const (
	LedgerActionCreate LedgerActionKind = "create"
	LedgerActionUpdate LedgerActionKind = "update"
	LedgerActionDelete LedgerActionKind = "delete"
)

// LedgerAction is one planned ledger mutation.
type LedgerAction struct {
	Kind       LedgerActionKind `json:"kind"`
	OriginalID string           `json:"original_id"`
	LedgerID   string           `json:"ledger_id,omitempty"`
	Title      string           `json:"title"`
	Reason     string           `json:"reason"`
	Fields     *LedgerFields    `json:"-"`
}
