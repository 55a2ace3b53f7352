package models

import (
	"strings"
	"time"
)

// LifecycleState is the progress stage of a destination broadcast.
type LifecycleState string

const (
	LifecycleReady    LifecycleState = "ready"
	LifecycleLive     LifecycleState = "live"
	LifecycleComplete LifecycleState = "complete"
)

// ParseLifecycleState normalises a provider status string. Values outside the
// known set are kept verbatim so callers can report them.
func ParseLifecycleState(raw string) LifecycleState {
	switch state := LifecycleState(strings.ToLower(strings.TrimSpace(raw))); state {
	case LifecycleReady, LifecycleLive, LifecycleComplete:
		return state
	default:
		return LifecycleState(raw)
	}
}

// Known reports whether the state is one of ready, live or complete.
func (s LifecycleState) Known() bool {
	switch s {
	case LifecycleReady, LifecycleLive, LifecycleComplete:
		return true
	}
	return false
}

// PrivacyStatus is the visibility of a created broadcast.
type PrivacyStatus string

const (
	PrivacyPublic   PrivacyStatus = "public"
	PrivacyUnlisted PrivacyStatus = "unlisted"
)

// PrivacyFor maps the private flag of an event onto a broadcast visibility.
func PrivacyFor(class EventClass) PrivacyStatus {
	if class.Private {
		return PrivacyUnlisted
	}
	return PrivacyPublic
}

// Broadcast is a schedulable live event on the destination platform.
type Broadcast struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	ScheduledStart time.Time      `json:"scheduled_start"`
	ScheduledEnd   time.Time      `json:"scheduled_end"`
	Lifecycle      LifecycleState `json:"lifecycle"`
}

// Stream is the reusable ingest endpoint a broadcast is bound to.
type Stream struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// BroadcastAction is the corrective action chosen for the destination.
type BroadcastAction string

const (
	BroadcastActionNone     BroadcastAction = "none"
	BroadcastActionCreate   BroadcastAction = "create"
	BroadcastActionDelete   BroadcastAction = "delete"
	BroadcastActionRecreate BroadcastAction = "recreate"
)

// BroadcastResult describes how the chosen action played out.
type BroadcastResult string

const (
	BroadcastResultNoop          BroadcastResult = "noop"
	BroadcastResultApplied       BroadcastResult = "applied"
	BroadcastResultDeleteSkipped BroadcastResult = "delete_skipped"
	BroadcastResultFailed        BroadcastResult = "failed"
	BroadcastResultPlanned       BroadcastResult = "planned"
)

// BroadcastPlan pairs a decision with the resources it was made from.
type BroadcastPlan struct {
	Action      BroadcastAction `json:"action"`
	Source      *SourceEvent    `json:"source,omitempty"`
	Destination *Broadcast      `json:"destination,omitempty"`
	Privacy     PrivacyStatus   `json:"privacy,omitempty"`
}
