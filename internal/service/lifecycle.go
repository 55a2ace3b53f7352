package service

import "github.com/noah-isme/calendar2youtube/internal/models"

// IsDeletable reports whether a broadcast in the given lifecycle state may be deleted.
// Only ready broadcasts qualify; unrecognised states are never deletable.
func IsDeletable(state models.LifecycleState) bool {
	switch state {
	case models.LifecycleReady:
		return true
	case models.LifecycleLive, models.LifecycleComplete:
		return false
	default:
		return false
	}
}
