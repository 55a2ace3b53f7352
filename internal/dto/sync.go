package dto

import "github.com/noah-isme/calendar2youtube/internal/models"

// TriggerSyncRequest asks the serving process to queue a run.
type TriggerSyncRequest struct {
	DryRun bool `json:"dry_run"`
}

// TriggerSyncResponse acknowledges a queued run.
type TriggerSyncResponse struct {
	JobID   string `json:"job_id"`
	Trigger string `json:"trigger"`
	DryRun  bool   `json:"dry_run"`
	Pending int    `json:"pending"`
}

// ListRunsQuery filters the run history listing.
type ListRunsQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=succeeded partial failed"`
	Trigger  string `form:"trigger" validate:"omitempty,oneof=cli schedule api"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=200"`
}

// Filter converts the query into a repository filter.
func (q ListRunsQuery) Filter() models.SyncRunFilter {
	return models.SyncRunFilter{
		Status:   models.SyncStatus(q.Status),
		Trigger:  models.SyncTrigger(q.Trigger),
		Page:     q.Page,
		PageSize: q.PageSize,
	}
}

// ExportRunsQuery selects the export format and filters.
type ExportRunsQuery struct {
	ListRunsQuery
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}

// StatusResponse describes the serving process.
type StatusResponse struct {
	models.StatusSnapshot
	Pending    int               `json:"pending"`
	Schedule   string            `json:"schedule,omitempty"`
	NextRun    string            `json:"next_run,omitempty"`
	LastReport *models.RunReport `json:"last_report,omitempty"`
}
