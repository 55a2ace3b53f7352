package models

import "time"

// SyncTrigger records what started a run.
type SyncTrigger string

const (
	SyncTriggerCLI      SyncTrigger = "cli"
	SyncTriggerSchedule SyncTrigger = "schedule"
	SyncTriggerAPI      SyncTrigger = "api"
)

// SyncStatus is the terminal state of a run.
type SyncStatus string

const (
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusPartial   SyncStatus = "partial"
	SyncStatusFailed    SyncStatus = "failed"
)

// LedgerTally counts the ledger mutations of one pass.
type LedgerTally struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// SyncRun is one persisted synchronization pass.
type SyncRun struct {
	ID              string          `db:"id" json:"id"`
	Trigger         SyncTrigger     `db:"trigger" json:"trigger"`
	Status          SyncStatus      `db:"status" json:"status"`
	DryRun          bool            `db:"dry_run" json:"dry_run"`
	StartedAt       time.Time       `db:"started_at" json:"started_at"`
	FinishedAt      time.Time       `db:"finished_at" json:"finished_at"`
	LedgerCreated   int             `db:"ledger_created" json:"ledger_created"`
	LedgerUpdated   int             `db:"ledger_updated" json:"ledger_updated"`
	LedgerDeleted   int             `db:"ledger_deleted" json:"ledger_deleted"`
	LedgerFailed    int             `db:"ledger_failed" json:"ledger_failed"`
	BroadcastAction BroadcastAction `db:"broadcast_action" json:"broadcast_action"`
	BroadcastResult BroadcastResult `db:"broadcast_result" json:"broadcast_result"`
	Error           string          `db:"error" json:"error,omitempty"`
}

// SyncRunFilter narrows history listings.
type SyncRunFilter struct {
	Status   SyncStatus
	Trigger  SyncTrigger
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// RunReport is the in-memory result of a pass, with the plan when dry-run.
type RunReport struct {
	Run           SyncRun        `json:"run"`
	LedgerActions []LedgerAction `json:"ledger_actions,omitempty"`
	Broadcast     *BroadcastPlan `json:"broadcast,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// StatusSnapshot summarises the serving process.
type StatusSnapshot struct {
	RunsTotal                uint64    `json:"runs_total"`
	LastRun                  *SyncRun  `json:"last_run,omitempty"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
