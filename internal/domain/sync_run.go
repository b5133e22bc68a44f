package domain

import "time"

// SyncStatus is the lifecycle state of a SyncRun.
// A run starts as SyncStatusRunning and ends exactly once as completed or failed.
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// Counters are the per-run record tallies.
type Counters struct {
	Processed int `gorm:"column:records_processed;not null;default:0" json:"records_processed"`
	Inserted  int `gorm:"column:records_inserted;not null;default:0" json:"records_inserted"`
	Updated   int `gorm:"column:records_updated;not null;default:0" json:"records_updated"`
	Failed    int `gorm:"column:records_failed;not null;default:0" json:"records_failed"`
}

// Add accumulates other into c.
func (c *Counters) Add(other Counters) {
	c.Processed += other.Processed
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.Failed += other.Failed
}

// SyncRun is one ingestion attempt of one table, as recorded in the ledger.
type SyncRun struct {
	ID           string     `gorm:"type:text;primaryKey" json:"id"`
	SyncType     string     `gorm:"type:text;not null;index" json:"sync_type"`
	FileName     string     `gorm:"type:text" json:"file_name"`
	Status       SyncStatus `gorm:"column:sync_status;type:text;not null;index" json:"status"`
	Counters     `gorm:"embedded"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    time.Time  `gorm:"not null;index" json:"started_at"`
	CompletedAt  *time.Time `gorm:"index" json:"completed_at,omitempty"`
}

// TableName returns the database table name for SyncRun.
func (SyncRun) TableName() string {
	return "data_sync_log"
}

// Finished reports whether the run has left the running state.
func (r *SyncRun) Finished() bool {
	return r.Status != SyncStatusRunning
}

// RunResult is the outcome of one tracked run, as returned to callers.
type RunResult struct {
	RunID       string     `json:"run_id"`
	SyncType    string     `json:"sync_type"`
	FileName    string     `json:"file_name"`
	Status      SyncStatus `json:"status"`
	Counters    `json:"counters"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Succeeded reports whether the run completed.
func (r RunResult) Succeeded() bool {
	return r.Status == SyncStatusCompleted
}
