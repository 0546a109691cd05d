package store

import "time"

// Run statuses
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunPartial   = "partial"
	RunFailed    = "failed"
	RunDisabled  = "disabled"
)

// ImportRun records one resource import of a manifest file
type ImportRun struct {
	ID               string    `json:"id"`
	FileName         string    `json:"file_name"`
	Status           string    `json:"status"`
	Records          int       `json:"records"`
	Batches          int       `json:"batches"`
	BatchesCompleted int       `json:"batches_completed"`
	BatchesRejected  int       `json:"batches_rejected"`
	BatchesFailed    int       `json:"batches_failed"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// ImportBatch records the outcome of one uploaded batch
type ImportBatch struct {
	ID         int64  `json:"id"`
	RunID      string `json:"run_id"`
	BatchIndex int    `json:"batch_index"`
	Size       int    `json:"size"`
	Outcome    string `json:"outcome"` // "completed", "rejected", "failed"
	Message    string `json:"message,omitempty"`
	Attempts   int    `json:"attempts"`
	DurationMs int64  `json:"duration_ms"`
}
