package models

import "time"

// BatchRun records one ingest batch and its report
type BatchRun struct {
	ID        string `json:"id" db:"id"`
	Directory string `json:"directory" db:"directory"`
	Status    string `json:"status" db:"status"` // running, completed, failed

	// Counters copied from the report
	Files      int `json:"files" db:"files"`
	Accepted   int `json:"accepted" db:"accepted"`
	Rejected   int `json:"rejected" db:"rejected"`
	Duplicates int `json:"duplicates" db:"duplicates"`
	Stored     int `json:"stored" db:"stored"`
	Invalid    int `json:"invalid" db:"invalid"`
	Failed     int `json:"failed" db:"failed"`
	Events     int `json:"events" db:"events"`

	// Results
	ReportJSON   string `json:"report,omitempty" db:"report_json"` // Full batch report
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	StartedAt  time.Time  `json:"started_at" db:"started_ms"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_ms"`
}

// BatchStatus constants
const (
	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"
)

// BatchFilter represents filter parameters for listing batch runs
type BatchFilter struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}
