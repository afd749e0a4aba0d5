package models

import (
	"encoding/json"
	"time"
)

// Queue names. Index and detail jobs run on separate queues so a backlogged
// detail queue never starves new discovery.
const (
	QueueIndex  = "index"
	QueueDetail = "detail"
)

// Job types
const (
	JobTypeIndex  = "index_venues"
	JobTypeDetail = "venue_detail"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusDiscarded JobStatus = "discarded"
)

// Job is one row in the SQLite-backed job queue.
type Job struct {
	ID          int64           `json:"id" db:"id"`
	Queue       string          `json:"queue" db:"queue"`
	Type        string          `json:"type" db:"type"`
	Args        json.RawMessage `json:"args" db:"args"`
	Status      JobStatus       `json:"status" db:"status"`
	Attempts    int             `json:"attempts" db:"attempts"`
	MaxAttempts int             `json:"max_attempts" db:"max_attempts"`
	UniqueKey   string          `json:"unique_key" db:"unique_key"`
	ScheduledAt time.Time       `json:"scheduled_at" db:"scheduled_at"`
	LastError   string          `json:"last_error" db:"last_error"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	CompletedAt *time.Time      `json:"completed_at" db:"completed_at"`
}

// IndexJobArgs invokes one index job for one source.
type IndexJobArgs struct {
	SourceID           string `json:"source_id"`
	Limit              int    `json:"limit,omitempty"`
	ForceRefreshImages bool   `json:"force_refresh_images,omitempty"`
	ForceUpdate        bool   `json:"force_update,omitempty"`
}

// DetailJobArgs invokes one detail job for one discovered venue. Force flags
// are carried explicitly here so they never leak between jobs sharing a
// worker.
type DetailJobArgs struct {
	SourceID           string       `json:"source_id"`
	RunID              int64        `json:"run_id"`
	Item               IndexedVenue `json:"item"`
	ForceRefreshImages bool         `json:"force_refresh_images,omitempty"`
	ForceUpdate        bool         `json:"force_update,omitempty"`
}
