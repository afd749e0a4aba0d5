package models

import (
	"encoding/json"
	"time"
)

// ScrapeRun records one execution of an index job for one source. Created
// when the job starts, completed exactly once when it finishes. A run is
// owned by the index job that created it and never shared across runs.
type ScrapeRun struct {
	ID              int64           `json:"id" db:"id"`
	SourceID        string          `json:"source_id" db:"source_id"`
	StartedAt       time.Time       `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at" db:"completed_at"`
	Success         *bool           `json:"success" db:"success"`
	TotalItemsFound int             `json:"total_items_found" db:"total_items_found"`
	ItemsProcessed  int             `json:"items_processed" db:"items_processed"`
	ErrorMessage    string          `json:"error_message" db:"error_message"`
	Metadata        json.RawMessage `json:"metadata" db:"metadata"`
}
