package models

import (
	"time"

	"github.com/google/uuid"
)

// Image owner kinds
const (
	ImageOwnerVenue     = "venue"
	ImageOwnerPerformer = "performer"
	ImageOwnerPlace     = "place"
)

// ImageRecord is one stored image derivation tied to an owning entity.
// Filename is deterministic from SourceURL so re-scraping the same URL
// reuses the same file instead of downloading again.
type ImageRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OwnerType  string    `json:"owner_type" db:"owner_type"`
	OwnerID    uuid.UUID `json:"owner_id" db:"owner_id"`
	SourceURL  string    `json:"source_url" db:"source_url"`
	Filename   string    `json:"filename" db:"filename"`
	StoredPath string    `json:"stored_path" db:"stored_path"`
	FetchedAt  time.Time `json:"fetched_at" db:"fetched_at"`
}
