package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IndexedVenue is one lightweight item discovered on a source's index page.
// It carries just enough to schedule a detail job; SourceURL is the stable
// per-venue key and must be present.
type IndexedVenue struct {
	Title     string          `json:"title"`
	SourceURL string          `json:"source_url"`
	Address   string          `json:"address,omitempty"`
	TimeText  string          `json:"time_text,omitempty"`
	Extra     json.RawMessage `json:"extra,omitempty"`
}

// RawVenue is the normalized intermediate record an extractor produces from
// one fetched detail page. It is never persisted directly; it is the input
// to the upsert pipeline. SourceURL is the idempotency key for finding the
// existing event source across scrapes.
type RawVenue struct {
	Title        string          `json:"title"`
	Address      string          `json:"address"`
	TimeText     string          `json:"time_text"`
	DayOfWeek    int             `json:"day_of_week"` // 1-7, Monday=1
	StartTime    string          `json:"start_time"`  // 24h "HH:MM"
	FeeText      string          `json:"fee_text,omitempty"`
	Description  string          `json:"description,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Website      string          `json:"website,omitempty"`
	Facebook     string          `json:"facebook,omitempty"`
	Instagram    string          `json:"instagram,omitempty"`
	HeroImageURL string          `json:"hero_image_url,omitempty"`
	SourceURL    string          `json:"source_url"`
	Performer    *RawPerformer   `json:"performer,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// RawPerformer is the optional host/performer sub-record of a RawVenue.
type RawPerformer struct {
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Venue is a physical location hosting quiz events. Identified by a
// fingerprint derived from normalized name and address.
type Venue struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	Fingerprint        string     `json:"fingerprint" db:"fingerprint"`
	Name               string     `json:"name" db:"name"`
	Address            string     `json:"address" db:"address"`
	City               string     `json:"city" db:"city"`
	Postcode           string     `json:"postcode" db:"postcode"`
	Lat                *float64   `json:"lat" db:"lat"`
	Lng                *float64   `json:"lng" db:"lng"`
	PlaceID            string     `json:"place_id" db:"place_id"`
	Phone              string     `json:"phone" db:"phone"`
	Website            string     `json:"website" db:"website"`
	PlacePhotosFetched *time.Time `json:"place_photos_fetched_at" db:"place_photos_fetched_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Event is a recurring quiz night at a venue.
type Event struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	VenueID     uuid.UUID  `json:"venue_id" db:"venue_id"`
	DayOfWeek   int        `json:"day_of_week" db:"day_of_week"` // 1-7, Monday=1
	StartTime   string     `json:"start_time" db:"start_time"`   // "HH:MM"
	FeeText     string     `json:"fee_text" db:"fee_text"`
	Description string     `json:"description" db:"description"`
	PerformerID *uuid.UUID `json:"performer_id" db:"performer_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// EventSource tracks which source last saw which event. LastSeenAt is
// updated on every successful scrape touch, whether or not any other field
// changed.
type EventSource struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	EventID    uuid.UUID       `json:"event_id" db:"event_id"`
	SourceID   string          `json:"source_id" db:"source_id"`
	SourceURL  string          `json:"source_url" db:"source_url"`
	LastSeenAt time.Time       `json:"last_seen_at" db:"last_seen_at"`
	Metadata   json.RawMessage `json:"metadata" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Performer is a quiz host, unique per (source, name).
type Performer struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	SourceID       string     `json:"source_id" db:"source_id"`
	Name           string     `json:"name" db:"name"`
	ProfileImageID *uuid.UUID `json:"profile_image_id" db:"profile_image_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
