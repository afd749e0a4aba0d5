package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quizscout/identity"
	"quizscout/models"
)

// Store is the persistence surface the venue pipeline needs.
// *storage.PostgresStore satisfies it.
type Store interface {
	GetVenueByFingerprint(ctx context.Context, fingerprint string) (*models.Venue, error)
	UpsertVenue(ctx context.Context, v *models.Venue) error
	UpsertEvent(ctx context.Context, e *models.Event) error
	GetEventSourceByURL(ctx context.Context, sourceID, sourceURL string) (*models.EventSource, error)
	UpsertEventSource(ctx context.Context, es *models.EventSource) error
	TouchEventSource(ctx context.Context, id uuid.UUID, at time.Time) error
	GetPerformerByName(ctx context.Context, sourceID, name string) (*models.Performer, error)
	UpsertPerformer(ctx context.Context, p *models.Performer) error
}

// VenueService fans one extracted venue record out to the venue, event,
// event-source and performer tables. Idempotent: safe to call repeatedly
// for the same record.
type VenueService struct {
	store Store
	now   func() time.Time
}

func NewVenueService(store Store) *VenueService {
	return &VenueService{store: store, now: time.Now}
}

// A record seen again within this window skips the full write-through
// unless forceUpdate is set. The last-seen timestamp is still touched.
const skipIfSeenWithin = time.Hour

// ErrInvalidRecord marks a record that can never be persisted as-is.
// Retrying won't change the data, so jobs treat it as terminal.
var ErrInvalidRecord = errors.New("invalid venue record")

// ProcessResult contains the outcome of processing one venue record.
// Venue is nil on the skip path.
type ProcessResult struct {
	VenueID       uuid.UUID
	EventID       uuid.UUID
	EventSourceID uuid.UUID
	PerformerID   *uuid.UUID
	Venue         *models.Venue
	IsNewVenue    bool
	Skipped       bool
}

// ProcessVenue upserts a RawVenue. The event source's last_seen_at is set
// to now on EVERY successful call, including the skip path: a source that
// still lists a venue has seen it, whether or not any field changed.
func (s *VenueService) ProcessVenue(ctx context.Context, sourceID string, raw *models.RawVenue, forceUpdate bool) (*ProcessResult, error) {
	if raw.SourceURL == "" {
		return nil, fmt.Errorf("%w: no source URL", ErrInvalidRecord)
	}
	if raw.Title == "" || raw.Address == "" {
		return nil, fmt.Errorf("%w: missing name or address (%s)", ErrInvalidRecord, raw.SourceURL)
	}
	// Events are keyed per (venue, day), so unlike a missing start time
	// there is no default to fall back to: a record without a weekday is
	// discarded.
	if raw.DayOfWeek < 1 || raw.DayOfWeek > 7 {
		return nil, fmt.Errorf("%w: day_of_week %d (%s)", ErrInvalidRecord, raw.DayOfWeek, raw.SourceURL)
	}

	now := s.now()
	result := &ProcessResult{}

	// 1. Recently-seen shortcut. Touch the timestamp and stop.
	existing, err := s.store.GetEventSourceByURL(ctx, sourceID, raw.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("get event source: %w", err)
	}
	if existing != nil && !forceUpdate && now.Sub(existing.LastSeenAt) < skipIfSeenWithin {
		if err := s.store.TouchEventSource(ctx, existing.ID, now); err != nil {
			return nil, fmt.Errorf("touch event source: %w", err)
		}
		result.EventSourceID = existing.ID
		result.EventID = existing.EventID
		result.Skipped = true
		return result, nil
	}

	// 2. Find or create the venue by fingerprint.
	fingerprint := identity.VenueFingerprint(raw.Title, raw.Address)

	venue, err := s.store.GetVenueByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("get venue: %w", err)
	}
	if venue == nil {
		venue = &models.Venue{
			ID:          uuid.New(),
			Fingerprint: fingerprint,
			CreatedAt:   now,
		}
		result.IsNewVenue = true
	}
	venue.Name = raw.Title
	venue.Address = raw.Address
	venue.Phone = raw.Phone
	venue.Website = raw.Website
	venue.UpdatedAt = now
	if err := s.store.UpsertVenue(ctx, venue); err != nil {
		return nil, fmt.Errorf("upsert venue: %w", err)
	}
	result.VenueID = venue.ID
	result.Venue = venue

	// 3. Performer, if the source names one.
	var performerID *uuid.UUID
	if raw.Performer != nil && raw.Performer.Name != "" {
		performer, err := s.store.GetPerformerByName(ctx, sourceID, raw.Performer.Name)
		if err != nil {
			return nil, fmt.Errorf("get performer: %w", err)
		}
		if performer == nil {
			performer = &models.Performer{
				ID:        uuid.New(),
				SourceID:  sourceID,
				Name:      raw.Performer.Name,
				CreatedAt: now,
			}
		}
		performer.UpdatedAt = now
		if err := s.store.UpsertPerformer(ctx, performer); err != nil {
			return nil, fmt.Errorf("upsert performer: %w", err)
		}
		performerID = &performer.ID
		result.PerformerID = performerID
	}

	// 4. Event, one per (venue, day).
	event := &models.Event{
		ID:          uuid.New(),
		VenueID:     venue.ID,
		DayOfWeek:   raw.DayOfWeek,
		StartTime:   raw.StartTime,
		FeeText:     raw.FeeText,
		Description: raw.Description,
		PerformerID: performerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.UpsertEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("upsert event: %w", err)
	}
	result.EventID = event.ID

	// 5. Event source. The upsert sets last_seen_at unconditionally.
	eventSource := &models.EventSource{
		ID:         uuid.New(),
		EventID:    event.ID,
		SourceID:   sourceID,
		SourceURL:  raw.SourceURL,
		LastSeenAt: now,
		Metadata:   raw.Data,
		CreatedAt:  now,
	}
	if err := s.store.UpsertEventSource(ctx, eventSource); err != nil {
		return nil, fmt.Errorf("upsert event source: %w", err)
	}
	result.EventSourceID = eventSource.ID

	return result, nil
}
