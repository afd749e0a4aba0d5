package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quizscout/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Venues
// =============================================================================

func (s *PostgresStore) UpsertVenue(ctx context.Context, v *models.Venue) error {
	query := `
		INSERT INTO venues (
			id, fingerprint, name, address, city, postcode, lat, lng,
			place_id, phone, website, place_photos_fetched_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (fingerprint) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			city = COALESCE(NULLIF(EXCLUDED.city, ''), venues.city),
			postcode = COALESCE(NULLIF(EXCLUDED.postcode, ''), venues.postcode),
			lat = COALESCE(EXCLUDED.lat, venues.lat),
			lng = COALESCE(EXCLUDED.lng, venues.lng),
			place_id = COALESCE(NULLIF(EXCLUDED.place_id, ''), venues.place_id),
			phone = COALESCE(NULLIF(EXCLUDED.phone, ''), venues.phone),
			website = COALESCE(NULLIF(EXCLUDED.website, ''), venues.website),
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		v.ID, v.Fingerprint, v.Name, v.Address, v.City, v.Postcode, v.Lat, v.Lng,
		v.PlaceID, v.Phone, v.Website, v.PlacePhotosFetched, v.CreatedAt, v.UpdatedAt,
	).Scan(&v.ID)
}

func (s *PostgresStore) GetVenueByFingerprint(ctx context.Context, fingerprint string) (*models.Venue, error) {
	query := `
		SELECT id, fingerprint, name, address, city, postcode, lat, lng,
			place_id, phone, website, place_photos_fetched_at, created_at, updated_at
		FROM venues WHERE fingerprint = $1`

	var v models.Venue
	err := s.pool.QueryRow(ctx, query, fingerprint).Scan(
		&v.ID, &v.Fingerprint, &v.Name, &v.Address, &v.City, &v.Postcode, &v.Lat, &v.Lng,
		&v.PlaceID, &v.Phone, &v.Website, &v.PlacePhotosFetched, &v.CreatedAt, &v.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) UpdateVenueCoordinates(ctx context.Context, id uuid.UUID, lat, lng float64, placeID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE venues SET lat = $2, lng = $3,
			place_id = COALESCE(NULLIF($4, ''), place_id),
			updated_at = NOW()
		WHERE id = $1`, id, lat, lng, placeID)
	return err
}

func (s *PostgresStore) MarkPlacePhotosFetched(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE venues SET place_photos_fetched_at = $2, updated_at = NOW() WHERE id = $1`,
		id, at)
	return err
}

// GetVenuesWithStalePlacePhotos returns venues whose place-photo set was
// never fetched or is older than the cutoff. Only venues with a place ID
// qualify.
func (s *PostgresStore) GetVenuesWithStalePlacePhotos(ctx context.Context, cutoff time.Time, limit int) ([]models.Venue, error) {
	query := `
		SELECT id, fingerprint, name, address, city, postcode, lat, lng,
			place_id, phone, website, place_photos_fetched_at, created_at, updated_at
		FROM venues
		WHERE place_id <> '' AND (place_photos_fetched_at IS NULL OR place_photos_fetched_at < $1)
		ORDER BY place_photos_fetched_at NULLS FIRST
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var venues []models.Venue
	for rows.Next() {
		var v models.Venue
		if err := rows.Scan(
			&v.ID, &v.Fingerprint, &v.Name, &v.Address, &v.City, &v.Postcode, &v.Lat, &v.Lng,
			&v.PlaceID, &v.Phone, &v.Website, &v.PlacePhotosFetched, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, err
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}

// =============================================================================
// Events
// =============================================================================

func (s *PostgresStore) UpsertEvent(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (
			id, venue_id, day_of_week, start_time, fee_text, description,
			performer_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (venue_id, day_of_week) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			fee_text = COALESCE(NULLIF(EXCLUDED.fee_text, ''), events.fee_text),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), events.description),
			performer_id = COALESCE(EXCLUDED.performer_id, events.performer_id),
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		e.ID, e.VenueID, e.DayOfWeek, e.StartTime, e.FeeText, e.Description,
		e.PerformerID, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
}

func (s *PostgresStore) GetEventByVenueAndDay(ctx context.Context, venueID uuid.UUID, dayOfWeek int) (*models.Event, error) {
	query := `
		SELECT id, venue_id, day_of_week, start_time, fee_text, description,
			performer_id, created_at, updated_at
		FROM events WHERE venue_id = $1 AND day_of_week = $2`

	var e models.Event
	err := s.pool.QueryRow(ctx, query, venueID, dayOfWeek).Scan(
		&e.ID, &e.VenueID, &e.DayOfWeek, &e.StartTime, &e.FeeText, &e.Description,
		&e.PerformerID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// =============================================================================
// Event sources
// =============================================================================

func (s *PostgresStore) UpsertEventSource(ctx context.Context, es *models.EventSource) error {
	query := `
		INSERT INTO event_sources (
			id, event_id, source_id, source_url, last_seen_at, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_id, source_url) DO UPDATE SET
			event_id = EXCLUDED.event_id,
			last_seen_at = EXCLUDED.last_seen_at,
			metadata = COALESCE(EXCLUDED.metadata, event_sources.metadata)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		es.ID, es.EventID, es.SourceID, es.SourceURL, es.LastSeenAt, es.Metadata, es.CreatedAt,
	).Scan(&es.ID)
}

func (s *PostgresStore) GetEventSourceByURL(ctx context.Context, sourceID, sourceURL string) (*models.EventSource, error) {
	query := `
		SELECT id, event_id, source_id, source_url, last_seen_at, metadata, created_at
		FROM event_sources WHERE source_id = $1 AND source_url = $2`

	var es models.EventSource
	err := s.pool.QueryRow(ctx, query, sourceID, sourceURL).Scan(
		&es.ID, &es.EventID, &es.SourceID, &es.SourceURL, &es.LastSeenAt, &es.Metadata, &es.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &es, nil
}

// TouchEventSource sets last_seen_at unconditionally. Runs on every
// successful scrape touch, separate from any field update.
func (s *PostgresStore) TouchEventSource(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE event_sources SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}

// =============================================================================
// Performers
// =============================================================================

func (s *PostgresStore) UpsertPerformer(ctx context.Context, p *models.Performer) error {
	query := `
		INSERT INTO performers (id, source_id, name, profile_image_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id, name) DO UPDATE SET
			profile_image_id = COALESCE(EXCLUDED.profile_image_id, performers.profile_image_id),
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		p.ID, p.SourceID, p.Name, p.ProfileImageID, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
}

func (s *PostgresStore) GetPerformerByName(ctx context.Context, sourceID, name string) (*models.Performer, error) {
	query := `
		SELECT id, source_id, name, profile_image_id, created_at, updated_at
		FROM performers WHERE source_id = $1 AND name = $2`

	var p models.Performer
	err := s.pool.QueryRow(ctx, query, sourceID, name).Scan(
		&p.ID, &p.SourceID, &p.Name, &p.ProfileImageID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// Images
// =============================================================================

func (s *PostgresStore) UpsertImage(ctx context.Context, img *models.ImageRecord) error {
	query := `
		INSERT INTO images (id, owner_type, owner_id, source_url, filename, stored_path, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_type, owner_id, filename) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			stored_path = EXCLUDED.stored_path,
			fetched_at = EXCLUDED.fetched_at
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		img.ID, img.OwnerType, img.OwnerID, img.SourceURL, img.Filename,
		img.StoredPath, img.FetchedAt,
	).Scan(&img.ID)
}

func (s *PostgresStore) GetImageByOwnerAndFilename(ctx context.Context, ownerType string, ownerID uuid.UUID, filename string) (*models.ImageRecord, error) {
	query := `
		SELECT id, owner_type, owner_id, source_url, filename, stored_path, fetched_at
		FROM images WHERE owner_type = $1 AND owner_id = $2 AND filename = $3`

	var img models.ImageRecord
	err := s.pool.QueryRow(ctx, query, ownerType, ownerID, filename).Scan(
		&img.ID, &img.OwnerType, &img.OwnerID, &img.SourceURL, &img.Filename,
		&img.StoredPath, &img.FetchedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (s *PostgresStore) DeleteImage(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	return err
}

// =============================================================================
// Scrape runs and logs
// =============================================================================

func (s *PostgresStore) CreateScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	query := `
		INSERT INTO scrape_runs (source_id, started_at, metadata)
		VALUES ($1, $2, $3)
		RETURNING id`

	return s.pool.QueryRow(ctx, query, run.SourceID, run.StartedAt, run.Metadata).Scan(&run.ID)
}

func (s *PostgresStore) CompleteScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scrape_runs SET
			completed_at = $2,
			success = $3,
			total_items_found = $4,
			items_processed = $5,
			error_message = $6,
			metadata = COALESCE($7, metadata)
		WHERE id = $1`,
		run.ID, run.CompletedAt, run.Success, run.TotalItemsFound,
		run.ItemsProcessed, run.ErrorMessage, run.Metadata,
	)
	return err
}

func (s *PostgresStore) Log(ctx context.Context, runID *int64, level models.LogLevel, message, sourceID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_logs (run_id, timestamp, level, message, source_id)
		VALUES ($1, $2, $3, $4, $5)`,
		runID, time.Now(), level, message, sourceID,
	)
	return err
}
