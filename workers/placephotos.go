package workers

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"quizscout/models"
)

// PlacePhotoStore is the venue surface the worker needs.
// *storage.PostgresStore satisfies it.
type PlacePhotoStore interface {
	GetVenuesWithStalePlacePhotos(ctx context.Context, cutoff time.Time, limit int) ([]models.Venue, error)
	MarkPlacePhotosFetched(ctx context.Context, id uuid.UUID, at time.Time) error
}

// PhotoLister returns downloadable photo URLs for a place.
// *geocode.Client satisfies it.
type PhotoLister interface {
	Enabled() bool
	PlacePhotoURLs(ctx context.Context, placeID string) ([]string, error)
}

// PhotoSaver stores a venue's photo set. *images.Service satisfies it.
type PhotoSaver interface {
	EnsurePlacePhotos(ctx context.Context, venueID uuid.UUID, photoURLs []string) int
}

const placePhotoBatchSize = 20

// PlacePhotoWorker periodically re-fetches venue place photos whose last
// fetch is older than maxAge. This is a separate cycle from hero-image
// refresh: the force-refresh flag on scrape jobs does not affect it.
type PlacePhotoWorker struct {
	store    PlacePhotoStore
	lister   PhotoLister
	saver    PhotoSaver
	maxAge   time.Duration
	interval time.Duration

	triggerCh chan struct{}
	now       func() time.Time
}

func NewPlacePhotoWorker(store PlacePhotoStore, lister PhotoLister, saver PhotoSaver, maxAge time.Duration) *PlacePhotoWorker {
	return &PlacePhotoWorker{
		store:     store,
		lister:    lister,
		saver:     saver,
		maxAge:    maxAge,
		interval:  6 * time.Hour,
		triggerCh: make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Trigger requests an immediate pass. Non-blocking; a pending trigger is
// collapsed into one.
func (w *PlacePhotoWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *PlacePhotoWorker) Run(ctx context.Context) {
	if !w.lister.Enabled() {
		log.Println("Place photo worker disabled: no geocode API key")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.processBatch(ctx)
		case <-w.triggerCh:
			w.processBatch(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *PlacePhotoWorker) processBatch(ctx context.Context) {
	now := w.now()
	cutoff := now.Add(-w.maxAge)

	venues, err := w.store.GetVenuesWithStalePlacePhotos(ctx, cutoff, placePhotoBatchSize)
	if err != nil {
		log.Printf("Error listing stale place photos: %v", err)
		return
	}
	if len(venues) == 0 {
		return
	}
	log.Printf("Refreshing place photos for %d venue(s)", len(venues))

	for _, v := range venues {
		urls, err := w.lister.PlacePhotoURLs(ctx, v.PlaceID)
		if err != nil {
			log.Printf("Warning: list place photos for %s: %v", v.Name, err)
			continue
		}

		stored := 0
		if len(urls) > 0 {
			stored = w.saver.EnsurePlacePhotos(ctx, v.ID, urls)
		}

		// Mark fetched even when the place has no photos, so the venue
		// doesn't come back every batch.
		if err := w.store.MarkPlacePhotosFetched(ctx, v.ID, now); err != nil {
			log.Printf("Warning: mark photos fetched for %s: %v", v.Name, err)
			continue
		}
		if stored > 0 {
			log.Printf("Stored %d place photo(s) for %s", stored, v.Name)
		}
	}
}
