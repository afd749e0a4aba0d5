package workers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"quizscout/models"
)

type photoStore struct {
	stale  []models.Venue
	marked []uuid.UUID
	cutoff time.Time
}

func (s *photoStore) GetVenuesWithStalePlacePhotos(ctx context.Context, cutoff time.Time, limit int) ([]models.Venue, error) {
	s.cutoff = cutoff
	return s.stale, nil
}

func (s *photoStore) MarkPlacePhotosFetched(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.marked = append(s.marked, id)
	return nil
}

type photoLister struct {
	urls map[string][]string
}

func (l *photoLister) Enabled() bool { return true }

func (l *photoLister) PlacePhotoURLs(ctx context.Context, placeID string) ([]string, error) {
	return l.urls[placeID], nil
}

type photoSaver struct {
	saved map[uuid.UUID]int
}

func (s *photoSaver) EnsurePlacePhotos(ctx context.Context, venueID uuid.UUID, urls []string) int {
	s.saved[venueID] = len(urls)
	return len(urls)
}

func TestPlacePhotoBatch(t *testing.T) {
	withPhotos := models.Venue{ID: uuid.New(), Name: "The Kings Arms", PlaceID: "p1"}
	noPhotos := models.Venue{ID: uuid.New(), Name: "The Crown", PlaceID: "p2"}

	store := &photoStore{stale: []models.Venue{withPhotos, noPhotos}}
	lister := &photoLister{urls: map[string][]string{
		"p1": {"https://example.com/a.jpg", "https://example.com/b.jpg"},
	}}
	saver := &photoSaver{saved: map[uuid.UUID]int{}}

	w := NewPlacePhotoWorker(store, lister, saver, 90*24*time.Hour)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.processBatch(context.Background())

	// Staleness cutoff is 90 days back from now.
	if want := now.Add(-90 * 24 * time.Hour); !store.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", store.cutoff, want)
	}
	if saver.saved[withPhotos.ID] != 2 {
		t.Errorf("saved %d photos for venue with photos", saver.saved[withPhotos.ID])
	}
	// Both venues marked fetched, including the one with no photos, so
	// neither reappears next batch.
	if len(store.marked) != 2 {
		t.Errorf("marked = %d venues, want 2", len(store.marked))
	}
}
