package images

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"quizscout/models"
)

func TestNormalizeFilename(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://cdn.example.com/venues/a%20b--c.JPG?x=1", "a-b-c.jpg"},
		{"https://cdn.example.com/hero.png", "hero.png"},
		{"https://cdn.example.com/The+Kings+Arms.jpg", "the-kings-arms.jpg"},
		{"https://cdn.example.com/photo.jpeg?width=800&h=600", "photo.jpeg"},
		{"https://cdn.example.com/some   spaced   name.png", "some-spaced-name.png"},
		{"https://cdn.example.com/already-fine.webp", "already-fine.webp"},
	}
	for _, tt := range tests {
		if got := NormalizeFilename(tt.url); got != tt.want {
			t.Errorf("NormalizeFilename(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestNormalizeFilenameDeterministic(t *testing.T) {
	url := "https://cdn.example.com/venues/a%20b--c.JPG?x=1"
	first := NormalizeFilename(url)
	for i := 0; i < 10; i++ {
		if got := NormalizeFilename(url); got != first {
			t.Fatalf("normalization not stable: %q vs %q", got, first)
		}
	}
}

type fakeFiles struct {
	existing map[string]bool
	stores   int
	deletes  int
}

func (f *fakeFiles) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.stores++
	f.existing[key] = true
	return "/stored/" + key, nil
}

func (f *fakeFiles) Exists(ctx context.Context, key string) (bool, error) {
	return f.existing[key], nil
}

func (f *fakeFiles) Delete(ctx context.Context, key string) error {
	f.deletes++
	delete(f.existing, key)
	return nil
}

type fakeRecords struct {
	records map[string]*models.ImageRecord
	deletes int
}

func recordKey(ownerType string, ownerID uuid.UUID, filename string) string {
	return ownerType + "/" + ownerID.String() + "/" + filename
}

func (f *fakeRecords) GetImageByOwnerAndFilename(ctx context.Context, ownerType string, ownerID uuid.UUID, filename string) (*models.ImageRecord, error) {
	return f.records[recordKey(ownerType, ownerID, filename)], nil
}

func (f *fakeRecords) UpsertImage(ctx context.Context, img *models.ImageRecord) error {
	f.records[recordKey(img.OwnerType, img.OwnerID, img.Filename)] = img
	return nil
}

func (f *fakeRecords) DeleteImage(ctx context.Context, id uuid.UUID) error {
	f.deletes++
	for k, r := range f.records {
		if r.ID == id {
			delete(f.records, k)
		}
	}
	return nil
}

type fakeDownloader struct {
	calls int
	fail  bool
}

func (f *fakeDownloader) Download(ctx context.Context, url string) ([]byte, string, error) {
	f.calls++
	if f.fail {
		return nil, "", errors.New("connection refused")
	}
	return []byte("img-bytes"), "image/jpeg", nil
}

func newTestService() (*Service, *fakeFiles, *fakeRecords, *fakeDownloader) {
	files := &fakeFiles{existing: map[string]bool{}}
	records := &fakeRecords{records: map[string]*models.ImageRecord{}}
	dl := &fakeDownloader{}
	svc := NewService(files, records, dl)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return svc, files, records, dl
}

func TestEnsureImageDownloadsWhenMissing(t *testing.T) {
	svc, files, records, dl := newTestService()
	owner := Owner{Type: models.ImageOwnerVenue, ID: uuid.New()}

	rec, err := svc.EnsureImage(context.Background(), "https://cdn.example.com/hero.png", owner, false)
	if err != nil {
		t.Fatalf("EnsureImage: %v", err)
	}
	if dl.calls != 1 || files.stores != 1 {
		t.Errorf("downloads=%d stores=%d, want 1/1", dl.calls, files.stores)
	}
	if rec.Filename != "hero.png" {
		t.Errorf("filename = %q", rec.Filename)
	}
	if len(records.records) != 1 {
		t.Errorf("record count = %d", len(records.records))
	}
}

func TestEnsureImageSkipsWhenPresent(t *testing.T) {
	svc, files, _, dl := newTestService()
	owner := Owner{Type: models.ImageOwnerVenue, ID: uuid.New()}

	if _, err := svc.EnsureImage(context.Background(), "https://cdn.example.com/hero.png", owner, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EnsureImage(context.Background(), "https://cdn.example.com/hero.png", owner, false); err != nil {
		t.Fatal(err)
	}

	if dl.calls != 1 {
		t.Errorf("second pass re-downloaded: calls = %d", dl.calls)
	}
	if files.deletes != 0 {
		t.Errorf("unexpected deletes = %d", files.deletes)
	}
}

func TestEnsureImageForceRefreshReplaces(t *testing.T) {
	svc, files, records, dl := newTestService()
	owner := Owner{Type: models.ImageOwnerVenue, ID: uuid.New()}

	if _, err := svc.EnsureImage(context.Background(), "https://cdn.example.com/hero.png", owner, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EnsureImage(context.Background(), "https://cdn.example.com/hero.png", owner, true); err != nil {
		t.Fatal(err)
	}

	if dl.calls != 2 {
		t.Errorf("force refresh should re-download: calls = %d", dl.calls)
	}
	if files.deletes != 1 || records.deletes != 1 {
		t.Errorf("deletes: files=%d records=%d, want 1/1", files.deletes, records.deletes)
	}
	if len(records.records) != 1 {
		t.Errorf("record count after refresh = %d", len(records.records))
	}
}

func TestEnsureImageDownloadFailure(t *testing.T) {
	svc, files, _, dl := newTestService()
	dl.fail = true
	owner := Owner{Type: models.ImageOwnerVenue, ID: uuid.New()}

	_, err := svc.EnsureImage(context.Background(), "https://cdn.example.com/hero.png", owner, false)
	var imgErr *Error
	if !errors.As(err, &imgErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if files.stores != 0 {
		t.Error("failed download should not store")
	}
}

func TestPlacePhotosStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	maxAge := 90 * 24 * time.Hour

	if !PlacePhotosStale(&models.Venue{}, maxAge, now) {
		t.Error("never-fetched venue should be stale")
	}

	fresh := now.Add(-30 * 24 * time.Hour)
	if PlacePhotosStale(&models.Venue{PlacePhotosFetched: &fresh}, maxAge, now) {
		t.Error("30-day-old photos should not be stale")
	}

	old := now.Add(-91 * 24 * time.Hour)
	if !PlacePhotosStale(&models.Venue{PlacePhotosFetched: &old}, maxAge, now) {
		t.Error("91-day-old photos should be stale")
	}
}

func TestEnsurePlacePhotosDistinctPerReference(t *testing.T) {
	svc, files, records, dl := newTestService()
	venueID := uuid.New()

	// Google photo URLs share their path and differ only in the
	// photoreference query parameter. Each reference must still land in
	// its own file.
	urls := []string{
		"https://maps.googleapis.com/maps/api/place/photo?key=k&maxwidth=1200&photoreference=AAA",
		"https://maps.googleapis.com/maps/api/place/photo?key=k&maxwidth=1200&photoreference=BBB",
	}

	stored := svc.EnsurePlacePhotos(context.Background(), venueID, urls)
	if stored != 2 {
		t.Errorf("stored = %d, want 2", stored)
	}
	if dl.calls != 2 || files.stores != 2 {
		t.Errorf("downloads=%d stores=%d, want 2/2", dl.calls, files.stores)
	}
	if len(records.records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records.records))
	}
	seen := map[string]bool{}
	for _, r := range records.records {
		if seen[r.Filename] {
			t.Fatalf("filename %q reused across references", r.Filename)
		}
		seen[r.Filename] = true
	}
}

func TestPlacePhotoFilenameStable(t *testing.T) {
	u := "https://maps.googleapis.com/maps/api/place/photo?key=k&maxwidth=1200&photoreference=AAA"
	first := placePhotoFilename(u)
	if first == "" || first == "photo" {
		t.Fatalf("filename = %q", first)
	}
	if again := placePhotoFilename(u); again != first {
		t.Errorf("not stable: %q vs %q", again, first)
	}
	// URLs without a reference fall back to the plain normalization.
	if got := placePhotoFilename("https://cdn.example.com/hero.png"); got != "hero.png" {
		t.Errorf("fallback = %q", got)
	}
}

func TestEnsurePlacePhotosSkipsFailures(t *testing.T) {
	svc, _, records, dl := newTestService()
	venueID := uuid.New()

	stored := svc.EnsurePlacePhotos(context.Background(), venueID, []string{
		"https://cdn.example.com/p1.jpg",
		"https://cdn.example.com/p2.jpg",
	})
	if stored != 2 {
		t.Errorf("stored = %d, want 2", stored)
	}

	dl.fail = true
	stored = svc.EnsurePlacePhotos(context.Background(), venueID, []string{
		"https://cdn.example.com/p3.jpg",
	})
	if stored != 0 {
		t.Errorf("stored = %d, want 0 on failure", stored)
	}
	if len(records.records) != 2 {
		t.Errorf("record count = %d", len(records.records))
	}
}
