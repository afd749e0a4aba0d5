// Package images decides when a remote image actually needs downloading.
// Filenames are derived deterministically from the source URL, so a
// re-scrape of the same venue reuses the stored file instead of fetching
// it again.
package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizscout/models"
)

// Error wraps image download/storage failures. Always non-fatal to the
// enclosing job: callers log and move on.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("image %s: %v", e.URL, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Owner identifies the entity an image belongs to.
type Owner struct {
	Type string // models.ImageOwnerVenue, ImageOwnerPerformer, ImageOwnerPlace
	ID   uuid.UUID
}

// FileStore is where image bytes live (local dir or S3).
type FileStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// RecordStore persists ImageRecord rows. *storage.PostgresStore satisfies it.
type RecordStore interface {
	GetImageByOwnerAndFilename(ctx context.Context, ownerType string, ownerID uuid.UUID, filename string) (*models.ImageRecord, error)
	UpsertImage(ctx context.Context, img *models.ImageRecord) error
	DeleteImage(ctx context.Context, id uuid.UUID) error
}

// Downloader fetches image bytes. *httputil.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

type Service struct {
	files      FileStore
	records    RecordStore
	downloader Downloader
	now        func() time.Time
}

func NewService(files FileStore, records RecordStore, downloader Downloader) *Service {
	return &Service{
		files:      files,
		records:    records,
		downloader: downloader,
		now:        time.Now,
	}
}

var (
	dashRunRegex     = regexp.MustCompile(`-+`)
	whitespaceOrPlus = regexp.MustCompile(`[\s+]+`)
)

// NormalizeFilename derives the stable local filename for a remote image
// URL: decode URL-encoding, strip the query string, turn whitespace and
// plus runs into single dashes, collapse repeated dashes, lowercase. The
// original base name is preserved (not hashed) so the same remote URL
// always yields the same filename across scrapes.
func NormalizeFilename(rawURL string) string {
	decoded, err := url.QueryUnescape(rawURL)
	if err != nil {
		decoded = rawURL
	}

	if i := strings.IndexByte(decoded, '?'); i >= 0 {
		decoded = decoded[:i]
	}

	name := path.Base(decoded)
	if name == "." || name == "/" || name == "" {
		return ""
	}

	name = whitespaceOrPlus.ReplaceAllString(name, "-")
	name = dashRunRegex.ReplaceAllString(name, "-")
	return strings.ToLower(name)
}

func storageKey(owner Owner, filename string) string {
	return fmt.Sprintf("%s/%s/%s", owner.Type, owner.ID, filename)
}

// EnsureImage applies the refresh decision table:
//
//	stored file exists, force off  -> reuse, no download
//	stored file exists, force on   -> delete, re-download, replace record
//	no stored file                 -> download, create record
//
// Failures return *Error and leave any prior record untouched.
func (s *Service) EnsureImage(ctx context.Context, sourceURL string, owner Owner, forceRefresh bool) (*models.ImageRecord, error) {
	return s.ensure(ctx, sourceURL, NormalizeFilename(sourceURL), owner, forceRefresh)
}

func (s *Service) ensure(ctx context.Context, sourceURL, filename string, owner Owner, forceRefresh bool) (*models.ImageRecord, error) {
	if filename == "" {
		return nil, &Error{URL: sourceURL, Err: fmt.Errorf("no usable filename")}
	}
	key := storageKey(owner, filename)

	exists, err := s.files.Exists(ctx, key)
	if err != nil {
		return nil, &Error{URL: sourceURL, Err: err}
	}

	if exists && !forceRefresh {
		record, err := s.records.GetImageByOwnerAndFilename(ctx, owner.Type, owner.ID, filename)
		if err != nil {
			return nil, &Error{URL: sourceURL, Err: err}
		}
		if record != nil {
			return record, nil
		}
		// File present but no record. Re-download so the stored path can
		// be recorded.
	}

	if exists && forceRefresh {
		if record, err := s.records.GetImageByOwnerAndFilename(ctx, owner.Type, owner.ID, filename); err == nil && record != nil {
			if err := s.records.DeleteImage(ctx, record.ID); err != nil {
				log.Printf("images: failed to delete record for %s: %v", filename, err)
			}
		}
		if err := s.files.Delete(ctx, key); err != nil {
			return nil, &Error{URL: sourceURL, Err: fmt.Errorf("delete existing: %w", err)}
		}
	}

	data, contentType, err := s.downloader.Download(ctx, sourceURL)
	if err != nil {
		return nil, &Error{URL: sourceURL, Err: err}
	}

	storedPath, err := s.files.Store(ctx, key, data, contentType)
	if err != nil {
		return nil, &Error{URL: sourceURL, Err: fmt.Errorf("store: %w", err)}
	}

	record := &models.ImageRecord{
		ID:         uuid.New(),
		OwnerType:  owner.Type,
		OwnerID:    owner.ID,
		SourceURL:  sourceURL,
		Filename:   filename,
		StoredPath: storedPath,
		FetchedAt:  s.now(),
	}
	if err := s.records.UpsertImage(ctx, record); err != nil {
		return nil, &Error{URL: sourceURL, Err: fmt.Errorf("record: %w", err)}
	}

	return record, nil
}

// PlacePhotosStale reports whether a venue's place-photo set needs
// re-fetching: never fetched, or older than maxAge. Independent of the
// hero-image force-refresh flag.
func PlacePhotosStale(v *models.Venue, maxAge time.Duration, now time.Time) bool {
	if v.PlacePhotosFetched == nil {
		return true
	}
	return now.Sub(*v.PlacePhotosFetched) > maxAge
}

// placePhotoFilename names a Google place photo by its photo reference.
// The download URLs all share the path /maps/api/place/photo and differ
// only in the query string, so NormalizeFilename would collapse a venue's
// whole photo set onto one filename. The reference is too long for a
// filename; a short hash of it is still stable across scrapes.
func placePhotoFilename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ref := u.Query().Get("photoreference"); ref != "" {
			sum := sha256.Sum256([]byte(ref))
			return hex.EncodeToString(sum[:8]) + ".jpg"
		}
	}
	return NormalizeFilename(rawURL)
}

// EnsurePlacePhotos stores a venue's place-photo set. Individual failures
// are logged and skipped; the count of stored photos is returned.
func (s *Service) EnsurePlacePhotos(ctx context.Context, venueID uuid.UUID, photoURLs []string) int {
	owner := Owner{Type: models.ImageOwnerPlace, ID: venueID}
	stored := 0
	for _, u := range photoURLs {
		if _, err := s.ensure(ctx, u, placePhotoFilename(u), owner, false); err != nil {
			log.Printf("images: place photo failed: %v", err)
			continue
		}
		stored++
	}
	return stored
}
