package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"quizscout/extract"
	"quizscout/geocode"
	"quizscout/httputil"
	"quizscout/images"
	"quizscout/models"
	"quizscout/queue"
	"quizscout/services"
)

// Fetcher fetches one venue's detail page. *httputil.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string, opts httputil.Options) ([]byte, error)
}

// VenueProcessor upserts one extracted record. *services.VenueService
// satisfies it.
type VenueProcessor interface {
	ProcessVenue(ctx context.Context, sourceID string, raw *models.RawVenue, forceUpdate bool) (*services.ProcessResult, error)
}

// ImageService stores venue and performer images. *images.Service satisfies it.
type ImageService interface {
	EnsureImage(ctx context.Context, sourceURL string, owner images.Owner, forceRefresh bool) (*models.ImageRecord, error)
}

// Geocoder resolves addresses to coordinates. *geocode.Client satisfies it.
type Geocoder interface {
	Enabled() bool
	Geocode(ctx context.Context, address string) (*geocode.Result, error)
}

// CoordStore persists geocoding results onto venues.
type CoordStore interface {
	UpdateVenueCoordinates(ctx context.Context, id uuid.UUID, lat, lng float64, placeID string) error
}

// DetailRunner executes one detail job: obtain the venue's full record,
// upsert it, and refresh its images. Fetch/extract failures are split into
// retryable (the queue backs off and retries) and terminal (discard with a
// logged error); everything after a successful upsert is non-fatal.
type DetailRunner struct {
	sources   map[string]extract.Source
	fetcher   Fetcher
	processor VenueProcessor
	images    ImageService
	geocoder  Geocoder
	coords    CoordStore
	store     RunStore
}

func NewDetailRunner(
	sources map[string]extract.Source,
	fetcher Fetcher,
	processor VenueProcessor,
	imageService ImageService,
	geocoder Geocoder,
	coords CoordStore,
	store RunStore,
) *DetailRunner {
	return &DetailRunner{
		sources:   sources,
		fetcher:   fetcher,
		processor: processor,
		images:    imageService,
		geocoder:  geocoder,
		coords:    coords,
		store:     store,
	}
}

func (r *DetailRunner) Run(ctx context.Context, args models.DetailJobArgs) error {
	source, ok := r.sources[args.SourceID]
	if !ok {
		return queue.Terminal(fmt.Errorf("unknown source %q", args.SourceID))
	}

	// API and browser sources carry the venue payload from the index;
	// HTML sources need a per-venue page fetch.
	data := []byte(args.Item.Extra)
	if len(data) == 0 {
		fetched, err := r.fetcher.Get(ctx, args.Item.SourceURL, httputil.Options{FollowRedirects: true})
		if err != nil {
			return classifyFetch(err)
		}
		data = fetched
	}

	raw, err := source.Extract(data)
	if err != nil {
		// The content won't parse differently next time.
		return queue.Terminal(fmt.Errorf("extract %s: %w", args.Item.SourceURL, err))
	}

	// A forced image refresh needs the upserted venue and performer IDs,
	// so it writes through the recently-seen shortcut as well.
	force := args.ForceUpdate || args.ForceRefreshImages
	result, err := r.processor.ProcessVenue(ctx, args.SourceID, raw, force)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRecord) {
			return queue.Terminal(fmt.Errorf("process venue %s: %w", args.Item.SourceURL, err))
		}
		return fmt.Errorf("process venue %s: %w", args.Item.SourceURL, err)
	}

	if result.Skipped {
		log.Printf("[%s] %s seen recently, touched", args.SourceID, args.Item.SourceURL)
		return nil
	}

	r.maybeGeocode(ctx, args.SourceID, raw.Address, result.Venue)
	r.refreshImages(ctx, args, raw, result)

	r.logRun(ctx, args, fmt.Sprintf("processed %s (new venue: %t)", args.Item.SourceURL, result.IsNewVenue))
	return nil
}

// maybeGeocode fills coordinates for venues that have none. Failures are
// logged, never fatal: the venue stays un-geocoded until the next scrape.
func (r *DetailRunner) maybeGeocode(ctx context.Context, sourceID, address string, venue *models.Venue) {
	if venue == nil || venue.Lat != nil || !r.geocoder.Enabled() {
		return
	}

	loc, err := r.geocoder.Geocode(ctx, address)
	if err != nil {
		log.Printf("Warning: geocode %q: %v", address, err)
		return
	}
	if loc == nil {
		log.Printf("[%s] no geocode result for %q", sourceID, address)
		return
	}
	if err := r.coords.UpdateVenueCoordinates(ctx, venue.ID, loc.Lat, loc.Lng, loc.PlaceID); err != nil {
		log.Printf("Warning: save coordinates for %s: %v", venue.ID, err)
	}
}

// refreshImages stores the hero and performer images. Each failure is a
// logged warning; the job still completes.
func (r *DetailRunner) refreshImages(ctx context.Context, args models.DetailJobArgs, raw *models.RawVenue, result *services.ProcessResult) {
	if raw.HeroImageURL != "" {
		owner := images.Owner{Type: models.ImageOwnerVenue, ID: result.VenueID}
		if _, err := r.images.EnsureImage(ctx, raw.HeroImageURL, owner, args.ForceRefreshImages); err != nil {
			log.Printf("Warning: hero image for %s: %v", args.Item.SourceURL, err)
			r.logRun(ctx, args, fmt.Sprintf("hero image failed: %v", err))
		}
	}

	if raw.Performer != nil && raw.Performer.ProfileImageURL != "" && result.PerformerID != nil {
		owner := images.Owner{Type: models.ImageOwnerPerformer, ID: *result.PerformerID}
		if _, err := r.images.EnsureImage(ctx, raw.Performer.ProfileImageURL, owner, args.ForceRefreshImages); err != nil {
			log.Printf("Warning: performer image for %s: %v", args.Item.SourceURL, err)
		}
	}
}

func (r *DetailRunner) logRun(ctx context.Context, args models.DetailJobArgs, msg string) {
	var runID *int64
	if args.RunID != 0 {
		runID = &args.RunID
	}
	if err := r.store.Log(ctx, runID, models.LogLevelInfo, msg, args.SourceID); err != nil {
		log.Printf("Warning: failed to persist run log: %v", err)
	}
}

// classifyFetch maps fetch failures to the queue's retry semantics:
// timeouts, connection errors and 5xx retry; 4xx and malformed bodies
// discard.
func classifyFetch(err error) error {
	var fe *httputil.FetchError
	if errors.As(err, &fe) && !fe.Retryable() {
		return queue.Terminal(err)
	}
	return err
}
