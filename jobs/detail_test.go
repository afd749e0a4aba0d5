package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"quizscout/extract"
	"quizscout/geocode"
	"quizscout/httputil"
	"quizscout/images"
	"quizscout/models"
	"quizscout/queue"
	"quizscout/services"
)

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Get(ctx context.Context, url string, opts httputil.Options) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type fakeProcessor struct {
	result *services.ProcessResult
	err    error
	calls  int
	force  bool
}

func (f *fakeProcessor) ProcessVenue(ctx context.Context, sourceID string, raw *models.RawVenue, forceUpdate bool) (*services.ProcessResult, error) {
	f.calls++
	f.force = forceUpdate
	return f.result, f.err
}

type fakeImages struct {
	calls []string
	err   error
}

func (f *fakeImages) EnsureImage(ctx context.Context, sourceURL string, owner images.Owner, forceRefresh bool) (*models.ImageRecord, error) {
	f.calls = append(f.calls, owner.Type+":"+sourceURL)
	if f.err != nil {
		return nil, f.err
	}
	return &models.ImageRecord{ID: uuid.New()}, nil
}

type fakeGeocoder struct {
	enabled bool
	result  *geocode.Result
	calls   int
}

func (f *fakeGeocoder) Enabled() bool { return f.enabled }

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (*geocode.Result, error) {
	f.calls++
	return f.result, nil
}

type fakeCoords struct {
	updates int
}

func (f *fakeCoords) UpdateVenueCoordinates(ctx context.Context, id uuid.UUID, lat, lng float64, placeID string) error {
	f.updates++
	return nil
}

type detailFixture struct {
	runner    *DetailRunner
	fetcher   *fakeFetcher
	processor *fakeProcessor
	images    *fakeImages
	geocoder  *fakeGeocoder
	coords    *fakeCoords
	source    *fakeSource
}

func newDetailFixture() *detailFixture {
	venueID := uuid.New()
	performerID := uuid.New()
	lat := -37.8
	f := &detailFixture{
		fetcher: &fakeFetcher{data: []byte(`<html></html>`)},
		processor: &fakeProcessor{result: &services.ProcessResult{
			VenueID:     venueID,
			PerformerID: &performerID,
			Venue:       &models.Venue{ID: venueID, Lat: &lat},
		}},
		images:   &fakeImages{},
		geocoder: &fakeGeocoder{},
		coords:   &fakeCoords{},
		source: &fakeSource{
			id: "questionone",
			raw: &models.RawVenue{
				Title:        "The Kings Arms",
				Address:      "12 High Street",
				DayOfWeek:    2,
				StartTime:    "19:30",
				HeroImageURL: "https://cdn.example.com/hero.jpg",
				SourceURL:    "https://questionone.com/venues/kings-arms",
				Performer: &models.RawPerformer{
					Name:            "Dave",
					ProfileImageURL: "https://cdn.example.com/dave.jpg",
				},
			},
		},
	}
	f.runner = NewDetailRunner(
		map[string]extract.Source{"questionone": f.source},
		f.fetcher, f.processor, f.images, f.geocoder, f.coords, &fakeRunStore{},
	)
	return f
}

func detailArgs() models.DetailJobArgs {
	return models.DetailJobArgs{
		SourceID: "questionone",
		RunID:    1,
		Item:     models.IndexedVenue{SourceURL: "https://questionone.com/venues/kings-arms"},
	}
}

func TestDetailRunHappyPath(t *testing.T) {
	f := newDetailFixture()

	if err := f.runner.Run(context.Background(), detailArgs()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.fetcher.calls != 1 || f.processor.calls != 1 {
		t.Errorf("fetch=%d process=%d, want 1/1", f.fetcher.calls, f.processor.calls)
	}
	// Hero + performer images both refreshed.
	if len(f.images.calls) != 2 {
		t.Errorf("image calls = %v", f.images.calls)
	}
}

func TestDetailRunUsesIndexPayload(t *testing.T) {
	f := newDetailFixture()
	args := detailArgs()
	args.Item.Extra = json.RawMessage(`{"name":"inline"}`)

	if err := f.runner.Run(context.Background(), args); err != nil {
		t.Fatal(err)
	}
	if f.fetcher.calls != 0 {
		t.Error("payload carried from the index should skip the page fetch")
	}
}

func TestDetailRunTimeoutRetryable(t *testing.T) {
	f := newDetailFixture()
	f.fetcher.data = nil
	f.fetcher.err = &httputil.FetchError{Kind: httputil.ErrTimeout, URL: "x", Err: errors.New("deadline")}

	err := f.runner.Run(context.Background(), detailArgs())
	if err == nil || queue.IsTerminal(err) {
		t.Errorf("timeout should propagate as retryable, got %v", err)
	}
}

func TestDetailRunNotFoundTerminal(t *testing.T) {
	f := newDetailFixture()
	f.fetcher.data = nil
	f.fetcher.err = &httputil.FetchError{Kind: httputil.ErrHTTPStatus, URL: "x", StatusCode: 404}

	err := f.runner.Run(context.Background(), detailArgs())
	if !queue.IsTerminal(err) {
		t.Errorf("404 should be terminal, got %v", err)
	}
}

func TestDetailRunExtractErrorTerminal(t *testing.T) {
	f := newDetailFixture()
	f.source.raw = nil
	f.source.rawErr = &extract.Error{Kind: extract.MissingRequiredField, Field: "address"}

	err := f.runner.Run(context.Background(), detailArgs())
	if !queue.IsTerminal(err) {
		t.Errorf("extract error should be terminal, got %v", err)
	}
	if f.processor.calls != 0 {
		t.Error("failed extract must not reach the upsert")
	}
}

func TestDetailRunInvalidRecordTerminal(t *testing.T) {
	f := newDetailFixture()
	f.processor.result = nil
	f.processor.err = fmt.Errorf("%w: day_of_week 0", services.ErrInvalidRecord)

	err := f.runner.Run(context.Background(), detailArgs())
	if !queue.IsTerminal(err) {
		t.Errorf("invalid record should be terminal, got %v", err)
	}
}

func TestDetailRunStoreErrorRetryable(t *testing.T) {
	f := newDetailFixture()
	f.processor.result = nil
	f.processor.err = errors.New("connection reset")

	err := f.runner.Run(context.Background(), detailArgs())
	if err == nil || queue.IsTerminal(err) {
		t.Errorf("store error should stay retryable, got %v", err)
	}
}

func TestDetailRunImageFailureNonFatal(t *testing.T) {
	f := newDetailFixture()
	f.images.err = errors.New("cdn down")

	if err := f.runner.Run(context.Background(), detailArgs()); err != nil {
		t.Errorf("image failure should not fail the job: %v", err)
	}
}

func TestDetailRunGeocodesNewVenue(t *testing.T) {
	f := newDetailFixture()
	f.geocoder.enabled = true
	f.geocoder.result = &geocode.Result{Lat: -37.8, Lng: 144.9, PlaceID: "abc"}
	f.processor.result.Venue.Lat = nil

	if err := f.runner.Run(context.Background(), detailArgs()); err != nil {
		t.Fatal(err)
	}
	if f.geocoder.calls != 1 || f.coords.updates != 1 {
		t.Errorf("geocode=%d updates=%d, want 1/1", f.geocoder.calls, f.coords.updates)
	}
}

func TestDetailRunSkipsGeocodeWhenLocated(t *testing.T) {
	f := newDetailFixture()
	f.geocoder.enabled = true

	if err := f.runner.Run(context.Background(), detailArgs()); err != nil {
		t.Fatal(err)
	}
	if f.geocoder.calls != 0 {
		t.Error("venue with coordinates should not re-geocode")
	}
}

func TestDetailRunSkippedStopsEarly(t *testing.T) {
	f := newDetailFixture()
	f.processor.result = &services.ProcessResult{Skipped: true}

	if err := f.runner.Run(context.Background(), detailArgs()); err != nil {
		t.Fatal(err)
	}
	if len(f.images.calls) != 0 {
		t.Error("skip path should not refresh images")
	}
}

func TestDetailRunForceRefreshImagesWritesThrough(t *testing.T) {
	f := newDetailFixture()
	args := detailArgs()
	args.ForceRefreshImages = true

	if err := f.runner.Run(context.Background(), args); err != nil {
		t.Fatal(err)
	}
	// The flag must bypass the recently-seen shortcut: a skipped result
	// carries no venue IDs, so the images could never be refreshed.
	if !f.processor.force {
		t.Error("image refresh flag must write through the recently-seen shortcut")
	}
	if len(f.images.calls) != 2 {
		t.Errorf("image calls = %v, want hero + performer", f.images.calls)
	}
}

func TestDetailRunForceUpdatePropagates(t *testing.T) {
	f := newDetailFixture()
	args := detailArgs()
	args.ForceUpdate = true

	if err := f.runner.Run(context.Background(), args); err != nil {
		t.Fatal(err)
	}
	if !f.processor.force {
		t.Error("force update flag not passed to the processor")
	}
}
