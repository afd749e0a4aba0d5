package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/playwright-community/playwright-go"

	"quizscout/config"
	"quizscout/models"
	"quizscout/timeparse"
)

// SpeedQuizzing renders its event map client-side, so the index has to run
// through a real browser. The page seeds a window.markers array with one
// entry per event; each marker's JSON rides along in IndexedVenue.Extra and
// Extract parses it without another page load.
type SpeedQuizzing struct {
	cfg *config.SourceConfig
}

func NewSpeedQuizzing(cfg *config.SourceConfig) *SpeedQuizzing {
	return &SpeedQuizzing{cfg: cfg}
}

func (s *SpeedQuizzing) ID() string { return s.cfg.ID }

type speedQuizzingMarker struct {
	Venue   string `json:"venue"`
	Address string `json:"address"`
	Day     string `json:"day"`
	Time    string `json:"time"`
	Fee     string `json:"fee"`
	Phone   string `json:"phone"`
	URL     string `json:"url"`
	Image   string `json:"image"`
	Host    string `json:"host"`
}

func (s *SpeedQuizzing) FetchIndex(ctx context.Context) ([]models.IndexedVenue, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("speedquizzing: start playwright: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("speedquizzing: launch browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("speedquizzing: new page: %w", err)
	}

	if _, err := page.Goto(s.cfg.Endpoints["index"], playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, fmt.Errorf("speedquizzing: goto index: %w", err)
	}

	result, err := page.Evaluate(`JSON.stringify(window.markers || [])`)
	if err != nil {
		return nil, fmt.Errorf("speedquizzing: read markers: %w", err)
	}

	raw, ok := result.(string)
	if !ok || raw == "" || raw == "[]" {
		return nil, fmt.Errorf("speedquizzing: no event markers on index page")
	}

	var markers []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &markers); err != nil {
		return nil, fmt.Errorf("speedquizzing: decode markers: %w", err)
	}

	var items []models.IndexedVenue
	for _, m := range markers {
		var marker speedQuizzingMarker
		if err := json.Unmarshal(m, &marker); err != nil {
			log.Printf("speedquizzing: skipping malformed marker: %v", err)
			continue
		}
		if marker.URL == "" {
			log.Printf("speedquizzing: skipping marker %q without URL", marker.Venue)
			continue
		}
		items = append(items, models.IndexedVenue{
			Title:     marker.Venue,
			SourceURL: s.cfg.BaseURL + marker.URL,
			Address:   marker.Address,
			TimeText:  marker.Day + " " + marker.Time,
			Extra:     m,
		})
	}

	return items, nil
}

// Extract parses one marker blob captured during FetchIndex.
func (s *SpeedQuizzing) Extract(data []byte) (*models.RawVenue, error) {
	var marker speedQuizzingMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, &Error{Kind: ParseError, Err: err}
	}

	if marker.Venue == "" {
		return nil, missingField("venue")
	}
	if marker.Address == "" {
		return nil, missingField("address")
	}
	if marker.URL == "" {
		return nil, missingField("url")
	}

	timeText := marker.Day + " " + marker.Time
	sched, ok := timeparse.Parse(timeText)
	if !ok {
		log.Printf("speedquizzing: could not parse time %q for %s, using default", timeText, marker.Venue)
	}

	v := &models.RawVenue{
		Title:        marker.Venue,
		Address:      marker.Address,
		TimeText:     timeText,
		DayOfWeek:    sched.DayOfWeek,
		StartTime:    sched.StartTime,
		FeeText:      marker.Fee,
		Phone:        marker.Phone,
		HeroImageURL: marker.Image,
		SourceURL:    s.cfg.BaseURL + marker.URL,
		Data:         data,
	}

	if marker.Host != "" {
		v.Performer = &models.RawPerformer{Name: marker.Host}
	}

	return v, nil
}
