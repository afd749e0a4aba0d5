package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"quizscout/config"
	"quizscout/httputil"
	"quizscout/models"
	"quizscout/timeparse"
)

// Quizmeisters publishes its venue directory through a StoreRocket locations
// API. The index response carries the full per-venue payload, so each
// IndexedVenue keeps its raw JSON in Extra and Extract parses that blob
// without a second fetch.
type Quizmeisters struct {
	cfg    *config.SourceConfig
	client *httputil.Client
}

func NewQuizmeisters(cfg *config.SourceConfig, client *httputil.Client) *Quizmeisters {
	return &Quizmeisters{cfg: cfg, client: client}
}

func (q *Quizmeisters) ID() string { return q.cfg.ID }

type storeRocketResponse struct {
	Results struct {
		Locations []json.RawMessage `json:"locations"`
	} `json:"results"`
}

type storeRocketLocation struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	URL     string `json:"url"`
	Lat     string `json:"lat"`
	Lng     string `json:"lng"`
	Cover   string `json:"cover_image"`
	Fields  []struct {
		Name  string `json:"name"`
		Value string `json:"pivot_field_value"`
	} `json:"fields"`
	Social struct {
		Facebook  string `json:"facebook"`
		Instagram string `json:"instagram"`
	} `json:"social"`
	Host struct {
		Name  string `json:"name"`
		Photo string `json:"photo"`
	} `json:"host"`
}

func (q *Quizmeisters) FetchIndex(ctx context.Context) ([]models.IndexedVenue, error) {
	endpoint := q.cfg.Endpoints["venues"]

	body, err := q.client.Get(ctx, endpoint, httputil.Options{FollowRedirects: true})
	if err != nil {
		return nil, fmt.Errorf("quizmeisters index: %w", err)
	}

	var resp storeRocketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("quizmeisters index: decode: %w", err)
	}

	var items []models.IndexedVenue
	for _, raw := range resp.Results.Locations {
		var loc storeRocketLocation
		if err := json.Unmarshal(raw, &loc); err != nil {
			log.Printf("quizmeisters: skipping malformed location: %v", err)
			continue
		}
		if loc.URL == "" {
			log.Printf("quizmeisters: skipping location %q without URL", loc.Name)
			continue
		}
		items = append(items, models.IndexedVenue{
			Title:     loc.Name,
			SourceURL: loc.URL,
			Address:   loc.Address,
			Extra:     raw,
		})
	}

	return items, nil
}

// Extract parses one StoreRocket location blob into a RawVenue.
func (q *Quizmeisters) Extract(data []byte) (*models.RawVenue, error) {
	var loc storeRocketLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, &Error{Kind: ParseError, Err: err}
	}

	if loc.Name == "" {
		return nil, missingField("name")
	}
	if loc.Address == "" {
		return nil, missingField("address")
	}
	if loc.URL == "" {
		return nil, missingField("url")
	}

	timeText := q.fieldValue(&loc, "trivia")
	if timeText == "" {
		return nil, missingField("time_text")
	}

	sched, ok := timeparse.Parse(timeText)
	if !ok {
		log.Printf("quizmeisters: could not parse time %q for %s, using default", timeText, loc.Name)
	}

	v := &models.RawVenue{
		Title:        loc.Name,
		Address:      loc.Address,
		TimeText:     timeText,
		DayOfWeek:    sched.DayOfWeek,
		StartTime:    sched.StartTime,
		FeeText:      q.fieldValue(&loc, "fee"),
		Phone:        loc.Phone,
		Facebook:     loc.Social.Facebook,
		Instagram:    loc.Social.Instagram,
		HeroImageURL: loc.Cover,
		SourceURL:    loc.URL,
		Data:         data,
	}

	if loc.Host.Name != "" {
		v.Performer = &models.RawPerformer{
			Name:            loc.Host.Name,
			ProfileImageURL: loc.Host.Photo,
		}
	}

	return v, nil
}

func (q *Quizmeisters) fieldValue(loc *storeRocketLocation, key string) string {
	for _, f := range loc.Fields {
		if strings.Contains(strings.ToLower(f.Name), key) {
			return strings.TrimSpace(f.Value)
		}
	}
	return ""
}
