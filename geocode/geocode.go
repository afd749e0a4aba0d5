// Package geocode resolves venue addresses to coordinates and place IDs
// through the Google Geocoding and Places APIs. This is the shared paid
// API the hourly job cap exists to protect; callers should only geocode
// venues that have no coordinates yet.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"quizscout/config"
	"quizscout/httputil"
)

const (
	geocodeEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"
	detailsEndpoint = "https://maps.googleapis.com/maps/api/place/details/json"
	photoEndpoint   = "https://maps.googleapis.com/maps/api/place/photo"

	maxPlacePhotos = 5
)

// Result is the subset of a geocoding response we persist.
type Result struct {
	Lat      float64
	Lng      float64
	PlaceID  string
	City     string
	Postcode string
}

type Client struct {
	http       *httputil.Client
	apiKey     string
	geocodeURL string
}

func NewClient(http *httputil.Client, cfg config.GeocodeConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = geocodeEndpoint
	}
	return &Client{http: http, apiKey: cfg.APIKey, geocodeURL: base}
}

// Enabled reports whether an API key is configured. Without one, geocoding
// is skipped and venues keep nil coordinates.
func (c *Client) Enabled() bool { return c.apiKey != "" }

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID  string `json:"place_id"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// Geocode resolves a free-text address. A ZERO_RESULTS response returns
// (nil, nil): an unresolvable address is not an error worth retrying.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	if !c.Enabled() {
		return nil, nil
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.apiKey)

	body, err := c.http.Get(ctx, c.geocodeURL+"?"+q.Encode(), httputil.Options{
		FollowRedirects: true,
		Timeout:         15 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse geocode response: %w", err)
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("geocode status %s for %q", resp.Status, address)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	r := resp.Results[0]
	result := &Result{
		Lat:     r.Geometry.Location.Lat,
		Lng:     r.Geometry.Location.Lng,
		PlaceID: r.PlaceID,
	}
	for _, comp := range r.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "locality", "postal_town":
				if result.City == "" {
					result.City = comp.LongName
				}
			case "postal_code":
				result.Postcode = comp.LongName
			}
		}
	}
	return result, nil
}

type detailsResponse struct {
	Status string `json:"status"`
	Result struct {
		Photos []struct {
			PhotoReference string `json:"photo_reference"`
		} `json:"photos"`
	} `json:"result"`
}

// PlacePhotoURLs returns downloadable photo URLs for a place, capped at
// maxPlacePhotos. An empty slice with nil error means the place has none.
func (c *Client) PlacePhotoURLs(ctx context.Context, placeID string) ([]string, error) {
	if !c.Enabled() || placeID == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", "photos")
	q.Set("key", c.apiKey)

	body, err := c.http.Get(ctx, detailsEndpoint+"?"+q.Encode(), httputil.Options{
		FollowRedirects: true,
		Timeout:         15 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	var resp detailsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse place details: %w", err)
	}
	if resp.Status != "OK" {
		if resp.Status == "ZERO_RESULTS" || resp.Status == "NOT_FOUND" {
			return nil, nil
		}
		return nil, fmt.Errorf("place details status %s", resp.Status)
	}

	photos := resp.Result.Photos
	if len(photos) > maxPlacePhotos {
		photos = photos[:maxPlacePhotos]
	}

	urls := make([]string, 0, len(photos))
	for _, p := range photos {
		pq := url.Values{}
		pq.Set("photoreference", p.PhotoReference)
		pq.Set("maxwidth", strconv.Itoa(1200))
		pq.Set("key", c.apiKey)
		urls = append(urls, photoEndpoint+"?"+pq.Encode())
	}
	return urls, nil
}
