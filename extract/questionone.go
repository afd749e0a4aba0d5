package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"quizscout/config"
	"quizscout/httputil"
	"quizscout/models"
	"quizscout/timeparse"
)

const maxIndexPages = 50

// QuestionOne lists venues as paginated HTML. The index carries only titles
// and links; full detail comes from fetching each venue page.
type QuestionOne struct {
	cfg    *config.SourceConfig
	client *httputil.Client
}

func NewQuestionOne(cfg *config.SourceConfig, client *httputil.Client) *QuestionOne {
	return &QuestionOne{cfg: cfg, client: client}
}

func (s *QuestionOne) ID() string { return s.cfg.ID }

func (s *QuestionOne) FetchIndex(ctx context.Context) ([]models.IndexedVenue, error) {
	pattern := s.cfg.Endpoints["index"]

	var items []models.IndexedVenue
	for page := 1; page <= maxIndexPages; page++ {
		url := fmt.Sprintf(pattern, page)

		body, err := s.client.Get(ctx, url, httputil.Options{FollowRedirects: true})
		if err != nil {
			// Past the last page the site 404s; that ends pagination, it
			// is not a failure.
			var fe *httputil.FetchError
			if errors.As(err, &fe) && fe.Kind == httputil.ErrHTTPStatus && fe.StatusCode == 404 && page > 1 {
				break
			}
			if page == 1 {
				return nil, fmt.Errorf("questionone index: %w", err)
			}
			log.Printf("questionone: page %d fetch failed, stopping pagination: %v", page, err)
			break
		}

		pageItems, err := s.parseIndexPage(body)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("questionone index: %w", err)
			}
			log.Printf("questionone: page %d parse failed, stopping pagination: %v", page, err)
			break
		}
		if len(pageItems) == 0 {
			break
		}

		items = append(items, pageItems...)
		log.Printf("questionone: page %d: %d venues (total %d)", page, len(pageItems), len(items))
	}

	return items, nil
}

func (s *QuestionOne) parseIndexPage(body []byte) ([]models.IndexedVenue, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var items []models.IndexedVenue
	doc.Find("article.venue, .venue-listing article").Each(func(i int, sel *goquery.Selection) {
		link := sel.Find("h2 a, .entry-title a").First()
		href, _ := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		if href == "" || title == "" {
			return
		}
		items = append(items, models.IndexedVenue{
			Title:     title,
			SourceURL: href,
			TimeText:  strings.TrimSpace(sel.Find(".venue-time, .quiz-time").First().Text()),
		})
	})

	return items, nil
}

// Extract parses a venue detail page.
func (s *QuestionOne) Extract(data []byte) (*models.RawVenue, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: ParseError, Err: err}
	}

	title := strings.TrimSpace(doc.Find("h1.entry-title, h1").First().Text())
	if title == "" {
		return nil, missingField("title")
	}

	address := s.textValue(doc, ".venue-address, .address")
	if address == "" {
		return nil, missingField("address")
	}

	sourceURL, _ := doc.Find(`link[rel="canonical"]`).Attr("href")
	if sourceURL == "" {
		sourceURL, _ = doc.Find(`meta[property="og:url"]`).Attr("content")
	}
	if sourceURL == "" {
		return nil, missingField("source_url")
	}

	timeText := s.textValue(doc, ".venue-time, .quiz-time")
	if timeText == "" {
		return nil, missingField("time_text")
	}

	sched, ok := timeparse.Parse(timeText)
	if !ok {
		log.Printf("questionone: could not parse time %q for %s, using default", timeText, title)
	}

	hero, _ := doc.Find(`meta[property="og:image"]`).Attr("content")
	if hero == "" {
		hero, _ = doc.Find(".venue-photo img, .entry-content img").First().Attr("src")
	}

	v := &models.RawVenue{
		Title:        title,
		Address:      address,
		TimeText:     timeText,
		DayOfWeek:    sched.DayOfWeek,
		StartTime:    sched.StartTime,
		FeeText:      s.textValue(doc, ".venue-fee, .entry-fee"),
		Description:  strings.TrimSpace(doc.Find(".entry-content p").First().Text()),
		Phone:        s.textValue(doc, ".venue-phone, .phone"),
		Website:      s.attrValue(doc, ".venue-website a, .website a", "href"),
		HeroImageURL: hero,
		SourceURL:    sourceURL,
	}

	if host := s.textValue(doc, ".venue-host .host-name, .quiz-host"); host != "" {
		v.Performer = &models.RawPerformer{
			Name:            host,
			ProfileImageURL: s.attrValue(doc, ".venue-host img", "src"),
		}
	}

	return v, nil
}

func (s *QuestionOne) textValue(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func (s *QuestionOne) attrValue(doc *goquery.Document, selector, attr string) string {
	val, _ := doc.Find(selector).First().Attr(attr)
	return val
}
