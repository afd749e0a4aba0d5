package extract

import (
	"context"
	"fmt"

	"quizscout/config"
	"quizscout/httputil"
	"quizscout/models"
)

// ErrorKind classifies extraction failures. All of them are terminal for the
// item: the data shape won't change on retry.
type ErrorKind int

const (
	MissingRequiredField ErrorKind = iota
	ParseError
	UnsupportedFormat
)

func (k ErrorKind) String() string {
	switch k {
	case MissingRequiredField:
		return "missing_required_field"
	case ParseError:
		return "parse_error"
	case UnsupportedFormat:
		return "unsupported_format"
	}
	return "unknown"
}

type Error struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extract: %s: %s", e.Kind, e.Field)
	}
	return fmt.Sprintf("extract: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func missingField(field string) *Error {
	return &Error{Kind: MissingRequiredField, Field: field}
}

// Source is the per-provider scraping strategy. FetchIndex discovers the
// venue list; Extract turns one venue's fetched content into a normalized
// record. Optional fields degrade to zero values; only missing required
// fields (title, address, source URL, schedule text) produce an *Error.
type Source interface {
	ID() string
	FetchIndex(ctx context.Context) ([]models.IndexedVenue, error)
	Extract(data []byte) (*models.RawVenue, error)
}

// New selects the strategy for a source from its config. Dispatch happens
// once here at construction, never by inspecting content at runtime.
func New(cfg *config.SourceConfig, client *httputil.Client) (Source, error) {
	switch cfg.Handler {
	case "api":
		return NewQuizmeisters(cfg, client), nil
	case "html":
		return NewQuestionOne(cfg, client), nil
	case "browser":
		return NewSpeedQuizzing(cfg), nil
	default:
		return nil, fmt.Errorf("unknown handler %q for source %s", cfg.Handler, cfg.ID)
	}
}
