// Package jobs holds the two scrape job handlers (index and detail) and
// the rate limiter that spreads detail-job fan-out over time.
package jobs

import (
	"log"
	"time"

	"quizscout/models"
)

// Small batches are enqueued immediately; batches at or over this size
// are spread across hourly windows so the downstream geocode and image
// APIs never see more than maxPerHour new jobs in any hour.
const DefaultMaxPerHour = 100

// EnqueueFunc enqueues one discovered item for the given time. Returning
// an error marks the item failed; the limiter logs it and moves on.
type EnqueueFunc func(item models.IndexedVenue, scheduledAt time.Time) error

// ScheduleResult reports what happened to each discovered item:
// Scheduled + Failed always equals the input length.
type ScheduleResult struct {
	Scheduled int
	Failed    int
}

// Limiter distributes a batch of discovered items into job enqueues.
// State is per-call; concurrent batches from different sources don't
// interfere with each other.
type Limiter struct {
	maxPerHour int
	now        func() time.Time
}

func NewLimiter(maxPerHour int) *Limiter {
	if maxPerHour <= 0 {
		maxPerHour = DefaultMaxPerHour
	}
	return &Limiter{maxPerHour: maxPerHour, now: time.Now}
}

// Schedule enqueues every item exactly once, preserving input order.
// Batches under the hourly cap go out immediately; larger batches are
// split into consecutive hourly windows of at most maxPerHour items.
// A failed enqueue is logged and does not stop the rest of the batch.
func (l *Limiter) Schedule(items []models.IndexedVenue, enqueue EnqueueFunc) ScheduleResult {
	var result ScheduleResult
	now := l.now()
	capped := len(items) >= l.maxPerHour

	for i, item := range items {
		at := now
		if capped {
			window := i / l.maxPerHour
			at = now.Add(time.Duration(window) * time.Hour)
		}
		if err := enqueue(item, at); err != nil {
			log.Printf("Warning: failed to enqueue %s: %v", item.SourceURL, err)
			result.Failed++
			continue
		}
		result.Scheduled++
	}

	return result
}
