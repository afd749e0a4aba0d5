// Package queue implements the background-job queue on top of SQLite:
// named queues, per-job retry with exponential backoff, unique-window
// dedup, and deferred scheduling.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quizscout/models"
)

// Store is the persistence the queue needs. *storage.SQLiteStore satisfies it.
type Store interface {
	InsertJob(job *models.Job) (int64, error)
	HasJobWithin(uniqueKey string, since time.Time) (bool, error)
	ClaimNextJob(queue string, now time.Time) (*models.Job, error)
	MarkJobCompleted(id int64, at time.Time) error
	RescheduleJob(id int64, at time.Time, lastErr string) error
	DiscardJob(id int64, lastErr string) error
}

// ErrDuplicate is returned by Enqueue when a job with the same unique key
// already exists inside its unique window.
var ErrDuplicate = errors.New("queue: duplicate job within unique window")

// TerminalError marks a job failure that must not be retried: the input
// won't change, so neither will the outcome.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return "terminal: " + e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err so the queue discards the job instead of retrying.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

// Options control one enqueue.
type Options struct {
	MaxAttempts  int           // default 3
	UniqueKey    string        // empty disables dedup
	UniqueWindow time.Duration // how far back UniqueKey dedup looks
	ScheduledAt  time.Time     // zero means now
}

// Queue enqueues and resolves jobs. Retry backoff is base × 2^attempt,
// capped by maxBackoff.
type Queue struct {
	store       Store
	backoffBase time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

func New(store Store) *Queue {
	return &Queue{
		store:       store,
		backoffBase: 30 * time.Second,
		maxBackoff:  30 * time.Minute,
		now:         time.Now,
	}
}

// Enqueue adds one job. args must be JSON-marshalable.
func (q *Queue) Enqueue(queueName, jobType string, args interface{}, opts Options) (int64, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return 0, fmt.Errorf("marshal job args: %w", err)
	}

	now := q.now()

	if opts.UniqueKey != "" && opts.UniqueWindow > 0 {
		exists, err := q.store.HasJobWithin(opts.UniqueKey, now.Add(-opts.UniqueWindow))
		if err != nil {
			return 0, fmt.Errorf("unique check: %w", err)
		}
		if exists {
			return 0, ErrDuplicate
		}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	scheduledAt := opts.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	job := &models.Job{
		Queue:       queueName,
		Type:        jobType,
		Args:        data,
		Status:      models.JobStatusPending,
		MaxAttempts: maxAttempts,
		UniqueKey:   opts.UniqueKey,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	}

	id, err := q.store.InsertJob(job)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// Claim pops the next due job on a queue, or nil.
func (q *Queue) Claim(queueName string) (*models.Job, error) {
	return q.store.ClaimNextJob(queueName, q.now())
}

// Complete marks a claimed job done.
func (q *Queue) Complete(job *models.Job) error {
	return q.store.MarkJobCompleted(job.ID, q.now())
}

// Fail resolves a claimed job that returned an error: terminal errors and
// exhausted attempts discard it, anything else reschedules with backoff.
func (q *Queue) Fail(job *models.Job, jobErr error) error {
	if IsTerminal(jobErr) || job.Attempts >= job.MaxAttempts {
		return q.store.DiscardJob(job.ID, jobErr.Error())
	}
	delay := q.Backoff(job.Attempts)
	return q.store.RescheduleJob(job.ID, q.now().Add(delay), jobErr.Error())
}

// Backoff returns the delay before the next attempt after `attempt`
// attempts have run.
func (q *Queue) Backoff(attempt int) time.Duration {
	d := q.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.maxBackoff {
			return q.maxBackoff
		}
	}
	return d
}
