package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"quizscout/extract"
	"quizscout/httputil"
	"quizscout/models"
	"quizscout/queue"
)

// RunStore records scrape runs and per-run log lines.
// *storage.PostgresStore satisfies it.
type RunStore interface {
	CreateScrapeRun(ctx context.Context, run *models.ScrapeRun) error
	CompleteScrapeRun(ctx context.Context, run *models.ScrapeRun) error
	Log(ctx context.Context, runID *int64, level models.LogLevel, message, sourceID string) error
}

// Enqueuer is the queue surface the index job needs. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(queueName, jobType string, args interface{}, opts queue.Options) (int64, error)
}

// IndexRunner executes one index job: create a run record, fetch the
// source's venue listing, and fan detail jobs out through the limiter.
type IndexRunner struct {
	sources map[string]extract.Source
	store   RunStore
	queue   Enqueuer
	limiter *Limiter
	now     func() time.Time
}

func NewIndexRunner(sources map[string]extract.Source, store RunStore, q Enqueuer, limiter *Limiter) *IndexRunner {
	return &IndexRunner{
		sources: sources,
		store:   store,
		queue:   q,
		limiter: limiter,
		now:     time.Now,
	}
}

// Detail jobs for the same venue discovered twice inside this window are
// deduped rather than double-scheduled.
const detailUniqueWindow = time.Hour

func (r *IndexRunner) Run(ctx context.Context, args models.IndexJobArgs) error {
	source, ok := r.sources[args.SourceID]
	if !ok {
		return queue.Terminal(fmt.Errorf("unknown source %q", args.SourceID))
	}

	run := &models.ScrapeRun{
		SourceID:  args.SourceID,
		StartedAt: r.now(),
	}
	if err := r.store.CreateScrapeRun(ctx, run); err != nil {
		return fmt.Errorf("create scrape run: %w", err)
	}

	items, err := source.FetchIndex(ctx)
	if err != nil {
		r.failRun(ctx, run, err)
		var fe *httputil.FetchError
		if errors.As(err, &fe) && !fe.Retryable() {
			return queue.Terminal(fmt.Errorf("fetch index for %s: %w", args.SourceID, err))
		}
		return fmt.Errorf("fetch index for %s: %w", args.SourceID, err)
	}

	total := len(items)
	if args.Limit > 0 && total > args.Limit {
		items = items[:args.Limit]
		msg := fmt.Sprintf("limit active: scheduling %d of %d discovered venues", args.Limit, total)
		log.Printf("[%s] %s", args.SourceID, msg)
		if err := r.store.Log(ctx, &run.ID, models.LogLevelWarn, msg, args.SourceID); err != nil {
			log.Printf("Warning: failed to persist run log: %v", err)
		}
	}

	result := r.limiter.Schedule(items, func(item models.IndexedVenue, at time.Time) error {
		detailArgs := models.DetailJobArgs{
			SourceID:           args.SourceID,
			RunID:              run.ID,
			Item:               item,
			ForceRefreshImages: args.ForceRefreshImages,
			ForceUpdate:        args.ForceUpdate,
		}
		_, err := r.queue.Enqueue(models.QueueDetail, models.JobTypeDetail, detailArgs, queue.Options{
			ScheduledAt:  at,
			UniqueKey:    detailUniqueKey(args, item),
			UniqueWindow: detailUniqueWindow,
		})
		if errors.Is(err, queue.ErrDuplicate) {
			// Already scheduled this hour; counts as handled.
			return nil
		}
		return err
	})

	completedAt := r.now()
	success := true
	run.CompletedAt = &completedAt
	run.Success = &success
	run.TotalItemsFound = total
	run.ItemsProcessed = result.Scheduled
	if result.Failed > 0 {
		run.Metadata = mustJSON(map[string]int{"enqueue_failures": result.Failed})
	}
	if err := r.store.CompleteScrapeRun(ctx, run); err != nil {
		return fmt.Errorf("complete scrape run: %w", err)
	}

	log.Printf("[%s] index run %d: found %d, scheduled %d, failed %d",
		args.SourceID, run.ID, total, result.Scheduled, result.Failed)
	return nil
}

// detailUniqueKey dedupes detail jobs per venue inside the window. Force
// flags are part of the key: a forced run must not be swallowed by a
// normal run's jobs that are still inside the window.
func detailUniqueKey(args models.IndexJobArgs, item models.IndexedVenue) string {
	key := fmt.Sprintf("detail:%s:%s", args.SourceID, item.SourceURL)
	if args.ForceRefreshImages {
		key += ":refresh-images"
	}
	if args.ForceUpdate {
		key += ":force-update"
	}
	return key
}

// failRun closes the run record as failed. The job error is reported
// separately; a second failure here is only logged.
func (r *IndexRunner) failRun(ctx context.Context, run *models.ScrapeRun, cause error) {
	completedAt := r.now()
	success := false
	run.CompletedAt = &completedAt
	run.Success = &success
	run.ErrorMessage = cause.Error()
	if err := r.store.CompleteScrapeRun(ctx, run); err != nil {
		log.Printf("Warning: failed to record failed run %d: %v", run.ID, err)
	}
	if err := r.store.Log(ctx, &run.ID, models.LogLevelError, cause.Error(), run.SourceID); err != nil {
		log.Printf("Warning: failed to persist run log: %v", err)
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
