// Package scheduler drives periodic index runs (cron) and applies
// operator commands dropped into the SQLite command table.
package scheduler

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"quizscout/config"
	"quizscout/models"
	"quizscout/queue"
	"quizscout/storage"
)

// Pausable is the worker pool's pause surface.
type Pausable interface {
	Pause()
	Resume()
}

// Triggerable allows workers to be triggered manually.
type Triggerable interface {
	Trigger()
}

// Enqueuer is the queue surface the scheduler needs. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(queueName, jobType string, args interface{}, opts queue.Options) (int64, error)
}

type Scheduler struct {
	cfg    *config.Config
	queue  Enqueuer
	store  *storage.SQLiteStore
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}

	pool        Pausable
	placePhotos Triggerable
}

func New(cfg *config.Config, q Enqueuer, store *storage.SQLiteStore) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		queue:  q,
		store:  store,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

// SetWorkers registers the pool and background workers for command control.
func (s *Scheduler) SetWorkers(pool Pausable, placePhotos Triggerable) {
	s.pool = pool
	s.placePhotos = placePhotos
}

// One index run per source per day is the normal cadence; the unique
// window stops overlapping cron fires and manual triggers from stacking.
const indexUniqueWindow = 23 * time.Hour

func (s *Scheduler) Start() error {
	go s.pollCommands()

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			if err := s.EnqueueAll(models.IndexJobArgs{}); err != nil {
				log.Printf("Scheduled run error: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					if err := s.EnqueueAll(models.IndexJobArgs{}); err != nil {
						log.Printf("Scheduled run error: %v", err)
					}
				case <-s.stopCh:
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// EnqueueAll enqueues one index job per configured source. Sources whose
// daily job already exists are skipped quietly.
func (s *Scheduler) EnqueueAll(base models.IndexJobArgs) error {
	var firstErr error
	for id := range s.cfg.Sources {
		args := base
		args.SourceID = id
		if err := s.EnqueueSource(args); err != nil {
			log.Printf("Error enqueueing index job for %s: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// EnqueueSource enqueues one index job. Also the CLI's entry point.
func (s *Scheduler) EnqueueSource(args models.IndexJobArgs) error {
	if _, ok := s.cfg.Sources[args.SourceID]; !ok {
		return fmt.Errorf("unknown source %q", args.SourceID)
	}

	_, err := s.queue.Enqueue(models.QueueIndex, models.JobTypeIndex, args, queue.Options{
		UniqueKey:    "index:" + args.SourceID,
		UniqueWindow: indexUniqueWindow,
	})
	if errors.Is(err, queue.ErrDuplicate) {
		log.Printf("Index job for %s already queued today, skipping", args.SourceID)
		return nil
	}
	return err
}

func (s *Scheduler) pollCommands() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(&cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) handleCommand(cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdScrapeNow:
		if s.placePhotos != nil {
			s.placePhotos.Trigger()
		}
		return s.EnqueueAll(models.IndexJobArgs{})

	case models.CmdScrapeSource:
		params, err := s.store.ParseCommandParams(cmd)
		if err != nil {
			return fmt.Errorf("parse command params: %w", err)
		}
		if params == nil || params.Source == "" {
			return fmt.Errorf("scrape_source command missing source")
		}
		return s.EnqueueSource(models.IndexJobArgs{
			SourceID: params.Source,
			Limit:    params.Limit,
		})

	case models.CmdPause:
		if s.pool != nil {
			s.pool.Pause()
			log.Println("Workers paused via command")
		}
		return nil

	case models.CmdResume:
		if s.pool != nil {
			s.pool.Resume()
			log.Println("Workers resumed via command")
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
}
