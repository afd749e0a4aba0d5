// Package workers runs the background loops: the job pool draining the
// queue and the place-photo refresher.
package workers

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"quizscout/models"
	"quizscout/queue"
)

// Handler executes one claimed job. Returning an error resolves the job
// through the queue's retry semantics.
type Handler func(ctx context.Context, job *models.Job) error

// Pool polls named queues with a fixed number of workers each. Index and
// detail queues get separate worker sets so a deep detail backlog never
// blocks new discovery.
type Pool struct {
	queue        *queue.Queue
	handlers     map[string]Handler
	pollInterval time.Duration
	spacing      time.Duration // minimum gap between jobs on one worker
	paused       atomic.Bool

	queues map[string]int // queue name -> concurrency
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPool(q *queue.Queue, spacing time.Duration) *Pool {
	return &Pool{
		queue:        q,
		handlers:     map[string]Handler{},
		pollInterval: 2 * time.Second,
		spacing:      spacing,
		queues:       map[string]int{},
		stopCh:       make(chan struct{}),
	}
}

// Register maps a job type to its handler. Must happen before Start.
func (p *Pool) Register(jobType string, h Handler) {
	p.handlers[jobType] = h
}

// AddQueue declares a queue to poll and how many workers drain it.
func (p *Pool) AddQueue(name string, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	p.queues[name] = concurrency
}

func (p *Pool) Start(ctx context.Context) {
	for name, n := range p.queues {
		for i := 0; i < n; i++ {
			p.wg.Add(1)
			go p.runWorker(ctx, name)
		}
		log.Printf("Started %d worker(s) on queue %q", n, name)
	}
}

func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Pause stops claiming new jobs; running jobs finish normally.
func (p *Pool) Pause()  { p.paused.Store(true) }
func (p *Pool) Resume() { p.paused.Store(false) }

func (p *Pool) runWorker(ctx context.Context, queueName string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p.paused.Load() {
				continue
			}
			for {
				worked := p.runOne(ctx, queueName)
				if !worked {
					break
				}
				if p.spacing > 0 {
					select {
					case <-time.After(p.spacing):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
				}
				if p.paused.Load() {
					break
				}
			}
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runOne claims and runs a single job, reporting whether one was due.
func (p *Pool) runOne(ctx context.Context, queueName string) bool {
	job, err := p.queue.Claim(queueName)
	if err != nil {
		log.Printf("Error claiming job on %q: %v", queueName, err)
		return false
	}
	if job == nil {
		return false
	}

	handler, ok := p.handlers[job.Type]
	if !ok {
		log.Printf("No handler for job type %q, discarding job %d", job.Type, job.ID)
		if err := p.queue.Fail(job, queue.Terminal(errUnknownType(job.Type))); err != nil {
			log.Printf("Error discarding job %d: %v", job.ID, err)
		}
		return true
	}

	if err := handler(ctx, job); err != nil {
		log.Printf("Job %d (%s) failed on attempt %d: %v", job.ID, job.Type, job.Attempts, err)
		if failErr := p.queue.Fail(job, err); failErr != nil {
			log.Printf("Error resolving failed job %d: %v", job.ID, failErr)
		}
		return true
	}

	if err := p.queue.Complete(job); err != nil {
		log.Printf("Error completing job %d: %v", job.ID, err)
	}
	return true
}

type errUnknownType string

func (e errUnknownType) Error() string { return "unknown job type " + string(e) }
