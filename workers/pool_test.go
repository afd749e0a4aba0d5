package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizscout/models"
	"quizscout/queue"
)

type poolStore struct {
	mu          sync.Mutex
	jobs        []*models.Job
	completed   int
	discarded   int
	rescheduled int
}

func (s *poolStore) InsertJob(job *models.Job) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = int64(len(s.jobs) + 1)
	s.jobs = append(s.jobs, job)
	return job.ID, nil
}

func (s *poolStore) HasJobWithin(uniqueKey string, since time.Time) (bool, error) {
	return false, nil
}

func (s *poolStore) ClaimNextJob(queueName string, now time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Queue == queueName && j.Status == models.JobStatusPending && !j.ScheduledAt.After(now) {
			j.Status = models.JobStatusRunning
			j.Attempts++
			return j, nil
		}
	}
	return nil, nil
}

func (s *poolStore) MarkJobCompleted(id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	s.setStatus(id, models.JobStatusCompleted)
	return nil
}

func (s *poolStore) RescheduleJob(id int64, at time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rescheduled++
	s.setStatus(id, models.JobStatusDiscarded) // keep it out of the claim loop
	return nil
}

func (s *poolStore) DiscardJob(id int64, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discarded++
	s.setStatus(id, models.JobStatusDiscarded)
	return nil
}

func (s *poolStore) setStatus(id int64, status models.JobStatus) {
	for _, j := range s.jobs {
		if j.ID == id {
			j.Status = status
		}
	}
}

func (s *poolStore) counts() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, s.rescheduled, s.discarded
}

func startPool(t *testing.T, q *queue.Queue, register func(p *Pool)) *Pool {
	t.Helper()
	p := NewPool(q, 0)
	p.pollInterval = 10 * time.Millisecond
	register(p)
	p.AddQueue(models.QueueDetail, 1)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	t.Cleanup(func() {
		cancel()
		p.Stop()
	})
	return p
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestPoolRunsAndCompletesJob(t *testing.T) {
	store := &poolStore{}
	q := queue.New(store)

	done := make(chan models.Job, 1)
	startPool(t, q, func(p *Pool) {
		p.Register(models.JobTypeDetail, func(ctx context.Context, job *models.Job) error {
			done <- *job
			return nil
		})
	})

	if _, err := q.Enqueue(models.QueueDetail, models.JobTypeDetail, models.DetailJobArgs{SourceID: "quizmeisters"}, queue.Options{}); err != nil {
		t.Fatal(err)
	}

	select {
	case job := <-done:
		if job.Type != models.JobTypeDetail {
			t.Errorf("job type = %s", job.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}

	waitFor(t, func() bool { c, _, _ := store.counts(); return c == 1 })
}

func TestPoolReschedulesFailedJob(t *testing.T) {
	store := &poolStore{}
	q := queue.New(store)

	startPool(t, q, func(p *Pool) {
		p.Register(models.JobTypeDetail, func(ctx context.Context, job *models.Job) error {
			return errors.New("transient")
		})
	})

	if _, err := q.Enqueue(models.QueueDetail, models.JobTypeDetail, nil, queue.Options{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { _, r, _ := store.counts(); return r == 1 })
}

func TestPoolDiscardsUnknownJobType(t *testing.T) {
	store := &poolStore{}
	q := queue.New(store)

	startPool(t, q, func(p *Pool) {})

	if _, err := q.Enqueue(models.QueueDetail, "mystery", nil, queue.Options{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { _, _, d := store.counts(); return d == 1 })
}

func TestPoolPauseStopsClaims(t *testing.T) {
	store := &poolStore{}
	q := queue.New(store)

	ran := make(chan struct{}, 10)
	p := startPool(t, q, func(p *Pool) {
		p.Register(models.JobTypeDetail, func(ctx context.Context, job *models.Job) error {
			ran <- struct{}{}
			return nil
		})
	})

	p.Pause()
	if _, err := q.Enqueue(models.QueueDetail, models.JobTypeDetail, nil, queue.Options{}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ran:
		t.Fatal("paused pool claimed a job")
	case <-time.After(100 * time.Millisecond):
	}

	p.Resume()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("resumed pool never claimed the job")
	}
}
