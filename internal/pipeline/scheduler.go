package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/technosupport/herdvision/internal/data"
	"github.com/technosupport/herdvision/internal/metrics"
)

// SchedulerConfig tunes the dispatch loop. Grounded on the teacher's
// health.SchedulerConfig: a poll interval plus a fixed worker pool size,
// generalized from "re-check every camera" to "pick up every pending video".
type SchedulerConfig struct {
	PollInterval   time.Duration
	WorkerPoolSize int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{PollInterval: 10 * time.Second, WorkerPoolSize: 4}
}

// Scheduler polls for Pending video jobs and dispatches them onto a fixed
// worker pool, one Process call per job; each worker claims its job right
// before Process runs, so two scheduler instances never double-process a video.
type Scheduler struct {
	cfg     SchedulerConfig
	orch    *Orchestrator
	jobs    data.VideoJobModel
	quit    chan struct{}
	wg      sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig, orch *Orchestrator, jobs data.VideoJobModel) *Scheduler {
	if cfg.PollInterval == 0 {
		cfg = DefaultSchedulerConfig()
	}
	return &Scheduler{cfg: cfg, orch: orch, jobs: jobs, quit: make(chan struct{})}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) Stop() {
	close(s.quit)
	s.wg.Wait()
}

type dispatchedJob struct {
	id   int64
	path string
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	queue := make(chan dispatchedJob, s.cfg.WorkerPoolSize*2)

	for i := 0; i < s.cfg.WorkerPoolSize; i++ {
		s.wg.Add(1)
		go s.worker(queue)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.dispatchPending(queue)

	for {
		select {
		case <-ticker.C:
			s.dispatchPending(queue)
			metrics.PipelineQueueDepth.Set(float64(len(queue)))
		case <-s.quit:
			close(queue)
			return
		}
	}
}

func (s *Scheduler) worker(queue <-chan dispatchedJob) {
	defer s.wg.Done()
	ctx := context.Background()

	for job := range queue {
		claimed, err := s.jobs.Claim(ctx, job.id)
		if err != nil {
			log.Printf("[Pipeline] failed to claim job %d: %v", job.id, err)
			continue
		}
		if !claimed {
			continue // another worker (or process) already picked this one up
		}

		metrics.PipelineWorkerPoolActive.Inc()
		result := s.orch.Process(ctx, job.id, job.path)
		metrics.PipelineWorkerPoolActive.Dec()

		if result.Status == StatusFailed {
			log.Printf("[Pipeline] video %d failed: %v", job.id, result.Errors)
		}
	}
}

// dispatchPending queues every currently-pending job, claiming happens in
// the worker itself right before Process runs, so a job that doesn't fit
// in the buffered queue this tick is simply picked up again next tick
// without ever being marked Processing prematurely.
func (s *Scheduler) dispatchPending(queue chan<- dispatchedJob) {
	ctx := context.Background()
	pending, err := s.jobs.ListPending(ctx, s.cfg.WorkerPoolSize*2)
	if err != nil {
		log.Printf("[Pipeline] failed to list pending jobs: %v", err)
		return
	}

	for _, j := range pending {
		select {
		case queue <- dispatchedJob{id: j.ID, path: j.Path}:
		default:
			return // queue full this tick; remaining pending jobs retry next poll
		}
	}
}
