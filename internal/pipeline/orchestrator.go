package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/tocgest/internal/document"
)

// ErrQueueFull is returned by Submit when no worker can take the job.
var ErrQueueFull = errors.New("job queue is full")

// OrchestratorConfig sizes the async job machinery.
type OrchestratorConfig struct {
	WorkerCount  int
	MaxQueueSize int
	JobTTL       time.Duration
}

// Orchestrator runs queued extraction jobs on a fixed pool of workers.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	pipeline *Pipeline
	open     OpenFunc
	log      *slog.Logger
	cfg      OrchestratorConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewOrchestrator creates the job pipeline. Call Start to launch workers.
func NewOrchestrator(cfg OrchestratorConfig, p *Pipeline, log *slog.Logger) *Orchestrator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 1
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		pipeline: p,
		open:     document.Open,
		log:      log,
		cfg:      cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.pipeline, o.open, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(cleanupInterval(o.cfg.JobTTL))
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop cancels in-flight jobs and waits for workers to exit. Jobs still
// queued are marked failed with phase "shutdown".
func (o *Orchestrator) Stop() {
	o.once.Do(func() {
		if o.cancel != nil {
			o.cancel()
		}
		close(o.queue)
		o.wg.Wait()

		drained := 0
		for job := range o.queue {
			job.ReleaseFile()
			job.SetStatus(StatusFailed, "shutdown")
			drained++
		}
		if drained > 0 {
			o.log.Warn("queued jobs abandoned at shutdown", "jobs", drained)
		}
	})
}

// Submit queues a job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.ReleaseFile()
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// SetOpener replaces the function that turns uploads into documents. It must
// be called before Start.
func (o *Orchestrator) SetOpener(open OpenFunc) {
	if open != nil {
		o.open = open
	}
}

// Open validates an upload the same way queued jobs are validated.
func (o *Orchestrator) Open(data []byte, name string) (*document.Document, error) {
	return o.open(data, name)
}

// Pipeline returns the pipeline for synchronous use by API handlers.
func (o *Orchestrator) Pipeline() *Pipeline {
	return o.pipeline
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < 5*time.Minute {
		return max(ttl/2, time.Second)
	}
	return 5 * time.Minute
}
