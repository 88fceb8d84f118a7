package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foofork/riptide/internal/observability"
	"github.com/foofork/riptide/internal/orchestrator"
)

// Pool runs queued jobs through an orchestrator.Runner with bounded
// concurrency, retrying failed jobs with exponential backoff up to each
// job's MaxAttempts. Grounded on the teacher's Scheduler: a fixed set of
// worker goroutines polling a shared queue, idle-polling on empty rather
// than blocking, so Stop can drain promptly.
type Pool struct {
	runner *orchestrator.Runner
	store  Store
	queue  *jobQueue
	logger *slog.Logger

	concurrency int
	wg          sync.WaitGroup
	stop        chan struct{}

	metrics *observability.Metrics
}

// SetMetrics wires an observability.Metrics instance so submissions,
// retries and permanent failures are counted. Optional; a Pool with no
// metrics wired (every existing test) just skips the increments.
func (p *Pool) SetMetrics(m *observability.Metrics) {
	p.metrics = m
}

// New builds a Pool with concurrency worker goroutines, persisting job
// state to store and running each job's URLs through runner.
func New(runner *orchestrator.Runner, store Store, concurrency int, logger *slog.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		runner:      runner,
		store:       store,
		queue:       newJobQueue(),
		logger:      logger.With("component", "worker_pool"),
		concurrency: concurrency,
		stop:        make(chan struct{}),
	}
}

// Start launches the worker pool. Call Stop to drain and shut it down.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", "workers", p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop closes the intake queue and blocks until in-flight jobs finish.
func (p *Pool) Stop() {
	close(p.stop)
	p.queue.Close()
	p.wg.Wait()
}

// Submit enqueues job and persists its initial Queued state. The caller
// polls job.ID via Status.
func (p *Pool) Submit(ctx context.Context, job *Job) error {
	if err := p.store.Save(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	p.queue.Push(job)
	if p.metrics != nil {
		p.metrics.JobsSubmitted.Add(1)
	}
	return nil
}

// Status returns job id's current state.
func (p *Pool) Status(ctx context.Context, id string) (*Job, bool, error) {
	return p.store.Get(ctx, id)
}

// QueueDepth returns the number of jobs currently queued, for the health
// endpoint's degradation-score queue-saturation signal.
func (p *Pool) QueueDepth() int {
	return p.queue.Len()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With("worker_id", id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		default:
		}

		job := p.queue.TryPop(time.Now())
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		p.run(ctx, log, job)
	}
}

func (p *Pool) run(ctx context.Context, log *slog.Logger, job *Job) {
	log = log.With("job_id", job.ID, "kind", job.Kind)

	job.Status = StatusRunning
	job.Attempts++
	job.UpdatedAt = time.Now()
	p.saveQuietly(ctx, log, job)

	req := jobCrawlRequest(job)
	results, err := p.runner.Run(ctx, req)
	job.UpdatedAt = time.Now()

	if err != nil {
		p.handleFailure(ctx, log, job, err)
		return
	}

	failed := 0
	for _, r := range results {
		if r == nil || !r.Success() {
			failed++
		}
	}
	if failed == len(results) && len(results) > 0 {
		p.handleFailure(ctx, log, job, fmt.Errorf("all %d URLs failed", failed))
		return
	}

	job.Status = StatusDone
	job.Results = results
	p.saveQuietly(ctx, log, job)
	log.Info("job completed", "urls", len(job.URLs), "failed", failed)
}

func (p *Pool) handleFailure(ctx context.Context, log *slog.Logger, job *Job, cause error) {
	job.Err = cause.Error()

	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		p.saveQuietly(ctx, log, job)
		if p.metrics != nil {
			p.metrics.JobsFailed.Add(1)
		}
		log.Warn("job failed permanently", "attempts", job.Attempts, "error", cause)
		return
	}

	job.Status = StatusQueued
	job.ReadyAt = time.Now().Add(backoff(job.Attempts))
	p.saveQuietly(ctx, log, job)
	if p.metrics != nil {
		p.metrics.JobsRetried.Add(1)
	}
	log.Warn("job failed, retrying", "attempt", job.Attempts, "retry_in", job.ReadyAt.Sub(time.Now()), "error", cause)
	p.queue.Push(job)
}

func (p *Pool) saveQuietly(ctx context.Context, log *slog.Logger, job *Job) {
	if err := p.store.Save(ctx, job); err != nil {
		log.Error("failed to persist job state", "error", err)
	}
}
