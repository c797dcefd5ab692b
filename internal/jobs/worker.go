package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type WorkerPool struct {
	repo         *Repository
	handlers     map[string]Handler
	logger       *slog.Logger
	workerCount  int
	pollInterval time.Duration
	backoff      func(attempt int) time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option tunes a WorkerPool.
type Option func(*WorkerPool)

// WithPollInterval sets how long an idle worker sleeps before polling again.
func WithPollInterval(d time.Duration) Option {
	return func(p *WorkerPool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithBackoff replaces BackoffDuration for retry scheduling.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(p *WorkerPool) {
		if fn != nil {
			p.backoff = fn
		}
	}
}

func NewWorkerPool(repo *Repository, handlers map[string]Handler, logger *slog.Logger, workerCount int, opts ...Option) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &WorkerPool{
		repo:         repo,
		handlers:     handlers,
		logger:       logger,
		workerCount:  workerCount,
		pollInterval: 500 * time.Millisecond,
		backoff:      BackoffDuration,
		stop:         make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them. Safe to call twice.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Info("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Info("context canceled, worker exiting", "id", id)
			return
		default:
		}

		worked, err := p.runOnce(ctx)
		if err != nil {
			p.logger.Error("process job", "worker", id, "err", err)
		}
		if !worked || err != nil {
			p.sleep(ctx)
		}
	}
}

func (p *WorkerPool) sleep(ctx context.Context) {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stop:
	case <-ctx.Done():
	}
}

// runOnce fetches and processes a single job. It reports whether a job was
// found.
func (p *WorkerPool) runOnce(ctx context.Context) (bool, error) {
	job, err := p.repo.FetchNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	claimed, err := p.repo.Claim(ctx, job)
	if err != nil || !claimed {
		return claimed, err
	}

	h, ok := p.handlers[job.Type]
	if !ok {
		job.Status = StatusFailed
		job.LastError = "no handler"
		p.logger.Warn("no handler for job", "job_id", job.ID, "type", job.Type)
		return true, p.repo.MoveToDeadLetter(ctx, job)
	}

	herr := p.invoke(ctx, h, job)

	// the outcome must be written even when shutdown cancelled the handler
	wctx := context.WithoutCancel(ctx)
	if herr == nil {
		job.Status = StatusDone
		return true, p.repo.UpdateJob(wctx, job)
	}
	job.LastError = herr.Error()

	if ctx.Err() != nil {
		// interrupted, not failed: hand it back without spending an attempt
		job.Status = StatusRetry
		job.NextTryAt = nil
		p.logger.Info("job interrupted, requeued", "job_id", job.ID, "type", job.Type, "err", job.LastError)
		if upErr := p.repo.UpdateJob(wctx, job); upErr != nil {
			return true, fmt.Errorf("requeue interrupted job: %w", upErr)
		}
		return true, nil
	}
	job.Attempts++

	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		p.logger.Warn("job failed permanently", "job_id", job.ID, "type", job.Type, "attempts", job.Attempts, "err", job.LastError)
		if mvErr := p.repo.MoveToDeadLetter(wctx, job); mvErr != nil {
			return true, fmt.Errorf("move to dead letter: %w", mvErr)
		}
		return true, nil
	}

	t := time.Now().Add(p.backoff(job.Attempts))
	job.NextTryAt = &t
	job.Status = StatusRetry
	p.logger.Info("job scheduled for retry", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts, "next_try_at", t)
	if upErr := p.repo.UpdateJob(wctx, job); upErr != nil {
		return true, fmt.Errorf("update job for retry: %w", upErr)
	}
	return true, nil
}

func (p *WorkerPool) invoke(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(ctx, job)
}

// Enqueue convenience helper that creates a job and persists it
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	return Enqueue(ctx, p.repo, typ, payload, priority, maxAttempts)
}

// Enqueue marshals payload and persists a job of type typ.
func Enqueue(ctx context.Context, repo *Repository, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	j := &Job{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts, ScheduledAt: time.Now()}
	return repo.Enqueue(ctx, j)
}
