package processing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
	"github.com/bryanwahyu/sheet-scraper/internal/metrics"
)

// Runner executes one job.
type Runner interface {
	Run(ctx context.Context, job domain.Job) error
}

// Pool is a bounded job queue served by a fixed number of workers.
type Pool struct {
	runner        Runner
	jobs          chan domain.Job
	workers       int
	submitTimeout time.Duration
	log           *slog.Logger
}

func NewPool(runner Runner, workers, queueSize int, submitTimeout time.Duration, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		runner:        runner,
		jobs:          make(chan domain.Job, queueSize),
		workers:       workers,
		submitTimeout: submitTimeout,
		log:           log,
	}
}

// Submit enqueues the job, waiting at most submitTimeout for room.
func (p *Pool) Submit(ctx context.Context, job domain.Job) error {
	select {
	case p.jobs <- job:
		metrics.SetQueueDepth(len(p.jobs))
		return nil
	default:
	}
	if p.submitTimeout <= 0 {
		return domain.ErrQueueFull
	}

	t := time.NewTimer(p.submitTimeout)
	defer t.Stop()
	select {
	case p.jobs <- job:
		metrics.SetQueueDepth(len(p.jobs))
		return nil
	case <-t.C:
		return domain.ErrQueueFull
	case <-ctx.Done():
		return fmt.Errorf("submit: %w", ctx.Err())
	}
}

// Run starts the workers and blocks until ctx is cancelled.
// Queued jobs that were not started stay in processing and are resumed on the next start.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-p.jobs:
					metrics.SetQueueDepth(len(p.jobs))
					if err := p.runner.Run(gctx, job); err != nil {
						p.log.Debug("job finished with error", "worker", worker, "file_id", job.FileID, "err", err)
					}
				}
			}
		})
	}
	return g.Wait()
}

// Inline runs each job synchronously inside Submit. Used by the one-shot CLI.
type Inline struct {
	Runner Runner
}

// Submit runs the job; its outcome is recorded on the file record, not returned.
func (i Inline) Submit(ctx context.Context, job domain.Job) error {
	_ = i.Runner.Run(ctx, job)
	return nil
}
