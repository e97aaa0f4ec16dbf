package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/queue"
)

// Pool manages the lifecycle of the queue consumers and the retry worker.
// The queue runs its own pull loops (Options.Concurrency of them); the pool
// binds the handler, starts everything and tears it down in order.
type Pool struct {
	q      *queue.Queue
	worker *Worker
	retry  *RetryWorker
	logger *zap.Logger

	wg sync.WaitGroup
}

func NewPool(q *queue.Queue, w *Worker, retry *RetryWorker, logger *zap.Logger) *Pool {
	return &Pool{q: q, worker: w, retry: retry, logger: logger.Named("pool")}
}

// Start binds the worker to the queue and launches the pull loops and the
// retry worker. Cancelling ctx stops both from picking up new work.
func (p *Pool) Start(ctx context.Context) error {
	if err := p.q.Process(p.worker.Handle); err != nil {
		return err
	}
	if err := p.q.Start(ctx); err != nil {
		return err
	}

	if p.retry != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.retry.Run(ctx)
		}()
	}
	p.logger.Info("worker pool started")
	return nil
}

// Stop closes the queue, letting in-flight jobs finish until ctx expires,
// then waits for the retry worker. The ctx passed to Start must already be
// cancelled or be cancelled concurrently for the retry worker to exit.
func (p *Pool) Stop(ctx context.Context) error {
	err := p.q.Close(ctx)
	p.Wait()
	return err
}

// Wait blocks until the retry worker has returned after ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}
