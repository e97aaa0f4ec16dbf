package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// Dispatcher sends one email job. *dispatcher.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job domain.EmailJob) error
}

// Limiter throttles sends per job type. *ratelimiter.TypeLimiters implements it.
type Limiter interface {
	Wait(ctx context.Context, t domain.JobType) error
}

// Worker is the queue handler: it applies per-type rate limiting and hands
// the job to the dispatcher. Retry and failure bookkeeping is done by the
// queue around it.
type Worker struct {
	dispatcher Dispatcher
	limiter    Limiter
	logger     *zap.Logger
}

// NewWorker constructs a worker. limiter is optional (nil = unlimited).
func NewWorker(d Dispatcher, limiter Limiter, logger *zap.Logger) *Worker {
	return &Worker{dispatcher: d, limiter: limiter, logger: logger.Named("worker")}
}

// Handle processes one attempt of rec. It matches queue.Handler.
func (w *Worker) Handle(ctx context.Context, rec *domain.JobRecord) error {
	log := w.logger.With(
		zap.String("job_id", rec.ID),
		zap.String("type", rec.Job.Type),
		zap.Int("attempt", rec.Attempts),
	)

	// Block here until the per-type rate limiter grants a token.
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, domain.JobType(rec.Job.Type)); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	if err := w.dispatcher.Dispatch(ctx, rec.Job); err != nil {
		log.Debug("dispatch failed", zap.Error(err))
		return err
	}
	log.Debug("dispatched", zap.Duration("latency", time.Since(start)))
	return nil
}
