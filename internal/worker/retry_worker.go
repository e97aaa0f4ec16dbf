package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/metrics"
)

// DueQueue is the part of *queue.Queue the retry worker drives.
type DueQueue interface {
	PromoteDue(ctx context.Context) (int, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
}

// RetryWorker moves jobs whose backoff has elapsed back onto the queue and
// refreshes the queue depth gauges.
//
// Parked retries live in the broker, so they survive restarts; any process
// running a RetryWorker can promote them.
type RetryWorker struct {
	q        DueQueue
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewRetryWorker(q DueQueue, interval time.Duration, m *metrics.Metrics, logger *zap.Logger) *RetryWorker {
	return &RetryWorker{q: q, interval: interval, metrics: m, logger: logger.Named("retry")}
}

// Run ticks every interval and promotes any due retries.
// Stops cleanly when ctx is cancelled.
func (rw *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("retry worker started", zap.Duration("interval", rw.interval))

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("retry worker stopping")
			return
		case <-ticker.C:
			rw.poll(ctx)
		}
	}
}

func (rw *RetryWorker) poll(ctx context.Context) {
	n, err := rw.q.PromoteDue(ctx)
	if err != nil {
		rw.logPollError("retry poll error", err)
		return
	}
	if n > 0 {
		rw.logger.Debug("promoted due retries", zap.Int("count", n))
	}

	stats, err := rw.q.Stats(ctx)
	if err != nil {
		rw.logPollError("queue stats error", err)
		return
	}
	rw.metrics.SetQueueStats(stats)
}

// logPollError keeps a broker outage from flooding the log every tick;
// the broker manager already reports it.
func (rw *RetryWorker) logPollError(msg string, err error) {
	if errors.Is(err, domain.ErrConnection) || errors.Is(err, context.Canceled) {
		rw.logger.Debug(msg, zap.Error(err))
		return
	}
	rw.logger.Error(msg, zap.Error(err))
}
