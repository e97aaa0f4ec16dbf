package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/metrics"
	"github.com/notifyhub/mailqueue/internal/queue"
	"github.com/notifyhub/mailqueue/internal/repository"
)

// Outcomes turns queue state changes into metrics and delivery log rows.
// Both sinks are optional.
type Outcomes struct {
	deliveries repository.DeliveryRepository
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewOutcomes(deliveries repository.DeliveryRepository, m *metrics.Metrics, logger *zap.Logger) *Outcomes {
	return &Outcomes{deliveries: deliveries, metrics: m, logger: logger.Named("outcomes")}
}

// Hooks returns the queue callbacks.
func (o *Outcomes) Hooks() queue.Hooks {
	return queue.Hooks{
		OnCompleted: func(rec *domain.JobRecord, elapsed time.Duration) {
			o.metrics.Sent(rec.Job.Type, domain.ModeQueued, elapsed)
			o.record(rec, domain.DeliverySent)
		},
		OnRetry: func(rec *domain.JobRecord, _ time.Duration, _ error) {
			o.metrics.Retried(rec.Job.Type)
		},
		OnFailed: func(rec *domain.JobRecord, _ error) {
			o.metrics.Failed(rec.Job.Type, domain.ModeQueued)
			o.record(rec, domain.DeliveryFailed)
		},
	}
}

func (o *Outcomes) record(rec *domain.JobRecord, status domain.DeliveryStatus) {
	if o.deliveries == nil {
		return
	}
	jobID := rec.ID
	d := &domain.Delivery{
		ID:        uuid.NewString(),
		JobID:     &jobID,
		Type:      rec.Job.Type,
		Recipient: rec.Job.Payload.Email,
		Mode:      domain.ModeQueued,
		Status:    status,
		Attempts:  rec.Attempts,
		CreatedAt: time.Now().UTC(),
	}
	if rec.LastError != "" {
		msg := rec.LastError
		d.Error = &msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.deliveries.Record(ctx, d); err != nil {
		o.logger.Warn("failed to record delivery", zap.String("job_id", rec.ID), zap.Error(err))
	}
}
