package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/metrics"
	"github.com/notifyhub/mailqueue/internal/repository"
)

// Broker reports whether the shared broker connection can be used.
// *broker.Manager implements it.
type Broker interface {
	IsAvailable() bool
}

// JobQueue accepts jobs for asynchronous delivery. *queue.Queue implements it.
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.EmailJob) (string, error)
	Available() bool
}

// Sender performs a send in the calling goroutine.
// *dispatcher.Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, job domain.Job) error
}

// DeliveryMode is the path an email takes: Queued or Direct.
type DeliveryMode interface {
	Kind() domain.DeliveryMode
	isMode()
}

// Queued hands the job to the broker-backed queue.
type Queued struct{ Queue JobQueue }

// Direct sends the email before returning.
type Direct struct{ Dispatcher Sender }

func (Queued) Kind() domain.DeliveryMode { return domain.ModeQueued }
func (Direct) Kind() domain.DeliveryMode { return domain.ModeDirect }
func (Queued) isMode()                   {}
func (Direct) isMode()                   {}

// Receipt tells the caller how an email was accepted. JobID is empty for
// direct sends.
type Receipt struct {
	Mode  domain.DeliveryMode `json:"mode"`
	JobID string              `json:"job_id,omitempty"`
}

// EmailService is the entry point used by HTTP handlers and the CLI to send
// transactional emails. It prefers the queue and degrades to direct
// delivery whenever the broker cannot be used.
type EmailService struct {
	broker     Broker
	queue      JobQueue
	dispatcher Sender
	deliveries repository.DeliveryRepository
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewEmailService wires the service. queue, deliveries and m may be nil.
func NewEmailService(
	b Broker,
	q JobQueue,
	d Sender,
	deliveries repository.DeliveryRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *EmailService {
	return &EmailService{
		broker:     b,
		queue:      q,
		dispatcher: d,
		deliveries: deliveries,
		metrics:    m,
		logger:     logger.Named("email"),
	}
}

// Mode returns the delivery path for a request made now.
func (s *EmailService) Mode() DeliveryMode {
	if s.queue != nil && s.broker != nil && s.broker.IsAvailable() && s.queue.Available() {
		return Queued{Queue: s.queue}
	}
	return Direct{Dispatcher: s.dispatcher}
}

func (s *EmailService) SendWelcome(ctx context.Context, email, name string) (Receipt, error) {
	job, err := domain.NewWelcomeJob(email, name)
	if err != nil {
		return Receipt{}, err
	}
	return s.deliver(ctx, job)
}

func (s *EmailService) SendResetPassword(ctx context.Context, email, token string) (Receipt, error) {
	job, err := domain.NewResetPasswordJob(email, token)
	if err != nil {
		return Receipt{}, err
	}
	return s.deliver(ctx, job)
}

func (s *EmailService) SendPasswordChanged(ctx context.Context, email, name string) (Receipt, error) {
	job, err := domain.NewPasswordChangedJob(email, name)
	if err != nil {
		return Receipt{}, err
	}
	return s.deliver(ctx, job)
}

// Submit accepts a job in wire form, validating it first.
func (s *EmailService) Submit(ctx context.Context, job domain.EmailJob) (Receipt, error) {
	typed, err := domain.Decode(job)
	if err != nil {
		return Receipt{}, err
	}
	return s.deliver(ctx, typed)
}

func (s *EmailService) deliver(ctx context.Context, job domain.Job) (Receipt, error) {
	switch m := s.Mode().(type) {
	case Queued:
		id, err := m.Queue.Enqueue(ctx, domain.Encode(job))
		if err == nil {
			s.metrics.Enqueued(string(job.Kind()))
			return Receipt{Mode: domain.ModeQueued, JobID: id}, nil
		}
		if !s.canFallBack(err) {
			return Receipt{}, err
		}
		s.logger.Warn("queue unavailable, sending email directly",
			zap.String("type", string(job.Kind())),
			zap.Error(err))
		return s.direct(ctx, s.dispatcher, job)
	case Direct:
		return s.direct(ctx, m.Dispatcher, job)
	}
	return Receipt{}, errors.New("unknown delivery mode")
}

// canFallBack reports whether an enqueue failure means the broker path is
// gone rather than the job being bad.
func (s *EmailService) canFallBack(err error) bool {
	switch {
	case errors.Is(err, domain.ErrQueueUnavailable),
		errors.Is(err, domain.ErrQueueClosed),
		errors.Is(err, domain.ErrConnection):
		return true
	}
	return s.broker == nil || !s.broker.IsAvailable()
}

// direct sends job before returning. Transport failures are logged and
// recorded but not returned: the email is best effort and the caller's
// request (sign-up, password change) has already succeeded.
func (s *EmailService) direct(ctx context.Context, d Sender, job domain.Job) (Receipt, error) {
	receipt := Receipt{Mode: domain.ModeDirect}
	kind := string(job.Kind())

	start := time.Now()
	err := d.Send(ctx, job)
	latency := time.Since(start)

	if err != nil && domain.IsPermanent(err) {
		return Receipt{}, err
	}
	s.record(ctx, job, err)

	if err != nil {
		s.metrics.Failed(kind, domain.ModeDirect)
		s.logger.Error("direct email delivery failed",
			zap.String("type", kind),
			zap.String("recipient", job.Recipient()),
			zap.Error(err))
		return receipt, nil
	}

	s.metrics.Sent(kind, domain.ModeDirect, latency)
	s.logger.Info("email sent directly",
		zap.String("type", kind),
		zap.String("recipient", job.Recipient()),
		zap.Duration("latency", latency))
	return receipt, nil
}

func (s *EmailService) record(ctx context.Context, job domain.Job, sendErr error) {
	if s.deliveries == nil {
		return
	}
	d := &domain.Delivery{
		ID:        uuid.NewString(),
		Type:      string(job.Kind()),
		Recipient: job.Recipient(),
		Mode:      domain.ModeDirect,
		Status:    domain.DeliverySent,
		Attempts:  1,
		CreatedAt: time.Now().UTC(),
	}
	if sendErr != nil {
		msg := sendErr.Error()
		d.Status = domain.DeliveryFailed
		d.Error = &msg
	}
	if err := s.deliveries.Record(ctx, d); err != nil {
		s.logger.Warn("failed to record delivery", zap.Error(err))
	}
}
