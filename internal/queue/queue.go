package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// Handler executes one attempt of a job. A nil return completes the job.
type Handler func(ctx context.Context, rec *domain.JobRecord) error

// Hooks are optional callbacks fired after each state change of a record.
type Hooks struct {
	OnEnqueued  func(rec *domain.JobRecord)
	OnCompleted func(rec *domain.JobRecord, elapsed time.Duration)
	OnRetry     func(rec *domain.JobRecord, delay time.Duration, err error)
	OnFailed    func(rec *domain.JobRecord, err error)
}

type Options struct {
	Name          string        // "email-queue"
	MaxAttempts   int           // 3
	BackoffBase   time.Duration // 1s
	BackoffFactor float64       // 2
	Concurrency   int           // 1
	Block         time.Duration // how long one Reserve call waits; 1s
	Hooks         Hooks
}

func (o *Options) setDefaults() {
	if o.Name == "" {
		o.Name = "email-queue"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffFactor < 1 {
		o.BackoffFactor = 2
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Block <= 0 {
		o.Block = time.Second
	}
}

// Queue is the durable email job queue. Jobs are persisted through a Store;
// exactly one Handler is bound to consume them.
type Queue struct {
	store  Store
	opts   Options
	logger *zap.Logger
	now    func() time.Time
	host   string

	mu          sync.Mutex
	initialized bool
	closed      bool
	running     bool
	handler     Handler
	stop        context.CancelFunc
	wg          sync.WaitGroup
}

func New(store Store, opts Options, logger *zap.Logger) *Queue {
	opts.setDefaults()
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	return &Queue{
		store:  store,
		opts:   opts,
		logger: logger.Named("queue").With(zap.String("queue", opts.Name)),
		now:    time.Now,
		host:   host,
	}
}

func (q *Queue) Name() string { return q.opts.Name }

// Init prepares the store. Until it succeeds Enqueue fails with
// domain.ErrQueueUnavailable and never reaches the broker.
func (q *Queue) Init(ctx context.Context) error {
	if q == nil || q.store == nil {
		return domain.ErrQueueUnavailable
	}
	if err := q.store.Init(ctx); err != nil {
		q.logger.Warn("queue initialization failed", zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrQueueUnavailable, err)
	}

	q.mu.Lock()
	q.initialized = true
	q.mu.Unlock()
	q.logger.Info("queue initialized",
		zap.Int("max_attempts", q.opts.MaxAttempts),
		zap.Duration("backoff_base", q.opts.BackoffBase),
		zap.Float64("backoff_factor", q.opts.BackoffFactor))
	return nil
}

// Available reports whether Enqueue can currently accept jobs.
func (q *Queue) Available() bool {
	if q == nil || q.store == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.initialized && !q.closed
}

// Enqueue persists job as a new pending record and returns its id.
func (q *Queue) Enqueue(ctx context.Context, job domain.EmailJob) (string, error) {
	if q == nil || q.store == nil {
		return "", domain.ErrQueueUnavailable
	}
	q.mu.Lock()
	initialized, closed := q.initialized, q.closed
	q.mu.Unlock()
	if !initialized {
		return "", domain.ErrQueueUnavailable
	}
	if closed {
		return "", domain.ErrQueueClosed
	}

	now := q.now().UTC()
	rec := &domain.JobRecord{
		ID:          uuid.NewString(),
		Queue:       q.opts.Name,
		Job:         job,
		MaxAttempts: q.opts.MaxAttempts,
		Backoff: domain.BackoffPolicy{
			Type:   "exponential",
			Delay:  q.opts.BackoffBase.Milliseconds(),
			Factor: q.opts.BackoffFactor,
		},
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := q.store.Push(ctx, rec); err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", job.Type, err)
	}

	q.logger.Debug("email job enqueued", zap.String("job_id", rec.ID), zap.String("type", job.Type))
	if h := q.opts.Hooks.OnEnqueued; h != nil {
		h(rec)
	}
	return rec.ID, nil
}

// Process binds the queue's single handler.
func (q *Queue) Process(h Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handler != nil {
		return domain.ErrHandlerRegistered
	}
	q.handler = h
	return nil
}

// Start launches Concurrency pull loops. They stop pulling when ctx is
// cancelled or Close is called; a job already handed to the handler runs to
// completion on a context that is not cancelled by shutdown.
func (q *Queue) Start(ctx context.Context) error {
	if q == nil || q.store == nil {
		return domain.ErrQueueUnavailable
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.handler == nil:
		return errors.New("queue: no handler registered")
	case !q.initialized:
		return domain.ErrQueueUnavailable
	case q.closed:
		return domain.ErrQueueClosed
	case q.running:
		return errors.New("queue: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	q.stop = cancel
	q.running = true

	for i := 0; i < q.opts.Concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d-%d", q.host, os.Getpid(), i)
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.work(runCtx, consumer)
		}()
	}
	q.logger.Info("queue workers started", zap.Int("concurrency", q.opts.Concurrency))
	return nil
}

func (q *Queue) work(ctx context.Context, consumer string) {
	log := q.logger.With(zap.String("consumer", consumer))
	log.Info("worker started")

	for {
		if ctx.Err() != nil {
			log.Info("worker stopping")
			return
		}
		if _, err := q.step(ctx, consumer); err != nil {
			if ctx.Err() != nil {
				continue
			}
			// The broker manager already reports outages.
			if errors.Is(err, domain.ErrConnection) {
				log.Debug("reserve failed, broker unavailable", zap.Error(err))
			} else {
				log.Warn("reserve failed", zap.Error(err))
			}
			_ = sleepCtx(ctx, time.Second)
		}
	}
}

// step reserves and handles at most one job. It reports whether a job was
// handled.
func (q *Queue) step(ctx context.Context, consumer string) (bool, error) {
	rec, err := q.store.Reserve(ctx, consumer, q.opts.Block)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	q.handle(context.WithoutCancel(ctx), rec)
	return true, nil
}

func (q *Queue) handle(ctx context.Context, rec *domain.JobRecord) {
	log := q.logger.With(
		zap.String("job_id", rec.ID),
		zap.String("type", rec.Job.Type),
	)

	// A redelivered record may already have used its last attempt before
	// the previous worker died.
	if rec.Attempts >= rec.MaxAttempts {
		q.fail(ctx, log, rec, fmt.Errorf("attempts exhausted (%d/%d)", rec.Attempts, rec.MaxAttempts))
		return
	}

	rec.Attempts++
	rec.Status = domain.StatusActive
	rec.NextRunAt = nil
	rec.UpdatedAt = q.now().UTC()
	if err := q.store.Save(ctx, rec); err != nil {
		log.Warn("failed to mark job active", zap.Error(err))
	}

	start := time.Now()
	err := q.invoke(ctx, rec)
	if err == nil {
		now := q.now().UTC()
		rec.Status = domain.StatusCompleted
		rec.LastError = ""
		rec.UpdatedAt = now
		rec.FinishedAt = &now
		if err := q.store.Complete(ctx, rec); err != nil {
			log.Error("failed to mark job completed", zap.Error(err))
		}
		elapsed := time.Since(start)
		log.Info("email job completed", zap.Int("attempt", rec.Attempts), zap.Duration("latency", elapsed))
		if h := q.opts.Hooks.OnCompleted; h != nil {
			h(rec, elapsed)
		}
		return
	}

	if domain.IsPermanent(err) || rec.Attempts >= rec.MaxAttempts {
		q.fail(ctx, log, rec, err)
		return
	}

	delay := rec.Backoff.DelayFor(rec.Attempts)
	runAt := q.now().UTC().Add(delay)
	rec.Status = domain.StatusPending
	rec.LastError = err.Error()
	rec.UpdatedAt = q.now().UTC()
	rec.NextRunAt = &runAt
	if serr := q.store.Retry(ctx, rec, runAt); serr != nil {
		log.Error("failed to schedule retry", zap.Error(serr))
	}
	log.Warn("email job failed, retry scheduled",
		zap.Int("attempt", rec.Attempts),
		zap.Int("max_attempts", rec.MaxAttempts),
		zap.Duration("retry_in", delay),
		zap.Error(err))
	if h := q.opts.Hooks.OnRetry; h != nil {
		h(rec, delay, err)
	}
}

func (q *Queue) fail(ctx context.Context, log *zap.Logger, rec *domain.JobRecord, cause error) {
	now := q.now().UTC()
	rec.Status = domain.StatusFailed
	rec.LastError = cause.Error()
	rec.UpdatedAt = now
	rec.FinishedAt = &now
	if err := q.store.Fail(ctx, rec); err != nil {
		log.Error("failed to mark job failed", zap.Error(err))
	}
	log.Error("email job failed permanently",
		zap.Int("attempts", rec.Attempts),
		zap.Bool("retryable", !domain.IsPermanent(cause)),
		zap.Error(cause))
	if h := q.opts.Hooks.OnFailed; h != nil {
		h(rec, cause)
	}
}

func (q *Queue) invoke(ctx context.Context, rec *domain.JobRecord) (err error) {
	q.mu.Lock()
	h := q.handler
	q.mu.Unlock()
	if h == nil {
		return errors.New("queue: no handler registered")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, rec)
}

// PromoteDue makes retries whose backoff has elapsed ready again.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	if q == nil || q.store == nil {
		return 0, domain.ErrQueueUnavailable
	}
	return q.store.PromoteDue(ctx, q.now())
}

func (q *Queue) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	if q == nil || q.store == nil {
		return nil, domain.ErrQueueUnavailable
	}
	return q.store.Get(ctx, id)
}

func (q *Queue) Stats(ctx context.Context) (domain.QueueStats, error) {
	if q == nil || q.store == nil {
		return domain.QueueStats{}, domain.ErrQueueUnavailable
	}
	return q.store.Stats(ctx)
}

// Close stops accepting jobs and pulling new ones, then waits for in-flight
// jobs until ctx expires.
func (q *Queue) Close(ctx context.Context) error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	stop := q.stop
	q.mu.Unlock()

	q.logger.Info("stopping queue")
	if stop != nil {
		stop()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.logger.Warn("queue shutdown timed out, in-flight jobs will be redelivered")
		return ctx.Err()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
