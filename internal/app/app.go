package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/broker"
	"github.com/notifyhub/mailqueue/internal/config"
	"github.com/notifyhub/mailqueue/internal/db"
	"github.com/notifyhub/mailqueue/internal/dispatcher"
	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/mail"
	"github.com/notifyhub/mailqueue/internal/metrics"
	"github.com/notifyhub/mailqueue/internal/provider"
	"github.com/notifyhub/mailqueue/internal/queue"
	"github.com/notifyhub/mailqueue/internal/ratelimiter"
	"github.com/notifyhub/mailqueue/internal/repository"
	"github.com/notifyhub/mailqueue/internal/service"
	"github.com/notifyhub/mailqueue/internal/worker"
)

// App owns every long-lived component of a process. Binaries build one with
// New, start what they need and call Close on the way out.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Broker     *broker.Manager
	Queue      *queue.Queue
	Dispatcher *dispatcher.Dispatcher
	Service    *service.EmailService
	Deliveries repository.DeliveryRepository

	pool *pgxpool.Pool
}

// New connects to the broker and, when configured, the database. A broker
// that cannot be reached is not an error: the app starts in direct delivery
// mode. A database that cannot be reached is.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	// ---- delivery log ----
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database migrations applied")
		a.pool = pool
		a.Deliveries = repository.NewPgDeliveryRepository(pool)
	} else {
		logger.Info("DATABASE_URL not set, keeping the delivery log in memory")
		a.Deliveries = repository.NewMemoryDeliveryRepository()
	}

	// ---- email sending ----
	mailer := mail.NewMailer(newProvider(cfg), cfg.AppName, cfg.AppURL, logger)
	a.Dispatcher = dispatcher.New(mailer)

	// ---- broker + queue ----
	retries := cfg.RedisMaxRetries
	if retries == 0 {
		retries = -1 // explicit zero means no retries
	}
	a.Broker = broker.NewManager(broker.Options{
		Addr:           cfg.RedisAddr,
		Username:       cfg.RedisUsername,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		ConnectTimeout: cfg.RedisConnectTimeout,
		MaxRetries:     retries,
		RetryStep:      cfg.RedisRetryStep,
		RetryCap:       cfg.RedisRetryCap,
		HealthInterval: cfg.RedisHealthInterval,
	}, logger)
	a.Broker.OnStateChange(func(s broker.State) {
		a.Metrics.SetBrokerUp(s == broker.StateReady)
	})

	store := queue.NewRedisStore(a.Broker, cfg.QueueName, cfg.StalledTimeout, cfg.RecordTTL)
	a.Queue = queue.New(store, queue.Options{
		Name:          cfg.QueueName,
		MaxAttempts:   cfg.JobMaxAttempts,
		BackoffBase:   cfg.JobBackoffBase,
		BackoffFactor: cfg.JobBackoffFactor,
		Concurrency:   cfg.WorkerConcurrency,
		Hooks:         worker.NewOutcomes(a.Deliveries, a.Metrics, logger).Hooks(),
	}, logger)

	if err := a.Broker.Connect(ctx); err != nil {
		logger.Warn("broker unavailable at startup, emails will be sent directly", zap.Error(err))
	} else if err := a.Queue.Init(ctx); err != nil {
		logger.Warn("email queue unavailable, emails will be sent directly", zap.Error(err))
	}

	a.Service = service.NewEmailService(a.Broker, a.Queue, a.Dispatcher, a.Deliveries, a.Metrics, logger)
	return a, nil
}

func newProvider(cfg *config.Config) provider.Provider {
	if cfg.MailTransport == "webhook" {
		return provider.NewWebhookProvider(cfg.WebhookURL, cfg.MailFromAddress, cfg.WebhookTimeout)
	}
	return provider.NewSMTPProvider(provider.SMTPConfig{
		Host:               cfg.SMTPHost,
		Port:               cfg.SMTPPort,
		User:               cfg.SMTPUser,
		Password:           cfg.SMTPPassword,
		FromAddress:        cfg.MailFromAddress,
		FromName:           cfg.MailFromName,
		InsecureSkipVerify: cfg.SMTPInsecure,
	})
}

// MonitorBroker watches the broker connection until ctx is cancelled or the
// reconnect cycle gives up. It returns at once if the broker never came up.
func (a *App) MonitorBroker(ctx context.Context) {
	if !a.Broker.IsAvailable() {
		return
	}
	a.Broker.Monitor(ctx)
}

// NewWorkerPool builds the consumer side: the rate-limited worker bound to
// the queue and the retry worker.
func (a *App) NewWorkerPool() *worker.Pool {
	w := worker.NewWorker(a.Dispatcher, ratelimiter.New(a.Config.RateLimitPerType), a.Logger)
	retry := worker.NewRetryWorker(a.Queue, a.Config.RetryInterval, a.Metrics, a.Logger)
	return worker.NewPool(a.Queue, w, retry, a.Logger)
}

// RunWorker consumes the queue until ctx is cancelled or the broker is lost
// for good, then stops the pool. A worker-only process has no direct path to
// fall back on, so losing the broker returns domain.ErrConnection.
func (a *App) RunWorker(ctx context.Context) error {
	if !a.Queue.Available() {
		return domain.ErrQueueUnavailable
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := a.NewWorkerPool()
	if err := pool.Start(runCtx); err != nil {
		return err
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		a.Broker.Monitor(runCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case <-monitorDone:
		if ctx.Err() == nil {
			runErr = fmt.Errorf("broker %s: %w", a.Broker.State(), domain.ErrConnection)
		}
	}
	cancel()

	timeout := a.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer stopCancel()
	if err := pool.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	<-monitorDone
	return runErr
}

// Close shuts components down in dependency order: the queue first so
// in-flight jobs can still reach the broker, then the broker, then the
// database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Queue.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Broker.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
