package broker

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// State is the lifecycle position of the broker connection.
type State string

const (
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateError        State = "error"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Options configures a Manager. Zero values are replaced with the defaults
// noted on each field.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int

	ConnectTimeout time.Duration // 3s
	MaxRetries     int           // 3 retries after the first attempt; negative disables retries
	RetryStep      time.Duration // 50ms, multiplied by the retry index
	RetryCap       time.Duration // 2s
	HealthInterval time.Duration // 5s

	// Dialer replaces the network dialer. Tests use it to simulate outages.
	Dialer func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (o *Options) setDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 3 * time.Second
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = 3
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.RetryStep <= 0 {
		o.RetryStep = 50 * time.Millisecond
	}
	if o.RetryCap <= 0 {
		o.RetryCap = 2 * time.Second
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = 5 * time.Second
	}
}

// Manager owns the process's connection to the broker. The queue and the
// email service receive it explicitly and ask it whether the broker can be
// used right now.
type Manager struct {
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	client   *redis.Client
	state    State
	onChange func(State)
}

func NewManager(opts Options, logger *zap.Logger) *Manager {
	opts.setDefaults()
	return &Manager{
		opts:   opts,
		logger: logger.Named("broker").With(zap.String("addr", opts.Addr)),
		state:  StateClosed,
	}
}

// OnStateChange registers a callback invoked after every transition.
// Must be called before Connect.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// RetryDelay returns the wait before retry n (1-based): min(n × step, cap).
func (m *Manager) RetryDelay(n int) time.Duration {
	d := time.Duration(n) * m.opts.RetryStep
	if d > m.opts.RetryCap {
		return m.opts.RetryCap
	}
	return d
}

// Connect opens the connection, retrying up to MaxRetries times. When every
// attempt fails the manager ends in StateClosed and schedules nothing
// further; callers fall back to direct delivery.
func (m *Manager) Connect(ctx context.Context) error {
	return m.connect(ctx, StateConnecting)
}

func (m *Manager) connect(ctx context.Context, initial State) error {
	m.setState(initial)

	var lastErr error
	for attempt := 0; attempt <= m.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := m.RetryDelay(attempt)
			m.setState(StateReconnecting)
			m.logger.Info("retrying broker connection",
				zap.Int("retry", attempt),
				zap.Duration("delay", delay))
			if err := sleep(ctx, delay); err != nil {
				m.setState(StateClosed)
				return fmt.Errorf("%w: %w", domain.ErrConnection, err)
			}
		}

		client, err := m.dial(ctx)
		if err == nil {
			m.mu.Lock()
			m.client = client
			m.mu.Unlock()
			m.setState(StateReady)
			m.logger.Info("broker connected", zap.Int("attempt", attempt+1))
			return nil
		}

		lastErr = err
		m.setState(StateError)
		m.logger.Warn("broker connection failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	m.setState(StateClosed)
	m.logger.Error("broker connection retries exhausted, falling back to direct delivery",
		zap.Int("attempts", m.opts.MaxRetries+1),
		zap.Error(lastErr))
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrConnection, m.opts.MaxRetries+1, lastErr)
}

func (m *Manager) dial(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        m.opts.Addr,
		Username:    m.opts.Username,
		Password:    m.opts.Password,
		DB:          m.opts.DB,
		DialTimeout: m.opts.ConnectTimeout,
		Dialer:      m.opts.Dialer,
		// Reconnection is driven by the manager, not by the client.
		MaxRetries: -1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Monitor pings the broker every HealthInterval. A failed ping drops the
// cached client at once, so IsAvailable reports the outage, and then runs
// the bounded reconnect cycle. Monitor returns when ctx is cancelled or the
// reconnect cycle is exhausted.
func (m *Manager) Monitor(ctx context.Context) {
	ticker := time.NewTicker(m.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		client := m.current()
		if client == nil {
			m.logger.Info("broker monitor stopping, no connection to watch")
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil || ctx.Err() != nil {
			continue
		}

		m.drop(client, err)
		if err := m.connect(ctx, StateReconnecting); err != nil {
			return
		}
	}
}

// drop forgets the client after a connection error.
func (m *Manager) drop(client *redis.Client, cause error) {
	m.mu.Lock()
	if m.client == client {
		m.client = nil
	}
	m.mu.Unlock()
	_ = client.Close()

	m.setState(StateError)
	m.logger.Warn("broker connection lost", zap.Error(cause))
}

// IsAvailable reports whether the connection is in the ready state.
func (m *Manager) IsAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.client != nil
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Client returns the live client, or nil when the broker is unavailable.
func (m *Manager) Client() redis.UniversalClient {
	if c := m.current(); c != nil {
		return c
	}
	return nil
}

func (m *Manager) current() *redis.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return nil
	}
	return m.client
}

// Close releases the connection. The manager stays closed until Connect is
// called again.
func (m *Manager) Close() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	m.setState(StateClosed)
	if client == nil {
		return nil
	}
	m.logger.Info("closing broker connection")
	return client.Close()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	fn := m.onChange
	m.mu.Unlock()

	if prev == s {
		return
	}
	m.logger.Debug("broker state changed", zap.String("from", string(prev)), zap.String("to", string(s)))
	if fn != nil {
		fn(s)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
