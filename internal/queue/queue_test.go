package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notifyhub/mailqueue/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestQueue(t *testing.T, store Store, hooks Hooks) (*Queue, *fakeClock, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	q := New(store, Options{Name: "email-queue", Hooks: hooks}, zap.New(core))
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	q.now = clock.Now
	q.opts.Block = 10 * time.Millisecond
	return q, clock, logs
}

func welcome() domain.EmailJob {
	return domain.EmailJob{
		Type:    string(domain.JobWelcome),
		Payload: domain.Payload{Email: "user@example.com", Name: "Jane"},
	}
}

func TestEnqueue_NotInitialized(t *testing.T) {
	store := NewMemoryStore(10)
	q, _, _ := newTestQueue(t, store, Hooks{})

	_, err := q.Enqueue(context.Background(), welcome())
	if !errors.Is(err, domain.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
	if store.PushCalls() != 0 {
		t.Fatalf("store must not be touched, got %d push calls", store.PushCalls())
	}
}

func TestEnqueue_NilQueue(t *testing.T) {
	var q *Queue
	if _, err := q.Enqueue(context.Background(), welcome()); !errors.Is(err, domain.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
	if q.Available() {
		t.Fatal("nil queue must not be available")
	}
}

func TestInit_FailureKeepsQueueUnavailable(t *testing.T) {
	store := NewMemoryStore(10)
	store.InitErr = errors.New("connection refused")
	q, _, _ := newTestQueue(t, store, Hooks{})

	if err := q.Init(context.Background()); !errors.Is(err, domain.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
	if _, err := q.Enqueue(context.Background(), welcome()); !errors.Is(err, domain.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
	if store.PushCalls() != 0 {
		t.Fatalf("expected no push calls, got %d", store.PushCalls())
	}
}

func TestEnqueue_RecordDefaults(t *testing.T) {
	store := NewMemoryStore(10)
	q, _, _ := newTestQueue(t, store, Hooks{})
	ctx := context.Background()
	if err := q.Init(ctx); err != nil {
		t.Fatal(err)
	}

	id, err := q.Enqueue(ctx, welcome())
	if err != nil {
		t.Fatal(err)
	}
	rec, err := q.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.StatusPending || rec.Attempts != 0 {
		t.Fatalf("unexpected record state: %+v", rec)
	}
	if rec.MaxAttempts != 3 {
		t.Fatalf("expected 3 max attempts, got %d", rec.MaxAttempts)
	}
	if rec.Backoff.Type != "exponential" || rec.Backoff.Delay != 1000 {
		t.Fatalf("unexpected backoff: %+v", rec.Backoff)
	}
	if rec.Queue != "email-queue" {
		t.Fatalf("unexpected queue name %q", rec.Queue)
	}
}

// TestHandle_RetriesThenFails runs a job whose handler always fails through
// all three attempts and checks the backoff schedule and the single
// terminal log line.
func TestHandle_RetriesThenFails(t *testing.T) {
	store := NewMemoryStore(10)
	var delays []time.Duration
	var failed int
	q, clock, logs := newTestQueue(t, store, Hooks{
		OnRetry:  func(_ *domain.JobRecord, d time.Duration, _ error) { delays = append(delays, d) },
		OnFailed: func(*domain.JobRecord, error) { failed++ },
	})
	ctx := context.Background()
	if err := q.Init(ctx); err != nil {
		t.Fatal(err)
	}

	calls := 0
	if err := q.Process(func(context.Context, *domain.JobRecord) error {
		calls++
		return errors.New("smtp: 421 service not available")
	}); err != nil {
		t.Fatal(err)
	}

	id, err := q.Enqueue(ctx, welcome())
	if err != nil {
		t.Fatal(err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		handled, err := q.step(ctx, "test")
		if err != nil {
			t.Fatal(err)
		}
		if !handled {
			t.Fatalf("attempt %d: expected a job to be handled", attempt)
		}
		if attempt < 3 {
			// Nothing is ready until the backoff elapses.
			if handled, _ := q.step(ctx, "test"); handled {
				t.Fatalf("attempt %d: job ran before its backoff elapsed", attempt)
			}
			clock.Advance(delays[attempt-1])
			n, err := q.PromoteDue(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if n != 1 {
				t.Fatalf("expected 1 promoted job, got %d", n)
			}
		}
	}

	if calls != 3 {
		t.Fatalf("expected 3 handler calls, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected retry delays: %v", delays)
	}
	if failed != 1 {
		t.Fatalf("expected OnFailed once, got %d", failed)
	}
	if n := logs.FilterMessage("email job failed permanently").Len(); n != 1 {
		t.Fatalf("expected exactly one terminal failure log, got %d", n)
	}

	rec, err := q.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.StatusFailed || rec.Attempts != 3 {
		t.Fatalf("unexpected final record: status=%s attempts=%d", rec.Status, rec.Attempts)
	}
	if rec.LastError == "" || rec.FinishedAt == nil {
		t.Fatalf("terminal record must carry error and finish time: %+v", rec)
	}

	stats, _ := q.Stats(ctx)
	if stats.Failed != 1 || stats.Delayed != 0 || stats.Waiting != 0 || stats.Active != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHandle_PermanentErrorIsNotRetried(t *testing.T) {
	store := NewMemoryStore(10)
	retried := false
	q, _, logs := newTestQueue(t, store, Hooks{
		OnRetry: func(*domain.JobRecord, time.Duration, error) { retried = true },
	})
	ctx := context.Background()
	_ = q.Init(ctx)
	_ = q.Process(func(context.Context, *domain.JobRecord) error {
		return domain.NewValidationError("resetToken", "reset token required")
	})

	id, _ := q.Enqueue(ctx, welcome())
	if _, err := q.step(ctx, "test"); err != nil {
		t.Fatal(err)
	}

	if retried {
		t.Fatal("permanent error must not be retried")
	}
	rec, _ := q.Get(ctx, id)
	if rec.Status != domain.StatusFailed || rec.Attempts != 1 {
		t.Fatalf("expected failed after 1 attempt, got status=%s attempts=%d", rec.Status, rec.Attempts)
	}
	if rec.LastError != "reset token required" {
		t.Fatalf("unexpected last error %q", rec.LastError)
	}
	if n := logs.FilterMessage("email job failed permanently").Len(); n != 1 {
		t.Fatalf("expected one terminal failure log, got %d", n)
	}
}

func TestHandle_Success(t *testing.T) {
	store := NewMemoryStore(10)
	var completed *domain.JobRecord
	q, _, _ := newTestQueue(t, store, Hooks{
		OnCompleted: func(rec *domain.JobRecord, _ time.Duration) { completed = rec },
	})
	ctx := context.Background()
	_ = q.Init(ctx)

	var got domain.EmailJob
	_ = q.Process(func(_ context.Context, rec *domain.JobRecord) error {
		got = rec.Job
		return nil
	})

	id, _ := q.Enqueue(ctx, welcome())
	if _, err := q.step(ctx, "test"); err != nil {
		t.Fatal(err)
	}

	if got.Payload.Email != "user@example.com" || got.Payload.Name != "Jane" {
		t.Fatalf("handler received wrong payload: %+v", got)
	}
	if completed == nil || completed.ID != id {
		t.Fatal("OnCompleted not fired for the job")
	}
	rec, _ := q.Get(ctx, id)
	if rec.Status != domain.StatusCompleted || rec.Attempts != 1 {
		t.Fatalf("unexpected record: status=%s attempts=%d", rec.Status, rec.Attempts)
	}
	stats, _ := q.Stats(ctx)
	if stats.Completed != 1 {
		t.Fatalf("expected 1 completed, got %d", stats.Completed)
	}
}

func TestHandle_PanicIsRetried(t *testing.T) {
	store := NewMemoryStore(10)
	q, _, _ := newTestQueue(t, store, Hooks{})
	ctx := context.Background()
	_ = q.Init(ctx)
	_ = q.Process(func(context.Context, *domain.JobRecord) error { panic("template missing") })

	id, _ := q.Enqueue(ctx, welcome())
	if _, err := q.step(ctx, "test"); err != nil {
		t.Fatal(err)
	}

	rec, _ := q.Get(ctx, id)
	if rec.Status != domain.StatusPending || rec.NextRunAt == nil {
		t.Fatalf("expected a scheduled retry, got %+v", rec)
	}
}

// TestHandle_RedeliveredExhaustedJob covers a record that used its last
// attempt on a worker that died before recording the outcome.
func TestHandle_RedeliveredExhaustedJob(t *testing.T) {
	store := NewMemoryStore(10)
	q, _, _ := newTestQueue(t, store, Hooks{})
	ctx := context.Background()
	_ = q.Init(ctx)

	called := false
	_ = q.Process(func(context.Context, *domain.JobRecord) error {
		called = true
		return nil
	})

	rec := &domain.JobRecord{ID: "stale", Job: welcome(), Attempts: 3, MaxAttempts: 3, Status: domain.StatusActive}
	if err := store.Push(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if _, err := q.step(ctx, "test"); err != nil {
		t.Fatal(err)
	}

	if called {
		t.Fatal("handler must not run for an exhausted job")
	}
	got, _ := q.Get(ctx, "stale")
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestProcess_SecondHandlerRejected(t *testing.T) {
	q, _, _ := newTestQueue(t, NewMemoryStore(1), Hooks{})
	h := func(context.Context, *domain.JobRecord) error { return nil }

	if err := q.Process(h); err != nil {
		t.Fatal(err)
	}
	if err := q.Process(h); !errors.Is(err, domain.ErrHandlerRegistered) {
		t.Fatalf("expected ErrHandlerRegistered, got %v", err)
	}
}

func TestStart_RequiresHandler(t *testing.T) {
	q, _, _ := newTestQueue(t, NewMemoryStore(1), Hooks{})
	_ = q.Init(context.Background())
	if err := q.Start(context.Background()); err == nil {
		t.Fatal("expected error when starting without a handler")
	}
}

// TestClose_WaitsForInFlightJob verifies that Close lets the running job
// finish and that the queue refuses new jobs afterwards.
func TestClose_WaitsForInFlightJob(t *testing.T) {
	store := NewMemoryStore(10)
	q, _, _ := newTestQueue(t, store, Hooks{})
	ctx := context.Background()
	_ = q.Init(ctx)

	started := make(chan struct{})
	release := make(chan struct{})
	_ = q.Process(func(context.Context, *domain.JobRecord) error {
		close(started)
		<-release
		return nil
	})
	if err := q.Start(ctx); err != nil {
		t.Fatal(err)
	}

	id, _ := q.Enqueue(ctx, welcome())
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not picked up")
	}

	closed := make(chan error, 1)
	go func() {
		closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		closed <- q.Close(closeCtx)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-closed; err != nil {
		t.Fatalf("Close: %v", err)
	}

	rec, _ := q.Get(ctx, id)
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("in-flight job should complete, got %s", rec.Status)
	}
	if _, err := q.Enqueue(ctx, welcome()); !errors.Is(err, domain.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if q.Available() {
		t.Fatal("closed queue must not report available")
	}
}

func TestClose_Timeout(t *testing.T) {
	store := NewMemoryStore(10)
	q, _, _ := newTestQueue(t, store, Hooks{})
	ctx := context.Background()
	_ = q.Init(ctx)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	_ = q.Process(func(context.Context, *domain.JobRecord) error {
		close(started)
		<-release
		return nil
	})
	_ = q.Start(ctx)
	_, _ = q.Enqueue(ctx, welcome())
	<-started

	closeCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Close(closeCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWork_ReserveErrorLogLevel(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel zapcore.Level
	}{
		{"broker unavailable", fmt.Errorf("read stream: %w", domain.ErrConnection), zap.DebugLevel},
		{"other failure", errors.New("WRONGTYPE"), zap.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore(1)
			store.ReserveErr = tt.err
			q, _, logs := newTestQueue(t, store, Hooks{})
			if err := q.Init(context.Background()); err != nil {
				t.Fatalf("Init: %v", err)
			}
			if err := q.Process(func(context.Context, *domain.JobRecord) error { return nil }); err != nil {
				t.Fatalf("Process: %v", err)
			}
			if err := q.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}

			deadline := time.Now().Add(time.Second)
			for logs.FilterMessageSnippet("reserve failed").Len() == 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			if err := q.Close(context.Background()); err != nil {
				t.Fatalf("Close: %v", err)
			}

			entries := logs.FilterMessageSnippet("reserve failed").All()
			if len(entries) == 0 {
				t.Fatal("reserve failure was not logged")
			}
			for _, e := range entries {
				if e.Level != tt.wantLevel {
					t.Errorf("logged %q at %s, want %s", e.Message, e.Level, tt.wantLevel)
				}
			}
		})
	}
}
