package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// MemoryStore is an in-process Store used as a test double by the queue,
// worker and api tests. Ready job ids travel through a buffered channel;
// Reserve blocks on it the same way a worker blocks on the broker stream.
// The exported error fields force failure paths.
type MemoryStore struct {
	ready chan string

	mu        sync.Mutex
	records   map[string]*domain.JobRecord
	delayed   map[string]time.Time
	inflight  map[string]string // receipt -> job id
	seq       int
	completed int64
	failed    int64
	pushCalls int

	InitErr    error
	PushErr    error
	ReserveErr error
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{
		ready:    make(chan string, capacity),
		records:  make(map[string]*domain.JobRecord),
		delayed:  make(map[string]time.Time),
		inflight: make(map[string]string),
	}
}

func (m *MemoryStore) Init(context.Context) error { return m.InitErr }

func (m *MemoryStore) Push(_ context.Context, rec *domain.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushCalls++
	if m.PushErr != nil {
		return m.PushErr
	}

	select {
	case m.ready <- rec.ID:
	default:
		return fmt.Errorf("memory store is at capacity (%d)", cap(m.ready))
	}
	clone := *rec
	m.records[rec.ID] = &clone
	return nil
}

// PushCalls reports how many times Push was invoked.
func (m *MemoryStore) PushCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushCalls
}

func (m *MemoryStore) Reserve(ctx context.Context, _ string, block time.Duration) (*domain.JobRecord, error) {
	if m.ReserveErr != nil {
		return nil, m.ReserveErr
	}

	var id string
	if block <= 0 {
		select {
		case id = <-m.ready:
		default:
			return nil, nil
		}
	} else {
		timer := time.NewTimer(block)
		defer timer.Stop()
		select {
		case id = <-m.ready:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	m.seq++
	receipt := "mem-" + strconv.Itoa(m.seq)
	m.inflight[receipt] = id

	clone := *rec
	clone.Receipt = receipt
	return &clone, nil
}

func (m *MemoryStore) Save(_ context.Context, rec *domain.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(rec)
	return nil
}

func (m *MemoryStore) Complete(_ context.Context, rec *domain.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(rec)
	delete(m.inflight, rec.Receipt)
	m.completed++
	return nil
}

func (m *MemoryStore) Fail(_ context.Context, rec *domain.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(rec)
	delete(m.inflight, rec.Receipt)
	m.failed++
	return nil
}

func (m *MemoryStore) Retry(_ context.Context, rec *domain.JobRecord, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(rec)
	delete(m.inflight, rec.Receipt)
	m.delayed[rec.ID] = runAt
	return nil
}

func (m *MemoryStore) PromoteDue(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	promoted := 0
	for id, at := range m.delayed {
		if at.After(now) {
			continue
		}
		select {
		case m.ready <- id:
			delete(m.delayed, id)
			promoted++
		default:
			// Full: leave it parked until the next tick.
			return promoted, nil
		}
	}
	return promoted, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *MemoryStore) Stats(context.Context) (domain.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.QueueStats{
		Waiting:   int64(len(m.ready)),
		Active:    int64(len(m.inflight)),
		Delayed:   int64(len(m.delayed)),
		Completed: m.completed,
		Failed:    m.failed,
	}, nil
}

func (m *MemoryStore) store(rec *domain.JobRecord) {
	clone := *rec
	clone.Receipt = ""
	m.records[rec.ID] = &clone
}

var _ Store = (*MemoryStore)(nil)
