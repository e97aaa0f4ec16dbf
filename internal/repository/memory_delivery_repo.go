package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// MemoryDeliveryRepository is a hand-written, in-memory DeliveryRepository.
// It backs tests and deployments without DATABASE_URL.
type MemoryDeliveryRepository struct {
	mu         sync.RWMutex
	deliveries []*domain.Delivery

	// Optional error override, set in tests to simulate failure paths.
	RecordErr error
}

func NewMemoryDeliveryRepository() *MemoryDeliveryRepository {
	return &MemoryDeliveryRepository{}
}

func (m *MemoryDeliveryRepository) Record(_ context.Context, d *domain.Delivery) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *d
	if d.JobID != nil {
		for i, existing := range m.deliveries {
			if existing.JobID != nil && *existing.JobID == *d.JobID {
				clone.ID = existing.ID
				clone.CreatedAt = existing.CreatedAt
				m.deliveries[i] = &clone
				return nil
			}
		}
	}
	m.deliveries = append(m.deliveries, &clone)
	return nil
}

func (m *MemoryDeliveryRepository) GetByJobID(_ context.Context, jobID string) (*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.deliveries {
		if d.JobID != nil && *d.JobID == jobID {
			clone := *d
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryDeliveryRepository) List(_ context.Context, f domain.DeliveryFilter) ([]*domain.Delivery, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*domain.Delivery
	for _, d := range m.deliveries {
		if matches(d, f) {
			clone := *d
			matched = append(matched, &clone)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if f.Limit > 0 {
		start := (f.Page - 1) * f.Limit
		if start < 0 {
			start = 0
		}
		if start > total {
			start = total
		}
		end := start + f.Limit
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

// All returns every recorded delivery in insertion order.
func (m *MemoryDeliveryRepository) All() []*domain.Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Delivery, len(m.deliveries))
	for i, d := range m.deliveries {
		clone := *d
		out[i] = &clone
	}
	return out
}

func matches(d *domain.Delivery, f domain.DeliveryFilter) bool {
	switch {
	case f.Status != nil && d.Status != *f.Status:
		return false
	case f.Type != nil && d.Type != *f.Type:
		return false
	case f.Recipient != nil && d.Recipient != *f.Recipient:
		return false
	case f.From != nil && d.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && d.CreatedAt.After(*f.To):
		return false
	}
	return true
}

var _ DeliveryRepository = (*MemoryDeliveryRepository)(nil)
