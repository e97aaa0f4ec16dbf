package repository

import (
	"context"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// DeliveryRepository persists the delivery log: one row per email that
// reached a terminal outcome, queued or direct.
// The pgx implementation is in pg_delivery_repo.go; MemoryDeliveryRepository
// is used in tests and when no database is configured.
type DeliveryRepository interface {
	Record(ctx context.Context, d *domain.Delivery) error
	List(ctx context.Context, filter domain.DeliveryFilter) ([]*domain.Delivery, int, error)
	GetByJobID(ctx context.Context, jobID string) (*domain.Delivery, error)
}
