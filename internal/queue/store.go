package queue

import (
	"context"
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// Store persists job records and hands them to workers. The Redis
// implementation lives in redis_store.go; MemoryStore keeps everything in
// process for tests and single-node setups.
//
// Reserve must hand every ready record to exactly one caller at a time.
type Store interface {
	// Init prepares broker-side structures. Safe to call repeatedly.
	Init(ctx context.Context) error
	// Push persists a new record and makes it ready for Reserve.
	Push(ctx context.Context, rec *domain.JobRecord) error
	// Reserve blocks for at most block and returns the next ready record,
	// or (nil, nil) when none arrived. The returned record carries a Receipt.
	Reserve(ctx context.Context, consumer string, block time.Duration) (*domain.JobRecord, error)
	// Save writes the record's current fields without changing its position.
	Save(ctx context.Context, rec *domain.JobRecord) error
	// Complete and Fail store a terminal record and acknowledge the delivery.
	Complete(ctx context.Context, rec *domain.JobRecord) error
	Fail(ctx context.Context, rec *domain.JobRecord) error
	// Retry stores the record, acknowledges the delivery and parks the job
	// until runAt.
	Retry(ctx context.Context, rec *domain.JobRecord, runAt time.Time) error
	// PromoteDue moves parked jobs whose time has come back to ready.
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	Get(ctx context.Context, id string) (*domain.JobRecord, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
}
