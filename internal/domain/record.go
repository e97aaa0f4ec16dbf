package domain

import "time"

// JobStatus tracks a queued job through its lifecycle.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusActive    JobStatus = "active"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further attempts will be made.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BackoffPolicy is stored on every record so a record explains its own
// retry schedule, independent of the current process configuration.
type BackoffPolicy struct {
	Type   string  `json:"type"`
	Delay  int64   `json:"delay"` // milliseconds before the first retry
	Factor float64 `json:"factor"`
}

// DelayFor returns the wait after the given failed attempt (1-based):
// Delay × Factor^(attempt-1).
func (b BackoffPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(b.Delay)
	for i := 1; i < attempt; i++ {
		d *= factor
	}
	return time.Duration(d) * time.Millisecond
}

// JobRecord is the broker-persisted wrapper around an EmailJob.
type JobRecord struct {
	ID          string        `json:"id"`
	Queue       string        `json:"queue"`
	Job         EmailJob      `json:"job"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	Backoff     BackoffPolicy `json:"backoff"`
	Status      JobStatus     `json:"status"`
	LastError   string        `json:"last_error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	NextRunAt   *time.Time    `json:"next_run_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`

	// Receipt identifies the broker delivery of the current attempt and is
	// needed to acknowledge it. It is not persisted.
	Receipt string `json:"-"`
}

// QueueStats is a point-in-time view of the queue contents.
type QueueStats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
