package domain

import "time"

// DeliveryMode names the path an email took.
type DeliveryMode string

const (
	ModeQueued DeliveryMode = "queued"
	ModeDirect DeliveryMode = "direct"
)

// DeliveryStatus is the terminal outcome of one email.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Delivery is one row of the delivery log. JobID is nil for direct sends.
type Delivery struct {
	ID        string         `json:"id"`
	JobID     *string        `json:"job_id,omitempty"`
	Type      string         `json:"type"`
	Recipient string         `json:"recipient"`
	Mode      DeliveryMode   `json:"mode"`
	Status    DeliveryStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	Error     *string        `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// DeliveryFilter holds query parameters for paginated delivery listing.
type DeliveryFilter struct {
	Status    *DeliveryStatus
	Type      *string
	Recipient *string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}
