package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// TypeLimiters holds one token bucket limiter per email job type.
// Each limiter enforces a steady-state rate (e.g. 10 emails/sec).
// Burst is set equal to the rate so no extra burst capacity is allowed
// beyond the configured per-second maximum.
type TypeLimiters struct {
	limiters map[domain.JobType]*rate.Limiter
	// unknown is shared by every type outside the known set.
	unknown *rate.Limiter
}

// New creates a TypeLimiters with ratePerSec tokens per second per job type.
// A non-positive rate disables limiting.
func New(ratePerSec int) *TypeLimiters {
	r := rate.Inf
	burst := 0
	if ratePerSec > 0 {
		r = rate.Limit(ratePerSec)
		burst = ratePerSec // burst == rate: prevents any "saved up" burst above the limit
	}

	tl := &TypeLimiters{
		limiters: make(map[domain.JobType]*rate.Limiter),
		unknown:  rate.NewLimiter(r, burst),
	}
	for _, t := range []domain.JobType{domain.JobWelcome, domain.JobResetPassword, domain.JobPasswordChanged} {
		tl.limiters[t] = rate.NewLimiter(r, burst)
	}
	return tl
}

// Wait blocks until the job type's limiter grants a token.
// Called by the worker immediately before dispatching.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (tl *TypeLimiters) Wait(ctx context.Context, t domain.JobType) error {
	return tl.get(t).Wait(ctx)
}

// get returns the limiter for t. Records carrying an unknown type share one
// limiter so they still reach the dispatcher and fail there, while the map
// stays fixed whatever type strings other producers write.
func (tl *TypeLimiters) get(t domain.JobType) *rate.Limiter {
	if l, ok := tl.limiters[t]; ok {
		return l
	}
	return tl.unknown
}
