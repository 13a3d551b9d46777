package domain

import (
	"math"
	"time"
)

// RetryPolicy bounds one logical backend call. MaxRetries counts attempts
// beyond the first.
type RetryPolicy struct {
	MaxRetries     int
	BaseBackoff    time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

const (
	DefaultAttemptTimeout = 60 * time.Second
	UploadAttemptTimeout  = 300 * time.Second
)

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		BaseBackoff:    1 * time.Second,
		Multiplier:     2,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

func UploadRetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.AttemptTimeout = UploadAttemptTimeout
	return p
}

// Normalize replaces out-of-range fields with defaults. MaxRetries of zero is
// kept: a single attempt.
func (p RetryPolicy) Normalize() RetryPolicy {
	out := p
	def := DefaultRetryPolicy()
	if out.MaxRetries < 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.BaseBackoff <= 0 {
		out.BaseBackoff = def.BaseBackoff
	}
	if out.Multiplier < 1 {
		out.Multiplier = def.Multiplier
	}
	if out.MaxBackoff < 0 {
		out.MaxBackoff = 0
	}
	if out.AttemptTimeout <= 0 {
		out.AttemptTimeout = def.AttemptTimeout
	}
	return out
}

func (p RetryPolicy) TotalAttempts() int {
	return 1 + p.MaxRetries
}

// Backoff returns the wait before 1-indexed retry n.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	wait := time.Duration(float64(p.BaseBackoff) * math.Pow(p.Multiplier, float64(n-1)))
	if p.MaxBackoff > 0 && wait > p.MaxBackoff {
		return p.MaxBackoff
	}
	return wait
}

type AttemptOutcome string

const (
	OutcomeSuccess   AttemptOutcome = "success"
	OutcomeTransient AttemptOutcome = "transient_failure"
	OutcomeFatal     AttemptOutcome = "fatal_failure"
	OutcomeCancelled AttemptOutcome = "cancelled"
)

type TransportAttempt struct {
	Number    int
	StartedAt time.Time
	Deadline  time.Time
	Outcome   AttemptOutcome
	Err       error
}

type TransportRequest struct {
	Operation   string
	Method      string
	Path        string
	ContentType string
	Body        []byte
	BearerToken string
}

type TransportResponse struct {
	StatusCode int
	Body       []byte
	Attempts   int
	Backoff    time.Duration
}
