package resilience

import (
	"context"
	"time"
)

// RetryEvent is the aggregate "still trying" signal handed to callers.
type RetryEvent struct {
	Operation  string
	Retry      int
	MaxRetries int
	Wait       time.Duration
	Err        error
}

type retryNotifierKey struct{}

// WithRetryNotifier registers fn to be called before every backoff sleep of
// calls made with the returned context.
func WithRetryNotifier(ctx context.Context, fn func(RetryEvent)) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, retryNotifierKey{}, fn)
}

func notifyRetry(ctx context.Context, event RetryEvent) {
	fn, _ := ctx.Value(retryNotifierKey{}).(func(RetryEvent))
	if fn != nil {
		fn(event)
	}
}
