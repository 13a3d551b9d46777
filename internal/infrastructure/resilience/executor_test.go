package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docverify/internal/core/domain"
)

func testPolicy(maxRetries int) domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxRetries:     maxRetries,
		BaseBackoff:    1 * time.Millisecond,
		Multiplier:     2,
		AttemptTimeout: time.Second,
	}
}

func retryOn(target error) ErrorClassifier {
	return func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, target),
			RecordFailure: true,
		}
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []domain.TransportAttempt
	retries  []time.Duration
}

func (o *recordingObserver) ObserveAttempt(_ string, attempt domain.TransportAttempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, attempt)
}

func (o *recordingObserver) ObserveRetry(_ string, _ int, wait time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, wait)
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	observer := &recordingObserver{}
	exec := NewExecutor(Config{BreakerEnabled: false}).WithObserver(observer)

	attempts := 0
	errTemp := errors.New("temporary")
	stats, err := exec.Execute(context.Background(), "op", testPolicy(3), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, retryOn(errTemp))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 || stats.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d (stats %d)", attempts, stats.Attempts)
	}
	if stats.Backoff != 3*time.Millisecond {
		t.Fatalf("expected 1ms+2ms backoff, got %s", stats.Backoff)
	}
	if len(observer.attempts) != 3 || observer.attempts[2].Outcome != domain.OutcomeSuccess {
		t.Fatalf("unexpected observed attempts: %+v", observer.attempts)
	}
	if observer.attempts[0].Outcome != domain.OutcomeTransient {
		t.Fatalf("expected first attempt transient, got %s", observer.attempts[0].Outcome)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{BreakerEnabled: false})

	attempts := 0
	errPermanent := errors.New("permanent")
	stats, err := exec.Execute(context.Background(), "op", testPolicy(3), func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 || stats.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteNeverExceedsAttemptBudget(t *testing.T) {
	exec := NewExecutor(Config{BreakerEnabled: false})

	attempts := 0
	errTemp := errors.New("temporary")
	_, err := exec.Execute(context.Background(), "op", testPolicy(2), func(context.Context) error {
		attempts++
		return errTemp
	}, retryOn(errTemp))
	if attempts != 3 {
		t.Fatalf("expected 1+2 attempts, got %d", attempts)
	}
	if !domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, errTemp) {
		t.Fatalf("expected exhausted temporary error wrapping cause, got %v", err)
	}
}

func TestExecuteTimesOutLastAttempt(t *testing.T) {
	exec := NewExecutor(Config{BreakerEnabled: false})
	policy := testPolicy(1)
	policy.AttemptTimeout = 10 * time.Millisecond

	attempts := 0
	_, err := exec.Execute(context.Background(), "op", policy, func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if attempts != 2 {
		t.Fatalf("expected timed-out attempt to be retried once, got %d attempts", attempts)
	}
	if !domain.IsKind(err, domain.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrCancelled) {
		t.Fatalf("timeout must not be reported as cancellation: %v", err)
	}
}

func TestExecuteCancelDuringBackoffStopsRetries(t *testing.T) {
	exec := NewExecutor(Config{BreakerEnabled: false})
	policy := testPolicy(3)
	policy.BaseBackoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	ctx = WithRetryNotifier(ctx, func(RetryEvent) { cancel() })

	attempts := 0
	errTemp := errors.New("temporary")
	start := time.Now()
	_, err := exec.Execute(ctx, "op", policy, func(context.Context) error {
		attempts++
		return errTemp
	}, retryOn(errTemp))
	if !domain.IsKind(err, domain.ErrCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no attempt after cancellation, got %d", attempts)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("backoff sleep was not interrupted")
	}
}

func TestExecuteCallerDeadlineIsTimeoutNotCancel(t *testing.T) {
	exec := NewExecutor(Config{BreakerEnabled: false})
	policy := testPolicy(3)
	policy.BaseBackoff = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	attempts := 0
	errTemp := errors.New("temporary")
	start := time.Now()
	_, err := exec.Execute(ctx, "op", policy, func(context.Context) error {
		attempts++
		return errTemp
	}, retryOn(errTemp))
	if !domain.IsKind(err, domain.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrCancelled) {
		t.Fatalf("expired deadline must not be reported as cancellation: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt before the deadline, got %d", attempts)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("backoff sleep was not interrupted by the deadline")
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	for i := 0; i < 2; i++ {
		_, err := exec.Execute(context.Background(), "op", testPolicy(0), func(context.Context) error {
			return errTemp
		}, retryOn(errTemp))
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	_, err := exec.Execute(context.Background(), "op", testPolicy(0), func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, retryOn(errTemp))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected open circuit to surface as temporary, got %v", err)
	}
}
