package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docverify/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Observer receives one event per attempt and per scheduled retry.
type Observer interface {
	ObserveAttempt(operation string, attempt domain.TransportAttempt)
	ObserveRetry(operation string, retry int, wait time.Duration)
}

// Execution summarizes a finished call. Only these aggregates outlive the
// individual attempts.
type Execution struct {
	Attempts int
	Backoff  time.Duration
}

type Executor struct {
	cfg      Config
	observer Observer

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (e *Executor) WithObserver(observer Observer) *Executor {
	e.observer = observer
	return e
}

// Execute runs fn until it succeeds, fails fatally, exhausts the policy or the
// caller cancels ctx. Each attempt runs under its own deadline.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	policy domain.RetryPolicy,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) (Execution, error) {
	if fn == nil {
		return Execution{}, fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	policy = policy.Normalize()

	if !e.cfg.BreakerEnabled {
		return e.executeWithRetry(ctx, op, policy, fn, classifier)
	}

	var exec Execution
	breaker := e.circuitBreaker(op)
	_, err := breaker.Execute(func() (any, error) {
		var runErr error
		exec, runErr = e.executeWithRetry(ctx, op, policy, fn, classifier)
		return nil, runErr
	})
	if IsCircuitOpen(err) {
		return exec, domain.WrapError(domain.ErrTemporary, op, err)
	}
	return exec, err
}

func (e *Executor) executeWithRetry(
	ctx context.Context,
	operation string,
	policy domain.RetryPolicy,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) (Execution, error) {
	var exec Execution
	total := policy.TotalAttempts()

	for attempt := 1; attempt <= total; attempt++ {
		if err := ctx.Err(); err != nil {
			return exec, domain.ContextError(operation, err)
		}
		exec.Attempts = attempt

		record := domain.TransportAttempt{Number: attempt, StartedAt: time.Now()}
		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
		record.Deadline, _ = attemptCtx.Deadline()
		err := fn(attemptCtx)
		attemptErr := attemptCtx.Err()
		cancel()

		if err == nil {
			record.Outcome = domain.OutcomeSuccess
			e.observeAttempt(operation, record)
			return exec, nil
		}
		record.Err = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			record.Outcome = domain.OutcomeCancelled
			e.observeAttempt(operation, record)
			return exec, domain.ContextError(operation, ctxErr)
		}

		timedOut := errors.Is(attemptErr, context.DeadlineExceeded) && !domain.IsKind(err, domain.ErrFatalTransport)
		if timedOut {
			record.Outcome = domain.OutcomeTransient
			e.observeAttempt(operation, record)
			if attempt == total {
				return exec, domain.WrapError(domain.ErrTimeout, operation,
					fmt.Errorf("no response within %s on attempt %d/%d: %w", policy.AttemptTimeout, attempt, total, err))
			}
		} else {
			class := classifier(err)
			if !class.Retryable {
				record.Outcome = domain.OutcomeFatal
				e.observeAttempt(operation, record)
				return exec, err
			}
			record.Outcome = domain.OutcomeTransient
			e.observeAttempt(operation, record)
			if attempt == total {
				return exec, exhausted(operation, attempt, err)
			}
		}

		wait := policy.Backoff(attempt)
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", total,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"timeout", timedOut,
			"error", err,
		)
		notifyRetry(ctx, RetryEvent{
			Operation:  operation,
			Retry:      attempt,
			MaxRetries: policy.MaxRetries,
			Wait:       wait,
			Err:        err,
		})
		if e.observer != nil {
			e.observer.ObserveRetry(operation, attempt, wait)
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return exec, domain.ContextError(operation, ctx.Err())
			case <-timer.C:
			}
		}
		exec.Backoff += wait
	}

	return exec, nil
}

func (e *Executor) observeAttempt(operation string, attempt domain.TransportAttempt) {
	if e.observer != nil {
		e.observer.ObserveAttempt(operation, attempt)
	}
}

func (e *Executor) circuitBreaker(operation string) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker[any](e.cfg.settings(operation))
	e.breakers[operation] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func exhausted(operation string, attempts int, err error) error {
	if domain.IsKind(err, domain.ErrTemporary) {
		return fmt.Errorf("%s: giving up after %d attempts: %w", operation, attempts, err)
	}
	return domain.WrapError(domain.ErrTemporary, operation, fmt.Errorf("giving up after %d attempts: %w", attempts, err))
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
