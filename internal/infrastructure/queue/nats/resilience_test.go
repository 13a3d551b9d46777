package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docverify/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{name: "no servers", err: fmt.Errorf("nats publish: %w", nats.ErrNoServers), retryable: true, recordFailure: true},
		{name: "disconnected", err: nats.ErrDisconnected, retryable: true, recordFailure: true},
		{name: "reconnecting", err: nats.ErrConnectionReconnecting, retryable: true, recordFailure: true},
		{name: "bad subject", err: nats.ErrBadSubject},
		{name: "max payload", err: nats.ErrMaxPayload},
		{name: "cancelled", err: context.Canceled},
		{name: "unknown", err: errors.New("boom"), recordFailure: true},
	}
	for _, tt := range tests {
		got := classifyNATSError(tt.err)
		if got.Retryable != tt.retryable || got.RecordFailure != tt.recordFailure {
			t.Fatalf("%s: got %+v, want retryable=%v record=%v", tt.name, got, tt.retryable, tt.recordFailure)
		}
	}
}

func TestWrapQueueError(t *testing.T) {
	err := wrapQueueError("nats.publish", nats.ErrConnectionClosed)
	if !domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, nats.ErrConnectionClosed) {
		t.Fatalf("expected temporary wrap, got %v", err)
	}
	if err := wrapQueueError("nats.publish", nats.ErrMaxPayload); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("oversized payload must be invalid input: %v", err)
	}
	if err := wrapQueueError("nats.publish", context.Canceled); !domain.IsKind(err, domain.ErrCancelled) {
		t.Fatalf("expected cancelled kind, got %v", err)
	}
	if err := wrapQueueError("nats.publish", context.DeadlineExceeded); !domain.IsKind(err, domain.ErrTimeout) || domain.IsKind(err, domain.ErrCancelled) {
		t.Fatalf("expected expired deadline to be a timeout, got %v", err)
	}
	if err := wrapQueueError("nats.publish", nil); err != nil {
		t.Fatalf("nil must stay nil, got %v", err)
	}
}
