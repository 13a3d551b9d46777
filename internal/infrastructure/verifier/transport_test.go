package verifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/docverify/internal/core/domain"
	"github.com/kirillkom/docverify/internal/infrastructure/resilience"
)

func newTestTransport(baseURL string) *HTTPTransport {
	return NewHTTPTransport(
		Config{BaseURL: baseURL, ServiceToken: "service-token"},
		resilience.NewExecutor(resilience.Config{BreakerEnabled: false}),
	)
}

func fastPolicy(maxRetries int, base time.Duration) domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxRetries:     maxRetries,
		BaseBackoff:    base,
		Multiplier:     2,
		AttemptTimeout: 2 * time.Second,
	}
}

// scriptedServer answers with the given status codes in order, then repeats the last one.
func scriptedServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch {
		case status >= 500:
			_, _ = w.Write([]byte(`{"message":"unavailable"}`))
		case status >= 400:
			_, _ = w.Write([]byte(`{"code":"INVALID_FILE","message":"file rejected"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"COMPLETED"}`))
		}
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func uploadRequest() domain.TransportRequest {
	return domain.TransportRequest{
		Operation:   "upload",
		Method:      http.MethodPost,
		Path:        "/api/documents/upload",
		ContentType: "application/octet-stream",
		Body:        []byte("payload"),
	}
}

func TestSendRejectedRequestIsNotRetried(t *testing.T) {
	server, hits := scriptedServer(t, http.StatusBadRequest)

	_, err := newTestTransport(server.URL).Send(context.Background(), uploadRequest(), fastPolicy(3, time.Millisecond))
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", hits.Load())
	}
	var backendErr *domain.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if backendErr.Code != "INVALID_FILE" || backendErr.Message != "file rejected" || backendErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected backend error: %+v", backendErr)
	}
	if !domain.IsKind(err, domain.ErrFatalTransport) || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected fatal, non-temporary error, got %v", err)
	}
}

func TestSendRetriesServerErrorsWithBackoff(t *testing.T) {
	server, hits := scriptedServer(t, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)
	base := 20 * time.Millisecond

	started := time.Now()
	resp, err := newTestTransport(server.URL).Send(context.Background(), uploadRequest(), fastPolicy(3, base))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	elapsed := time.Since(started)

	if hits.Load() != 3 || resp.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got hits=%d attempts=%d", hits.Load(), resp.Attempts)
	}
	if resp.Backoff != base+2*base {
		t.Fatalf("expected backoff %s, got %s", base+2*base, resp.Backoff)
	}
	if elapsed < base+2*base {
		t.Fatalf("backoff was not waited: elapsed %s", elapsed)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != `{"status":"COMPLETED"}` {
		t.Fatalf("unexpected response: %d %s", resp.StatusCode, resp.Body)
	}
}

func TestSendBackoffGrowsGeometrically(t *testing.T) {
	server, _ := scriptedServer(t, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)
	base := 5 * time.Millisecond

	resp, err := newTestTransport(server.URL).Send(context.Background(), uploadRequest(), fastPolicy(3, base))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Attempts != 4 || resp.Backoff != base*(1+2+4) {
		t.Fatalf("expected 4 attempts and %s backoff, got %d / %s", base*7, resp.Attempts, resp.Backoff)
	}
}

func TestSendStopsAtAttemptBudget(t *testing.T) {
	server, hits := scriptedServer(t, http.StatusBadGateway)

	_, err := newTestTransport(server.URL).Send(context.Background(), uploadRequest(), fastPolicy(2, time.Millisecond))
	if hits.Load() != 3 {
		t.Fatalf("expected 1+2 attempts, got %d", hits.Load())
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error after exhaustion, got %v", err)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected last status error to be kept, got %v", err)
	}
}

func TestSendCancelDuringBackoff(t *testing.T) {
	server, hits := scriptedServer(t, http.StatusServiceUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	ctx = resilience.WithRetryNotifier(ctx, func(resilience.RetryEvent) { cancel() })

	started := time.Now()
	_, err := newTestTransport(server.URL).Send(ctx, uploadRequest(), fastPolicy(3, time.Minute))
	if !domain.IsKind(err, domain.ErrCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("cancellation must not look like a transient failure: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected no further attempts after cancel, got %d", hits.Load())
	}
	if time.Since(started) > 5*time.Second {
		t.Fatalf("backoff was not interrupted")
	}
}

func TestSendAttemptTimeout(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	policy := fastPolicy(1, time.Millisecond)
	policy.AttemptTimeout = 30 * time.Millisecond

	_, err := newTestTransport(server.URL).Send(context.Background(), uploadRequest(), policy)
	if !domain.IsKind(err, domain.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected timed-out attempt to be retried once, got %d", hits.Load())
	}
}

func TestSendAcceptsRedirectWithJSONBody(t *testing.T) {
	server, hits := scriptedServer(t, http.StatusFound)
	resp, err := newTestTransport(server.URL).Send(context.Background(), uploadRequest(), fastPolicy(3, time.Millisecond))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.StatusCode != http.StatusFound || hits.Load() != 1 {
		t.Fatalf("unexpected redirect handling: status=%d hits=%d", resp.StatusCode, hits.Load())
	}
}

func TestSendSetsAuthorization(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	transport := newTestTransport(server.URL)
	withToken := uploadRequest()
	withToken.BearerToken = "caller-token"
	if _, err := transport.Send(context.Background(), withToken, fastPolicy(0, time.Millisecond)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := transport.Send(context.Background(), uploadRequest(), fastPolicy(0, time.Millisecond)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(got) != 2 || got[0] != "Bearer caller-token" || got[1] != "Bearer service-token" {
		t.Fatalf("unexpected authorization headers: %v", got)
	}
}

func TestParseBackendErrorDefaultsCode(t *testing.T) {
	err := parseBackendError(http.StatusUnprocessableEntity, []byte("plain text failure"))
	if err.Code != "UPLOAD_FAILED" || err.Message != "plain text failure" {
		t.Fatalf("unexpected parsed error: %+v", err)
	}
}
